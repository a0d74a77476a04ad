// Package sim provides a time-stepped kinematic UAV model. Depending on
// which time constants are configured it runs 3 DOF (pure kinematics),
// 4 DOF (altitude or bank/speed first-order lags) or 5 DOF (both)
// dynamics. Intended for validating guidance laws, not for aerodynamic
// fidelity.
package sim

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/golang/geo/r3"

	"github.com/auvkit/gnc/coords"
)

// gravity acceleration used for coordinated-turn kinematics, m/s^2.
const gravity = 9.80665

// airspeedEps is the minimum airspeed for turn-rate computation.
const airspeedEps = 1e-6

// Config selects the modeled dynamics. A nil time constant disables the
// corresponding first-order lag: with none set the model is 3 DOF; the
// altitude constant alone gives 4 DOF altitude dynamics; bank and speed
// together give 4 DOF lateral dynamics; all three give 5 DOF. Bank and
// speed constants must be supplied together.
type Config struct {
	BankTimeConstant  *float64 `json:"bank_time_constant_s,omitempty"`
	SpeedTimeConstant *float64 `json:"speed_time_constant_s,omitempty"`
	AltTimeConstant   *float64 `json:"alt_time_constant_s,omitempty"`

	// Operation limits, applied before integration. Nil disables.
	BankRateLimit  *float64 `json:"bank_rate_limit_radps,omitempty"`
	LonAccelLimit  *float64 `json:"lon_accel_limit_mps2,omitempty"`
	VertSlopeLimit *float64 `json:"vert_slope_limit,omitempty"`
}

// Validate ensures the configuration describes a consistent model.
// Inconsistent time constants indicate a configuration defect and fail
// fast rather than being clamped.
func (cfg *Config) Validate() error {
	check := func(name string, v *float64) error {
		if v != nil && *v <= 0 {
			return errors.Errorf("uav simulation: %s must be positive, got %f", name, *v)
		}
		return nil
	}
	if err := check("bank time constant", cfg.BankTimeConstant); err != nil {
		return err
	}
	if err := check("speed time constant", cfg.SpeedTimeConstant); err != nil {
		return err
	}
	if err := check("altitude time constant", cfg.AltTimeConstant); err != nil {
		return err
	}
	if err := check("bank rate limit", cfg.BankRateLimit); err != nil {
		return err
	}
	if err := check("longitudinal acceleration limit", cfg.LonAccelLimit); err != nil {
		return err
	}
	if err := check("vertical slope limit", cfg.VertSlopeLimit); err != nil {
		return err
	}
	if (cfg.BankTimeConstant == nil) != (cfg.SpeedTimeConstant == nil) {
		return errors.New("uav simulation: bank and speed time constants must be configured together")
	}
	return nil
}

// State is a value snapshot of the simulated vehicle.
type State struct {
	// Position in the NED frame, meters.
	Position r3.Vector
	// Attitude: roll, pitch, yaw, radians.
	Roll  float64
	Pitch float64
	Yaw   float64
	// Ground velocity, m/s.
	Velocity r3.Vector
	// Airstream data.
	Airspeed      float64
	AngleOfAttack float64
	Sideslip      float64
}

// UAV is one simulation instance. Copy with Clone to fork simulation
// branches; instances are not safe for concurrent use.
type UAV struct {
	cfg Config

	// position holds x, y, z, roll, pitch, yaw; velocity holds the ground
	// frame linear velocities and body angular rates p, q, r.
	position *mat.VecDense
	velocity *mat.VecDense
	wind     r3.Vector

	bankCmd     float64
	airspeedCmd float64
	altitudeCmd float64
	hasAirspeed bool
	hasAltitude bool

	airspeed      float64
	angleOfAttack float64
	sideslip      float64
}

// New creates a simulation instance with null initial state.
func New(cfg Config) (*UAV, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &UAV{
		cfg:      cfg,
		position: mat.NewVecDense(6, nil),
		velocity: mat.NewVecDense(6, nil),
	}, nil
}

// Clone returns an independent copy of the simulation state, e.g. for
// forward-simulating candidate commands without disturbing the original.
func (u *UAV) Clone() *UAV {
	c := *u
	c.position = mat.VecDenseCopyOf(u.position)
	c.velocity = mat.VecDenseCopyOf(u.velocity)
	return &c
}

// Reset zeroes the vehicle state and pending commands.
func (u *UAV) Reset() {
	u.position.Zero()
	u.velocity.Zero()
	u.bankCmd = 0
	u.airspeedCmd = 0
	u.altitudeCmd = 0
	u.hasAirspeed = false
	u.hasAltitude = false
	u.airspeed = 0
	u.angleOfAttack = 0
	u.sideslip = 0
}

// SetPosition sets the 6-element position/attitude vector.
func (u *UAV) SetPosition(pos mat.Vector) error {
	if pos.Len() != 6 {
		return errors.Errorf("uav simulation: position must have 6 elements, got %d", pos.Len())
	}
	u.position.CloneFromVec(pos)
	return nil
}

// SetVelocity sets the 6-element linear/angular velocity vector.
func (u *UAV) SetVelocity(vel mat.Vector) error {
	if vel.Len() != 6 {
		return errors.Errorf("uav simulation: velocity must have 6 elements, got %d", vel.Len())
	}
	u.velocity.CloneFromVec(vel)
	return nil
}

// SetWind sets the wind velocity in the ground frame.
func (u *UAV) SetWind(wind r3.Vector) {
	u.wind = wind
}

// Position returns a copy of the position/attitude vector.
func (u *UAV) Position() *mat.VecDense {
	return mat.VecDenseCopyOf(u.position)
}

// Velocity returns a copy of the velocity vector.
func (u *UAV) Velocity() *mat.VecDense {
	return mat.VecDenseCopyOf(u.velocity)
}

// Airspeed returns the current total airspeed.
func (u *UAV) Airspeed() float64 {
	return u.airspeed
}

// CommandBank sets the bank command, radians.
func (u *UAV) CommandBank(bank float64) {
	u.bankCmd = bank
}

// CommandAirspeed sets the airspeed command, m/s.
func (u *UAV) CommandAirspeed(airspeed float64) {
	u.airspeedCmd = airspeed
	u.hasAirspeed = true
}

// CommandAltitude sets the altitude command, meters above the NED origin.
func (u *UAV) CommandAltitude(altitude float64) {
	u.altitudeCmd = altitude
	u.hasAltitude = true
}

// Update advances the simulation by one explicit integration step and
// returns the resulting state snapshot. Velocity is updated before
// position (semi-implicit ordering).
func (u *UAV) Update(dt float64) State {
	u.calcAirData()

	bankRate := u.updateBank(dt)
	u.updateSpeed(dt)
	climbRate := u.updateClimb()

	// Coordinated-turn yaw kinematics.
	bank := u.position.AtVec(3)
	var yawRate float64
	if u.airspeed > airspeedEps {
		yawRate = gravity * math.Tan(bank) / u.airspeed
	}
	yaw := coords.NormalizeRadians(u.position.AtVec(5) + yawRate*dt)

	// Rebuild the ground velocity from the lagged states, then integrate
	// position with the updated velocity.
	sin, cos := math.Sincos(yaw)
	vx := u.airspeed*cos + u.wind.X
	vy := u.airspeed*sin + u.wind.Y
	vz := -climbRate + u.wind.Z

	u.velocity.SetVec(0, vx)
	u.velocity.SetVec(1, vy)
	u.velocity.SetVec(2, vz)
	u.velocity.SetVec(3, bankRate)
	u.velocity.SetVec(5, yawRate)

	u.position.SetVec(0, u.position.AtVec(0)+vx*dt)
	u.position.SetVec(1, u.position.AtVec(1)+vy*dt)
	u.position.SetVec(2, u.position.AtVec(2)+vz*dt)

	pitch := math.Atan2(climbRate, math.Max(u.airspeed, airspeedEps))
	u.position.SetVec(4, pitch)
	u.position.SetVec(5, yaw)

	return u.snapshot()
}

// calcAirData derives airspeed, angle of attack and sideslip from the
// current ground velocity and wind.
func (u *UAV) calcAirData() {
	vr := r3.Vector{
		X: u.velocity.AtVec(0) - u.wind.X,
		Y: u.velocity.AtVec(1) - u.wind.Y,
		Z: u.velocity.AtVec(2) - u.wind.Z,
	}
	u.airspeed = vr.Norm()

	if u.airspeed <= airspeedEps {
		u.angleOfAttack = 0
		u.sideslip = 0
		return
	}

	// Air-relative flow angles against the current attitude.
	yaw := u.position.AtVec(5)
	sin, cos := math.Sincos(yaw)
	ub := vr.X*cos + vr.Y*sin
	vb := -vr.X*sin + vr.Y*cos
	u.angleOfAttack = math.Atan2(vr.Z, math.Max(math.Abs(ub), airspeedEps))
	u.sideslip = math.Asin(clamp(vb/u.airspeed, -1, 1))
}

// updateBank applies the bank first-order lag with optional rate limiting
// and returns the applied bank rate.
func (u *UAV) updateBank(dt float64) float64 {
	bank := u.position.AtVec(3)
	if u.cfg.BankTimeConstant == nil {
		// No lateral dynamics: the command takes effect immediately.
		u.position.SetVec(3, u.bankCmd)
		return 0
	}
	rate := (u.bankCmd - bank) / *u.cfg.BankTimeConstant
	if u.cfg.BankRateLimit != nil {
		rate = clamp(rate, -*u.cfg.BankRateLimit, *u.cfg.BankRateLimit)
	}
	u.position.SetVec(3, bank+rate*dt)
	return rate
}

// updateSpeed applies the airspeed first-order lag with optional
// longitudinal acceleration limiting.
func (u *UAV) updateSpeed(dt float64) {
	if !u.hasAirspeed {
		return
	}
	if u.cfg.SpeedTimeConstant == nil {
		u.airspeed = u.airspeedCmd
		return
	}
	accel := (u.airspeedCmd - u.airspeed) / *u.cfg.SpeedTimeConstant
	if u.cfg.LonAccelLimit != nil {
		accel = clamp(accel, -*u.cfg.LonAccelLimit, *u.cfg.LonAccelLimit)
	}
	u.airspeed += accel * dt
}

// updateClimb applies the altitude first-order lag with optional vertical
// slope limiting and returns the climb rate (positive up).
func (u *UAV) updateClimb() float64 {
	if u.cfg.AltTimeConstant == nil || !u.hasAltitude {
		// Without altitude dynamics the vertical rate carries over.
		return -u.velocity.AtVec(2) + u.wind.Z
	}
	alt := -u.position.AtVec(2)
	rate := (u.altitudeCmd - alt) / *u.cfg.AltTimeConstant
	if u.cfg.VertSlopeLimit != nil {
		lim := *u.cfg.VertSlopeLimit * math.Max(u.airspeed, airspeedEps)
		rate = clamp(rate, -lim, lim)
	}
	return rate
}

func (u *UAV) snapshot() State {
	return State{
		Position: r3.Vector{
			X: u.position.AtVec(0),
			Y: u.position.AtVec(1),
			Z: u.position.AtVec(2),
		},
		Roll:  u.position.AtVec(3),
		Pitch: u.position.AtVec(4),
		Yaw:   u.position.AtVec(5),
		Velocity: r3.Vector{
			X: u.velocity.AtVec(0),
			Y: u.velocity.AtVec(1),
			Z: u.velocity.AtVec(2),
		},
		Airspeed:      u.airspeed,
		AngleOfAttack: u.angleOfAttack,
		Sideslip:      u.sideslip,
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
