// Package formation implements the multi-vehicle trajectory controller:
// a time-indexed leader trajectory plus per-participant offsets, projected
// into each vehicle's navigation frame. Concrete formation-control laws
// plug in through the Behavior interface.
package formation

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"

	"github.com/golang/geo/r3"

	"github.com/auvkit/gnc/control"
	"github.com/auvkit/gnc/msg"
)

// Fatal configuration errors: a formation-start message that trips one of
// these never becomes active.
var (
	// ErrNotParticipant is returned when the local vehicle's address is
	// absent from the participant list.
	ErrNotParticipant = errors.New("local vehicle is not part of the formation")
	// ErrEmptyTrajectory is returned when the formation message carries no
	// trajectory points.
	ErrEmptyTrajectory = errors.New("formation trajectory is empty")
)

// indexUnknown is returned by FormationIndex for unknown addresses.
const indexUnknown = -1

// Behavior is the formation-control law plugged into a Controller. Hooks
// receive the controller to access the trajectory and dispatch helpers.
type Behavior interface {
	// Step is invoked at the control period once the initial approach has
	// completed.
	Step(c *Controller, es *msg.EstimatedState)
	// OnUpdate is invoked on every peer state update.
	OnUpdate(c *Controller, index int, rs *msg.RemoteState)
	// OnPathCompletion is invoked when a dispatched path ends. Not called
	// during the approach stage.
	OnPathCompletion(c *Controller)
}

// InitHandler is implemented by behaviors that inspect the formation
// message on maneuver startup.
type InitHandler interface {
	OnInit(c *Controller, vf *msg.VehicleFormation)
}

// ResetHandler is implemented by behaviors with state to drop on maneuver
// deactivation.
type ResetHandler interface {
	OnReset()
}

// Controller owns the trajectory, the participant table and the approach
// state of one formation maneuver activation. Not safe for concurrent use.
type Controller struct {
	localAddr  uint16
	cperiod    float64
	behavior   Behavior
	dispatcher control.Dispatcher
	clk        clock.Clock
	logger     golog.Logger

	traj         []msg.TrajectoryPoint
	participants []msg.FormationParticipant
	addrToIndex  map[uint16]int
	fidx         int
	ref          *geo.Point

	active   bool
	approach bool
	wasNear  bool
	lastStep float64
	speedRef msg.DesiredSpeed
}

// NewController wires a behavior into a formation controller. The control
// period bounds how often Step runs.
func NewController(
	localAddr uint16,
	controlPeriod float64,
	behavior Behavior,
	dispatcher control.Dispatcher,
	logger golog.Logger,
) (*Controller, error) {
	if behavior == nil {
		return nil, errors.New("a formation behavior is required")
	}
	if dispatcher == nil {
		return nil, errors.New("a dispatcher is required")
	}
	if controlPeriod <= 0 {
		return nil, errors.New("control period must be positive")
	}
	return &Controller{
		localAddr:  localAddr,
		cperiod:    controlPeriod,
		behavior:   behavior,
		dispatcher: dispatcher,
		clk:        clock.New(),
		logger:     logger,
		fidx:       indexUnknown,
	}, nil
}

// ConsumeVehicleFormation starts a new formation maneuver. The participant
// table and trajectory are rebuilt wholesale; a previous activation is torn
// down first, reset hook included. Configuration errors abort the startup.
func (c *Controller) ConsumeVehicleFormation(vf *msg.VehicleFormation) error {
	if c.active {
		c.teardown()
	} else {
		c.reset()
	}

	if err := c.initParticipants(vf); err != nil {
		return err
	}
	if err := c.initTrajectory(vf); err != nil {
		return err
	}

	c.ref = geo.NewPoint(vf.Lat*180/math.Pi, vf.Lon*180/math.Pi)
	c.active = true
	c.approach = true
	c.speedRef = msg.DesiredSpeed{Value: vf.Speed, Units: vf.SpeedUnits}

	if h, ok := c.behavior.(InitHandler); ok {
		h.OnInit(c, vf)
	}

	// Head for our own slot at the first trajectory point.
	first := c.Point(0, c.fidx)
	c.DesiredSpeed(c.speedRef.Value, c.speedRef.Units)
	c.DesiredPath(first, first, 0)

	c.logger.Infof("formation started: %d participants, %d points, index %d",
		len(c.participants), len(c.traj), c.fidx)
	return nil
}

func (c *Controller) initParticipants(vf *msg.VehicleFormation) error {
	c.participants = append([]msg.FormationParticipant(nil), vf.Participants...)
	c.addrToIndex = make(map[uint16]int, len(c.participants))
	c.fidx = indexUnknown
	for i, p := range c.participants {
		c.addrToIndex[p.Addr] = i
		if p.Addr == c.localAddr {
			c.fidx = i
		}
	}
	if c.fidx == indexUnknown {
		return ErrNotParticipant
	}
	return nil
}

func (c *Controller) initTrajectory(vf *msg.VehicleFormation) error {
	if len(vf.Trajectory) == 0 {
		return ErrEmptyTrajectory
	}
	c.traj = append([]msg.TrajectoryPoint(nil), vf.Trajectory...)
	return nil
}

// Deactivate ends the maneuver and drops all per-activation state.
func (c *Controller) Deactivate() {
	if !c.active {
		return
	}
	c.teardown()
	c.logger.Info("formation maneuver deactivated")
}

// teardown drops the activation state and lets the behavior do the same.
func (c *Controller) teardown() {
	c.reset()
	if h, ok := c.behavior.(ResetHandler); ok {
		h.OnReset()
	}
}

func (c *Controller) reset() {
	c.traj = nil
	c.participants = nil
	c.addrToIndex = nil
	c.fidx = indexUnknown
	c.ref = nil
	c.active = false
	c.approach = false
	c.wasNear = false
	c.lastStep = -1
}

// TrajectoryPoints returns the number of points in the trajectory.
func (c *Controller) TrajectoryPoints() int {
	return len(c.traj)
}

// Participants returns the number of participants in the formation.
func (c *Controller) Participants() int {
	return len(c.participants)
}

// Participant returns the configuration of a vehicle in the formation.
func (c *Controller) Participant(index int) msg.FormationParticipant {
	return c.participants[index]
}

// Self returns the local vehicle's participant configuration.
func (c *Controller) Self() msg.FormationParticipant {
	return c.participants[c.fidx]
}

// FormationIndex returns the local vehicle's formation index.
func (c *Controller) FormationIndex() int {
	return c.fidx
}

// IndexOf returns the formation index of an address, or -1 when the
// address is not part of the formation.
func (c *Controller) IndexOf(addr uint16) int {
	idx, ok := c.addrToIndex[addr]
	if !ok {
		return indexUnknown
	}
	return idx
}

// ControlPeriod returns the control step period in seconds.
func (c *Controller) ControlPeriod() float64 {
	return c.cperiod
}

// IsApproaching reports whether the maneuver is still moving to the
// initial trajectory point.
func (c *Controller) IsApproaching() bool {
	return c.approach
}

// Point returns trajectory point tIndex, displaced by participant fIndex's
// offsets rotated into the trajectory's local bearing frame. A negative
// fIndex returns the undisplaced point.
func (c *Controller) Point(tIndex, fIndex int) msg.TrajectoryPoint {
	p := c.traj[tIndex]
	if fIndex < 0 {
		return p
	}

	part := c.participants[fIndex]
	sin, cos := math.Sincos(c.segmentBearing(tIndex))
	p.X += part.OffAlong*cos - part.OffCross*sin
	p.Y += part.OffAlong*sin + part.OffCross*cos
	p.Z += part.OffZ
	return p
}

// segmentBearing returns the trajectory direction at a point, taken from
// the segment leaving it (or arriving at it, for the last point).
func (c *Controller) segmentBearing(tIndex int) float64 {
	i, j := tIndex, tIndex+1
	if j >= len(c.traj) {
		i, j = tIndex-1, tIndex
		if i < 0 {
			return 0
		}
	}
	return math.Atan2(c.traj[j].Y-c.traj[i].Y, c.traj[j].X-c.traj[i].X)
}

// ConsumeRemoteState feeds a peer state update to the behavior. Updates
// from addresses outside the formation are dropped.
func (c *Controller) ConsumeRemoteState(rs *msg.RemoteState) {
	if !c.active {
		return
	}
	idx := c.IndexOf(rs.Addr)
	if idx == indexUnknown {
		c.logger.Debugf("ignoring remote state from unknown address %d", rs.Addr)
		return
	}
	c.behavior.OnUpdate(c, idx, rs)
}

// ConsumeEstimatedState runs one behavior step, rate limited to the
// control period. No steps run during the approach stage.
func (c *Controller) ConsumeEstimatedState(es *msg.EstimatedState) {
	if !c.active || c.approach {
		return
	}
	now := c.now()
	if c.lastStep >= 0 && now-c.lastStep < c.cperiod {
		return
	}
	c.lastStep = now
	c.behavior.Step(c, es)
}

// ConsumePathControlState watches for path completion. The first
// completion ends the approach stage; later ones are forwarded to the
// behavior.
func (c *Controller) ConsumePathControlState(pcs *msg.PathControlState) {
	if !c.active {
		return
	}
	near := pcs.Near
	defer func() { c.wasNear = near }()
	if !near || c.wasNear {
		return
	}
	if c.approach {
		c.approach = false
		c.logger.Info("approach complete, formation control running")
		return
	}
	c.behavior.OnPathCompletion(c)
}

// DesiredPath dispatches a path between two trajectory-frame points. A
// positive radius selects a loiter around end.
func (c *Controller) DesiredPath(start, end msg.TrajectoryPoint, radius float64) {
	dp := msg.DesiredPath{
		Start:      r3.Vector{X: start.X, Y: start.Y, Z: start.Z},
		End:        r3.Vector{X: end.X, Y: end.Y, Z: end.Z},
		StartPoint: true,
		Speed:      c.speedRef.Value,
		SpeedUnits: c.speedRef.Units,
		EndZ:       end.Z,
		EndZUnits:  msg.ZDepth,
		HasZ:       true,
	}
	if radius > 0 {
		dp.LoiterRadius = radius
	}
	c.dispatcher.Dispatch(&dp)
}

// DesiredSpeed dispatches and records a speed reference.
func (c *Controller) DesiredSpeed(value float64, units msg.SpeedUnits) {
	c.speedRef = msg.DesiredSpeed{Value: value, Units: units}
	c.dispatcher.Dispatch(&msg.DesiredSpeed{Value: value, Units: units})
}

// ToLocalCoordinates converts geodetic coordinates (radians) into the
// formation's local tangent-plane frame, meters. The frame is anchored at
// the reference fixed by the formation-start message.
func (c *Controller) ToLocalCoordinates(lat, lon float64) (x, y float64) {
	pt := geo.NewPoint(lat*180/math.Pi, lon*180/math.Pi)
	rng := c.ref.GreatCircleDistance(pt) * 1000.0
	bearing := c.ref.BearingTo(pt) * math.Pi / 180
	return rng * math.Cos(bearing), rng * math.Sin(bearing)
}

func (c *Controller) now() float64 {
	return float64(c.clk.Now().UnixNano()) / float64(time.Second)
}
