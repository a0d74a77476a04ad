package sim

import (
	"math"
	"testing"

	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"

	"github.com/golang/geo/r3"
)

func fp(v float64) *float64 { return &v }

func TestConfigValidate(t *testing.T) {
	test.That(t, (&Config{}).Validate(), test.ShouldBeNil)

	cfg := Config{BankTimeConstant: fp(1), SpeedTimeConstant: fp(2), AltTimeConstant: fp(3)}
	test.That(t, cfg.Validate(), test.ShouldBeNil)

	bad := Config{BankTimeConstant: fp(-1), SpeedTimeConstant: fp(2)}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = Config{AltTimeConstant: fp(0)}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	bad = Config{BankTimeConstant: fp(1), SpeedTimeConstant: fp(2), BankRateLimit: fp(-0.1)}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)

	// Bank and speed lags come as a pair.
	bad = Config{BankTimeConstant: fp(1)}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
	bad = Config{SpeedTimeConstant: fp(2)}
	test.That(t, bad.Validate(), test.ShouldNotBeNil)
}

func TestVectorSizeChecks(t *testing.T) {
	u, err := New(Config{})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, u.SetPosition(mat.NewVecDense(3, nil)), test.ShouldNotBeNil)
	test.That(t, u.SetVelocity(mat.NewVecDense(7, nil)), test.ShouldNotBeNil)
	test.That(t, u.SetPosition(mat.NewVecDense(6, nil)), test.ShouldBeNil)
	test.That(t, u.SetVelocity(mat.NewVecDense(6, nil)), test.ShouldBeNil)
}

// straight and level with zero bank must integrate to a straight line.
func TestStraightLineFlight(t *testing.T) {
	u, err := New(Config{})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, u.SetVelocity(mat.NewVecDense(6, []float64{18, 0, 0, 0, 0, 0})), test.ShouldBeNil)
	u.CommandBank(0)
	u.CommandAirspeed(18)

	var st State
	for i := 0; i < 100; i++ {
		st = u.Update(0.1)
	}
	test.That(t, st.Position.X, test.ShouldAlmostEqual, 180, 1e-6)
	test.That(t, st.Position.Y, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, st.Position.Z, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, st.Yaw, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, st.Airspeed, test.ShouldAlmostEqual, 18, 1e-9)
}

func TestWindDrift(t *testing.T) {
	u, err := New(Config{})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, u.SetVelocity(mat.NewVecDense(6, []float64{18, 3, 0, 0, 0, 0})), test.ShouldBeNil)
	u.SetWind(r3.Vector{Y: 3})
	u.CommandBank(0)
	u.CommandAirspeed(18)

	var st State
	for i := 0; i < 100; i++ {
		st = u.Update(0.1)
	}
	// The airframe flies north through the air mass while the wind
	// carries it east.
	test.That(t, st.Position.X, test.ShouldAlmostEqual, 180, 1e-6)
	test.That(t, st.Position.Y, test.ShouldAlmostEqual, 30, 1e-6)
	test.That(t, st.Airspeed, test.ShouldAlmostEqual, 18, 1e-9)
}

func TestCoordinatedTurnRate(t *testing.T) {
	u, err := New(Config{})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, u.SetVelocity(mat.NewVecDense(6, []float64{20, 0, 0, 0, 0, 0})), test.ShouldBeNil)
	bank := 0.3
	u.CommandBank(bank)
	u.CommandAirspeed(20)

	st := u.Update(0.01)
	// Without a bank lag the command applies immediately and the yaw rate
	// follows the coordinated turn relation.
	want := gravity * math.Tan(bank) / 20
	test.That(t, st.Roll, test.ShouldAlmostEqual, bank, 1e-9)
	test.That(t, st.Velocity.Z, test.ShouldAlmostEqual, 0, 1e-9)
	test.That(t, u.velocity.AtVec(5), test.ShouldAlmostEqual, want, 1e-9)
	test.That(t, st.Yaw, test.ShouldAlmostEqual, want*0.01, 1e-9)
}

func TestBankLagAndRateLimit(t *testing.T) {
	u, err := New(Config{
		BankTimeConstant:  fp(1),
		SpeedTimeConstant: fp(2),
		BankRateLimit:     fp(0.1),
	})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, u.SetVelocity(mat.NewVecDense(6, []float64{20, 0, 0, 0, 0, 0})), test.ShouldBeNil)
	u.CommandBank(1.0)
	u.CommandAirspeed(20)

	// The raw lag would demand 1 rad/s; the limit caps it at 0.1.
	st := u.Update(0.1)
	test.That(t, st.Roll, test.ShouldAlmostEqual, 0.01, 1e-9)

	// The bank converges to the command over many steps.
	for i := 0; i < 2000; i++ {
		st = u.Update(0.1)
	}
	test.That(t, st.Roll, test.ShouldAlmostEqual, 1.0, 1e-3)
}

func TestAirspeedLagAndAccelLimit(t *testing.T) {
	u, err := New(Config{
		BankTimeConstant:  fp(1),
		SpeedTimeConstant: fp(2),
		LonAccelLimit:     fp(0.5),
	})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, u.SetVelocity(mat.NewVecDense(6, []float64{10, 0, 0, 0, 0, 0})), test.ShouldBeNil)
	u.CommandBank(0)
	u.CommandAirspeed(20)

	// The raw lag would demand 5 m/s^2; the limit caps it at 0.5.
	st := u.Update(0.1)
	test.That(t, st.Airspeed, test.ShouldAlmostEqual, 10.05, 1e-9)

	for i := 0; i < 1000; i++ {
		st = u.Update(0.1)
	}
	test.That(t, st.Airspeed, test.ShouldAlmostEqual, 20, 1e-3)
}

func TestAltitudeLagAndSlopeLimit(t *testing.T) {
	u, err := New(Config{
		AltTimeConstant: fp(2),
		VertSlopeLimit:  fp(0.1),
	})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, u.SetVelocity(mat.NewVecDense(6, []float64{20, 0, 0, 0, 0, 0})), test.ShouldBeNil)
	u.CommandAirspeed(20)
	u.CommandAltitude(100)

	// The raw lag would demand 50 m/s of climb; the slope limit caps the
	// rate at 0.1 * airspeed = 2 m/s.
	st := u.Update(0.1)
	test.That(t, -st.Velocity.Z, test.ShouldAlmostEqual, 2, 1e-9)
	test.That(t, -st.Position.Z, test.ShouldAlmostEqual, 0.2, 1e-9)
	test.That(t, st.Pitch, test.ShouldBeGreaterThan, 0)

	for i := 0; i < 2000; i++ {
		st = u.Update(0.1)
	}
	test.That(t, -st.Position.Z, test.ShouldAlmostEqual, 100, 1e-2)
}

func TestAirDataAngles(t *testing.T) {
	u, err := New(Config{})
	test.That(t, err, test.ShouldBeNil)

	// Heading north with wind from the east: the relative wind gains a
	// +y component and the sideslip comes out positive.
	test.That(t, u.SetVelocity(mat.NewVecDense(6, []float64{20, 0, 0, 0, 0, 0})), test.ShouldBeNil)
	u.SetWind(r3.Vector{Y: -2})
	st := u.Update(0.001)
	test.That(t, st.Sideslip, test.ShouldBeGreaterThan, 0)
	test.That(t, st.Airspeed, test.ShouldAlmostEqual, math.Hypot(20, 2), 1e-6)
}

func TestCloneIndependence(t *testing.T) {
	u, err := New(Config{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, u.SetVelocity(mat.NewVecDense(6, []float64{20, 0, 0, 0, 0, 0})), test.ShouldBeNil)
	u.CommandAirspeed(20)

	fork := u.Clone()
	fork.CommandBank(0.5)
	for i := 0; i < 50; i++ {
		fork.Update(0.1)
	}

	// The original is untouched by the fork's evolution.
	test.That(t, u.Position().AtVec(0), test.ShouldAlmostEqual, 0)
	test.That(t, u.Position().AtVec(3), test.ShouldAlmostEqual, 0)

	st := u.Update(0.1)
	test.That(t, st.Yaw, test.ShouldAlmostEqual, 0, 1e-9)
}

func TestReset(t *testing.T) {
	u, err := New(Config{})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, u.SetVelocity(mat.NewVecDense(6, []float64{20, 0, 0, 0, 0, 0})), test.ShouldBeNil)
	u.CommandBank(0.2)
	u.CommandAirspeed(25)
	u.Update(1)

	u.Reset()
	test.That(t, u.Airspeed(), test.ShouldAlmostEqual, 0)
	test.That(t, mat.Equal(u.Position(), mat.NewVecDense(6, nil)), test.ShouldBeTrue)
	test.That(t, mat.Equal(u.Velocity(), mat.NewVecDense(6, nil)), test.ShouldBeTrue)
}
