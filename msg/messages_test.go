package msg

import (
	"math"
	"testing"

	"go.viam.com/test"
)

func TestEstimatedStateDerivedValues(t *testing.T) {
	es := &EstimatedState{X: 1, Y: 2, Z: 3, VX: 3, VY: 4}

	test.That(t, es.Position().X, test.ShouldAlmostEqual, 1)
	test.That(t, es.Position().Z, test.ShouldAlmostEqual, 3)
	test.That(t, es.GroundSpeed(), test.ShouldAlmostEqual, 5)
	test.That(t, es.GroundCourse(), test.ShouldAlmostEqual, math.Atan2(4, 3))
}

func TestEstimatedStateAbsolute(t *testing.T) {
	// 41.18N 8.70W with a 1852m displacement due north: one arc minute
	// of latitude.
	es := &EstimatedState{Lat: 0.7188, Lon: -0.1518, X: 1852}
	pt := es.Absolute()
	test.That(t, pt.Lat(), test.ShouldAlmostEqual, 0.7188*180/math.Pi+1.0/60, 1e-3)
	test.That(t, pt.Lng(), test.ShouldAlmostEqual, -0.1518*180/math.Pi, 1e-6)
}

func TestLoopMasks(t *testing.T) {
	test.That(t, LoopYaw, test.ShouldEqual, LoopMask(1))
	test.That(t, LoopYawRate, test.ShouldEqual, LoopMask(2))
	test.That(t, LoopPath, test.ShouldEqual, LoopMask(128))
	test.That(t, LoopAll&LoopPath, test.ShouldEqual, LoopPath)
	test.That(t, LoopNone, test.ShouldEqual, LoopMask(0))
}

func TestDesiredPathLoitering(t *testing.T) {
	dp := &DesiredPath{}
	test.That(t, dp.Loitering(), test.ShouldBeFalse)
	dp.LoiterRadius = 25
	test.That(t, dp.Loitering(), test.ShouldBeTrue)
}

func TestOperationModeString(t *testing.T) {
	test.That(t, ModeService.String(), test.ShouldEqual, "service")
	test.That(t, ModeCalibration.String(), test.ShouldEqual, "calibration")
	test.That(t, ModeError.String(), test.ShouldEqual, "error")
	test.That(t, ModeManeuver.String(), test.ShouldEqual, "maneuvering")
	test.That(t, ModeExternal.String(), test.ShouldEqual, "external control")
}
