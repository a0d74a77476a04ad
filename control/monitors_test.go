package control

import (
	"testing"

	"go.viam.com/test"

	"github.com/golang/geo/r3"
)

func atmSample(trackLength, alongPos, courseErr, speed float64) *TrackingState {
	return &TrackingState{
		TrackLength: trackLength,
		TrackPos:    r3.Vector{X: alongPos},
		CourseError: courseErr,
		Speed:       speed,
	}
}

func TestAlongTrackMonitorDebounce(t *testing.T) {
	m := newAlongTrackMonitor(AlongTrackConfig{Period: 0.5, MinSpeed: 0.5, MinYaw: 1.0})
	test.That(t, m.enabled, test.ShouldBeTrue)

	// Baseline sample: no previous error to compare against.
	m.update(0, atmSample(100, 40, 2.0, 1.0))
	test.That(t, m.diverging, test.ShouldBeFalse)

	// One worsening sample must not trigger.
	m.update(1, atmSample(100, 35, 2.0, 1.0))
	test.That(t, m.diverging, test.ShouldBeFalse)

	// The second consecutive worsening sample latches.
	m.update(2, atmSample(100, 30, 2.0, 1.0))
	test.That(t, m.diverging, test.ShouldBeTrue)
}

func TestAlongTrackMonitorRecoverySample(t *testing.T) {
	m := newAlongTrackMonitor(AlongTrackConfig{Period: 0.5, MinSpeed: 0.5, MinYaw: 1.0})

	m.update(0, atmSample(100, 40, 2.0, 1.0))
	m.update(1, atmSample(100, 35, 2.0, 1.0))
	// A converging sample in between resets the debounce.
	m.update(2, atmSample(100, 45, 2.0, 1.0))
	m.update(3, atmSample(100, 40, 2.0, 1.0))
	test.That(t, m.diverging, test.ShouldBeFalse)
}

func TestAlongTrackMonitorConditions(t *testing.T) {
	t.Run("small course error", func(t *testing.T) {
		m := newAlongTrackMonitor(AlongTrackConfig{MinSpeed: 0.5, MinYaw: 1.0})
		m.update(0, atmSample(100, 40, 0.5, 1.0))
		m.update(1, atmSample(100, 35, 0.5, 1.0))
		m.update(2, atmSample(100, 30, 0.5, 1.0))
		test.That(t, m.diverging, test.ShouldBeFalse)
	})

	t.Run("slow vehicle", func(t *testing.T) {
		m := newAlongTrackMonitor(AlongTrackConfig{MinSpeed: 0.5, MinYaw: 1.0})
		m.update(0, atmSample(100, 40, 2.0, 0.3))
		m.update(1, atmSample(100, 35, 2.0, 0.3))
		m.update(2, atmSample(100, 30, 2.0, 0.3))
		test.That(t, m.diverging, test.ShouldBeFalse)
	})

	t.Run("loitering", func(t *testing.T) {
		m := newAlongTrackMonitor(AlongTrackConfig{MinSpeed: 0.5, MinYaw: 1.0})
		for i, x := range []float64{40, 35, 30} {
			ts := atmSample(100, x, 2.0, 1.0)
			ts.Loitering = true
			m.update(float64(i), ts)
		}
		test.That(t, m.diverging, test.ShouldBeFalse)
	})
}

func TestAlongTrackMonitorThrottle(t *testing.T) {
	m := newAlongTrackMonitor(AlongTrackConfig{Period: 10, MinSpeed: 0.5, MinYaw: 1.0})

	m.update(0, atmSample(100, 40, 2.0, 1.0))
	// Samples inside the period are skipped: still no baseline pair.
	m.update(1, atmSample(100, 35, 2.0, 1.0))
	m.update(2, atmSample(100, 30, 2.0, 1.0))
	test.That(t, m.diverging, test.ShouldBeFalse)

	m.update(10, atmSample(100, 25, 2.0, 1.0))
	test.That(t, m.diverging, test.ShouldBeFalse)
	m.update(20, atmSample(100, 20, 2.0, 1.0))
	test.That(t, m.diverging, test.ShouldBeTrue)
}

func TestAlongTrackMonitorOptOut(t *testing.T) {
	m := newAlongTrackMonitor(AlongTrackConfig{MinSpeed: 0, MinYaw: 1.0})
	test.That(t, m.enabled, test.ShouldBeFalse)

	m = newAlongTrackMonitor(AlongTrackConfig{MinSpeed: 0.5, MinYaw: -1})
	test.That(t, m.enabled, test.ShouldBeFalse)
}

func ctmSample(cross float64) *TrackingState {
	return &TrackingState{TrackPos: r3.Vector{Y: cross}}
}

func TestCrossTrackMonitorTimeDebounce(t *testing.T) {
	m := newCrossTrackMonitor(CrossTrackConfig{DistanceLimit: 10, TimeLimit: 5})

	// Jump over the limit at t=0 and stay there.
	m.update(0, ctmSample(15))
	test.That(t, m.diverging, test.ShouldBeFalse)
	m.update(4.9, ctmSample(15))
	test.That(t, m.diverging, test.ShouldBeFalse)
	m.update(5.1, ctmSample(15))
	test.That(t, m.diverging, test.ShouldBeTrue)

	// Latched until reset.
	m.update(6, ctmSample(0))
	test.That(t, m.diverging, test.ShouldBeTrue)
	m.reset()
	test.That(t, m.diverging, test.ShouldBeFalse)
}

func TestCrossTrackMonitorMomentaryExcursion(t *testing.T) {
	m := newCrossTrackMonitor(CrossTrackConfig{DistanceLimit: 10, TimeLimit: 5})

	m.update(0, ctmSample(15))
	m.update(4.9, ctmSample(5))
	test.That(t, m.diverging, test.ShouldBeFalse)

	// The onset clock restarts on the next excursion.
	m.update(6, ctmSample(15))
	m.update(10.9, ctmSample(15))
	test.That(t, m.diverging, test.ShouldBeFalse)
	m.update(11.1, ctmSample(15))
	test.That(t, m.diverging, test.ShouldBeTrue)
}

func TestCrossTrackMonitorUncertaintyScaling(t *testing.T) {
	m := newCrossTrackMonitor(CrossTrackConfig{DistanceLimit: 10, TimeLimit: 0, NavUncFactor: 1})
	m.navUncertainty = 2
	test.That(t, m.effectiveLimit(), test.ShouldAlmostEqual, 30)

	// Inside the widened limit: no divergence even past the time limit.
	m.update(0, ctmSample(15))
	m.update(100, ctmSample(15))
	test.That(t, m.diverging, test.ShouldBeFalse)

	m.update(101, ctmSample(35))
	m.update(102, ctmSample(35))
	test.That(t, m.diverging, test.ShouldBeTrue)
}

func TestCrossTrackMonitorOptOut(t *testing.T) {
	m := newCrossTrackMonitor(CrossTrackConfig{DistanceLimit: 0, TimeLimit: 5})
	test.That(t, m.enabled, test.ShouldBeFalse)
	m.update(0, ctmSample(1e6))
	m.update(100, ctmSample(1e6))
	test.That(t, m.diverging, test.ShouldBeFalse)
}
