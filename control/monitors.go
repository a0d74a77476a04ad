package control

import (
	"math"
)

// notStarted is the sentinel for "no divergence onset recorded".
const notStarted = -1.0

// alongTrackMonitor detects the vehicle moving away from the segment end
// along the track direction while it should be converging. The debounce is
// sample based: only two consecutive worsening samples latch the fault, so
// a legitimate turn-in maneuver does not trip it.
type alongTrackMonitor struct {
	enabled   bool
	diverging bool
	// pending is set after one worsening sample; the next one latches.
	pending bool

	period   float64
	minSpeed float64
	minYaw   float64

	lastTime float64
	lastErr  float64
}

func newAlongTrackMonitor(cfg AlongTrackConfig) *alongTrackMonitor {
	m := &alongTrackMonitor{
		// Non-positive thresholds are an explicit opt-out.
		enabled:  cfg.MinSpeed > 0 && cfg.MinYaw > 0,
		period:   cfg.Period,
		minSpeed: cfg.MinSpeed,
		minYaw:   cfg.MinYaw,
	}
	m.reset()
	return m
}

func (m *alongTrackMonitor) reset() {
	m.diverging = false
	m.pending = false
	m.lastTime = notStarted
	m.lastErr = math.NaN()
}

// update evaluates one tracking sample. Throttled to the monitor period.
func (m *alongTrackMonitor) update(now float64, ts *TrackingState) {
	if !m.enabled || ts.Loitering {
		return
	}
	if m.lastTime != notStarted && now-m.lastTime < m.period {
		return
	}

	// Remaining distance along the track; growing means moving backwards.
	err := ts.TrackLength - ts.TrackPos.X

	worsening := math.Abs(ts.CourseError) > m.minYaw &&
		ts.Speed > m.minSpeed &&
		err > m.lastErr // false on the first sample (lastErr is NaN)

	switch {
	case worsening && m.pending:
		m.diverging = true
	case worsening:
		m.pending = true
	default:
		m.pending = false
	}

	m.lastTime = now
	m.lastErr = err
}

// crossTrackMonitor detects sustained lateral departure from the track. The
// distance limit widens with navigation uncertainty and the fault only
// latches after the excursion persists past the time limit, filtering out
// momentary estimator jitter.
type crossTrackMonitor struct {
	enabled   bool
	diverging bool

	distanceLimit float64
	timeLimit     float64
	navUncFactor  float64

	navUncertainty    float64
	divergenceStarted float64
}

func newCrossTrackMonitor(cfg CrossTrackConfig) *crossTrackMonitor {
	m := &crossTrackMonitor{
		enabled:       cfg.DistanceLimit > 0,
		distanceLimit: cfg.DistanceLimit,
		timeLimit:     cfg.TimeLimit,
		navUncFactor:  cfg.NavUncFactor,
	}
	m.reset()
	return m
}

func (m *crossTrackMonitor) reset() {
	m.diverging = false
	m.divergenceStarted = notStarted
}

// effectiveLimit scales the configured distance limit by the current
// navigation uncertainty. Wider uncertainty means more tolerance, trading
// detection latency against false aborts.
func (m *crossTrackMonitor) effectiveLimit() float64 {
	return m.distanceLimit * (1 + m.navUncFactor*m.navUncertainty)
}

// update evaluates one tracking sample.
func (m *crossTrackMonitor) update(now float64, ts *TrackingState) {
	if !m.enabled || ts.Loitering {
		return
	}

	if math.Abs(ts.TrackPos.Y) > m.effectiveLimit() {
		if m.divergenceStarted == notStarted {
			m.divergenceStarted = now
		}
		if now-m.divergenceStarted > m.timeLimit {
			m.diverging = true
		}
		return
	}
	m.divergenceStarted = notStarted
}
