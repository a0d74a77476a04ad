package control

import (
	"math"

	"github.com/golang/geo/r3"

	"github.com/auvkit/gnc/coords"
	"github.com/auvkit/gnc/msg"
)

// etaUnknown marks an undefined time-to-arrival estimate.
const etaUnknown = -1.0

// speedEps is the minimum speed considered meaningful for ETA computation.
const speedEps = 1e-3

// LoiterState describes the circular holding pattern of a loiter segment.
type LoiterState struct {
	Center    r3.Vector
	Radius    float64
	Clockwise bool
}

// TrackingState captures the vehicle's relationship to the active path
// segment. It is recomputed from scratch on every control step; callers
// must not retain references across steps.
type TrackingState struct {
	// Now is the wall clock time of this evaluation, epoch seconds.
	Now float64
	// Delta is the time since the previous evaluation.
	Delta float64
	// StartTime and EndTime delimit the segment's execution, epoch seconds.
	StartTime float64
	EndTime   float64
	// ETA is the estimated time to arrival in seconds, etaUnknown when the
	// current speed does not allow an estimate.
	ETA float64

	// Start and End are the segment waypoints. For a loiter segment End is
	// the loiter center.
	Start r3.Vector
	End   r3.Vector

	// TrackBearing and TrackLength are derived from Start and End and are
	// only ever updated together with them.
	TrackBearing float64
	TrackLength  float64

	// Range and LOSAngle relate the current position to End.
	Range    float64
	LOSAngle float64

	// Course and Speed are ground course/speed when course control is on,
	// yaw and longitudinal body speed otherwise.
	Course      float64
	Speed       float64
	CourseError float64

	// TrackPos holds along-track (X), cross-track (Y) and vertical (Z)
	// positions; TrackVel the matching velocity components.
	TrackPos r3.Vector
	TrackVel r3.Vector

	// Loiter is only meaningful while Loitering is set.
	Loiter LoiterState

	ZControl      bool
	Loitering     bool
	Nearby        bool
	CourseControl bool
}

// setSegment installs a new straight segment and rederives the track frame.
func (ts *TrackingState) setSegment(start, end r3.Vector) {
	ts.Start = start
	ts.End = end
	ts.TrackBearing, ts.TrackLength = coords.BearingAndRange(start, end)
	ts.Loitering = false
	ts.Loiter = LoiterState{}
	ts.Nearby = false
}

// setLoiter installs a loiter segment around center.
func (ts *TrackingState) setLoiter(start, center r3.Vector, radius float64, clockwise bool) {
	ts.Start = start
	ts.End = center
	ts.TrackBearing, ts.TrackLength = coords.BearingAndRange(start, center)
	ts.Loiter = LoiterState{Center: center, Radius: radius, Clockwise: clockwise}
	ts.Loitering = true
	ts.Nearby = false
}

// update recomputes the position-dependent geometry from a navigation
// estimate. Segment data (Start/End/TrackBearing/TrackLength) is left
// untouched.
func (ts *TrackingState) update(es *msg.EstimatedState, courseControl bool, endRadius float64) {
	pos := es.Position()

	if courseControl {
		ts.Course = es.GroundCourse()
		ts.Speed = es.GroundSpeed()
	} else {
		ts.Course = es.Psi
		ts.Speed = es.U
	}
	ts.CourseControl = courseControl
	ts.CourseError = coords.NormalizeRadians(ts.Course - ts.TrackBearing)

	ts.LOSAngle, ts.Range = coords.BearingAndRange(pos, ts.End)

	along, cross := coords.TrackPosition(ts.Start, ts.TrackBearing, pos)
	ts.TrackPos = r3.Vector{X: along, Y: cross, Z: es.Z - ts.End.Z}

	valong, vcross := rotateToTrack(ts.TrackBearing, es.VX, es.VY)
	ts.TrackVel = r3.Vector{X: valong, Y: vcross, Z: es.VZ}

	if ts.Speed > speedEps {
		ts.ETA = ts.Range / ts.Speed
	} else {
		ts.ETA = etaUnknown
	}

	ts.Nearby = ts.Range <= endRadius
}

// rotateToTrack projects a ground-frame vector onto the track frame.
func rotateToTrack(bearing, vx, vy float64) (along, cross float64) {
	sin, cos := math.Sincos(bearing)
	return vx*cos + vy*sin, -vx*sin + vy*cos
}
