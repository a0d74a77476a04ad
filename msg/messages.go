// Package msg defines the message records exchanged between the guidance
// core and its collaborators. Transport and wire format are the caller's
// concern; these are plain in-memory values.
package msg

import (
	"math"

	geo "github.com/kellydunn/golang-geo"

	"github.com/golang/geo/r3"
)

// EstimatedState is the navigation estimate for the local vehicle. Positions
// are north-east-down offsets in meters from the lat/lon reference.
type EstimatedState struct {
	// Reference coordinates, radians.
	Lat float64
	Lon float64
	// Position offset from the reference, meters.
	X float64
	Y float64
	Z float64
	// Attitude, radians.
	Phi   float64
	Theta float64
	Psi   float64
	// Body-fixed frame velocities, m/s.
	U float64
	V float64
	W float64
	// Ground frame velocities, m/s.
	VX float64
	VY float64
	VZ float64
	// Depth below surface, meters (negative if not available).
	Depth float64
	// Altitude above bottom, meters (negative if not available).
	Alt float64
}

// Position returns the NED position offset as a vector.
func (es *EstimatedState) Position() r3.Vector {
	return r3.Vector{X: es.X, Y: es.Y, Z: es.Z}
}

// GroundVelocity returns the ground frame velocity as a vector.
func (es *EstimatedState) GroundVelocity() r3.Vector {
	return r3.Vector{X: es.VX, Y: es.VY, Z: es.VZ}
}

// GroundCourse returns the direction of travel over ground, radians.
func (es *EstimatedState) GroundCourse() float64 {
	return math.Atan2(es.VY, es.VX)
}

// GroundSpeed returns the horizontal speed over ground, m/s.
func (es *EstimatedState) GroundSpeed() float64 {
	return math.Hypot(es.VX, es.VY)
}

// Absolute resolves the local offset against the lat/lon reference and
// returns the vehicle's absolute coordinates in degrees.
func (es *EstimatedState) Absolute() *geo.Point {
	ref := geo.NewPoint(es.Lat*180/math.Pi, es.Lon*180/math.Pi)
	bearing, rng := math.Atan2(es.Y, es.X), math.Hypot(es.X, es.Y)
	return ref.PointAtDistanceAndBearing(rng/1000.0, bearing*180/math.Pi)
}

// Brake requests a controlled stop. It carries no payload; delivery is
// the signal.
type Brake struct {
	Start bool
}

// LoopMask identifies low-level control loops.
type LoopMask uint32

// The set of known control loops.
const (
	LoopYaw = LoopMask(1) << iota
	LoopYawRate
	LoopSpeed
	LoopDepth
	LoopAltitude
	LoopPitch
	LoopRoll
	LoopPath
)

// LoopNone and LoopAll address no loop and every loop respectively.
const (
	LoopNone = LoopMask(0)
	LoopAll  = LoopMask(math.MaxUint32)
)

// ControlLoops enables or disables a set of control loops.
type ControlLoops struct {
	Enable bool
	Mask   LoopMask
}

// SpeedUnits tags the unit of a speed reference.
type SpeedUnits uint8

// Recognized speed units.
const (
	SpeedMPS = SpeedUnits(iota)
	SpeedRPM
	SpeedPercent
)

// ZUnits tags the vertical reference frame of a Z reference.
type ZUnits uint8

// Recognized Z reference frames.
const (
	ZDepth = ZUnits(iota)
	ZAltitude
	ZHeight
)

// DesiredSpeed is a speed reference for the speed control loop.
type DesiredSpeed struct {
	Value float64
	Units SpeedUnits
}

// DesiredZ is a vertical reference for the depth/altitude control loops.
type DesiredZ struct {
	Value float64
	Units ZUnits
}

// DesiredHeading is a heading reference for the yaw control loop, radians.
type DesiredHeading struct {
	Value float64
}

// DesiredPath commands a new path segment. End is always meaningful; Start
// is only meaningful when the StartPoint flag is set, otherwise the segment
// begins wherever the vehicle currently is. A positive LoiterRadius turns
// the end point into a loiter center.
type DesiredPath struct {
	Start r3.Vector
	End   r3.Vector
	// Flags below.
	StartPoint bool
	Direct     bool

	Speed      float64
	SpeedUnits SpeedUnits

	EndZ      float64
	EndZUnits ZUnits
	// HasZ reports whether EndZ carries a usable vertical reference.
	HasZ bool

	// LoiterRadius > 0 selects loiter mode around End.
	LoiterRadius    float64
	LoiterClockwise bool

	// EndRadius is the arrival tolerance around the end point.
	EndRadius float64
}

// Loitering reports whether the path is a loiter command.
func (dp *DesiredPath) Loitering() bool {
	return dp.LoiterRadius > 0
}

// NavigationUncertainty carries the navigation filter's horizontal position
// uncertainty estimate, meters.
type NavigationUncertainty struct {
	Value float64
}

// Distance is a ranged measurement, e.g. from an altimeter or DVL.
type Distance struct {
	Value float64
	// Validity of the measurement.
	Valid bool
}

// PathControlState summarizes tracking progress for consumers such as
// maneuver supervisors.
type PathControlState struct {
	Start r3.Vector
	End   r3.Vector
	// LostrackAng is the line-of-sight angle to the end point.
	LostrackAng float64
	// Along/cross-track positions and velocities.
	AlongTrackPos float64
	CrossTrackPos float64
	AlongTrackVel float64
	CrossTrackVel float64
	// ETA in seconds; negative when unknown.
	ETA float64
	// Flags.
	Near      bool
	Loitering bool
}

// FormationParticipant describes one vehicle's slot in a formation.
type FormationParticipant struct {
	// Addr is the participant's network address.
	Addr uint16
	// Formation frame offsets, meters.
	OffAlong float64
	OffCross float64
	OffZ     float64
}

// TrajectoryPoint is a timed waypoint in the formation's local frame.
type TrajectoryPoint struct {
	X float64
	Y float64
	Z float64
	T float64
}

// VehicleFormation starts a formation maneuver: a leader trajectory plus
// per-vehicle offsets, anchored at a geodetic reference.
type VehicleFormation struct {
	// Reference coordinates, radians.
	Lat float64
	Lon float64

	Participants []FormationParticipant
	Trajectory   []TrajectoryPoint

	Speed      float64
	SpeedUnits SpeedUnits
}

// OperationMode enumerates the supervisory vehicle modes.
type OperationMode uint8

// The set of supervisory modes.
const (
	ModeService = OperationMode(iota)
	ModeCalibration
	ModeError
	ModeManeuver
	ModeExternal
)

func (m OperationMode) String() string {
	switch m {
	case ModeCalibration:
		return "calibration"
	case ModeError:
		return "error"
	case ModeManeuver:
		return "maneuvering"
	case ModeExternal:
		return "external control"
	default:
		return "service"
	}
}

// VehicleState is the supervisor's periodic mode report.
type VehicleState struct {
	OpMode        OperationMode
	ControlLoops  LoopMask
	ErrorCount    int
	LastError     string
	LastErrorTime float64
}

// Abort requests an immediate stop of all maneuvering.
type Abort struct{}

// RemoteState is a (possibly delayed) state report from a formation peer.
type RemoteState struct {
	Addr      uint16
	Lat       float64
	Lon       float64
	Depth     float64
	Speed     float64
	Psi       float64
	Timestamp float64
}
