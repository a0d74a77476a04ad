package control

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"

	"github.com/auvkit/gnc/coords"
	"github.com/auvkit/gnc/msg"
)

// Dispatcher delivers outbound messages (references, state reports) to the
// rest of the control stack. Implementations must not retain the message
// past the call.
type Dispatcher interface {
	Dispatch(m any)
}

// ErrorSink receives fault reports from the controller. The supervisory
// layer implements it to force the vehicle into a safe mode.
type ErrorSink interface {
	SignalError(err error)
}

// LoopConfigurator lets guidance laws switch low-level control loops on
// and off mid-path.
type LoopConfigurator interface {
	EnableLoops(mask msg.LoopMask)
	DisableLoops(mask msg.LoopMask)
}

// Law computes actuation references from the tracking geometry. Step is
// invoked once per control period while a path is being tracked and the
// controller is neither braking nor in error.
type Law interface {
	Step(es *msg.EstimatedState, ts *TrackingState)
}

// StartupHandler is implemented by laws that want to be notified when a
// new path starts. Several paths may start between one activation and the
// matching deactivation.
type StartupHandler interface {
	OnPathStartup(es *msg.EstimatedState, ts *TrackingState)
}

// ActivationHandler is implemented by laws that enable loops of their own
// on path control activation.
type ActivationHandler interface {
	OnPathActivation(loops LoopConfigurator)
	OnPathDeactivation(loops LoopConfigurator)
}

// LoiterLaw is implemented by laws that override the default circular
// loiter behavior.
type LoiterLaw interface {
	Loiter(es *msg.EstimatedState, ts *TrackingState)
}

// ZControlLaw is implemented by laws that manage their own depth or
// altitude references. Otherwise the controller fires the path's Z
// reference at path startup.
type ZControlLaw interface {
	HasSpecificZControl() bool
}

// State identifies the controller's position in its life cycle.
type State uint8

// The controller life cycle. Error is orthogonal to these and reported
// separately (see InError).
const (
	StateIdle = State(iota)
	StateSetup
	StateTracking
	StateBraking
)

func (s State) String() string {
	switch s {
	case StateSetup:
		return "setup"
	case StateTracking:
		return "tracking"
	case StateBraking:
		return "braking"
	default:
		return "idle"
	}
}

// Controller is the generic path-following state machine. It is not safe
// for concurrent use; the surrounding dispatch loop must deliver at most
// one message at a time.
type Controller struct {
	cfg        Config
	law        Law
	dispatcher Dispatcher
	sink       ErrorSink
	clk        clock.Clock
	logger     golog.Logger

	ts     TrackingState
	atm    *alongTrackMonitor
	ctm    *crossTrackMonitor
	btrack *bottomTracker

	estate    msg.EstimatedState
	haveState bool
	path      msg.DesiredPath
	havePath  bool
	endRadius float64

	zref     msg.DesiredZ
	speedRef msg.DesiredSpeed

	active  bool
	braking bool
	inError bool

	// aloops mirrors the loops currently up in the stack; enabled tracks
	// the ones this controller switched on. Deactivation stands down their
	// intersection, leaving externally disabled loops alone.
	aloops  msg.LoopMask
	enabled msg.LoopMask

	lastStep   float64
	lastReport float64
}

// NewController wires a guidance law into a path controller. The sink may
// be nil when no supervisory layer is present.
func NewController(
	cfg Config,
	law Law,
	dispatcher Dispatcher,
	sink ErrorSink,
	logger golog.Logger,
) (*Controller, error) {
	if err := cfg.Validate("control"); err != nil {
		return nil, err
	}
	if law == nil {
		return nil, errNilLaw
	}
	if dispatcher == nil {
		return nil, errNilDispatcher
	}
	c := &Controller{
		cfg:        cfg,
		law:        law,
		dispatcher: dispatcher,
		sink:       sink,
		clk:        clock.New(),
		logger:     logger,
		atm:        newAlongTrackMonitor(cfg.AlongTrack),
		ctm:        newCrossTrackMonitor(cfg.CrossTrack),
		lastStep:   notStarted,
		lastReport: notStarted,
	}
	c.btrack = newBottomTracker(cfg.BottomTrack, dispatcher, logger)
	return c, nil
}

// State returns the controller's current life-cycle state.
func (c *Controller) State() State {
	switch {
	case c.braking:
		return StateBraking
	case c.active && c.havePath:
		return StateTracking
	case c.active:
		return StateSetup
	default:
		return StateIdle
	}
}

// InError reports whether a fault is latched. Cleared on the next
// activation.
func (c *Controller) InError() bool {
	return c.inError
}

// TrackingState returns a copy of the current tracking geometry.
func (c *Controller) TrackingState() TrackingState {
	return c.ts
}

// EnableLoops dispatches a control loop enable request and remembers the
// mask for automatic disabling on deactivation.
func (c *Controller) EnableLoops(mask msg.LoopMask) {
	c.enabled |= mask
	c.aloops |= mask
	c.dispatcher.Dispatch(&msg.ControlLoops{Enable: true, Mask: mask})
}

// DisableLoops dispatches a control loop disable request. Only needed when
// the control mode changes mid-path; deactivation disables automatically.
func (c *Controller) DisableLoops(mask msg.LoopMask) {
	c.enabled &^= mask
	c.aloops &^= mask
	c.dispatcher.Dispatch(&msg.ControlLoops{Enable: false, Mask: mask})
}

// standDown disables the loops this controller enabled that are still up
// in the stack. Loops already stood down externally are left alone.
func (c *Controller) standDown() {
	if down := c.enabled & c.aloops; down != msg.LoopNone {
		c.DisableLoops(down)
	}
	c.enabled = msg.LoopNone
}

// ConsumeControlLoops tracks which loops are active in the stack and
// drives activation when the path loop itself is switched.
func (c *Controller) ConsumeControlLoops(cl *msg.ControlLoops) {
	if cl.Enable {
		c.aloops |= cl.Mask
	} else {
		c.aloops &^= cl.Mask
	}

	if cl.Mask&msg.LoopPath == 0 {
		return
	}
	if cl.Enable && !c.active {
		c.activate()
	} else if !cl.Enable && c.active {
		c.deactivate()
	}
}

func (c *Controller) activate() {
	c.active = true
	c.inError = false
	c.havePath = false
	c.atm.reset()
	c.ctm.reset()
	c.lastStep = notStarted
	c.logger.Info("path control activated")
	if h, ok := c.law.(ActivationHandler); ok {
		h.OnPathActivation(c)
	}
}

func (c *Controller) deactivate() {
	c.active = false
	c.havePath = false
	c.braking = false
	if h, ok := c.law.(ActivationHandler); ok {
		h.OnPathDeactivation(c)
	}
	// Anything this controller enabled goes down with it.
	c.standDown()
	c.atm.reset()
	c.ctm.reset()
	c.logger.Info("path control deactivated")
}

// ConsumeBrake handles a controlled-stop request. Braking does not
// interrupt an in-flight step; it takes effect on the next cycle. Only
// meaningful under active path control.
func (c *Controller) ConsumeBrake(b *msg.Brake) {
	if b.Start {
		if !c.active || c.braking {
			return
		}
		c.braking = true
		c.dispatcher.Dispatch(&msg.DesiredSpeed{Value: 0, Units: c.speedRef.Units})
		c.logger.Warn("braking: holding new path activations")
		return
	}
	if !c.braking {
		return
	}
	c.braking = false
	// Tracking resumes at the retained speed reference.
	if c.havePath {
		c.dispatcher.Dispatch(&msg.DesiredSpeed{Value: c.speedRef.Value, Units: c.speedRef.Units})
	}
	c.logger.Info("braking done")
	c.reportPathControlState(true)
}

// ConsumeDesiredPath validates and installs a new path segment. Rejected
// while braking.
func (c *Controller) ConsumeDesiredPath(dp *msg.DesiredPath) {
	if c.braking {
		c.logger.Warn("discarding path command received while braking")
		return
	}
	if dp.LoiterRadius < 0 {
		c.signalError(errNegativeLoiterRadius)
		return
	}

	start := dp.Start
	if !dp.StartPoint && c.haveState {
		start = c.estate.Position()
	}

	if dp.Loitering() {
		c.ts.setLoiter(start, dp.End, dp.LoiterRadius, dp.LoiterClockwise)
	} else {
		c.ts.setSegment(start, dp.End)
	}

	c.endRadius = dp.EndRadius
	if c.endRadius <= 0 {
		c.endRadius = c.cfg.EndRadius
	}

	now := c.now()
	c.ts.StartTime = now
	c.ts.EndTime = notStarted
	c.ts.ETA = etaUnknown
	c.ts.ZControl = dp.HasZ

	c.path = *dp
	c.havePath = true
	c.inError = false

	// New segment, fresh divergence baseline.
	c.atm.reset()
	c.ctm.reset()

	c.speedRef = msg.DesiredSpeed{Value: dp.Speed, Units: dp.SpeedUnits}
	c.dispatcher.Dispatch(&msg.DesiredSpeed{Value: dp.Speed, Units: dp.SpeedUnits})
	if dp.HasZ && !c.hasSpecificZControl() {
		c.zref = msg.DesiredZ{Value: dp.EndZ, Units: dp.EndZUnits}
		c.btrack.consumeDesiredZ(&c.zref)
		c.dispatcher.Dispatch(&msg.DesiredZ{Value: dp.EndZ, Units: dp.EndZUnits})
	}

	if c.haveState {
		c.ts.Now = now
		c.ts.update(&c.estate, c.cfg.CourseControl, c.endRadius)
		if h, ok := c.law.(StartupHandler); ok {
			h.OnPathStartup(&c.estate, &c.ts)
		}
	}

	c.logger.Debugf("new path: bearing=%.3f length=%.1f loiter=%t",
		c.ts.TrackBearing, c.ts.TrackLength, c.ts.Loitering)
	c.reportPathControlState(true)
}

// ConsumeEstimatedState is the controller's clock: each delivery may
// recompute the tracking geometry, run the divergence monitors and invoke
// the guidance law, rate limited to the control period.
func (c *Controller) ConsumeEstimatedState(es *msg.EstimatedState) {
	c.estate = *es
	c.haveState = true
	c.btrack.consumeEstimatedState(es)

	if !c.active || !c.havePath {
		return
	}

	now := c.now()
	if c.lastStep != notStarted && now-c.lastStep < c.cfg.ControlPeriod {
		return
	}
	if c.lastStep != notStarted {
		c.ts.Delta = now - c.lastStep
	} else {
		c.ts.Delta = 0
	}
	c.ts.Now = now
	c.lastStep = now

	c.ts.update(es, c.cfg.CourseControl, c.endRadius)
	if c.ts.ETA >= 0 {
		c.ts.EndTime = now + c.ts.ETA
	} else {
		c.ts.EndTime = notStarted
	}

	if !c.braking && !c.inError {
		c.monitorDivergence(now)
	}

	if !c.braking && !c.inError {
		if c.ts.Loitering {
			c.stepLoiter(es)
		} else {
			c.law.Step(es, &c.ts)
		}
	}

	c.reportPathControlState(false)
}

func (c *Controller) monitorDivergence(now float64) {
	c.atm.update(now, &c.ts)
	c.ctm.update(now, &c.ts)

	// Errors always win over in-progress commands.
	if c.atm.diverging {
		c.signalError(ErrAlongTrackDivergence)
	} else if c.ctm.diverging {
		c.signalError(ErrCrossTrackDivergence)
	}
}

func (c *Controller) stepLoiter(es *msg.EstimatedState) {
	if l, ok := c.law.(LoiterLaw); ok {
		l.Loiter(es, &c.ts)
		return
	}
	c.defaultLoiter(es, &c.ts)
}

// defaultLoiter steers tangentially around the loiter circle, biased
// inward or outward by the radial error.
func (c *Controller) defaultLoiter(es *msg.EstimatedState, ts *TrackingState) {
	ref := math.Pi/2 + math.Atan(2*(ts.Range-ts.Loiter.Radius)/ts.Loiter.Radius)
	if !ts.Loiter.Clockwise {
		ref = -ref
	}
	ref += math.Pi + ts.LOSAngle
	if ts.CourseControl {
		ref += es.Psi - ts.Course
	}
	c.dispatcher.Dispatch(&msg.DesiredHeading{Value: coords.NormalizeRadians(ref)})
}

// ConsumeNavigationUncertainty widens the cross-track tolerance with the
// navigation filter's confidence.
func (c *Controller) ConsumeNavigationUncertainty(nu *msg.NavigationUncertainty) {
	c.ctm.navUncertainty = nu.Value
}

// ConsumeDistance feeds bottom range measurements to the bottom tracker.
func (c *Controller) ConsumeDistance(d *msg.Distance) {
	c.btrack.consumeDistance(d)
}

// ConsumeDesiredZ updates the vertical reference used when the law does
// not manage its own Z control.
func (c *Controller) ConsumeDesiredZ(z *msg.DesiredZ) {
	c.zref = *z
	c.btrack.consumeDesiredZ(z)
}

// ConsumeDesiredSpeed updates the speed reference.
func (c *Controller) ConsumeDesiredSpeed(s *msg.DesiredSpeed) {
	c.speedRef = *s
}

// signalError latches the fault, stands down every loop this controller
// enabled and notifies the supervisory layer. The controller never
// terminates the process; it degrades to a non-maneuvering state.
func (c *Controller) signalError(err error) {
	c.logger.Errorw("path control error", "error", err)
	c.inError = true
	c.standDown()
	if c.sink != nil {
		c.sink.SignalError(err)
	}
	c.reportPathControlState(true)
}

// reportPathControlState publishes the tracking summary, throttled to the
// report period unless forced.
func (c *Controller) reportPathControlState(force bool) {
	now := c.now()
	if !force && c.lastReport != notStarted && now-c.lastReport < c.cfg.ReportPeriod {
		return
	}
	c.lastReport = now

	pcs := msg.PathControlState{
		Start:         c.ts.Start,
		End:           c.ts.End,
		LostrackAng:   c.ts.LOSAngle,
		AlongTrackPos: c.ts.TrackPos.X,
		CrossTrackPos: c.ts.TrackPos.Y,
		AlongTrackVel: c.ts.TrackVel.X,
		CrossTrackVel: c.ts.TrackVel.Y,
		ETA:           c.ts.ETA,
		Near:          c.ts.Nearby,
		Loitering:     c.ts.Loitering,
	}
	c.dispatcher.Dispatch(&pcs)
}

func (c *Controller) hasSpecificZControl() bool {
	if z, ok := c.law.(ZControlLaw); ok {
		return z.HasSpecificZControl()
	}
	return false
}

func (c *Controller) now() float64 {
	return float64(c.clk.Now().UnixNano()) / float64(time.Second)
}
