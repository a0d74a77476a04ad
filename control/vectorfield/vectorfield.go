// Package vectorfield implements vector-field path following after
// Nelson, Barber, McLain and Beard, "Vector Field Path Following for
// Miniature Air Vehicles", Proc. ACC'06.
package vectorfield

import (
	"math"

	"github.com/edaniels/golog"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/auvkit/gnc/control"
	"github.com/auvkit/gnc/coords"
	"github.com/auvkit/gnc/msg"
)

// Config holds the vector-field law parameters.
type Config struct {
	// Corridor is the lateral corridor width, meters.
	Corridor float64 `json:"corridor_m"`
	// EntryAngle is the attack angle when the lateral error equals the
	// corridor width, radians.
	EntryAngle float64 `json:"entry_angle_rad"`
	// ExtControl enables the refined in-corridor control law.
	ExtControl bool `json:"ext_control"`
	// ExtGain and ExtTurnRateGain tune the refined law.
	ExtGain         float64 `json:"ext_gain"`
	ExtTurnRateGain float64 `json:"ext_turn_rate_gain"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	var errs error
	if cfg.Corridor < 1.0 || cfg.Corridor > 50.0 {
		errs = multierr.Combine(errs,
			goutils.NewConfigValidationFieldRequiredError(path, "corridor_m"))
	}
	if cfg.EntryAngle <= 0 || cfg.EntryAngle > math.Pi/4 {
		errs = multierr.Combine(errs,
			goutils.NewConfigValidationFieldRequiredError(path, "entry_angle_rad"))
	}
	return errs
}

// Law steers the vehicle onto the track by pointing it along a vector
// field that converges to the path. It satisfies control.Law plus the
// activation and loiter capability interfaces.
type Law struct {
	cfg        Config
	gain       float64
	dispatcher control.Dispatcher
	logger     golog.Logger
}

// NewLaw constructs the law from its configuration.
func NewLaw(cfg Config, dispatcher control.Dispatcher, logger golog.Logger) (*Law, error) {
	if err := cfg.Validate("vectorfield"); err != nil {
		return nil, err
	}
	return &Law{
		cfg:        cfg,
		gain:       math.Tan(cfg.EntryAngle) / cfg.Corridor,
		dispatcher: dispatcher,
		logger:     logger,
	}, nil
}

// OnPathActivation brings up the heading controller.
func (l *Law) OnPathActivation(loops control.LoopConfigurator) {
	loops.EnableLoops(msg.LoopYaw)
}

// OnPathDeactivation implements control.ActivationHandler; the controller
// stands the heading loop down on its own.
func (l *Law) OnPathDeactivation(control.LoopConfigurator) {}

// Step computes the heading reference for the current tracking state.
func (l *Law) Step(es *msg.EstimatedState, ts *control.TrackingState) {
	kcorr := ts.TrackPos.Y / l.cfg.Corridor
	akcorr := math.Abs(kcorr)

	var ref float64
	switch {
	case ts.TrackPos.X > ts.TrackLength:
		// Past the track goal; head straight for the end point.
		ref = coords.Bearing(es.Position(), ts.End)
	case akcorr > 1 || !l.cfg.ExtControl:
		ref = ts.TrackBearing - math.Atan(l.gain*ts.TrackPos.Y)
	case akcorr > 0.05:
		ref = ts.TrackBearing -
			math.Copysign(math.Pow(akcorr, l.cfg.ExtGain), kcorr)*l.cfg.EntryAngle*
				(1+(l.gain*ts.Speed*math.Sin(ts.Course-ts.TrackBearing))/
					(l.cfg.ExtTurnRateGain*ts.TrackPos.Y))
	default:
		// Over the track; hold the bearing to avoid singularities.
		ref = ts.TrackBearing
	}

	if ts.CourseControl {
		ref += es.Psi - ts.Course
	}

	l.logger.Debugf("lte=%0.1f attack=%0.1fdeg", math.Abs(ts.TrackPos.Y),
		coords.NormalizeRadians(math.Abs(ts.TrackBearing-ref))*180/math.Pi)

	l.dispatcher.Dispatch(&msg.DesiredHeading{Value: coords.NormalizeRadians(ref)})
}

// Loiter steers tangentially around the loiter circle.
func (l *Law) Loiter(es *msg.EstimatedState, ts *control.TrackingState) {
	ref := math.Pi/2 + math.Atan(2*l.gain*(ts.Range-ts.Loiter.Radius))
	if !ts.Loiter.Clockwise {
		ref = -ref
	}
	ref += math.Pi + ts.LOSAngle

	if ts.CourseControl {
		ref += es.Psi - ts.Course
	}

	l.dispatcher.Dispatch(&msg.DesiredHeading{Value: coords.NormalizeRadians(ref)})
}
