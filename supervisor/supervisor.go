// Package supervisor implements the vehicle operation-mode state machine
// sitting above the path and formation controllers. It arbitrates between
// service, calibration, maneuvering, external control and error modes, and
// is the sink for controller fault reports: a reported error always forces
// the vehicle out of maneuvering into a safe mode.
package supervisor

import (
	"time"

	"github.com/benbjohnson/clock"
	"github.com/edaniels/golog"
	"github.com/pkg/errors"

	"github.com/auvkit/gnc/control"
	"github.com/auvkit/gnc/msg"
)

// ErrManeuverRejected is returned when a maneuver request arrives while
// the vehicle cannot maneuver.
var ErrManeuverRejected = errors.New("cannot start maneuver in current mode")

// notSet is the sentinel for unset timestamps.
const notSet = -1.0

// Config holds the supervisor parameters.
type Config struct {
	// CalibrationTime is the duration of calibration commands, seconds.
	CalibrationTime float64 `json:"calibration_time_s"`
}

// Supervisor is the vehicle-level mode machine. Not safe for concurrent
// use; the surrounding dispatch loop serializes deliveries.
type Supervisor struct {
	cfg        Config
	dispatcher control.Dispatcher
	clk        clock.Clock
	logger     golog.Logger

	mode  msg.OperationMode
	loops msg.LoopMask

	errorLatched  bool
	errorCount    int
	lastError     string
	lastErrorTime float64

	calibrationDeadline float64
}

// New constructs a supervisor in service mode.
func New(cfg Config, dispatcher control.Dispatcher, logger golog.Logger) (*Supervisor, error) {
	if dispatcher == nil {
		return nil, errors.New("a dispatcher is required")
	}
	return &Supervisor{
		cfg:                 cfg,
		dispatcher:          dispatcher,
		clk:                 clock.New(),
		logger:              logger,
		mode:                msg.ModeService,
		lastErrorTime:       notSet,
		calibrationDeadline: notSet,
	}, nil
}

// Mode returns the current operation mode.
func (s *Supervisor) Mode() msg.OperationMode {
	return s.mode
}

// SignalError implements control.ErrorSink. Divergence and configuration
// faults land here and force the vehicle out of maneuvering.
func (s *Supervisor) SignalError(err error) {
	s.errorLatched = true
	s.errorCount++
	s.lastError = err.Error()
	s.lastErrorTime = s.now()
	s.logger.Errorw("vehicle error", "error", err)

	switch s.mode {
	case msg.ModeManeuver, msg.ModeCalibration:
		s.changeMode(msg.ModeError)
	case msg.ModeService:
		s.changeMode(msg.ModeError)
	default:
		// External control keeps its loops; the error stays latched.
	}
}

// ClearErrors acknowledges latched errors, allowing service mode again.
func (s *Supervisor) ClearErrors() {
	s.errorLatched = false
	if s.mode == msg.ModeError {
		s.changeMode(msg.ModeService)
	}
}

// ConsumeAbort stops all maneuvering and returns to a safe mode.
func (s *Supervisor) ConsumeAbort(*msg.Abort) {
	s.logger.Warn("got abort request")
	s.lastError = "got abort request"
	s.lastErrorTime = s.now()

	if s.mode == msg.ModeError {
		return
	}
	// Stand down every loop before leaving maneuvering.
	s.dispatcher.Dispatch(&msg.ControlLoops{Enable: false, Mask: msg.LoopAll})
	s.changeMode(msg.ModeService)
}

// ConsumeControlLoops mirrors the active loop mask and derives the
// external-control mode: loops coming up outside a maneuver mean an
// external controller has taken over.
func (s *Supervisor) ConsumeControlLoops(cl *msg.ControlLoops) {
	was := s.loops
	if cl.Enable {
		s.loops |= cl.Mask
	} else {
		s.loops &^= cl.Mask
	}

	if was == msg.LoopNone && s.loops != msg.LoopNone {
		if s.mode == msg.ModeService {
			s.changeMode(msg.ModeExternal)
		}
		return
	}
	if was != msg.LoopNone && s.loops == msg.LoopNone {
		if s.mode == msg.ModeExternal {
			s.changeMode(msg.ModeService)
		}
	}
}

// RequestManeuver asks to enter maneuvering mode.
func (s *Supervisor) RequestManeuver() error {
	switch s.mode {
	case msg.ModeService, msg.ModeManeuver:
		s.changeMode(msg.ModeManeuver)
		return nil
	default:
		return errors.Wrapf(ErrManeuverRejected, "mode %s", s.mode)
	}
}

// StopManeuver leaves maneuvering mode.
func (s *Supervisor) StopManeuver() {
	if s.mode != msg.ModeManeuver {
		return
	}
	s.changeMode(msg.ModeService)
}

// StartCalibration enters calibration mode for the configured duration.
func (s *Supervisor) StartCalibration() error {
	if s.mode != msg.ModeService {
		return errors.Errorf("cannot calibrate in %s mode", s.mode)
	}
	s.calibrationDeadline = s.now() + s.cfg.CalibrationTime
	s.changeMode(msg.ModeCalibration)
	return nil
}

// Update runs the periodic supervision work: calibration timeout and
// state reporting. Call at the host's periodic rate.
func (s *Supervisor) Update() {
	if s.mode == msg.ModeCalibration && s.calibrationDeadline != notSet &&
		s.now() >= s.calibrationDeadline {
		s.calibrationDeadline = notSet
		s.logger.Info("calibration finished")
		s.changeMode(msg.ModeService)
	}
	s.report()
}

func (s *Supervisor) changeMode(m msg.OperationMode) {
	// Service with latched errors is error mode.
	if m == msg.ModeService && s.errorLatched {
		m = msg.ModeError
	}
	if s.mode == m {
		return
	}
	s.mode = m
	s.logger.Warnf("now in '%s' mode", m)
	s.report()
}

func (s *Supervisor) report() {
	s.dispatcher.Dispatch(&msg.VehicleState{
		OpMode:        s.mode,
		ControlLoops:  s.loops,
		ErrorCount:    s.errorCount,
		LastError:     s.lastError,
		LastErrorTime: s.lastErrorTime,
	})
}

func (s *Supervisor) now() float64 {
	return float64(s.clk.Now().UnixNano()) / float64(time.Second)
}
