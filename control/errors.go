package control

import "github.com/pkg/errors"

// Divergence faults reported through the ErrorSink.
var (
	// ErrAlongTrackDivergence is reported when the along-track monitor
	// latches.
	ErrAlongTrackDivergence = errors.New("along-track divergence: vehicle moving away from path")
	// ErrCrossTrackDivergence is reported when the cross-track monitor
	// latches.
	ErrCrossTrackDivergence = errors.New("cross-track divergence: lateral error limit exceeded")
)

var (
	errNilLaw                = errors.New("a guidance law is required")
	errNilDispatcher         = errors.New("a dispatcher is required")
	errNegativeEndRadius     = errors.New("end_radius_m must be non-negative")
	errNegativeMonitorPeriod = errors.New("along_track_monitor.period_s must be non-negative")
	errNegativeTimeLimit     = errors.New("cross_track_monitor.time_limit_s must be non-negative")
	errNegativeLoiterRadius  = errors.New("loiter radius must be non-negative")
)
