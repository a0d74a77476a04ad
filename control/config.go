package control

import (
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"
)

// AlongTrackConfig parametrizes the along-track divergence monitor.
// Non-positive MinSpeed or MinYaw disables the monitor.
type AlongTrackConfig struct {
	// Period between monitor evaluations, seconds.
	Period float64 `json:"period_s"`
	// MinSpeed under which no divergence is flagged, m/s.
	MinSpeed float64 `json:"min_speed_mps"`
	// MinYaw is the minimum course error for a sample to count, radians.
	MinYaw float64 `json:"min_yaw_rad"`
}

// CrossTrackConfig parametrizes the cross-track divergence monitor.
// A non-positive DistanceLimit disables the monitor.
type CrossTrackConfig struct {
	// DistanceLimit is the admissible cross-track error, meters.
	DistanceLimit float64 `json:"distance_limit_m"`
	// TimeLimit is the admissible time outside the limit, seconds.
	TimeLimit float64 `json:"time_limit_s"`
	// NavUncFactor scales the distance limit with navigation uncertainty.
	NavUncFactor float64 `json:"nav_unc_factor"`
}

// BottomTrackConfig parametrizes the bottom tracker.
type BottomTrackConfig struct {
	Enabled bool `json:"enabled"`
	// MinAltitude is the bottom clearance to enforce, meters.
	MinAltitude float64 `json:"min_altitude_m"`
	// SafeMargin is the altitude commanded when the clearance is violated.
	SafeMargin float64 `json:"safe_margin_m"`
}

// Config holds the controller parameters. It is treated as immutable for
// the lifetime of one activation.
type Config struct {
	// ControlPeriod is the minimum time between control steps, seconds.
	ControlPeriod float64 `json:"control_period_s"`
	// ReportPeriod is the path control state publishing period, seconds.
	ReportPeriod float64 `json:"report_period_s"`
	// CourseControl selects ground course/speed over yaw/body speed for
	// the tracking geometry.
	CourseControl bool `json:"course_control"`
	// EndRadius is the default arrival tolerance when the path command
	// does not carry one, meters.
	EndRadius float64 `json:"end_radius_m"`

	AlongTrack  AlongTrackConfig  `json:"along_track_monitor"`
	CrossTrack  CrossTrackConfig  `json:"cross_track_monitor"`
	BottomTrack BottomTrackConfig `json:"bottom_tracker"`
}

// Validate ensures all parts of the config are valid.
func (cfg *Config) Validate(path string) error {
	var errs error
	if cfg.ControlPeriod <= 0 {
		errs = multierr.Combine(errs,
			goutils.NewConfigValidationFieldRequiredError(path, "control_period_s"))
	}
	if cfg.ReportPeriod <= 0 {
		errs = multierr.Combine(errs,
			goutils.NewConfigValidationFieldRequiredError(path, "report_period_s"))
	}
	if cfg.EndRadius < 0 {
		errs = multierr.Combine(errs,
			goutils.NewConfigValidationError(path, errNegativeEndRadius))
	}
	if cfg.AlongTrack.Period < 0 {
		errs = multierr.Combine(errs,
			goutils.NewConfigValidationError(path, errNegativeMonitorPeriod))
	}
	if cfg.CrossTrack.TimeLimit < 0 {
		errs = multierr.Combine(errs,
			goutils.NewConfigValidationError(path, errNegativeTimeLimit))
	}
	if cfg.BottomTrack.Enabled && cfg.BottomTrack.MinAltitude <= 0 {
		errs = multierr.Combine(errs,
			goutils.NewConfigValidationFieldRequiredError(path, "min_altitude_m"))
	}
	return errs
}
