package control

import (
	"github.com/edaniels/golog"

	"github.com/auvkit/gnc/msg"
)

// hysteresis applied when releasing a bottom-tracking override, meters.
const bottomHysteresis = 1.0

// bottomTracker watches bottom range measurements while a depth reference
// is active and overrides the vertical reference when the vehicle gets too
// close to the bottom. Owned exclusively by one Controller.
type bottomTracker struct {
	cfg        BottomTrackConfig
	dispatcher Dispatcher
	logger     golog.Logger

	zref       msg.DesiredZ
	haveZ      bool
	lastRange  float64
	overriding bool
}

func newBottomTracker(cfg BottomTrackConfig, dispatcher Dispatcher, logger golog.Logger) *bottomTracker {
	return &bottomTracker{
		cfg:        cfg,
		dispatcher: dispatcher,
		logger:     logger,
		lastRange:  notStarted,
	}
}

func (bt *bottomTracker) consumeDesiredZ(z *msg.DesiredZ) {
	bt.zref = *z
	bt.haveZ = true
}

func (bt *bottomTracker) consumeEstimatedState(es *msg.EstimatedState) {
	if !bt.cfg.Enabled {
		return
	}
	if es.Alt >= 0 {
		bt.evaluate(es.Alt)
	}
}

func (bt *bottomTracker) consumeDistance(d *msg.Distance) {
	if !bt.cfg.Enabled || !d.Valid {
		return
	}
	bt.evaluate(d.Value)
}

// evaluate applies or releases the safe-altitude override. Only depth
// references are overridden; altitude references already express bottom
// clearance.
func (bt *bottomTracker) evaluate(bottomRange float64) {
	bt.lastRange = bottomRange

	if !bt.haveZ || bt.zref.Units != msg.ZDepth {
		return
	}

	if !bt.overriding && bottomRange < bt.cfg.MinAltitude {
		bt.overriding = true
		bt.logger.Warnf("bottom range %.1fm under %.1fm, forcing altitude %.1fm",
			bottomRange, bt.cfg.MinAltitude, bt.cfg.SafeMargin)
		bt.dispatcher.Dispatch(&msg.DesiredZ{Value: bt.cfg.SafeMargin, Units: msg.ZAltitude})
		return
	}

	if bt.overriding && bottomRange > bt.cfg.MinAltitude+bottomHysteresis {
		bt.overriding = false
		bt.logger.Info("bottom range recovered, restoring depth reference")
		bt.dispatcher.Dispatch(&msg.DesiredZ{Value: bt.zref.Value, Units: bt.zref.Units})
	}
}
