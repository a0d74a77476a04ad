package control

import (
	"context"
	"sync"
	"time"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
	goutils "go.viam.com/utils"

	"github.com/auvkit/gnc/msg"
)

// Source provides the most recent navigation estimate. The second return
// is false until a first estimate exists.
type Source interface {
	EstimatedState() (msg.EstimatedState, bool)
}

// Runner drives a Controller from a state source at the control period.
// It is an optional convenience for hosts without their own dispatch loop;
// hosts with a message bus call the Consume methods directly instead.
type Runner struct {
	ctrl   *Controller
	src    Source
	logger golog.Logger

	dt                      time.Duration
	ticker                  *time.Ticker
	stop                    chan bool
	activeBackgroundWorkers sync.WaitGroup
	cancelCtx               context.Context
	cancel                  context.CancelFunc
	running                 bool
}

// NewRunner constructs a runner over the given controller and source.
func NewRunner(ctrl *Controller, src Source, logger golog.Logger) (*Runner, error) {
	if src == nil {
		return nil, errors.New("a state source is required")
	}
	return &Runner{
		ctrl:   ctrl,
		src:    src,
		logger: logger,
		dt:     time.Duration(float64(time.Second) * ctrl.cfg.ControlPeriod),
	}, nil
}

// Start begins pumping estimates into the controller. A stopped runner can
// be started again.
func (r *Runner) Start() error {
	if r.running {
		return errors.New("runner already started")
	}
	r.cancelCtx, r.cancel = context.WithCancel(context.Background())
	r.logger.Infof("running path control at %s", r.dt)
	r.ticker = time.NewTicker(r.dt)
	r.stop = make(chan bool, 1)
	waitCh := make(chan struct{})
	r.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		close(waitCh)
		for {
			if r.cancelCtx.Err() != nil {
				return
			}
			select {
			case <-r.ticker.C:
				if es, ok := r.src.EstimatedState(); ok {
					r.ctrl.ConsumeEstimatedState(&es)
				}
			case <-r.stop:
				return
			case <-r.cancelCtx.Done():
				return
			}
		}
	}, r.activeBackgroundWorkers.Done)
	<-waitCh
	r.running = true
	return nil
}

// Stop halts the runner and waits for the pump to exit.
func (r *Runner) Stop() {
	if !r.running {
		return
	}
	r.logger.Debug("closing path control runner")
	r.ticker.Stop()
	close(r.stop)
	r.cancel()
	r.activeBackgroundWorkers.Wait()
	r.running = false
}
