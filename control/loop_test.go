package control

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/edaniels/golog"
	"go.viam.com/test"

	"github.com/golang/geo/r3"

	"github.com/auvkit/gnc/msg"
)

type countingLaw struct {
	steps atomic.Int64
}

func (l *countingLaw) Step(es *msg.EstimatedState, ts *TrackingState) {
	l.steps.Add(1)
}

type stubSource struct {
	mu sync.Mutex
	es msg.EstimatedState
	ok bool
}

func (s *stubSource) set(es msg.EstimatedState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.es, s.ok = es, true
}

func (s *stubSource) EstimatedState() (msg.EstimatedState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.es, s.ok
}

func TestRunnerPumpsEstimates(t *testing.T) {
	logger := golog.NewTestLogger(t)
	rec := &recorder{}
	law := &countingLaw{}

	cfg := defaultTestConfig()
	cfg.ControlPeriod = 0.01
	c, err := NewController(cfg, law, rec, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	src := &stubSource{}
	r, err := NewRunner(c, src, logger)
	test.That(t, err, test.ShouldBeNil)

	activate(c)
	c.ConsumeDesiredPath(&msg.DesiredPath{End: r3.Vector{X: 100}, StartPoint: true, Speed: 2})

	test.That(t, r.Start(), test.ShouldBeNil)
	test.That(t, r.Start(), test.ShouldNotBeNil) // double start

	src.set(msg.EstimatedState{X: 10, VX: 2})
	deadline := time.Now().Add(5 * time.Second)
	for law.steps.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	test.That(t, law.steps.Load(), test.ShouldBeGreaterThan, 0)

	r.Stop()

	// A stopped runner starts again and the pump keeps stepping.
	test.That(t, r.Start(), test.ShouldBeNil)
	before := law.steps.Load()
	deadline = time.Now().Add(5 * time.Second)
	for law.steps.Load() == before && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	test.That(t, law.steps.Load(), test.ShouldBeGreaterThan, before)

	r.Stop()
	r.Stop() // idempotent
}

func TestRunnerRequiresSource(t *testing.T) {
	logger := golog.NewTestLogger(t)
	c, err := NewController(defaultTestConfig(), &stubLaw{}, &recorder{}, nil, logger)
	test.That(t, err, test.ShouldBeNil)

	_, err = NewRunner(c, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)
}
