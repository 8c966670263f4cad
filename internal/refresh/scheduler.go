package refresh

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"fundboard/internal/log"
)

// DefaultInterval is the polling period when none is configured.
const DefaultInterval = 10 * time.Second

// Refresher runs one refresh cycle.
type Refresher interface {
	Refresh(ctx context.Context) (*Outcome, error)
}

// Scheduler polls a Refresher at a fixed interval. A tick that arrives while
// a cycle is still running is skipped.
type Scheduler struct {
	refresher Refresher
	interval  time.Duration
	log       *log.Logger
	events    *log.StructuredLogger

	busy    atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64
	failed  atomic.Int64

	// Lifecycle management
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
	cycles  sync.WaitGroup
}

func NewScheduler(r Refresher, interval time.Duration, logger *log.Logger) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = log.Default()
	}
	logger = logger.WithComponent(log.ComponentRefresh)
	return &Scheduler{
		refresher: r,
		interval:  interval,
		log:       logger,
		events:    log.NewStructuredLogger(logger),
	}
}

// Start runs one cycle immediately, then one per interval until Stop or ctx
// cancellation. Returns an error if already running.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler is already running")
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.runLoop(ctx, stopCh, doneCh)

	s.log.InfoContext(ctx, "Refresh scheduler started", "interval", s.interval)
	return nil
}

// Stop halts polling and waits for an in-flight cycle, bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.running = false
	s.mu.Unlock()

	close(stopCh)

	select {
	case <-doneCh:
		s.log.InfoContext(ctx, "Refresh scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.log.WarnContext(ctx, "Refresh scheduler stop timed out")
		return ctx.Err()
	}
}

func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// RunOnce runs a single cycle unless one is already running, in which case
// it returns false at once. Cycle errors are logged and counted, never
// returned.
func (s *Scheduler) RunOnce(ctx context.Context) bool {
	if !s.busy.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		s.log.DebugContext(ctx, "Refresh still running, skipping tick")
		return false
	}
	defer s.busy.Store(false)

	s.runs.Add(1)
	if _, err := s.refresher.Refresh(ctx); err != nil {
		s.failed.Add(1)
		s.events.LogError(ctx, "Refresh cycle failed", err, log.OpFetch, nil)
	}
	return true
}

// Stats reports completed, skipped and failed cycle counts.
func (s *Scheduler) Stats() (runs, skipped, failed int64) {
	return s.runs.Load(), s.skipped.Load(), s.failed.Load()
}

func (s *Scheduler) Interval() time.Duration { return s.interval }

func (s *Scheduler) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)
	defer s.markStopped(doneCh)
	defer s.cycles.Wait()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.spawn(ctx)

	for {
		select {
		case <-stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.spawn(ctx)
		}
	}
}

// markStopped clears the running flag when the loop ends on its own through
// ctx cancellation. A newer Start owns a different doneCh and is left alone.
func (s *Scheduler) markStopped(doneCh chan<- struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.doneCh == doneCh {
		s.running = false
	}
}

// spawn runs a cycle off the loop goroutine so a slow fetch never delays the
// ticker; RunOnce drops the tick if the previous cycle is still busy.
func (s *Scheduler) spawn(ctx context.Context) {
	s.cycles.Add(1)
	go func() {
		defer s.cycles.Done()
		s.RunOnce(ctx)
	}()
}
