// Package scheduler drives the scan loop on a strict wall-clock cadence.
// One scan runs at a time; ticks that land while a scan is in flight are
// skipped and counted, never queued, so an overrun is followed by the next
// grid tick instead of a catch-up burst.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mkalra/crossarb/internal/logging"
)

const (
	StateIdle     = "idle"
	StateScanning = "scanning"
)

// Counters is a point-in-time view of the loop for the status endpoint.
type Counters struct {
	State         string    `json:"state"`
	IntervalSec   int       `json:"interval_sec"`
	Started       uint64    `json:"ticks_started"`
	Completed     uint64    `json:"ticks_completed"`
	Skipped       uint64    `json:"ticks_skipped"`
	LastElapsedMS int64     `json:"last_scan_elapsed_ms"`
	LastScanAt    time.Time `json:"last_scan_at,omitempty"`
}

type Scheduler struct {
	fn    func(ctx context.Context)
	grace time.Duration

	mu       sync.Mutex
	interval time.Duration
	pending  time.Duration
	counters Counters
}

// New builds a scheduler around fn. grace bounds how long an in-flight scan
// keeps its context alive after the run context is canceled.
func New(interval, grace time.Duration, fn func(ctx context.Context)) *Scheduler {
	return &Scheduler{
		fn:       fn,
		grace:    grace,
		interval: interval,
		counters: Counters{State: StateIdle, IntervalSec: int(interval / time.Second)},
	}
}

// SetInterval requests a new cadence. It takes effect between cycles; the
// current cycle and the already-armed tick are not disturbed.
func (s *Scheduler) SetInterval(d time.Duration) error {
	if d <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %s", d)
	}
	s.mu.Lock()
	s.pending = d
	s.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the loop counters.
func (s *Scheduler) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

func (s *Scheduler) currentInterval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// applyPending swaps in a requested interval between cycles.
func (s *Scheduler) applyPending(ticker *time.Ticker) {
	s.mu.Lock()
	pending := s.pending
	current := s.interval
	if pending > 0 && pending != current {
		s.interval = pending
		s.counters.IntervalSec = int(pending / time.Second)
	}
	s.pending = 0
	s.mu.Unlock()

	if pending > 0 && pending != current {
		ticker.Reset(pending)
		logging.Infof("[scheduler] interval changed %s -> %s", current, pending)
	}
}

func (s *Scheduler) setState(state string) {
	s.mu.Lock()
	s.counters.State = state
	s.mu.Unlock()
}

// Run blocks until ctx is canceled, firing fn on each tick.
func (s *Scheduler) Run(ctx context.Context) error {
	interval := s.currentInterval()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logging.Infof("[scheduler] running, interval %s", interval)

	for {
		select {
		case <-ctx.Done():
			logging.Infof("[scheduler] stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runOnce(ctx)
			s.finishCycle(ticker)
			if ctx.Err() != nil {
				logging.Infof("[scheduler] stopped after in-flight scan")
				return ctx.Err()
			}
		}
	}
}

// runOnce executes one serialized scan. The scan context survives run
// cancellation for up to grace, so shutdown does not tear a tick midway.
func (s *Scheduler) runOnce(ctx context.Context) {
	s.mu.Lock()
	s.counters.Started++
	s.counters.State = StateScanning
	interval := s.interval
	s.mu.Unlock()

	scanCtx, cancelScan := context.WithCancel(context.Background())
	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		select {
		case <-ctx.Done():
			timer := time.NewTimer(s.grace)
			defer timer.Stop()
			select {
			case <-timer.C:
			case <-scanCtx.Done():
			}
			cancelScan()
		case <-scanCtx.Done():
		}
	}()

	start := time.Now()
	s.fn(scanCtx)
	elapsed := time.Since(start)
	cancelScan()
	<-watchDone

	skips := uint64(0)
	if interval > 0 {
		skips = uint64(elapsed / interval)
	}

	s.mu.Lock()
	s.counters.Completed++
	s.counters.Skipped += skips
	s.counters.LastElapsedMS = elapsed.Milliseconds()
	s.counters.LastScanAt = start
	s.counters.State = StateIdle
	s.mu.Unlock()

	if skips > 0 {
		logging.Warnf("[scheduler] scan took %s (interval %s), skipping %d tick(s)", elapsed.Round(time.Millisecond), interval, skips)
	}
}

// finishCycle drops ticks that queued during the scan and applies any
// pending interval change.
func (s *Scheduler) finishCycle(ticker *time.Ticker) {
	for {
		select {
		case <-ticker.C:
		default:
			s.applyPending(ticker)
			return
		}
	}
}
