package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestCadence(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time

	s := New(50*time.Millisecond, time.Second, func(context.Context) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
	})

	ctx, cancel := context.WithTimeout(context.Background(), 280*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(starts) < 3 {
		t.Fatalf("got %d ticks in 280ms at 50ms cadence", len(starts))
	}
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		if gap < 40*time.Millisecond {
			t.Errorf("tick %d fired %v after previous, cadence not strict", i, gap)
		}
	}

	c := s.Snapshot()
	if c.Started != uint64(len(starts)) || c.Completed != c.Started {
		t.Errorf("counters = %+v, want started == completed == %d", c, len(starts))
	}
	if c.Skipped != 0 {
		t.Errorf("skipped = %d with fast scans", c.Skipped)
	}
}

func TestOverrunSkipsInsteadOfBursting(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var starts []time.Time

	s := New(40*time.Millisecond, time.Second, func(context.Context) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
		if calls.Add(1) == 1 {
			time.Sleep(100 * time.Millisecond) // overruns two ticks
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 350*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	c := s.Snapshot()
	if c.Skipped < 2 {
		t.Errorf("skipped = %d, want at least 2 for a 100ms scan at 40ms cadence", c.Skipped)
	}

	mu.Lock()
	defer mu.Unlock()
	for i := 1; i < len(starts); i++ {
		gap := starts[i].Sub(starts[i-1])
		if gap < 30*time.Millisecond {
			t.Errorf("catch-up burst: tick %d fired %v after previous", i, gap)
		}
	}
}

func TestScansNeverOverlap(t *testing.T) {
	var inFlight atomic.Int32
	var overlapped atomic.Bool

	s := New(20*time.Millisecond, time.Second, func(context.Context) {
		if inFlight.Add(1) > 1 {
			overlapped.Store(true)
		}
		time.Sleep(30 * time.Millisecond)
		inFlight.Add(-1)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	s.Run(ctx)

	if overlapped.Load() {
		t.Error("two scans ran concurrently")
	}
}

func TestIntervalHotSwap(t *testing.T) {
	var mu sync.Mutex
	var starts []time.Time

	s := New(30*time.Millisecond, time.Second, func(context.Context) {
		mu.Lock()
		starts = append(starts, time.Now())
		mu.Unlock()
	})
	if err := s.SetInterval(0); err == nil {
		t.Error("zero interval accepted")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		s.SetInterval(120 * time.Millisecond)
		time.Sleep(400 * time.Millisecond)
		cancel()
	}()
	s.Run(ctx)

	mu.Lock()
	defer mu.Unlock()
	if len(starts) < 4 {
		t.Fatalf("too few ticks to judge the swap: %d", len(starts))
	}
	lastGap := starts[len(starts)-1].Sub(starts[len(starts)-2])
	if lastGap < 100*time.Millisecond {
		t.Errorf("interval swap not applied, last gap %v", lastGap)
	}
}

func TestStopWhileIdleReturnsPromptly(t *testing.T) {
	s := New(time.Hour, time.Second, func(context.Context) {})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("Run returned %v, want context.Canceled", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestInFlightScanGetsGrace(t *testing.T) {
	sawCancel := make(chan time.Time, 1)
	started := make(chan struct{})

	s := New(20*time.Millisecond, 80*time.Millisecond, func(scanCtx context.Context) {
		select {
		case <-started:
		default:
			close(started)
		}
		select {
		case <-scanCtx.Done():
			sawCancel <- time.Now()
		case <-time.After(500 * time.Millisecond):
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)

	<-started
	canceledAt := time.Now()
	cancel()

	select {
	case at := <-sawCancel:
		if grace := at.Sub(canceledAt); grace < 60*time.Millisecond {
			t.Errorf("scan context died %v after stop, want about the 80ms grace", grace)
		}
	case <-time.After(time.Second):
		t.Fatal("scan context never canceled")
	}
}
