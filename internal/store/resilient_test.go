package store

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mkalra/crossarb/internal/models"
)

// flaky wraps a real store and fails every call while down.
type flaky struct {
	Store
	mu   sync.Mutex
	down bool
}

func (f *flaky) setDown(down bool) {
	f.mu.Lock()
	f.down = down
	f.mu.Unlock()
}

func (f *flaky) failing() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.down
}

var errDown = errors.New("connection refused")

func (f *flaky) Put(ctx context.Context, snap models.OrderBookSnapshot) error {
	if f.failing() {
		return errDown
	}
	return f.Store.Put(ctx, snap)
}

func (f *flaky) ReadAllFor(ctx context.Context, symbol string) ([]models.OrderBookSnapshot, error) {
	if f.failing() {
		return nil, errDown
	}
	return f.Store.ReadAllFor(ctx, symbol)
}

func TestResilientDegradeAndRecover(t *testing.T) {
	base := time.Now()
	now := base
	clock := func() time.Time { return now }

	remote := &flaky{Store: newMemory(30*time.Second, clock)}
	local := newMemory(30*time.Second, clock)
	r := NewResilient(remote, local, 15*time.Second).(*resilientStore)
	r.now = clock
	ctx := context.Background()

	// Healthy path writes through to both tiers.
	if err := r.Put(ctx, testSnap("binance", "BTC-USDT", base, "100")); err != nil {
		t.Fatalf("put: %v", err)
	}
	remoteSnaps, _ := remote.Store.ReadAllFor(ctx, "BTC-USDT")
	if len(remoteSnaps) != 1 {
		t.Fatal("remote tier missed the write-through")
	}

	// Remote goes down: puts still succeed via the mirror, reads degrade.
	remote.setDown(true)
	if err := r.Put(ctx, testSnap("kraken", "BTC-USDT", base, "101")); err != nil {
		t.Fatalf("put while degraded: %v", err)
	}
	snaps, err := r.ReadAllFor(ctx, "BTC-USDT")
	if err != nil {
		t.Fatalf("read while degraded: %v", err)
	}
	if len(snaps) != 2 {
		t.Errorf("mirror read returned %d snapshots, want 2", len(snaps))
	}

	// Within the cooldown the remote is left alone.
	now = base.Add(5 * time.Second)
	r.ReadAllFor(ctx, "BTC-USDT")
	r.mu.Lock()
	degraded := r.degraded
	r.mu.Unlock()
	if !degraded {
		t.Fatal("left degraded mode without a successful probe")
	}

	// After the cooldown one probe goes out; with the remote back it recovers.
	remote.setDown(false)
	now = base.Add(20 * time.Second)
	if _, err := r.ReadAllFor(ctx, "BTC-USDT"); err != nil {
		t.Fatalf("read after recovery: %v", err)
	}
	r.mu.Lock()
	degraded = r.degraded
	r.mu.Unlock()
	if degraded {
		t.Error("still degraded after successful probe")
	}
}

func TestResilientStatsMarkDegraded(t *testing.T) {
	base := time.Now()
	clock := func() time.Time { return base }

	remote := &flaky{Store: newMemory(30*time.Second, clock)}
	local := newMemory(30*time.Second, clock)
	r := NewResilient(remote, local, 15*time.Second).(*resilientStore)
	r.now = clock
	ctx := context.Background()

	r.Put(ctx, testSnap("binance", "BTC-USDT", base, "100"))
	remote.setDown(true)
	r.ReadAllFor(ctx, "BTC-USDT")

	stats, err := r.Stats(ctx)
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if !stats.Degraded {
		t.Error("stats did not report degraded mode")
	}
	if stats.TotalBooks != 1 {
		t.Errorf("mirror stats books = %d, want 1", stats.TotalBooks)
	}
}
