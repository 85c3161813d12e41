package connectors

import (
	"context"
	"testing"
	"time"

	"github.com/mkalra/crossarb/internal/models"
)

func mockOpts() Options {
	return Options{
		Symbols:  []string{"BTC-USDT", "ETH-USDT"},
		Depth:    5,
		Interval: 5 * time.Millisecond,
		BiasStep: 0.01,
	}
}

func readSnap(t *testing.T, ch <-chan models.OrderBookSnapshot) models.OrderBookSnapshot {
	t.Helper()
	select {
	case snap, ok := <-ch:
		if !ok {
			t.Fatal("snapshot stream closed")
		}
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("no snapshot emitted")
		return models.OrderBookSnapshot{}
	}
}

func TestMockEmitsValidBooks(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := NewMock("binance", 0, 3, mockOpts())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("start: %v", err)
	}
	defer m.Stop(context.Background())

	snap := readSnap(t, m.Snapshots())
	if snap.Exchange != "binance" {
		t.Errorf("exchange = %q", snap.Exchange)
	}
	if err := snap.Validate(); err != nil {
		t.Errorf("invalid book: %v", err)
	}
	if len(snap.Bids) != 5 || len(snap.Asks) != 5 {
		t.Errorf("depth = %d/%d, want 5/5", len(snap.Bids), len(snap.Asks))
	}
	if !snap.Healthy {
		t.Error("mock books must be healthy")
	}
	bid, _ := snap.BestBid()
	ask, _ := snap.BestAsk()
	if !bid.Price.LessThan(ask.Price) {
		t.Errorf("crossed self: bid %s >= ask %s", bid.Price, ask.Price)
	}
}

func TestMockBiasSeparatesVenues(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Index 0 of 3 sits 1% below center, index 2 sits 1% above. Drift and
	// spread noise are an order of magnitude smaller.
	low := NewMock("low", 0, 3, mockOpts())
	high := NewMock("high", 2, 3, mockOpts())
	for _, m := range []*Mock{low, high} {
		if err := m.Start(ctx); err != nil {
			t.Fatalf("start %s: %v", m.Name(), err)
		}
		defer m.Stop(context.Background())
	}

	lowSnap := readSnap(t, low.Snapshots())
	highSnap := readSnap(t, high.Snapshots())
	for lowSnap.Symbol != "BTC-USDT" {
		lowSnap = readSnap(t, low.Snapshots())
	}
	for highSnap.Symbol != "BTC-USDT" {
		highSnap = readSnap(t, high.Snapshots())
	}

	lowBid, _ := lowSnap.BestBid()
	highBid, _ := highSnap.BestBid()
	if !lowBid.Price.LessThan(highBid.Price) {
		t.Errorf("bias did not separate venues: low bid %s, high bid %s", lowBid.Price, highBid.Price)
	}
}

func TestMockDeterministicPerSeed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := NewMock("a", 1, 3, mockOpts())
	b := NewMock("b", 1, 3, mockOpts())
	if err := a.Start(ctx); err != nil {
		t.Fatalf("start a: %v", err)
	}
	defer a.Stop(context.Background())
	if err := b.Start(ctx); err != nil {
		t.Fatalf("start b: %v", err)
	}
	defer b.Stop(context.Background())

	snapA := readSnap(t, a.Snapshots())
	snapB := readSnap(t, b.Snapshots())
	if snapA.Symbol != snapB.Symbol {
		t.Fatalf("symbol order diverged: %s vs %s", snapA.Symbol, snapB.Symbol)
	}
	if !snapA.Bids[0].Price.Equal(snapB.Bids[0].Price) {
		t.Errorf("same seed, different prices: %s vs %s", snapA.Bids[0].Price, snapB.Bids[0].Price)
	}
	if !snapA.Asks[2].Qty.Equal(snapB.Asks[2].Qty) {
		t.Errorf("same seed, different qtys: %s vs %s", snapA.Asks[2].Qty, snapB.Asks[2].Qty)
	}
}

func TestMockRestart(t *testing.T) {
	ctx := context.Background()
	m := NewMock("binance", 0, 1, mockOpts())

	if err := m.Start(ctx); err != nil {
		t.Fatalf("first start: %v", err)
	}
	if err := m.Start(ctx); err == nil {
		t.Error("double start accepted")
	}
	readSnap(t, m.Snapshots())
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}

	if err := m.Start(ctx); err != nil {
		t.Fatalf("restart: %v", err)
	}
	readSnap(t, m.Snapshots())
	if err := m.Stop(ctx); err != nil {
		t.Fatalf("second stop: %v", err)
	}
}
