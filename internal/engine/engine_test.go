package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mkalra/crossarb/internal/models"
	"github.com/mkalra/crossarb/internal/store"
)

// fakeStore serves canned books and can fail or panic per symbol.
type fakeStore struct {
	books    map[string][]models.OrderBookSnapshot
	errFor   map[string]error
	panicFor map[string]bool
}

func (f *fakeStore) Put(context.Context, models.OrderBookSnapshot) error { return nil }
func (f *fakeStore) MarkHealth(context.Context, models.HealthEvent) error {
	return nil
}
func (f *fakeStore) SnapshotAge(context.Context, string, string) (time.Duration, error) {
	return 0, store.ErrNotFound
}
func (f *fakeStore) Stats(context.Context) (store.Stats, error) { return store.Stats{}, nil }
func (f *fakeStore) Close() error                               { return nil }

func (f *fakeStore) ReadAllFor(_ context.Context, symbol string) ([]models.OrderBookSnapshot, error) {
	if f.panicFor[symbol] {
		panic("poisoned symbol")
	}
	if err := f.errFor[symbol]; err != nil {
		return nil, err
	}
	return f.books[symbol], nil
}

func spreadBooks(symbol string, now time.Time, sellPrice string) []models.OrderBookSnapshot {
	return []models.OrderBookSnapshot{
		book("kraken", symbol, levels([2]string{"99.9", "5"}), levels([2]string{"100", "5"}), now),
		book("binance", symbol, levels([2]string{sellPrice, "5"}), levels([2]string{"110", "5"}), now),
	}
}

func TestScanIsolatesSymbolFailures(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{
		books: map[string][]models.OrderBookSnapshot{
			"BTC-USDT": spreadBooks("BTC-USDT", now, "102"),
		},
		errFor:   map[string]error{"ETH-USDT": errors.New("backend down")},
		panicFor: map[string]bool{"SOL-USDT": true},
	}
	e := New(fs, 30*time.Second, 150)
	e.now = func() time.Time { return now }

	res := e.Scan(context.Background(), []string{"ETH-USDT", "SOL-USDT", "BTC-USDT"}, baseStrategy())
	if res.SymbolErrors != 2 {
		t.Errorf("symbol errors = %d, want 2", res.SymbolErrors)
	}
	if len(res.Opportunities) != 1 {
		t.Fatalf("opportunities = %d, want 1 despite failing symbols", len(res.Opportunities))
	}
	if res.Opportunities[0].Symbol != "BTC-USDT" {
		t.Errorf("wrong symbol survived: %s", res.Opportunities[0].Symbol)
	}
}

func TestScanSortsAndCaps(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{
		books: map[string][]models.OrderBookSnapshot{
			"BTC-USDT": spreadBooks("BTC-USDT", now, "102"), // net 0.75
			"ETH-USDT": spreadBooks("ETH-USDT", now, "103"), // net 1.75
			"SOL-USDT": spreadBooks("SOL-USDT", now, "104"), // net 2.75
		},
	}
	e := New(fs, 30*time.Second, 2)
	e.now = func() time.Time { return now }

	res := e.Scan(context.Background(), []string{"BTC-USDT", "ETH-USDT", "SOL-USDT"}, baseStrategy())
	if len(res.Opportunities) != 2 {
		t.Fatalf("cap not applied: got %d", len(res.Opportunities))
	}
	if res.Opportunities[0].Symbol != "SOL-USDT" || res.Opportunities[1].Symbol != "ETH-USDT" {
		t.Errorf("not sorted by net edge desc: %s then %s",
			res.Opportunities[0].Symbol, res.Opportunities[1].Symbol)
	}
	if !res.Opportunities[0].NetEdgePct.GreaterThan(res.Opportunities[1].NetEdgePct) {
		t.Error("edges out of order")
	}
}

func TestScanDeduplicatesWithinTick(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{
		books: map[string][]models.OrderBookSnapshot{
			"BTC-USDT": spreadBooks("BTC-USDT", now, "102"),
		},
	}
	e := New(fs, 30*time.Second, 150)
	e.now = func() time.Time { return now }

	res := e.Scan(context.Background(), []string{"BTC-USDT", "BTC-USDT"}, baseStrategy())
	if len(res.Opportunities) != 1 {
		t.Errorf("duplicate fingerprints not collapsed: %d", len(res.Opportunities))
	}
}

func TestScanCounters(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{
		books: map[string][]models.OrderBookSnapshot{
			"BTC-USDT": spreadBooks("BTC-USDT", now, "102"),
		},
	}
	e := New(fs, 30*time.Second, 150)
	e.now = func() time.Time { return now }

	res := e.Scan(context.Background(), []string{"BTC-USDT"}, baseStrategy())
	if res.BooksScanned != 2 {
		t.Errorf("books scanned = %d, want 2", res.BooksScanned)
	}
	if res.PairsEvaluated != 2 {
		t.Errorf("pairs evaluated = %d, want 2", res.PairsEvaluated)
	}
}

func TestScanEmptyStore(t *testing.T) {
	e := New(&fakeStore{}, 30*time.Second, 150)
	res := e.Scan(context.Background(), []string{"BTC-USDT"}, baseStrategy())
	if len(res.Opportunities) != 0 || res.SymbolErrors != 0 {
		t.Errorf("empty store produced %d opps, %d errors", len(res.Opportunities), res.SymbolErrors)
	}
}

func TestScanIDsAreStableFingerprints(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{
		books: map[string][]models.OrderBookSnapshot{
			"BTC-USDT": spreadBooks("BTC-USDT", now, "102"),
		},
	}
	e := New(fs, 30*time.Second, 150)
	e.now = func() time.Time { return now }

	first := e.Scan(context.Background(), []string{"BTC-USDT"}, baseStrategy())
	second := e.Scan(context.Background(), []string{"BTC-USDT"}, baseStrategy())
	if first.Opportunities[0].ID != second.Opportunities[0].ID {
		t.Error("same venue pair produced different IDs across ticks")
	}
	if first.Opportunities[0].ID != "spatial:BTC-USDT:kraken:binance" {
		t.Errorf("unexpected ID %q", first.Opportunities[0].ID)
	}
}

var _ store.Store = (*fakeStore)(nil)
