package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "audit.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	if err := store.CreateTables(context.Background()); err != nil {
		t.Fatalf("create tables: %v", err)
	}
	return store
}

func sampleOpportunity(ts time.Time) models.Opportunity {
	opp := models.Opportunity{
		Type:               models.KindSpatial,
		Symbol:             "BTC-USDT",
		BuyExchange:        "kraken",
		SellExchange:       "binance",
		BuyVWAP:            decimal.NewFromInt(100),
		SellVWAP:           decimal.NewFromInt(102),
		GrossEdgePct:       decimal.NewFromInt(2),
		NetEdgePct:         decimal.RequireFromString("0.75"),
		ExpectedProfitUSDT: decimal.RequireFromString("0.75"),
		AvailableQty:       decimal.NewFromInt(1),
		TsDetected:         ts,
	}
	opp.ID = opp.Fingerprint()
	return opp
}

func TestInsertAndListRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	opp := sampleOpportunity(ts)
	if err := store.InsertOpportunity(ctx, &opp); err != nil {
		t.Fatalf("insert: %v", err)
	}

	got, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("rows = %d, want 1", len(got))
	}
	if got[0].ID != opp.ID {
		t.Errorf("id = %q, want %q", got[0].ID, opp.ID)
	}
	if !got[0].NetEdgePct.Equal(opp.NetEdgePct) {
		t.Errorf("net edge = %s, want %s", got[0].NetEdgePct, opp.NetEdgePct)
	}
	if !got[0].TsDetected.Equal(ts) {
		t.Errorf("ts = %s, want %s", got[0].TsDetected, ts)
	}
}

func TestInsertRedeliveryUpserts(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	opp := sampleOpportunity(ts)
	for i := 0; i < 3; i++ {
		if err := store.InsertOpportunity(ctx, &opp); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	n, err := store.CountRows(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Errorf("rows after redelivery = %d, want 1", n)
	}
}

func TestSameFingerprintDifferentTickKeepsBothRows(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	first := sampleOpportunity(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	second := sampleOpportunity(time.Date(2025, 6, 1, 12, 0, 5, 0, time.UTC))
	if err := store.InsertOpportunity(ctx, &first); err != nil {
		t.Fatalf("insert first: %v", err)
	}
	if err := store.InsertOpportunity(ctx, &second); err != nil {
		t.Fatalf("insert second: %v", err)
	}

	got, err := store.ListRecent(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("rows = %d, want 2", len(got))
	}
	if !got[0].TsDetected.After(got[1].TsDetected) {
		t.Error("rows not ordered most recent first")
	}
}

func TestListRecentLimit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		opp := sampleOpportunity(base.Add(time.Duration(i) * 5 * time.Second))
		if err := store.InsertOpportunity(ctx, &opp); err != nil {
			t.Fatalf("insert %d: %v", i, err)
		}
	}

	got, err := store.ListRecent(ctx, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("rows = %d, want 2", len(got))
	}
}

func TestClearTables(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	opp := sampleOpportunity(time.Now().UTC())
	if err := store.InsertOpportunity(ctx, &opp); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := store.ClearTables(ctx); err != nil {
		t.Fatalf("clear: %v", err)
	}
	n, err := store.CountRows(ctx)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 0 {
		t.Errorf("rows after clear = %d, want 0", n)
	}
}
