package engine

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/models"
)

func triStrategy() models.StrategyConfig {
	s := baseStrategy()
	s.TriEnabled = true
	s.TakerFeeBps = 0
	return s
}

func triBooks(now time.Time, ethUSDTBid string) []models.OrderBookSnapshot {
	return []models.OrderBookSnapshot{
		book("okx", "BTC-USDT", levels([2]string{"99", "10"}), levels([2]string{"100", "10"}), now),
		book("okx", "ETH-BTC", levels([2]string{"0.049", "100"}), levels([2]string{"0.05", "100"}), now),
		book("okx", "ETH-USDT", levels([2]string{ethUSDTBid, "100"}), levels([2]string{"5.6", "100"}), now),
	}
}

func TestTriangularDetectsCycle(t *testing.T) {
	now := time.Now()
	// USDT -> BTC (ask 100) -> ETH (ask 0.05) -> USDT (bid 5.5):
	// 0.01 * 20 * 5.5 = 1.1, a 10 pct loop.
	opps := detectTriangular("okx", triBooks(now, "5.5"), triStrategy(), 30*time.Second, now)
	if len(opps) == 0 {
		t.Fatal("profitable cycle not detected")
	}
	opp := opps[0]
	if opp.Type != models.KindTriangular || opp.Exchange != "okx" {
		t.Errorf("wrong shape: type=%s exchange=%s", opp.Type, opp.Exchange)
	}
	if len(opp.AssetCycle) != 4 || opp.AssetCycle[0] != "USDT" || opp.AssetCycle[3] != "USDT" {
		t.Errorf("cycle = %v, want USDT-rooted closed loop", opp.AssetCycle)
	}

	ten := decimal.NewFromInt(10)
	if opp.NetEdgePct.Sub(ten).Abs().GreaterThan(decimal.RequireFromString("0.0001")) {
		t.Errorf("net edge = %s, want about 10", opp.NetEdgePct)
	}
	// Capacity: legs allow 500 USDT, trade notional clamps to 100.
	if !opp.AvailableQty.Equal(decimal.NewFromInt(100)) {
		t.Errorf("available = %s, want 100", opp.AvailableQty)
	}
	if opp.ExpectedProfitUSDT.Sub(ten).Abs().GreaterThan(decimal.RequireFromString("0.001")) {
		t.Errorf("profit = %s, want about 10", opp.ExpectedProfitUSDT)
	}
	if opp.RiskFlag != models.RiskNone {
		t.Errorf("risk = %q, want none", opp.RiskFlag)
	}
}

func TestTriangularQuietOnConsistentRates(t *testing.T) {
	now := time.Now()
	// 0.01 * 20 * 4.9 = 0.98 and the reverse loop is 0.9702: no cycle.
	opps := detectTriangular("okx", triBooks(now, "4.9"), triStrategy(), 30*time.Second, now)
	if len(opps) != 0 {
		t.Errorf("consistent surface produced %d opportunities: %+v", len(opps), opps)
	}
}

func TestTriangularFeeKillsMarginalCycle(t *testing.T) {
	now := time.Now()
	strat := triStrategy()
	strat.TakerFeeBps = 50 // 0.5 pct per leg, 3 legs eat the 1.0 pct loop
	books := triBooks(now, "5.05") // 0.01 * 20 * 5.05 = 1.01
	if opps := detectTriangular("okx", books, strat, 30*time.Second, now); len(opps) != 0 {
		t.Errorf("fee-laden cycle still reported: %+v", opps)
	}
}

func TestTriangularBufferFilters(t *testing.T) {
	now := time.Now()
	strat := triStrategy()
	strat.TriEdgeBufferPct = decimal.NewFromInt(11)
	if opps := detectTriangular("okx", triBooks(now, "5.5"), strat, 30*time.Second, now); len(opps) != 0 {
		t.Errorf("buffer did not swallow the 10 pct cycle: %+v", opps)
	}
}

func TestTriangularBlacklistedExchange(t *testing.T) {
	now := time.Now()
	strat := triStrategy()
	strat.BlacklistedVenues = map[string]bool{"okx": true}
	if opps := detectTriangular("okx", triBooks(now, "5.5"), strat, 30*time.Second, now); len(opps) != 0 {
		t.Errorf("blacklisted venue still reported: %+v", opps)
	}
}

func TestScanRunsTriangularWhenEnabled(t *testing.T) {
	now := time.Now()
	fs := &fakeStore{
		books: map[string][]models.OrderBookSnapshot{
			"BTC-USDT": {triBooks(now, "5.5")[0]},
			"ETH-BTC":  {triBooks(now, "5.5")[1]},
			"ETH-USDT": {triBooks(now, "5.5")[2]},
		},
	}
	e := New(fs, 30*time.Second, 150)
	e.now = func() time.Time { return now }

	res := e.Scan(context.Background(), []string{"BTC-USDT", "ETH-BTC", "ETH-USDT"}, triStrategy())
	found := false
	for _, opp := range res.Opportunities {
		if opp.Type == models.KindTriangular {
			found = true
		}
	}
	if !found {
		t.Error("triangular detection did not run with TriEnabled")
	}

	disabled := triStrategy()
	disabled.TriEnabled = false
	res = e.Scan(context.Background(), []string{"BTC-USDT", "ETH-BTC", "ETH-USDT"}, disabled)
	for _, opp := range res.Opportunities {
		if opp.Type == models.KindTriangular {
			t.Error("triangular ran while disabled")
		}
	}
}
