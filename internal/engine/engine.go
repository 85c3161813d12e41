// Package engine turns a point-in-time view of order books into qualified
// arbitrage opportunities. It is pure detection: reading the store is its
// only side effect, publication belongs to the scanner.
package engine

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
	"github.com/mkalra/crossarb/internal/store"
)

type Engine struct {
	store      store.Store
	staleAfter time.Duration
	maxOpps    int
	now        func() time.Time
}

func New(st store.Store, staleAfter time.Duration, maxOpps int) *Engine {
	return &Engine{store: st, staleAfter: staleAfter, maxOpps: maxOpps, now: time.Now}
}

// ScanResult is one tick's output plus counters for the status endpoint.
type ScanResult struct {
	Opportunities  []models.Opportunity
	BooksScanned   int
	PairsEvaluated int
	SymbolErrors   int
}

// Scan evaluates every configured symbol against the strategy. Each symbol
// is isolated: a panic or store error there is logged and skipped, the rest
// of the tick continues. Results are deduped by fingerprint, sorted by net
// edge descending, and capped.
func (e *Engine) Scan(ctx context.Context, symbols []string, strat models.StrategyConfig) ScanResult {
	now := e.now()
	var res ScanResult
	var all []models.OrderBookSnapshot
	seen := make(map[string]bool)
	var opps []models.Opportunity

	add := func(opp models.Opportunity) {
		if seen[opp.ID] {
			return
		}
		seen[opp.ID] = true
		opps = append(opps, opp)
	}

	for _, symbol := range symbols {
		symbolOpps, books, pairs, err := e.scanSymbol(ctx, symbol, strat, now)
		if err != nil {
			res.SymbolErrors++
			logging.Errorf("[engine] %s: %v", symbol, err)
			continue
		}
		res.BooksScanned += len(books)
		res.PairsEvaluated += pairs
		all = append(all, books...)
		for _, opp := range symbolOpps {
			add(opp)
		}
	}

	if strat.TriEnabled {
		grouped := groupByExchange(all)
		for _, exchange := range sortedExchanges(grouped) {
			triOpps, err := e.scanExchangeCycles(exchange, grouped[exchange], strat, now)
			if err != nil {
				res.SymbolErrors++
				logging.Errorf("[engine] %s: %v", exchange, err)
				continue
			}
			for _, opp := range triOpps {
				add(opp)
			}
		}
	}

	sort.Slice(opps, func(i, j int) bool {
		if c := opps[i].NetEdgePct.Cmp(opps[j].NetEdgePct); c != 0 {
			return c > 0
		}
		return opps[i].ID < opps[j].ID
	})
	if len(opps) > e.maxOpps {
		opps = opps[:e.maxOpps]
	}
	res.Opportunities = opps
	return res
}

func (e *Engine) scanSymbol(ctx context.Context, symbol string, strat models.StrategyConfig, now time.Time) (opps []models.Opportunity, books []models.OrderBookSnapshot, pairs int, err error) {
	defer func() {
		if r := recover(); r != nil {
			opps, books, pairs = nil, nil, 0
			err = fmt.Errorf("recovered: %v", r)
		}
	}()

	books, err = e.store.ReadAllFor(ctx, symbol)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("read books: %w", err)
	}
	for i := range books {
		for j := range books {
			if i == j {
				continue
			}
			pairs++
			if opp, ok := evaluateSpatial(books[i], books[j], strat, e.staleAfter, now); ok {
				opps = append(opps, opp)
			}
		}
	}
	return opps, books, pairs, nil
}

func (e *Engine) scanExchangeCycles(exchange string, books []models.OrderBookSnapshot, strat models.StrategyConfig, now time.Time) (opps []models.Opportunity, err error) {
	defer func() {
		if r := recover(); r != nil {
			opps = nil
			err = fmt.Errorf("recovered: %v", r)
		}
	}()
	return detectTriangular(exchange, books, strat, e.staleAfter, now), nil
}
