package engine

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/models"
)

const relaxEpsilon = 1e-9

// triEdge is one conversion step on a single venue: from-asset to to-asset
// at the top of book, taker fee already applied. Weights are -log(rate) so a
// profitable loop is a negative cycle.
type triEdge struct {
	from, to  int
	rate      float64
	weight    float64
	capInFrom float64
	bookAge   time.Duration
}

type triGraph struct {
	assets []string
	index  map[string]int
	edges  []triEdge
	best   map[[2]int]int // (from,to) -> index into edges
}

func (g *triGraph) node(asset string) int {
	if i, ok := g.index[asset]; ok {
		return i
	}
	i := len(g.assets)
	g.assets = append(g.assets, asset)
	g.index[asset] = i
	return i
}

// addEdge keeps only the best rate per direction; venues list one book per
// pair so collisions only occur with overlapping synthetic symbols.
func (g *triGraph) addEdge(e triEdge) {
	key := [2]int{e.from, e.to}
	if i, ok := g.best[key]; ok {
		if e.rate > g.edges[i].rate {
			g.edges[i] = e
		}
		return
	}
	g.best[key] = len(g.edges)
	g.edges = append(g.edges, e)
}

func buildRateGraph(exchange string, books []models.OrderBookSnapshot, strat models.StrategyConfig, now time.Time) *triGraph {
	g := &triGraph{index: make(map[string]int), best: make(map[[2]int]int)}
	fee := 1 - float64(strat.FeeBps(exchange))/10000

	for _, book := range books {
		base, quote, err := models.SplitSymbol(book.Symbol)
		if err != nil {
			continue
		}
		age := book.Age(now)

		if ask, ok := book.BestAsk(); ok && ask.Price.IsPositive() && ask.Qty.IsPositive() {
			price, _ := ask.Price.Float64()
			qty, _ := ask.Qty.Float64()
			rate := fee / price // quote -> base
			if rate > 0 {
				g.addEdge(triEdge{
					from:      g.node(quote),
					to:        g.node(base),
					rate:      rate,
					weight:    -math.Log(rate),
					capInFrom: qty * price,
					bookAge:   age,
				})
			}
		}
		if bid, ok := book.BestBid(); ok && bid.Price.IsPositive() && bid.Qty.IsPositive() {
			price, _ := bid.Price.Float64()
			qty, _ := bid.Qty.Float64()
			rate := price * fee // base -> quote
			if rate > 0 {
				g.addEdge(triEdge{
					from:      g.node(base),
					to:        g.node(quote),
					rate:      rate,
					weight:    -math.Log(rate),
					capInFrom: qty,
					bookAge:   age,
				})
			}
		}
	}
	return g
}

// detectTriangular finds profitable conversion loops on one venue via
// Bellman-Ford negative-cycle detection over -log(rate) weights. Books must
// already be fresh; the caller groups them per exchange.
func detectTriangular(exchange string, books []models.OrderBookSnapshot, strat models.StrategyConfig, staleAfter time.Duration, now time.Time) []models.Opportunity {
	if strat.Blacklisted(exchange) || len(books) < 3 {
		return nil
	}
	g := buildRateGraph(exchange, books, strat, now)
	n := len(g.assets)
	if n < 3 || len(g.edges) < 3 {
		return nil
	}

	// Virtual source: every node starts reachable at distance zero.
	dist := make([]float64, n)
	predEdge := make([]int, n)
	for i := range predEdge {
		predEdge[i] = -1
	}
	for i := 0; i < n-1; i++ {
		relaxed := false
		for ei, e := range g.edges {
			if next := dist[e.from] + e.weight; next < dist[e.to]-relaxEpsilon {
				dist[e.to] = next
				predEdge[e.to] = ei
				relaxed = true
			}
		}
		if !relaxed {
			break
		}
	}

	var opps []models.Opportunity
	seen := make(map[string]bool)
	for _, e := range g.edges {
		if dist[e.from]+e.weight >= dist[e.to]-relaxEpsilon {
			continue
		}
		cycle := extractCycle(g, predEdge, e.to)
		if len(cycle) < 3 {
			continue
		}
		key := canonicalCycle(g, cycle)
		if seen[key] {
			continue
		}
		seen[key] = true
		if opp, ok := scoreCycle(exchange, g, cycle, strat, staleAfter, now); ok {
			opps = append(opps, opp)
		}
	}
	return opps
}

// extractCycle walks predecessor edges n steps to land inside the cycle,
// then collects it in forward order.
func extractCycle(g *triGraph, predEdge []int, start int) []int {
	x := start
	for i := 0; i < len(g.assets); i++ {
		ei := predEdge[x]
		if ei < 0 {
			return nil
		}
		x = g.edges[ei].from
	}
	var rev []int
	cur := x
	for {
		rev = append(rev, cur)
		ei := predEdge[cur]
		if ei < 0 {
			return nil
		}
		cur = g.edges[ei].from
		if cur == x {
			break
		}
		if len(rev) > len(g.assets) {
			return nil
		}
	}
	for i, j := 0, len(rev)-1; i < j; i, j = i+1, j-1 {
		rev[i], rev[j] = rev[j], rev[i]
	}
	return rev
}

// canonicalCycle keys a cycle by its rotation starting at the smallest asset
// so the same loop found from different edges dedupes.
func canonicalCycle(g *triGraph, cycle []int) string {
	min := 0
	for i := 1; i < len(cycle); i++ {
		if g.assets[cycle[i]] < g.assets[cycle[min]] {
			min = i
		}
	}
	parts := make([]string, 0, len(cycle))
	for i := 0; i < len(cycle); i++ {
		parts = append(parts, g.assets[cycle[(min+i)%len(cycle)]])
	}
	return strings.Join(parts, ">")
}

// scoreCycle prices the loop: cumulative rate product gives the edge, the
// tightest leg (converted back to start-asset units) gives the capacity.
// Cycles containing USDT are rotated to start there so the notional caps and
// profit are USDT-denominated.
func scoreCycle(exchange string, g *triGraph, cycle []int, strat models.StrategyConfig, staleAfter time.Duration, now time.Time) (models.Opportunity, bool) {
	start := 0
	for i, node := range cycle {
		if g.assets[node] == "USDT" {
			start = i
			break
		}
	}

	cum := 1.0
	startCap := math.Inf(1)
	worstAge := time.Duration(0)
	for i := 0; i < len(cycle); i++ {
		from := cycle[(start+i)%len(cycle)]
		to := cycle[(start+i+1)%len(cycle)]
		ei, ok := g.best[[2]int{from, to}]
		if !ok {
			return models.Opportunity{}, false
		}
		e := g.edges[ei]
		if legCap := e.capInFrom / cum; legCap < startCap {
			startCap = legCap
		}
		if e.bookAge > worstAge {
			worstAge = e.bookAge
		}
		cum *= e.rate
	}

	buffer, _ := strat.TriEdgeBufferPct.Float64()
	netPct := (cum-1)*100 - buffer
	minNet, _ := strat.MinNetEdgePct.Float64()
	if netPct < minNet || startCap <= 0 || math.IsInf(startCap, 1) {
		return models.Opportunity{}, false
	}

	startAsset := g.assets[cycle[start]]
	startAmt := startCap
	profit := decimal.Zero
	if startAsset == "USDT" {
		tradeNotional, _ := strat.TradeNotionalUSDT.Float64()
		if startAmt > tradeNotional {
			startAmt = tradeNotional
		}
		maxNotional, _ := strat.MaxNotionalUSDT.Float64()
		if startAmt > maxNotional {
			return models.Opportunity{}, false
		}
		profit = decimal.NewFromFloatWithExponent(startAmt*netPct/100, -8)
	}

	assets := make([]string, 0, len(cycle)+1)
	for i := 0; i <= len(cycle); i++ {
		assets = append(assets, g.assets[cycle[(start+i)%len(cycle)]])
	}

	risk := models.RiskNone
	riskFactor, _ := strat.RiskThinDepthFactor.Float64()
	switch {
	case startCap < riskFactor*startAmt:
		risk = models.RiskThinLiquidity
	case worstAge > staleAfter/2:
		risk = models.RiskDegradedHealth
	}

	opp := models.Opportunity{
		Type:               models.KindTriangular,
		Symbol:             strings.Join(assets[:len(assets)-1], "/"),
		Exchange:           exchange,
		AssetCycle:         assets,
		NetEdgePct:         decimal.NewFromFloatWithExponent(netPct, -8),
		GrossEdgePct:       decimal.NewFromFloatWithExponent((cum-1)*100, -8),
		ExpectedProfitUSDT: profit,
		AvailableQty:       decimal.NewFromFloatWithExponent(startAmt, -8),
		RiskFlag:           risk,
		TsDetected:         now,
	}
	opp.ID = opp.Fingerprint()
	return opp, true
}

// groupByExchange partitions fresh books for per-venue cycle detection.
func groupByExchange(books []models.OrderBookSnapshot) map[string][]models.OrderBookSnapshot {
	out := make(map[string][]models.OrderBookSnapshot)
	for _, b := range books {
		out[b.Exchange] = append(out[b.Exchange], b)
	}
	return out
}

// sortedExchanges keeps per-tick output deterministic.
func sortedExchanges(grouped map[string][]models.OrderBookSnapshot) []string {
	out := make([]string, 0, len(grouped))
	for ex := range grouped {
		out = append(out, ex)
	}
	sort.Strings(out)
	return out
}
