package engine

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/models"
)

var hundred = decimal.NewFromInt(100)

// evaluateSpatial scores one ordered (buy on A, sell on B) pair. ok is false
// whenever the pair is inapplicable: blacklisted venue, empty or too-shallow
// book, notional cap, or net edge below the floor. The reverse direction is
// a separate call.
func evaluateSpatial(buy, sell models.OrderBookSnapshot, strat models.StrategyConfig, staleAfter time.Duration, now time.Time) (models.Opportunity, bool) {
	if strat.Blacklisted(buy.Exchange) || strat.Blacklisted(sell.Exchange) {
		return models.Opportunity{}, false
	}

	bestAsk, ok := buy.BestAsk()
	if !ok || !bestAsk.Price.IsPositive() {
		return models.Opportunity{}, false
	}
	target := strat.TradeNotionalUSDT.Div(bestAsk.Price)
	if target.LessThan(strat.MinQty) {
		return models.Opportunity{}, false
	}

	buyVWAP, buyFilled := VWAP(buy.Asks, target)
	if buyFilled.LessThan(target) {
		return models.Opportunity{}, false
	}
	sellVWAP, sellFilled := VWAP(sell.Bids, target)
	if sellFilled.LessThan(target) {
		return models.Opportunity{}, false
	}

	qty := decimal.Min(buyFilled, sellFilled)
	if qty.LessThan(strat.MinQty) || !buyVWAP.IsPositive() {
		return models.Opportunity{}, false
	}
	notional := buyVWAP.Mul(qty)
	if notional.GreaterThan(strat.MaxNotionalUSDT) {
		return models.Opportunity{}, false
	}

	gross := sellVWAP.Sub(buyVWAP).Div(buyVWAP).Mul(hundred)
	fees := decimal.NewFromInt(strat.FeeBps(buy.Exchange) + strat.FeeBps(sell.Exchange)).Div(hundred)
	slip := decimal.NewFromInt(strat.SlippageBps).Div(hundred)
	withdraw := decimal.Zero
	if notional.IsPositive() {
		withdraw = strat.WithdrawCostUSDT.Div(notional).Mul(hundred)
	}
	net := gross.Sub(fees).Sub(slip).Sub(withdraw)
	if net.LessThan(strat.MinNetEdgePct) {
		return models.Opportunity{}, false
	}

	opp := models.Opportunity{
		Type:               models.KindSpatial,
		Symbol:             buy.Symbol,
		BuyExchange:        buy.Exchange,
		SellExchange:       sell.Exchange,
		BuyVWAP:            buyVWAP,
		SellVWAP:           sellVWAP,
		GrossEdgePct:       gross,
		NetEdgePct:         net,
		ExpectedProfitUSDT: notional.Mul(net).Div(hundred),
		AvailableQty:       qty,
		RiskFlag:           spatialRiskFlag(buy, sell, qty, strat, staleAfter, now),
		TsDetected:         now,
	}
	opp.ID = opp.Fingerprint()
	return opp, true
}

// spatialRiskFlag grades execution risk. Thin liquidity means either side's
// resting depth cannot absorb RiskThinDepthFactor times the trade; it takes
// precedence over degraded snapshot health (age past half the staleness
// horizon).
func spatialRiskFlag(buy, sell models.OrderBookSnapshot, qty decimal.Decimal, strat models.StrategyConfig, staleAfter time.Duration, now time.Time) string {
	needed := strat.RiskThinDepthFactor.Mul(qty)
	if depthQty(buy.Asks).LessThan(needed) || depthQty(sell.Bids).LessThan(needed) {
		return models.RiskThinLiquidity
	}
	half := staleAfter / 2
	if buy.Age(now) > half || sell.Age(now) > half {
		return models.RiskDegradedHealth
	}
	return models.RiskNone
}
