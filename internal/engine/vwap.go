package engine

import (
	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/models"
)

// VWAP walks levels in book order, consuming whole levels and a partial take
// at the boundary, until target quantity is reached. It returns the
// volume-weighted average price of the filled portion and the filled
// quantity. filled < target means the book cannot host the trade; callers
// must treat that as inapplicable, not as a worse price.
func VWAP(levels []models.PriceLevel, target decimal.Decimal) (vwap, filled decimal.Decimal) {
	if !target.IsPositive() {
		return decimal.Zero, decimal.Zero
	}
	remaining := target
	cost := decimal.Zero
	for _, lvl := range levels {
		if !remaining.IsPositive() {
			break
		}
		take := decimal.Min(lvl.Qty, remaining)
		if !take.IsPositive() {
			continue
		}
		cost = cost.Add(lvl.Price.Mul(take))
		filled = filled.Add(take)
		remaining = remaining.Sub(take)
	}
	if filled.IsZero() {
		return decimal.Zero, decimal.Zero
	}
	return cost.Div(filled), filled
}

// depthQty sums the resting quantity across a whole book side.
func depthQty(levels []models.PriceLevel) decimal.Decimal {
	total := decimal.Zero
	for _, lvl := range levels {
		total = total.Add(lvl.Qty)
	}
	return total
}
