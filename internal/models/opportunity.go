package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/hashutil"
)

// Kind discriminates the opportunity variants. The set is closed: spatial is
// the baseline, triangular reuses the same record shape.
type Kind string

const (
	KindSpatial    Kind = "spatial"
	KindTriangular Kind = "triangular"
)

// Risk flags attached to an opportunity. Empty means clean.
const (
	RiskNone           = ""
	RiskThinLiquidity  = "thin_liquidity"
	RiskDegradedHealth = "degraded_health"
)

// Opportunity is one detected arbitrage candidate and the payload published
// on the opportunities topic. It is a value object: produced once per scan
// cycle, never mutated after publication.
type Opportunity struct {
	ID                 string          `json:"id"`
	Type               Kind            `json:"type"`
	Symbol             string          `json:"symbol"`
	BuyExchange        string          `json:"buy_exchange,omitempty"`
	SellExchange       string          `json:"sell_exchange,omitempty"`
	Exchange           string          `json:"exchange,omitempty"`    // triangular: hosting venue
	AssetCycle         []string        `json:"asset_cycle,omitempty"` // triangular: closed loop, first == last
	BuyVWAP            decimal.Decimal `json:"buy_vwap"`
	SellVWAP           decimal.Decimal `json:"sell_vwap"`
	GrossEdgePct       decimal.Decimal `json:"gross_edge_pct"`
	NetEdgePct         decimal.Decimal `json:"net_edge_pct"`
	ExpectedProfitUSDT decimal.Decimal `json:"expected_profit_usdt"`
	AvailableQty       decimal.Decimal `json:"available_qty"`
	RiskFlag           string          `json:"risk_flag,omitempty"`
	TsDetected         time.Time       `json:"ts_detected"`
}

// Fingerprint identifies the opportunity shape independent of detection
// time: one venue pair in one direction for one symbol, or one cycle on one
// venue. Used for within-tick dedupe and for notifier debounce.
func (o *Opportunity) Fingerprint() string {
	if o.Type == KindTriangular {
		return strings.Join([]string{string(o.Type), o.Exchange, hashutil.HashStrings(o.AssetCycle...)[:12]}, ":")
	}
	return strings.Join([]string{string(o.Type), o.Symbol, o.BuyExchange, o.SellExchange}, ":")
}

// OpportunitySet is one scan cycle's qualifying detections, already deduped
// and sorted by net edge, and the payload published on the opportunities
// topic. Consumers receive whole cycles, never partial ones.
type OpportunitySet struct {
	Cycle         uint64        `json:"cycle"`
	TsDetected    time.Time     `json:"ts_detected"`
	ElapsedMS     int64         `json:"elapsed_ms"`
	Opportunities []Opportunity `json:"opportunities"`
}
