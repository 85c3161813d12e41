package models

import "github.com/shopspring/decimal"

// StrategyConfig carries the tunable detection parameters for one scan
// cycle. The scanner clones the active config at the start of each cycle so
// mid-cycle preference updates cannot tear a scan.
type StrategyConfig struct {
	MinNetEdgePct       decimal.Decimal  `json:"min_net_edge_pct"`
	TakerFeeBps         int64            `json:"taker_fee_bps"`
	TakerFeeBpsByVenue  map[string]int64 `json:"taker_fee_bps_by_venue,omitempty"`
	SlippageBps         int64            `json:"slippage_bps"`
	WithdrawCostUSDT    decimal.Decimal  `json:"withdraw_cost_usdt"`
	TradeNotionalUSDT   decimal.Decimal  `json:"trade_notional_usdt"`
	MaxNotionalUSDT     decimal.Decimal  `json:"max_notional_usdt"`
	MinQty              decimal.Decimal  `json:"min_qty"`
	BlacklistedVenues   map[string]bool  `json:"blacklisted_venues,omitempty"`
	RiskThinDepthFactor decimal.Decimal  `json:"risk_thin_depth_factor"`
	TriEnabled          bool             `json:"tri_enabled"`
	TriEdgeBufferPct    decimal.Decimal  `json:"tri_edge_buffer_pct"`
}

// FeeBps resolves the taker fee for a venue, preferring a per-venue override
// over the global default.
func (s *StrategyConfig) FeeBps(venue string) int64 {
	if bps, ok := s.TakerFeeBpsByVenue[venue]; ok {
		return bps
	}
	return s.TakerFeeBps
}

// Blacklisted reports whether a venue is excluded from pairing.
func (s *StrategyConfig) Blacklisted(venue string) bool {
	return s.BlacklistedVenues[venue]
}

// Clone returns a deep copy safe to use concurrently with updates to the
// original.
func (s *StrategyConfig) Clone() StrategyConfig {
	out := *s
	if s.TakerFeeBpsByVenue != nil {
		out.TakerFeeBpsByVenue = make(map[string]int64, len(s.TakerFeeBpsByVenue))
		for k, v := range s.TakerFeeBpsByVenue {
			out.TakerFeeBpsByVenue[k] = v
		}
	}
	if s.BlacklistedVenues != nil {
		out.BlacklistedVenues = make(map[string]bool, len(s.BlacklistedVenues))
		for k, v := range s.BlacklistedVenues {
			out.BlacklistedVenues[k] = v
		}
	}
	return out
}
