package models

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// PriceLevel is one order-book level. Prices and quantities are decimals end
// to end; profitability math never touches binary floats.
type PriceLevel struct {
	Price decimal.Decimal `json:"price"`
	Qty   decimal.Decimal `json:"qty"`
}

// OrderBookSnapshot is one exchange's current view of one instrument and the
// payload published on the snapshots topic. A snapshot is immutable once
// stored: an update replaces the whole value for its (exchange, symbol) key.
type OrderBookSnapshot struct {
	Exchange string            `json:"exchange"`
	Symbol   string            `json:"symbol"`
	Bids     []PriceLevel      `json:"bids"` // best (highest price) first
	Asks     []PriceLevel      `json:"asks"` // best (lowest price) first
	TsEvent  time.Time         `json:"ts_event"`
	TsIngest time.Time         `json:"ts_ingest"`
	Healthy  bool              `json:"is_healthy"`
	Meta     map[string]string `json:"meta,omitempty"`
}

// BookKey builds the canonical store key for an (exchange, symbol) pair.
func BookKey(exchange, symbol string) string {
	return exchange + ":" + symbol
}

func (s *OrderBookSnapshot) Key() string {
	return BookKey(s.Exchange, s.Symbol)
}

func (s *OrderBookSnapshot) BestBid() (PriceLevel, bool) {
	if len(s.Bids) == 0 {
		return PriceLevel{}, false
	}
	return s.Bids[0], true
}

func (s *OrderBookSnapshot) BestAsk() (PriceLevel, bool) {
	if len(s.Asks) == 0 {
		return PriceLevel{}, false
	}
	return s.Asks[0], true
}

// Age reports how long ago the snapshot was ingested locally.
func (s *OrderBookSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.TsIngest)
}

// Fresh reports whether the snapshot is healthy and younger than staleAfter.
func (s *OrderBookSnapshot) Fresh(now time.Time, staleAfter time.Duration) bool {
	return s.Healthy && s.Age(now) <= staleAfter
}

// Validate enforces the snapshot invariants: bid levels strictly descending,
// ask levels strictly ascending, no duplicate prices, no negative quantities.
func (s *OrderBookSnapshot) Validate() error {
	if s.Exchange == "" || s.Symbol == "" {
		return fmt.Errorf("snapshot missing exchange or symbol")
	}
	for i, lvl := range s.Bids {
		if lvl.Qty.IsNegative() {
			return fmt.Errorf("%s: bid level %d has negative qty", s.Key(), i)
		}
		if i > 0 && !lvl.Price.LessThan(s.Bids[i-1].Price) {
			return fmt.Errorf("%s: bids not strictly descending at level %d", s.Key(), i)
		}
	}
	for i, lvl := range s.Asks {
		if lvl.Qty.IsNegative() {
			return fmt.Errorf("%s: ask level %d has negative qty", s.Key(), i)
		}
		if i > 0 && !lvl.Price.GreaterThan(s.Asks[i-1].Price) {
			return fmt.Errorf("%s: asks not strictly ascending at level %d", s.Key(), i)
		}
	}
	return nil
}

// HealthEvent signals a connector-level health transition so the store can
// exclude an exchange's books without waiting for a staleness timeout.
type HealthEvent struct {
	Exchange string    `json:"exchange"`
	Healthy  bool      `json:"healthy"`
	Reason   string    `json:"reason,omitempty"`
	Ts       time.Time `json:"ts"`
}

// SplitSymbol breaks a canonical BASE-QUOTE symbol into its assets.
func SplitSymbol(symbol string) (base, quote string, err error) {
	base, quote, ok := strings.Cut(symbol, "-")
	if !ok || base == "" || quote == "" {
		return "", "", fmt.Errorf("symbol %q is not BASE-QUOTE", symbol)
	}
	return base, quote, nil
}
