package scanner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/config"
)

// Preferences is the runtime-tunable slice of the configuration: which
// venues and symbols the next cycle scans and with what sizing. Everything
// else stays fixed for the process lifetime.
type Preferences struct {
	ActiveExchanges   []string        `json:"active_exchanges"`
	ActiveSymbols     []string        `json:"active_symbols"`
	ScanIntervalSec   int             `json:"scan_interval_sec"`
	TradeNotionalUSDT decimal.Decimal `json:"trade_notional_usdt"`
	MinNetEdgePct     decimal.Decimal `json:"min_net_edge_pct"`
}

func (p Preferences) clone() Preferences {
	out := p
	out.ActiveExchanges = append([]string(nil), p.ActiveExchanges...)
	out.ActiveSymbols = append([]string(nil), p.ActiveSymbols...)
	return out
}

// Update is a partial preferences change from PUT /api/settings. Nil fields
// keep the current value; present fields replace it whole.
type Update struct {
	ActiveExchanges   []string         `json:"active_exchanges"`
	ActiveSymbols     []string         `json:"active_symbols"`
	ScanIntervalSec   *int             `json:"scan_interval_sec"`
	TradeNotionalUSDT *decimal.Decimal `json:"trade_notional_usdt"`
	MinNetEdgePct     *decimal.Decimal `json:"min_net_edge_pct"`
}

// defaultPreferences starts with everything the process was configured with
// active.
func defaultPreferences(cfg *config.Settings) Preferences {
	return Preferences{
		ActiveExchanges:   append([]string(nil), cfg.Exchanges...),
		ActiveSymbols:     append([]string(nil), cfg.Symbols...),
		ScanIntervalSec:   cfg.ScanIntervalSec,
		TradeNotionalUSDT: cfg.TradeNotionalUSDT,
		MinNetEdgePct:     cfg.MinNetEdgePct,
	}
}

// apply validates the update against the configured universe and returns the
// merged preferences. The receiver is not modified; a rejected update leaves
// the running preferences untouched.
func (p Preferences) apply(u Update, cfg *config.Settings) (Preferences, error) {
	next := p.clone()
	var errs []string

	if u.ActiveExchanges != nil {
		cleaned, err := subsetOf(u.ActiveExchanges, cfg.Exchanges, "exchange", strings.ToLower)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			next.ActiveExchanges = cleaned
		}
	}
	if u.ActiveSymbols != nil {
		cleaned, err := subsetOf(u.ActiveSymbols, cfg.Symbols, "symbol", strings.ToUpper)
		if err != nil {
			errs = append(errs, err.Error())
		} else {
			next.ActiveSymbols = cleaned
		}
	}
	if u.ScanIntervalSec != nil {
		if !config.AllowedScanIntervals[*u.ScanIntervalSec] {
			errs = append(errs, fmt.Sprintf("scan_interval_sec %d not allowed", *u.ScanIntervalSec))
		} else {
			next.ScanIntervalSec = *u.ScanIntervalSec
		}
	}
	if u.TradeNotionalUSDT != nil {
		switch {
		case !u.TradeNotionalUSDT.IsPositive():
			errs = append(errs, "trade_notional_usdt must be > 0")
		case u.TradeNotionalUSDT.GreaterThan(cfg.MaxNotionalUSDT):
			errs = append(errs, fmt.Sprintf("trade_notional_usdt exceeds max notional %s", cfg.MaxNotionalUSDT))
		default:
			next.TradeNotionalUSDT = *u.TradeNotionalUSDT
		}
	}
	if u.MinNetEdgePct != nil {
		if u.MinNetEdgePct.IsNegative() {
			errs = append(errs, "min_net_edge_pct must be >= 0")
		} else {
			next.MinNetEdgePct = *u.MinNetEdgePct
		}
	}

	if len(errs) > 0 {
		return p, fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return next, nil
}

// subsetOf normalizes, dedupes, and checks that every requested name was
// configured at startup. An empty request is rejected: at least one venue
// and one symbol must stay active.
func subsetOf(requested, configured []string, kind string, norm func(string) string) ([]string, error) {
	allowed := make(map[string]bool, len(configured))
	for _, name := range configured {
		allowed[name] = true
	}
	seen := make(map[string]bool, len(requested))
	out := make([]string, 0, len(requested))
	var unknown []string
	for _, name := range requested {
		name = norm(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		if !allowed[name] {
			unknown = append(unknown, name)
			continue
		}
		out = append(out, name)
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("unknown %s(s): %s", kind, strings.Join(unknown, ", "))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("active_%ss must keep at least one %s", kind, kind)
	}
	return out, nil
}
