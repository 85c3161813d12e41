package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/models"
)

const (
	DefaultExchanges = "binance,coinbase,kraken,okx,bybit,kucoin,gateio,mexc,bitget,htx,upbit,bingx,bitfinex,xt"
	DefaultSymbols   = "BTC-USDT,ETH-USDT,SOL-USDT"
)

// AllowedScanIntervals is the closed set of scan cadences, in seconds.
var AllowedScanIntervals = map[int]bool{5: true, 10: true, 15: true, 30: true, 60: true, 300: true, 600: true}

// Settings is the full environment-derived configuration for the scanner
// process. Load fills it with defaults and overrides; callers must run
// Validate before wiring components.
type Settings struct {
	Exchanges []string
	Symbols   []string

	ScanIntervalSec int
	StaleAfterSec   int

	TradeNotionalUSDT    decimal.Decimal
	MaxNotionalUSDT      decimal.Decimal
	MinNetEdgePct        decimal.Decimal
	TakerFeeBps          int64
	TakerFeeBpsOverrides map[string]int64
	SlippageBps          int64
	WithdrawCostUSDT     decimal.Decimal
	BlacklistedVenues    []string
	MinQty               decimal.Decimal
	RiskThinDepthFactor  decimal.Decimal
	MaxOppsPerScan       int
	TriEnabled           bool
	TriEdgeBufferPct     decimal.Decimal

	ConnectorMode       string
	ConnectorIntervalMS int
	OrderbookDepth      int
	MockBiasStep        float64

	StoreMode string
	BusMode   string
	BusBuffer int

	KafkaBrokers       []string
	SnapshotsTopic     string
	OpportunitiesTopic string
	RedisURL           string

	APIAddr    string
	SQLitePath string

	TelegramBotToken       string
	TelegramChatIDs        []string
	TelegramDebounceSec    int
	TelegramMinIntervalSec int
	TelegramMaxRows        int

	feeOverrideErr error
}

// Load reads the environment (after a best-effort .env load) and returns the
// settings with defaults applied. Malformed numeric values fall back to the
// default for that variable; structural problems surface via Validate.
func Load() *Settings {
	godotenv.Load()

	s := &Settings{
		Exchanges: envList("EXCHANGES", DefaultExchanges, strings.ToLower),
		Symbols:   envList("SYMBOLS", DefaultSymbols, strings.ToUpper),

		ScanIntervalSec: envInt("SCAN_INTERVAL_SEC", 5),
		StaleAfterSec:   envInt("STALE_AFTER_SEC", 30),

		TradeNotionalUSDT:   envDecimal("TRADE_NOTIONAL_USDT", "1000"),
		MaxNotionalUSDT:     envDecimal("MAX_NOTIONAL_USDT", "10000"),
		MinNetEdgePct:       envDecimal("MIN_NET_EDGE_PCT", "0.2"),
		TakerFeeBps:         int64(envInt("TAKER_FEE_BPS", 10)),
		SlippageBps:         int64(envInt("SLIPPAGE_BPS", 5)),
		WithdrawCostUSDT:    envDecimal("WITHDRAW_COST_USDT", "2"),
		BlacklistedVenues:   envList("BLACKLISTED_VENUES", "", strings.ToLower),
		MinQty:              envDecimal("MIN_QTY", "0.0001"),
		RiskThinDepthFactor: envDecimal("RISK_THIN_DEPTH_FACTOR", "2.0"),
		MaxOppsPerScan:      envInt("MAX_OPPS_PER_SCAN", 150),
		TriEnabled:          envBool("TRI_ENABLED", false),
		TriEdgeBufferPct:    envDecimal("TRI_EDGE_BUFFER_PCT", "0"),

		ConnectorMode:       strings.ToLower(envStr("CONNECTOR_MODE", "mock")),
		ConnectorIntervalMS: envInt("CONNECTOR_INTERVAL_MS", 350),
		OrderbookDepth:      envInt("ORDERBOOK_DEPTH", 20),
		MockBiasStep:        envFloat("MOCK_BIAS_STEP", 0.0045),

		StoreMode: strings.ToLower(envStr("STORE_MODE", "auto")),
		BusMode:   strings.ToLower(envStr("BUS_MODE", "auto")),
		BusBuffer: envInt("BUS_BUFFER", 64),

		KafkaBrokers:       envList("KAFKA_BROKERS", "localhost:9092", nil),
		SnapshotsTopic:     envStr("SNAPSHOTS_TOPIC", "snapshots"),
		OpportunitiesTopic: envStr("OPPORTUNITIES_TOPIC", "opportunities"),
		RedisURL:           envStr("REDIS_URL", ""),

		APIAddr:    envStr("API_ADDR", ":8087"),
		SQLitePath: envStr("SQLITE_PATH", "data/crossarb.db"),

		TelegramBotToken:       envStr("TELEGRAM_BOT_TOKEN", ""),
		TelegramChatIDs:        envList("TELEGRAM_CHAT_IDS", "", nil),
		TelegramDebounceSec:    envInt("TELEGRAM_DEBOUNCE_SEC", 15),
		TelegramMinIntervalSec: envInt("TELEGRAM_MIN_INTERVAL_SEC", 3),
		TelegramMaxRows:        envInt("TELEGRAM_MAX_ROWS", 5),
	}

	overrides, err := ParseFeeOverrides(envStr("TAKER_FEE_BPS_OVERRIDES", ""))
	if err != nil {
		s.feeOverrideErr = err
	}
	s.TakerFeeBpsOverrides = overrides
	return s
}

// Validate checks the loaded settings and reports every problem at once.
func (s *Settings) Validate() error {
	var errs []string

	if len(s.Exchanges) == 0 {
		errs = append(errs, "EXCHANGES must name at least one venue")
	}
	if len(s.Symbols) == 0 {
		errs = append(errs, "SYMBOLS must name at least one symbol")
	}
	for _, sym := range s.Symbols {
		if _, _, err := models.SplitSymbol(sym); err != nil {
			errs = append(errs, fmt.Sprintf("SYMBOLS: %v", err))
		}
	}
	if !AllowedScanIntervals[s.ScanIntervalSec] {
		errs = append(errs, fmt.Sprintf("SCAN_INTERVAL_SEC %d not in allowed set %v", s.ScanIntervalSec, allowedIntervalList()))
	}
	if s.StaleAfterSec <= 0 {
		errs = append(errs, "STALE_AFTER_SEC must be > 0")
	}
	if !s.TradeNotionalUSDT.IsPositive() {
		errs = append(errs, "TRADE_NOTIONAL_USDT must be > 0")
	}
	if !s.MaxNotionalUSDT.IsPositive() {
		errs = append(errs, "MAX_NOTIONAL_USDT must be > 0")
	}
	if s.MaxNotionalUSDT.LessThan(s.TradeNotionalUSDT) {
		errs = append(errs, "MAX_NOTIONAL_USDT must be >= TRADE_NOTIONAL_USDT")
	}
	if s.MinNetEdgePct.IsNegative() {
		errs = append(errs, "MIN_NET_EDGE_PCT must be >= 0")
	}
	if s.TakerFeeBps < 0 {
		errs = append(errs, "TAKER_FEE_BPS must be >= 0")
	}
	if s.feeOverrideErr != nil {
		errs = append(errs, fmt.Sprintf("TAKER_FEE_BPS_OVERRIDES: %v", s.feeOverrideErr))
	}
	if s.SlippageBps < 0 {
		errs = append(errs, "SLIPPAGE_BPS must be >= 0")
	}
	if s.WithdrawCostUSDT.IsNegative() {
		errs = append(errs, "WITHDRAW_COST_USDT must be >= 0")
	}
	if !s.MinQty.IsPositive() {
		errs = append(errs, "MIN_QTY must be > 0")
	}
	if !s.RiskThinDepthFactor.IsPositive() {
		errs = append(errs, "RISK_THIN_DEPTH_FACTOR must be > 0")
	}
	if s.MaxOppsPerScan < 1 {
		errs = append(errs, "MAX_OPPS_PER_SCAN must be >= 1")
	}
	if s.TriEdgeBufferPct.IsNegative() {
		errs = append(errs, "TRI_EDGE_BUFFER_PCT must be >= 0")
	}
	if s.ConnectorMode != "mock" && s.ConnectorMode != "live" {
		errs = append(errs, fmt.Sprintf("CONNECTOR_MODE %q unknown (mock|live)", s.ConnectorMode))
	}
	if s.ConnectorIntervalMS < 50 {
		errs = append(errs, "CONNECTOR_INTERVAL_MS must be >= 50")
	}
	if s.OrderbookDepth < 1 {
		errs = append(errs, "ORDERBOOK_DEPTH must be >= 1")
	}
	switch s.StoreMode {
	case "auto", "redis", "memory":
	default:
		errs = append(errs, fmt.Sprintf("STORE_MODE %q unknown (auto|redis|memory)", s.StoreMode))
	}
	switch s.BusMode {
	case "auto", "kafka", "redis", "inmemory":
	default:
		errs = append(errs, fmt.Sprintf("BUS_MODE %q unknown (auto|kafka|redis|inmemory)", s.BusMode))
	}
	if s.BusBuffer < 1 {
		errs = append(errs, "BUS_BUFFER must be >= 1")
	}
	if s.TelegramMaxRows < 1 {
		errs = append(errs, "TELEGRAM_MAX_ROWS must be >= 1")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Strategy builds the per-cycle detection parameters from the settings.
func (s *Settings) Strategy() models.StrategyConfig {
	blacklist := make(map[string]bool, len(s.BlacklistedVenues))
	for _, v := range s.BlacklistedVenues {
		blacklist[v] = true
	}
	return models.StrategyConfig{
		MinNetEdgePct:       s.MinNetEdgePct,
		TakerFeeBps:         s.TakerFeeBps,
		TakerFeeBpsByVenue:  s.TakerFeeBpsOverrides,
		SlippageBps:         s.SlippageBps,
		WithdrawCostUSDT:    s.WithdrawCostUSDT,
		TradeNotionalUSDT:   s.TradeNotionalUSDT,
		MaxNotionalUSDT:     s.MaxNotionalUSDT,
		MinQty:              s.MinQty,
		BlacklistedVenues:   blacklist,
		RiskThinDepthFactor: s.RiskThinDepthFactor,
		TriEnabled:          s.TriEnabled,
		TriEdgeBufferPct:    s.TriEdgeBufferPct,
	}
}

// ParseFeeOverrides parses "venue:bps,venue:bps" into a per-venue fee map.
// Venue names are lowercased. An empty input yields an empty map.
func ParseFeeOverrides(raw string) (map[string]int64, error) {
	out := map[string]int64{}
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		venue, bpsStr, ok := strings.Cut(part, ":")
		if !ok {
			return out, fmt.Errorf("entry %q not in venue:bps form", part)
		}
		venue = strings.ToLower(strings.TrimSpace(venue))
		bps, err := strconv.ParseInt(strings.TrimSpace(bpsStr), 10, 64)
		if err != nil || venue == "" || bps < 0 {
			return out, fmt.Errorf("entry %q not in venue:bps form", part)
		}
		out[venue] = bps
	}
	return out, nil
}

func allowedIntervalList() []int {
	return []int{5, 10, 15, 30, 60, 300, 600}
}
