package config

import (
	"strings"
	"testing"
)

func TestLoadDefaults(t *testing.T) {
	s := Load()

	if len(s.Exchanges) != 14 {
		t.Errorf("default exchanges = %d, want 14", len(s.Exchanges))
	}
	if len(s.Symbols) != 3 || s.Symbols[0] != "BTC-USDT" {
		t.Errorf("default symbols = %v", s.Symbols)
	}
	if s.ScanIntervalSec != 5 {
		t.Errorf("default scan interval = %d, want 5", s.ScanIntervalSec)
	}
	if s.MinNetEdgePct.String() != "0.2" {
		t.Errorf("default min net edge = %s, want 0.2", s.MinNetEdgePct)
	}
	if s.BusMode != "auto" || s.StoreMode != "auto" {
		t.Errorf("default modes = bus %q store %q, want auto/auto", s.BusMode, s.StoreMode)
	}
	if err := s.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("EXCHANGES", "Binance, KRAKEN")
	t.Setenv("SYMBOLS", "btc-usdt")
	t.Setenv("SCAN_INTERVAL_SEC", "30")
	t.Setenv("TAKER_FEE_BPS_OVERRIDES", "kraken:26, okx:8")
	t.Setenv("TRI_ENABLED", "true")

	s := Load()
	if len(s.Exchanges) != 2 || s.Exchanges[0] != "binance" || s.Exchanges[1] != "kraken" {
		t.Errorf("exchanges not normalized: %v", s.Exchanges)
	}
	if s.Symbols[0] != "BTC-USDT" {
		t.Errorf("symbols not normalized: %v", s.Symbols)
	}
	if s.ScanIntervalSec != 30 {
		t.Errorf("scan interval = %d, want 30", s.ScanIntervalSec)
	}
	if s.TakerFeeBpsOverrides["kraken"] != 26 || s.TakerFeeBpsOverrides["okx"] != 8 {
		t.Errorf("fee overrides = %v", s.TakerFeeBpsOverrides)
	}
	if !s.TriEnabled {
		t.Error("TRI_ENABLED not applied")
	}
	if err := s.Validate(); err != nil {
		t.Errorf("overridden settings should validate, got %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad interval", map[string]string{"SCAN_INTERVAL_SEC": "7"}, "SCAN_INTERVAL_SEC"},
		{"bad symbol", map[string]string{"SYMBOLS": "BTCUSDT"}, "SYMBOLS"},
		{"no exchanges", map[string]string{"EXCHANGES": " , "}, "EXCHANGES"},
		{"bad connector mode", map[string]string{"CONNECTOR_MODE": "replay"}, "CONNECTOR_MODE"},
		{"bad bus mode", map[string]string{"BUS_MODE": "nats"}, "BUS_MODE"},
		{"bad fee override", map[string]string{"TAKER_FEE_BPS_OVERRIDES": "kraken=26"}, "TAKER_FEE_BPS_OVERRIDES"},
		{"notional inversion", map[string]string{"TRADE_NOTIONAL_USDT": "20000"}, "MAX_NOTIONAL_USDT"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := Load().Validate()
			if err == nil {
				t.Fatal("Validate() accepted invalid settings")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Validate() error %q does not mention %s", err, tt.want)
			}
		})
	}
}

func TestParseFeeOverrides(t *testing.T) {
	tests := []struct {
		raw     string
		want    map[string]int64
		wantErr bool
	}{
		{"", map[string]int64{}, false},
		{"kraken:26", map[string]int64{"kraken": 26}, false},
		{"Kraken:26,OKX:8", map[string]int64{"kraken": 26, "okx": 8}, false},
		{"kraken", nil, true},
		{"kraken:-5", nil, true},
		{":26", nil, true},
		{"kraken:abc", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseFeeOverrides(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseFeeOverrides(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if len(got) != len(tt.want) {
				t.Fatalf("ParseFeeOverrides(%q) = %v, want %v", tt.raw, got, tt.want)
			}
			for k, v := range tt.want {
				if got[k] != v {
					t.Errorf("ParseFeeOverrides(%q)[%s] = %d, want %d", tt.raw, k, got[k], v)
				}
			}
		})
	}
}

func TestStrategyMapping(t *testing.T) {
	t.Setenv("BLACKLISTED_VENUES", "mexc,xt")
	t.Setenv("TAKER_FEE_BPS_OVERRIDES", "kraken:26")

	s := Load().Strategy()
	if !s.Blacklisted("mexc") || !s.Blacklisted("xt") || s.Blacklisted("binance") {
		t.Errorf("blacklist mapping wrong: %v", s.BlacklistedVenues)
	}
	if s.FeeBps("kraken") != 26 || s.FeeBps("binance") != 10 {
		t.Errorf("fee mapping wrong: kraken=%d binance=%d", s.FeeBps("kraken"), s.FeeBps("binance"))
	}
	if s.TradeNotionalUSDT.String() != "1000" {
		t.Errorf("trade notional = %s, want 1000", s.TradeNotionalUSDT)
	}
}
