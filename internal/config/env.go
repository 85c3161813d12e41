package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

func envStr(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envBool(key string, def bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return def
}

func envDecimal(key, def string) decimal.Decimal {
	if val := os.Getenv(key); val != "" {
		if parsed, err := decimal.NewFromString(val); err == nil {
			return parsed
		}
	}
	return decimal.RequireFromString(def)
}

// envList splits a comma-separated variable, trims whitespace, drops empty
// entries, and applies norm to each entry when non-nil.
func envList(key, def string, norm func(string) string) []string {
	raw := envStr(key, def)
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if norm != nil {
			part = norm(part)
		}
		out = append(out, part)
	}
	return out
}
