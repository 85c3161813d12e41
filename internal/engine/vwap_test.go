package engine

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/models"
)

func levels(pairs ...[2]string) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, models.PriceLevel{
			Price: decimal.RequireFromString(p[0]),
			Qty:   decimal.RequireFromString(p[1]),
		})
	}
	return out
}

func TestVWAP(t *testing.T) {
	tests := []struct {
		name       string
		levels     []models.PriceLevel
		target     string
		wantVWAP   string
		wantFilled string
	}{
		{
			name:       "partial boundary fill",
			levels:     levels([2]string{"100", "1"}, [2]string{"101", "2"}),
			target:     "2",
			wantVWAP:   "100.5",
			wantFilled: "2",
		},
		{
			name:       "exact single level",
			levels:     levels([2]string{"100", "3"}),
			target:     "3",
			wantVWAP:   "100",
			wantFilled: "3",
		},
		{
			name:       "under-filled book",
			levels:     levels([2]string{"100", "1"}, [2]string{"101", "2"}),
			target:     "5",
			wantVWAP:   "", // checked separately, repeating decimal
			wantFilled: "3",
		},
		{
			name:       "empty book",
			levels:     nil,
			target:     "1",
			wantVWAP:   "0",
			wantFilled: "0",
		},
		{
			name:       "zero target",
			levels:     levels([2]string{"100", "1"}),
			target:     "0",
			wantVWAP:   "0",
			wantFilled: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			vwap, filled := VWAP(tt.levels, decimal.RequireFromString(tt.target))
			if !filled.Equal(decimal.RequireFromString(tt.wantFilled)) {
				t.Errorf("filled = %s, want %s", filled, tt.wantFilled)
			}
			if tt.wantVWAP != "" && !vwap.Equal(decimal.RequireFromString(tt.wantVWAP)) {
				t.Errorf("vwap = %s, want %s", vwap, tt.wantVWAP)
			}
		})
	}

	// The under-filled case averages what it consumed: 302/3.
	vwap, filled := VWAP(levels([2]string{"100", "1"}, [2]string{"101", "2"}), decimal.NewFromInt(5))
	if !filled.Equal(decimal.NewFromInt(3)) {
		t.Fatalf("filled = %s, want 3", filled)
	}
	want := decimal.RequireFromString("100.6667")
	if vwap.Sub(want).Abs().GreaterThan(decimal.RequireFromString("0.0001")) {
		t.Errorf("vwap = %s, want about %s", vwap, want)
	}
}

func BenchmarkVWAP(b *testing.B) {
	book := make([]models.PriceLevel, 20)
	for i := range book {
		book[i] = models.PriceLevel{
			Price: decimal.NewFromInt(int64(10000 + i)),
			Qty:   decimal.RequireFromString("0.8"),
		}
	}
	target := decimal.NewFromInt(10)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		VWAP(book, target)
	}
}
