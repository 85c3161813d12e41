package connectors

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/models"
)

// Reference mids for the common symbols; unknown symbols start at 100.
var mockBasePrice = map[string]float64{
	"BTC-USDT": 65000,
	"ETH-USDT": 3200,
	"SOL-USDT": 150,
	"ETH-BTC":  0.05,
}

const (
	mockDriftRange  = 0.0006  // per-tick random walk of the mid
	mockSpreadBase  = 0.0004  // minimum half-book spread fraction
	mockSpreadJit   = 0.0008  // additional randomized spread fraction
	mockLevelStep   = 0.00025 // price distance between levels
	mockQtyMin      = 0.4
	mockQtySpan     = 2.1 // qty drawn from [0.4, 2.5)
	mockFlakeChance = 0.002
)

// Mock synthesizes order books with a deterministic per-venue price bias, so
// a fleet of mocks disagrees just enough to produce occasional detectable
// edges. Venue index i of n is biased by (i - (n-1)/2) * BiasStep. The RNG
// is seeded from the index: runs are reproducible venue by venue.
type Mock struct {
	name string
	bias float64
	seed int64
	opts Options

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	snaps   chan models.OrderBookSnapshot
	events  chan models.HealthEvent
}

func NewMock(exchange string, index, total int, opts Options) *Mock {
	mid := float64(total-1) / 2
	return &Mock{
		name: exchange,
		bias: (float64(index) - mid) * opts.BiasStep,
		seed: int64(1000 + index),
		opts: opts,
	}
}

func (m *Mock) Name() string { return m.name }

func (m *Mock) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("mock %s: already running", m.name)
	}
	runCtx, cancel := context.WithCancel(ctx)
	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.snaps = make(chan models.OrderBookSnapshot, 64)
	m.events = make(chan models.HealthEvent, 8)
	go m.loop(runCtx, m.snaps, m.events, m.done)
	return nil
}

func (m *Mock) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel := m.cancel
	done := m.done
	m.running = false
	m.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Mock) Snapshots() <-chan models.OrderBookSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps
}

func (m *Mock) Events() <-chan models.HealthEvent {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.events
}

func (m *Mock) loop(ctx context.Context, snaps chan<- models.OrderBookSnapshot, events chan<- models.HealthEvent, done chan<- struct{}) {
	defer close(done)
	defer close(snaps)
	defer close(events)

	rng := rand.New(rand.NewSource(m.seed))
	mids := make(map[string]float64, len(m.opts.Symbols))
	for _, symbol := range m.opts.Symbols {
		base := mockBasePrice[symbol]
		if base == 0 {
			base = 100
		}
		mids[symbol] = base * (1 + m.bias)
	}

	ticker := time.NewTicker(m.opts.Interval)
	defer ticker.Stop()

	sickTicks := 0
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if sickTicks > 0 {
			sickTicks--
			if sickTicks == 0 {
				m.emitHealth(ctx, events, true, "recovered")
			}
			continue
		}
		if rng.Float64() < mockFlakeChance {
			sickTicks = 2 + rng.Intn(4)
			m.emitHealth(ctx, events, false, "simulated outage")
			continue
		}

		now := time.Now()
		for _, symbol := range m.opts.Symbols {
			mids[symbol] *= 1 + (rng.Float64()*2-1)*mockDriftRange
			snap := m.makeBook(rng, symbol, mids[symbol], now)
			select {
			case snaps <- snap:
			case <-ctx.Done():
				return
			}
		}
	}
}

func (m *Mock) emitHealth(ctx context.Context, events chan<- models.HealthEvent, healthy bool, reason string) {
	ev := models.HealthEvent{Exchange: m.name, Healthy: healthy, Reason: reason, Ts: time.Now()}
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

func (m *Mock) makeBook(rng *rand.Rand, symbol string, mid float64, now time.Time) models.OrderBookSnapshot {
	spread := mid * (mockSpreadBase + rng.Float64()*mockSpreadJit)
	step := mid * mockLevelStep

	bids := make([]models.PriceLevel, 0, m.opts.Depth)
	asks := make([]models.PriceLevel, 0, m.opts.Depth)
	for i := 0; i < m.opts.Depth; i++ {
		offset := spread/2 + float64(i)*step
		bids = append(bids, models.PriceLevel{
			Price: decimal.NewFromFloatWithExponent(mid-offset, -8),
			Qty:   decimal.NewFromFloatWithExponent(mockQtyMin+rng.Float64()*mockQtySpan, -4),
		})
		asks = append(asks, models.PriceLevel{
			Price: decimal.NewFromFloatWithExponent(mid+offset, -8),
			Qty:   decimal.NewFromFloatWithExponent(mockQtyMin+rng.Float64()*mockQtySpan, -4),
		})
	}

	return models.OrderBookSnapshot{
		Exchange: m.name,
		Symbol:   symbol,
		Bids:     bids,
		Asks:     asks,
		TsEvent:  now,
		TsIngest: now,
		Healthy:  true,
		Meta:     map[string]string{"source": "mock"},
	}
}
