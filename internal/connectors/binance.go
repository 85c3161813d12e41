package connectors

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
)

const (
	binanceWSBase      = "wss://stream.binance.com:9443"
	binanceReadTimeout = 30 * time.Second
	binanceMaxBackoff  = 30 * time.Second
)

// Binance streams partial book depth over the combined-stream endpoint, one
// depth20@100ms stream per symbol on a single connection. Prices arrive as
// strings and go straight into decimals, no float hop.
type Binance struct {
	symbols map[string]string // stream name -> canonical symbol
	url     string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	snaps   chan models.OrderBookSnapshot
	events  chan models.HealthEvent
}

func NewBinance(symbols []string) *Binance {
	streams := make(map[string]string, len(symbols))
	names := make([]string, 0, len(symbols))
	for _, symbol := range symbols {
		name := strings.ToLower(strings.ReplaceAll(symbol, "-", "")) + "@depth20@100ms"
		streams[name] = symbol
		names = append(names, name)
	}
	return &Binance{
		symbols: streams,
		url:     fmt.Sprintf("%s/stream?streams=%s", binanceWSBase, strings.Join(names, "/")),
	}
}

func (b *Binance) Name() string { return "binance" }

func (b *Binance) Start(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.running {
		return fmt.Errorf("binance: already running")
	}
	runCtx, cancel := context.WithCancel(ctx)
	b.running = true
	b.cancel = cancel
	b.done = make(chan struct{})
	b.snaps = make(chan models.OrderBookSnapshot, 256)
	b.events = make(chan models.HealthEvent, 8)
	go b.loop(runCtx, b.snaps, b.events, b.done)
	return nil
}

func (b *Binance) Stop(ctx context.Context) error {
	b.mu.Lock()
	cancel := b.cancel
	done := b.done
	b.running = false
	b.mu.Unlock()
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

func (b *Binance) Snapshots() <-chan models.OrderBookSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snaps
}

func (b *Binance) Events() <-chan models.HealthEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.events
}

func (b *Binance) loop(ctx context.Context, snaps chan<- models.OrderBookSnapshot, events chan<- models.HealthEvent, done chan<- struct{}) {
	defer close(done)
	defer close(snaps)
	defer close(events)

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, b.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			b.emitHealth(ctx, events, false, "dial: "+err.Error())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > binanceMaxBackoff {
				backoff = binanceMaxBackoff
			}
			continue
		}

		b.emitHealth(ctx, events, true, "connected")
		backoff = time.Second

		err = b.readLoop(ctx, conn, snaps)
		conn.Close()
		if ctx.Err() != nil {
			return
		}
		b.emitHealth(ctx, events, false, "stream: "+err.Error())
	}
}

type binanceDepth struct {
	Stream string `json:"stream"`
	Data   struct {
		LastUpdateID int64      `json:"lastUpdateId"`
		Bids         [][]string `json:"bids"`
		Asks         [][]string `json:"asks"`
	} `json:"data"`
}

func (b *Binance) readLoop(ctx context.Context, conn *websocket.Conn, snaps chan<- models.OrderBookSnapshot) error {
	// Reads have no context support; closing the socket unblocks them.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(binanceReadTimeout))
		var msg binanceDepth
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		symbol := b.symbols[msg.Stream]
		if symbol == "" {
			continue
		}

		now := time.Now()
		snap := models.OrderBookSnapshot{
			Exchange: "binance",
			Symbol:   symbol,
			Bids:     parseLevels(msg.Data.Bids),
			Asks:     parseLevels(msg.Data.Asks),
			TsEvent:  now,
			TsIngest: now,
			Healthy:  true,
			Meta:     map[string]string{"last_update_id": fmt.Sprintf("%d", msg.Data.LastUpdateID)},
		}
		select {
		case snaps <- snap:
		case <-ctx.Done():
			return ctx.Err()
		default:
			logging.Debugf("[binance] snapshot buffer full, dropping %s", symbol)
		}
	}
}

func parseLevels(rows [][]string) []models.PriceLevel {
	out := make([]models.PriceLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, err := decimal.NewFromString(row[0])
		if err != nil {
			continue
		}
		qty, err := decimal.NewFromString(row[1])
		if err != nil || qty.IsZero() {
			continue
		}
		out = append(out, models.PriceLevel{Price: price, Qty: qty})
	}
	return out
}

func (b *Binance) emitHealth(ctx context.Context, events chan<- models.HealthEvent, healthy bool, reason string) {
	ev := models.HealthEvent{Exchange: "binance", Healthy: healthy, Reason: reason, Ts: time.Now()}
	select {
	case events <- ev:
	case <-ctx.Done():
	default:
	}
}
