// Command snapshot_worker tails the snapshots topic and reports per-exchange
// ingest rates and book ages. It is an operational tap: point it at the same
// brokers as the scanner to watch the pipeline without touching the store.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sort"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/mkalra/crossarb/internal/kafka"
	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
)

type venueTally struct {
	count  int64
	newest time.Time
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logging.InitFromEnv()

	brokers := kafka.Brokers()
	topic := kafka.TopicFromEnv("SNAPSHOTS_TOPIC", kafka.DefaultSnapshotsTopic)
	interval := time.Duration(envInt("SNAPSHOT_MONITOR_INTERVAL_SEC", 10)) * time.Second
	// A fresh group per run tails the live stream instead of sharing offsets
	// with other monitors.
	group := "snapshot-monitor-" + uuid.NewString()

	waitCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	if err := kafka.WaitForBroker(waitCtx, brokers); err != nil {
		logging.Fatalf("[snapshot-worker] wait for broker: %v", err)
	}
	cancel()

	ensureCtx, cancelEnsure := context.WithTimeout(ctx, 30*time.Second)
	if err := kafka.EnsureTopic(ensureCtx, brokers, topic); err != nil {
		logging.Errorf("[snapshot-worker] ensure topic warning: %v", err)
	}
	cancelEnsure()

	logging.Infof("[snapshot-worker] tailing %s every %s", topic, interval)

	var mu sync.Mutex
	tallies := make(map[string]*venueTally)

	go report(ctx, interval, &mu, tallies)
	consume(ctx, brokers, topic, group, &mu, tallies)
}

func consume(ctx context.Context, brokers []string, topic, group string, mu *sync.Mutex, tallies map[string]*venueTally) {
	reader := kafka.NewReader(brokers, topic, group)
	defer reader.Close()

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logging.Errorf("[snapshot-worker] read error: %v", err)
			continue
		}
		var snap models.OrderBookSnapshot
		if err := json.Unmarshal(msg.Value, &snap); err != nil {
			logging.Errorf("[snapshot-worker] unmarshal error: %v", err)
			continue
		}
		mu.Lock()
		t, ok := tallies[snap.Exchange]
		if !ok {
			t = &venueTally{}
			tallies[snap.Exchange] = t
		}
		t.count++
		if snap.TsIngest.After(t.newest) {
			t.newest = snap.TsIngest
		}
		mu.Unlock()
	}
}

// report prints one summary line per interval and resets the counters, so
// each line is that window's rate.
func report(ctx context.Context, interval time.Duration, mu *sync.Mutex, tallies map[string]*venueTally) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		mu.Lock()
		if len(tallies) == 0 {
			mu.Unlock()
			logging.Infof("[snapshot-worker] no snapshots this window")
			continue
		}
		exchanges := make([]string, 0, len(tallies))
		for name := range tallies {
			exchanges = append(exchanges, name)
		}
		sort.Strings(exchanges)
		now := time.Now()
		for _, name := range exchanges {
			t := tallies[name]
			logging.Infof("[snapshot-worker] %s: %d snapshots (%.1f/s), newest %s old",
				name, t.count, float64(t.count)/interval.Seconds(), now.Sub(t.newest).Round(time.Millisecond))
			delete(tallies, name)
		}
		mu.Unlock()
	}
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}
