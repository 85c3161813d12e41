// Command arb_scanner is the scanner daemon: exchange connectors feed the
// hot store, the scheduler drives detection cycles, and the results fan out
// to the bus, the Redis cache, Telegram, and the HTTP/websocket API.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mkalra/crossarb/internal/api"
	"github.com/mkalra/crossarb/internal/bus"
	"github.com/mkalra/crossarb/internal/cache"
	"github.com/mkalra/crossarb/internal/config"
	"github.com/mkalra/crossarb/internal/connectors"
	"github.com/mkalra/crossarb/internal/engine"
	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/notify"
	"github.com/mkalra/crossarb/internal/scanner"
	"github.com/mkalra/crossarb/internal/scheduler"
	"github.com/mkalra/crossarb/internal/store"
)

// scanGrace bounds how long an in-flight scan keeps running after shutdown
// is requested.
const scanGrace = 3 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logging.InitFromEnv()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logging.Fatalf("[scanner] %v", err)
	}
	staleAfter := time.Duration(cfg.StaleAfterSec) * time.Second

	st, storeBackend, err := store.Build(ctx, cfg.StoreMode, cfg.RedisURL, staleAfter)
	if err != nil {
		logging.Fatalf("[scanner] build store: %v", err)
	}
	defer st.Close()

	b, busBackend, err := bus.Build(ctx, cfg.BusMode, cfg.KafkaBrokers, cfg.RedisURL, cfg.BusBuffer)
	if err != nil {
		logging.Fatalf("[scanner] build bus: %v", err)
	}
	defer b.Close()

	var latest cache.LatestCache
	if cfg.RedisURL != "" {
		latest, err = cache.NewRedisLatestCache(cfg.RedisURL, 0)
		if err != nil {
			logging.Warnf("[scanner] latest cache disabled: %v", err)
			latest = nil
		} else {
			defer latest.Close()
		}
	}

	eng := engine.New(st, staleAfter, cfg.MaxOppsPerScan)
	rt := scanner.New(cfg, eng, st, b, latest, busBackend)

	sched := scheduler.New(time.Duration(cfg.ScanIntervalSec)*time.Second, scanGrace, rt.ScanCycle)
	rt.AttachScheduler(sched)

	conns := connectors.Build(cfg.ConnectorMode, cfg.Exchanges, connectors.Options{
		Symbols:  cfg.Symbols,
		Depth:    cfg.OrderbookDepth,
		Interval: time.Duration(cfg.ConnectorIntervalMS) * time.Millisecond,
		BiasStep: cfg.MockBiasStep,
	})
	runner := connectors.NewRunner(st, b, cfg.SnapshotsTopic)
	rt.AttachRunner(runner)

	var sender notify.Sender
	if cfg.TelegramBotToken != "" {
		sender = notify.NewTelegramSender(cfg.TelegramBotToken)
	}
	notifier := notify.New(sender, notify.Config{
		ChatIDs:     cfg.TelegramChatIDs,
		Debounce:    time.Duration(cfg.TelegramDebounceSec) * time.Second,
		MinInterval: time.Duration(cfg.TelegramMinIntervalSec) * time.Second,
		MaxRows:     cfg.TelegramMaxRows,
	})

	hub := api.NewHub(rt)
	server := api.NewServer(cfg.APIAddr, rt, hub)

	logging.Infof("[scanner] starting: exchanges=%d symbols=%d interval=%ds store=%s bus=%s connectors=%s",
		len(cfg.Exchanges), len(cfg.Symbols), cfg.ScanIntervalSec, storeBackend, busBackend, cfg.ConnectorMode)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return runner.Run(ctx, conns) })
	g.Go(func() error { return sched.Run(ctx) })
	g.Go(func() error { return hub.Run(ctx, b, cfg.OpportunitiesTopic) })
	g.Go(func() error { return notifier.Run(ctx, b, cfg.OpportunitiesTopic) })
	g.Go(server.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logging.Fatalf("[scanner] %v", err)
	}
	logging.Infof("[scanner] stopped")
}
