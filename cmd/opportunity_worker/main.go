// Command opportunity_worker consumes published scan cycles from Kafka and
// persists every opportunity into sqlite for auditing. It runs independently
// of the scanner and can be scaled by raising OPPORTUNITY_WORKERS.
package main

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/mkalra/crossarb/internal/kafka"
	"github.com/mkalra/crossarb/internal/logging"
	sqlstore "github.com/mkalra/crossarb/internal/storage/sqlite"
	"github.com/mkalra/crossarb/internal/workers"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logging.InitFromEnv()

	brokers := kafka.Brokers()
	topic := kafka.TopicFromEnv("OPPORTUNITIES_TOPIC", kafka.DefaultOpportunitiesTopic)
	group := envString("OPPORTUNITY_WORKER_GROUP", "opportunity-workers")
	workerCount := envInt("OPPORTUNITY_WORKERS", 2)

	waitCtx, cancel := context.WithTimeout(ctx, 45*time.Second)
	if err := kafka.WaitForBroker(waitCtx, brokers); err != nil {
		logging.Fatalf("[opportunity-worker] wait for broker: %v", err)
	}
	cancel()

	ensureCtx, cancelEnsure := context.WithTimeout(ctx, 30*time.Second)
	if err := kafka.EnsureTopic(ensureCtx, brokers, topic); err != nil {
		logging.Errorf("[opportunity-worker] ensure topic warning: %v", err)
	}
	cancelEnsure()

	store, err := sqlstore.Open(os.Getenv("SQLITE_PATH"))
	if err != nil {
		logging.Fatalf("[opportunity-worker] open sqlite: %v", err)
	}
	defer store.Close()
	if err := store.CreateTables(ctx); err != nil {
		logging.Fatalf("[opportunity-worker] create tables: %v", err)
	}

	processor := workers.NewProcessor(store)
	logging.Infof("[opportunity-worker] consuming %s with group %s (%d workers, db=%s)", topic, group, workerCount, store.Path())
	workers.Run(ctx, brokers, topic, group, workerCount, processor.Handle)
	logging.Infof("[opportunity-worker] stopped after %d inserts", processor.Inserted())
}

func envInt(key string, def int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return def
}

func envString(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}
