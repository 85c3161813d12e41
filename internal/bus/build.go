package bus

import (
	"context"
	"fmt"
	"os"

	"github.com/mkalra/crossarb/internal/logging"
)

// Build selects the bus backend. "auto" prefers Kafka when brokers are
// explicitly configured, then Redis when REDIS_URL is set, then in-process.
// An unreachable external backend degrades to in-process with a warning
// instead of failing startup.
func Build(ctx context.Context, mode string, brokers []string, redisURL string, buffer int) (Bus, string, error) {
	switch mode {
	case "inmemory":
		return NewInMemory(buffer), "inmemory", nil
	case "kafka":
		return NewKafka(brokers, buffer), "kafka", nil
	case "redis":
		b, err := NewRedis(ctx, redisURL, buffer)
		if err != nil {
			return nil, "", fmt.Errorf("bus: %w", err)
		}
		return b, "redis", nil
	case "auto":
		if os.Getenv("KAFKA_BROKERS") != "" {
			return NewKafka(brokers, buffer), "kafka", nil
		}
		if redisURL != "" {
			b, err := NewRedis(ctx, redisURL, buffer)
			if err != nil {
				logging.Warnf("[bus] redis unavailable, using inmemory: %v", err)
				return NewInMemory(buffer), "inmemory", nil
			}
			return b, "redis", nil
		}
		return NewInMemory(buffer), "inmemory", nil
	default:
		return nil, "", fmt.Errorf("bus: unknown mode %q", mode)
	}
}
