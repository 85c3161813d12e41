package store

import (
	"context"
	"fmt"
	"time"

	"github.com/mkalra/crossarb/internal/logging"
)

// degradeCooldown is how long the resilient wrapper waits between probes of
// a failed Redis tier.
const degradeCooldown = 15 * time.Second

// Build selects the hot-state backend. mode "memory" is purely in-process,
// "redis" requires a reachable Redis and wraps it with the memory mirror,
// "auto" uses Redis iff redisURL is set and reachable.
func Build(ctx context.Context, mode, redisURL string, staleAfter time.Duration) (Store, string, error) {
	switch mode {
	case "memory":
		return NewMemory(staleAfter), "memory", nil
	case "redis":
		remote, err := NewRedis(ctx, redisURL, staleAfter)
		if err != nil {
			return nil, "", fmt.Errorf("store: %w", err)
		}
		return NewResilient(remote, NewMemory(staleAfter), degradeCooldown), "redis", nil
	case "auto":
		if redisURL == "" {
			return NewMemory(staleAfter), "memory", nil
		}
		remote, err := NewRedis(ctx, redisURL, staleAfter)
		if err != nil {
			logging.Warnf("[store] redis unavailable, using memory: %v", err)
			return NewMemory(staleAfter), "memory", nil
		}
		return NewResilient(remote, NewMemory(staleAfter), degradeCooldown), "redis", nil
	default:
		return nil, "", fmt.Errorf("store: unknown mode %q", mode)
	}
}
