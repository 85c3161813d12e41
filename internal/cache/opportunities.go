// Package cache holds the cross-process read model kept in Redis: the
// latest detection set, written by the scanner after every cycle and read by
// API processes without touching the scanner. The cache degrades to a no-op
// when Redis is not configured.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkalra/crossarb/internal/models"
)

const latestKey = "crossarb:opps:latest"

// LatestCache stores the most recent cycle's opportunity set under a single
// key.
type LatestCache interface {
	Get(ctx context.Context) (*models.OpportunitySet, bool, error)
	Set(ctx context.Context, set models.OpportunitySet) error
	Close() error
}

type redisLatestCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisLatestCache connects the latest-opportunities cache to Redis. The
// TTL only needs to outlive a few scan cycles; a missing record is served as
// not-found, never as an error.
func NewRedisLatestCache(url string, ttl time.Duration) (LatestCache, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse redis url: %w", err)
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &redisLatestCache{client: redis.NewClient(opts), ttl: ttl}, nil
}

func (c *redisLatestCache) Get(ctx context.Context) (*models.OpportunitySet, bool, error) {
	if c == nil || c.client == nil {
		return nil, false, nil
	}
	raw, err := c.client.Get(ctx, latestKey).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var set models.OpportunitySet
	if err := json.Unmarshal(raw, &set); err != nil {
		return nil, false, err
	}
	return &set, true, nil
}

func (c *redisLatestCache) Set(ctx context.Context, set models.OpportunitySet) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(set)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, latestKey, payload, c.ttl).Err()
}

func (c *redisLatestCache) Close() error {
	if c == nil || c.client == nil {
		return nil
	}
	return c.client.Close()
}
