package store

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mkalra/crossarb/internal/models"
)

const redisPrefix = "crossarb"

// redisStore keeps one JSON value per (exchange, symbol) key plus a member
// index per symbol, so ReadAllFor is one SMEMBERS and one MGET. The TTL only
// bounds garbage after a venue disappears; staleness is still enforced on
// read from ts_ingest.
type redisStore struct {
	client     *redis.Client
	staleAfter time.Duration
	ttl        time.Duration
	now        func() time.Time
}

// NewRedis connects to the Redis tier and verifies it with a ping.
func NewRedis(ctx context.Context, url string, staleAfter time.Duration) (Store, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("store: parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("store: redis ping: %w", err)
	}
	return &redisStore{
		client:     client,
		staleAfter: staleAfter,
		ttl:        4 * staleAfter,
		now:        time.Now,
	}, nil
}

func (r *redisStore) bookKey(exchange, symbol string) string {
	return fmt.Sprintf("%s:book:%s:%s", redisPrefix, exchange, symbol)
}

func (r *redisStore) indexKey(symbol string) string {
	return fmt.Sprintf("%s:index:%s", redisPrefix, symbol)
}

func (r *redisStore) symbolsKey() string { return redisPrefix + ":symbols" }
func (r *redisStore) healthKey() string  { return redisPrefix + ":health" }

func (r *redisStore) Put(ctx context.Context, snap models.OrderBookSnapshot) error {
	if snap.Exchange == "" || snap.Symbol == "" {
		return fmt.Errorf("store: put: missing exchange or symbol")
	}
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("store: marshal snapshot: %w", err)
	}
	_, err = r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, r.bookKey(snap.Exchange, snap.Symbol), payload, r.ttl)
		p.SAdd(ctx, r.indexKey(snap.Symbol), snap.Exchange)
		p.SAdd(ctx, r.symbolsKey(), snap.Symbol)
		if snap.Healthy {
			p.HDel(ctx, r.healthKey(), snap.Exchange)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store: redis put: %w", err)
	}
	return nil
}

func (r *redisStore) ReadAllFor(ctx context.Context, symbol string) ([]models.OrderBookSnapshot, error) {
	exchanges, err := r.client.SMembers(ctx, r.indexKey(symbol)).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis index read: %w", err)
	}
	if len(exchanges) == 0 {
		return nil, nil
	}

	keys := make([]string, len(exchanges))
	for i, ex := range exchanges {
		keys[i] = r.bookKey(ex, symbol)
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis bulk read: %w", err)
	}
	unhealthy, err := r.unhealthySet(ctx)
	if err != nil {
		return nil, err
	}

	now := r.now()
	out := make([]models.OrderBookSnapshot, 0, len(values))
	var expired []interface{}
	for i, raw := range values {
		if raw == nil {
			expired = append(expired, exchanges[i])
			continue
		}
		var snap models.OrderBookSnapshot
		if err := json.Unmarshal([]byte(raw.(string)), &snap); err != nil {
			continue
		}
		if !snap.Fresh(now, r.staleAfter) || unhealthy[snap.Exchange] {
			continue
		}
		out = append(out, snap)
	}
	if len(expired) > 0 {
		r.client.SRem(ctx, r.indexKey(symbol), expired...)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out, nil
}

func (r *redisStore) SnapshotAge(ctx context.Context, exchange, symbol string) (time.Duration, error) {
	raw, err := r.client.Get(ctx, r.bookKey(exchange, symbol)).Bytes()
	if err == redis.Nil {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("store: redis read: %w", err)
	}
	var snap models.OrderBookSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return 0, fmt.Errorf("store: decode snapshot: %w", err)
	}
	return snap.Age(r.now()), nil
}

func (r *redisStore) MarkHealth(ctx context.Context, ev models.HealthEvent) error {
	if ev.Exchange == "" {
		return fmt.Errorf("store: mark health: missing exchange")
	}
	if ev.Healthy {
		if err := r.client.HDel(ctx, r.healthKey(), ev.Exchange).Err(); err != nil {
			return fmt.Errorf("store: redis health clear: %w", err)
		}
		return nil
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("store: marshal health event: %w", err)
	}
	if err := r.client.HSet(ctx, r.healthKey(), ev.Exchange, payload).Err(); err != nil {
		return fmt.Errorf("store: redis health write: %w", err)
	}
	return nil
}

func (r *redisStore) unhealthySet(ctx context.Context) (map[string]bool, error) {
	fields, err := r.client.HGetAll(ctx, r.healthKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("store: redis health read: %w", err)
	}
	out := make(map[string]bool, len(fields))
	for ex := range fields {
		out[ex] = true
	}
	return out, nil
}

func (r *redisStore) Stats(ctx context.Context) (Stats, error) {
	symbols, err := r.client.SMembers(ctx, r.symbolsKey()).Result()
	if err != nil {
		return Stats{}, fmt.Errorf("store: redis symbols read: %w", err)
	}
	unhealthy, err := r.unhealthySet(ctx)
	if err != nil {
		return Stats{}, err
	}

	now := r.now()
	agg := make(map[string]*ExchangeStats)
	total := 0
	for _, symbol := range symbols {
		exchanges, err := r.client.SMembers(ctx, r.indexKey(symbol)).Result()
		if err != nil || len(exchanges) == 0 {
			continue
		}
		keys := make([]string, len(exchanges))
		for i, ex := range exchanges {
			keys[i] = r.bookKey(ex, symbol)
		}
		values, err := r.client.MGet(ctx, keys...).Result()
		if err != nil {
			continue
		}
		for _, raw := range values {
			if raw == nil {
				continue
			}
			var snap models.OrderBookSnapshot
			if err := json.Unmarshal([]byte(raw.(string)), &snap); err != nil {
				continue
			}
			es := agg[snap.Exchange]
			if es == nil {
				es = &ExchangeStats{Exchange: snap.Exchange, NewestAgeMS: -1}
				agg[snap.Exchange] = es
			}
			es.Books++
			total++
			if snap.Fresh(now, r.staleAfter) {
				es.Fresh++
			} else {
				es.Stale++
			}
			ageMS := snap.Age(now).Milliseconds()
			if es.NewestAgeMS < 0 || ageMS < es.NewestAgeMS {
				es.NewestAgeMS = ageMS
			}
		}
	}

	stats := Stats{Backend: "redis", TotalBooks: total}
	for ex, es := range agg {
		es.Healthy = !unhealthy[ex]
		stats.Exchanges = append(stats.Exchanges, *es)
	}
	sort.Slice(stats.Exchanges, func(i, j int) bool { return stats.Exchanges[i].Exchange < stats.Exchanges[j].Exchange })
	return stats, nil
}

func (r *redisStore) Close() error { return r.client.Close() }
