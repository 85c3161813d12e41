package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/mkalra/crossarb/internal/models"
)

// memoryStore shards by symbol so concurrent writers for different symbols
// never contend. Within a shard a put swaps an immutable snapshot pointer,
// so readers never observe a torn book.
type memoryStore struct {
	staleAfter time.Duration
	now        func() time.Time

	mu     sync.RWMutex
	shards map[string]*symbolShard

	healthMu sync.RWMutex
	health   map[string]models.HealthEvent
}

type symbolShard struct {
	mu    sync.RWMutex
	books map[string]*models.OrderBookSnapshot
}

// NewMemory builds the in-process backend. staleAfter bounds how old a
// snapshot may be and still be served by ReadAllFor.
func NewMemory(staleAfter time.Duration) Store {
	return newMemory(staleAfter, time.Now)
}

func newMemory(staleAfter time.Duration, now func() time.Time) *memoryStore {
	return &memoryStore{
		staleAfter: staleAfter,
		now:        now,
		shards:     make(map[string]*symbolShard),
		health:     make(map[string]models.HealthEvent),
	}
}

func (m *memoryStore) shard(symbol string, create bool) *symbolShard {
	m.mu.RLock()
	s := m.shards[symbol]
	m.mu.RUnlock()
	if s != nil || !create {
		return s
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if s = m.shards[symbol]; s == nil {
		s = &symbolShard{books: make(map[string]*models.OrderBookSnapshot)}
		m.shards[symbol] = s
	}
	return s
}

func (m *memoryStore) Put(_ context.Context, snap models.OrderBookSnapshot) error {
	if snap.Exchange == "" || snap.Symbol == "" {
		return fmt.Errorf("store: put: missing exchange or symbol")
	}
	s := m.shard(snap.Symbol, true)
	s.mu.Lock()
	s.books[snap.Exchange] = &snap
	s.mu.Unlock()

	if snap.Healthy {
		m.clearUnhealthy(snap.Exchange)
	}
	return nil
}

func (m *memoryStore) ReadAllFor(_ context.Context, symbol string) ([]models.OrderBookSnapshot, error) {
	s := m.shard(symbol, false)
	if s == nil {
		return nil, nil
	}

	s.mu.RLock()
	ptrs := make([]*models.OrderBookSnapshot, 0, len(s.books))
	for _, snap := range s.books {
		ptrs = append(ptrs, snap)
	}
	s.mu.RUnlock()

	now := m.now()
	out := make([]models.OrderBookSnapshot, 0, len(ptrs))
	for _, snap := range ptrs {
		if !snap.Fresh(now, m.staleAfter) || !m.exchangeHealthy(snap.Exchange) {
			continue
		}
		out = append(out, *snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Exchange < out[j].Exchange })
	return out, nil
}

func (m *memoryStore) SnapshotAge(_ context.Context, exchange, symbol string) (time.Duration, error) {
	s := m.shard(symbol, false)
	if s == nil {
		return 0, ErrNotFound
	}
	s.mu.RLock()
	snap := s.books[exchange]
	s.mu.RUnlock()
	if snap == nil {
		return 0, ErrNotFound
	}
	return snap.Age(m.now()), nil
}

func (m *memoryStore) MarkHealth(_ context.Context, ev models.HealthEvent) error {
	if ev.Exchange == "" {
		return fmt.Errorf("store: mark health: missing exchange")
	}
	m.healthMu.Lock()
	if ev.Healthy {
		delete(m.health, ev.Exchange)
	} else {
		m.health[ev.Exchange] = ev
	}
	m.healthMu.Unlock()
	return nil
}

func (m *memoryStore) exchangeHealthy(exchange string) bool {
	m.healthMu.RLock()
	_, unhealthy := m.health[exchange]
	m.healthMu.RUnlock()
	return !unhealthy
}

func (m *memoryStore) clearUnhealthy(exchange string) {
	m.healthMu.Lock()
	delete(m.health, exchange)
	m.healthMu.Unlock()
}

func (m *memoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	shards := make([]*symbolShard, 0, len(m.shards))
	for _, s := range m.shards {
		shards = append(shards, s)
	}
	m.mu.RUnlock()

	now := m.now()
	agg := make(map[string]*ExchangeStats)
	total := 0
	for _, s := range shards {
		s.mu.RLock()
		for _, snap := range s.books {
			es := agg[snap.Exchange]
			if es == nil {
				es = &ExchangeStats{Exchange: snap.Exchange, NewestAgeMS: -1}
				agg[snap.Exchange] = es
			}
			es.Books++
			total++
			if snap.Fresh(now, m.staleAfter) {
				es.Fresh++
			} else {
				es.Stale++
			}
			ageMS := snap.Age(now).Milliseconds()
			if es.NewestAgeMS < 0 || ageMS < es.NewestAgeMS {
				es.NewestAgeMS = ageMS
			}
		}
		s.mu.RUnlock()
	}

	stats := Stats{Backend: "memory", TotalBooks: total}
	for ex, es := range agg {
		es.Healthy = m.exchangeHealthy(ex)
		stats.Exchanges = append(stats.Exchanges, *es)
	}
	sort.Slice(stats.Exchanges, func(i, j int) bool { return stats.Exchanges[i].Exchange < stats.Exchanges[j].Exchange })
	return stats, nil
}

func (m *memoryStore) Close() error { return nil }
