// Package store holds the latest order-book snapshot per (exchange, symbol)
// key. Writes replace the previous value for the key; reads return a
// point-in-time view filtered by staleness and venue health.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/mkalra/crossarb/internal/models"
)

// ErrNotFound reports a key with no stored snapshot.
var ErrNotFound = errors.New("store: snapshot not found")

// Store is the hot-state interface shared by the memory and redis backends.
type Store interface {
	// Put replaces the snapshot for the snapshot's key. A healthy snapshot
	// also clears any standing unhealthy mark for its exchange.
	Put(ctx context.Context, snap models.OrderBookSnapshot) error
	// ReadAllFor returns the latest snapshot per exchange for one symbol,
	// excluding stale entries and exchanges marked unhealthy.
	ReadAllFor(ctx context.Context, symbol string) ([]models.OrderBookSnapshot, error)
	// SnapshotAge reports now minus ts_ingest for one key.
	SnapshotAge(ctx context.Context, exchange, symbol string) (time.Duration, error)
	// MarkHealth records an adapter health transition for an exchange.
	MarkHealth(ctx context.Context, ev models.HealthEvent) error
	// Stats summarizes stored books for the status endpoint.
	Stats(ctx context.Context) (Stats, error)
	Close() error
}

// ExchangeStats aggregates one venue's stored books.
type ExchangeStats struct {
	Exchange    string `json:"exchange"`
	Books       int    `json:"books"`
	Fresh       int    `json:"fresh"`
	Stale       int    `json:"stale"`
	NewestAgeMS int64  `json:"newest_age_ms"`
	Healthy     bool   `json:"healthy"`
}

// Stats is the store-wide summary. Degraded is set by the resilient wrapper
// while it serves from the local mirror.
type Stats struct {
	Backend    string          `json:"backend"`
	Degraded   bool            `json:"degraded"`
	TotalBooks int             `json:"total_books"`
	Exchanges  []ExchangeStats `json:"exchanges"`
}
