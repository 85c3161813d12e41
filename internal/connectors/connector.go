// Package connectors hosts the ingestion adapters. Each adapter normalizes
// one venue's feed into OrderBookSnapshot values and reports its own
// connection health; everything downstream of the channels is the runner's
// job.
package connectors

import (
	"context"
	"time"

	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
)

// Connector is one exchange feed. Start is non-blocking and may be called
// again after a Stop (or after the adapter's streams ended); each Start
// provides fresh Snapshots and Events channels, both closed when the adapter
// winds down.
type Connector interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
	Snapshots() <-chan models.OrderBookSnapshot
	Events() <-chan models.HealthEvent
}

// Options carries the adapter wiring shared by every venue.
type Options struct {
	Symbols  []string
	Depth    int
	Interval time.Duration
	BiasStep float64
}

// Build returns one connector per configured exchange. In live mode venues
// with a real adapter get it and the rest fall back to the deterministic
// mock, so a partial live deployment still fills the whole matrix.
func Build(mode string, exchanges []string, opts Options) []Connector {
	out := make([]Connector, 0, len(exchanges))
	for i, exchange := range exchanges {
		if mode == "live" {
			switch exchange {
			case "binance":
				out = append(out, NewBinance(opts.Symbols))
				continue
			default:
				logging.Infof("[connectors] no live adapter for %s, running mock", exchange)
			}
		}
		out = append(out, NewMock(exchange, i, len(exchanges), opts))
	}
	return out
}
