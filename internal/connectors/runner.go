package connectors

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mkalra/crossarb/internal/bus"
	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
	"github.com/mkalra/crossarb/internal/store"
)

const (
	restartBackoffMin = time.Second
	restartBackoffMax = 30 * time.Second
	stopGrace         = 5 * time.Second
)

// ConnectorStats is the per-exchange ingest ledger reported on /api/status.
type ConnectorStats struct {
	Accepted int64 `json:"accepted"`
	Rejected int64 `json:"rejected"`
	Restarts int64 `json:"restarts"`
	Healthy  bool  `json:"healthy"`
}

// Runner owns the connector fleet: it pumps snapshots into the hot store,
// mirrors them onto the bus, and restarts any connector whose stream dies.
type Runner struct {
	store store.Store
	bus   bus.Bus
	topic string

	backoffMin time.Duration
	backoffMax time.Duration

	mu    sync.Mutex
	stats map[string]*ConnectorStats
}

func NewRunner(st store.Store, b bus.Bus, snapshotsTopic string) *Runner {
	return &Runner{
		store:      st,
		bus:        b,
		topic:      snapshotsTopic,
		backoffMin: restartBackoffMin,
		backoffMax: restartBackoffMax,
		stats:      make(map[string]*ConnectorStats),
	}
}

// Run supervises every connector until ctx is canceled. A connector that
// panics or whose channels close gets restarted with doubled backoff; the
// others never notice.
func (r *Runner) Run(ctx context.Context, conns []Connector) error {
	var wg sync.WaitGroup
	for _, conn := range conns {
		wg.Add(1)
		go func(c Connector) {
			defer wg.Done()
			r.supervise(ctx, c)
		}(conn)
	}
	wg.Wait()
	return ctx.Err()
}

func (r *Runner) supervise(ctx context.Context, conn Connector) {
	backoff := r.backoffMin
	for {
		if ctx.Err() != nil {
			return
		}
		start := time.Now()
		err := r.pump(ctx, conn)
		if ctx.Err() != nil {
			return
		}
		if time.Since(start) > r.backoffMax {
			backoff = r.backoffMin
		}
		logging.Warnf("[runner] %s stopped: %v, restarting in %s", conn.Name(), err, backoff)
		r.update(conn.Name(), func(s *ConnectorStats) { s.Restarts++; s.Healthy = false })
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		if backoff *= 2; backoff > r.backoffMax {
			backoff = r.backoffMax
		}
	}
}

// pump drains one connector session. Returns when the stream breaks or ctx
// ends; the deferred Stop bounds how long a wedged connector can hold us.
func (r *Runner) pump(ctx context.Context, conn Connector) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
		stopCtx, cancel := context.WithTimeout(context.Background(), stopGrace)
		defer cancel()
		if stopErr := conn.Stop(stopCtx); stopErr != nil {
			logging.Warnf("[runner] %s stop: %v", conn.Name(), stopErr)
		}
	}()

	if err := conn.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}
	r.update(conn.Name(), func(s *ConnectorStats) { s.Healthy = true })
	snaps := conn.Snapshots()
	events := conn.Events()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-snaps:
			if !ok {
				return fmt.Errorf("snapshot stream closed")
			}
			r.ingest(ctx, conn.Name(), snap)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			r.health(ctx, ev)
		}
	}
}

func (r *Runner) ingest(ctx context.Context, name string, snap models.OrderBookSnapshot) {
	if err := snap.Validate(); err != nil {
		r.update(name, func(s *ConnectorStats) { s.Rejected++ })
		logging.Debugf("[runner] %s rejected %s: %v", name, snap.Symbol, err)
		return
	}
	if err := r.store.Put(ctx, snap); err != nil {
		r.update(name, func(s *ConnectorStats) { s.Rejected++ })
		logging.Warnf("[runner] %s store put %s: %v", name, snap.Symbol, err)
		return
	}
	r.update(name, func(s *ConnectorStats) { s.Accepted++; s.Healthy = true })

	payload, err := json.Marshal(snap)
	if err != nil {
		logging.Errorf("[runner] marshal snapshot %s %s: %v", name, snap.Symbol, err)
		return
	}
	if err := r.bus.Publish(ctx, r.topic, payload); err != nil {
		logging.Debugf("[runner] publish snapshot %s: %v", name, err)
	}
}

func (r *Runner) health(ctx context.Context, ev models.HealthEvent) {
	if ev.Healthy {
		logging.Infof("[runner] %s healthy: %s", ev.Exchange, ev.Reason)
	} else {
		logging.Warnf("[runner] %s unhealthy: %s", ev.Exchange, ev.Reason)
	}
	r.update(ev.Exchange, func(s *ConnectorStats) { s.Healthy = ev.Healthy })
	if err := r.store.MarkHealth(ctx, ev); err != nil {
		logging.Warnf("[runner] mark health %s: %v", ev.Exchange, err)
	}
}

func (r *Runner) update(exchange string, fn func(*ConnectorStats)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stats[exchange]
	if !ok {
		s = &ConnectorStats{}
		r.stats[exchange] = s
	}
	fn(s)
}

// Stats returns a copy of the per-exchange ingest counters.
func (r *Runner) Stats() map[string]ConnectorStats {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[string]ConnectorStats, len(r.stats))
	for name, s := range r.stats {
		out[name] = *s
	}
	return out
}
