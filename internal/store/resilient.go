package store

import (
	"context"
	"sync"
	"time"

	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
)

// resilientStore mirrors every write into a local store and prefers the
// remote one for reads. A remote failure flips it into degraded mode where
// the mirror serves everything; the remote is re-probed once per cooldown.
type resilientStore struct {
	remote   Store
	local    Store
	cooldown time.Duration
	now      func() time.Time

	mu        sync.Mutex
	degraded  bool
	nextProbe time.Time
}

// NewResilient wraps remote with a local mirror and degrade-on-error
// behavior. Both stores must filter with the same staleness horizon.
func NewResilient(remote, local Store, cooldown time.Duration) Store {
	return &resilientStore{
		remote:   remote,
		local:    local,
		cooldown: cooldown,
		now:      time.Now,
	}
}

// remoteUsable reports whether the remote should be tried right now. While
// degraded it allows one probing call per cooldown window.
func (r *resilientStore) remoteUsable() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.degraded {
		return true
	}
	if r.now().After(r.nextProbe) {
		r.nextProbe = r.now().Add(r.cooldown)
		return true
	}
	return false
}

func (r *resilientStore) markFailure(op string, err error) {
	r.mu.Lock()
	wasDegraded := r.degraded
	r.degraded = true
	r.nextProbe = r.now().Add(r.cooldown)
	r.mu.Unlock()
	if !wasDegraded {
		logging.Warnf("[store] redis %s failed, serving from memory mirror: %v", op, err)
	}
}

func (r *resilientStore) markSuccess() {
	r.mu.Lock()
	wasDegraded := r.degraded
	r.degraded = false
	r.mu.Unlock()
	if wasDegraded {
		logging.Infof("[store] redis recovered, leaving degraded mode")
	}
}

func (r *resilientStore) Put(ctx context.Context, snap models.OrderBookSnapshot) error {
	if err := r.local.Put(ctx, snap); err != nil {
		return err
	}
	if r.remoteUsable() {
		if err := r.remote.Put(ctx, snap); err != nil {
			r.markFailure("put", err)
		} else {
			r.markSuccess()
		}
	}
	return nil
}

func (r *resilientStore) ReadAllFor(ctx context.Context, symbol string) ([]models.OrderBookSnapshot, error) {
	if r.remoteUsable() {
		snaps, err := r.remote.ReadAllFor(ctx, symbol)
		if err == nil {
			r.markSuccess()
			return snaps, nil
		}
		r.markFailure("read", err)
	}
	return r.local.ReadAllFor(ctx, symbol)
}

func (r *resilientStore) SnapshotAge(ctx context.Context, exchange, symbol string) (time.Duration, error) {
	if r.remoteUsable() {
		age, err := r.remote.SnapshotAge(ctx, exchange, symbol)
		if err == nil || err == ErrNotFound {
			r.markSuccess()
			return age, err
		}
		r.markFailure("age", err)
	}
	return r.local.SnapshotAge(ctx, exchange, symbol)
}

func (r *resilientStore) MarkHealth(ctx context.Context, ev models.HealthEvent) error {
	if err := r.local.MarkHealth(ctx, ev); err != nil {
		return err
	}
	if r.remoteUsable() {
		if err := r.remote.MarkHealth(ctx, ev); err != nil {
			r.markFailure("health", err)
		} else {
			r.markSuccess()
		}
	}
	return nil
}

func (r *resilientStore) Stats(ctx context.Context) (Stats, error) {
	if r.remoteUsable() {
		stats, err := r.remote.Stats(ctx)
		if err == nil {
			r.markSuccess()
			return stats, nil
		}
		r.markFailure("stats", err)
	}
	stats, err := r.local.Stats(ctx)
	if err != nil {
		return Stats{}, err
	}
	stats.Backend = "redis"
	stats.Degraded = true
	return stats, nil
}

func (r *resilientStore) Close() error {
	r.local.Close()
	return r.remote.Close()
}
