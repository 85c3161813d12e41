// Package scanner owns the scan cycle: it snapshots the runtime
// preferences, runs the detection engine over the hot store, and fans the
// resulting set out to the bus, the latest-set cache, and an in-process
// copy for the API. Preference updates land between cycles, never inside
// one.
package scanner

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/mkalra/crossarb/internal/bus"
	"github.com/mkalra/crossarb/internal/cache"
	"github.com/mkalra/crossarb/internal/config"
	"github.com/mkalra/crossarb/internal/connectors"
	"github.com/mkalra/crossarb/internal/engine"
	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
	"github.com/mkalra/crossarb/internal/scheduler"
	"github.com/mkalra/crossarb/internal/store"
)

// LastScan summarizes the most recent completed cycle for /api/status.
type LastScan struct {
	Cycle          uint64    `json:"cycle"`
	Opportunities  int       `json:"opportunities"`
	BooksScanned   int       `json:"books_scanned"`
	PairsEvaluated int       `json:"pairs_evaluated"`
	SymbolErrors   int       `json:"symbol_errors"`
	ElapsedMS      int64     `json:"elapsed_ms"`
	At             time.Time `json:"at,omitempty"`
}

// Status is the full operational snapshot served by GET /api/status.
type Status struct {
	Store       store.Stats                          `json:"store"`
	BusBackend  string                               `json:"bus_backend"`
	Scheduler   scheduler.Counters                   `json:"scheduler"`
	Connectors  map[string]connectors.ConnectorStats `json:"connectors,omitempty"`
	LastScan    LastScan                             `json:"last_scan"`
	Preferences Preferences                          `json:"preferences"`
}

// Runtime drives scan cycles and serves the scanner's read model.
type Runtime struct {
	cfg        *config.Settings
	engine     *engine.Engine
	store      store.Store
	bus        bus.Bus
	cache      cache.LatestCache
	topic      string
	busBackend string
	now        func() time.Time

	sched  *scheduler.Scheduler
	runner *connectors.Runner

	mu     sync.Mutex
	prefs  Preferences
	base   models.StrategyConfig
	cycle  uint64
	latest *models.OpportunitySet
	last   LastScan
}

// New wires the runtime around already-built components. The scheduler is
// attached afterwards because it is constructed around ScanCycle.
func New(cfg *config.Settings, eng *engine.Engine, st store.Store, b bus.Bus, latest cache.LatestCache, busBackend string) *Runtime {
	return &Runtime{
		cfg:        cfg,
		engine:     eng,
		store:      st,
		bus:        b,
		cache:      latest,
		topic:      cfg.OpportunitiesTopic,
		busBackend: busBackend,
		now:        time.Now,
		prefs:      defaultPreferences(cfg),
		base:       cfg.Strategy(),
	}
}

func (r *Runtime) AttachScheduler(s *scheduler.Scheduler) { r.sched = s }
func (r *Runtime) AttachRunner(rn *connectors.Runner)     { r.runner = rn }

// ScanCycle is one scheduler tick: detect, stamp, fan out. It never returns
// an error; a failed publish or cache write is logged and the cycle still
// counts as completed.
func (r *Runtime) ScanCycle(ctx context.Context) {
	started := r.now()
	symbols, strat := r.cycleInputs()

	res := r.engine.Scan(ctx, symbols, strat)
	if res.Opportunities == nil {
		res.Opportunities = []models.Opportunity{}
	}

	set := models.OpportunitySet{
		TsDetected:    started,
		ElapsedMS:     r.now().Sub(started).Milliseconds(),
		Opportunities: res.Opportunities,
	}
	r.record(&set, res)

	r.fanOut(ctx, set)
	logging.Infof("[scanner] cycle=%d opps=%d books=%d pairs=%d errors=%d elapsed=%dms",
		set.Cycle, len(set.Opportunities), res.BooksScanned, res.PairsEvaluated, res.SymbolErrors, set.ElapsedMS)
}

// cycleInputs clones the active preferences into the engine's inputs. Venues
// outside the active set are treated as blacklisted for this cycle, so the
// engine never pairs their books.
func (r *Runtime) cycleInputs() ([]string, models.StrategyConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	strat := r.base.Clone()
	strat.TradeNotionalUSDT = r.prefs.TradeNotionalUSDT
	strat.MinNetEdgePct = r.prefs.MinNetEdgePct

	active := make(map[string]bool, len(r.prefs.ActiveExchanges))
	for _, ex := range r.prefs.ActiveExchanges {
		active[ex] = true
	}
	if strat.BlacklistedVenues == nil {
		strat.BlacklistedVenues = make(map[string]bool)
	}
	for _, ex := range r.cfg.Exchanges {
		if !active[ex] {
			strat.BlacklistedVenues[ex] = true
		}
	}

	return append([]string(nil), r.prefs.ActiveSymbols...), strat
}

// record stamps the cycle number and keeps an in-process copy, so the
// published payload and the local read model always agree.
func (r *Runtime) record(set *models.OpportunitySet, res engine.ScanResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cycle++
	set.Cycle = r.cycle
	copied := *set
	r.latest = &copied
	r.last = LastScan{
		Cycle:          set.Cycle,
		Opportunities:  len(set.Opportunities),
		BooksScanned:   res.BooksScanned,
		PairsEvaluated: res.PairsEvaluated,
		SymbolErrors:   res.SymbolErrors,
		ElapsedMS:      set.ElapsedMS,
		At:             set.TsDetected,
	}
}

// fanOut publishes the cycle to the bus and the cache. Both targets are best
// effort: the in-process copy is already recorded.
func (r *Runtime) fanOut(ctx context.Context, set models.OpportunitySet) {
	payload, err := json.Marshal(set)
	if err != nil {
		logging.Errorf("[scanner] marshal cycle %d: %v", set.Cycle, err)
		return
	}
	if err := r.bus.Publish(ctx, r.topic, payload); err != nil {
		logging.Warnf("[scanner] publish cycle %d: %v", set.Cycle, err)
	}
	if r.cache != nil {
		if err := r.cache.Set(ctx, set); err != nil {
			logging.Warnf("[scanner] cache cycle %d: %v", set.Cycle, err)
		}
	}
}

// Latest serves the newest detection set: the shared cache when one is
// configured and holds a record, otherwise the in-process copy of the last
// completed cycle.
func (r *Runtime) Latest(ctx context.Context) (models.OpportunitySet, bool) {
	if r.cache != nil {
		if set, ok, err := r.cache.Get(ctx); err == nil && ok {
			return *set, true
		} else if err != nil {
			logging.Warnf("[scanner] cache read: %v", err)
		}
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.latest == nil {
		return models.OpportunitySet{Opportunities: []models.Opportunity{}}, false
	}
	return *r.latest, true
}

// Preferences returns a copy of the active runtime preferences.
func (r *Runtime) Preferences() Preferences {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prefs.clone()
}

// ApplyUpdate validates and applies a partial preferences change. The merge
// is atomic: either every field of the update lands or none does. A new scan
// interval is forwarded to the scheduler and takes effect between cycles.
func (r *Runtime) ApplyUpdate(u Update) (Preferences, error) {
	r.mu.Lock()
	next, err := r.prefs.apply(u, r.cfg)
	if err != nil {
		r.mu.Unlock()
		return Preferences{}, err
	}
	prevInterval := r.prefs.ScanIntervalSec
	r.prefs = next
	r.mu.Unlock()

	if next.ScanIntervalSec != prevInterval && r.sched != nil {
		if err := r.sched.SetInterval(time.Duration(next.ScanIntervalSec) * time.Second); err != nil {
			logging.Errorf("[scanner] set interval: %v", err)
		} else {
			logging.Infof("[scanner] scan interval %ds -> %ds", prevInterval, next.ScanIntervalSec)
		}
	}
	return next.clone(), nil
}

// Status assembles the operational snapshot. Store stats failures degrade to
// an empty section instead of failing the endpoint.
func (r *Runtime) Status(ctx context.Context) Status {
	st, err := r.store.Stats(ctx)
	if err != nil {
		logging.Warnf("[scanner] store stats: %v", err)
	}

	out := Status{
		Store:       st,
		BusBackend:  r.busBackend,
		Preferences: r.Preferences(),
	}
	if r.sched != nil {
		out.Scheduler = r.sched.Snapshot()
	}
	if r.runner != nil {
		out.Connectors = r.runner.Stats()
	}
	r.mu.Lock()
	out.LastScan = r.last
	r.mu.Unlock()
	return out
}
