package workers

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mkalra/crossarb/internal/logging"
	"github.com/mkalra/crossarb/internal/models"
	sqlstore "github.com/mkalra/crossarb/internal/storage/sqlite"
)

// Processor persists delivered opportunities into the audit store.
type Processor struct {
	store    *sqlstore.Store
	inserted atomic.Int64
	skipped  atomic.Int64
}

func NewProcessor(store *sqlstore.Store) *Processor {
	return &Processor{store: store}
}

// Handle validates and inserts one record. Records without an id or
// detection time are unusable as audit rows and are skipped, not retried.
func (p *Processor) Handle(ctx context.Context, opp *models.Opportunity) error {
	if opp.ID == "" || opp.TsDetected.IsZero() {
		p.skipped.Add(1)
		return fmt.Errorf("record missing id or ts_detected (type=%s symbol=%s)", opp.Type, opp.Symbol)
	}
	if err := p.store.InsertOpportunity(ctx, opp); err != nil {
		return fmt.Errorf("insert %s: %w", opp.ID, err)
	}
	n := p.inserted.Add(1)
	if n%500 == 0 {
		logging.Infof("[workers] %d opportunities audited", n)
	}
	return nil
}

// Inserted reports how many records this processor has persisted.
func (p *Processor) Inserted() int64 { return p.inserted.Load() }
