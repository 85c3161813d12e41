package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkalra/crossarb/internal/models"
)

// InsertOpportunity stores one detection. Delivery is at-least-once, so a
// redelivered record upserts onto its (id, ts_detected) row instead of
// duplicating it.
func (s *Store) InsertOpportunity(ctx context.Context, opp *models.Opportunity) error {
	if s == nil || s.db == nil || opp == nil {
		return fmt.Errorf("sqlite store not initialized or opportunity nil")
	}

	cycleJSON := ""
	if len(opp.AssetCycle) > 0 {
		raw, err := json.Marshal(opp.AssetCycle)
		if err != nil {
			return fmt.Errorf("marshal asset cycle: %w", err)
		}
		cycleJSON = string(raw)
	}
	rawJSON, err := json.Marshal(opp)
	if err != nil {
		return fmt.Errorf("marshal opportunity: %w", err)
	}

	query := `
INSERT INTO opportunities (
	id, ts_detected, type, symbol,
	buy_exchange, sell_exchange, exchange, asset_cycle_json,
	buy_vwap, sell_vwap, gross_edge_pct, net_edge_pct,
	expected_profit_usdt, available_qty, risk_flag,
	inserted_at, raw_json
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id, ts_detected) DO UPDATE SET
	inserted_at=excluded.inserted_at,
	raw_json=excluded.raw_json;
`

	insertedAt := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(
		ctx,
		query,
		opp.ID,
		opp.TsDetected.UTC().Format(time.RFC3339Nano),
		string(opp.Type),
		opp.Symbol,
		opp.BuyExchange,
		opp.SellExchange,
		opp.Exchange,
		cycleJSON,
		opp.BuyVWAP.String(),
		opp.SellVWAP.String(),
		opp.GrossEdgePct.String(),
		opp.NetEdgePct.String(),
		opp.ExpectedProfitUSDT.String(),
		opp.AvailableQty.String(),
		opp.RiskFlag,
		insertedAt,
		string(rawJSON),
	)
	return err
}

// ListRecent returns the newest audited opportunities, most recent first.
func (s *Store) ListRecent(ctx context.Context, limit int) ([]models.Opportunity, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("sqlite store not initialized")
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT raw_json FROM opportunities ORDER BY ts_detected DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent: %w", err)
	}
	defer rows.Close()

	var out []models.Opportunity
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		var opp models.Opportunity
		if err := json.Unmarshal([]byte(raw), &opp); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, opp)
	}
	return out, rows.Err()
}

// CountRows reports the audit table size, used by the worker's shutdown log.
func (s *Store) CountRows(ctx context.Context) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("sqlite store not initialized")
	}
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM opportunities`).Scan(&n)
	return n, err
}
