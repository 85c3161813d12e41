// Package sqlite is the durable audit sink: every opportunity delivered on
// the bus is a candidate row here. The scanner itself never writes; only the
// opportunity worker and the admin commands touch the database.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const (
	defaultPath = "data/crossarb.db"
)

// Store wraps a SQLite DB connection.
type Store struct {
	path string
	db   *sql.DB
}

// Open creates (if needed) and opens the SQLite database.
func Open(path string) (*Store, error) {
	if path == "" {
		path = defaultPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure data dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := ensureWAL(db); err != nil {
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	return &Store{path: path, db: db}, nil
}

func ensureWAL(db *sql.DB) error {
	const (
		maxAttempts = 5
		delay       = 200 * time.Millisecond
	)
	for i := 0; i < maxAttempts; i++ {
		if _, err := db.Exec("PRAGMA journal_mode=WAL;"); err != nil {
			if strings.Contains(err.Error(), "database is locked") {
				time.Sleep(delay)
				continue
			}
			return err
		}
		return nil
	}
	return fmt.Errorf("database is locked after retries")
}

// Path returns the path backing the store.
func (s *Store) Path() string {
	return s.path
}

// Close closes the DB.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// CreateTables ensures the opportunities audit table exists.
func (s *Store) CreateTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, auditSchemaSQL)
	return err
}

// DropTables removes the audit table.
func (s *Store) DropTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DROP TABLE IF EXISTS opportunities;`)
	return err
}

// ClearTables truncates the audit table.
func (s *Store) ClearTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM opportunities;`)
	return err
}

// Money columns are TEXT: the decimal values round-trip through their string
// form so the audit trail carries exactly what was detected.
const auditSchemaSQL = `
CREATE TABLE IF NOT EXISTS opportunities (
	id TEXT NOT NULL,
	ts_detected TEXT NOT NULL,
	type TEXT NOT NULL,
	symbol TEXT,
	buy_exchange TEXT,
	sell_exchange TEXT,
	exchange TEXT,
	asset_cycle_json TEXT,
	buy_vwap TEXT,
	sell_vwap TEXT,
	gross_edge_pct TEXT,
	net_edge_pct TEXT,
	expected_profit_usdt TEXT,
	available_qty TEXT,
	risk_flag TEXT,
	inserted_at TEXT NOT NULL,
	raw_json TEXT,
	PRIMARY KEY (id, ts_detected)
);
CREATE INDEX IF NOT EXISTS opportunities_symbol_idx ON opportunities(symbol, ts_detected);
CREATE INDEX IF NOT EXISTS opportunities_detected_idx ON opportunities(ts_detected);
`
