// Package store implements the two-tier columnar store: a hot SQLite
// table for just-ingested rows and a cold tier of immutable,
// zstd-compressed partition files, unified behind Scan.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/mallardmetrics/mallard/internal/logger"
)

const createEventsTable = `
CREATE TABLE IF NOT EXISTS events (
	site_id          TEXT NOT NULL,
	visitor_id       TEXT NOT NULL,
	timestamp        INTEGER NOT NULL,
	event_name       TEXT NOT NULL,
	pathname         TEXT NOT NULL,
	hostname         TEXT,
	referrer         TEXT,
	referrer_source  TEXT,
	utm_source       TEXT,
	utm_medium       TEXT,
	utm_campaign     TEXT,
	utm_content      TEXT,
	utm_term         TEXT,
	browser          TEXT,
	browser_version  TEXT,
	os               TEXT,
	os_version       TEXT,
	device_type      TEXT,
	screen_size      TEXT,
	country_code     TEXT,
	region           TEXT,
	city             TEXT,
	props            TEXT,
	revenue_amount   REAL,
	revenue_currency TEXT
)`

const eventColumns = `site_id, visitor_id, timestamp, event_name, pathname, hostname,
	referrer, referrer_source, utm_source, utm_medium, utm_campaign, utm_content,
	utm_term, browser, browser_version, os, os_version, device_type, screen_size,
	country_code, region, city, props, revenue_amount, revenue_currency`

// Store owns the hot-tier handle (one exclusive holder at a time; the
// underlying engine is not safe for concurrent statement execution) and
// the cold-tier partition root.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	dataDir string
}

// Open creates (or opens) the hot-tier database file under dataDir and
// ensures the schema exists. dataDir is also the root of the cold-tier
// partition tree (<dataDir>/events/site_id=<id>/date=<yyyy-mm-dd>/NNNN.mzc).
func Open(ctx context.Context, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	dsn := dataDir + "/hot.db"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open hot tier: %w", err)
	}
	// A single exclusive writer is enforced at the application level
	// (Store.mu) rather than via connection-pool limits, but capping the
	// pool at 1 keeps accidental concurrent access from silently working
	// around that discipline.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, dataDir: dataDir}
	if _, err := db.ExecContext(ctx, createEventsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	logger.Store().Info().Str("data_dir", dataDir).Msg("hot tier ready")
	return s, nil
}

// Close releases the hot-tier handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// partitionRoot returns the root directory of the cold-tier partition tree.
func (s *Store) partitionRoot() string {
	return s.dataDir + "/events"
}
