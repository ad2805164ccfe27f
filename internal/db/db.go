package db

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"eve-arbitrage/internal/clock"
	"eve-arbitrage/internal/logger"
	_ "modernc.org/sqlite"
)

// DB wraps a SQLite database connection.
type DB struct {
	sql   *sql.DB
	clock clock.Clock // type cache freshness and history pruning
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB, clock: clock.New()}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("Opened %s", path))
	return d, nil
}

// SetClock replaces the clock used for cache ages and retention cutoffs.
func (d *DB) SetClock(c clock.Clock) { d.clock = c }

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate() error {
	version := 0
	// Missing table on a fresh database leaves version at 0.
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS item_quotes (
				region_id   INTEGER NOT NULL,
				type_id     INTEGER NOT NULL,
				type_name   TEXT NOT NULL DEFAULT '',
				unit_volume REAL NOT NULL DEFAULT 0,
				lowest_sell REAL NOT NULL DEFAULT 0,
				sell_volume INTEGER NOT NULL DEFAULT 0,
				highest_buy REAL NOT NULL DEFAULT 0,
				buy_volume  INTEGER NOT NULL DEFAULT 0,
				fetched_at  TEXT NOT NULL,
				PRIMARY KEY (region_id, type_id)
			);

			CREATE TABLE IF NOT EXISTS item_types (
				type_id    INTEGER PRIMARY KEY,
				name       TEXT NOT NULL,
				volume     REAL NOT NULL,
				updated_at TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_item_types_name ON item_types(name COLLATE NOCASE);

			CREATE TABLE IF NOT EXISTS opportunities (
				rank             INTEGER PRIMARY KEY,
				scan_id          TEXT NOT NULL,
				type_id          INTEGER NOT NULL,
				type_name        TEXT NOT NULL,
				unit_volume      REAL NOT NULL,
				source_region    TEXT NOT NULL,
				dest_region      TEXT NOT NULL,
				buy_price        REAL NOT NULL,
				sell_price       REAL NOT NULL,
				profit_per_unit  REAL NOT NULL,
				margin_pct       REAL NOT NULL,
				volume_available INTEGER NOT NULL,
				total_profit     REAL NOT NULL,
				stale            INTEGER NOT NULL DEFAULT 0,
				computed_at      TEXT NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_opportunities_type ON opportunities(type_id);

			CREATE TABLE IF NOT EXISTS scan_state (
				id                INTEGER PRIMARY KEY CHECK (id = 1),
				scan_id           TEXT NOT NULL DEFAULT '',
				last_scan_at      TEXT,
				last_duration_ms  INTEGER NOT NULL DEFAULT 0,
				opportunity_count INTEGER NOT NULL DEFAULT 0,
				routes_failed     INTEGER NOT NULL DEFAULT 0,
				last_error        TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE IF NOT EXISTS scan_history (
				id                TEXT PRIMARY KEY,
				started_at        TEXT NOT NULL,
				finished_at       TEXT NOT NULL,
				status            TEXT NOT NULL,
				opportunity_count INTEGER NOT NULL,
				routes_failed     INTEGER NOT NULL,
				top_profit        REAL NOT NULL,
				error             TEXT NOT NULL DEFAULT ''
			);
			CREATE INDEX IF NOT EXISTS idx_scan_history_started ON scan_history(started_at);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("DB", "Applied migration v1")
	}

	return nil
}

// SqlDB returns the underlying *sql.DB for packages that need direct access.
func (d *DB) SqlDB() *sql.DB {
	return d.sql
}

// Fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
