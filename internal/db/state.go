package db

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"eve-arbitrage/internal/engine"
)

// SaveScanState writes the single status row. Running and StartedAt are
// process-local and not stored.
func (d *DB) SaveScanState(ctx context.Context, st engine.ScanState) error {
	var lastScan sql.NullString
	if st.LastScanAt != nil {
		lastScan = sql.NullString{String: formatTime(*st.LastScanAt), Valid: true}
	}
	_, err := d.sql.ExecContext(ctx, `INSERT INTO scan_state (
		id, scan_id, last_scan_at, last_duration_ms, opportunity_count, routes_failed, last_error
	) VALUES (1,?,?,?,?,?,?)
	ON CONFLICT(id) DO UPDATE SET
		scan_id = excluded.scan_id,
		last_scan_at = excluded.last_scan_at,
		last_duration_ms = excluded.last_duration_ms,
		opportunity_count = excluded.opportunity_count,
		routes_failed = excluded.routes_failed,
		last_error = excluded.last_error`,
		st.ScanID, lastScan, st.LastDuration.Milliseconds(), st.OpportunityCount, st.RoutesFailed, st.LastError,
	)
	return err
}

// LoadScanState reads the status row; ok is false before the first scan.
func (d *DB) LoadScanState(ctx context.Context) (engine.ScanState, bool, error) {
	var st engine.ScanState
	var lastScan sql.NullString
	var durationMs int64
	err := d.sql.QueryRowContext(ctx, `SELECT scan_id, last_scan_at, last_duration_ms, opportunity_count, routes_failed, last_error
		FROM scan_state WHERE id = 1`,
	).Scan(&st.ScanID, &lastScan, &durationMs, &st.OpportunityCount, &st.RoutesFailed, &st.LastError)
	if errors.Is(err, sql.ErrNoRows) {
		return engine.ScanState{}, false, nil
	}
	if err != nil {
		return engine.ScanState{}, false, err
	}
	if lastScan.Valid {
		t := parseTime(lastScan.String)
		st.LastScanAt = &t
	}
	st.LastDuration = time.Duration(durationMs) * time.Millisecond
	return st, true, nil
}
