package db

import (
	"context"
	"time"

	"eve-arbitrage/internal/engine"
)

// InsertScanRecord appends one scan to history.
func (d *DB) InsertScanRecord(ctx context.Context, rec engine.ScanRecord) error {
	_, err := d.sql.ExecContext(ctx,
		`INSERT INTO scan_history (id, started_at, finished_at, status, opportunity_count, routes_failed, top_profit, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, formatTime(rec.StartedAt), formatTime(rec.FinishedAt), rec.Status,
		rec.OpportunityCount, rec.RoutesFailed, rec.TopProfit, rec.Error,
	)
	return err
}

// ListScanRecords returns the last N scan history records (newest first).
func (d *DB) ListScanRecords(ctx context.Context, limit int) ([]engine.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := d.sql.QueryContext(ctx,
		`SELECT id, started_at, finished_at, status, opportunity_count, routes_failed, top_profit, error
		 FROM scan_history ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := []engine.ScanRecord{}
	for rows.Next() {
		var r engine.ScanRecord
		var started, finished string
		if err := rows.Scan(&r.ID, &started, &finished, &r.Status, &r.OpportunityCount, &r.RoutesFailed, &r.TopProfit, &r.Error); err != nil {
			return nil, err
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		records = append(records, r)
	}
	return records, rows.Err()
}

// PruneHistory deletes scan records that started before now minus olderThan.
func (d *DB) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := formatTime(d.clock.Now().Add(-olderThan))
	res, err := d.sql.ExecContext(ctx, "DELETE FROM scan_history WHERE started_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
