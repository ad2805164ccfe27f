package db

import (
	"context"
	"fmt"

	"eve-arbitrage/internal/engine"
)

// ReplaceOpportunities swaps the stored opportunity set for opps in one
// transaction. Slice order is kept as rank.
func (d *DB) ReplaceOpportunities(ctx context.Context, scanID string, opps []engine.Opportunity) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM opportunities"); err != nil {
		return fmt.Errorf("clear opportunities: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO opportunities (
		rank, scan_id, type_id, type_name, unit_volume,
		source_region, dest_region, buy_price, sell_price,
		profit_per_unit, margin_pct, volume_available, total_profit,
		stale, computed_at
	) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for i, o := range opps {
		if _, err := stmt.ExecContext(ctx,
			i, scanID, o.TypeID, o.TypeName, o.UnitVolume,
			o.SourceRegion, o.DestRegion, o.BuyPrice, o.SellPrice,
			o.ProfitPerUnit, o.MarginPct, o.VolumeAvailable, o.TotalProfit,
			o.Stale, formatTime(o.ComputedAt),
		); err != nil {
			return fmt.Errorf("insert opportunity %d: %w", i, err)
		}
	}
	return tx.Commit()
}

// LoadOpportunities returns the stored set in rank order.
func (d *DB) LoadOpportunities(ctx context.Context) ([]engine.Opportunity, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT type_id, type_name, unit_volume,
			source_region, dest_region, buy_price, sell_price,
			profit_per_unit, margin_pct, volume_available, total_profit,
			stale, computed_at
		FROM opportunities ORDER BY rank`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []engine.Opportunity
	for rows.Next() {
		var o engine.Opportunity
		var computed string
		if err := rows.Scan(
			&o.TypeID, &o.TypeName, &o.UnitVolume,
			&o.SourceRegion, &o.DestRegion, &o.BuyPrice, &o.SellPrice,
			&o.ProfitPerUnit, &o.MarginPct, &o.VolumeAvailable, &o.TotalProfit,
			&o.Stale, &computed,
		); err != nil {
			return nil, err
		}
		o.ComputedAt = parseTime(computed)
		out = append(out, o)
	}
	return out, rows.Err()
}
