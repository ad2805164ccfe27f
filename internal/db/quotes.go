package db

import (
	"context"
	"fmt"
	"time"

	"eve-arbitrage/internal/market"
)

// UpsertQuotes writes a region's snapshot in one transaction. Items absent
// from quotes are removed so the stored region matches the snapshot.
func (d *DB) UpsertQuotes(ctx context.Context, regionID int32, quotes []market.ItemQuote, fetchedAt time.Time) error {
	tx, err := d.sql.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO item_quotes (
		region_id, type_id, type_name, unit_volume,
		lowest_sell, sell_volume, highest_buy, buy_volume, fetched_at
	) VALUES (?,?,?,?,?,?,?,?,?)
	ON CONFLICT(region_id, type_id) DO UPDATE SET
		type_name = excluded.type_name,
		unit_volume = excluded.unit_volume,
		lowest_sell = excluded.lowest_sell,
		sell_volume = excluded.sell_volume,
		highest_buy = excluded.highest_buy,
		buy_volume = excluded.buy_volume,
		fetched_at = excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	stamp := formatTime(fetchedAt)
	for _, q := range quotes {
		if _, err := stmt.ExecContext(ctx,
			regionID, q.TypeID, q.TypeName, q.UnitVolume,
			q.LowestSell, q.SellVolume, q.HighestBuy, q.BuyVolume, stamp,
		); err != nil {
			return fmt.Errorf("upsert quote %d/%d: %w", regionID, q.TypeID, err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM item_quotes WHERE region_id = ? AND fetched_at <> ?", regionID, stamp,
	); err != nil {
		return fmt.Errorf("prune quotes: %w", err)
	}
	return tx.Commit()
}

// LoadQuotes returns every stored quote grouped by region.
func (d *DB) LoadQuotes(ctx context.Context) (map[int32][]market.ItemQuote, error) {
	rows, err := d.sql.QueryContext(ctx, `
		SELECT region_id, type_id, type_name, unit_volume,
			lowest_sell, sell_volume, highest_buy, buy_volume, fetched_at
		FROM item_quotes ORDER BY region_id, type_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[int32][]market.ItemQuote)
	for rows.Next() {
		var q market.ItemQuote
		var fetched string
		if err := rows.Scan(&q.RegionID, &q.TypeID, &q.TypeName, &q.UnitVolume,
			&q.LowestSell, &q.SellVolume, &q.HighestBuy, &q.BuyVolume, &fetched); err != nil {
			return nil, err
		}
		q.FetchedAt = parseTime(fetched)
		out[q.RegionID] = append(out[q.RegionID], q)
	}
	return out, rows.Err()
}
