package db

import (
	"time"

	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/logger"
)

// GetType returns a cached type if it was stored within maxAge.
func (d *DB) GetType(typeID int32, maxAge time.Duration) (esi.TypeInfo, bool) {
	var info esi.TypeInfo
	var updated string
	err := d.sql.QueryRow(
		"SELECT type_id, name, volume, updated_at FROM item_types WHERE type_id = ?", typeID,
	).Scan(&info.TypeID, &info.Name, &info.Volume, &updated)
	if err != nil {
		return esi.TypeInfo{}, false
	}
	if maxAge > 0 && d.clock.Now().Sub(parseTime(updated)) > maxAge {
		return esi.TypeInfo{}, false
	}
	return info, true
}

// SetType stores type info. Failures are logged; the cache is advisory.
func (d *DB) SetType(info esi.TypeInfo) {
	_, err := d.sql.Exec(`INSERT INTO item_types (type_id, name, volume, updated_at) VALUES (?,?,?,?)
		ON CONFLICT(type_id) DO UPDATE SET name = excluded.name, volume = excluded.volume, updated_at = excluded.updated_at`,
		info.TypeID, info.Name, info.Volume, formatTime(d.clock.Now()),
	)
	if err != nil {
		logger.Warn("DB", "SetType: "+err.Error())
	}
}
