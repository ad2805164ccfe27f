package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"eve-arbitrage/internal/clock"
	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/logger"
	"eve-arbitrage/internal/market"
)

const batchSize = 500

// Store implements market.QuoteStore, esi.TypeStore and engine.ResultStore
// on GORM.
type Store struct {
	db    *gorm.DB
	clock clock.Clock
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db, clock: clock.New()}
}

// SetClock replaces the clock used for cache ages and retention cutoffs.
func (s *Store) SetClock(c clock.Clock) { s.clock = c }

// Open connects, migrates and wraps the database.
func Open(dbType, dsn string) (*Store, error) {
	db, err := NewConnection(dbType, dsn)
	if err != nil {
		return nil, err
	}
	if err := AutoMigrate(db); err != nil {
		Close(db)
		return nil, fmt.Errorf("migrate: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("Connected to %s", dbType))
	return NewStore(db), nil
}

func (s *Store) Close() error { return Close(s.db) }

func (s *Store) UpsertQuotes(ctx context.Context, regionID int32, quotes []market.ItemQuote, fetchedAt time.Time) error {
	fetchedAt = fetchedAt.UTC()
	rows := make([]QuoteModel, 0, len(quotes))
	for _, q := range quotes {
		rows = append(rows, QuoteModel{
			RegionID: regionID, TypeID: q.TypeID, TypeName: q.TypeName, UnitVolume: q.UnitVolume,
			LowestSell: q.LowestSell, SellVolume: q.SellVolume, HighestBuy: q.HighestBuy, BuyVolume: q.BuyVolume,
			FetchedAt: fetchedAt,
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(rows) > 0 {
			if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(rows, batchSize).Error; err != nil {
				return fmt.Errorf("upsert quotes: %w", err)
			}
		}
		if err := tx.Where("region_id = ? AND fetched_at <> ?", regionID, fetchedAt).Delete(&QuoteModel{}).Error; err != nil {
			return fmt.Errorf("prune quotes: %w", err)
		}
		return nil
	})
}

func (s *Store) LoadQuotes(ctx context.Context) (map[int32][]market.ItemQuote, error) {
	var rows []QuoteModel
	if err := s.db.WithContext(ctx).Order("region_id, type_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make(map[int32][]market.ItemQuote)
	for _, r := range rows {
		out[r.RegionID] = append(out[r.RegionID], market.ItemQuote{
			TypeID: r.TypeID, TypeName: r.TypeName, UnitVolume: r.UnitVolume, RegionID: r.RegionID,
			LowestSell: r.LowestSell, SellVolume: r.SellVolume, HighestBuy: r.HighestBuy, BuyVolume: r.BuyVolume,
			FetchedAt: r.FetchedAt.UTC(),
		})
	}
	return out, nil
}

func (s *Store) GetType(typeID int32, maxAge time.Duration) (esi.TypeInfo, bool) {
	var row TypeModel
	q := s.db.Where("type_id = ?", typeID)
	if maxAge > 0 {
		q = q.Where("updated_at >= ?", s.clock.Now().UTC().Add(-maxAge))
	}
	if err := q.Take(&row).Error; err != nil {
		return esi.TypeInfo{}, false
	}
	return esi.TypeInfo{TypeID: row.TypeID, Name: row.Name, Volume: row.Volume}, true
}

func (s *Store) SetType(info esi.TypeInfo) {
	row := TypeModel{TypeID: info.TypeID, Name: info.Name, Volume: info.Volume, UpdatedAt: s.clock.Now().UTC()}
	if err := s.db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&row).Error; err != nil {
		logger.Warn("DB", "SetType: "+err.Error())
	}
}

func (s *Store) ReplaceOpportunities(ctx context.Context, scanID string, opps []engine.Opportunity) error {
	rows := make([]OpportunityModel, 0, len(opps))
	for i, o := range opps {
		rows = append(rows, OpportunityModel{
			Rank: i, ScanID: scanID, TypeID: o.TypeID, TypeName: o.TypeName, UnitVolume: o.UnitVolume,
			SourceRegion: o.SourceRegion, DestRegion: o.DestRegion, BuyPrice: o.BuyPrice, SellPrice: o.SellPrice,
			ProfitPerUnit: o.ProfitPerUnit, MarginPct: o.MarginPct, VolumeAvailable: o.VolumeAvailable,
			TotalProfit: o.TotalProfit, Stale: o.Stale, ComputedAt: o.ComputedAt.UTC(),
		})
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&OpportunityModel{}).Error; err != nil {
			return fmt.Errorf("clear opportunities: %w", err)
		}
		if len(rows) == 0 {
			return nil
		}
		return tx.CreateInBatches(rows, batchSize).Error
	})
}

func (s *Store) LoadOpportunities(ctx context.Context) ([]engine.Opportunity, error) {
	var rows []OpportunityModel
	if err := s.db.WithContext(ctx).Order("rank").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]engine.Opportunity, 0, len(rows))
	for _, r := range rows {
		out = append(out, engine.Opportunity{
			TypeID: r.TypeID, TypeName: r.TypeName, UnitVolume: r.UnitVolume,
			SourceRegion: r.SourceRegion, DestRegion: r.DestRegion, BuyPrice: r.BuyPrice, SellPrice: r.SellPrice,
			ProfitPerUnit: r.ProfitPerUnit, MarginPct: r.MarginPct, VolumeAvailable: r.VolumeAvailable,
			TotalProfit: r.TotalProfit, Stale: r.Stale, ComputedAt: r.ComputedAt.UTC(),
		})
	}
	return out, nil
}

func (s *Store) SaveScanState(ctx context.Context, st engine.ScanState) error {
	row := ScanStateModel{
		ID:               1,
		ScanID:           st.ScanID,
		LastDurationMs:   st.LastDuration.Milliseconds(),
		OpportunityCount: st.OpportunityCount,
		RoutesFailed:     st.RoutesFailed,
		LastError:        st.LastError,
	}
	if st.LastScanAt != nil {
		t := st.LastScanAt.UTC()
		row.LastScanAt = &t
	}
	return s.db.WithContext(ctx).Save(&row).Error
}

func (s *Store) LoadScanState(ctx context.Context) (engine.ScanState, bool, error) {
	var row ScanStateModel
	err := s.db.WithContext(ctx).Where("id = ?", 1).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return engine.ScanState{}, false, nil
	}
	if err != nil {
		return engine.ScanState{}, false, err
	}
	st := engine.ScanState{
		ScanID:           row.ScanID,
		LastDuration:     time.Duration(row.LastDurationMs) * time.Millisecond,
		OpportunityCount: row.OpportunityCount,
		RoutesFailed:     row.RoutesFailed,
		LastError:        row.LastError,
	}
	if row.LastScanAt != nil {
		t := row.LastScanAt.UTC()
		st.LastScanAt = &t
	}
	return st, true, nil
}

func (s *Store) InsertScanRecord(ctx context.Context, rec engine.ScanRecord) error {
	return s.db.WithContext(ctx).Create(&ScanRecordModel{
		ID: rec.ID, StartedAt: rec.StartedAt.UTC(), FinishedAt: rec.FinishedAt.UTC(), Status: rec.Status,
		OpportunityCount: rec.OpportunityCount, RoutesFailed: rec.RoutesFailed, TopProfit: rec.TopProfit, Error: rec.Error,
	}).Error
}

func (s *Store) ListScanRecords(ctx context.Context, limit int) ([]engine.ScanRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []ScanRecordModel
	if err := s.db.WithContext(ctx).Order("started_at DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]engine.ScanRecord, 0, len(rows))
	for _, r := range rows {
		out = append(out, engine.ScanRecord{
			ID: r.ID, StartedAt: r.StartedAt.UTC(), FinishedAt: r.FinishedAt.UTC(), Status: r.Status,
			OpportunityCount: r.OpportunityCount, RoutesFailed: r.RoutesFailed, TopProfit: r.TopProfit, Error: r.Error,
		})
	}
	return out, nil
}

func (s *Store) PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error) {
	res := s.db.WithContext(ctx).Where("started_at < ?", s.clock.Now().UTC().Add(-olderThan)).Delete(&ScanRecordModel{})
	return res.RowsAffected, res.Error
}
