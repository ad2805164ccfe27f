package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve-arbitrage/internal/clock"
	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/market"

	_ "modernc.org/sqlite"
)

// openTestDB opens an in-memory SQLite DB and runs migrations (for testing only).
func openTestDB(t *testing.T) *DB {
	t.Helper()
	sqlDB, err := sql.Open("sqlite", ":memory:?_pragma=busy_timeout(5000)")
	if err != nil {
		t.Fatalf("open in-memory db: %v", err)
	}
	// Every connection to :memory: is a separate database.
	sqlDB.SetMaxOpenConns(1)
	d := &DB{sql: sqlDB, clock: clock.New()}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() { d.Close() })
	return d
}

func TestOpen_CreatesFileAndIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "arb.db")

	d, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(path)
	require.NoError(t, err)
	defer d.Close()

	var version int
	require.NoError(t, d.sql.QueryRow("SELECT MAX(version) FROM schema_version").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestDB_OpportunitiesRoundTripKeepsOrder(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 123, time.UTC)

	opps := []engine.Opportunity{
		{TypeID: 35, TypeName: "Pyerite", UnitVolume: 0.01, SourceRegion: "Sinq Laison", DestRegion: "The Forge",
			BuyPrice: 20, SellPrice: 60, ProfitPerUnit: 32.944, MarginPct: 159.9, VolumeAvailable: 100, TotalProfit: 3294.4, ComputedAt: at},
		{TypeID: 34, TypeName: "Tritanium", UnitVolume: 0.01, SourceRegion: "The Forge", DestRegion: "Domain",
			BuyPrice: 100, SellPrice: 140, ProfitPerUnit: 21.936, MarginPct: 21.3, VolumeAvailable: 50, TotalProfit: 1096.8, Stale: true, ComputedAt: at},
		{TypeID: 36, TypeName: "Mexallon", UnitVolume: 0.01, SourceRegion: "The Forge", DestRegion: "Domain",
			BuyPrice: 50, SellPrice: 70, ProfitPerUnit: 9.8, MarginPct: 19, VolumeAvailable: 10, TotalProfit: 98, ComputedAt: at},
	}
	require.NoError(t, d.ReplaceOpportunities(ctx, "scan-1", opps))

	got, err := d.LoadOpportunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, opps, got)

	// A second replace removes the first set entirely.
	require.NoError(t, d.ReplaceOpportunities(ctx, "scan-2", opps[2:]))
	got, err = d.LoadOpportunities(ctx)
	require.NoError(t, err)
	assert.Equal(t, opps[2:], got)

	require.NoError(t, d.ReplaceOpportunities(ctx, "scan-3", nil))
	got, err = d.LoadOpportunities(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDB_QuotesUpsertAndPrune(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(5 * time.Minute)

	require.NoError(t, d.UpsertQuotes(ctx, 10000002, []market.ItemQuote{
		{TypeID: 34, RegionID: 10000002, TypeName: "Tritanium", UnitVolume: 0.01, LowestSell: 5, SellVolume: 10, FetchedAt: t1},
		{TypeID: 35, RegionID: 10000002, LowestSell: 9, SellVolume: 1, FetchedAt: t1},
	}, t1))
	require.NoError(t, d.UpsertQuotes(ctx, 10000043, []market.ItemQuote{
		{TypeID: 34, RegionID: 10000043, HighestBuy: 7, BuyVolume: 3, FetchedAt: t1},
	}, t1))

	require.NoError(t, d.UpsertQuotes(ctx, 10000002, []market.ItemQuote{
		{TypeID: 34, RegionID: 10000002, TypeName: "Tritanium", UnitVolume: 0.01, LowestSell: 4.5, SellVolume: 20, FetchedAt: t2},
	}, t2))

	all, err := d.LoadQuotes(ctx)
	require.NoError(t, err)
	require.Len(t, all[10000002], 1, "type 35 vanished from the region")
	q := all[10000002][0]
	assert.Equal(t, 4.5, q.LowestSell)
	assert.Equal(t, int64(20), q.SellVolume)
	assert.True(t, t2.Equal(q.FetchedAt))
	require.Len(t, all[10000043], 1, "other regions untouched")
}

func TestDB_TypeCache(t *testing.T) {
	d := openTestDB(t)
	clk := clock.NewMock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	d.SetClock(clk)

	_, ok := d.GetType(34, time.Hour)
	assert.False(t, ok)

	d.SetType(esi.TypeInfo{TypeID: 34, Name: "Tritanium", Volume: 0.01})
	info, ok := d.GetType(34, time.Hour)
	require.True(t, ok)
	assert.Equal(t, "Tritanium", info.Name)

	clk.Advance(23 * time.Hour)
	_, ok = d.GetType(34, 24*time.Hour)
	assert.True(t, ok, "still inside the window")

	clk.Advance(2 * time.Hour)
	_, ok = d.GetType(34, 24*time.Hour)
	assert.False(t, ok, "expired entries are misses")
	_, ok = d.GetType(34, 0)
	assert.True(t, ok, "zero maxAge ignores age")
}

func TestDB_ScanStateRoundTrip(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()

	_, ok, err := d.LoadScanState(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, d.SaveScanState(ctx, engine.ScanState{
		Running: true, ScanID: "abc", LastScanAt: &at, LastDuration: 1500 * time.Millisecond,
		OpportunityCount: 7, RoutesFailed: 1, LastError: "",
	}))
	require.NoError(t, d.SaveScanState(ctx, engine.ScanState{
		ScanID: "def", LastScanAt: &at, OpportunityCount: 7, LastError: "persist opportunities: disk full",
	}))

	st, ok, err := d.LoadScanState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "def", st.ScanID)
	assert.False(t, st.Running)
	require.NotNil(t, st.LastScanAt)
	assert.True(t, at.Equal(*st.LastScanAt))
	assert.Equal(t, "persist opportunities: disk full", st.LastError)
}

func TestDB_HistoryNewestFirstAndPrune(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for i, id := range []string{"old", "mid", "new"} {
		started := now.Add(time.Duration(i-2) * 24 * time.Hour * 20)
		require.NoError(t, d.InsertScanRecord(ctx, engine.ScanRecord{
			ID: id, StartedAt: started, FinishedAt: started.Add(time.Second),
			Status: engine.ScanCompleted, OpportunityCount: i, TopProfit: float64(i * 100),
		}))
	}

	recs, err := d.ListScanRecords(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "new", recs[0].ID)
	assert.Equal(t, "mid", recs[1].ID)

	n, err := d.PruneHistory(ctx, 30*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	recs, err = d.ListScanRecords(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}
