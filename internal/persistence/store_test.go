package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"eve-arbitrage/internal/clock"
	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/market"
)

// Compile-time checks that Store serves every consumer.
var (
	_ market.QuoteStore  = (*Store)(nil)
	_ esi.TypeStore      = (*Store)(nil)
	_ engine.ResultStore = (*Store)(nil)
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := NewTestConnection()
	require.NoError(t, err)
	t.Cleanup(func() { Close(db) })
	return NewStore(db)
}

func TestNewConnection_RejectsUnknownType(t *testing.T) {
	_, err := NewConnection("mysql", "whatever")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestStore_QuotesUpsertAndPrune(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	t1 := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	t2 := t1.Add(5 * time.Minute)

	first := []market.ItemQuote{
		{TypeID: 34, TypeName: "Tritanium", UnitVolume: 0.01, RegionID: 10000002, LowestSell: 5, SellVolume: 100},
		{TypeID: 35, RegionID: 10000002, HighestBuy: 9, BuyVolume: 7},
	}
	require.NoError(t, s.UpsertQuotes(ctx, 10000002, first, t1))
	require.NoError(t, s.UpsertQuotes(ctx, 10000043, []market.ItemQuote{{TypeID: 34, RegionID: 10000043, HighestBuy: 6, BuyVolume: 1}}, t1))

	// Refresh drops type 35 from The Forge; Domain is untouched.
	second := []market.ItemQuote{{TypeID: 34, TypeName: "Tritanium", UnitVolume: 0.01, RegionID: 10000002, LowestSell: 4.5, SellVolume: 80}}
	require.NoError(t, s.UpsertQuotes(ctx, 10000002, second, t2))

	got, err := s.LoadQuotes(ctx)
	require.NoError(t, err)
	require.Len(t, got[10000002], 1)
	assert.Equal(t, 4.5, got[10000002][0].LowestSell)
	assert.Equal(t, int64(80), got[10000002][0].SellVolume)
	assert.True(t, got[10000002][0].FetchedAt.Equal(t2))
	require.Len(t, got[10000043], 1)
	assert.Equal(t, 6.0, got[10000043][0].HighestBuy)
}

func TestStore_TypeCache(t *testing.T) {
	s := newTestStore(t)
	clk := clock.NewMock(time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC))
	s.SetClock(clk)

	_, ok := s.GetType(34, time.Hour)
	assert.False(t, ok)

	s.SetType(esi.TypeInfo{TypeID: 34, Name: "Tritanium", Volume: 0.01})
	info, ok := s.GetType(34, time.Hour)
	require.True(t, ok)
	assert.Equal(t, "Tritanium", info.Name)
	assert.Equal(t, 0.01, info.Volume)

	s.SetType(esi.TypeInfo{TypeID: 34, Name: "Tritanium", Volume: 0.02})
	info, ok = s.GetType(34, 0)
	require.True(t, ok)
	assert.Equal(t, 0.02, info.Volume)

	clk.Advance(23 * time.Hour)
	_, ok = s.GetType(34, 24*time.Hour)
	assert.True(t, ok, "still inside the window")

	clk.Advance(2 * time.Hour)
	_, ok = s.GetType(34, 24*time.Hour)
	assert.False(t, ok, "expired entries are misses")
}

func TestStore_OpportunitiesReplace(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	opps := []engine.Opportunity{
		{TypeID: 35, TypeName: "Pyerite", SourceRegion: "Sinq Laison", DestRegion: "The Forge", BuyPrice: 20, SellPrice: 60,
			ProfitPerUnit: 32.944, MarginPct: 159.9, VolumeAvailable: 100, TotalProfit: 3294.4, ComputedAt: at},
		{TypeID: 34, TypeName: "Tritanium", SourceRegion: "The Forge", DestRegion: "Domain", BuyPrice: 100, SellPrice: 140,
			ProfitPerUnit: 21.936, MarginPct: 21.3, VolumeAvailable: 50, TotalProfit: 1096.8, Stale: true, ComputedAt: at},
	}
	require.NoError(t, s.ReplaceOpportunities(ctx, "scan-1", opps))
	got, err := s.LoadOpportunities(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "Pyerite", got[0].TypeName)
	assert.True(t, got[1].Stale)
	assert.True(t, got[1].ComputedAt.Equal(at))

	require.NoError(t, s.ReplaceOpportunities(ctx, "scan-2", nil))
	got, err = s.LoadOpportunities(ctx)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_ScanStateAndHistory(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, ok, err := s.LoadScanState(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.SaveScanState(ctx, engine.ScanState{
		ScanID: "abc", LastScanAt: &at, LastDuration: 1500 * time.Millisecond, OpportunityCount: 3, RoutesFailed: 1,
	}))
	require.NoError(t, s.SaveScanState(ctx, engine.ScanState{
		ScanID: "def", LastScanAt: &at, LastDuration: 2 * time.Second, OpportunityCount: 4,
	}))
	st, ok, err := s.LoadScanState(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "def", st.ScanID)
	assert.Equal(t, 2*time.Second, st.LastDuration)
	assert.Equal(t, 0, st.RoutesFailed)
	require.NotNil(t, st.LastScanAt)
	assert.True(t, st.LastScanAt.Equal(at))

	now := time.Now().UTC()
	for i, id := range []string{"old", "mid", "new"} {
		started := now.Add(time.Duration(i-2) * 24 * time.Hour)
		require.NoError(t, s.InsertScanRecord(ctx, engine.ScanRecord{
			ID: id, StartedAt: started, FinishedAt: started.Add(time.Second), Status: engine.ScanCompleted,
		}))
	}
	recs, err := s.ListScanRecords(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "new", recs[0].ID)
	assert.Equal(t, "mid", recs[1].ID)

	n, err := s.PruneHistory(ctx, 36*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
