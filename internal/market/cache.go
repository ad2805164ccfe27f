package market

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"eve-arbitrage/internal/clock"
	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/logger"
)

// OrderSource fetches a region's full order book.
type OrderSource interface {
	FetchRegionOrders(ctx context.Context, regionID int32) ([]esi.MarketOrder, error)
}

// QuoteStore persists snapshots so a restart starts warm. UpsertQuotes
// replaces the region's rows atomically.
type QuoteStore interface {
	UpsertQuotes(ctx context.Context, regionID int32, quotes []ItemQuote, fetchedAt time.Time) error
	LoadQuotes(ctx context.Context) (map[int32][]ItemQuote, error)
}

// TypeLookup supplies names and volumes without network I/O.
type TypeLookup interface {
	Lookup(typeID int32) (esi.TypeInfo, bool)
}

// Observer is told the outcome of every GetOrRefresh call: "hit", "refresh",
// "stale" or "miss".
type Observer interface {
	ObserveCacheLookup(result string)
}

// CacheMissError means a refresh failed and there was no earlier snapshot
// to fall back on.
type CacheMissError struct {
	Region int32
	Err    error
}

func (e *CacheMissError) Error() string {
	return fmt.Sprintf("market: no snapshot for region %d: %v", e.Region, e.Err)
}

func (e *CacheMissError) Unwrap() error { return e.Err }

type Options struct {
	Store         QuoteStore
	Types         TypeLookup
	Clock         clock.Clock
	TierTolerance float64
	Observer      Observer
}

// Cache keeps the latest Snapshot per region. Reads are lock-free: the
// region index is replaced wholesale on every publish. Concurrent refreshes
// of one region collapse into a single upstream fetch.
type Cache struct {
	source    OrderSource
	store     QuoteStore
	types     TypeLookup
	clock     clock.Clock
	tolerance float64
	observer  Observer

	writeMu sync.Mutex
	index   atomic.Pointer[map[int32]*Snapshot]
	group   singleflight.Group
}

func NewCache(source OrderSource, opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	c := &Cache{
		source:    source,
		store:     opts.Store,
		types:     opts.Types,
		clock:     opts.Clock,
		tolerance: opts.TierTolerance,
		observer:  opts.Observer,
	}
	empty := map[int32]*Snapshot{}
	c.index.Store(&empty)
	return c
}

// Lookup returns the current snapshot for a region without refreshing.
func (c *Cache) Lookup(regionID int32) *Snapshot {
	return (*c.index.Load())[regionID]
}

// Regions lists every region with a snapshot.
func (c *Cache) Regions() []int32 {
	idx := *c.index.Load()
	out := make([]int32, 0, len(idx))
	for id := range idx {
		out = append(out, id)
	}
	return out
}

// GetOrRefresh returns the region's snapshot if it is at most maxAge old,
// otherwise fetches a new one. On fetch failure the previous snapshot is
// returned marked Stale; with no previous snapshot a *CacheMissError is
// returned.
func (c *Cache) GetOrRefresh(ctx context.Context, regionID int32, maxAge time.Duration) (*Snapshot, error) {
	if s := c.Lookup(regionID); s != nil && c.fresh(s, maxAge) {
		c.observe("hit")
		return s, nil
	}

	// The shared fetch must not die with whichever caller started it; each
	// caller stops waiting on its own context instead. ESI requests carry
	// their own timeouts.
	flightCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(strconv.Itoa(int(regionID)), func() (interface{}, error) {
		// Another caller may have published while this one waited.
		if s := c.Lookup(regionID); s != nil && c.fresh(s, maxAge) {
			return s, nil
		}
		return c.refresh(flightCtx, regionID)
	})
	var v interface{}
	var err error
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		prev := c.Lookup(regionID)
		if prev == nil {
			c.observe("miss")
			return nil, &CacheMissError{Region: regionID, Err: err}
		}
		c.observe("stale")
		logger.Warn("CACHE", fmt.Sprintf("Region %d refresh failed, serving %s old snapshot: %v",
			regionID, prev.Age(c.clock.Now()).Round(time.Second), err))
		return prev.asStale(), nil
	}
	c.observe("refresh")
	return v.(*Snapshot), nil
}

// Warm loads persisted snapshots. Their original fetch time is kept, so
// anything older than the caller's maxAge is refreshed on first use.
func (c *Cache) Warm(ctx context.Context) error {
	if c.store == nil {
		return nil
	}
	byRegion, err := c.store.LoadQuotes(ctx)
	if err != nil {
		return err
	}
	for regionID, quotes := range byRegion {
		snap := &Snapshot{RegionID: regionID, Quotes: make(map[int32]ItemQuote, len(quotes))}
		for _, q := range quotes {
			snap.Quotes[q.TypeID] = q
			if q.FetchedAt.After(snap.FetchedAt) {
				snap.FetchedAt = q.FetchedAt
			}
		}
		c.publish(snap)
	}
	if len(byRegion) > 0 {
		logger.Info("CACHE", fmt.Sprintf("Warmed %d regions from store", len(byRegion)))
	}
	return nil
}

// Evict drops a region's snapshot.
func (c *Cache) Evict(regionID int32) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	old := *c.index.Load()
	next := make(map[int32]*Snapshot, len(old))
	for k, v := range old {
		if k != regionID {
			next[k] = v
		}
	}
	c.index.Store(&next)
}

func (c *Cache) fresh(s *Snapshot, maxAge time.Duration) bool {
	return s.Age(c.clock.Now()) <= maxAge
}

func (c *Cache) refresh(ctx context.Context, regionID int32) (*Snapshot, error) {
	orders, err := c.source.FetchRegionOrders(ctx, regionID)
	if err != nil {
		return nil, err
	}
	now := c.clock.Now()
	quotes := Reduce(regionID, orders, c.tolerance, now)
	if c.types != nil {
		for id, q := range quotes {
			if info, ok := c.types.Lookup(id); ok {
				q.TypeName = info.Name
				q.UnitVolume = info.Volume
				quotes[id] = q
			}
		}
	}

	snap := &Snapshot{RegionID: regionID, Quotes: quotes, FetchedAt: now}
	if c.store != nil {
		// The in-memory snapshot stays authoritative; the store only serves
		// warm restarts.
		if err := c.store.UpsertQuotes(ctx, regionID, snap.List(), now); err != nil {
			logger.Warn("CACHE", fmt.Sprintf("Region %d: persist quotes: %v", regionID, err))
		}
	}
	c.publish(snap)
	logger.Info("CACHE", fmt.Sprintf("Region %d refreshed: %d items from %d orders", regionID, len(quotes), len(orders)))
	return snap, nil
}

func (c *Cache) publish(s *Snapshot) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	old := *c.index.Load()
	next := make(map[int32]*Snapshot, len(old)+1)
	for k, v := range old {
		next[k] = v
	}
	next[s.RegionID] = s
	c.index.Store(&next)
}

func (c *Cache) observe(result string) {
	if c.observer != nil {
		c.observer.ObserveCacheLookup(result)
	}
}
