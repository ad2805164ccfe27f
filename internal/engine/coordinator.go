package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"eve-arbitrage/internal/clock"
	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/logger"
	"eve-arbitrage/internal/market"
)

// SnapshotSource is the market cache as seen by the coordinator.
type SnapshotSource interface {
	GetOrRefresh(ctx context.Context, regionID int32, maxAge time.Duration) (*market.Snapshot, error)
}

// TypeCatalog resolves item names and volumes.
type TypeCatalog interface {
	TypeLookup
	ResolveMany(ctx context.Context, ids []int32) map[int32]esi.TypeInfo
	ResolveName(ctx context.Context, name string) (esi.TypeInfo, error)
}

// ResultStore persists the opportunity set, the status row and scan history.
// ReplaceOpportunities must swap the whole set in one transaction.
type ResultStore interface {
	ReplaceOpportunities(ctx context.Context, scanID string, opps []Opportunity) error
	LoadOpportunities(ctx context.Context) ([]Opportunity, error)
	SaveScanState(ctx context.Context, st ScanState) error
	LoadScanState(ctx context.Context) (ScanState, bool, error)
	InsertScanRecord(ctx context.Context, rec ScanRecord) error
	ListScanRecords(ctx context.Context, limit int) ([]ScanRecord, error)
}

// ScanObserver receives scan outcomes. Implemented by the metrics package.
type ScanObserver interface {
	ObserveScan(status string, elapsed time.Duration, opportunities, routesFailed int)
}

// ScanParams is everything one scan needs.
type ScanParams struct {
	Regions            []Region
	Routes             []Route
	Fees               FeeSchedule
	Filters            Filters
	CacheTTL           time.Duration
	LookupTTL          time.Duration
	MaxParallelRegions int
}

// Validate checks fees and route topology.
func (p ScanParams) Validate() error {
	var problems []string
	var feeErr *ConfigError
	if err := p.Fees.Validate(); errors.As(err, &feeErr) {
		problems = append(problems, feeErr.Problems...)
	}

	known := make(map[int32]string, len(p.Regions))
	for _, r := range p.Regions {
		known[r.ID] = r.Name
	}
	if len(p.Routes) == 0 {
		problems = append(problems, "no routes configured")
	}
	for _, rt := range p.Routes {
		for _, r := range []Region{rt.Source, rt.Destination} {
			if name, ok := known[r.ID]; !ok || r.ID == 0 || !strings.EqualFold(name, r.Name) {
				problems = append(problems, fmt.Sprintf("route %s: unknown region %q", rt, r.Name))
			}
		}
		if rt.Source.ID == rt.Destination.ID && rt.Source.ID != 0 {
			problems = append(problems, fmt.Sprintf("route %s: source and destination are the same region", rt))
		}
	}
	if p.Filters.MinVolume < 0 || p.Filters.MaxInvestment < 0 {
		problems = append(problems, "filters must not be negative")
	}
	if len(problems) > 0 {
		return &ConfigError{Problems: problems}
	}
	return nil
}

// routeRegions returns the distinct regions used by routes, in first-seen order.
func (p ScanParams) routeRegions() []Region {
	seen := make(map[int32]bool)
	var out []Region
	for _, rt := range p.Routes {
		for _, r := range []Region{rt.Source, rt.Destination} {
			if !seen[r.ID] {
				seen[r.ID] = true
				out = append(out, r)
			}
		}
	}
	return out
}

// ResultSet is one scan's complete, ranked output. Never modified after
// publication.
type ResultSet struct {
	ScanID        string
	ComputedAt    time.Time
	Opportunities []Opportunity
}

// Coordinator runs scans one at a time and serves their results.
type Coordinator struct {
	params   ScanParams
	cache    SnapshotSource
	types    TypeCatalog
	store    ResultStore
	clock    clock.Clock
	observer ScanObserver

	mu    sync.Mutex // guards state
	state ScanState

	results atomic.Pointer[ResultSet]
	wg      sync.WaitGroup
}

type CoordinatorOptions struct {
	Clock    clock.Clock
	Observer ScanObserver
}

func NewCoordinator(params ScanParams, cache SnapshotSource, types TypeCatalog, store ResultStore, opts CoordinatorOptions) *Coordinator {
	if opts.Clock == nil {
		opts.Clock = clock.New()
	}
	if params.MaxParallelRegions < 1 {
		params.MaxParallelRegions = 1
	}
	c := &Coordinator{
		params:   params,
		cache:    cache,
		types:    types,
		store:    store,
		clock:    opts.Clock,
		observer: opts.Observer,
	}
	c.results.Store(&ResultSet{})
	return c
}

// Params returns the scan configuration.
func (c *Coordinator) Params() ScanParams { return c.params }

// Restore loads the last persisted result set and status row.
func (c *Coordinator) Restore(ctx context.Context) error {
	opps, err := c.store.LoadOpportunities(ctx)
	if err != nil {
		return fmt.Errorf("load opportunities: %w", err)
	}
	st, ok, err := c.store.LoadScanState(ctx)
	if err != nil {
		return fmt.Errorf("load scan state: %w", err)
	}

	set := &ResultSet{Opportunities: opps}
	if ok {
		st.Running = false
		st.StartedAt = nil
		set.ScanID = st.ScanID
		if st.LastScanAt != nil {
			set.ComputedAt = *st.LastScanAt
		}
		c.mu.Lock()
		c.state = st
		c.mu.Unlock()
	}
	c.results.Store(set)
	if len(opps) > 0 {
		logger.Info("SCAN", fmt.Sprintf("Restored %d opportunities from last scan", len(opps)))
	}
	return nil
}

// Status returns a copy of the current scan state.
func (c *Coordinator) Status() ScanState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Results returns the current result set.
func (c *Coordinator) Results() *ResultSet {
	return c.results.Load()
}

// Opportunities filters the last completed result set. It never waits for
// a running scan.
func (c *Coordinator) Opportunities(q OpportunityQuery) []Opportunity {
	return FilterOpportunities(c.results.Load().Opportunities, q)
}

// History returns the most recent scan records.
func (c *Coordinator) History(ctx context.Context, limit int) ([]ScanRecord, error) {
	return c.store.ListScanRecords(ctx, EffectiveMaxResults(limit, 20))
}

// TriggerScan starts a scan in the background and returns its id. If a scan
// is already running it returns ErrScanRunning; the request is not queued.
func (c *Coordinator) TriggerScan(ctx context.Context) (string, error) {
	id, started, err := c.begin()
	if err != nil {
		return "", err
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		// The scan outlives the request that started it.
		_, _ = c.execute(context.WithoutCancel(ctx), id, started)
	}()
	return id, nil
}

// RunScan runs a scan on the calling goroutine.
func (c *Coordinator) RunScan(ctx context.Context) (*ScanReport, error) {
	id, started, err := c.begin()
	if err != nil {
		return nil, err
	}
	return c.execute(ctx, id, started)
}

// Wait blocks until background scans have finished.
func (c *Coordinator) Wait() {
	c.wg.Wait()
}

func (c *Coordinator) begin() (string, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.Running {
		return "", time.Time{}, ErrScanRunning
	}
	if err := c.params.Validate(); err != nil {
		c.state.LastError = err.Error()
		return "", time.Time{}, err
	}
	now := c.clock.Now()
	id := uuid.NewString()
	c.state.Running = true
	c.state.ScanID = id
	c.state.StartedAt = &now
	c.state.LastError = ""
	return id, now, nil
}

func (c *Coordinator) execute(ctx context.Context, scanID string, started time.Time) (*ScanReport, error) {
	logger.Section("Scan " + shortID(scanID))
	logger.Info("SCAN", fmt.Sprintf("Scanning %d routes across %d regions", len(c.params.Routes), len(c.params.routeRegions())))

	snaps, regionErrs := c.fetchRegions(ctx)
	c.resolveCandidates(ctx, snaps)

	report := &ScanReport{ScanID: scanID, StartedAt: started}
	var combined []Opportunity
	failed := 0
	for _, rt := range c.params.Routes {
		rr := RouteReport{Route: rt}
		src, dst := snaps[rt.Source.ID], snaps[rt.Destination.ID]
		if src == nil || dst == nil {
			failed++
			rr.Err = routeError(rt, regionErrs)
			logger.Warn("SCAN", fmt.Sprintf("Route %s skipped: %s", rt, rr.Err))
			report.Routes = append(report.Routes, rr)
			continue
		}
		opps := EvaluateRoute(rt, src, dst, c.params.Fees, c.params.Filters, c.types, started)
		rr.Opportunities = len(opps)
		rr.Stale = src.Stale || dst.Stale
		report.Routes = append(report.Routes, rr)
		combined = append(combined, opps...)
	}
	RankOpportunities(combined)

	if err := c.store.ReplaceOpportunities(ctx, scanID, combined); err != nil {
		perr := &PersistenceError{Op: "opportunities", Err: err}
		c.finish(ctx, scanID, started, nil, failed, perr)
		return nil, perr
	}

	set := &ResultSet{ScanID: scanID, ComputedAt: c.clock.Now(), Opportunities: combined}
	c.finish(ctx, scanID, started, set, failed, nil)

	report.FinishedAt = set.ComputedAt
	report.Opportunities = len(combined)
	return report, nil
}

// fetchRegions loads every route region through the cache, bounded by
// MaxParallelRegions. A failed region is recorded and skipped.
func (c *Coordinator) fetchRegions(ctx context.Context) (map[int32]*market.Snapshot, map[int32]error) {
	var mu sync.Mutex
	snaps := make(map[int32]*market.Snapshot)
	errs := make(map[int32]error)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.params.MaxParallelRegions)
	for _, r := range c.params.routeRegions() {
		g.Go(func() error {
			snap, err := c.cache.GetOrRefresh(gctx, r.ID, c.params.CacheTTL)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[r.ID] = err
				logger.Error("SCAN", fmt.Sprintf("Region %s unavailable: %v", r.Name, err))
				return nil
			}
			if snap.Stale {
				logger.Warn("SCAN", fmt.Sprintf("Region %s using stale snapshot", r.Name))
			}
			snaps[r.ID] = snap
			return nil
		})
	}
	_ = g.Wait()
	return snaps, errs
}

// resolveCandidates fetches names and volumes for items that look
// profitable on some route but are not yet known.
func (c *Coordinator) resolveCandidates(ctx context.Context, snaps map[int32]*market.Snapshot) {
	if c.types == nil {
		return
	}
	seen := make(map[int32]bool)
	var ids []int32
	for _, rt := range c.params.Routes {
		src, dst := snaps[rt.Source.ID], snaps[rt.Destination.ID]
		if src == nil || dst == nil {
			continue
		}
		for _, id := range candidateTypes(src, dst, c.params.Fees) {
			if _, ok := c.types.Lookup(id); ok || seen[id] {
				continue
			}
			seen[id] = true
			ids = append(ids, id)
		}
	}
	if len(ids) > 0 {
		c.types.ResolveMany(ctx, ids)
	}
}

func (c *Coordinator) finish(ctx context.Context, scanID string, started time.Time, set *ResultSet, routesFailed int, scanErr error) {
	now := c.clock.Now()
	elapsed := now.Sub(started)

	rec := ScanRecord{
		ID:           scanID,
		StartedAt:    started,
		FinishedAt:   now,
		RoutesFailed: routesFailed,
	}

	c.mu.Lock()
	c.state.Running = false
	c.state.StartedAt = nil
	c.state.LastDuration = elapsed
	c.state.RoutesFailed = routesFailed
	if scanErr != nil {
		c.state.LastError = scanErr.Error()
		rec.Status = ScanFailed
		rec.Error = scanErr.Error()
	} else {
		// Published together with the state change so Status and
		// Opportunities never disagree.
		c.results.Store(set)
		c.state.LastScanAt = &now
		c.state.OpportunityCount = len(set.Opportunities)
		c.state.LastError = ""
		rec.Status = ScanCompleted
		rec.OpportunityCount = len(set.Opportunities)
		if len(set.Opportunities) > 0 {
			rec.TopProfit = set.Opportunities[0].TotalProfit
		}
	}
	st := c.state
	c.mu.Unlock()

	if scanErr != nil {
		logger.Error("SCAN", fmt.Sprintf("Scan %s failed after %s: %v", shortID(scanID), elapsed.Round(time.Millisecond), scanErr))
	} else {
		logger.Success("SCAN", fmt.Sprintf("Scan %s done in %s: %d opportunities, %d routes skipped",
			shortID(scanID), elapsed.Round(time.Millisecond), rec.OpportunityCount, routesFailed))
	}
	if c.observer != nil {
		c.observer.ObserveScan(rec.Status, elapsed, rec.OpportunityCount, routesFailed)
	}

	// Status and history are informational; a failure here does not change
	// the scan outcome.
	if err := c.store.SaveScanState(ctx, st); err != nil {
		logger.Warn("SCAN", fmt.Sprintf("save scan state: %v", err))
	}
	if err := c.store.InsertScanRecord(ctx, rec); err != nil {
		logger.Warn("SCAN", fmt.Sprintf("insert scan record: %v", err))
	}
}

func routeError(rt Route, errs map[int32]error) string {
	var parts []string
	for _, r := range []Region{rt.Source, rt.Destination} {
		if err, ok := errs[r.ID]; ok {
			parts = append(parts, fmt.Sprintf("%s: %v", r.Name, err))
		}
	}
	if len(parts) == 0 {
		return "region unavailable"
	}
	return strings.Join(parts, "; ")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
