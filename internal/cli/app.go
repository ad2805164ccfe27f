package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"eve-arbitrage/internal/config"
	"eve-arbitrage/internal/db"
	"eve-arbitrage/internal/engine"
	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/logger"
	"eve-arbitrage/internal/market"
	"eve-arbitrage/internal/metrics"
	"eve-arbitrage/internal/persistence"
)

// typeResolveParallel bounds concurrent /universe/types requests.
const typeResolveParallel = 8

// Store is everything the app persists.
type Store interface {
	market.QuoteStore
	esi.TypeStore
	engine.ResultStore
	PruneHistory(ctx context.Context, olderThan time.Duration) (int64, error)
	Close() error
}

// App is the wired service graph shared by every command.
type App struct {
	Config      *config.Config
	Store       Store
	ESI         *esi.Client
	Types       *esi.TypeResolver
	Cache       *market.Cache
	Coordinator *engine.Coordinator
	Metrics     *metrics.Collector
}

// newApp loads config and builds the service graph. The cache is warmed
// from the store and the last result set restored, so read-only commands
// work without touching ESI.
func newApp(ctx context.Context) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := logger.Setup(cfg.Logging.Level, cfg.Logging.Format, os.Stderr); err != nil {
		return nil, err
	}

	store, err := openStore(cfg.Database)
	if err != nil {
		return nil, err
	}

	m := metrics.New()
	client := esi.NewClient(esi.Options{
		BaseURL:           cfg.ESI.BaseURL,
		UserAgent:         cfg.ESI.UserAgent,
		Timeout:           cfg.ESI.Timeout,
		RequestSpacing:    cfg.ESI.RequestSpacing,
		MaxRetries:        cfg.ESI.MaxRetries,
		RetryBackoff:      cfg.ESI.RetryBackoff,
		RateLimitFallback: cfg.ESI.RateLimitFallback,
		Observer:          m,
	})
	types := esi.NewTypeResolver(client, store, typeResolveParallel)
	cache := market.NewCache(client, market.Options{
		Store:         store,
		Types:         types,
		TierTolerance: cfg.Scan.PriceTierTolerance,
		Observer:      m,
	})
	if err := cache.Warm(ctx); err != nil {
		logger.Warn("CACHE", fmt.Sprintf("Warm start failed: %v", err))
	}

	coord := engine.NewCoordinator(scanParams(cfg), cache, types, store, engine.CoordinatorOptions{Observer: m})
	if err := coord.Restore(ctx); err != nil {
		logger.Warn("SCAN", fmt.Sprintf("Restore failed: %v", err))
	}

	return &App{
		Config:      cfg,
		Store:       store,
		ESI:         client,
		Types:       types,
		Cache:       cache,
		Coordinator: coord,
		Metrics:     m,
	}, nil
}

func (a *App) Close() {
	a.Coordinator.Wait()
	if err := a.Store.Close(); err != nil {
		logger.Warn("DB", fmt.Sprintf("Close: %v", err))
	}
}

func openStore(cfg config.DatabaseConfig) (Store, error) {
	switch cfg.Type {
	case "postgres":
		s, err := persistence.Open("postgres", cfg.URL)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "":
		d, err := db.Open(cfg.Path)
		if err != nil {
			return nil, err
		}
		return d, nil
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Type)
	}
}

// scanParams maps config onto the engine. Route names that match no
// configured region become zero-id regions so the scan reports them.
func scanParams(cfg *config.Config) engine.ScanParams {
	p := engine.ScanParams{
		Fees: engine.FeeSchedule{
			BuyBrokerFee:  cfg.Fees.BrokerFeeBuy,
			SellBrokerFee: cfg.Fees.BrokerFeeSell,
			SalesTax:      cfg.Fees.SalesTax,
			HaulingPerM3:  cfg.Fees.HaulingISKPerM3,
		},
		Filters: engine.Filters{
			MinMarginPct:  cfg.Filters.MinProfitMarginPct,
			MinProfit:     cfg.Filters.MinNetISKProfit,
			MinVolume:     cfg.Filters.MinVolumeAvailable,
			MaxInvestment: cfg.Filters.MaxInvestmentPerItem,
		},
		CacheTTL:           cfg.Scan.CacheTTL,
		LookupTTL:          cfg.Scan.LookupTTL,
		MaxParallelRegions: cfg.Scan.MaxParallelRegions,
	}
	for _, r := range cfg.Regions {
		p.Regions = append(p.Regions, engine.Region{ID: r.ID, Name: r.Name})
	}
	region := func(name string) engine.Region {
		if r, ok := cfg.RegionByName(name); ok {
			return engine.Region{ID: r.ID, Name: r.Name}
		}
		return engine.Region{Name: name}
	}
	for _, rt := range cfg.ExpandedRoutes() {
		p.Routes = append(p.Routes, engine.Route{Source: region(rt[0]), Destination: region(rt[1])})
	}
	return p
}
