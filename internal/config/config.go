package config

import (
	"strings"
	"time"
)

// Region is a named market region and its ESI region id.
type Region struct {
	Name string `mapstructure:"name" json:"name" validate:"required"`
	ID   int32  `mapstructure:"id" json:"id" validate:"gt=0"`
}

// FeesConfig holds the trading fee rates as fractions (0.03 = 3%) and the
// hauling cost per cubic metre.
type FeesConfig struct {
	BrokerFeeBuy    float64 `mapstructure:"broker_fee_buy" json:"broker_fee_buy" validate:"gte=0,lt=1"`
	BrokerFeeSell   float64 `mapstructure:"broker_fee_sell" json:"broker_fee_sell" validate:"gte=0,lt=1"`
	SalesTax        float64 `mapstructure:"sales_tax" json:"sales_tax" validate:"gte=0,lt=1"`
	HaulingISKPerM3 float64 `mapstructure:"hauling_isk_per_m3" json:"hauling_isk_per_m3" validate:"gte=0"`
}

// FiltersConfig holds the thresholds an opportunity must clear.
type FiltersConfig struct {
	MinProfitMarginPct   float64 `mapstructure:"min_profit_margin_pct" json:"min_profit_margin_pct" validate:"gte=0"`
	MinNetISKProfit      float64 `mapstructure:"min_net_isk_profit" json:"min_net_isk_profit" validate:"gte=0"`
	MinVolumeAvailable   int64   `mapstructure:"min_volume_available" json:"min_volume_available" validate:"gte=0"`
	MaxInvestmentPerItem float64 `mapstructure:"max_investment_per_item" json:"max_investment_per_item" validate:"gte=0"` // 0 = no cap
}

type ScanConfig struct {
	CacheTTL           time.Duration `mapstructure:"cache_ttl" json:"cache_ttl"`
	LookupTTL          time.Duration `mapstructure:"lookup_ttl" json:"lookup_ttl"`
	MaxParallelRegions int           `mapstructure:"max_parallel_regions" json:"max_parallel_regions" validate:"gte=1"`
	PriceTierTolerance float64       `mapstructure:"price_tier_tolerance" json:"price_tier_tolerance" validate:"gte=0,lt=1"`
	Interval           time.Duration `mapstructure:"interval" json:"interval"` // 0 = no periodic scans
}

type ESIConfig struct {
	BaseURL           string        `mapstructure:"base_url" json:"base_url" validate:"required,url"`
	UserAgent         string        `mapstructure:"user_agent" json:"user_agent" validate:"required"`
	Timeout           time.Duration `mapstructure:"timeout" json:"timeout"`
	RequestSpacing    time.Duration `mapstructure:"request_spacing" json:"request_spacing"`
	MaxRetries        int           `mapstructure:"max_retries" json:"max_retries" validate:"gte=0"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff" json:"retry_backoff"`
	RateLimitFallback time.Duration `mapstructure:"rate_limit_fallback" json:"rate_limit_fallback"`
}

// DatabaseConfig selects the backing store. "sqlite" uses Path, "postgres"
// uses URL.
type DatabaseConfig struct {
	Type string `mapstructure:"type" json:"type" validate:"required,oneof=sqlite postgres"`
	Path string `mapstructure:"path" json:"path"`
	URL  string `mapstructure:"url" json:"-"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr" json:"addr" validate:"required"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" json:"format" validate:"oneof=console json"`
}

// Config holds application settings. Regions and Routes describe the scan
// topology; a route is a [source, destination] pair of region names.
type Config struct {
	Regions       []Region       `mapstructure:"regions" json:"regions" validate:"required,min=1,dive"`
	Routes        [][]string     `mapstructure:"routes" json:"routes" validate:"required,min=1,dive,len=2,dive,required"`
	Bidirectional bool           `mapstructure:"bidirectional" json:"bidirectional"`
	Fees          FeesConfig     `mapstructure:"fees" json:"fees"`
	Filters       FiltersConfig  `mapstructure:"filters" json:"filters"`
	Scan          ScanConfig     `mapstructure:"scan" json:"scan"`
	ESI           ESIConfig      `mapstructure:"esi" json:"esi"`
	Database      DatabaseConfig `mapstructure:"database" json:"database"`
	Server        ServerConfig   `mapstructure:"server" json:"server"`
	Logging       LoggingConfig  `mapstructure:"logging" json:"logging"`
}

// Default returns a Config with sensible defaults: the five empire trade
// hubs and the classic Jita export routes.
func Default() *Config {
	return &Config{
		Regions: []Region{
			{Name: "The Forge", ID: 10000002},
			{Name: "Domain", ID: 10000043},
			{Name: "Sinq Laison", ID: 10000032},
			{Name: "Heimatar", ID: 10000030},
			{Name: "Metropolis", ID: 10000042},
		},
		Routes: [][]string{
			{"The Forge", "Domain"},
			{"The Forge", "Sinq Laison"},
			{"The Forge", "Heimatar"},
			{"Domain", "Sinq Laison"},
			{"Heimatar", "Metropolis"},
		},
		Bidirectional: true,
		Fees: FeesConfig{
			BrokerFeeBuy:    0.03,
			BrokerFeeSell:   0.03,
			SalesTax:        0.08,
			HaulingISKPerM3: 800,
		},
		Filters: FiltersConfig{
			MinProfitMarginPct: 10,
			MinNetISKProfit:    1_000_000,
			MinVolumeAvailable: 1,
		},
		Scan: ScanConfig{
			CacheTTL:           5 * time.Minute,
			LookupTTL:          10 * time.Minute,
			MaxParallelRegions: 4,
		},
		ESI: ESIConfig{
			BaseURL:           "https://esi.evetech.net/latest",
			UserAgent:         "eve-arbitrage/1.0 (github.com)",
			Timeout:           15 * time.Second,
			RequestSpacing:    100 * time.Millisecond,
			MaxRetries:        3,
			RetryBackoff:      2 * time.Second,
			RateLimitFallback: 60 * time.Second,
		},
		Database: DatabaseConfig{
			Type: "sqlite",
			Path: "data/eve_arbitrage.db",
		},
		Server:  ServerConfig{Addr: "127.0.0.1:13370"},
		Logging: LoggingConfig{Level: "info", Format: "console"},
	}
}

// RegionByName finds a configured region, ignoring case.
func (c *Config) RegionByName(name string) (Region, bool) {
	for _, r := range c.Regions {
		if strings.EqualFold(r.Name, name) {
			return r, true
		}
	}
	return Region{}, false
}

// ExpandedRoutes returns the configured routes plus, when Bidirectional is
// set, each reverse pair. Duplicates are dropped; order follows the config.
func (c *Config) ExpandedRoutes() [][2]string {
	seen := make(map[[2]string]bool)
	var out [][2]string
	add := func(src, dst string) {
		key := [2]string{strings.ToLower(src), strings.ToLower(dst)}
		if seen[key] {
			return
		}
		seen[key] = true
		out = append(out, [2]string{src, dst})
	}
	for _, r := range c.Routes {
		if len(r) != 2 {
			continue
		}
		add(r[0], r[1])
		if c.Bidirectional {
			add(r[1], r[0])
		}
	}
	return out
}
