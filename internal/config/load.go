package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment override, e.g.
// EVEARB_FEES_SALES_TAX=0.036.
const EnvPrefix = "EVEARB"

// LoadConfig loads configuration with priority env > config file > defaults.
// An empty configPath searches ./config.yaml, ./configs and /etc/eve-arbitrage.
func LoadConfig(configPath string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/eve-arbitrage")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	registerDefaults(v, Default())

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine when searching; an explicit path must exist.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if dbURL := os.Getenv("DATABASE_URL"); dbURL != "" {
		v.Set("database.url", dbURL)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	applyFallbacks(&cfg)

	if err := ValidateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// registerDefaults seeds viper with every key so AutomaticEnv can override
// any of them and so booleans default correctly.
func registerDefaults(v *viper.Viper, d *Config) {
	regions := make([]map[string]interface{}, 0, len(d.Regions))
	for _, r := range d.Regions {
		regions = append(regions, map[string]interface{}{"name": r.Name, "id": r.ID})
	}
	v.SetDefault("regions", regions)
	v.SetDefault("routes", d.Routes)
	v.SetDefault("bidirectional", d.Bidirectional)

	v.SetDefault("fees.broker_fee_buy", d.Fees.BrokerFeeBuy)
	v.SetDefault("fees.broker_fee_sell", d.Fees.BrokerFeeSell)
	v.SetDefault("fees.sales_tax", d.Fees.SalesTax)
	v.SetDefault("fees.hauling_isk_per_m3", d.Fees.HaulingISKPerM3)

	v.SetDefault("filters.min_profit_margin_pct", d.Filters.MinProfitMarginPct)
	v.SetDefault("filters.min_net_isk_profit", d.Filters.MinNetISKProfit)
	v.SetDefault("filters.min_volume_available", d.Filters.MinVolumeAvailable)
	v.SetDefault("filters.max_investment_per_item", d.Filters.MaxInvestmentPerItem)

	v.SetDefault("scan.cache_ttl", d.Scan.CacheTTL)
	v.SetDefault("scan.lookup_ttl", d.Scan.LookupTTL)
	v.SetDefault("scan.max_parallel_regions", d.Scan.MaxParallelRegions)
	v.SetDefault("scan.price_tier_tolerance", d.Scan.PriceTierTolerance)
	v.SetDefault("scan.interval", d.Scan.Interval)

	v.SetDefault("esi.base_url", d.ESI.BaseURL)
	v.SetDefault("esi.user_agent", d.ESI.UserAgent)
	v.SetDefault("esi.timeout", d.ESI.Timeout)
	v.SetDefault("esi.request_spacing", d.ESI.RequestSpacing)
	v.SetDefault("esi.max_retries", d.ESI.MaxRetries)
	v.SetDefault("esi.retry_backoff", d.ESI.RetryBackoff)
	v.SetDefault("esi.rate_limit_fallback", d.ESI.RateLimitFallback)

	v.SetDefault("database.type", d.Database.Type)
	v.SetDefault("database.path", d.Database.Path)
	v.SetDefault("database.url", d.Database.URL)

	v.SetDefault("server.addr", d.Server.Addr)
	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
}

// applyFallbacks restores defaults for durations explicitly set to zero
// where zero has no useful meaning.
func applyFallbacks(cfg *Config) {
	d := Default()
	if cfg.Scan.CacheTTL <= 0 {
		cfg.Scan.CacheTTL = d.Scan.CacheTTL
	}
	if cfg.Scan.LookupTTL <= 0 {
		cfg.Scan.LookupTTL = d.Scan.LookupTTL
	}
	if cfg.ESI.Timeout <= 0 {
		cfg.ESI.Timeout = d.ESI.Timeout
	}
	if cfg.ESI.RateLimitFallback <= 0 {
		cfg.ESI.RateLimitFallback = d.ESI.RateLimitFallback
	}
	if cfg.Database.Type == "sqlite" && cfg.Database.Path == "" {
		cfg.Database.Path = d.Database.Path
	}
}
