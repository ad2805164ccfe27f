package persistence

import "time"

// QuoteModel is one (region, item) best-price row.
type QuoteModel struct {
	RegionID   int32     `gorm:"column:region_id;primaryKey;autoIncrement:false"`
	TypeID     int32     `gorm:"column:type_id;primaryKey;autoIncrement:false"`
	TypeName   string    `gorm:"column:type_name;not null;default:''"`
	UnitVolume float64   `gorm:"column:unit_volume;not null;default:0"`
	LowestSell float64   `gorm:"column:lowest_sell;not null;default:0"`
	SellVolume int64     `gorm:"column:sell_volume;not null;default:0"`
	HighestBuy float64   `gorm:"column:highest_buy;not null;default:0"`
	BuyVolume  int64     `gorm:"column:buy_volume;not null;default:0"`
	FetchedAt  time.Time `gorm:"column:fetched_at;not null;index"`
}

func (QuoteModel) TableName() string { return "item_quotes" }

// TypeModel caches static item data.
type TypeModel struct {
	TypeID    int32     `gorm:"column:type_id;primaryKey;autoIncrement:false"`
	Name      string    `gorm:"column:name;not null;index"`
	Volume    float64   `gorm:"column:volume;not null"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null"`
}

func (TypeModel) TableName() string { return "item_types" }

// OpportunityModel is one ranked row of the current result set.
type OpportunityModel struct {
	Rank            int       `gorm:"column:rank;primaryKey;autoIncrement:false"`
	ScanID          string    `gorm:"column:scan_id;not null"`
	TypeID          int32     `gorm:"column:type_id;not null;index"`
	TypeName        string    `gorm:"column:type_name;not null"`
	UnitVolume      float64   `gorm:"column:unit_volume;not null"`
	SourceRegion    string    `gorm:"column:source_region;not null"`
	DestRegion      string    `gorm:"column:dest_region;not null"`
	BuyPrice        float64   `gorm:"column:buy_price;not null"`
	SellPrice       float64   `gorm:"column:sell_price;not null"`
	ProfitPerUnit   float64   `gorm:"column:profit_per_unit;not null"`
	MarginPct       float64   `gorm:"column:margin_pct;not null"`
	VolumeAvailable int64     `gorm:"column:volume_available;not null"`
	TotalProfit     float64   `gorm:"column:total_profit;not null"`
	Stale           bool      `gorm:"column:stale;not null;default:false"`
	ComputedAt      time.Time `gorm:"column:computed_at;not null"`
}

func (OpportunityModel) TableName() string { return "opportunities" }

// ScanStateModel is the single status row (ID is always 1).
type ScanStateModel struct {
	ID               int        `gorm:"column:id;primaryKey;autoIncrement:false"`
	ScanID           string     `gorm:"column:scan_id;not null;default:''"`
	LastScanAt       *time.Time `gorm:"column:last_scan_at"`
	LastDurationMs   int64      `gorm:"column:last_duration_ms;not null;default:0"`
	OpportunityCount int        `gorm:"column:opportunity_count;not null;default:0"`
	RoutesFailed     int        `gorm:"column:routes_failed;not null;default:0"`
	LastError        string     `gorm:"column:last_error;not null;default:''"`
}

func (ScanStateModel) TableName() string { return "scan_state" }

// ScanRecordModel is one scan history row.
type ScanRecordModel struct {
	ID               string    `gorm:"column:id;primaryKey"`
	StartedAt        time.Time `gorm:"column:started_at;not null;index"`
	FinishedAt       time.Time `gorm:"column:finished_at;not null"`
	Status           string    `gorm:"column:status;not null"`
	OpportunityCount int       `gorm:"column:opportunity_count;not null"`
	RoutesFailed     int       `gorm:"column:routes_failed;not null"`
	TopProfit        float64   `gorm:"column:top_profit;not null"`
	Error            string    `gorm:"column:error;not null;default:''"`
}

func (ScanRecordModel) TableName() string { return "scan_history" }
