package engine

import "time"

// Region is a configured market region.
type Region struct {
	ID   int32  `json:"id"`
	Name string `json:"name"`
}

// Route is a directed (source, destination) region pair. Items are bought in
// Source and sold in Destination.
type Route struct {
	Source      Region `json:"source"`
	Destination Region `json:"destination"`
}

func (r Route) String() string { return r.Source.Name + " -> " + r.Destination.Name }

// Filters are the thresholds an opportunity must clear.
type Filters struct {
	MinMarginPct  float64 `json:"min_margin_pct"`
	MinProfit     float64 `json:"min_profit"` // against TotalProfit
	MinVolume     int64   `json:"min_volume"`
	MaxInvestment float64 `json:"max_investment"` // 0 = uncapped
}

// Opportunity is one profitable item on one route.
type Opportunity struct {
	TypeID          int32     `json:"type_id"`
	TypeName        string    `json:"type_name"`
	UnitVolume      float64   `json:"unit_volume"`
	SourceRegion    string    `json:"source_region"`
	DestRegion      string    `json:"dest_region"`
	BuyPrice        float64   `json:"buy_price"`
	SellPrice       float64   `json:"sell_price"`
	ProfitPerUnit   float64   `json:"profit_per_unit"`
	MarginPct       float64   `json:"margin_pct"`
	VolumeAvailable int64     `json:"volume_available"`
	TotalProfit     float64   `json:"total_profit"`
	Stale           bool      `json:"stale"` // built from a snapshot served after a failed refresh
	ComputedAt      time.Time `json:"computed_at"`
}

// ScanState is the coordinator's status row.
type ScanState struct {
	Running          bool          `json:"running"`
	ScanID           string        `json:"scan_id,omitempty"`
	StartedAt        *time.Time    `json:"started_at,omitempty"`
	LastScanAt       *time.Time    `json:"last_scan_at"`
	LastDuration     time.Duration `json:"last_duration"`
	OpportunityCount int           `json:"opportunity_count"`
	RoutesFailed     int           `json:"routes_failed"`
	LastError        string        `json:"last_error,omitempty"`
}

// Scan outcomes recorded in history.
const (
	ScanCompleted = "completed"
	ScanFailed    = "failed"
)

// ScanRecord is one row of scan history.
type ScanRecord struct {
	ID               string    `json:"id"`
	StartedAt        time.Time `json:"started_at"`
	FinishedAt       time.Time `json:"finished_at"`
	Status           string    `json:"status"`
	OpportunityCount int       `json:"opportunity_count"`
	RoutesFailed     int       `json:"routes_failed"`
	TopProfit        float64   `json:"top_profit"`
	Error            string    `json:"error,omitempty"`
}

// ScanReport summarises a synchronous scan.
type ScanReport struct {
	ScanID        string
	StartedAt     time.Time
	FinishedAt    time.Time
	Opportunities int
	Routes        []RouteReport
}

// RouteReport is one route's contribution to a scan.
type RouteReport struct {
	Route         Route
	Opportunities int
	Stale         bool
	Err           string
}

// OpportunityQuery filters the current result set. Zero values match all.
type OpportunityQuery struct {
	Item      string  // case-insensitive substring of the item name
	Source    string  // region name
	Dest      string  // region name
	MinMargin float64 // percent
	Limit     int     // <= 0 means DefaultMaxResults
}

// RegionPrice is one region's best prices for an item.
type RegionPrice struct {
	Region     string     `json:"region"`
	RegionID   int32      `json:"region_id"`
	Listed     bool       `json:"listed"`
	LowestSell float64    `json:"lowest_sell"`
	SellVolume int64      `json:"sell_volume"`
	HighestBuy float64    `json:"highest_buy"`
	BuyVolume  int64      `json:"buy_volume"`
	FetchedAt  *time.Time `json:"fetched_at,omitempty"`
	Stale      bool       `json:"stale"`
	Error      string     `json:"error,omitempty"`
}

// PriceLookup is the answer to an item price query across all regions.
type PriceLookup struct {
	TypeID     int32         `json:"type_id"`
	TypeName   string        `json:"type_name"`
	UnitVolume float64       `json:"unit_volume"`
	Regions    []RegionPrice `json:"regions"`
}
