// Package market holds per-region best-price snapshots and the cache that
// keeps them fresh.
package market

import (
	"sort"
	"time"
)

// ItemQuote is the best ask and best bid for one item in one region at one
// moment. A zero LowestSell means nobody is selling; a zero HighestBuy
// means nobody is buying.
type ItemQuote struct {
	TypeID     int32     `json:"type_id"`
	TypeName   string    `json:"type_name"`
	UnitVolume float64   `json:"unit_volume"`
	RegionID   int32     `json:"region_id"`
	LowestSell float64   `json:"lowest_sell"`
	SellVolume int64     `json:"sell_volume"`
	HighestBuy float64   `json:"highest_buy"`
	BuyVolume  int64     `json:"buy_volume"`
	FetchedAt  time.Time `json:"fetched_at"`
}

func (q ItemQuote) HasSell() bool { return q.LowestSell > 0 && q.SellVolume > 0 }
func (q ItemQuote) HasBuy() bool  { return q.HighestBuy > 0 && q.BuyVolume > 0 }

// Snapshot is an immutable view of one region's quotes. Callers must not
// modify Quotes; refreshes publish a new Snapshot instead.
type Snapshot struct {
	RegionID  int32
	Quotes    map[int32]ItemQuote
	FetchedAt time.Time
	Stale     bool // served from an older snapshot after a failed refresh
}

// Quote returns the quote for typeID, if any.
func (s *Snapshot) Quote(typeID int32) (ItemQuote, bool) {
	q, ok := s.Quotes[typeID]
	return q, ok
}

// Age is how old the snapshot is relative to now.
func (s *Snapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.FetchedAt)
}

// List returns the quotes sorted by type id.
func (s *Snapshot) List() []ItemQuote {
	out := make([]ItemQuote, 0, len(s.Quotes))
	for _, q := range s.Quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].TypeID < out[j].TypeID })
	return out
}

func (s *Snapshot) asStale() *Snapshot {
	cp := *s
	cp.Stale = true
	return &cp
}
