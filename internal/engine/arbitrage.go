package engine

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"eve-arbitrage/internal/esi"
	"eve-arbitrage/internal/market"
)

const (
	// DefaultMaxResults is the default number of results returned when not specified.
	DefaultMaxResults = 100
)

// EffectiveMaxResults returns the max results limit, using defaultVal if v <= 0.
func EffectiveMaxResults(v int, defaultVal int) int {
	if v <= 0 {
		return defaultVal
	}
	return v
}

// TypeLookup resolves names and volumes for items whose quotes lack them.
type TypeLookup interface {
	Lookup(typeID int32) (esi.TypeInfo, bool)
}

// EvaluateRoute finds every item that can be bought from a resting sell
// order in src and immediately sold into a resting buy order in dst at a
// profit that clears the filters. The result is ranked.
func EvaluateRoute(route Route, src, dst *market.Snapshot, fs FeeSchedule, f Filters, types TypeLookup, now time.Time) []Opportunity {
	if src == nil || dst == nil || route.Source.ID == route.Destination.ID {
		return nil
	}
	minVolume := f.MinVolume
	if minVolume < 1 {
		minVolume = 1
	}
	stale := src.Stale || dst.Stale

	var out []Opportunity
	for typeID, sq := range src.Quotes {
		dq, ok := dst.Quotes[typeID]
		if !ok || !sq.HasSell() || !dq.HasBuy() {
			continue
		}
		buy, sell := sq.LowestSell, dq.HighestBuy

		// Cheap pre-check with full fees but no hauling.
		if pre := Evaluate(buy, sell, 0, 1, fs); pre.ProfitPerUnit <= 0 {
			continue
		}
		name, unitVol := itemInfo(typeID, sq, dq, types)

		volume := sq.SellVolume
		if dq.BuyVolume < volume {
			volume = dq.BuyVolume
		}
		if f.MaxInvestment > 0 {
			capUnits := int64(math.Floor(f.MaxInvestment / buy))
			if capUnits < volume {
				volume = capUnits
			}
		}
		if volume < minVolume {
			continue
		}

		res := Evaluate(buy, sell, unitVol, volume, fs)
		if res.ProfitPerUnit <= 0 || res.MarginPct < f.MinMarginPct || res.TotalProfit < f.MinProfit {
			continue
		}

		out = append(out, Opportunity{
			TypeID:          typeID,
			TypeName:        name,
			UnitVolume:      unitVol,
			SourceRegion:    route.Source.Name,
			DestRegion:      route.Destination.Name,
			BuyPrice:        buy,
			SellPrice:       sell,
			ProfitPerUnit:   res.ProfitPerUnit,
			MarginPct:       res.MarginPct,
			VolumeAvailable: volume,
			TotalProfit:     res.TotalProfit,
			Stale:           stale,
			ComputedAt:      now,
		})
	}

	RankOpportunities(out)
	return out
}

// itemInfo prefers what the quotes already carry, then the type lookup,
// then a placeholder with a 1 m3 volume.
func itemInfo(typeID int32, sq, dq market.ItemQuote, types TypeLookup) (string, float64) {
	name, vol := sq.TypeName, sq.UnitVolume
	if name == "" {
		name = dq.TypeName
	}
	if vol <= 0 {
		vol = dq.UnitVolume
	}
	if (name == "" || vol <= 0) && types != nil {
		if info, ok := types.Lookup(typeID); ok {
			if name == "" {
				name = info.Name
			}
			if vol <= 0 {
				vol = info.Volume
			}
		}
	}
	if name == "" {
		name = fmt.Sprintf("Item %d", typeID)
	}
	if vol <= 0 {
		vol = 1
	}
	return name, vol
}

// RankOpportunities sorts by total profit descending, then margin
// descending, then item name, source and destination ascending.
func RankOpportunities(opps []Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.TotalProfit != b.TotalProfit {
			return a.TotalProfit > b.TotalProfit
		}
		if a.MarginPct != b.MarginPct {
			return a.MarginPct > b.MarginPct
		}
		if a.TypeName != b.TypeName {
			return a.TypeName < b.TypeName
		}
		if a.SourceRegion != b.SourceRegion {
			return a.SourceRegion < b.SourceRegion
		}
		return a.DestRegion < b.DestRegion
	})
}

// candidateTypes lists items on a route that are profitable before hauling,
// the only ones worth resolving names and volumes for.
func candidateTypes(src, dst *market.Snapshot, fs FeeSchedule) []int32 {
	var ids []int32
	for typeID, sq := range src.Quotes {
		dq, ok := dst.Quotes[typeID]
		if !ok || !sq.HasSell() || !dq.HasBuy() {
			continue
		}
		if sq.TypeName != "" && sq.UnitVolume > 0 {
			continue
		}
		if Evaluate(sq.LowestSell, dq.HighestBuy, 0, 1, fs).ProfitPerUnit > 0 {
			ids = append(ids, typeID)
		}
	}
	return ids
}

// FilterOpportunities applies q to opps, which must already be ranked.
func FilterOpportunities(opps []Opportunity, q OpportunityQuery) []Opportunity {
	limit := EffectiveMaxResults(q.Limit, DefaultMaxResults)
	item := strings.ToLower(strings.TrimSpace(q.Item))
	out := make([]Opportunity, 0, min(limit, len(opps)))
	for _, o := range opps {
		if item != "" && !strings.Contains(strings.ToLower(o.TypeName), item) {
			continue
		}
		if q.Source != "" && !strings.EqualFold(o.SourceRegion, q.Source) {
			continue
		}
		if q.Dest != "" && !strings.EqualFold(o.DestRegion, q.Dest) {
			continue
		}
		if o.MarginPct < q.MinMargin {
			continue
		}
		out = append(out, o)
		if len(out) >= limit {
			break
		}
	}
	return out
}
