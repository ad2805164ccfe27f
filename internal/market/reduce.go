package market

import (
	"math"
	"time"

	"eve-arbitrage/internal/esi"
)

// Reduce collapses a region's raw orders into one quote per item. Volume at
// the best price is the sum of every order priced within tolerance of it:
// sells at most best*(1+tolerance), buys at least best*(1-tolerance). With
// tolerance 0 only orders at exactly the best price count.
func Reduce(regionID int32, orders []esi.MarketOrder, tolerance float64, fetchedAt time.Time) map[int32]ItemQuote {
	grouped := esi.GroupByType(orders)
	out := make(map[int32]ItemQuote, len(grouped))
	for typeID, g := range grouped {
		q := ItemQuote{TypeID: typeID, RegionID: regionID, FetchedAt: fetchedAt}
		q.LowestSell, q.SellVolume = bestAsk(g.Sells, tolerance)
		q.HighestBuy, q.BuyVolume = bestBid(g.Buys, tolerance)
		if q.SellVolume == 0 && q.BuyVolume == 0 {
			continue
		}
		out[typeID] = q
	}
	return out
}

func usable(o esi.MarketOrder) bool {
	return o.Price > 0 && o.VolumeRemain > 0 && !math.IsNaN(o.Price) && !math.IsInf(o.Price, 0)
}

func bestAsk(orders []esi.MarketOrder, tolerance float64) (float64, int64) {
	best := math.Inf(1)
	for _, o := range orders {
		if usable(o) && o.Price < best {
			best = o.Price
		}
	}
	if math.IsInf(best, 1) {
		return 0, 0
	}
	limit := best * (1 + tolerance)
	var vol int64
	for _, o := range orders {
		if usable(o) && o.Price <= limit {
			vol += int64(o.VolumeRemain)
		}
	}
	return best, vol
}

func bestBid(orders []esi.MarketOrder, tolerance float64) (float64, int64) {
	best := 0.0
	for _, o := range orders {
		if usable(o) && o.Price > best {
			best = o.Price
		}
	}
	if best == 0 {
		return 0, 0
	}
	limit := best * (1 - tolerance)
	var vol int64
	for _, o := range orders {
		if usable(o) && o.Price >= limit {
			vol += int64(o.VolumeRemain)
		}
	}
	return best, vol
}
