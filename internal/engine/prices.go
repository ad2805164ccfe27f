package engine

import (
	"context"
	"fmt"
	"strings"

	"eve-arbitrage/internal/esi"
)

// LookupItemPrices reports an item's best prices in every configured
// region, refreshing snapshots older than LookupTTL. A region that cannot be
// read carries an error string instead of failing the lookup. Unknown names
// return esi.ErrTypeNotFound.
func (c *Coordinator) LookupItemPrices(ctx context.Context, name string) (*PriceLookup, error) {
	if strings.TrimSpace(name) == "" || c.types == nil {
		return nil, esi.ErrTypeNotFound
	}
	info, err := c.types.ResolveName(ctx, name)
	if err != nil {
		return nil, err
	}

	ttl := c.params.LookupTTL
	if ttl <= 0 {
		ttl = c.params.CacheTTL
	}

	out := &PriceLookup{TypeID: info.TypeID, TypeName: info.Name, UnitVolume: info.Volume}
	for _, r := range c.params.Regions {
		rp := RegionPrice{Region: r.Name, RegionID: r.ID}
		snap, err := c.cache.GetOrRefresh(ctx, r.ID, ttl)
		if err != nil {
			rp.Error = err.Error()
			out.Regions = append(out.Regions, rp)
			continue
		}
		fetched := snap.FetchedAt
		rp.FetchedAt = &fetched
		rp.Stale = snap.Stale
		if q, ok := snap.Quote(info.TypeID); ok {
			rp.Listed = true
			rp.LowestSell = q.LowestSell
			rp.SellVolume = q.SellVolume
			rp.HighestBuy = q.HighestBuy
			rp.BuyVolume = q.BuyVolume
		}
		out.Regions = append(out.Regions, rp)
	}
	return out, nil
}

// BestSpread returns the cheapest sell and dearest buy across regions, for
// display. ok is false when no region lists both sides.
func (p *PriceLookup) BestSpread() (buyIn, sellIn RegionPrice, ok bool) {
	for _, rp := range p.Regions {
		if rp.LowestSell > 0 && (buyIn.Region == "" || rp.LowestSell < buyIn.LowestSell) {
			buyIn = rp
		}
		if rp.HighestBuy > 0 && (sellIn.Region == "" || rp.HighestBuy > sellIn.HighestBuy) {
			sellIn = rp
		}
	}
	return buyIn, sellIn, buyIn.Region != "" && sellIn.Region != ""
}

func (p *PriceLookup) String() string {
	return fmt.Sprintf("%s (%d) across %d regions", p.TypeName, p.TypeID, len(p.Regions))
}
