package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"eve-arbitrage/internal/logger"
)

// MarketOrder mirrors the ESI market order response.
type MarketOrder struct {
	OrderID      int64   `json:"order_id"`
	TypeID       int32   `json:"type_id"`
	LocationID   int64   `json:"location_id"`
	SystemID     int32   `json:"system_id"`
	Price        float64 `json:"price"`
	VolumeRemain int32   `json:"volume_remain"`
	IsBuyOrder   bool    `json:"is_buy_order"`
	RegionID     int32   `json:"-"` // set by us
}

// TypeOrders holds one item's orders split by side.
type TypeOrders struct {
	Sells []MarketOrder
	Buys  []MarketOrder
}

// FetchRegionOrders fetches every order (both sides) in a region. Pages are
// read sequentially until the X-Pages count is exhausted; any page failure
// fails the whole region.
func (c *Client) FetchRegionOrders(ctx context.Context, regionID int32) ([]MarketOrder, error) {
	base := fmt.Sprintf("%s/markets/%d/orders/?datasource=tranquility&order_type=all", c.opts.BaseURL, regionID)

	var all []MarketOrder
	totalPages := 1
	for page := 1; page <= totalPages; page++ {
		resp, err := c.request(ctx, "GET", fmt.Sprintf("%s&page=%d", base, page), "markets/orders", nil)
		if err != nil {
			return nil, withPage(err, regionID, page)
		}
		if page == 1 {
			if p, err := strconv.Atoi(resp.header.Get("X-Pages")); err == nil && p > 1 {
				totalPages = p
			}
		}

		var orders []MarketOrder
		if err := json.Unmarshal(resp.body, &orders); err != nil {
			return nil, &FetchError{Region: regionID, Page: page, Status: resp.status, Err: fmt.Errorf("decode orders: %w", err)}
		}
		for i := range orders {
			orders[i].RegionID = regionID
		}
		all = append(all, orders...)
	}

	logger.Info("ESI", fmt.Sprintf("Region %d: %d orders in %d pages", regionID, len(all), totalPages))
	return all, nil
}

// GroupByType buckets orders by type id and side.
func GroupByType(orders []MarketOrder) map[int32]*TypeOrders {
	out := make(map[int32]*TypeOrders)
	for _, o := range orders {
		g := out[o.TypeID]
		if g == nil {
			g = &TypeOrders{}
			out[o.TypeID] = g
		}
		if o.IsBuyOrder {
			g.Buys = append(g.Buys, o)
		} else {
			g.Sells = append(g.Sells, o)
		}
	}
	return out
}
