package esi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
)

// TypeInfo is the static data the engine needs about an item.
type TypeInfo struct {
	TypeID int32   `json:"type_id"`
	Name   string  `json:"name"`
	Volume float64 `json:"volume"` // packaged m3 per unit when available
}

type universeType struct {
	Name           string  `json:"name"`
	Volume         float64 `json:"volume"`
	PackagedVolume float64 `json:"packaged_volume"`
}

// FetchTypeInfo reads /universe/types/{id}/. Packaged volume wins over
// assembled volume since hauled goods are packaged.
func (c *Client) FetchTypeInfo(ctx context.Context, typeID int32) (TypeInfo, error) {
	url := fmt.Sprintf("%s/universe/types/%d/?datasource=tranquility&language=en", c.opts.BaseURL, typeID)
	resp, err := c.request(ctx, "GET", url, "universe/types", nil)
	if err != nil {
		return TypeInfo{}, err
	}
	var t universeType
	if err := json.Unmarshal(resp.body, &t); err != nil {
		return TypeInfo{}, &FetchError{Status: resp.status, Err: fmt.Errorf("decode type %d: %w", typeID, err)}
	}

	info := TypeInfo{TypeID: typeID, Name: t.Name, Volume: t.PackagedVolume}
	if info.Volume <= 0 {
		info.Volume = t.Volume
	}
	if info.Volume <= 0 {
		info.Volume = 1
	}
	return info, nil
}

// ResolveTypeID maps an exact item name to its type id via POST /universe/ids/.
func (c *Client) ResolveTypeID(ctx context.Context, name string) (int32, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrTypeNotFound
	}
	body, err := json.Marshal([]string{name})
	if err != nil {
		return 0, err
	}
	url := fmt.Sprintf("%s/universe/ids/?datasource=tranquility&language=en", c.opts.BaseURL)
	resp, err := c.request(ctx, "POST", url, "universe/ids", body)
	if err != nil {
		return 0, err
	}

	var ids struct {
		InventoryTypes []struct {
			ID   int32  `json:"id"`
			Name string `json:"name"`
		} `json:"inventory_types"`
	}
	if err := json.Unmarshal(resp.body, &ids); err != nil {
		return 0, &FetchError{Status: resp.status, Err: fmt.Errorf("decode ids: %w", err)}
	}
	for _, t := range ids.InventoryTypes {
		if strings.EqualFold(t.Name, name) {
			return t.ID, nil
		}
	}
	if len(ids.InventoryTypes) > 0 {
		return ids.InventoryTypes[0].ID, nil
	}
	return 0, ErrTypeNotFound
}
