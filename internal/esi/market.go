package esi

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MarketOrder mirrors the ESI market order response.
type MarketOrder struct {
	OrderID      int64   `json:"order_id"`
	TypeID       int32   `json:"type_id"`
	LocationID   int64   `json:"location_id"`
	SystemID     int32   `json:"system_id"`
	Price        float64 `json:"price"`
	VolumeRemain int64   `json:"volume_remain"`
	IsBuyOrder   bool    `json:"is_buy_order"`
}

// StructureOrders fetches all open orders at a player-owned structure,
// one page at a time until an empty page is returned. Structure markets
// require an access token of a character on the structure's ACL.
func (c *Client) StructureOrders(structureID int64, accessToken string) ([]MarketOrder, error) {
	var all []MarketOrder
	for page := 1; ; page++ {
		url := fmt.Sprintf("%s/markets/structures/%d/?page=%d", c.base, structureID, page)
		var chunk []MarketOrder
		if err := c.AuthGetJSON(url, accessToken, &chunk); err != nil {
			return nil, fmt.Errorf("structure %d page %d: %w", structureID, page, err)
		}
		if len(chunk) == 0 {
			return all, nil
		}
		all = append(all, chunk...)
	}
}

// RegionOrders fetches all open orders across a region's NPC markets.
// Pages are discovered via the X-Pages header and fetched concurrently.
// Duplicate concurrent calls for the same region are coalesced.
func (c *Client) RegionOrders(regionID int32) ([]MarketOrder, error) {
	result, err, _ := c.group.Do(strconv.Itoa(int(regionID)), func() (interface{}, error) {
		return c.fetchRegionOrders(regionID)
	})
	if err != nil {
		return nil, err
	}
	return result.([]MarketOrder), nil
}

func (c *Client) fetchRegionOrders(regionID int32) ([]MarketOrder, error) {
	url := fmt.Sprintf("%s/markets/%d/orders/?order_type=all", c.base, regionID)

	page1, totalPages, err := c.regionOrdersPage1(url)
	if err != nil {
		return nil, fmt.Errorf("region %d: %w", regionID, err)
	}
	if totalPages <= 1 {
		return page1, nil
	}

	type pageResult struct {
		data []MarketOrder
		err  error
	}
	results := make(chan pageResult, totalPages-1)
	for p := 2; p <= totalPages; p++ {
		go func(pageNum int) {
			var data []MarketOrder
			err := c.GetJSON(fmt.Sprintf("%s&page=%d", url, pageNum), &data)
			results <- pageResult{data: data, err: err}
		}(p)
	}

	all := make([]MarketOrder, 0, len(page1)*totalPages)
	all = append(all, page1...)
	for i := 0; i < totalPages-1; i++ {
		r := <-results
		if r.err != nil {
			// Partial data would produce a misleading snapshot; fail the region.
			return nil, fmt.Errorf("region %d: %w", regionID, r.err)
		}
		all = append(all, r.data...)
	}
	return all, nil
}

// regionOrdersPage1 fetches the first page and reads X-Pages from the header.
func (c *Client) regionOrdersPage1(url string) ([]MarketOrder, int, error) {
	c.sem <- struct{}{}
	defer func() { <-c.sem }()

	req, err := newRequest("GET", url+"&page=1", nil)
	if err != nil {
		return nil, 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%v: %w", err, ErrTransient)
	}
	defer resp.Body.Close()

	if resp.StatusCode != 200 {
		return nil, 0, statusError(resp.StatusCode, "")
	}

	totalPages := 1
	if p := resp.Header.Get("X-Pages"); p != "" {
		if tp, parseErr := strconv.Atoi(p); parseErr == nil && tp > 1 {
			totalPages = tp
		}
	}

	var page1 []MarketOrder
	if err := json.NewDecoder(resp.Body).Decode(&page1); err != nil {
		return nil, 0, err
	}
	return page1, totalPages, nil
}

// HasMarketAccess probes whether the token's character can read a
// structure's market (a page-1 GET that returns 200).
func (c *Client) HasMarketAccess(structureID int64, accessToken string) bool {
	url := fmt.Sprintf("%s/markets/structures/%d/?page=1", c.base, structureID)
	var chunk []MarketOrder
	return c.AuthGetJSON(url, accessToken, &chunk) == nil
}
