package esi

import (
	"fmt"
	"net/url"
)

// StationInfo is the public NPC station record.
type StationInfo struct {
	Name     string   `json:"name"`
	TypeID   int32    `json:"type_id"`
	SystemID int32    `json:"system_id"`
	Services []string `json:"services"`
}

// HasMarket reports whether the station offers a market service.
// The service list is only visible on NPC stations.
func (s *StationInfo) HasMarket() bool {
	for _, svc := range s.Services {
		if svc == "market" {
			return true
		}
	}
	return false
}

// StructureInfo is a player structure record. Fetching it requires a token
// of a character on the structure's ACL; the ACL check is the fetch itself.
type StructureInfo struct {
	Name          string `json:"name"`
	TypeID        int32  `json:"type_id"`
	SolarSystemID int32  `json:"solar_system_id"`
}

// StationInfo fetches a public NPC station record.
func (c *Client) StationInfo(stationID int64) (*StationInfo, error) {
	var info StationInfo
	if err := c.GetJSON(fmt.Sprintf("%s/universe/stations/%d/", c.base, stationID), &info); err != nil {
		return nil, fmt.Errorf("station %d: %w", stationID, err)
	}
	return &info, nil
}

// StructureInfo fetches a player structure record with the given token.
func (c *Client) StructureInfo(structureID int64, accessToken string) (*StructureInfo, error) {
	var info StructureInfo
	if err := c.AuthGetJSON(fmt.Sprintf("%s/universe/structures/%d/", c.base, structureID), accessToken, &info); err != nil {
		return nil, fmt.Errorf("structure %d: %w", structureID, err)
	}
	return &info, nil
}

// SearchStations runs the public search for NPC stations matching term.
func (c *Client) SearchStations(term string) ([]int64, error) {
	var result struct {
		Station []int64 `json:"station"`
	}
	u := fmt.Sprintf("%s/search/?categories=station&strict=false&search=%s", c.base, url.QueryEscape(term))
	if err := c.GetJSON(u, &result); err != nil {
		return nil, fmt.Errorf("station search %q: %w", term, err)
	}
	return result.Station, nil
}

// SearchStructures runs the character-scoped search for player structures
// matching term. Only structures visible to the character are returned.
func (c *Client) SearchStructures(characterID int32, accessToken, term string) ([]int64, error) {
	var result struct {
		Structure []int64 `json:"structure"`
	}
	u := fmt.Sprintf("%s/characters/%d/search/?categories=structure&strict=false&search=%s",
		c.base, characterID, url.QueryEscape(term))
	if err := c.AuthGetJSON(u, accessToken, &result); err != nil {
		return nil, fmt.Errorf("structure search %q: %w", term, err)
	}
	return result.Structure, nil
}

// SystemConstellation resolves a solar system to its constellation.
func (c *Client) SystemConstellation(systemID int32) (int32, error) {
	var info struct {
		ConstellationID int32 `json:"constellation_id"`
	}
	if err := c.GetJSON(fmt.Sprintf("%s/universe/systems/%d/", c.base, systemID), &info); err != nil {
		return 0, fmt.Errorf("system %d: %w", systemID, err)
	}
	return info.ConstellationID, nil
}

// ConstellationRegion resolves a constellation to its region.
func (c *Client) ConstellationRegion(constellationID int32) (int32, error) {
	var info struct {
		RegionID int32 `json:"region_id"`
	}
	if err := c.GetJSON(fmt.Sprintf("%s/universe/constellations/%d/", c.base, constellationID), &info); err != nil {
		return 0, fmt.Errorf("constellation %d: %w", constellationID, err)
	}
	return info.RegionID, nil
}
