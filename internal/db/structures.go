package db

import (
	"database/sql"
	"fmt"
)

// Structure is a market venue, either an NPC station or a player-owned
// structure. RegionID stays nil until the order fetcher first resolves it.
type Structure struct {
	StructureID   int64
	StructureName string
	TypeID        int32
	NpcStation    bool
	MarketService bool
	RegionID      *int32
}

func scanStructure(row interface{ Scan(...interface{}) error }) (*Structure, error) {
	var s Structure
	var npc, market int
	var region sql.NullInt32
	err := row.Scan(&s.StructureID, &s.StructureName, &s.TypeID, &npc, &market, &region)
	if err != nil {
		return nil, err
	}
	s.NpcStation = npc == 1
	s.MarketService = market == 1
	if region.Valid {
		r := region.Int32
		s.RegionID = &r
	}
	return &s, nil
}

// FindAllStructures returns every known structure.
func (d *DB) FindAllStructures() ([]Structure, error) {
	rows, err := d.sql.Query(`
		SELECT structure_id, structure_name, type_id, npc_station, market_service, region_id
		  FROM structures`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Structure
	for rows.Next() {
		s, err := scanStructure(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// FindStructure returns one structure, or nil if unknown.
func (d *DB) FindStructure(structureID int64) (*Structure, error) {
	s, err := scanStructure(d.sql.QueryRow(`
		SELECT structure_id, structure_name, type_id, npc_station, market_service, region_id
		  FROM structures
		 WHERE structure_id = ?`, structureID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return s, err
}

// SaveStructure upserts a structure by its location id.
func (d *DB) SaveStructure(s *Structure) error {
	if s == nil {
		return fmt.Errorf("nil structure")
	}
	var region interface{}
	if s.RegionID != nil {
		region = *s.RegionID
	}
	_, err := d.sql.Exec(`
		INSERT INTO structures (structure_id, structure_name, type_id, npc_station, market_service, region_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(structure_id) DO UPDATE SET
			structure_name = excluded.structure_name,
			type_id        = excluded.type_id,
			npc_station    = excluded.npc_station,
			market_service = excluded.market_service,
			region_id      = COALESCE(excluded.region_id, structures.region_id)`,
		s.StructureID, s.StructureName, s.TypeID, boolInt(s.NpcStation), boolInt(s.MarketService), region,
	)
	return err
}

// SetStructureRegion persists a lazily resolved region id.
func (d *DB) SetStructureRegion(structureID int64, regionID int32) error {
	_, err := d.sql.Exec(`UPDATE structures SET region_id = ? WHERE structure_id = ?`, regionID, structureID)
	return err
}
