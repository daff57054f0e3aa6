package db

import "database/sql"

// Snapshot is the latest aggregated order volume for one (item, location, side).
type Snapshot struct {
	TypeID     int32
	LocationID int64
	IsBuy      bool
	Amount     int64
}

// FindAllSnapshots returns every stored snapshot.
func (d *DB) FindAllSnapshots() ([]Snapshot, error) {
	rows, err := d.sql.Query(`SELECT type_id, location_id, is_buy, amount FROM snapshots`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Snapshot
	for rows.Next() {
		var s Snapshot
		var isBuy int
		if err := rows.Scan(&s.TypeID, &s.LocationID, &isBuy, &s.Amount); err != nil {
			return nil, err
		}
		s.IsBuy = isBuy == 1
		out = append(out, s)
	}
	return out, rows.Err()
}

// SaveSnapshotIfChanged upserts a snapshot unless the stored amount already
// matches. Returns true when a row was written. Skipping unchanged amounts
// keeps repeated runs against a quiet market write-free.
func (d *DB) SaveSnapshotIfChanged(s Snapshot) (bool, error) {
	var current int64
	err := d.sql.QueryRow(`
		SELECT amount FROM snapshots
		 WHERE type_id = ? AND location_id = ? AND is_buy = ?`,
		s.TypeID, s.LocationID, boolInt(s.IsBuy)).Scan(&current)
	if err == nil && current == s.Amount {
		return false, nil
	}
	if err != nil && err != sql.ErrNoRows {
		return false, err
	}

	_, err = d.sql.Exec(`
		INSERT INTO snapshots (type_id, location_id, is_buy, amount)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(type_id, location_id, is_buy) DO UPDATE SET
			amount = excluded.amount`,
		s.TypeID, s.LocationID, boolInt(s.IsBuy), s.Amount)
	if err != nil {
		return false, err
	}
	return true, nil
}
