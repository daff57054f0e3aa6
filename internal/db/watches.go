package db

import (
	"fmt"
	"time"
)

// Comparators a watch may test its threshold with.
const (
	ComparatorLt = "lt"
	ComparatorLe = "le"
	ComparatorGt = "gt"
	ComparatorGe = "ge"
)

// Watch is a user's standing request to be notified when an item's market
// volume at a location crosses a threshold.
type Watch struct {
	CharacterID int32
	LocationID  int64
	TypeID      int32
	TypeName    string
	IsBuy       bool
	Comparator  string
	Threshold   int64
	Triggered   bool
	MailSent    bool
	Disabled    bool
	CreatedAt   time.Time
}

func normalizeComparator(c string) string {
	switch c {
	case ComparatorLe, ComparatorGt, ComparatorGe:
		return c
	default:
		return ComparatorLt
	}
}

const watchColumns = `character_id, location_id, type_id, type_name, is_buy,
	comparator, threshold, triggered, mail_sent, disabled, created_at`

func scanWatch(row interface{ Scan(...interface{}) error }) (*Watch, error) {
	var w Watch
	var isBuy, triggered, mailSent, disabled int
	var createdUnix int64
	err := row.Scan(
		&w.CharacterID, &w.LocationID, &w.TypeID, &w.TypeName, &isBuy,
		&w.Comparator, &w.Threshold, &triggered, &mailSent, &disabled, &createdUnix,
	)
	if err != nil {
		return nil, err
	}
	w.IsBuy = isBuy == 1
	w.Triggered = triggered == 1
	w.MailSent = mailSent == 1
	w.Disabled = disabled == 1
	if createdUnix > 0 {
		w.CreatedAt = time.Unix(createdUnix, 0)
	}
	return &w, nil
}

func (d *DB) queryWatches(query string, args ...interface{}) ([]Watch, error) {
	rows, err := d.sql.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Watch
	for rows.Next() {
		w, err := scanWatch(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// FindAllWatches returns every stored watch.
func (d *DB) FindAllWatches() ([]Watch, error) {
	return d.queryWatches(`SELECT ` + watchColumns + ` FROM watches`)
}

// FindWatchesByCharacter returns all watches owned by a character.
func (d *DB) FindWatchesByCharacter(characterID int32) ([]Watch, error) {
	return d.queryWatches(`SELECT `+watchColumns+` FROM watches WHERE character_id = ?`, characterID)
}

// SaveWatch upserts a watch, keyed by (character, location, type, side).
func (d *DB) SaveWatch(w *Watch) error {
	if w == nil {
		return fmt.Errorf("nil watch")
	}
	w.Comparator = normalizeComparator(w.Comparator)
	createdUnix := int64(0)
	if !w.CreatedAt.IsZero() {
		createdUnix = w.CreatedAt.Unix()
	}
	_, err := d.sql.Exec(`
		INSERT INTO watches (`+watchColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(character_id, location_id, type_id, is_buy) DO UPDATE SET
			type_name  = excluded.type_name,
			comparator = excluded.comparator,
			threshold  = excluded.threshold,
			triggered  = excluded.triggered,
			mail_sent  = excluded.mail_sent,
			disabled   = excluded.disabled,
			created_at = excluded.created_at`,
		w.CharacterID, w.LocationID, w.TypeID, w.TypeName, boolInt(w.IsBuy),
		w.Comparator, w.Threshold, boolInt(w.Triggered), boolInt(w.MailSent),
		boolInt(w.Disabled), createdUnix,
	)
	return err
}

// DeleteWatch removes a single watch.
func (d *DB) DeleteWatch(characterID int32, locationID int64, typeID int32, isBuy bool) error {
	_, err := d.sql.Exec(`
		DELETE FROM watches
		 WHERE character_id = ? AND location_id = ? AND type_id = ? AND is_buy = ?`,
		characterID, locationID, typeID, boolInt(isBuy))
	return err
}

// DisableWatches marks every watch of a character at a location as disabled.
// Used when the location's ACL rejects the character's token.
func (d *DB) DisableWatches(characterID int32, locationID int64) (int64, error) {
	res, err := d.sql.Exec(`
		UPDATE watches SET disabled = 1
		 WHERE character_id = ? AND location_id = ?`,
		characterID, locationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// EnableWatches re-enables every watch of a character at a location.
func (d *DB) EnableWatches(characterID int32, locationID int64) (int64, error) {
	res, err := d.sql.Exec(`
		UPDATE watches SET disabled = 0
		 WHERE character_id = ? AND location_id = ?`,
		characterID, locationID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ResetWatches clears the triggered and mail-sent flags on all of a
// character's watches so they can fire again.
func (d *DB) ResetWatches(characterID int32) (int64, error) {
	res, err := d.sql.Exec(`
		UPDATE watches SET triggered = 0, mail_sent = 0
		 WHERE character_id = ?`, characterID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
