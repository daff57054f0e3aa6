package db

import (
	"database/sql"
	"fmt"
	"time"
)

// User is an account that logged in via SSO. The refresh token is the
// long-lived credential; the access token is a cached short-lived one.
type User struct {
	CharacterID   int32
	CharacterName string
	RefreshToken  string
	AccessToken   string
	TokenExpiry   time.Time
	ErrorCount    int
}

const userColumns = `character_id, character_name, refresh_token, access_token, token_expiry, error_count`

func scanUser(row interface{ Scan(...interface{}) error }) (*User, error) {
	var u User
	var expiryUnix int64
	err := row.Scan(&u.CharacterID, &u.CharacterName, &u.RefreshToken, &u.AccessToken, &expiryUnix, &u.ErrorCount)
	if err != nil {
		return nil, err
	}
	if expiryUnix > 0 {
		u.TokenExpiry = time.Unix(expiryUnix, 0)
	}
	return &u, nil
}

// FindUser returns one user, or nil if the character never logged in.
func (d *DB) FindUser(characterID int32) (*User, error) {
	u, err := scanUser(d.sql.QueryRow(`SELECT `+userColumns+` FROM users WHERE character_id = ?`, characterID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return u, err
}

// FindAllUsers returns every stored user.
func (d *DB) FindAllUsers() ([]User, error) {
	rows, err := d.sql.Query(`SELECT ` + userColumns + ` FROM users`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// SaveUser upserts a user by character id.
func (d *DB) SaveUser(u *User) error {
	if u == nil {
		return fmt.Errorf("nil user")
	}
	expiryUnix := int64(0)
	if !u.TokenExpiry.IsZero() {
		expiryUnix = u.TokenExpiry.Unix()
	}
	_, err := d.sql.Exec(`
		INSERT INTO users (`+userColumns+`)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(character_id) DO UPDATE SET
			character_name = excluded.character_name,
			refresh_token  = excluded.refresh_token,
			access_token   = excluded.access_token,
			token_expiry   = excluded.token_expiry,
			error_count    = excluded.error_count`,
		u.CharacterID, u.CharacterName, u.RefreshToken, u.AccessToken, expiryUnix, u.ErrorCount,
	)
	return err
}

// DeleteUser removes a user record. Watches are left in place; without a
// stored credential they simply stop resolving a token.
func (d *DB) DeleteUser(characterID int32) error {
	_, err := d.sql.Exec(`DELETE FROM users WHERE character_id = ?`, characterID)
	return err
}

// IncrementUserErrors bumps the consecutive-error counter and returns the
// new value. Unknown characters return 0 without error.
func (d *DB) IncrementUserErrors(characterID int32) (int, error) {
	res, err := d.sql.Exec(`UPDATE users SET error_count = error_count + 1 WHERE character_id = ?`, characterID)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return 0, nil
	}
	var count int
	err = d.sql.QueryRow(`SELECT error_count FROM users WHERE character_id = ?`, characterID).Scan(&count)
	return count, err
}

// ResetUserErrors clears the consecutive-error counter after a success.
func (d *DB) ResetUserErrors(characterID int32) error {
	_, err := d.sql.Exec(`UPDATE users SET error_count = 0 WHERE character_id = ?`, characterID)
	return err
}
