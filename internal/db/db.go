package db

import (
	"database/sql"
	"fmt"

	"eve-market-watch/internal/logger"
	_ "modernc.org/sqlite"
)

// DB wraps the SQLite database behind per-entity repository methods.
type DB struct {
	sql *sql.DB
}

// Open opens (or creates) the SQLite database at path and runs migrations.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("ping db: %w", err)
	}
	d := &DB{sql: sqlDB}
	if err := d.migrate(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("migrate db: %w", err)
	}
	logger.Success("DB", fmt.Sprintf("Opened %s", path))
	return d, nil
}

// Close closes the database connection.
func (d *DB) Close() error {
	return d.sql.Close()
}

func (d *DB) migrate() error {
	version := 0
	d.sql.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)

	if version < 1 {
		_, err := d.sql.Exec(`
			CREATE TABLE IF NOT EXISTS schema_version (version INTEGER PRIMARY KEY);

			CREATE TABLE IF NOT EXISTS users (
				character_id   INTEGER PRIMARY KEY,
				character_name TEXT NOT NULL DEFAULT '',
				refresh_token  TEXT NOT NULL,
				access_token   TEXT NOT NULL DEFAULT '',
				token_expiry   INTEGER NOT NULL DEFAULT 0,
				error_count    INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE IF NOT EXISTS watches (
				character_id INTEGER NOT NULL,
				location_id  INTEGER NOT NULL,
				type_id      INTEGER NOT NULL,
				type_name    TEXT NOT NULL DEFAULT '',
				is_buy       INTEGER NOT NULL DEFAULT 0,
				comparator   TEXT NOT NULL DEFAULT 'lt',
				threshold    INTEGER NOT NULL DEFAULT 0,
				triggered    INTEGER NOT NULL DEFAULT 0,
				mail_sent    INTEGER NOT NULL DEFAULT 0,
				disabled     INTEGER NOT NULL DEFAULT 0,
				created_at   INTEGER NOT NULL DEFAULT 0,
				PRIMARY KEY (character_id, location_id, type_id, is_buy)
			);
			CREATE INDEX IF NOT EXISTS idx_watches_location ON watches(location_id);

			CREATE TABLE IF NOT EXISTS structures (
				structure_id   INTEGER PRIMARY KEY,
				structure_name TEXT NOT NULL,
				type_id        INTEGER NOT NULL DEFAULT 0,
				npc_station    INTEGER NOT NULL DEFAULT 0,
				market_service INTEGER NOT NULL DEFAULT 0,
				region_id      INTEGER
			);

			CREATE TABLE IF NOT EXISTS snapshots (
				type_id     INTEGER NOT NULL,
				location_id INTEGER NOT NULL,
				is_buy      INTEGER NOT NULL,
				amount      INTEGER NOT NULL,
				PRIMARY KEY (type_id, location_id, is_buy)
			);

			CREATE TABLE IF NOT EXISTS mails (
				id         INTEGER PRIMARY KEY AUTOINCREMENT,
				recipient  INTEGER NOT NULL,
				subject    TEXT NOT NULL,
				body       TEXT NOT NULL,
				status     TEXT NOT NULL DEFAULT 'NEW',
				priority   INTEGER NOT NULL DEFAULT 10,
				created_at INTEGER NOT NULL,
				updated_at INTEGER NOT NULL DEFAULT 0
			);
			CREATE INDEX IF NOT EXISTS idx_mails_status ON mails(status, priority DESC);

			INSERT OR IGNORE INTO schema_version (version) VALUES (1);
		`)
		if err != nil {
			return fmt.Errorf("migration v1: %w", err)
		}
		logger.Info("DB", "Applied migration v1")
	}

	return nil
}

// SqlDB returns the underlying *sql.DB for use by other packages.
func (d *DB) SqlDB() *sql.DB {
	return d.sql
}
