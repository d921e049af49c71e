// internal/db/migrations.go
package db

import (
	"fmt"
)

// migrations are applied in order; a migration's version is its index plus one.
var migrations = []string{
	// seq gives persisted history a total order independent of timestamps.
	`CREATE TABLE IF NOT EXISTS chat_messages (
    seq         INTEGER PRIMARY KEY AUTOINCREMENT,
    id          TEXT UNIQUE NOT NULL,
    channel     TEXT NOT NULL,
    sender      TEXT NOT NULL,
    body        TEXT NOT NULL,
    created_at  TEXT NOT NULL
)`,
	`CREATE INDEX IF NOT EXISTS idx_chat_messages_channel_seq ON chat_messages(channel, seq DESC)`,
}

const versionTable = `CREATE TABLE IF NOT EXISTS schema_version (
    version     INTEGER NOT NULL,
    applied_at  TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%fZ', 'now'))
)`

// SchemaVersion returns the highest applied migration, 0 for a fresh database.
func (db *DB) SchemaVersion() (int, error) {
	if _, err := db.Exec(versionTable); err != nil {
		return 0, fmt.Errorf("failed to create schema_version: %w", err)
	}
	var version int
	if err := db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version").Scan(&version); err != nil {
		return 0, fmt.Errorf("failed to read schema version: %w", err)
	}
	return version, nil
}

// RunMigrations applies every migration newer than the current schema version, each
// in its own transaction.
func (db *DB) RunMigrations() error {
	current, err := db.SchemaVersion()
	if err != nil {
		return err
	}

	for i := current; i < len(migrations); i++ {
		version := i + 1
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("failed to begin migration %d: %w", version, err)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to run migration %d: %w", version, err)
		}
		if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
			tx.Rollback()
			return fmt.Errorf("failed to record migration %d: %w", version, err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit migration %d: %w", version, err)
		}
	}
	return nil
}
