// internal/db/db_test.go
package db

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewUsesWAL(t *testing.T) {
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	defer database.Close()

	var journalMode string
	require.NoError(t, database.QueryRow("PRAGMA journal_mode").Scan(&journalMode))
	assert.Equal(t, "wal", journalMode)
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	database, err := New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	require.NoError(t, database.RunMigrations())
	t.Cleanup(func() { database.Close() })
	return database
}

func TestMessagesTableColumns(t *testing.T) {
	db := setupTestDB(t)

	_, err := db.Exec(`INSERT INTO chat_messages (id, channel, sender, body, created_at)
		VALUES ('m-1', 'team-1', 'alice', 'hello', '2026-01-01T00:00:00Z')`)
	require.NoError(t, err)

	// id is unique so a retried append cannot duplicate a message
	_, err = db.Exec(`INSERT INTO chat_messages (id, channel, sender, body, created_at)
		VALUES ('m-1', 'team-1', 'alice', 'hello', '2026-01-01T00:00:00Z')`)
	assert.Error(t, err)

	var seq int64
	require.NoError(t, db.QueryRow("SELECT seq FROM chat_messages WHERE id = 'm-1'").Scan(&seq))
	assert.Equal(t, int64(1), seq)
}
