package store

import (
	"context"
	"fmt"
	"time"

	"github.com/markb/workhub/internal/db"
)

// SQLiteStore keeps messages in the chat_messages table.
type SQLiteStore struct {
	db *db.DB
}

// OpenSQLite opens (creating if needed) and migrates the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	database, err := db.New(path)
	if err != nil {
		return nil, err
	}
	if err := database.RunMigrations(); err != nil {
		database.Close()
		return nil, err
	}
	return &SQLiteStore{db: database}, nil
}

// NewSQLiteStore wraps an already migrated database.
func NewSQLiteStore(database *db.DB) *SQLiteStore {
	return &SQLiteStore{db: database}
}

func (s *SQLiteStore) Append(ctx context.Context, msg *Message) (string, error) {
	if err := validate(msg); err != nil {
		return "", err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_messages (id, channel, sender, body, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`, msg.ID, msg.Channel, msg.Sender, msg.Body, msg.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("insert message: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		"SELECT seq FROM chat_messages WHERE id = ?", msg.ID,
	).Scan(&msg.Seq); err != nil {
		return "", fmt.Errorf("read message sequence: %w", err)
	}
	return msg.ID, nil
}

func (s *SQLiteStore) ListRecent(ctx context.Context, channel string, limit, offset int) ([]Message, error) {
	limit, offset = clampPage(limit, offset)

	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, channel, sender, body, created_at
		FROM chat_messages
		WHERE channel = ?
		ORDER BY seq DESC
		LIMIT ? OFFSET ?
	`, channel, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var m Message
		var createdAt string
		if err := rows.Scan(&m.Seq, &m.ID, &m.Channel, &m.Sender, &m.Body, &createdAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parse created_at of %s: %w", m.ID, err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
