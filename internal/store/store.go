//go:generate go run go.uber.org/mock/mockgen -source=store.go -destination=mocks/mock_store.go -package=mocks

// Package store persists chat messages. Messages are append-only: once written they
// are never updated or deleted by this package.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a message id is unknown.
var ErrNotFound = errors.New("message not found")

// Message is an immutable chat message.
type Message struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	Sender    string    `json:"sender"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
	Seq       int64     `json:"seq"` // assigned by the store, totally ordered per store
}

// Store is the message persistence contract.
type Store interface {
	// Append persists msg and returns its id. Appending a message whose id already
	// exists is a no-op that returns the same id, which makes retries safe.
	Append(ctx context.Context, msg *Message) (string, error)
	// ListRecent returns up to limit messages of channel, newest first, skipping the
	// offset newest ones.
	ListRecent(ctx context.Context, channel string, limit, offset int) ([]Message, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend    string `env:"WORKHUB_STORE" validate:"oneof=sqlite badger"`
	SQLitePath string `env:"WORKHUB_DB"`
	BadgerDir  string `env:"WORKHUB_BADGER_DIR"`
}

// DefaultConfig returns a sqlite store at data.db.
func DefaultConfig() Config {
	return Config{
		Backend:    "sqlite",
		SQLitePath: "data.db",
		BadgerDir:  "data.badger",
	}
}

// Open opens the configured backend.
func Open(cfg Config) (Store, error) {
	switch cfg.Backend {
	case "", "sqlite":
		return OpenSQLite(cfg.SQLitePath)
	case "badger":
		return OpenBadger(cfg.BadgerDir)
	default:
		return nil, fmt.Errorf("unknown store backend: %s", cfg.Backend)
	}
}

func validate(msg *Message) error {
	if msg == nil {
		return errors.New("nil message")
	}
	if msg.ID == "" || msg.Channel == "" || msg.Sender == "" {
		return fmt.Errorf("message %q is missing id, channel or sender", msg.ID)
	}
	return nil
}

// DefaultPageSize is the page size used when a caller passes no limit.
const DefaultPageSize = 50

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
