// internal/realtime/session.go
package realtime

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/markb/workhub/internal/log"
	"github.com/markb/workhub/internal/store"
)

// ConnContext describes an inbound connection before it is upgraded.
type ConnContext struct {
	Token      string
	RemoteAddr string
	UserAgent  string
}

// Authenticator resolves the identity behind a connection. It is consulted once per
// connection; an error or empty identity rejects the connection.
type Authenticator interface {
	ResolveIdentity(ctx context.Context, cc ConnContext) (string, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, cc ConnContext) (string, error)

// ResolveIdentity calls f.
func (f AuthenticatorFunc) ResolveIdentity(ctx context.Context, cc ConnContext) (string, error) {
	return f(ctx, cc)
}

// Session is the per-connection entry point. The identity is fixed when the session
// opens; after Close every action fails with ErrSessionClosed.
type Session struct {
	hub      *Hub
	conn     Connection
	identity string

	closed    atomic.Bool
	closeOnce sync.Once
}

// ID returns the connection id.
func (s *Session) ID() string {
	return s.conn.ID()
}

// Identity returns the identity resolved when the session opened.
func (s *Session) Identity() string {
	return s.identity
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	return s.closed.Load()
}

// Join adds the session's identity to channel.
func (s *Session) Join(ctx context.Context, channel string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.hub.presence.Join(ctx, s.conn.ID(), channel)
}

// Leave removes the session's identity from channel.
func (s *Session) Leave(ctx context.Context, channel string) error {
	if s.closed.Load() {
		return ErrSessionClosed
	}
	return s.hub.presence.Leave(ctx, s.conn.ID(), channel)
}

// Send publishes body to channel.
func (s *Session) Send(ctx context.Context, channel, body string) (*store.Message, error) {
	if s.closed.Load() {
		return nil, ErrSessionClosed
	}
	if body == "" {
		return nil, ErrEmptyMessageBody
	}
	if len(body) > s.hub.cfg.MaxBodyBytes {
		return nil, ErrMessageTooLarge
	}
	return s.hub.broadcaster.Send(ctx, s.conn.ID(), channel, body)
}

// Channels returns the channels the session's identity belongs to.
func (s *Session) Channels() []string {
	return s.hub.members.ChannelsOf(s.identity)
}

// Close ends the session and runs disconnect cleanup once. It is safe to call from
// both pumps and from hub shutdown.
func (s *Session) Close(ctx context.Context) {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		vacated := s.hub.presence.OnDisconnect(ctx, s.conn.ID())
		s.hub.forget(s)
		log.Debug("realtime: session closed", "conn_id", s.conn.ID(), "identity", s.identity, "vacated", vacated)
	})
}
