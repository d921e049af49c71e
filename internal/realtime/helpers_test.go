// internal/realtime/helpers_test.go
package realtime

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/markb/workhub/internal/store"
	"github.com/stretchr/testify/require"
)

// fakeConn records delivered events.
type fakeConn struct {
	id string

	mu     sync.Mutex
	events []Event
	fail   error
	block  bool

	// holdType deliveries wait for gate to close; held is signalled on arrival.
	holdType EventType
	gate     chan struct{}
	held     chan struct{}
}

func newFakeConn(id string) *fakeConn {
	return &fakeConn{id: id}
}

func (f *fakeConn) ID() string { return f.id }

// hold makes deliveries of typ wait until the returned release func is called.
func (f *fakeConn) hold(typ EventType) (held <-chan struct{}, release func()) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.holdType = typ
	f.gate = make(chan struct{})
	f.held = make(chan struct{}, 1)
	gate := f.gate
	return f.held, func() { close(gate) }
}

func (f *fakeConn) Deliver(ctx context.Context, evt Event) error {
	f.mu.Lock()
	block, fail := f.block, f.fail
	gate, held := f.gate, f.held
	if evt.Type != f.holdType {
		gate = nil
	}
	f.mu.Unlock()

	if gate != nil {
		select {
		case held <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if fail != nil {
		return fail
	}

	f.mu.Lock()
	f.events = append(f.events, evt)
	f.mu.Unlock()
	return nil
}

func (f *fakeConn) Events() []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Event(nil), f.events...)
}

func (f *fakeConn) ofType(typ EventType) []Event {
	var out []Event
	for _, e := range f.Events() {
		if e.Type == typ {
			out = append(out, e)
		}
	}
	return out
}

func (f *fakeConn) reset() {
	f.mu.Lock()
	f.events = nil
	f.mu.Unlock()
}

// memStore is an in-memory store.Store keeping append order.
type memStore struct {
	mu       sync.Mutex
	messages []store.Message
	onAppend func(*store.Message)
}

func (m *memStore) Append(_ context.Context, msg *store.Message) (string, error) {
	if m.onAppend != nil {
		m.onAppend(msg)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.messages {
		if existing.ID == msg.ID {
			msg.Seq = existing.Seq
			return msg.ID, nil
		}
	}
	msg.Seq = int64(len(m.messages) + 1)
	m.messages = append(m.messages, *msg)
	return msg.ID, nil
}

func (m *memStore) ListRecent(_ context.Context, channel string, limit, offset int) ([]store.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []store.Message
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].Channel != channel {
			continue
		}
		if offset > 0 {
			offset--
			continue
		}
		out = append(out, m.messages[i])
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *memStore) Close() error { return nil }

func (m *memStore) bodies(channel string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, msg := range m.messages {
		if msg.Channel == channel {
			out = append(out, msg.Body)
		}
	}
	return out
}

// tokenAuth treats the token as the identity.
var tokenAuth = AuthenticatorFunc(func(_ context.Context, cc ConnContext) (string, error) {
	if cc.Token == "" {
		return "", errors.New("missing token")
	}
	return cc.Token, nil
})

func newTestHub(t *testing.T, st store.Store, cfg Config) *Hub {
	t.Helper()
	if st == nil {
		st = &memStore{}
	}
	hub, err := NewHub(st, tokenAuth, cfg, Telemetry{})
	require.NoError(t, err)
	return hub
}

// attach opens a session for a fake connection.
func attach(t *testing.T, hub *Hub, connID, identity string) (*Session, *fakeConn) {
	t.Helper()
	conn := newFakeConn(connID)
	s, err := hub.OpenSession(context.Background(), conn, ConnContext{Token: identity})
	require.NoError(t, err)
	return s, conn
}
