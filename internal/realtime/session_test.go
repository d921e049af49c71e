// internal/realtime/session_test.go
package realtime

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpenSessionResolvesIdentityOnce(t *testing.T) {
	calls := 0
	auth := AuthenticatorFunc(func(_ context.Context, cc ConnContext) (string, error) {
		calls++
		return "user-" + cc.Token, nil
	})
	hub, err := NewHub(&memStore{}, auth, Config{}, Telemetry{})
	require.NoError(t, err)

	s, err := hub.OpenSession(context.Background(), newFakeConn("c1"), ConnContext{Token: "42"})
	require.NoError(t, err)
	assert.Equal(t, "user-42", s.Identity())
	assert.Equal(t, "c1", s.ID())
	assert.Equal(t, 1, calls)

	require.NoError(t, s.Join(context.Background(), "team-1"))
	assert.Equal(t, 1, calls)
}

func TestOpenSessionRejectsUnauthenticated(t *testing.T) {
	hub := newTestHub(t, nil, Config{})

	_, err := hub.OpenSession(context.Background(), newFakeConn("c1"), ConnContext{})
	assert.ErrorIs(t, err, ErrUnauthenticatedCaller)
	assert.Zero(t, hub.registry.Count())

	blank := AuthenticatorFunc(func(context.Context, ConnContext) (string, error) { return " ", nil })
	hub.auth = blank
	_, err = hub.OpenSession(context.Background(), newFakeConn("c2"), ConnContext{Token: "x"})
	assert.ErrorIs(t, err, ErrUnauthenticatedCaller)

	hub.auth = nil
	_, err = hub.Authenticate(context.Background(), ConnContext{Token: "x"})
	assert.ErrorIs(t, err, ErrUnauthenticatedCaller)
}

func TestSessionActionsFailAfterClose(t *testing.T) {
	hub := newTestHub(t, nil, Config{})
	ctx := context.Background()
	s, _ := attach(t, hub, "c1", "alice")
	require.NoError(t, s.Join(ctx, "team-1"))

	s.Close(ctx)
	assert.True(t, s.Closed())

	assert.ErrorIs(t, s.Join(ctx, "team-1"), ErrSessionClosed)
	assert.ErrorIs(t, s.Leave(ctx, "team-1"), ErrSessionClosed)
	_, err := s.Send(ctx, "team-1", "hi")
	assert.ErrorIs(t, err, ErrSessionClosed)
	assert.Equal(t, "session_closed", ErrorCode(err))
}

func TestSessionCloseRunsCleanupOnce(t *testing.T) {
	hub := newTestHub(t, nil, Config{})
	ctx := context.Background()
	alice, _ := attach(t, hub, "a1", "alice")
	bob, bobConn := attach(t, hub, "b1", "bob")
	require.NoError(t, alice.Join(ctx, "team-1"))
	require.NoError(t, bob.Join(ctx, "team-1"))

	alice.Close(ctx)
	alice.Close(ctx)

	assert.Len(t, bobConn.ofType(EventMemberLeft), 1)
	assert.Equal(t, 1, hub.Stats().Connections)
}

func TestSessionChannels(t *testing.T) {
	hub := newTestHub(t, nil, Config{})
	ctx := context.Background()
	s, _ := attach(t, hub, "c1", "alice")
	require.NoError(t, s.Join(ctx, "b"))
	require.NoError(t, s.Join(ctx, "a"))

	assert.Equal(t, []string{"a", "b"}, s.Channels())
}

func TestErrorCodes(t *testing.T) {
	cases := map[error]string{
		ErrUnauthenticatedCaller: "unauthenticated",
		ErrEmptyChannelName:      "empty_channel_name",
		ErrEmptyMessageBody:      "empty_message_body",
		ErrMessageTooLarge:       "message_too_large",
		ErrNotAMember:            "not_a_member",
		errors.New("boom"):       "internal_error",
	}
	for err, code := range cases {
		assert.Equal(t, code, ErrorCode(err))
		assert.False(t, IsRetryable(err))
	}
}
