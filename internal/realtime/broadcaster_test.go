// internal/realtime/broadcaster_test.go
package realtime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/markb/workhub/internal/store"
	"github.com/markb/workhub/internal/store/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSendReachesEveryMemberConnection(t *testing.T) {
	st := &memStore{}
	hub := newTestHub(t, st, Config{})
	ctx := context.Background()
	alice, aliceConn := attach(t, hub, "a1", "alice")
	_, aliceLaptop := attach(t, hub, "a2", "alice")
	bob, bobConn := attach(t, hub, "b1", "bob")
	_, carolConn := attach(t, hub, "c1", "carol")
	require.NoError(t, alice.Join(ctx, "team-1"))
	require.NoError(t, bob.Join(ctx, "team-1"))

	msg, err := alice.Send(ctx, "team-1", "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, msg.ID)
	assert.Equal(t, "alice", msg.Sender)
	assert.EqualValues(t, 1, msg.Seq)

	for _, c := range []*fakeConn{aliceConn, aliceLaptop, bobConn} {
		got := c.ofType(EventMessageReceived)
		require.Len(t, got, 1, c.ID())
		assert.Equal(t, "hello", got[0].Body)
		assert.Equal(t, "alice", got[0].Identity)
		assert.Equal(t, msg.ID, got[0].MessageID)
		assert.Equal(t, msg.CreatedAt, got[0].Timestamp)
	}
	assert.Empty(t, carolConn.Events(), "non-members receive nothing")
	assert.Equal(t, []string{"hello"}, st.bodies("team-1"))
}

func TestSendRequiresMembership(t *testing.T) {
	st := &memStore{}
	hub := newTestHub(t, st, Config{})
	ctx := context.Background()
	alice, _ := attach(t, hub, "a1", "alice")

	_, err := alice.Send(ctx, "team-1", "hello")
	assert.ErrorIs(t, err, ErrNotAMember)
	assert.Empty(t, st.bodies("team-1"))
}

func TestSendValidatesInput(t *testing.T) {
	hub := newTestHub(t, nil, Config{MaxBodyBytes: 8})
	ctx := context.Background()
	alice, _ := attach(t, hub, "a1", "alice")
	require.NoError(t, alice.Join(ctx, "team-1"))

	_, err := alice.Send(ctx, "team-1", "")
	assert.ErrorIs(t, err, ErrEmptyMessageBody)
	_, err = alice.Send(ctx, "team-1", "123456789")
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	_, err = alice.Send(ctx, "  ", "hi")
	assert.ErrorIs(t, err, ErrEmptyChannelName)
	_, err = hub.broadcaster.Send(ctx, "ghost", "team-1", "hi")
	assert.ErrorIs(t, err, ErrUnauthenticatedCaller)
}

func TestSendPersistsBeforePush(t *testing.T) {
	st := &memStore{}
	hub := newTestHub(t, st, Config{})
	ctx := context.Background()
	alice, _ := attach(t, hub, "a1", "alice")
	bob, bobConn := attach(t, hub, "b1", "bob")
	require.NoError(t, alice.Join(ctx, "team-1"))
	require.NoError(t, bob.Join(ctx, "team-1"))

	var seenAtAppend int
	st.onAppend = func(*store.Message) {
		seenAtAppend = len(bobConn.ofType(EventMessageReceived))
	}

	_, err := alice.Send(ctx, "team-1", "durable")
	require.NoError(t, err)
	assert.Zero(t, seenAtAppend, "no recipient may see a message before it is stored")
	assert.Len(t, bobConn.ofType(EventMessageReceived), 1)
}

func TestSendPersistenceFailureSuppressesFanout(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().Append(gomock.Any(), gomock.Any()).Return("", errors.New("disk full")).Times(2)

	hub := newTestHub(t, st, Config{PersistRetries: 2})
	ctx := context.Background()
	alice, aliceConn := attach(t, hub, "a1", "alice")
	bob, bobConn := attach(t, hub, "b1", "bob")
	require.NoError(t, alice.Join(ctx, "team-1"))
	require.NoError(t, bob.Join(ctx, "team-1"))

	msg, err := alice.Send(ctx, "team-1", "lost")
	require.Error(t, err)
	assert.Nil(t, msg)
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.True(t, IsRetryable(err))
	assert.Equal(t, "persistence_failure", ErrorCode(err))
	assert.Empty(t, aliceConn.ofType(EventMessageReceived))
	assert.Empty(t, bobConn.ofType(EventMessageReceived))
}

func TestSendRetriesTransientStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	gomock.InOrder(
		st.EXPECT().Append(gomock.Any(), gomock.Any()).Return("", errors.New("busy")),
		st.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(_ context.Context, msg *store.Message) (string, error) {
			msg.Seq = 7
			return msg.ID, nil
		}),
	)

	hub := newTestHub(t, st, Config{})
	ctx := context.Background()
	alice, aliceConn := attach(t, hub, "a1", "alice")
	require.NoError(t, alice.Join(ctx, "team-1"))

	msg, err := alice.Send(ctx, "team-1", "retry me")
	require.NoError(t, err)
	assert.EqualValues(t, 7, msg.Seq)
	assert.Len(t, aliceConn.ofType(EventMessageReceived), 1)
}

func TestSendPersistTimeout(t *testing.T) {
	ctrl := gomock.NewController(t)
	st := mocks.NewMockStore(ctrl)
	st.EXPECT().Append(gomock.Any(), gomock.Any()).DoAndReturn(func(ctx context.Context, _ *store.Message) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}).MinTimes(1)

	hub := newTestHub(t, st, Config{PersistTimeout: 30 * time.Millisecond})
	ctx := context.Background()
	alice, aliceConn := attach(t, hub, "a1", "alice")
	require.NoError(t, alice.Join(ctx, "team-1"))

	_, err := alice.Send(ctx, "team-1", "slow")
	assert.ErrorIs(t, err, ErrPersistenceFailure)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, aliceConn.ofType(EventMessageReceived))
}

func TestStalledRecipientDoesNotBlockOthers(t *testing.T) {
	hub := newTestHub(t, nil, Config{DeliveryTimeout: 20 * time.Millisecond})
	ctx := context.Background()
	alice, aliceConn := attach(t, hub, "a1", "alice")
	bob, bobConn := attach(t, hub, "b1", "bob")
	carol, carolConn := attach(t, hub, "c1", "carol")
	for _, s := range []*Session{alice, bob, carol} {
		require.NoError(t, s.Join(ctx, "team-1"))
	}
	bobConn.mu.Lock()
	bobConn.block = true
	bobConn.mu.Unlock()
	carolConn.mu.Lock()
	carolConn.fail = errConnClosed
	carolConn.mu.Unlock()

	start := time.Now()
	_, err := alice.Send(ctx, "team-1", "anyone?")
	require.NoError(t, err, "delivery failures never reach the sender")
	assert.Less(t, time.Since(start), time.Second)
	assert.Len(t, aliceConn.ofType(EventMessageReceived), 1)
}

func TestLeftMemberStopsReceivingButStoreKeepsMessages(t *testing.T) {
	st := &memStore{}
	hub := newTestHub(t, st, Config{})
	ctx := context.Background()
	alice, aliceConn := attach(t, hub, "a1", "alice")
	bob, bobConn := attach(t, hub, "b1", "bob")
	require.NoError(t, alice.Join(ctx, "team-1"))
	require.NoError(t, bob.Join(ctx, "team-1"))

	_, err := alice.Send(ctx, "team-1", "hello")
	require.NoError(t, err)
	require.NoError(t, bob.Leave(ctx, "team-1"))
	_, err = alice.Send(ctx, "team-1", "bye bob")
	require.NoError(t, err)

	bobMsgs := bobConn.ofType(EventMessageReceived)
	require.Len(t, bobMsgs, 1)
	assert.Equal(t, "hello", bobMsgs[0].Body)
	assert.Len(t, aliceConn.ofType(EventMessageReceived), 2)
	assert.Equal(t, []string{"hello", "bye bob"}, st.bodies("team-1"))

	_, err = bob.Send(ctx, "team-1", "let me back")
	assert.ErrorIs(t, err, ErrNotAMember)
}
