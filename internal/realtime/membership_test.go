// internal/realtime/membership_test.go
package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMembershipJoinIsIdempotent(t *testing.T) {
	m := NewMembership(4)

	assert.True(t, m.Join("team-1", "alice"))
	assert.False(t, m.Join("team-1", "alice"))
	assert.Equal(t, []string{"alice"}, m.MembersOf("team-1"))
}

func TestMembershipLeaveRemovesEmptyChannel(t *testing.T) {
	m := NewMembership(4)
	m.Join("team-1", "alice")
	m.Join("team-1", "bob")

	assert.True(t, m.Leave("team-1", "alice"))
	assert.True(t, m.Exists("team-1"))
	assert.True(t, m.Leave("team-1", "bob"))
	assert.False(t, m.Exists("team-1"), "channel without members must not exist")
	assert.Empty(t, m.Channels())

	assert.False(t, m.Leave("team-1", "bob"), "leaving twice is a no-op")
	assert.False(t, m.Leave("nowhere", "bob"))
}

func TestMembershipQueries(t *testing.T) {
	m := NewMembership(0)
	m.Join("team-2", "bob")
	m.Join("team-1", "bob")
	m.Join("team-1", "alice")

	assert.Equal(t, []string{"alice", "bob"}, m.MembersOf("team-1"))
	assert.Equal(t, []string{"team-1", "team-2"}, m.ChannelsOf("bob"))
	assert.True(t, m.IsMember("team-2", "bob"))
	assert.False(t, m.IsMember("team-2", "alice"))
	assert.Empty(t, m.MembersOf("missing"))
	assert.Equal(t, map[string]int{"team-1": 2, "team-2": 1}, m.Channels())
}

func TestMembershipSnapshotIsDetached(t *testing.T) {
	m := NewMembership(4)
	m.Join("team-1", "alice")
	members := m.MembersOf("team-1")
	m.Join("team-1", "bob")

	assert.Equal(t, []string{"alice"}, members)
}

func TestMembershipConcurrentJoinLeave(t *testing.T) {
	m := NewMembership(8)
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity := fmt.Sprintf("user-%d", i)
			for j := range 20 {
				channel := fmt.Sprintf("team-%d", j%5)
				m.Join(channel, identity)
				m.MembersOf(channel)
				m.Leave(channel, identity)
			}
		}(i)
	}
	wg.Wait()

	assert.Empty(t, m.Channels())
}
