// internal/realtime/membership.go
package realtime

import (
	"sort"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/samber/lo"
)

// DefaultShards is the shard count used when none is configured.
const DefaultShards = 32

// membershipShard guards the channels whose names hash to it.
type membershipShard struct {
	mu       sync.RWMutex
	channels map[string]map[string]struct{} // channel -> identity set
}

// Membership maps channel names to the identities joined to them. A channel entry
// exists exactly while it has at least one member. Locking is sharded by channel name
// so activity on unrelated channels does not contend on a single mutex.
type Membership struct {
	shards []*membershipShard
}

// NewMembership creates a table with n shards (DefaultShards when n <= 0).
func NewMembership(n int) *Membership {
	if n <= 0 {
		n = DefaultShards
	}
	m := &Membership{shards: make([]*membershipShard, n)}
	for i := range m.shards {
		m.shards[i] = &membershipShard{channels: make(map[string]map[string]struct{})}
	}
	return m
}

func (m *Membership) shardFor(channel string) *membershipShard {
	return m.shards[xxhash.Sum64String(channel)%uint64(len(m.shards))]
}

// Join adds identity to channel, creating the channel entry if needed. It reports
// whether identity was newly added.
func (m *Membership) Join(channel, identity string) bool {
	s := m.shardFor(channel)
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.channels[channel]
	if members == nil {
		members = make(map[string]struct{})
		s.channels[channel] = members
	}
	if _, ok := members[identity]; ok {
		return false
	}
	members[identity] = struct{}{}
	return true
}

// Leave removes identity from channel and drops the entry once it is empty. It
// reports whether identity was a member.
func (m *Membership) Leave(channel, identity string) bool {
	s := m.shardFor(channel)
	s.mu.Lock()
	defer s.mu.Unlock()

	members := s.channels[channel]
	if _, ok := members[identity]; !ok {
		return false
	}
	delete(members, identity)
	if len(members) == 0 {
		delete(s.channels, channel)
	}
	return true
}

// MembersOf returns a sorted snapshot of the members of channel. The slice is owned
// by the caller.
func (m *Membership) MembersOf(channel string) []string {
	s := m.shardFor(channel)
	s.mu.RLock()
	members := lo.Keys(s.channels[channel])
	s.mu.RUnlock()

	sort.Strings(members)
	return members
}

// IsMember reports whether identity is currently joined to channel.
func (m *Membership) IsMember(channel, identity string) bool {
	s := m.shardFor(channel)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel][identity]
	return ok
}

// Exists reports whether channel has an entry, i.e. at least one member.
func (m *Membership) Exists(channel string) bool {
	s := m.shardFor(channel)
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.channels[channel]
	return ok
}

// ChannelsOf returns the channels identity is joined to. Shards are visited one at a
// time, so the result is not an atomic snapshot across channels.
func (m *Membership) ChannelsOf(identity string) []string {
	var channels []string
	for _, s := range m.shards {
		s.mu.RLock()
		for name, members := range s.channels {
			if _, ok := members[identity]; ok {
				channels = append(channels, name)
			}
		}
		s.mu.RUnlock()
	}
	sort.Strings(channels)
	return channels
}

// Channels returns the member count of every channel.
func (m *Membership) Channels() map[string]int {
	sizes := make(map[string]int)
	for _, s := range m.shards {
		s.mu.RLock()
		for name, members := range s.channels {
			sizes[name] = len(members)
		}
		s.mu.RUnlock()
	}
	return sizes
}
