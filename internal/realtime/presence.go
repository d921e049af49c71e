// internal/realtime/presence.go
package realtime

import (
	"context"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/markb/workhub/internal/log"
)

// identityStripes is the number of mutexes serialising membership changes per identity.
const identityStripes = 64

// Notifier delivers a presence event to the connections of the given members.
type Notifier interface {
	Notify(ctx context.Context, members []string, evt Event)
}

// Coordinator owns the connection registry and the membership table and keeps them
// consistent. Membership is per identity: any live connection of an identity keeps
// its memberships alive, and an identity is removed from its channels only when its
// last connection closes.
type Coordinator struct {
	registry *Registry
	members  *Membership
	clock    *Clock
	notifier Notifier
	metrics  *metrics

	// Changes touching one identity (connect, disconnect, join, leave) are serialised
	// so a disconnect cleanup cannot undo a join made by another device.
	stripes [identityStripes]sync.Mutex

	// Joins whose member_joined is still being delivered. They are not yet in the
	// table, so broadcasts do not reach the joiner.
	pendingMu sync.Mutex
	pending   map[pendingJoin]struct{}
}

type pendingJoin struct {
	channel  string
	identity string
}

// NewCoordinator creates a coordinator over the given registry and table. A nil m
// records nothing.
func NewCoordinator(registry *Registry, members *Membership, clock *Clock, m *metrics) *Coordinator {
	if clock == nil {
		clock = NewClock()
	}
	if m == nil {
		m = noopMetrics()
	}
	return &Coordinator{
		registry: registry,
		members:  members,
		clock:    clock,
		metrics:  m,
		pending:  make(map[pendingJoin]struct{}),
	}
}

// SetNotifier sets where member joined/left events are delivered. Must be called
// before the coordinator is used concurrently.
func (c *Coordinator) SetNotifier(n Notifier) {
	c.notifier = n
}

func (c *Coordinator) lockIdentity(identity string) func() {
	mu := &c.stripes[xxhash.Sum64String(identity)%identityStripes]
	mu.Lock()
	return mu.Unlock
}

// NormalizeChannel trims surrounding whitespace and rejects blank names.
func NormalizeChannel(channel string) (string, error) {
	name := strings.TrimSpace(channel)
	if name == "" {
		return "", ErrEmptyChannelName
	}
	return name, nil
}

// OnConnect registers conn as a live connection of identity.
func (c *Coordinator) OnConnect(conn Connection, identity string) error {
	if strings.TrimSpace(identity) == "" {
		return ErrUnauthenticatedCaller
	}
	unlock := c.lockIdentity(identity)
	c.registry.Register(identity, conn)
	unlock()
	c.metrics.connections.Add(context.Background(), 1)

	log.Debug("realtime: connection registered", "conn_id", conn.ID(), "identity", identity)
	return nil
}

// OnDisconnect unregisters the connection. When it was the identity's last live
// connection the identity leaves every channel and a member_left event is raised
// for each channel it vacated. The vacated channel names are returned.
func (c *Coordinator) OnDisconnect(ctx context.Context, connID string) []string {
	identity, ok := c.registry.IdentityOf(connID)
	if !ok {
		return nil
	}

	type vacated struct {
		channel   string
		remaining []string
	}
	var left []vacated

	unlock := c.lockIdentity(identity)
	if _, ok := c.registry.Unregister(connID); !ok {
		unlock()
		return nil
	}
	if c.registry.ConnectionCount(identity) == 0 {
		for _, channel := range c.members.ChannelsOf(identity) {
			if c.members.Leave(channel, identity) {
				left = append(left, vacated{channel: channel, remaining: c.members.MembersOf(channel)})
			}
		}
	}
	unlock()
	c.metrics.connections.Add(ctx, -1)

	log.Debug("realtime: connection unregistered", "conn_id", connID, "identity", identity, "vacated", len(left))

	channels := make([]string, 0, len(left))
	for _, v := range left {
		channels = append(channels, v.channel)
		c.metrics.memberships.Add(ctx, 1, outcomeLeft)
		c.notify(ctx, v.remaining, Event{
			Type:      EventMemberLeft,
			Channel:   v.channel,
			Identity:  identity,
			Timestamp: c.clock.Now(),
		})
	}
	return channels
}

// Join adds the identity owning connID to channel. Joining twice is a no-op. On a
// new membership, member_joined is delivered to every member including the joiner
// before the identity is added to the table, so sends only reach the joiner once
// Join has returned. If the identity's last connection closes meanwhile the join is
// abandoned and the members that were told about it receive member_left.
func (c *Coordinator) Join(ctx context.Context, connID, channel string) error {
	name, err := NormalizeChannel(channel)
	if err != nil {
		return err
	}
	identity, ok := c.registry.IdentityOf(connID)
	if !ok {
		return ErrUnauthenticatedCaller
	}
	key := pendingJoin{channel: name, identity: identity}

	unlock := c.lockIdentity(identity)
	if _, ok := c.registry.IdentityOf(connID); !ok {
		unlock()
		return ErrUnauthenticatedCaller
	}
	if c.members.IsMember(name, identity) || !c.markPending(key) {
		unlock()
		return nil
	}
	audience := append(c.members.MembersOf(name), identity)
	unlock()

	log.Debug("realtime: member joining", "channel", name, "identity", identity, "members", len(audience))
	c.notify(ctx, audience, Event{
		Type:      EventMemberJoined,
		Channel:   name,
		Identity:  identity,
		Timestamp: c.clock.Now(),
	})

	unlock = c.lockIdentity(identity)
	c.clearPending(key)
	live := c.registry.ConnectionCount(identity) > 0
	if live {
		c.members.Join(name, identity)
	}
	remaining := c.members.MembersOf(name)
	unlock()

	if !live {
		log.Debug("realtime: join abandoned after disconnect", "channel", name, "identity", identity)
		c.notify(ctx, remaining, Event{
			Type:      EventMemberLeft,
			Channel:   name,
			Identity:  identity,
			Timestamp: c.clock.Now(),
		})
		return ErrUnauthenticatedCaller
	}
	c.metrics.memberships.Add(ctx, 1, outcomeJoined)
	return nil
}

func (c *Coordinator) markPending(key pendingJoin) bool {
	c.pendingMu.Lock()
	defer c.pendingMu.Unlock()
	if _, ok := c.pending[key]; ok {
		return false
	}
	c.pending[key] = struct{}{}
	return true
}

func (c *Coordinator) clearPending(key pendingJoin) {
	c.pendingMu.Lock()
	delete(c.pending, key)
	c.pendingMu.Unlock()
}

// Leave removes the identity owning connID from channel for all of its connections.
// Leaving a channel the identity is not a member of is a no-op. Remaining members
// receive member_left.
func (c *Coordinator) Leave(ctx context.Context, connID, channel string) error {
	name, err := NormalizeChannel(channel)
	if err != nil {
		return err
	}
	identity, ok := c.registry.IdentityOf(connID)
	if !ok {
		return ErrUnauthenticatedCaller
	}

	unlock := c.lockIdentity(identity)
	if _, ok := c.registry.IdentityOf(connID); !ok {
		unlock()
		return ErrUnauthenticatedCaller
	}
	removed := c.members.Leave(name, identity)
	remaining := c.members.MembersOf(name)
	unlock()

	if !removed {
		return nil
	}
	c.metrics.memberships.Add(ctx, 1, outcomeLeft)
	log.Debug("realtime: member left", "channel", name, "identity", identity, "members", len(remaining))
	c.notify(ctx, remaining, Event{
		Type:      EventMemberLeft,
		Channel:   name,
		Identity:  identity,
		Timestamp: c.clock.Now(),
	})
	return nil
}

func (c *Coordinator) notify(ctx context.Context, members []string, evt Event) {
	if c.notifier == nil || len(members) == 0 {
		return
	}
	c.notifier.Notify(ctx, members, evt)
}

// IdentityOf returns the identity owning connID.
func (c *Coordinator) IdentityOf(connID string) (string, bool) {
	return c.registry.IdentityOf(connID)
}

// MembersOf returns a snapshot of the members of channel.
func (c *Coordinator) MembersOf(channel string) []string {
	return c.members.MembersOf(channel)
}

// IsMember reports whether identity is joined to channel.
func (c *Coordinator) IsMember(channel, identity string) bool {
	return c.members.IsMember(channel, identity)
}

// ConnectionsOf returns the live connections of the given identities.
func (c *Coordinator) ConnectionsOf(identities ...string) []Connection {
	return c.registry.ConnectionsOf(identities...)
}
