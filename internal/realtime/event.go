// internal/realtime/event.go
package realtime

import (
	"context"
	"sync/atomic"
	"time"
)

// EventType names an outbound channel event.
type EventType string

const (
	EventMemberJoined    EventType = "member_joined"
	EventMemberLeft      EventType = "member_left"
	EventMessageReceived EventType = "message_received"
)

// Event is pushed to every member connection of a channel.
type Event struct {
	Type      EventType
	Channel   string
	Identity  string // joiner, leaver or sender
	MessageID string
	Body      string
	Timestamp time.Time
}

// Connection is the transport side of a connection handle. Implementations must be
// safe for concurrent Deliver calls and must honour ctx cancellation.
type Connection interface {
	ID() string
	Deliver(ctx context.Context, evt Event) error
}

// Clock hands out strictly increasing timestamps so that messages created by one
// process are ordered even when the wall clock stalls or steps back.
type Clock struct {
	last atomic.Int64
	now  func() time.Time
}

// NewClock returns a clock backed by time.Now.
func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// Now returns a UTC timestamp greater than any previously returned one.
func (c *Clock) Now() time.Time {
	for {
		prev := c.last.Load()
		next := c.now().UnixNano()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return time.Unix(0, next).UTC()
		}
	}
}
