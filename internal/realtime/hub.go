// internal/realtime/hub.go
package realtime

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/markb/workhub/internal/store"
	"github.com/samber/lo"
)

// Hub owns all realtime state for one process: the connection registry, the
// membership table, the presence coordinator and the broadcaster.
type Hub struct {
	cfg         Config
	registry    *Registry
	members     *Membership
	presence    *Coordinator
	broadcaster *Broadcaster
	store       store.Store
	auth        Authenticator

	mu       sync.Mutex
	sessions map[string]*Session // connID -> Session
}

// HubStats contains realtime statistics
type HubStats struct {
	Connections    int            `json:"connections"`
	Channels       int            `json:"channels"`
	ChannelDetails []ChannelStats `json:"channel_details"`
}

// ChannelStats contains per-channel statistics
type ChannelStats struct {
	Channel string `json:"channel"`
	Members int    `json:"members"`
}

// NewHub creates a hub persisting through st and resolving identities with auth.
func NewHub(st store.Store, auth Authenticator, cfg Config, tel Telemetry) (*Hub, error) {
	cfg = cfg.withDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m, err := newMetrics(tel.MeterProvider)
	if err != nil {
		return nil, err
	}

	clock := NewClock()
	registry := NewRegistry()
	members := NewMembership(cfg.Shards)
	presence := NewCoordinator(registry, members, clock, m)
	broadcaster := NewBroadcaster(presence, st, clock, cfg, m, newTracer(tel.TracerProvider))
	presence.SetNotifier(broadcaster)

	return &Hub{
		cfg:         cfg,
		registry:    registry,
		members:     members,
		presence:    presence,
		broadcaster: broadcaster,
		store:       st,
		auth:        auth,
		sessions:    make(map[string]*Session),
	}, nil
}

// Config returns the effective configuration.
func (h *Hub) Config() Config {
	return h.cfg
}

// Authenticate resolves the identity behind cc. Any failure is reported as
// ErrUnauthenticatedCaller.
func (h *Hub) Authenticate(ctx context.Context, cc ConnContext) (string, error) {
	if h.auth == nil {
		return "", ErrUnauthenticatedCaller
	}
	identity, err := h.auth.ResolveIdentity(ctx, cc)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticatedCaller, err)
	}
	if strings.TrimSpace(identity) == "" {
		return "", ErrUnauthenticatedCaller
	}
	return identity, nil
}

// OpenSession authenticates cc and attaches conn.
func (h *Hub) OpenSession(ctx context.Context, conn Connection, cc ConnContext) (*Session, error) {
	identity, err := h.Authenticate(ctx, cc)
	if err != nil {
		return nil, err
	}
	return h.Attach(conn, identity)
}

// Attach registers conn for an already resolved identity.
func (h *Hub) Attach(conn Connection, identity string) (*Session, error) {
	if err := h.presence.OnConnect(conn, identity); err != nil {
		return nil, err
	}
	s := &Session{hub: h, conn: conn, identity: identity}

	h.mu.Lock()
	h.sessions[conn.ID()] = s
	h.mu.Unlock()
	return s, nil
}

func (h *Hub) forget(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sessions[s.ID()] == s {
		delete(h.sessions, s.ID())
	}
}

// History returns up to limit messages of channel, newest first, skipping offset.
// The limit is capped by the configured history limit.
func (h *Hub) History(ctx context.Context, channel string, limit, offset int) ([]store.Message, error) {
	name, err := NormalizeChannel(channel)
	if err != nil {
		return nil, err
	}
	return h.store.ListRecent(ctx, name, h.PageLimit(limit), max(offset, 0))
}

// PageLimit returns the history page size served for a requested limit: the default
// page for limit <= 0, capped by the configured history limit.
func (h *Hub) PageLimit(limit int) int {
	switch {
	case limit <= 0:
		return min(store.DefaultPageSize, h.cfg.HistoryLimit)
	case limit > h.cfg.HistoryLimit:
		return h.cfg.HistoryLimit
	}
	return limit
}

// Stats returns current realtime statistics
func (h *Hub) Stats() HubStats {
	sizes := h.members.Channels()
	details := lo.MapToSlice(sizes, func(name string, n int) ChannelStats {
		return ChannelStats{Channel: name, Members: n}
	})
	sort.Slice(details, func(i, j int) bool { return details[i].Channel < details[j].Channel })

	return HubStats{
		Connections:    h.registry.Count(),
		Channels:       len(sizes),
		ChannelDetails: details,
	}
}

// CloseAll closes every open session, running disconnect cleanup for each.
func (h *Hub) CloseAll(ctx context.Context) {
	h.mu.Lock()
	sessions := lo.Values(h.sessions)
	h.mu.Unlock()

	for _, s := range sessions {
		if c, ok := s.conn.(interface{ Close() }); ok {
			c.Close()
		}
		s.Close(ctx)
	}
}
