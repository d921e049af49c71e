// internal/realtime/realtime.go
package realtime

import (
	"context"

	"github.com/gorilla/websocket"
	"github.com/markb/workhub/internal/store"
)

// Service provides realtime functionality
type Service struct {
	hub      *Hub
	upgrader websocket.Upgrader
}

// NewService creates a new realtime service
func NewService(st store.Store, auth Authenticator, cfg Config, tel Telemetry) (*Service, error) {
	hub, err := NewHub(st, auth, cfg, tel)
	if err != nil {
		return nil, err
	}
	return &Service{
		hub:      hub,
		upgrader: newUpgrader(hub.cfg),
	}, nil
}

// Hub returns the connection hub
func (s *Service) Hub() *Hub {
	return s.hub
}

// Stats returns realtime statistics
func (s *Service) Stats() HubStats {
	return s.hub.Stats()
}

// History returns a page of channel history, newest first.
func (s *Service) History(ctx context.Context, channel string, limit, offset int) ([]store.Message, error) {
	return s.hub.History(ctx, channel, limit, offset)
}

// PageLimit returns the history page size served for a requested limit.
func (s *Service) PageLimit(limit int) int {
	return s.hub.PageLimit(limit)
}

// Shutdown closes every websocket and runs disconnect cleanup.
func (s *Service) Shutdown(ctx context.Context) {
	s.hub.CloseAll(ctx)
}
