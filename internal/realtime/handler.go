// internal/realtime/handler.go
package realtime

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/markb/workhub/internal/log"
)

// HandleWebSocket authenticates the request and upgrades it to a realtime connection.
// Unauthenticated requests are rejected with 401 before the upgrade.
func (s *Service) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	cc := ConnContext{
		Token:      requestToken(r),
		RemoteAddr: r.RemoteAddr,
		UserAgent:  r.UserAgent(),
	}
	identity, err := s.hub.Authenticate(r.Context(), cc)
	if err != nil {
		log.Debug("realtime: rejected connection", "remote_addr", r.RemoteAddr, "error", err.Error())
		http.Error(w, "unauthenticated", http.StatusUnauthorized)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error("realtime: upgrade failed", "error", err.Error())
		return
	}

	conn := newConn(ws, s.hub)
	session, err := s.hub.Attach(conn, identity)
	if err != nil {
		log.Error("realtime: attach failed", "identity", identity, "error", err.Error())
		ws.Close()
		return
	}
	conn.session = session
	log.Debug("realtime: new connection", "conn_id", conn.ID(), "identity", identity)

	go conn.WritePump()
	go conn.ReadPump()
}

// requestToken returns the access_token query parameter or the bearer token.
func requestToken(r *http.Request) string {
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token
	}
	if token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}

// originChecker allows requests without an Origin header and requests whose origin
// is in the configured list. An empty list or "*" allows every origin.
func originChecker(allowed string) func(*http.Request) bool {
	origins, allowAll := normalizeOrigins(strings.Split(allowed, ","))
	if allowAll || len(origins) == 0 {
		return func(*http.Request) bool { return true }
	}
	set := make(map[string]struct{}, len(origins))
	for _, o := range origins {
		set[o] = struct{}{}
	}
	return func(r *http.Request) bool {
		header := r.Header.Get("Origin")
		if header == "" {
			return true
		}
		origin, ok := normalizeOrigin(header)
		if ok {
			if _, found := set[origin]; found {
				return true
			}
		}
		log.Warn("realtime: blocked websocket from disallowed origin", "origin", header)
		return false
	}
}

func normalizeOrigins(origins []string) ([]string, bool) {
	normalized := make([]string, 0, len(origins))
	allowAll := false
	for _, origin := range origins {
		trimmed := strings.TrimSpace(origin)
		switch trimmed {
		case "":
			continue
		case "*":
			allowAll = true
			continue
		}
		o, ok := normalizeOrigin(trimmed)
		if !ok {
			log.Warn("realtime: ignoring invalid origin", "origin", origin)
			continue
		}
		normalized = append(normalized, o)
	}
	return normalized, allowAll
}

func normalizeOrigin(origin string) (string, bool) {
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return "", false
	}
	return strings.ToLower(parsed.Scheme) + "://" + strings.ToLower(parsed.Host), true
}

func newUpgrader(cfg Config) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(cfg.AllowedOrigins),
	}
}
