// internal/server/server.go
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/markb/workhub/internal/auth"
	"github.com/markb/workhub/internal/log"
	"github.com/markb/workhub/internal/observability"
	"github.com/markb/workhub/internal/realtime"
	"golang.org/x/crypto/acme/autocert"
)

// Config holds HTTP server configuration.
type Config struct {
	Addr string `env:"WORKHUB_ADDR" validate:"required"`

	// Comma separated origins allowed by CORS. Empty allows all.
	CORSOrigins string `env:"WORKHUB_CORS_ORIGINS"`

	ReadHeaderTimeout time.Duration `env:"WORKHUB_READ_HEADER_TIMEOUT" validate:"gt=0"`
}

// DefaultConfig returns the default server configuration.
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type Server struct {
	cfg         Config
	router      *chi.Mux
	authService *auth.Service
	realtime    *realtime.Service
	telemetry   *observability.Telemetry

	// HTTP server for graceful shutdown
	httpServer *http.Server

	// HTTPS fields
	httpsServer  *http.Server
	httpRedirect *http.Server
	autocertMgr  *autocert.Manager
}

// New creates a server routing to rt. A nil telemetry disables instrumentation.
func New(cfg Config, authService *auth.Service, rt *realtime.Service, tel *observability.Telemetry) *Server {
	s := &Server{
		cfg:         cfg,
		router:      chi.NewRouter(),
		authService: authService,
		realtime:    rt,
		telemetry:   tel,
	}
	s.setupRoutes()
	return s
}

// Authenticator resolves realtime identities from participant tokens.
func Authenticator(authService *auth.Service) realtime.Authenticator {
	return realtime.AuthenticatorFunc(func(_ context.Context, cc realtime.ConnContext) (string, error) {
		return authService.IdentityFromToken(cc.Token)
	})
}

func (s *Server) setupRoutes() {
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   corsOrigins(s.cfg.CORSOrigins),
		AllowedMethods:   []string{"GET", "OPTIONS", "HEAD"},
		AllowedHeaders:   []string{"Authorization", "Content-Type", log.RequestIDHeader},
		ExposedHeaders:   []string{log.RequestIDHeader},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	s.router.Use(log.RequestLogger)
	s.router.Use(middleware.Recoverer)
	if s.telemetry != nil {
		s.router.Use(observability.HTTPMiddleware(s.telemetry))
	}

	s.router.Get("/health", s.handleHealth)

	s.router.Get("/realtime/v1/websocket", s.realtime.HandleWebSocket)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.SetHeader("Content-Type", "application/json"))

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleParticipant, auth.RoleService))
			r.Get("/channels/{channel}/messages", s.handleHistory)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireRole(auth.RoleService))
			r.Get("/realtime/stats", s.handleStats)
			r.Get("/admin/logs", s.handleLogs)
		})
	})
}

func corsOrigins(raw string) []string {
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	if len(origins) == 0 {
		return []string{"*"}
	}
	return origins
}

func (s *Server) Router() *chi.Mux {
	return s.router
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) newHTTPServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: s.cfg.ReadHeaderTimeout,
	}
}

// ListenAndServe serves plain HTTP on the configured address.
func (s *Server) ListenAndServe() error {
	s.httpServer = s.newHTTPServer(s.cfg.Addr, s.router)
	return s.httpServer.ListenAndServe()
}

// ListenAndServeTLS serves HTTPS with Let's Encrypt certificates for cfg.Domain and
// redirects plain HTTP on cfg.HTTPAddr, where ACME challenges are also answered.
func (s *Server) ListenAndServeTLS(cfg HTTPSConfig) error {
	if err := ValidateDomain(cfg.Domain); err != nil {
		return err
	}
	s.autocertMgr = NewAutocertManager(cfg.Domain, cfg.CertDir)

	s.httpRedirect = s.newHTTPServer(cfg.HTTPAddr, s.autocertMgr.HTTPHandler(HTTPRedirectHandler(cfg.Domain)))
	go func() {
		if err := s.httpRedirect.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server: http redirect listener failed", "addr", cfg.HTTPAddr, "error", err.Error())
		}
	}()

	s.httpsServer = s.newHTTPServer(s.cfg.Addr, s.router)
	s.httpsServer.TLSConfig = NewTLSConfig(s.autocertMgr)
	return s.httpsServer.ListenAndServeTLS("", "")
}

// Shutdown stops accepting requests, waits for in-flight ones and then closes every
// realtime session so disconnect cleanup runs.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error

	for name, srv := range map[string]*http.Server{
		"HTTPS server":         s.httpsServer,
		"HTTP redirect server": s.httpRedirect,
		"HTTP server":          s.httpServer,
	} {
		if srv == nil {
			continue
		}
		if err := srv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}

	s.realtime.Shutdown(ctx)

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}

// RealtimeService returns the realtime service.
func (s *Server) RealtimeService() *realtime.Service {
	return s.realtime
}
