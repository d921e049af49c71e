// internal/server/middleware.go
package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/markb/workhub/internal/auth"
)

type contextKey string

const ClaimsContextKey contextKey = "claims"

// requireRole rejects requests without a valid bearer token carrying one of roles.
func (s *Server) requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := auth.BearerToken(r.Header.Get("Authorization"))
			if token == "" {
				s.writeError(w, http.StatusUnauthorized, "no_authorization", "Authorization bearer token required")
				return
			}

			claims, err := s.authService.RequireRole(token, roles...)
			switch {
			case errors.Is(err, auth.ErrForbidden):
				s.writeError(w, http.StatusForbidden, "forbidden", "Token role not allowed")
				return
			case err != nil:
				s.writeError(w, http.StatusUnauthorized, "invalid_token", "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaimsFromContext returns the claims stored by requireRole.
func GetClaimsFromContext(r *http.Request) *auth.Claims {
	claims, _ := r.Context().Value(ClaimsContextKey).(*auth.Claims)
	return claims
}
