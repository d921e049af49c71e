// internal/auth/jwt.go
package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Roles carried in the role claim.
const (
	RoleParticipant = "participant"
	RoleService     = "service"
)

// DefaultTokenTTL is the lifetime of participant tokens minted without an explicit ttl.
const DefaultTokenTTL = time.Hour

const issuer = "workhub"

var (
	ErrMissingToken = errors.New("missing token")
	ErrInvalidToken = errors.New("invalid token")
	ErrForbidden    = errors.New("token role not allowed")
)

// Claims are the JWT claims workhub issues and accepts. The subject is the
// participant identity.
type Claims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service mints and validates HS256 tokens.
type Service struct {
	jwtSecret string
	now       func() time.Time
}

func NewService(jwtSecret string) *Service {
	return &Service{jwtSecret: jwtSecret, now: time.Now}
}

// IssueToken mints a participant token for identity. A ttl of zero uses
// DefaultTokenTTL; a negative ttl mints a token without expiry.
func (s *Service) IssueToken(identity string, ttl time.Duration) (string, error) {
	return s.issue(identity, RoleParticipant, ttl)
}

// IssueServiceToken mints a token for operators and tooling. It carries no expiry.
func (s *Service) IssueServiceToken(name string) (string, error) {
	return s.issue(name, RoleService, -1)
}

func (s *Service) issue(subject, role string, ttl time.Duration) (string, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return "", fmt.Errorf("%w: empty subject", ErrInvalidToken)
	}
	if ttl == 0 {
		ttl = DefaultTokenTTL
	}

	now := s.now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:       uuid.NewString(),
			Issuer:   issuer,
			Subject:  subject,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if ttl > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(ttl))
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(s.jwtSecret))
}

// ValidateToken parses and verifies tokenString.
func (s *Service) ValidateToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, ErrMissingToken
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	if !token.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, fmt.Errorf("%w: missing subject", ErrInvalidToken)
	}
	return claims, nil
}

// IdentityFromToken validates a participant or service token and returns its subject.
func (s *Service) IdentityFromToken(tokenString string) (string, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// RequireRole validates tokenString and checks its role claim.
func (s *Service) RequireRole(tokenString string, roles ...string) (*Claims, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	for _, r := range roles {
		if claims.Role == r {
			return claims, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrForbidden, claims.Role)
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}
