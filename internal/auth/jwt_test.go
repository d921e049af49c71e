// internal/auth/jwt_test.go
package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret-key-min-32-characters"

func TestIssueAndValidateToken(t *testing.T) {
	service := NewService(testSecret)

	tokenString, err := service.IssueToken("alice", time.Minute)
	require.NoError(t, err)

	claims, err := service.ValidateToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Subject)
	assert.Equal(t, RoleParticipant, claims.Role)
	assert.Equal(t, "workhub", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	require.NotNil(t, claims.ExpiresAt)

	identity, err := service.IdentityFromToken(tokenString)
	require.NoError(t, err)
	assert.Equal(t, "alice", identity)
}

func TestValidateTokenRejects(t *testing.T) {
	service := NewService(testSecret)

	_, err := service.ValidateToken("")
	assert.ErrorIs(t, err, ErrMissingToken)

	_, err = service.ValidateToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidToken)

	other, err := NewService("another-secret-another-secret-xx").IssueToken("alice", time.Minute)
	require.NoError(t, err)
	_, err = service.ValidateToken(other)
	assert.ErrorIs(t, err, ErrInvalidToken, "wrong signature")

	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "alice", "iss": "workhub"}).
		SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = service.ValidateToken(noneToken)
	assert.ErrorIs(t, err, ErrInvalidToken, "unsigned tokens are refused")

	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "alice", "iss": "elsewhere"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = service.ValidateToken(foreign)
	assert.ErrorIs(t, err, ErrInvalidToken, "foreign issuer")

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"iss": "workhub"}).
		SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = service.ValidateToken(noSubject)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestTokenExpiry(t *testing.T) {
	service := NewService(testSecret)
	now := time.Now()
	service.now = func() time.Time { return now }

	tokenString, err := service.IssueToken("alice", 0)
	require.NoError(t, err)

	service.now = func() time.Time { return now.Add(DefaultTokenTTL - time.Minute) }
	_, err = service.ValidateToken(tokenString)
	require.NoError(t, err)

	service.now = func() time.Time { return now.Add(DefaultTokenTTL + time.Minute) }
	_, err = service.ValidateToken(tokenString)
	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.ErrorIs(t, err, jwt.ErrTokenExpired)
}

func TestIssueTokenRequiresSubject(t *testing.T) {
	_, err := NewService(testSecret).IssueToken("  ", time.Minute)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestServiceTokenRole(t *testing.T) {
	service := NewService(testSecret)

	svcToken, err := service.IssueServiceToken("ops")
	require.NoError(t, err)
	claims, err := service.RequireRole(svcToken, RoleService)
	require.NoError(t, err)
	assert.Nil(t, claims.ExpiresAt, "service tokens do not expire")

	userToken, err := service.IssueToken("alice", time.Minute)
	require.NoError(t, err)
	_, err = service.RequireRole(userToken, RoleService)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = service.RequireRole(userToken, RoleParticipant, RoleService)
	assert.NoError(t, err)
}

func TestBearerToken(t *testing.T) {
	assert.Equal(t, "abc", BearerToken("Bearer abc"))
	assert.Equal(t, "", BearerToken("Basic abc"))
	assert.Equal(t, "", BearerToken(""))
}
