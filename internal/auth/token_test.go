package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threattrace/threattrace/internal/config"
)

const testSecret = "test-secret-key"

func testTokenService(t *testing.T) *TokenService {
	t.Helper()
	svc, err := NewTokenService(config.AuthConfig{
		JWTSecret: testSecret,
		Issuer:    "threattrace",
	})
	require.NoError(t, err)
	return svc
}

func signToken(t *testing.T, secret string, claims *Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(now time.Time) *Claims {
	return &Claims{
		Role: "technical",
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "user-1",
			Issuer:    "threattrace",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestNewTokenService(t *testing.T) {
	t.Run("requires a secret", func(t *testing.T) {
		_, err := NewTokenService(config.AuthConfig{})
		assert.ErrorIs(t, err, ErrNoSecret)
	})
}

func TestTokenService_ValidateAccessToken(t *testing.T) {
	svc := testTokenService(t)
	now := time.Now()

	t.Run("valid token", func(t *testing.T) {
		token := signToken(t, testSecret, validClaims(now))
		claims, err := svc.ValidateAccessToken(token)
		require.NoError(t, err)
		assert.Equal(t, "user-1", claims.Subject)
		assert.Equal(t, "technical", claims.Role)
		assert.WithinDuration(t, now, claims.IssuedTime(), time.Second)
	})

	t.Run("wrong secret", func(t *testing.T) {
		token := signToken(t, "other-secret", validClaims(now))
		_, err := svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired token", func(t *testing.T) {
		claims := validClaims(now.Add(-2 * time.Hour))
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(-time.Hour))
		token := signToken(t, testSecret, claims)
		_, err := svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing expiry is rejected", func(t *testing.T) {
		claims := validClaims(now)
		claims.ExpiresAt = nil
		token := signToken(t, testSecret, claims)
		_, err := svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		claims := validClaims(now)
		claims.Issuer = "somebody-else"
		token := signToken(t, testSecret, claims)
		_, err := svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("missing subject", func(t *testing.T) {
		claims := validClaims(now)
		claims.Subject = ""
		token := signToken(t, testSecret, claims)
		_, err := svc.ValidateAccessToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage token", func(t *testing.T) {
		_, err := svc.ValidateAccessToken("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestClaims_IssuedTime(t *testing.T) {
	t.Run("absent issue time is zero", func(t *testing.T) {
		c := &Claims{}
		assert.True(t, c.IssuedTime().IsZero())
	})
}
