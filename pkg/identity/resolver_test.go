package identity_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/marketpulse/pkg/identity"
)

const testSecret = "test-secret-with-enough-entropy-1234"

func newResolver(t *testing.T) *identity.Resolver {
	t.Helper()
	r, err := identity.NewResolver(identity.Config{Secret: testSecret, TTL: time.Hour})
	require.NoError(t, err)
	return r
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.Claims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestNewResolver(t *testing.T) {
	t.Parallel()

	_, err := identity.NewResolver(identity.Config{})
	assert.ErrorIs(t, err, identity.ErrMissingSigningKey)
}

func TestResolver_Resolve(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	r := newResolver(t)

	t.Run("issued token round-trips", func(t *testing.T) {
		t.Parallel()
		token, err := r.Issue(42)
		require.NoError(t, err)

		id, err := r.Resolve(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id)
	})

	t.Run("subject fallback", func(t *testing.T) {
		t.Parallel()
		token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			Subject:   "7",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		id, err := r.Resolve(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, int64(7), id)
	})

	t.Run("empty token", func(t *testing.T) {
		t.Parallel()
		_, err := r.Resolve(ctx, "")
		assert.ErrorIs(t, err, identity.ErrMissingToken)
	})

	t.Run("garbage", func(t *testing.T) {
		t.Parallel()
		_, err := r.Resolve(ctx, "not-a-token")
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("wrong key", func(t *testing.T) {
		t.Parallel()
		token := sign(t, jwt.SigningMethodHS256, []byte("other-secret"), identity.Claims{
			UserID:           1,
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
		})
		_, err := r.Resolve(ctx, token)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		t.Parallel()
		token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), identity.Claims{
			UserID:           1,
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))},
		})
		_, err := r.Resolve(ctx, token)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
		assert.ErrorIs(t, err, jwt.ErrTokenExpired)
	})

	t.Run("missing expiry", func(t *testing.T) {
		t.Parallel()
		token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), identity.Claims{UserID: 1})
		_, err := r.Resolve(ctx, token)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("other algorithm", func(t *testing.T) {
		t.Parallel()
		token := sign(t, jwt.SigningMethodHS512, []byte(testSecret), identity.Claims{
			UserID:           1,
			RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute))},
		})
		_, err := r.Resolve(ctx, token)
		assert.ErrorIs(t, err, identity.ErrInvalidToken)
	})

	t.Run("no user id", func(t *testing.T) {
		t.Parallel()
		token := sign(t, jwt.SigningMethodHS256, []byte(testSecret), jwt.RegisteredClaims{
			Subject:   "alice",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		})
		_, err := r.Resolve(ctx, token)
		assert.ErrorIs(t, err, identity.ErrInvalidUser)
	})
}
