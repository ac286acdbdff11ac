package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJWTManager_RoundTrip(t *testing.T) {
	m := NewJWTManager(JWTConfig{Secret: "test-secret", Issuer: "reconciler"})

	token, expiresAt, err := m.IssueToken("ops@paylink", []string{"operator"}, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	claims, err := m.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "ops@paylink", claims.Subject)
	assert.True(t, claims.HasRole("operator"))
	assert.False(t, claims.HasRole("admin"))
}

func TestJWTManager_Rejects(t *testing.T) {
	m := NewJWTManager(JWTConfig{Secret: "test-secret"})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewJWTManager(JWTConfig{Secret: "other-secret"})
		token, _, err := other.IssueToken("ops", nil, time.Hour)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("expired", func(t *testing.T) {
		issuer := NewJWTManager(JWTConfig{Secret: "test-secret"})
		issuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
		token, _, err := issuer.IssueToken("ops", nil, time.Hour)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		other := NewJWTManager(JWTConfig{Secret: "test-secret", Issuer: "someone-else"})
		token, _, err := other.IssueToken("ops", nil, time.Hour)
		require.NoError(t, err)

		_, err = m.ValidateToken(token)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("none algorithm", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    "reconciler",
				Subject:   "ops",
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = m.ValidateToken(signed)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := m.ValidateToken("not-a-token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}
