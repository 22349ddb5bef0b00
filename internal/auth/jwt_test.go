package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"collabboard/internal/auth"
)

const secret = "test-secret"

func sign(t *testing.T, claims jwt.MapClaims, key string) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func TestJWTResolver_IssueRoundTrip(t *testing.T) {
	r := auth.NewJWTResolver(secret)
	token, err := r.Issue("alice", time.Hour)
	require.NoError(t, err)

	userID, err := r.IdentityFor(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", userID)
}

func TestJWTResolver_ClaimShapes(t *testing.T) {
	r := auth.NewJWTResolver(secret)

	id, err := r.IdentityFor(sign(t, jwt.MapClaims{"user_id": float64(42)}, secret))
	require.NoError(t, err)
	assert.Equal(t, "42", id, "数字 user_id 转为十进制字符串")

	id, err = r.IdentityFor(sign(t, jwt.MapClaims{"sub": "bob"}, secret))
	require.NoError(t, err)
	assert.Equal(t, "bob", id)

	_, err = r.IdentityFor(sign(t, jwt.MapClaims{"user_id": 1.5}, secret))
	assert.ErrorIs(t, err, auth.ErrMissingSubject)
}

func TestJWTResolver_Rejects(t *testing.T) {
	r := auth.NewJWTResolver(secret)

	_, err := r.IdentityFor("")
	assert.ErrorIs(t, err, auth.ErrMissingToken)

	_, err = r.IdentityFor("not-a-jwt")
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	_, err = r.IdentityFor(sign(t, jwt.MapClaims{"user_id": "alice"}, "other-secret"))
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	expired := sign(t, jwt.MapClaims{"user_id": "alice", "exp": time.Now().Add(-time.Minute).Unix()}, secret)
	_, err = r.IdentityFor(expired)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "alice"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = r.IdentityFor(none)
	assert.ErrorIs(t, err, auth.ErrInvalidToken)
}

func TestNewJWTResolver_PanicsOnEmptySecret(t *testing.T) {
	assert.Panics(t, func() { auth.NewJWTResolver("") })
}
