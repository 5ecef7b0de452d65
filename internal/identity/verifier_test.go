package identity

import (
	"context"
	"strconv"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"realtime-service/internal/models"
)

func TestVerifyRoundTrip(t *testing.T) {
	v := NewJWTVerifier("test-secret", "realtime-service")

	token, err := v.Sign(42, time.Minute)
	require.NoError(t, err)

	userID, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	issuer := NewJWTVerifier("secret-a", "realtime-service")
	verifier := NewJWTVerifier("secret-b", "realtime-service")

	token, err := issuer.Sign(42, time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
}

func TestVerifyRejectsWrongIssuer(t *testing.T) {
	issuer := NewJWTVerifier("test-secret", "someone-else")
	verifier := NewJWTVerifier("test-secret", "realtime-service")

	token, err := issuer.Sign(42, time.Minute)
	require.NoError(t, err)

	_, err = verifier.Verify(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
}

func TestVerifyRejectsExpiredToken(t *testing.T) {
	v := NewJWTVerifier("test-secret", "realtime-service")

	token, err := v.Sign(42, -time.Minute)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
}

func TestVerifyRejectsGarbage(t *testing.T) {
	v := NewJWTVerifier("test-secret", "realtime-service")

	for _, token := range []string{"", "not-a-jwt", "a.b.c"} {
		_, err := v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
	}
}

func TestVerifyRejectsNonNumericSubject(t *testing.T) {
	v := NewJWTVerifier("test-secret", "realtime-service")

	for _, sub := range []string{"alice", "0", "-3", ""} {
		claims := jwt.MapClaims{
			"sub": sub,
			"iss": "realtime-service",
			"exp": time.Now().Add(time.Minute).Unix(),
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
		require.NoError(t, err)

		_, err = v.Verify(context.Background(), token)
		assert.ErrorIs(t, err, models.ErrAuthenticationFailed, "sub=%q", sub)
	}
}

func TestVerifyRejectsUnsignedToken(t *testing.T) {
	v := NewJWTVerifier("test-secret", "realtime-service")

	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(42, 10),
		"iss": "realtime-service",
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = v.Verify(context.Background(), token)
	assert.ErrorIs(t, err, models.ErrAuthenticationFailed)
}
