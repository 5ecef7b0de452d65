package identity

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"realtime-service/internal/models"
)

// Verifier resolves a credential token to a verified user id. Issuance is
// an external concern; this service only validates.
type Verifier interface {
	Verify(ctx context.Context, token string) (int64, error)
}

// JWTVerifier validates HS256 tokens whose sub claim is the numeric user id.
type JWTVerifier struct {
	secret []byte
	issuer string
}

// NewJWTVerifier constructs a JWTVerifier.
func NewJWTVerifier(secret, issuer string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret), issuer: issuer}
}

// Verify parses and validates the token and extracts the user id.
func (v *JWTVerifier) Verify(_ context.Context, tokenStr string) (int64, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	}, jwt.WithIssuer(v.issuer))
	if err != nil || !token.Valid {
		return 0, models.ErrAuthenticationFailed
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, models.ErrAuthenticationFailed
	}
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return 0, models.ErrAuthenticationFailed
	}
	userID, err := strconv.ParseInt(sub, 10, 64)
	if err != nil || userID <= 0 {
		return 0, models.ErrAuthenticationFailed
	}
	return userID, nil
}

// Sign issues a token for a user id. Used by tests and local tooling; the
// production issuer lives in the identity service.
func (v *JWTVerifier) Sign(userID int64, ttl time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"sub": strconv.FormatInt(userID, 10),
		"iat": time.Now().Unix(),
		"exp": time.Now().Add(ttl).Unix(),
		"iss": v.issuer,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}
