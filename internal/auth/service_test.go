package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/itsvicky-dev/chatio/internal/realtime"
)

func signToken(t *testing.T, secret []byte, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func TestAuthenticate_ValidToken(t *testing.T) {
	req := require.New(t)
	secret := []byte("test-secret")
	svc := NewService(secret)

	token := signToken(t, secret, jwt.MapClaims{
		"user_id":  "u-42",
		"username": "alice",
		"exp":      time.Now().Add(time.Hour).Unix(),
	})

	identity, err := svc.Authenticate(token)
	req.NoError(err)
	req.Equal(realtime.UserID("u-42"), identity.UserID)
	req.Equal("alice", identity.Username)
}

func TestAuthenticate_Rejections(t *testing.T) {
	req := require.New(t)
	secret := []byte("test-secret")
	svc := NewService(secret)

	// Wrong secret.
	token := signToken(t, []byte("other-secret"), jwt.MapClaims{"user_id": "u-42"})
	_, err := svc.Authenticate(token)
	req.ErrorIs(err, realtime.ErrAuthenticationFailed)

	// Expired.
	token = signToken(t, secret, jwt.MapClaims{
		"user_id": "u-42",
		"exp":     time.Now().Add(-time.Hour).Unix(),
	})
	_, err = svc.Authenticate(token)
	req.ErrorIs(err, realtime.ErrAuthenticationFailed)

	// Missing identity claim.
	token = signToken(t, secret, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()})
	_, err = svc.Authenticate(token)
	req.ErrorIs(err, realtime.ErrAuthenticationFailed)

	// Garbage.
	_, err = svc.Authenticate("not-a-token")
	req.ErrorIs(err, realtime.ErrAuthenticationFailed)
}
