package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/itsvicky-dev/chatio/internal/realtime"
)

// Identity is the authenticated owner of a connection. Token issuance
// happens elsewhere; this service only proves who is on the other end of a
// connection attempt.
type Identity struct {
	UserID   realtime.UserID
	Username string
}

type Service struct {
	secret []byte
}

func NewService(secret []byte) *Service {
	return &Service{secret: secret}
}

// Authenticate validates a bearer token and extracts the identity. Failures
// are fatal to the connection attempt, never to the process.
func (s *Service) Authenticate(tokenString string) (Identity, error) {
	claims, err := s.validateToken(tokenString)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", realtime.ErrAuthenticationFailed, err)
	}

	userID, ok := (*claims)["user_id"].(string)
	if !ok || userID == "" {
		return Identity{}, fmt.Errorf("%w: missing user_id claim", realtime.ErrAuthenticationFailed)
	}

	identity := Identity{UserID: realtime.UserID(userID)}
	if username, ok := (*claims)["username"].(string); ok {
		identity.Username = username
	}
	return identity, nil
}

func (s *Service) validateToken(tokenString string) (*jwt.MapClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}
	return nil, fmt.Errorf("invalid token")
}
