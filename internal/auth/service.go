package auth

import (
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"meetup-app/internal/config"
)

// Identity is who the client is acting as. The token itself is issued by
// the auth collaborator; this package only reads it.
type Identity struct {
	UserID   string
	Nickname string
}

type Service struct {
	cfg *config.Config
}

func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) ValidateToken(tokenString string) (*jwt.MapClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.Auth.JWTSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// IdentityFromToken extracts the acting user from a collaborator-issued JWT.
func (s *Service) IdentityFromToken(tokenString string) (*Identity, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}

	userID, ok := (*claims)["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("invalid user ID in token")
	}

	nickname, _ := (*claims)["nickname"].(string)

	return &Identity{UserID: userID, Nickname: nickname}, nil
}
