package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/umar/staychat/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

type Claims struct {
	UserID       string      `json:"user_id"`
	Name         string      `json:"name"`
	ProfilePhoto string      `json:"profile_photo,omitempty"`
	Role         models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Verifier is the AuthVerify collaborator: it turns a bearer token into a
// verified identity or fails with models.ErrUnauthenticated.
type Verifier interface {
	Verify(token string) (models.User, error)
}

type JWTVerifier struct {
	secret []byte
}

func NewJWTVerifier(secret string) *JWTVerifier {
	return &JWTVerifier{secret: []byte(secret)}
}

func (v *JWTVerifier) Verify(token string) (models.User, error) {
	claims, err := ValidateToken(token, v.secret)
	if err != nil {
		return models.User{}, fmt.Errorf("%w: %v", models.ErrUnauthenticated, err)
	}
	return models.User{
		ID:           claims.UserID,
		Name:         claims.Name,
		ProfilePhoto: claims.ProfilePhoto,
		Role:         claims.Role,
	}, nil
}

func GenerateToken(u models.User, secret []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID:       u.ID,
		Name:         u.Name,
		ProfilePhoto: u.ProfilePhoto,
		Role:         u.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func ValidateToken(tokenString string, secret []byte) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if strings.TrimSpace(claims.UserID) == "" || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
