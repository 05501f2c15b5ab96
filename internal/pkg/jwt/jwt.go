// internal/pkg/jwt/jwt.go
package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

const (
	TokenTypeAccess = "access"
	TokenTypeAdmin  = "admin"
)

// Claims represents JWT claims for players and back-office staff.
// Tokens are issued by the identity provider; this service only
// needs to validate them, generation exists for tooling and tests.
type Claims struct {
	UserID uuid.UUID `json:"user_id"`
	Role   string    `json:"role"`
	Type   string    `json:"type"`
	jwt.RegisteredClaims
}

// Service handles JWT operations
type Service struct {
	secret []byte
	ttl    time.Duration
}

// NewService creates JWT service
func NewService(secret string, ttl time.Duration) *Service {
	return &Service{secret: []byte(secret), ttl: ttl}
}

// GenerateAccessToken generates a player access token
func (s *Service) GenerateAccessToken(userID uuid.UUID, role string) (string, error) {
	return s.generate(userID, role, TokenTypeAccess)
}

// GenerateAdminToken generates a back-office token carrying the staff role
func (s *Service) GenerateAdminToken(adminID uuid.UUID, role string) (string, error) {
	return s.generate(adminID, role, TokenTypeAdmin)
}

func (s *Service) generate(id uuid.UUID, role, tokenType string) (string, error) {
	now := time.Now()
	claims := Claims{
		UserID: id,
		Role:   role,
		Type:   tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ValidateAccessToken validates and parses a player access token
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, TokenTypeAccess)
}

// ValidateAdminToken validates and parses a back-office token
func (s *Service) ValidateAdminToken(tokenString string) (*Claims, error) {
	return s.parse(tokenString, TokenTypeAdmin)
}

func (s *Service) parse(tokenString, tokenType string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.Type != tokenType || claims.UserID == uuid.Nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func (s *Service) GetTTL() time.Duration { return s.ttl }
