package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/nimbusdesk/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carries the authenticated-principal descriptor issued by the
// session layer: principal id, kind, and role.
type Claims struct {
	PrincipalID uuid.UUID `json:"principal_id"`
	Kind        string    `json:"kind"`
	Role        string    `json:"role"`
	jwt.RegisteredClaims
}

// Descriptor converts validated claims to a principal descriptor.
func (c *Claims) Descriptor() models.Descriptor {
	return models.Descriptor{
		ID:   c.PrincipalID,
		Kind: models.PrincipalKind(c.Kind),
		Role: models.Role(c.Role),
	}
}

// JWTService validates session tokens. Token issuance belongs to the
// session layer; Generate exists for tests and local tooling.
type JWTService struct {
	secret      []byte
	expireHours int
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
	}
}

// Generate creates a token carrying the given principal descriptor.
func (s *JWTService) Generate(d models.Descriptor) (string, error) {
	claims := Claims{
		PrincipalID: d.ID,
		Kind:        string(d.Kind),
		Role:        string(d.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a token, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
