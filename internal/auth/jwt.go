package auth

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sbi-steve/backend/internal/models"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
)

// Claims identify a dashboard user by Discord ID. Guilds limits which guilds a
// viewer may read; admins see every guild.
type Claims struct {
	UserID string      `json:"user_id"`
	Role   models.Role `json:"role"`
	Guilds []string    `json:"guilds,omitempty"`
	jwt.RegisteredClaims
}

// CanAccessGuild reports whether the token grants access to guildID.
func (c *Claims) CanAccessGuild(guildID string) bool {
	if c.Role == models.RoleAdmin {
		return true
	}
	return slices.Contains(c.Guilds, guildID)
}

// JWTService handles token generation and validation.
type JWTService struct {
	secret      []byte
	expireHours int
	now         func() time.Time
}

// NewJWTService creates a JWT service.
func NewJWTService(secret string, expireHours int) *JWTService {
	if expireHours <= 0 {
		expireHours = 24
	}
	return &JWTService{
		secret:      []byte(secret),
		expireHours: expireHours,
		now:         time.Now,
	}
}

// Generate creates a new JWT for a Discord user.
func (s *JWTService) Generate(userID string, role models.Role, guilds []string) (string, error) {
	if !role.Valid() {
		return "", ErrInvalidRole
	}
	now := s.now()
	claims := Claims{
		UserID: userID,
		Role:   role,
		Guilds: guilds,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Duration(s.expireHours) * time.Hour)),
			IssuedAt:  jwt.NewNumericDate(now),
			ID:        uuid.New().String(),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// Validate parses and validates a JWT, returning claims or error.
func (s *JWTService) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || !claims.Role.Valid() {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
