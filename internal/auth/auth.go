package auth

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/xtrntr/resale/internal/clock"
	"github.com/xtrntr/resale/internal/models"
)

// ErrInvalidToken is returned for any token that fails verification
var ErrInvalidToken = errors.New("invalid token")

// DefaultTTL is the lifetime of issued tokens
const DefaultTTL = 24 * time.Hour

// Claims identify the caller of an authenticated request
type Claims struct {
	UserID int64       `json:"user_id"`
	Role   models.Role `json:"role"`
	jwt.RegisteredClaims
}

// Admin reports whether the claims carry the admin role
func (c Claims) Admin() bool {
	return c.Role == models.RoleAdmin
}

// TokenService issues and verifies HS256 tokens
type TokenService struct {
	secret []byte
	ttl    time.Duration
	clock  clock.Clock
}

// NewTokenService creates a token service signing with secret
func NewTokenService(secret string, ttl time.Duration, c clock.Clock) *TokenService {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if c == nil {
		c = clock.NewSystem()
	}
	return &TokenService{secret: []byte(secret), ttl: ttl, clock: c}
}

// Issue signs a token for user
func (s *TokenService) Issue(user models.User) (string, error) {
	now := s.clock.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: user.ID,
		Role:   user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(user.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	})
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse verifies a token and returns its claims
func (s *TokenService) Parse(tokenString string) (Claims, error) {
	var claims Claims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(*jwt.Token) (interface{}, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.clock.Now),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return Claims{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !token.Valid || claims.UserID <= 0 {
		return Claims{}, ErrInvalidToken
	}
	return claims, nil
}
