package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/loomchat/loomchat/internal/domain/user"
)

// DefaultAccessTokenTTL is the default lifetime of an access token.
const DefaultAccessTokenTTL = 15 * time.Minute

// ErrInvalidToken is returned when an access token fails validation.
var ErrInvalidToken = errors.New("invalid access token")

// AccessClaims are the JWT claims carried by an access token.
// Tier and role are embedded so that rate limiting and authorization
// don't need a store lookup on every request.
type AccessClaims struct {
	Tier      user.Tier `json:"tier"`
	Role      user.Role `json:"role"`
	SessionID string    `json:"sid"`
	jwt.RegisteredClaims
}

// TokenIssuer mints and validates HS256 access tokens.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenIssuer creates a TokenIssuer with the given signing secret and TTL.
// A zero ttl falls back to DefaultAccessTokenTTL.
func NewTokenIssuer(secret []byte, ttl time.Duration) *TokenIssuer {
	if ttl == 0 {
		ttl = DefaultAccessTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl}
}

// Issue creates a signed access token for a user bound to a session.
func (t *TokenIssuer) Issue(u *user.User, sessionID string) (string, error) {
	now := time.Now().UTC()
	claims := AccessClaims{
		Tier:      u.Tier,
		Role:      u.Role,
		SessionID: sessionID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Validate parses and verifies an access token.
// Returns ErrInvalidToken for any malformed, mis-signed or expired token.
func (t *TokenIssuer) Validate(raw string) (*AccessClaims, error) {
	claims := &AccessClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// TTL returns the configured access token lifetime.
func (t *TokenIssuer) TTL() time.Duration {
	return t.ttl
}
