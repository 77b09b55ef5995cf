// Package session manages refreshable login sessions and access tokens.
package session

import (
	"time"
)

// Session tracks a logged-in user between token refreshes.
// The access token (a short-lived JWT) is derived from the session;
// the session itself holds the long-lived refresh credential.
type Session struct {
	// ID is a cryptographically random identifier, 32 bytes hex-encoded.
	ID string
	// UserID references the user.User this session belongs to.
	UserID string
	// RefreshTokenHash is the SHA-256 hex hash of the refresh token.
	// The raw token is returned to the client once and never stored.
	RefreshTokenHash string
	// CreatedAt is when the session was created (UTC).
	CreatedAt time.Time
	// ExpiresAt is when the session will expire (UTC).
	ExpiresAt time.Time
	// LastAccess is the last time the session was refreshed (UTC).
	LastAccess time.Time
}

// IsExpired checks if the session has exceeded its timeout.
func (s *Session) IsExpired() bool {
	return time.Now().UTC().After(s.ExpiresAt)
}

// Refresh updates LastAccess and extends ExpiresAt by the given duration.
func (s *Session) Refresh(timeout time.Duration) {
	now := time.Now().UTC()
	s.LastAccess = now
	s.ExpiresAt = now.Add(timeout)
}
