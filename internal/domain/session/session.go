package session

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/loomchat/loomchat/internal/domain/user"
)

// DefaultTimeout is the default session timeout.
const DefaultTimeout = 30 * 24 * time.Hour

// Config holds session service configuration.
type Config struct {
	// Timeout is the session expiration duration. Default: 30 days.
	Timeout time.Duration
}

// SessionService manages session lifecycle.
type SessionService struct {
	store   SessionStore
	timeout time.Duration
}

// NewSessionService creates a new SessionService with the given store and config.
func NewSessionService(store SessionStore, cfg Config) *SessionService {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	return &SessionService{
		store:   store,
		timeout: timeout,
	}
}

// Create generates a new session for a user.
// Returns the session and the raw refresh token. The raw token is not
// stored; only its hash is.
func (s *SessionService) Create(ctx context.Context, u *user.User) (*Session, string, error) {
	id, err := GenerateSessionID()
	if err != nil {
		return nil, "", err
	}
	refreshToken, err := GenerateSessionID()
	if err != nil {
		return nil, "", err
	}

	now := time.Now().UTC()
	session := &Session{
		ID:               id,
		UserID:           u.ID,
		RefreshTokenHash: HashRefreshToken(refreshToken),
		CreatedAt:        now,
		ExpiresAt:        now.Add(s.timeout),
		LastAccess:       now,
	}

	if err := s.store.Create(ctx, session); err != nil {
		return nil, "", fmt.Errorf("failed to create session: %w", err)
	}

	return session, refreshToken, nil
}

// Get retrieves a session by ID.
// Returns ErrSessionNotFound if the session doesn't exist or is expired.
func (s *SessionService) Get(ctx context.Context, id string) (*Session, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	// Double-check expiration (store might not enforce it)
	if session.IsExpired() {
		_ = s.store.Delete(ctx, id)
		return nil, ErrSessionNotFound
	}

	return session, nil
}

// Refresh validates the refresh token for a session and, on success,
// rotates the refresh token and extends the session expiration.
// Returns the new raw refresh token.
// Returns ErrSessionNotFound for unknown or expired sessions and
// ErrRefreshMismatch for a wrong refresh token.
func (s *SessionService) Refresh(ctx context.Context, id, refreshToken string) (*Session, string, error) {
	session, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, "", err
	}

	if session.IsExpired() {
		_ = s.store.Delete(ctx, id)
		return nil, "", ErrSessionNotFound
	}

	hash := HashRefreshToken(refreshToken)
	if subtle.ConstantTimeCompare([]byte(hash), []byte(session.RefreshTokenHash)) != 1 {
		return nil, "", ErrRefreshMismatch
	}

	newToken, err := GenerateSessionID()
	if err != nil {
		return nil, "", err
	}
	session.RefreshTokenHash = HashRefreshToken(newToken)
	session.Refresh(s.timeout)

	if err := s.store.Update(ctx, session); err != nil {
		return nil, "", fmt.Errorf("failed to refresh session: %w", err)
	}

	return session, newToken, nil
}

// Delete terminates a session.
func (s *SessionService) Delete(ctx context.Context, id string) error {
	return s.store.Delete(ctx, id)
}

// GenerateSessionID creates a cryptographically random identifier.
// Returns 64 hex characters (32 bytes). Also used for refresh tokens.
func GenerateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// HashRefreshToken returns the SHA-256 hex hash of a raw refresh token.
func HashRefreshToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
