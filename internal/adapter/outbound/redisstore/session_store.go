package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/loomchat/loomchat/internal/domain/session"
)

// sessionKeyPrefix namespaces session keys in Redis.
const sessionKeyPrefix = "session:"

// RedisSessionStore implements session.SessionStore backed by Redis.
// Sessions are stored as JSON strings with a TTL matching their
// expiration, so Redis evicts them without a sweeper.
//
// Unlike the rate limiter, session operations do NOT fail open: an
// unreachable Redis must not let unauthenticated requests through.
type RedisSessionStore struct {
	client redis.Cmdable
}

// NewSessionStore creates a Redis-backed session store.
func NewSessionStore(client redis.Cmdable) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

// storedSession is the JSON wire form of a session.
type storedSession struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	RefreshTokenHash string    `json:"refresh_token_hash"`
	CreatedAt        time.Time `json:"created_at"`
	ExpiresAt        time.Time `json:"expires_at"`
	LastAccess       time.Time `json:"last_access"`
}

// Create stores a new session with a TTL matching its expiration.
func (s *RedisSessionStore) Create(ctx context.Context, sess *session.Session) error {
	data, ttl, err := encodeSession(sess)
	if err != nil {
		return err
	}

	ok, err := s.client.SetNX(ctx, sessionKeyPrefix+sess.ID, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("create session: %w: %w", session.ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("create session: id %q already exists", sess.ID)
	}
	return nil
}

// Get retrieves a session by ID.
// Returns session.ErrSessionNotFound if it doesn't exist or expired.
func (s *RedisSessionStore) Get(ctx context.Context, id string) (*session.Session, error) {
	data, err := s.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, session.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get session: %w: %w", session.ErrStoreUnavailable, err)
	}

	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}

	return &session.Session{
		ID:               stored.ID,
		UserID:           stored.UserID,
		RefreshTokenHash: stored.RefreshTokenHash,
		CreatedAt:        stored.CreatedAt,
		ExpiresAt:        stored.ExpiresAt,
		LastAccess:       stored.LastAccess,
	}, nil
}

// Update saves changes to an existing session, refreshing its TTL.
func (s *RedisSessionStore) Update(ctx context.Context, sess *session.Session) error {
	data, ttl, err := encodeSession(sess)
	if err != nil {
		return err
	}

	// XX: only overwrite an existing key; a vanished session stays gone.
	ok, err := s.client.SetXX(ctx, sessionKeyPrefix+sess.ID, data, ttl).Result()
	if err != nil {
		return fmt.Errorf("update session: %w: %w", session.ErrStoreUnavailable, err)
	}
	if !ok {
		return session.ErrSessionNotFound
	}
	return nil
}

// Delete removes a session. Deleting a missing session is not an error.
func (s *RedisSessionStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, sessionKeyPrefix+id).Err(); err != nil {
		return fmt.Errorf("delete session: %w: %w", session.ErrStoreUnavailable, err)
	}
	return nil
}

func encodeSession(sess *session.Session) ([]byte, time.Duration, error) {
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		return nil, 0, session.ErrSessionNotFound
	}

	data, err := json.Marshal(storedSession{
		ID:               sess.ID,
		UserID:           sess.UserID,
		RefreshTokenHash: sess.RefreshTokenHash,
		CreatedAt:        sess.CreatedAt,
		ExpiresAt:        sess.ExpiresAt,
		LastAccess:       sess.LastAccess,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("encode session: %w", err)
	}
	return data, ttl, nil
}

// Compile-time interface verification.
var _ session.SessionStore = (*RedisSessionStore)(nil)
