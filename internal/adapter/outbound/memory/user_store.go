package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/loomchat/loomchat/internal/domain/user"
)

// MemoryUserStore implements user.UserStore with in-memory maps.
// Thread-safe for concurrent access. For development/testing only.
type MemoryUserStore struct {
	mu      sync.RWMutex
	users   map[string]*user.User
	byEmail map[string]string // lowercase email -> id
}

// NewUserStore creates a new in-memory user store.
func NewUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		users:   make(map[string]*user.User),
		byEmail: make(map[string]string),
	}
}

// CreateUser creates a new account.
func (s *MemoryUserStore) CreateUser(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	email := strings.ToLower(u.Email)
	if _, taken := s.byEmail[email]; taken {
		return user.ErrEmailTaken
	}

	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.Email = email

	cp := *u
	s.users[u.ID] = &cp
	s.byEmail[email] = u.ID
	return nil
}

// GetUser retrieves an account by ID.
func (s *MemoryUserStore) GetUser(ctx context.Context, id string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

// GetUserByEmail retrieves an account by its lowercase email.
func (s *MemoryUserStore) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byEmail[strings.ToLower(email)]
	if !ok {
		return nil, user.ErrUserNotFound
	}
	cp := *s.users[id]
	return &cp, nil
}

// UpdateUser updates mutable fields of an existing account.
func (s *MemoryUserStore) UpdateUser(ctx context.Context, u *user.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.users[u.ID]
	if !ok {
		return user.ErrUserNotFound
	}

	existing.DisplayName = u.DisplayName
	existing.Tier = u.Tier
	existing.Role = u.Role
	existing.RateLimitBypass = u.RateLimitBypass
	existing.Disabled = u.Disabled
	existing.UpdatedAt = time.Now().UTC()
	return nil
}

// ListUsers retrieves all accounts, newest first.
func (s *MemoryUserStore) ListUsers(ctx context.Context) ([]user.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]user.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Compile-time interface verification.
var _ user.UserStore = (*MemoryUserStore)(nil)
