package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/loomchat/loomchat/internal/domain/user"
)

// UserStore is the SQL implementation of user.UserStore.
type UserStore struct {
	store *Store
}

var _ user.UserStore = (*UserStore)(nil)

// NewUserStore creates a UserStore backed by the given Store.
func NewUserStore(store *Store) *UserStore {
	return &UserStore{store: store}
}

const userColumns = `id, email, display_name, password_hash, tier, role, rate_limit_bypass, disabled, created_at, updated_at`

// CreateUser creates a new account, assigning an ID if empty.
func (s *UserStore) CreateUser(ctx context.Context, u *user.User) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	u.Email = strings.ToLower(u.Email)
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err := s.store.db.ExecContext(ctx, s.store.bind(
		`INSERT INTO users (`+userColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		u.ID, u.Email, u.DisplayName, u.PasswordHash, string(u.Tier), string(u.Role),
		boolToInt(u.RateLimitBypass), boolToInt(u.Disabled),
		u.CreatedAt.UnixMilli(), u.UpdatedAt.UnixMilli())
	if err != nil {
		if isUniqueViolation(err) {
			return user.ErrEmailTaken
		}
		return fmt.Errorf("creating user: %w", err)
	}
	return nil
}

// GetUser retrieves an account by ID.
func (s *UserStore) GetUser(ctx context.Context, id string) (*user.User, error) {
	row := s.store.db.QueryRowContext(ctx, s.store.bind(
		`SELECT `+userColumns+` FROM users WHERE id = ?`), id)
	return scanUser(row)
}

// GetUserByEmail retrieves an account by its lowercase email.
func (s *UserStore) GetUserByEmail(ctx context.Context, email string) (*user.User, error) {
	row := s.store.db.QueryRowContext(ctx, s.store.bind(
		`SELECT `+userColumns+` FROM users WHERE email = ?`), strings.ToLower(email))
	return scanUser(row)
}

// UpdateUser updates the mutable fields of an existing account.
func (s *UserStore) UpdateUser(ctx context.Context, u *user.User) error {
	u.UpdatedAt = time.Now().UTC()
	res, err := s.store.db.ExecContext(ctx, s.store.bind(
		`UPDATE users SET display_name = ?, tier = ?, role = ?, rate_limit_bypass = ?, disabled = ?, updated_at = ?
		 WHERE id = ?`),
		u.DisplayName, string(u.Tier), string(u.Role),
		boolToInt(u.RateLimitBypass), boolToInt(u.Disabled),
		u.UpdatedAt.UnixMilli(), u.ID)
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating user: %w", err)
	}
	if n == 0 {
		return user.ErrUserNotFound
	}
	return nil
}

// ListUsers retrieves all accounts, newest first.
func (s *UserStore) ListUsers(ctx context.Context) ([]user.User, error) {
	rows, err := s.store.db.QueryContext(ctx, s.store.bind(
		`SELECT `+userColumns+` FROM users ORDER BY created_at DESC, id`))
	if err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	defer rows.Close()

	var users []user.User
	for rows.Next() {
		u, err := scanUserRow(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUserRow(row rowScanner) (*user.User, error) {
	var u user.User
	var tier, role string
	var bypass, disabled int
	var createdMs, updatedMs int64
	err := row.Scan(&u.ID, &u.Email, &u.DisplayName, &u.PasswordHash, &tier, &role,
		&bypass, &disabled, &createdMs, &updatedMs)
	if err != nil {
		return nil, err
	}
	u.Tier = user.Tier(tier)
	u.Role = user.Role(role)
	u.RateLimitBypass = bypass != 0
	u.Disabled = disabled != 0
	u.CreatedAt = millisToTime(createdMs)
	u.UpdatedAt = millisToTime(updatedMs)
	return &u, nil
}

func scanUser(row *sql.Row) (*user.User, error) {
	u, err := scanUserRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning user: %w", err)
	}
	return u, nil
}

// isUniqueViolation reports whether an insert failed on a unique constraint,
// covering both the postgres error code and sqlite's message.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "constraint failed: users.email")
}
