package user

import (
	"context"
	"errors"
)

// Sentinel errors for user store operations.
var (
	// ErrUserNotFound is returned when a user does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailTaken is returned when creating a user with an email already in use.
	ErrEmailTaken = errors.New("email already registered")
)

// UserStore provides account persistence.
// This interface is defined in the domain to avoid circular imports.
// Implementations: SQL (prod), in-memory (test).
type UserStore interface {
	// CreateUser creates a new account.
	// The ID field is set by the implementation if empty.
	// Returns ErrEmailTaken if the email is already registered.
	CreateUser(ctx context.Context, u *User) error

	// GetUser retrieves an account by ID.
	// Returns ErrUserNotFound if the account doesn't exist.
	GetUser(ctx context.Context, id string) (*User, error)

	// GetUserByEmail retrieves an account by its lowercase email.
	// Returns ErrUserNotFound if the account doesn't exist.
	GetUserByEmail(ctx context.Context, email string) (*User, error)

	// UpdateUser updates DisplayName, Tier, Role, RateLimitBypass and
	// Disabled of an existing account.
	// Returns ErrUserNotFound if the account doesn't exist.
	UpdateUser(ctx context.Context, u *User) error

	// ListUsers retrieves all accounts, newest first. Admin only.
	ListUsers(ctx context.Context) ([]User, error)
}
