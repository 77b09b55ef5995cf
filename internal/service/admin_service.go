package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/loomchat/loomchat/internal/domain/user"
)

// ErrInvalidInput marks a request the caller should fix (HTTP 400).
var ErrInvalidInput = errors.New("invalid input")

// AdminService implements account administration for the admin API.
type AdminService struct {
	users  user.UserStore
	logger *slog.Logger
}

// NewAdminService creates a new AdminService.
func NewAdminService(users user.UserStore, logger *slog.Logger) *AdminService {
	return &AdminService{users: users, logger: logger}
}

// ListUsers returns all accounts, newest first.
func (s *AdminService) ListUsers(ctx context.Context) ([]user.User, error) {
	users, err := s.users.ListUsers(ctx)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []user.User{}
	}
	return users, nil
}

// UpdateUserInput holds the admin-editable account fields. Nil pointers
// leave the field unchanged.
type UpdateUserInput struct {
	DisplayName     *string    `json:"display_name,omitempty"`
	Tier            *user.Tier `json:"tier,omitempty"`
	Role            *user.Role `json:"role,omitempty"`
	RateLimitBypass *bool      `json:"rate_limit_bypass,omitempty"`
	Disabled        *bool      `json:"disabled,omitempty"`
}

// UpdateUser applies an admin edit to an account.
// Returns user.ErrUserNotFound for unknown accounts.
func (s *AdminService) UpdateUser(ctx context.Context, id string, input UpdateUserInput) (*user.User, error) {
	u, err := s.users.GetUser(ctx, id)
	if err != nil {
		return nil, err
	}

	if input.DisplayName != nil {
		u.DisplayName = *input.DisplayName
	}
	if input.Tier != nil {
		if !input.Tier.IsValid() {
			return nil, fmt.Errorf("%w: unknown tier %q", ErrInvalidInput, *input.Tier)
		}
		u.Tier = *input.Tier
	}
	if input.Role != nil {
		if !input.Role.IsValid() {
			return nil, fmt.Errorf("%w: unknown role %q", ErrInvalidInput, *input.Role)
		}
		u.Role = *input.Role
	}
	if input.RateLimitBypass != nil {
		u.RateLimitBypass = *input.RateLimitBypass
	}
	if input.Disabled != nil {
		u.Disabled = *input.Disabled
	}

	if err := s.users.UpdateUser(ctx, u); err != nil {
		return nil, err
	}
	s.logger.Info("user updated by admin",
		"user_id", id, "tier", u.Tier, "role", u.Role, "disabled", u.Disabled)
	return u, nil
}
