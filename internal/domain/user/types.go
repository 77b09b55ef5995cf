// Package user contains the domain types and logic for accounts and tiers.
package user

import (
	"time"
)

// Tier represents a subscription level controlling rate limits and model access.
type Tier string

const (
	// TierFree is the default tier for new signups.
	TierFree Tier = "free"
	// TierPro is the paid tier with higher limits and more models.
	TierPro Tier = "pro"
	// TierEnterprise has the highest limits and full model access.
	TierEnterprise Tier = "enterprise"
)

// IsValid returns true if the tier is a known valid tier.
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierPro, TierEnterprise:
		return true
	default:
		return false
	}
}

// tierRank orders tiers for model access checks.
var tierRank = map[Tier]int{
	TierFree:       0,
	TierPro:        1,
	TierEnterprise: 2,
}

// AtLeast returns true if the tier grants at least the access of other.
// Unknown tiers rank below free.
func (t Tier) AtLeast(other Tier) bool {
	return tierRank[t] >= tierRank[other]
}

// Role represents a user role for authorization purposes.
type Role string

const (
	// RoleUser has standard access to the chat API.
	RoleUser Role = "user"
	// RoleAdmin additionally has access to the admin analytics API.
	RoleAdmin Role = "admin"
)

// IsValid returns true if the role is a known valid role.
func (r Role) IsValid() bool {
	switch r {
	case RoleUser, RoleAdmin:
		return true
	default:
		return false
	}
}

// User represents an account.
type User struct {
	// ID is the unique identifier (UUID).
	ID string
	// Email is the login identifier, stored lowercase.
	Email string
	// DisplayName is an optional human-readable name.
	DisplayName string
	// PasswordHash is the Argon2id PHC-format hash of the password.
	PasswordHash string
	// Tier controls rate limits and model access.
	Tier Tier
	// Role controls authorization (user or admin).
	Role Role
	// RateLimitBypass exempts this account from rate limiting.
	RateLimitBypass bool
	// Disabled blocks all authenticated access for this account.
	Disabled bool
	// CreatedAt is when the account was created (UTC).
	CreatedAt time.Time
	// UpdatedAt is when the account was last modified (UTC).
	UpdatedAt time.Time
}

// IsAdmin returns true if the user has the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// CanAccess returns true if the account is allowed to authenticate at all.
func (u *User) CanAccess() bool {
	return !u.Disabled
}
