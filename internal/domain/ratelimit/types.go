// Package ratelimit provides rate limiting domain types.
package ratelimit

import (
	"fmt"
	"time"
)

// Limit defines the sliding-window parameters for one subject.
type Limit struct {
	// Requests is the number of allowed requests in the window.
	Requests int

	// Window is the moving time interval the requests are counted over.
	Window time.Duration
}

// Decision contains the result of a rate limit check.
type Decision struct {
	// Allowed indicates whether the request is allowed.
	Allowed bool

	// Remaining is the number of remaining requests in the current window.
	Remaining int

	// RetryAfter is the duration until the next request may be allowed.
	// Only meaningful when Allowed is false.
	RetryAfter time.Duration

	// ResetAt is when the window resets for the caller (now + window).
	ResetAt time.Time
}

// KeyType identifies the type of rate limit subject.
type KeyType string

const (
	// KeyTypeIP is for IP-based rate limiting (anonymous requests).
	KeyTypeIP KeyType = "ip"

	// KeyTypeUser is for authenticated per-account rate limiting.
	KeyTypeUser KeyType = "user"
)

// RouteClass groups endpoints sharing a limit.
type RouteClass string

const (
	// ClassChat covers completion requests, the most expensive class.
	ClassChat RouteClass = "chat"
	// ClassAPI covers ordinary CRUD endpoints.
	ClassAPI RouteClass = "api"
	// ClassAuth covers signup/login/refresh, limited to slow brute force.
	ClassAuth RouteClass = "auth"
	// ClassUpload covers attachment uploads.
	ClassUpload RouteClass = "upload"
)

// IsValid returns true if the route class is known.
func (c RouteClass) IsValid() bool {
	switch c {
	case ClassChat, ClassAPI, ClassAuth, ClassUpload:
		return true
	default:
		return false
	}
}

// keyPrefix is the base prefix for all rate limit keys.
const keyPrefix = "ratelimit"

// FormatKey returns a structured rate limit key.
// Format: "ratelimit:{type}:{value}:{class}"
// Examples:
//   - FormatKey(KeyTypeIP, "192.168.1.1", ClassAuth) -> "ratelimit:ip:192.168.1.1:auth"
//   - FormatKey(KeyTypeUser, "user-123", ClassChat) -> "ratelimit:user:user-123:chat"
func FormatKey(keyType KeyType, value string, class RouteClass) string {
	return fmt.Sprintf("%s:%s:%s:%s", keyPrefix, keyType, value, class)
}
