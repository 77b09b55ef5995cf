package loomchat

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for use with errors.Is().
var (
	// ErrUnauthorized is returned when the server rejects the client's
	// credentials and no refresh succeeded.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the account lacks the tier or role the
	// operation requires.
	ErrForbidden = errors.New("forbidden")

	// ErrNotFound is returned when the requested resource does not exist or
	// belongs to another account.
	ErrNotFound = errors.New("not found")

	// ErrRateLimited is returned when the server denies a request under its
	// rate limit policy.
	ErrRateLimited = errors.New("rate limited")

	// ErrServerUnreachable is returned when the Loomchat server cannot be
	// contacted.
	ErrServerUnreachable = errors.New("server unreachable")
)

// APIError is an error response from the Loomchat server.
type APIError struct {
	// Status is the HTTP status code.
	Status int
	// Message is the server's error description.
	Message string
}

// Error returns a human-readable description of the API error.
func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("loomchat: server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("loomchat: server returned %d", e.Status)
}

// Is reports whether this error matches the target error.
// It maps HTTP status codes onto the package sentinels, so
// errors.Is(err, ErrUnauthorized) works on any *APIError.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == 401
	case ErrForbidden:
		return e.Status == 403
	case ErrNotFound:
		return e.Status == 404
	case ErrRateLimited:
		return e.Status == 429
	}
	return false
}

// RateLimitedError is returned when the server denies a request under its
// rate limit policy. It carries the limit headers so callers can back off.
type RateLimitedError struct {
	// Limit is the window's request budget.
	Limit int
	// RetryAfter is how long to wait before retrying.
	RetryAfter time.Duration
	// Message is the server's error description.
	Message string
}

// Error returns a human-readable description of the rate limit denial.
func (e *RateLimitedError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
	}
	return "rate limited"
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrRateLimited).
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// ServerUnreachableError is returned when the Loomchat server cannot be
// contacted.
type ServerUnreachableError struct {
	// Cause is the underlying transport error.
	Cause error
}

// Error returns a human-readable description of the connection failure.
func (e *ServerUnreachableError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("server unreachable: %v", e.Cause)
	}
	return "server unreachable"
}

// Unwrap returns the underlying error cause.
func (e *ServerUnreachableError) Unwrap() error {
	return e.Cause
}

// Is reports whether this error matches the target error.
// It supports errors.Is(err, ErrServerUnreachable).
func (e *ServerUnreachableError) Is(target error) bool {
	return target == ErrServerUnreachable
}
