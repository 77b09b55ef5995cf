package ratelimit

import "context"

// RateLimiter is the interface for rate limiting operations.
//
// Implementations use a sliding window: requests are counted over a
// moving interval rather than fixed buckets, so a burst cannot slip
// through at a window boundary.
//
// The interface is storage-agnostic, allowing implementations backed
// by Redis or in-memory stores.
type RateLimiter interface {
	// Allow records a request for key and checks it against the limit.
	// The key should be a structured identifier created by FormatKey.
	//
	// The check is: evict entries older than the window, insert the
	// request, count, and compare against limit.Requests. A request is
	// allowed iff the post-insert count is within the limit.
	//
	// Backend errors are NOT returned as denials: implementations fail
	// open (allow, with a logged warning) so that a rate limiter outage
	// doesn't take the API down with it. The error is still returned
	// for observability.
	Allow(ctx context.Context, key string, limit Limit) (Decision, error)
}
