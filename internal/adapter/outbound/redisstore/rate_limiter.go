// Package redisstore provides Redis-backed implementations of outbound ports.
package redisstore

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/loomchat/loomchat/internal/domain/ratelimit"
)

// RedisRateLimiter implements ratelimit.RateLimiter with a sliding window
// over one Redis sorted set per key. Scores are request timestamps in
// microseconds; members are random so concurrent requests in the same
// microsecond don't collapse into one entry.
//
// Each check runs ZREMRANGEBYSCORE + ZADD + ZCARD + EXPIRE as a single
// MULTI/EXEC pipeline, so a partially applied check cannot leave a
// counted-but-unevicted window behind.
type RedisRateLimiter struct {
	client redis.Cmdable
	logger *slog.Logger

	// onFailOpen is called when a backend error makes the limiter fail
	// open. Used to feed the prometheus counter without importing it here.
	onFailOpen func()
}

// LimiterOption configures a RedisRateLimiter.
type LimiterOption func(*RedisRateLimiter)

// WithLogger sets the logger used for fail-open warnings.
func WithLogger(logger *slog.Logger) LimiterOption {
	return func(r *RedisRateLimiter) {
		r.logger = logger
	}
}

// WithFailOpenHook registers a callback invoked on every fail-open decision.
func WithFailOpenHook(fn func()) LimiterOption {
	return func(r *RedisRateLimiter) {
		r.onFailOpen = fn
	}
}

// NewRateLimiter creates a Redis-backed sliding window rate limiter.
func NewRateLimiter(client redis.Cmdable, opts ...LimiterOption) *RedisRateLimiter {
	r := &RedisRateLimiter{
		client: client,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow records a request for key and checks it against the limit.
//
// Decision rule: the request is allowed iff the post-insert count is
// within limit.Requests. Remaining is max(0, limit - count) and the
// reset time is now + window.
//
// If Redis is unreachable the limiter fails OPEN: the request is allowed,
// a warning is logged, and the error is returned alongside the decision
// for observability. Availability is preferred over strict enforcement.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string, limit ratelimit.Limit) (ratelimit.Decision, error) {
	now := time.Now()
	windowStart := now.Add(-limit.Window)

	pipe := r.client.TxPipeline()
	pipe.ZRemRangeByScore(ctx, key, "0", strconv.FormatInt(windowStart.UnixMicro(), 10))
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMicro()),
		Member: uuid.NewString(),
	})
	countCmd := pipe.ZCard(ctx, key)
	pipe.Expire(ctx, key, limit.Window)

	if _, err := pipe.Exec(ctx); err != nil {
		return r.failOpen(key, limit, now, err)
	}

	count := int(countCmd.Val())
	if count > limit.Requests {
		return ratelimit.Decision{
			Allowed:    false,
			Remaining:  0,
			RetryAfter: r.retryAfter(ctx, key, limit, now),
			ResetAt:    now.Add(limit.Window),
		}, nil
	}

	return ratelimit.Decision{
		Allowed:   true,
		Remaining: limit.Requests - count,
		ResetAt:   now.Add(limit.Window),
	}, nil
}

// retryAfter estimates when the oldest entry slides out of the window,
// freeing a slot. Falls back to the full window if the lookup fails.
func (r *RedisRateLimiter) retryAfter(ctx context.Context, key string, limit ratelimit.Limit, now time.Time) time.Duration {
	oldest, err := r.client.ZRangeWithScores(ctx, key, 0, 0).Result()
	if err != nil || len(oldest) == 0 {
		return limit.Window
	}
	oldestAt := time.UnixMicro(int64(oldest[0].Score))
	retryAfter := oldestAt.Add(limit.Window).Sub(now)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return retryAfter
}

// failOpen allows the request despite a backend error.
func (r *RedisRateLimiter) failOpen(key string, limit ratelimit.Limit, now time.Time, err error) (ratelimit.Decision, error) {
	r.logger.Warn("rate limiter backend unreachable, failing open",
		"key", key,
		"error", err)
	if r.onFailOpen != nil {
		r.onFailOpen()
	}
	return ratelimit.Decision{
		Allowed:   true,
		Remaining: limit.Requests,
		ResetAt:   now.Add(limit.Window),
	}, err
}

// Compile-time interface verification.
var _ ratelimit.RateLimiter = (*RedisRateLimiter)(nil)
