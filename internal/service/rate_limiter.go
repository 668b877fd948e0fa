package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prperemyshlev/wearable-sync/pkg/database"
)

// ErrRateLimited is returned by Allow when the window's budget is spent
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiter is a fixed-window request counter in Redis
type RateLimiter struct {
	redis  *database.Redis
	limit  int
	window time.Duration
	now    func() time.Time
}

// NewRateLimiter creates a rate limiter admitting limit requests per window.
// A non-positive limit disables it.
func NewRateLimiter(redis *database.Redis, limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{redis: redis, limit: limit, window: window, now: time.Now}
}

// Allow counts a request against key. It returns ErrRateLimited, with the
// time until the window resets, once the limit is exceeded. Other errors
// come from Redis and leave the decision to the caller.
func (r *RateLimiter) Allow(ctx context.Context, key string) (time.Duration, error) {
	if r == nil || r.redis == nil || r.limit <= 0 || r.window <= 0 {
		return 0, nil
	}

	now := r.now()
	windowStart := now.Truncate(r.window)
	redisKey := fmt.Sprintf("ratelimit:sync:%s:%d", key, windowStart.Unix())

	pipe := r.redis.Client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, r.window+time.Second)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to count request: %w", err)
	}

	if incr.Val() > int64(r.limit) {
		retryAfter := windowStart.Add(r.window).Sub(now)
		return retryAfter, fmt.Errorf("try again in %v: %w", retryAfter.Round(time.Second), ErrRateLimited)
	}

	return 0, nil
}

// Remaining returns how many requests key may still make in the current window
func (r *RateLimiter) Remaining(ctx context.Context, key string) (int, error) {
	if r == nil || r.redis == nil || r.limit <= 0 || r.window <= 0 {
		return r.limitOrZero(), nil
	}

	windowStart := r.now().Truncate(r.window)
	redisKey := fmt.Sprintf("ratelimit:sync:%s:%d", key, windowStart.Unix())

	count, err := r.redis.Client.Get(ctx, redisKey).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		return 0, fmt.Errorf("failed to read request count: %w", err)
	}

	remaining := r.limit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (r *RateLimiter) limitOrZero() int {
	if r == nil || r.limit < 0 {
		return 0
	}
	return r.limit
}

// Limit is the number of requests admitted per window
func (r *RateLimiter) Limit() int {
	return r.limitOrZero()
}
