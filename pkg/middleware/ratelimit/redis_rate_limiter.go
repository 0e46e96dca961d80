package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/nimburion/listquery/pkg/observability/logger"
)

// Counter is the window counter a distributed limiter needs. The Redis
// store adapter satisfies it.
type Counter interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// RedisRateLimiter is a fixed-window limiter shared by every replica.
type RedisRateLimiter struct {
	counter   Counter
	limit     int64
	window    time.Duration
	opTimeout time.Duration
	prefix    string
	log       logger.Logger
}

// NewRedisRateLimiter allows requestsPerSecond+burst requests per window.
func NewRedisRateLimiter(counter Counter, window time.Duration, requestsPerSecond, burst int, prefix string, log logger.Logger) (*RedisRateLimiter, error) {
	if counter == nil {
		return nil, errors.New("counter is required for distributed rate limiting")
	}
	if requestsPerSecond <= 0 {
		return nil, errors.New("requests_per_second must be greater than zero")
	}
	if burst < 0 {
		return nil, errors.New("burst cannot be negative")
	}
	if window <= 0 {
		window = time.Second
	}
	if prefix == "" {
		prefix = "listquery:ratelimit"
	}
	return &RedisRateLimiter{
		counter:   counter,
		limit:     int64(requestsPerSecond + burst),
		window:    window,
		opTimeout: 2 * time.Second,
		prefix:    prefix,
		log:       log,
	}, nil
}

// Allow fails open when the counter is unreachable.
func (r *RedisRateLimiter) Allow(key string) bool {
	ctx, cancel := context.WithTimeout(context.Background(), r.opTimeout)
	defer cancel()

	count, err := r.counter.IncrWithTTL(ctx, r.prefix+":"+key, r.window)
	if err != nil {
		r.log.Error("rate limiter increment failed", "error", err)
		return true
	}
	return count <= r.limit
}
