// Package ratelimit throttles requests per client key.
package ratelimit

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"github.com/nimburion/listquery/pkg/controller"
	"github.com/nimburion/listquery/pkg/i18n"
	"github.com/nimburion/listquery/pkg/server/router"
)

// RateLimiter decides whether a request for key may proceed.
// Implementations must be safe for concurrent use.
type RateLimiter interface {
	Allow(key string) bool
}

// TokenBucketLimiter keeps one in-process token bucket per key.
type TokenBucketLimiter struct {
	limiters sync.Map // key -> *rate.Limiter
	rate     rate.Limit
	burst    int
}

// NewTokenBucketLimiter allows requestsPerSecond on average with bursts up to burst.
func NewTokenBucketLimiter(requestsPerSecond, burst int) *TokenBucketLimiter {
	if burst < 1 {
		burst = 1
	}
	return &TokenBucketLimiter{rate: rate.Limit(requestsPerSecond), burst: burst}
}

func (l *TokenBucketLimiter) Allow(key string) bool {
	if existing, ok := l.limiters.Load(key); ok {
		return existing.(*rate.Limiter).Allow()
	}
	limiter, _ := l.limiters.LoadOrStore(key, rate.NewLimiter(l.rate, l.burst))
	return limiter.(*rate.Limiter).Allow()
}

// Config configures the middleware.
type Config struct {
	ExcludedPathPrefixes []string
	// KeyFunc extracts the limiting key; defaults to the client IP.
	KeyFunc func(router.Context) string
	// RetryAfterSeconds is sent with 429 responses.
	RetryAfterSeconds int
}

// Middleware rejects requests over the limit with a 429 failure envelope.
func Middleware(limiter RateLimiter, cfg Config) router.MiddlewareFunc {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = func(c router.Context) string { return ClientIP(c.Request()) }
	}
	if cfg.RetryAfterSeconds <= 0 {
		cfg.RetryAfterSeconds = 1
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			path := c.Request().URL.Path
			for _, prefix := range cfg.ExcludedPathPrefixes {
				if prefix != "" && strings.HasPrefix(path, prefix) {
					return next(c)
				}
			}
			if limiter.Allow(cfg.KeyFunc(c)) {
				return next(c)
			}
			c.Response().Header().Set("Retry-After", strconv.Itoa(cfg.RetryAfterSeconds))
			return controller.Error(c, i18n.NewError("request.rate_limited", nil, nil).
				WithMessage("rate limit exceeded").
				WithHTTPStatus(http.StatusTooManyRequests))
		}
	}
}

// ClientIP returns the first X-Forwarded-For hop, then X-Real-IP, then the
// host part of RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return strings.TrimSpace(strings.Split(xff, ",")[0])
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return strings.TrimSpace(xri)
	}
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	return r.RemoteAddr
}
