// Package timeout bounds each request with a context deadline.
package timeout

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/nimburion/listquery/pkg/controller"
	"github.com/nimburion/listquery/pkg/server/router"
)

// Config configures the request deadline.
type Config struct {
	Enabled              bool
	Default              time.Duration
	ExcludedPathPrefixes []string
}

// DefaultConfig returns a disabled 15s deadline that skips /metrics and /health.
func DefaultConfig() Config {
	return Config{
		Enabled:              false,
		Default:              15 * time.Second,
		ExcludedPathPrefixes: []string{"/metrics", "/health"},
	}
}

// Middleware attaches a deadline to the request context. When the deadline
// fires and nothing was written yet, a 504 failure envelope is rendered.
func Middleware(cfg Config) router.MiddlewareFunc {
	if cfg.Default <= 0 {
		cfg.Default = DefaultConfig().Default
	}
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			if !cfg.Enabled || isExcluded(c.Request().URL.Path, cfg.ExcludedPathPrefixes) {
				return next(c)
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), cfg.Default)
			defer cancel()
			c.SetRequest(c.Request().WithContext(ctx))

			err := next(c)
			if !errors.Is(err, context.DeadlineExceeded) && !errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return err
			}
			if c.Response().Written() {
				return nil
			}
			return controller.Error(c, controller.NewTimeoutError())
		}
	}
}

func isExcluded(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
