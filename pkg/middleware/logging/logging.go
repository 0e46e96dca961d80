// Package logging writes one access log entry per request.
package logging

import (
	"strings"
	"time"

	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/server/router"
)

// Log field names.
const (
	FieldMethod     = "method"
	FieldRoute      = "route"
	FieldPath       = "path"
	FieldQuery      = "query"
	FieldStatus     = "status"
	FieldDurationMS = "duration_ms"
	FieldRemoteAddr = "remote_addr"
	FieldError      = "error"
)

// Config configures request logging.
type Config struct {
	Enabled bool
	// LogQuery adds the raw query string, which holds the list filters.
	LogQuery             bool
	ExcludedPathPrefixes []string
}

// DefaultConfig logs every request except scrapes and probes.
func DefaultConfig() Config {
	return Config{
		Enabled:              true,
		LogQuery:             true,
		ExcludedPathPrefixes: []string{"/metrics", "/health"},
	}
}

// Logging creates middleware with DefaultConfig.
func Logging(log logger.Logger) router.MiddlewareFunc {
	return WithConfig(log, DefaultConfig())
}

// WithConfig logs completed requests at info, 4xx at warn, and 5xx or
// handler errors at error. Entries carry the request id through
// logger.WithContext, so this must run after the request id middleware.
func WithConfig(log logger.Logger, cfg Config) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if !cfg.Enabled || excluded(req.URL.Path, cfg.ExcludedPathPrefixes) {
				return next(c)
			}

			start := time.Now()
			err := next(c)
			status := c.Response().Status()

			fields := []any{
				FieldMethod, req.Method,
				FieldRoute, c.RoutePattern(),
				FieldPath, req.URL.Path,
				FieldStatus, status,
				FieldDurationMS, time.Since(start).Milliseconds(),
				FieldRemoteAddr, req.RemoteAddr,
			}
			if cfg.LogQuery && req.URL.RawQuery != "" {
				fields = append(fields, FieldQuery, req.URL.RawQuery)
			}

			// the request id is only on the request the handler chain saw
			reqLog := log.WithContext(c.Request().Context())
			switch {
			case err != nil:
				reqLog.Error("request failed", append(fields, FieldError, err.Error())...)
			case status >= 500:
				reqLog.Error("request completed", fields...)
			case status >= 400:
				reqLog.Warn("request completed", fields...)
			default:
				reqLog.Info("request completed", fields...)
			}
			return err
		}
	}
}

func excluded(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
