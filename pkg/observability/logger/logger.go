// Package logger defines the structured logger used across the service.
package logger

import (
	"context"
)

// Logger is a leveled, key-value structured logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)

	// With returns a child logger carrying the given key-value pairs.
	With(args ...any) Logger

	// WithContext returns a child logger tagged with the request ID found in ctx, if any.
	WithContext(ctx context.Context) Logger
}
