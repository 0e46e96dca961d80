// Package store opens the backing adapters named by the configuration.
package store

import "context"

// Adapter is the lifecycle and health contract shared by the adapters.
type Adapter interface {
	HealthCheck(ctx context.Context) error
	Close() error
}
