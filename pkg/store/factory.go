package store

import (
	"fmt"
	"strings"

	"github.com/nimburion/listquery/pkg/config"
	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/store/mongodb"
	"github.com/nimburion/listquery/pkg/store/redis"
)

var (
	_ Adapter = (*mongodb.Adapter)(nil)
	_ Adapter = (*redis.Adapter)(nil)
)

// NewDocumentStore connects the document store named by database.type.
func NewDocumentStore(cfg config.DatabaseConfig, log logger.Logger) (*mongodb.Adapter, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.DatabaseTypeMongoDB:
		return mongodb.NewAdapter(mongodb.Config{
			URL:              cfg.URL,
			Database:         cfg.DatabaseName,
			ConnectTimeout:   cfg.ConnectTimeout,
			OperationTimeout: cfg.QueryTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported database.type %q (supported: %s)", cfg.Type, config.DatabaseTypeMongoDB)
	}
}

// NewCache connects the list result cache. It returns nil, nil when the
// cache is disabled.
func NewCache(cfg config.CacheConfig, log logger.Logger) (*redis.Adapter, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Type)) {
	case config.CacheTypeRedis:
		return redis.NewAdapter(redis.Config{
			URL:              cfg.URL,
			MaxConns:         cfg.MaxConns,
			OperationTimeout: cfg.OperationTimeout,
		}, log)
	default:
		return nil, fmt.Errorf("unsupported cache.type %q (supported: %s)", cfg.Type, config.CacheTypeRedis)
	}
}
