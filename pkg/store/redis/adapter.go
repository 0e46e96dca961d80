package redis

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/observability/tracing"
)

const (
	dialTimeout        = 5 * time.Second
	healthCheckTimeout = 2 * time.Second
)

// Adapter is the Redis backed list result cache.
type Adapter struct {
	client redis.UniversalClient
	logger logger.Logger
	config Config

	mu     sync.RWMutex
	closed bool
}

// Config holds Redis connection configuration.
type Config struct {
	URL              string
	MaxConns         int
	OperationTimeout time.Duration
}

// NewAdapter connects to Redis and verifies the connection with a ping.
func NewAdapter(cfg Config, log logger.Logger) (*Adapter, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("redis URL is required")
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		opts.PoolSize = cfg.MaxConns
	}
	opts.DialTimeout = dialTimeout
	if cfg.OperationTimeout > 0 {
		opts.ReadTimeout = cfg.OperationTimeout
		opts.WriteTimeout = cfg.OperationTimeout
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), dialTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	log.Info("Redis connection established",
		"max_conns", opts.PoolSize,
		"operation_timeout", cfg.OperationTimeout,
	)
	return NewAdapterFromClient(client, cfg, log), nil
}

// NewAdapterFromClient wraps an existing client. The adapter takes ownership and closes it on Close.
func NewAdapterFromClient(client redis.UniversalClient, cfg Config, log logger.Logger) *Adapter {
	return &Adapter{client: client, logger: log, config: cfg}
}

// Client returns the underlying client.
func (a *Adapter) Client() redis.UniversalClient {
	return a.client
}

func (a *Adapter) isClosed() bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.closed
}

var errClosed = errors.New("redis adapter is closed")

// Ping verifies the connection is alive.
func (a *Adapter) Ping(ctx context.Context) error {
	if a.isClosed() {
		return errClosed
	}
	return a.client.Ping(ctx).Err()
}

// Get returns the value stored at key. A missing key is (nil, false, nil).
func (a *Adapter) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if a.isClosed() {
		return nil, false, errClosed
	}
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheGet,
		tracing.WithCacheSystem("redis"),
		tracing.WithCacheKey(key),
	)
	defer span.End()

	val, err := a.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		tracing.SetCacheHit(span, false)
		return nil, false, nil
	}
	if err != nil {
		tracing.RecordError(span, err)
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	tracing.SetCacheHit(span, true)
	return val, true, nil
}

// Set stores value at key. A non-positive ttl stores the key without expiration.
func (a *Adapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if a.isClosed() {
		return errClosed
	}
	if ttl < 0 {
		ttl = 0
	}
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheSet,
		tracing.WithCacheSystem("redis"),
		tracing.WithCacheKey(key),
	)
	defer span.End()

	if err := a.client.Set(ctx, key, value, ttl).Err(); err != nil {
		tracing.RecordError(span, err)
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

// Incr atomically increments the integer stored at key, starting from 0.
func (a *Adapter) Incr(ctx context.Context, key string) (int64, error) {
	if a.isClosed() {
		return 0, errClosed
	}
	ctx, span := tracing.StartCacheSpan(ctx, tracing.SpanOperationCacheIncr,
		tracing.WithCacheSystem("redis"),
		tracing.WithCacheKey(key),
	)
	defer span.End()

	val, err := a.client.Incr(ctx, key).Result()
	if err != nil {
		tracing.RecordError(span, err)
		return 0, fmt.Errorf("failed to increment key %s: %w", key, err)
	}
	return val, nil
}

// IncrWithTTL increments key and, on the first increment, bounds its life
// to ttl. It backs fixed-window counters.
func (a *Adapter) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	count, err := a.Incr(ctx, key)
	if err != nil || count != 1 || ttl <= 0 {
		return count, err
	}
	if err := a.client.Expire(ctx, key, ttl).Err(); err != nil {
		a.logger.Warn("failed to set counter ttl", "key", key, "error", err)
	}
	return count, nil
}

// Delete removes keys.
func (a *Adapter) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if a.isClosed() {
		return errClosed
	}
	if err := a.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("failed to delete keys: %w", err)
	}
	return nil
}

// HealthCheck pings Redis with a two second timeout.
func (a *Adapter) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()

	if err := a.Ping(ctx); err != nil {
		a.logger.Error("Redis health check failed", "error", err)
		return fmt.Errorf("redis health check failed: %w", err)
	}
	return nil
}

// Close closes the connection pool. Repeated calls are no-ops.
func (a *Adapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return nil
	}
	a.closed = true

	a.logger.Info("closing Redis connection")
	if err := a.client.Close(); err != nil {
		a.logger.Error("failed to close Redis connection", "error", err)
		return fmt.Errorf("failed to close redis connection: %w", err)
	}
	return nil
}
