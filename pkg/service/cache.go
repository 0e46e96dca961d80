package service

import (
	"context"
	"time"

	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/resilience"
)

// guardedCache sends list page reads and writes through a breaker, so an
// unreachable Redis costs one fast failure instead of an operation timeout.
// Counters skip the breaker: invalidation is always attempted and the rate
// limiter fails open by itself.
type guardedCache struct {
	Cache
	breaker *resilience.Breaker
}

func newGuardedCache(cache Cache, failures int, cooldown time.Duration, log logger.Logger) *guardedCache {
	breaker := resilience.NewBreaker(failures, cooldown, resilience.WithStateChange(func(from, to resilience.State) {
		if to == resilience.StateOpen {
			log.Warn("list cache bypassed", "breaker", to.String(), "cooldown", cooldown.String())
			return
		}
		log.Info("list cache breaker state changed", "from", from.String(), "to", to.String())
	}))
	return &guardedCache{Cache: cache, breaker: breaker}
}

func (g *guardedCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var (
		value []byte
		ok    bool
	)
	err := g.breaker.Do(func() error {
		var err error
		value, ok, err = g.Cache.Get(ctx, key)
		return err
	})
	return value, ok, err
}

func (g *guardedCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return g.breaker.Do(func() error {
		return g.Cache.Set(ctx, key, value, ttl)
	})
}
