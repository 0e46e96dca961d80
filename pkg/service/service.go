// Package service assembles the list query service from configuration:
// document store, optional Redis cache, list engine, resource routes, rate
// limiter and readiness checks.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nimburion/listquery/pkg/config"
	"github.com/nimburion/listquery/pkg/health"
	"github.com/nimburion/listquery/pkg/i18n"
	"github.com/nimburion/listquery/pkg/middleware/ratelimit"
	"github.com/nimburion/listquery/pkg/middleware/requestsize"
	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/query"
	"github.com/nimburion/listquery/pkg/repository/document"
	"github.com/nimburion/listquery/pkg/resource"
	"github.com/nimburion/listquery/pkg/server"
	"github.com/nimburion/listquery/pkg/server/router"
	"github.com/nimburion/listquery/pkg/store"
)

// Cache is what the service needs from the Redis adapter: list result
// storage, rate limit counters and a health probe.
type Cache interface {
	query.ResultCache
	ratelimit.Counter
	health.Checkable
}

// Backends are the connected dependencies. Cache may be nil.
type Backends struct {
	Store      document.Store
	StoreProbe health.Checkable
	Cache      Cache
	// Closers run on shutdown in order.
	Closers []server.LifecycleHook
}

// Service holds the assembled components of one running instance.
type Service struct {
	cfg      *config.Config
	log      logger.Logger
	backends Backends
	lister   *query.Lister
	health   *health.Registry
}

// Connect dials MongoDB and, when enabled, Redis, then assembles the service.
func Connect(cfg *config.Config, log logger.Logger) (*Service, error) {
	mongo, err := store.NewDocumentStore(cfg.Database, log)
	if err != nil {
		return nil, fmt.Errorf("connect document store: %w", err)
	}
	executor, err := document.NewMongoDBExecutor(mongo)
	if err != nil {
		_ = mongo.Close()
		return nil, err
	}
	backends := Backends{
		Store:      executor,
		StoreProbe: mongo,
		Closers:    []server.LifecycleHook{closeHook("mongodb", mongo.Close)},
	}

	redis, err := store.NewCache(cfg.Cache, log)
	if err != nil {
		_ = mongo.Close()
		return nil, fmt.Errorf("connect cache: %w", err)
	}
	if redis != nil {
		backends.Cache = redis
		backends.Closers = append([]server.LifecycleHook{closeHook("redis", redis.Close)}, backends.Closers...)
	}
	return New(cfg, log, backends)
}

// New assembles the service over already connected backends.
func New(cfg *config.Config, log logger.Logger, backends Backends) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if log == nil {
		return nil, errors.New("logger is required")
	}
	if backends.Store == nil {
		return nil, errors.New("document store is required")
	}

	options := []query.ListerOption{query.WithOptions(query.Options{
		DefaultLimit: cfg.Query.DefaultLimit,
		MaxLimit:     cfg.Query.MaxLimit,
		DefaultSort:  cfg.Query.DefaultSort,
	})}
	if backends.Cache != nil {
		var cache query.ResultCache = backends.Cache
		if cfg.Cache.BreakerFailures > 0 {
			cache = newGuardedCache(backends.Cache, cfg.Cache.BreakerFailures, cfg.Cache.BreakerCooldown, log)
		}
		options = append(options, query.WithCache(cache, cfg.Cache.TTL))
	}
	lister, err := query.NewLister(backends.Store, log, options...)
	if err != nil {
		return nil, fmt.Errorf("create lister: %w", err)
	}

	registry := health.NewRegistry()
	if backends.StoreProbe != nil {
		registry.Register(health.NewStoreChecker(backends.StoreProbe, cfg.Database.QueryTimeout))
	}
	if backends.Cache != nil {
		registry.Register(health.NewCacheChecker(backends.Cache, cfg.Cache.OperationTimeout))
	}

	return &Service{
		cfg:      cfg,
		log:      log,
		backends: backends,
		lister:   lister,
		health:   registry,
	}, nil
}

// Lister returns the list engine shared by every resource.
func (s *Service) Lister() *query.Lister {
	return s.lister
}

// HealthRegistry returns the readiness checks of the connected backends.
func (s *Service) HealthRegistry() *health.Registry {
	return s.health
}

// RegisterRoutes mounts one resource handler per configured collection.
// Write routes get the request body cap.
func (s *Service) RegisterRoutes(r router.Router) error {
	if len(s.cfg.Resources) == 0 {
		s.log.Warn("no resources configured, only probes are served")
	}
	for _, res := range s.cfg.Resources {
		searchFields := res.SearchFields
		if len(searchFields) == 0 {
			searchFields = s.cfg.Query.SearchFields
		}
		handler, err := resource.NewHandler(resource.Config{
			Path:         res.Path,
			Collection:   res.Collection,
			SearchFields: searchFields,
			BaseFilter:   document.Filter(res.BaseFilter),
		}, s.backends.Store, s.lister, s.log)
		if err != nil {
			return fmt.Errorf("resource %s: %w", res.Path, err)
		}
		handler.Register(r, requestsize.Middleware(s.cfg.HTTP.MaxBodyBytes))
		s.log.Info("resource registered",
			"path", res.Path,
			"collection", res.Collection,
			"search_fields", strings.Join(searchFields, ","),
		)
	}
	return nil
}

// Limiter builds the configured rate limiter, or nil when disabled.
func (s *Service) Limiter() (ratelimit.RateLimiter, error) {
	rl := s.cfg.RateLimit
	if !rl.Enabled {
		return nil, nil
	}
	switch rl.Type {
	case config.RateLimitTypeRedis:
		if s.backends.Cache == nil {
			return nil, errors.New("rate_limit.type redis requires the cache")
		}
		return ratelimit.NewRedisRateLimiter(s.backends.Cache, rl.Window, rl.RequestsPerSecond, rl.Burst, "", s.log)
	default:
		return ratelimit.NewTokenBucketLimiter(rl.RequestsPerSecond, rl.Burst), nil
	}
}

// CleanCache invalidates the cached list pages of the given collections, or
// of every configured collection when none are named.
func (s *Service) CleanCache(ctx context.Context, collections ...string) error {
	if s.backends.Cache == nil {
		return errors.New("cache is disabled")
	}
	if len(collections) == 0 {
		for _, res := range s.cfg.Resources {
			collections = append(collections, res.Collection)
		}
	}
	var errs []error
	for _, collection := range collections {
		if err := s.lister.Invalidate(ctx, collection); err != nil {
			errs = append(errs, fmt.Errorf("invalidate %s: %w", collection, err))
			continue
		}
		s.log.Info("list cache invalidated", "collection", collection)
	}
	return errors.Join(errs...)
}

// Close runs the backend closers, reporting every failure.
func (s *Service) Close(ctx context.Context) error {
	var errs []error
	for _, hook := range s.backends.Closers {
		if err := hook.Fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", hook.Name, err))
		}
	}
	return errors.Join(errs...)
}

// ServerOptions returns the bootstrap options for the HTTP servers.
func (s *Service) ServerOptions() (*server.Options, error) {
	catalog, err := i18n.LoadCatalog(s.cfg.I18n.CatalogPath, s.cfg.I18n.DefaultLocale)
	if err != nil {
		return nil, fmt.Errorf("load message catalog: %w", err)
	}
	limiter, err := s.Limiter()
	if err != nil {
		return nil, fmt.Errorf("create rate limiter: %w", err)
	}
	return &server.Options{
		Config:         s.cfg,
		Logger:         s.log,
		Catalog:        catalog,
		Limiter:        limiter,
		HealthRegistry: s.health,
		RegisterRoutes: s.RegisterRoutes,
		ShutdownHooks:  s.backends.Closers,
	}, nil
}

// Run connects the backends and serves until SIGINT or SIGTERM.
func Run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc, err := Connect(cfg, log)
	if err != nil {
		return err
	}
	opts, err := svc.ServerOptions()
	if err != nil {
		_ = svc.Close(context.Background())
		return err
	}
	servers, err := server.BuildHTTPServers(opts)
	if err != nil {
		_ = svc.Close(context.Background())
		return err
	}
	return server.RunHTTPServersWithSignals(ctx, servers, opts)
}

// CheckDependencies connects every backend once and reports readiness.
func CheckDependencies(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	svc, err := Connect(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svc.Close(context.Background()); closeErr != nil {
			log.Warn("failed to close backends", "error", closeErr)
		}
	}()

	result := svc.health.Check(ctx)
	for _, check := range result.Checks {
		log.Info("dependency check",
			"name", check.Name,
			"status", string(check.Status),
			"duration", check.Duration.String(),
			"error", check.Error,
		)
	}
	if !result.IsReady() {
		return fmt.Errorf("dependencies not ready: %s", result.Status)
	}
	return nil
}

// CleanCache connects the backends and invalidates list pages.
func CleanCache(ctx context.Context, cfg *config.Config, log logger.Logger, collections []string) error {
	svc, err := Connect(cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := svc.Close(context.Background()); closeErr != nil {
			log.Warn("failed to close backends", "error", closeErr)
		}
	}()
	return svc.CleanCache(ctx, collections...)
}

func closeHook(name string, closeFn func() error) server.LifecycleHook {
	return server.LifecycleHook{Name: name, Fn: func(context.Context) error { return closeFn() }}
}
