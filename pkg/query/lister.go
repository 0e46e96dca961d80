package query

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/observability/metrics"
	"github.com/nimburion/listquery/pkg/repository/document"
	"github.com/nimburion/listquery/pkg/resilience"
)

// Request is one list query invocation.
type Request struct {
	Collection string
	// BaseFilter is the caller's business constraint (e.g. active=true). It is never mutated.
	BaseFilter document.Filter
	// SearchFields are the fields the q parameter is matched against.
	SearchFields []string
	Params       Params
}

// Result is a page of documents plus its metadata.
type Result struct {
	Documents []document.Document
	PageInfo  PageInfo
}

// Lister runs the normalize, build, execute and paginate pipeline.
type Lister struct {
	executor *Executor
	log      logger.Logger
	opts     Options
	cache    ResultCache
	cacheTTL time.Duration
}

// ListerOption configures a Lister.
type ListerOption func(*Lister)

// WithOptions overrides the default limit, maximum limit and default sort.
func WithOptions(opts Options) ListerOption {
	return func(l *Lister) {
		l.opts = opts.withDefaults()
	}
}

// WithCache enables result caching with the given TTL.
func WithCache(cache ResultCache, ttl time.Duration) ListerOption {
	return func(l *Lister) {
		if cache != nil && ttl > 0 {
			l.cache = cache
			l.cacheTTL = ttl
		}
	}
}

// NewLister creates a Lister over an explicitly passed store handle.
func NewLister(finder document.Finder, log logger.Logger, options ...ListerOption) (*Lister, error) {
	executor, err := NewExecutor(finder)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	l := &Lister{
		executor: executor,
		log:      log,
		opts:     DefaultOptions(),
	}
	for _, option := range options {
		option(l)
	}
	return l, nil
}

// List answers one list query. Validation errors are returned before any store
// call; store errors are logged once and returned wrapped as ErrStore.
func (l *Lister) List(ctx context.Context, req Request) (*Result, error) {
	log := l.log.WithContext(ctx).With("collection", req.Collection)

	result, err := l.list(ctx, req)
	switch {
	case err == nil:
		metrics.RecordListQuery(req.Collection, metrics.OutcomeSuccess)
	case IsValidation(err):
		metrics.RecordListQuery(req.Collection, metrics.OutcomeValidationError)
		log.Debug("list query rejected", "error", err)
	default:
		metrics.RecordListQuery(req.Collection, metrics.OutcomeStoreError)
		log.Error("list query failed", "error", err)
	}
	return result, err
}

func (l *Lister) list(ctx context.Context, req Request) (*Result, error) {
	norm, err := Normalize(req.Params, l.opts)
	if err != nil {
		return nil, err
	}
	predicate, err := Build(req.BaseFilter, req.Params, req.SearchFields)
	if err != nil {
		return nil, err
	}

	opts := document.FindOptions{
		Filter:     predicate,
		Sort:       norm.Sort,
		Projection: norm.Projection,
		Skip:       norm.Skip,
		Limit:      norm.Limit,
	}
	docs, total, err := l.fetch(ctx, req.Collection, opts)
	if err != nil {
		return nil, err
	}

	info, err := Paginate(norm.Page, norm.Limit, norm.Skip, total)
	if err != nil {
		return nil, err
	}
	return &Result{Documents: docs, PageInfo: info}, nil
}

func (l *Lister) fetch(ctx context.Context, collection string, opts document.FindOptions) ([]document.Document, int64, error) {
	if l.cache == nil {
		return l.executor.Execute(ctx, collection, opts)
	}

	log := l.log.WithContext(ctx).With("collection", collection)
	key, err := l.cacheKey(ctx, collection, opts)
	if err != nil {
		metrics.RecordCacheLookup(metrics.CacheError)
		logCacheFailure(log, "list cache key unavailable", err)
		return l.executor.Execute(ctx, collection, opts)
	}

	if raw, ok, err := l.cache.Get(ctx, key); err != nil {
		metrics.RecordCacheLookup(metrics.CacheError)
		logCacheFailure(log, "list cache read failed", err)
	} else if ok {
		if docs, total, err := decodePage(raw); err == nil {
			metrics.RecordCacheLookup(metrics.CacheHit)
			return docs, total, nil
		}
		metrics.RecordCacheLookup(metrics.CacheError)
	} else {
		metrics.RecordCacheLookup(metrics.CacheMiss)
	}

	docs, total, err := l.executor.Execute(ctx, collection, opts)
	if err != nil {
		return nil, 0, err
	}
	if payload, err := encodePage(docs, total); err == nil {
		if err := l.cache.Set(ctx, key, payload, l.cacheTTL); err != nil {
			logCacheFailure(log, "list cache write failed", err)
		}
	}
	return docs, total, nil
}

// logCacheFailure keeps an open breaker from logging a warning per request;
// the breaker reports its own transitions.
func logCacheFailure(log logger.Logger, msg string, err error) {
	if errors.Is(err, resilience.ErrOpen) {
		log.Debug(msg, "error", err)
		return
	}
	log.Warn(msg, "error", err)
}

func (l *Lister) cacheKey(ctx context.Context, collection string, opts document.FindOptions) (string, error) {
	generation, err := readGeneration(ctx, l.cache, collection)
	if err != nil {
		return "", err
	}
	return resultKey(collection, generation, opts)
}

// Invalidate drops every cached page of collection by bumping its generation.
func (l *Lister) Invalidate(ctx context.Context, collection string) error {
	if l.cache == nil {
		return nil
	}
	if _, err := l.cache.Incr(ctx, generationKey(collection)); err != nil {
		return errors.Join(fmt.Errorf("invalidate %s", collection), err)
	}
	return nil
}
