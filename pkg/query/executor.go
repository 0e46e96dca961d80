package query

import (
	"context"
	"fmt"
	"time"

	"github.com/nimburion/listquery/pkg/observability/metrics"
	"github.com/nimburion/listquery/pkg/repository/document"
	"golang.org/x/sync/errgroup"
)

// Executor issues the count and the fetch of one list query.
type Executor struct {
	finder document.Finder
}

// NewExecutor creates an Executor over an explicitly passed store handle.
func NewExecutor(finder document.Finder) (*Executor, error) {
	if finder == nil {
		return nil, fmt.Errorf("document finder is required")
	}
	return &Executor{finder: finder}, nil
}

// Execute runs exactly one count and one find with the same predicate.
// Count is started first; both run concurrently and the first failure cancels
// the other. The returned total is never smaller than skip+len(documents).
func (e *Executor) Execute(ctx context.Context, collection string, opts document.FindOptions) ([]document.Document, int64, error) {
	var (
		total int64
		docs  []document.Document
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		start := time.Now()
		n, err := e.finder.Count(gctx, collection, opts.Filter)
		metrics.ObserveStoreOperation("count", collection, time.Since(start), err)
		if err != nil {
			return NewStoreError("count", err)
		}
		total = n
		return nil
	})
	g.Go(func() error {
		start := time.Now()
		found, err := e.finder.Find(gctx, collection, opts)
		metrics.ObserveStoreOperation("find", collection, time.Since(start), err)
		if err != nil {
			return NewStoreError("find", err)
		}
		docs = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	if docs == nil {
		docs = []document.Document{}
	}
	if seen := opts.Skip + int64(len(docs)); len(docs) > 0 && total < seen {
		total = seen
	}
	return docs, total, nil
}
