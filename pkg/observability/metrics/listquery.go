package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// List query outcomes.
const (
	OutcomeSuccess         = "success"
	OutcomeValidationError = "validation_error"
	OutcomeStoreError      = "store_error"
)

// Result cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

var (
	// listQueriesTotal counts list queries by collection and outcome.
	listQueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "list_queries_total",
			Help: "Total number of list queries by outcome",
		},
		[]string{"collection", "outcome"},
	)

	// storeOperationDuration tracks count and find latency.
	// Labels: operation, collection, status
	storeOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "list_query_store_operation_duration_seconds",
			Help:    "Document store operation duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "collection", "status"},
	)

	cacheLookupsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "list_query_cache_lookups_total",
			Help: "Total number of list result cache lookups",
		},
		[]string{"result"},
	)
)

// RecordListQuery counts one finished list query.
func RecordListQuery(collection, outcome string) {
	listQueriesTotal.WithLabelValues(collection, outcome).Inc()
}

// ObserveStoreOperation records the latency of one store call.
func ObserveStoreOperation(operation, collection string, duration time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	storeOperationDuration.WithLabelValues(operation, collection, status).Observe(duration.Seconds())
}

// RecordCacheLookup counts one result cache lookup.
func RecordCacheLookup(result string) {
	cacheLookupsTotal.WithLabelValues(result).Inc()
}
