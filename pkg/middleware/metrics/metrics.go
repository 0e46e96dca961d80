// Package metrics records Prometheus HTTP metrics per route.
package metrics

import (
	"time"

	"github.com/nimburion/listquery/pkg/observability/metrics"
	"github.com/nimburion/listquery/pkg/server/router"
)

// UnmatchedRoute labels requests that hit no registered route.
const UnmatchedRoute = "unmatched"

// Metrics records request duration, count and in-flight requests. The path
// label is the registered route pattern, never the raw path, so ids and
// list filters do not create new series.
func Metrics() router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			metrics.IncrementInFlight()
			defer metrics.DecrementInFlight()

			start := time.Now()
			err := next(c)

			route := c.RoutePattern()
			if route == "" {
				route = UnmatchedRoute
			}
			metrics.RecordHTTPMetrics(c.Request().Method, route, c.Response().Status(), time.Since(start))
			return err
		}
	}
}
