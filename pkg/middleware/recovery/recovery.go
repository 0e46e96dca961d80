// Package recovery turns handler panics into a 500 failure envelope.
package recovery

import (
	"fmt"
	"runtime/debug"

	"github.com/nimburion/listquery/pkg/controller"
	"github.com/nimburion/listquery/pkg/middleware/requestid"
	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/server/router"
)

// Recovery logs a recovered panic with its stack and, if nothing was written
// yet, answers with the standard failure envelope.
func Recovery(log logger.Logger) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				requestID := requestid.GetRequestID(c.Request().Context())
				log.Error("panic recovered",
					"request_id", requestID,
					"route", c.RoutePattern(),
					"panic", fmt.Sprint(r),
					"stack", string(debug.Stack()),
				)
				if c.Response().Written() {
					return
				}
				err = controller.Error(c, controller.NewInternalError("an unexpected error occurred", nil))
			}()

			return next(c)
		}
	}
}
