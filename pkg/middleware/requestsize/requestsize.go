// Package requestsize caps request body size.
package requestsize

import (
	"errors"
	"net/http"

	"github.com/nimburion/listquery/pkg/controller"
	"github.com/nimburion/listquery/pkg/server/router"
)

// Middleware enforces a maximum request body size in bytes.
// A non-positive maxBytes disables the middleware.
func Middleware(maxBytes int64) router.MiddlewareFunc {
	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if maxBytes <= 0 || req.Body == nil || req.Body == http.NoBody {
				return next(c)
			}

			if req.ContentLength > maxBytes {
				return controller.Error(c, controller.NewPayloadTooLargeError(maxBytes))
			}

			req.Body = http.MaxBytesReader(c.Response(), req.Body, maxBytes)
			c.SetRequest(req)

			err := next(c)
			var maxBytesErr *http.MaxBytesError
			if errors.As(err, &maxBytesErr) && !c.Response().Written() {
				return controller.Error(c, controller.NewPayloadTooLargeError(maxBytes))
			}
			return err
		}
	}
}

