// Package tracing starts an OpenTelemetry server span per request. Store and
// cache spans opened by handlers become its children.
package tracing

import (
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/nimburion/listquery/pkg/middleware/requestid"
	"github.com/nimburion/listquery/pkg/server/router"
)

// Config holds configuration for the tracing middleware.
type Config struct {
	TracerName           string
	ExcludedPathPrefixes []string
}

// DefaultConfig traces everything but scrapes and probes.
func DefaultConfig() Config {
	return Config{
		TracerName:           "listquery/http",
		ExcludedPathPrefixes: []string{"/metrics", "/health"},
	}
}

// Tracing extracts the incoming trace context and wraps the handler chain in
// a server span named "HTTP <method> <route>".
func Tracing(cfg Config) router.MiddlewareFunc {
	if cfg.TracerName == "" {
		cfg.TracerName = DefaultConfig().TracerName
	}

	return func(next router.HandlerFunc) router.HandlerFunc {
		return func(c router.Context) error {
			req := c.Request()
			if excluded(req.URL.Path, cfg.ExcludedPathPrefixes) {
				return next(c)
			}

			route := c.RoutePattern()
			if route == "" {
				route = "unmatched"
			}

			ctx := otel.GetTextMapPropagator().Extract(req.Context(), propagation.HeaderCarrier(req.Header))
			ctx, span := otel.Tracer(cfg.TracerName).Start(ctx, fmt.Sprintf("HTTP %s %s", req.Method, route),
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					attribute.String("http.method", req.Method),
					attribute.String("http.route", route),
					attribute.String("http.target", req.URL.Path),
					attribute.String("http.user_agent", req.UserAgent()),
				),
			)
			defer span.End()

			if requestID := requestid.GetRequestID(req.Context()); requestID != "" {
				span.SetAttributes(attribute.String("request.id", requestID))
			}
			if req.URL.RawQuery != "" {
				span.SetAttributes(attribute.Int("http.query_params", len(req.URL.Query())))
			}

			c.SetRequest(req.WithContext(ctx))
			err := next(c)

			status := c.Response().Status()
			span.SetAttributes(attribute.Int("http.status_code", status))
			switch {
			case err != nil:
				span.RecordError(err)
				span.SetStatus(codes.Error, err.Error())
			case status >= 500:
				span.SetStatus(codes.Error, fmt.Sprintf("HTTP %d", status))
			default:
				span.SetStatus(codes.Ok, "")
			}
			return err
		}
	}
}

func excluded(path string, prefixes []string) bool {
	for _, prefix := range prefixes {
		if prefix != "" && strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}
