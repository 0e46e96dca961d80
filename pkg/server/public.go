package server

import (
	"strings"

	"github.com/nimburion/listquery/pkg/config"
	"github.com/nimburion/listquery/pkg/controller"
	"github.com/nimburion/listquery/pkg/i18n"
	"github.com/nimburion/listquery/pkg/middleware/compression"
	localemw "github.com/nimburion/listquery/pkg/middleware/i18n"
	"github.com/nimburion/listquery/pkg/middleware/logging"
	"github.com/nimburion/listquery/pkg/middleware/metrics"
	"github.com/nimburion/listquery/pkg/middleware/ratelimit"
	"github.com/nimburion/listquery/pkg/middleware/recovery"
	"github.com/nimburion/listquery/pkg/middleware/requestid"
	timeoutmw "github.com/nimburion/listquery/pkg/middleware/timeout"
	"github.com/nimburion/listquery/pkg/middleware/tracing"
	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/server/router"
)

// PublicOptions are the collaborators of the public middleware stack.
type PublicOptions struct {
	Catalog *i18n.Catalog
	// Limiter throttles clients; nil disables rate limiting.
	Limiter ratelimit.RateLimiter
}

// PublicAPIServer serves the collection routes.
type PublicAPIServer struct {
	*Server
	router router.Router
}

type namedMiddleware struct {
	name string
	fn   router.MiddlewareFunc
}

// NewPublicAPIServer installs the middleware stack and the not-found
// envelope on r. Routes must be registered on r afterwards, since the
// adapters apply middleware to routes registered after Use.
func NewPublicAPIServer(cfg *config.Config, r router.Router, opts PublicOptions, log logger.Logger) *PublicAPIServer {
	stack := publicMiddleware(cfg, opts, log)
	funcs := make([]router.MiddlewareFunc, 0, len(stack))
	names := make([]string, 0, len(stack))
	for _, entry := range stack {
		funcs = append(funcs, entry.fn)
		names = append(names, entry.name)
	}
	log.Debug("active middleware stack", "middlewares", strings.Join(names, ", "))
	r.Use(funcs...)
	r.NotFound(controller.NotFound)

	return &PublicAPIServer{
		Server: NewServer(Config{
			Name:            "public",
			Port:            cfg.HTTP.Port,
			ReadTimeout:     cfg.HTTP.ReadTimeout,
			WriteTimeout:    cfg.HTTP.WriteTimeout,
			IdleTimeout:     cfg.HTTP.IdleTimeout,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		}, r, log),
		router: r,
	}
}

// Router returns the router routes are registered on.
func (s *PublicAPIServer) Router() router.Router {
	return s.router
}

// publicMiddleware orders the stack outermost first. The request id comes
// first so every later entry can log it; the locale is resolved before
// anything that may render a localized error.
func publicMiddleware(cfg *config.Config, opts PublicOptions, log logger.Logger) []namedMiddleware {
	skip := probePrefixes(cfg)

	loggingCfg := logging.DefaultConfig()
	loggingCfg.ExcludedPathPrefixes = skip

	stack := []namedMiddleware{
		{name: "request_id", fn: requestid.RequestID()},
		{name: "recovery", fn: recovery.Recovery(log)},
		{name: "logging", fn: logging.WithConfig(log, loggingCfg)},
	}
	if cfg.Observability.TracingEnabled {
		stack = append(stack, namedMiddleware{name: "tracing", fn: tracing.Tracing(tracing.Config{
			TracerName:           tracing.DefaultConfig().TracerName,
			ExcludedPathPrefixes: skip,
		})})
	}
	stack = append(stack, namedMiddleware{name: "metrics", fn: metrics.Metrics()})

	catalog := opts.Catalog
	if catalog == nil {
		builtin, err := i18n.LoadCatalog("", cfg.I18n.DefaultLocale)
		if err != nil {
			log.Warn("built-in message catalog unavailable", "error", err)
			builtin = i18n.NewCatalog(cfg.I18n.DefaultLocale)
		}
		catalog = builtin
	}
	stack = append(stack, namedMiddleware{name: "i18n", fn: localemw.Middleware(catalog, localemw.Config{
		DefaultLocale:        cfg.I18n.DefaultLocale,
		HeaderName:           cfg.I18n.HeaderName,
		ExcludedPathPrefixes: skip,
	})})

	if cfg.Compression.Enabled {
		compressionCfg := compression.DefaultConfig()
		compressionCfg.MinSize = cfg.Compression.MinSize
		compressionCfg.GzipLevel = cfg.Compression.GzipLevel
		compressionCfg.BrotliLevel = cfg.Compression.BrotliLevel
		compressionCfg.ExcludedPathPrefixes = skip
		stack = append(stack, namedMiddleware{name: "compression", fn: compression.Middleware(compressionCfg)})
	}
	if opts.Limiter != nil {
		stack = append(stack, namedMiddleware{name: "rate_limit", fn: ratelimit.Middleware(opts.Limiter, ratelimit.Config{
			ExcludedPathPrefixes: skip,
		})})
	}
	if cfg.HTTP.RequestTimeout > 0 {
		stack = append(stack, namedMiddleware{name: "timeout", fn: timeoutmw.Middleware(timeoutmw.Config{
			Enabled:              true,
			Default:              cfg.HTTP.RequestTimeout,
			ExcludedPathPrefixes: skip,
		})})
	}
	return stack
}

// probePrefixes are the management paths, which skip logging, tracing,
// compression, throttling and timeouts when mounted on the public router.
func probePrefixes(cfg *config.Config) []string {
	return []string{cfg.Observability.MetricsPath, pathHealth, pathReady, pathVersion}
}
