package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nimburion/listquery/pkg/config"
	"github.com/nimburion/listquery/pkg/health"
	"github.com/nimburion/listquery/pkg/i18n"
	"github.com/nimburion/listquery/pkg/middleware/ratelimit"
	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/observability/metrics"
	"github.com/nimburion/listquery/pkg/observability/tracing"
	"github.com/nimburion/listquery/pkg/server/router"
	"github.com/nimburion/listquery/pkg/server/router/factory"
	"github.com/nimburion/listquery/pkg/version"
)

const defaultShutdownHookTimeout = 10 * time.Second

// LifecycleHook defines a named startup/shutdown action.
type LifecycleHook struct {
	Name string
	Fn   func(context.Context) error
}

// Options are the inputs for building and running the HTTP servers.
type Options struct {
	Config *config.Config
	Logger logger.Logger

	// PublicRouter and ManagementRouter are created from Config.RouterType when nil.
	PublicRouter     router.Router
	ManagementRouter router.Router

	Catalog *i18n.Catalog
	Limiter ratelimit.RateLimiter

	HealthRegistry  *health.Registry
	MetricsRegistry *metrics.Registry

	// RegisterRoutes mounts the collection routes once the middleware stack is in place.
	RegisterRoutes func(r router.Router) error

	StartupHooks        []LifecycleHook
	ShutdownHooks       []LifecycleHook
	ShutdownHookTimeout time.Duration
}

// HTTPServers groups the public and, when enabled, management servers.
type HTTPServers struct {
	Public     *PublicAPIServer
	Management *ManagementServer
}

// BuildHTTPServers constructs the servers and mounts every route. With the
// management server disabled, the probes share the public router.
func BuildHTTPServers(opts *Options) (*HTTPServers, error) {
	if opts.Config == nil {
		opts.Config = config.DefaultConfig()
	}
	if opts.Logger == nil {
		log, err := logger.NewZapLogger(logger.DefaultConfig())
		if err != nil {
			return nil, err
		}
		opts.Logger = log
	}
	if opts.HealthRegistry == nil {
		opts.HealthRegistry = health.NewRegistry()
	}
	if opts.MetricsRegistry == nil {
		opts.MetricsRegistry = metrics.NewRegistry()
	}
	if opts.PublicRouter == nil {
		r, err := factory.NewRouter(opts.Config.RouterType)
		if err != nil {
			return nil, fmt.Errorf("create public router: %w", err)
		}
		opts.PublicRouter = r
	}

	public := NewPublicAPIServer(opts.Config, opts.PublicRouter, PublicOptions{
		Catalog: opts.Catalog,
		Limiter: opts.Limiter,
	}, opts.Logger)
	if opts.RegisterRoutes != nil {
		if err := opts.RegisterRoutes(public.Router()); err != nil {
			return nil, fmt.Errorf("register routes: %w", err)
		}
	}

	probes := Probes{
		Health:      opts.HealthRegistry,
		Metrics:     opts.MetricsRegistry,
		MetricsPath: opts.Config.Observability.MetricsPath,
		Version:     version.Current(resolveServiceName(opts)),
	}
	servers := &HTTPServers{Public: public}
	if !opts.Config.Management.Enabled {
		probes.Register(public.Router())
		return servers, nil
	}

	if opts.ManagementRouter == nil {
		r, err := factory.NewRouter(opts.Config.RouterType)
		if err != nil {
			return nil, fmt.Errorf("create management router: %w", err)
		}
		opts.ManagementRouter = r
	}
	management, err := NewManagementServer(opts.Config.Management, opts.ManagementRouter, probes, opts.Logger)
	if err != nil {
		return nil, fmt.Errorf("create management server: %w", err)
	}
	servers.Management = management
	return servers, nil
}

// RunHTTPServers installs the tracer provider, runs the startup hooks and
// serves until ctx is cancelled or a server fails. Shutdown hooks run last.
func RunHTTPServers(ctx context.Context, servers *HTTPServers, opts *Options) error {
	if servers == nil || servers.Public == nil {
		return errors.New("servers and public server are required")
	}
	if opts.Logger == nil {
		return errors.New("logger is required")
	}
	if opts.Config == nil {
		return errors.New("config is required")
	}

	info := version.Current(resolveServiceName(opts))
	opts.Logger.Info("application version metadata",
		"service", info.Service,
		"version", info.Version,
		"commit", info.Commit,
		"build_time", info.BuildTime,
	)

	provider, err := tracing.NewTracerProvider(ctx, tracing.TracerConfig{
		ServiceName:    info.Service,
		ServiceVersion: info.Version,
		Environment:    resolveEnvironment(opts),
		Endpoint:       opts.Config.Observability.TracingEndpoint,
		SampleRate:     opts.Config.Observability.TracingSampleRate,
		Enabled:        opts.Config.Observability.TracingEnabled,
	})
	if err != nil {
		return fmt.Errorf("initialize tracing provider: %w", err)
	}
	defer shutdownTracerProvider(provider, opts.Logger)

	if err := runStartupHooks(ctx, opts); err != nil {
		return err
	}
	defer func() {
		if shutdownErr := runShutdownHooks(opts); shutdownErr != nil {
			opts.Logger.Error("shutdown hooks completed with errors", "error", shutdownErr)
		}
	}()

	// The first server to fail cancels the group context, which stops the other.
	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return servers.Public.Start(runCtx) })
	if servers.Management != nil {
		g.Go(func() error { return servers.Management.Start(runCtx) })
	}
	return g.Wait()
}

// RunHTTPServersWithSignals runs the servers until SIGINT or SIGTERM.
func RunHTTPServersWithSignals(ctx context.Context, servers *HTTPServers, opts *Options) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	return RunHTTPServers(ctx, servers, opts)
}

func shutdownTracerProvider(provider *tracing.TracerProvider, log logger.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownHookTimeout)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		log.Error("failed to shutdown tracing provider", "error", err)
	}
}

func resolveServiceName(opts *Options) string {
	if opts.Config != nil {
		if name := strings.TrimSpace(opts.Config.Service.Name); name != "" {
			return name
		}
	}
	return version.Unknown
}

func resolveEnvironment(opts *Options) string {
	if opts.Config != nil {
		if env := strings.TrimSpace(opts.Config.Service.Environment); env != "" {
			return env
		}
	}
	return version.Unknown
}

func hookName(hook LifecycleHook) string {
	if name := strings.TrimSpace(hook.Name); name != "" {
		return name
	}
	return "unnamed"
}

func runStartupHooks(ctx context.Context, opts *Options) error {
	for _, hook := range opts.StartupHooks {
		if hook.Fn == nil {
			continue
		}
		name := hookName(hook)
		opts.Logger.Info("startup hook start", "hook", name)
		if err := hook.Fn(ctx); err != nil {
			opts.Logger.Error("startup hook failed", "hook", name, "error", err)
			return fmt.Errorf("startup hook %q failed: %w", name, err)
		}
		opts.Logger.Info("startup hook complete", "hook", name)
	}
	return nil
}

// runShutdownHooks runs every hook even when earlier ones fail.
func runShutdownHooks(opts *Options) error {
	timeout := opts.ShutdownHookTimeout
	if timeout <= 0 {
		timeout = defaultShutdownHookTimeout
	}

	var errs []error
	for _, hook := range opts.ShutdownHooks {
		if hook.Fn == nil {
			continue
		}
		name := hookName(hook)
		hookCtx, cancel := context.WithTimeout(context.Background(), timeout)
		err := hook.Fn(hookCtx)
		cancel()
		if err != nil {
			opts.Logger.Error("shutdown hook failed", "hook", name, "error", err)
			errs = append(errs, fmt.Errorf("shutdown hook %q failed: %w", name, err))
			continue
		}
		opts.Logger.Info("shutdown hook complete", "hook", name)
	}
	return errors.Join(errs...)
}
