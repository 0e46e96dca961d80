package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/nimburion/listquery/pkg/config"
	"github.com/nimburion/listquery/pkg/health"
	"github.com/nimburion/listquery/pkg/middleware/recovery"
	"github.com/nimburion/listquery/pkg/middleware/requestid"
	"github.com/nimburion/listquery/pkg/observability/logger"
	"github.com/nimburion/listquery/pkg/observability/metrics"
	"github.com/nimburion/listquery/pkg/server/router"
	"github.com/nimburion/listquery/pkg/version"
)

const (
	pathHealth  = "/health"
	pathReady   = "/ready"
	pathVersion = "/version"
)

// Probes are the operational endpoints: liveness, readiness, Prometheus
// metrics and build metadata.
type Probes struct {
	Health      *health.Registry
	Metrics     *metrics.Registry
	MetricsPath string
	Version     version.Info
}

// Register mounts the probe routes on r.
func (p Probes) Register(r router.Router) {
	r.GET(pathHealth, p.handleHealth)
	r.GET(pathReady, p.handleReady)
	r.GET(p.MetricsPath, p.handleMetrics)
	r.GET(pathVersion, p.handleVersion)
}

// handleHealth is the liveness probe; it never touches dependencies.
func (p Probes) handleHealth(c router.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": string(health.StatusHealthy)})
}

// handleReady answers 503 while the document store is unreachable. A
// degraded cache still reports ready.
func (p Probes) handleReady(c router.Context) error {
	result := p.Health.Check(c.Request().Context())
	if !result.IsReady() {
		return c.JSON(http.StatusServiceUnavailable, result)
	}
	return c.JSON(http.StatusOK, result)
}

func (p Probes) handleMetrics(c router.Context) error {
	p.Metrics.Handler().ServeHTTP(c.Response(), c.Request())
	return nil
}

func (p Probes) handleVersion(c router.Context) error {
	return c.JSON(http.StatusOK, p.Version)
}

// ManagementServer serves the probes on their own port, optionally behind mTLS.
type ManagementServer struct {
	*Server
}

// NewManagementServer mounts probes on r behind a light middleware stack.
func NewManagementServer(cfg config.ManagementConfig, r router.Router, probes Probes, log logger.Logger) (*ManagementServer, error) {
	r.Use(
		requestid.RequestID(),
		recovery.Recovery(log),
	)

	serverCfg := Config{
		Name:         "management",
		Port:         cfg.Port,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}
	if cfg.MTLSEnabled {
		tlsConfig, err := LoadTLSConfig(cfg.TLSCertFile, cfg.TLSKeyFile, cfg.TLSCAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load management mTLS config: %w", err)
		}
		serverCfg.TLSConfig = tlsConfig
		log.Info("management mTLS enabled")
	}

	probes.Register(r)
	return &ManagementServer{Server: NewServer(serverCfg, r, log)}, nil
}
