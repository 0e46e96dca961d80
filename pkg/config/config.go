package config

import "time"

// Router type constants
const (
	RouterTypeGin     = "gin"
	RouterTypeGorilla = "gorilla"
)

// DatabaseTypeMongoDB is the only supported document store.
const DatabaseTypeMongoDB = "mongodb"

// CacheTypeRedis enables the Redis list result cache.
const CacheTypeRedis = "redis"

// Rate limiter backends.
const (
	RateLimitTypeLocal = "local"
	RateLimitTypeRedis = "redis"
)

// Config is the root configuration of the list query service.
type Config struct {
	RouterType    string `mapstructure:"router_type"`
	Service       ServiceConfig
	HTTP          HTTPConfig
	Management    ManagementConfig
	Database      DatabaseConfig
	Cache         CacheConfig
	Query         QueryConfig
	Resources     []ResourceConfig `mapstructure:"resources"`
	I18n          I18nConfig
	Compression   CompressionConfig
	RateLimit     RateLimitConfig `mapstructure:"rate_limit"`
	Observability ObservabilityConfig
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// HTTPConfig configures the public API server
type HTTPConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	// RequestTimeout bounds each request's context; 0 disables it.
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	// MaxBodyBytes caps create and update bodies; 0 disables the cap.
	MaxBodyBytes int64 `mapstructure:"max_body_bytes"`
}

// ManagementConfig configures the probe and metrics server. When disabled,
// its endpoints are mounted on the public router.
type ManagementConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	MTLSEnabled  bool          `mapstructure:"mtls_enabled"`
	TLSCertFile  string        `mapstructure:"tls_cert_file"`
	TLSKeyFile   string        `mapstructure:"tls_key_file"`
	TLSCAFile    string        `mapstructure:"tls_ca_file"`
}

// DatabaseConfig configures the MongoDB connection
type DatabaseConfig struct {
	Type           string        `mapstructure:"type"`
	URL            string        `mapstructure:"url"`
	DatabaseName   string        `mapstructure:"database_name"`
	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	QueryTimeout   time.Duration `mapstructure:"query_timeout"`
}

// CacheConfig configures the optional list result cache
type CacheConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	Type             string        `mapstructure:"type"`
	URL              string        `mapstructure:"url"`
	MaxConns         int           `mapstructure:"max_conns"`
	TTL              time.Duration `mapstructure:"ttl"`
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	// BreakerFailures consecutive read or write failures make list queries
	// bypass the cache for BreakerCooldown. 0 disables the breaker.
	BreakerFailures int           `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// QueryConfig holds list query defaults shared by every resource.
type QueryConfig struct {
	DefaultLimit int64    `mapstructure:"default_limit"`
	MaxLimit     int64    `mapstructure:"max_limit"`
	DefaultSort  string   `mapstructure:"default_sort"`
	SearchFields []string `mapstructure:"search_fields"`
}

// ResourceConfig exposes one collection over HTTP.
type ResourceConfig struct {
	// Path is the route prefix, e.g. "/users".
	Path       string `mapstructure:"path"`
	Collection string `mapstructure:"collection"`
	// SearchFields overrides query.search_fields for this collection.
	SearchFields []string `mapstructure:"search_fields"`
	// BaseFilter is an equality constraint applied to every list query, e.g. {active: true}.
	BaseFilter map[string]interface{} `mapstructure:"base_filter"`
}

// I18nConfig configures localized error messages.
type I18nConfig struct {
	DefaultLocale string `mapstructure:"default_locale"`
	// CatalogPath is a directory of <locale>.yaml files overlaid on the built-in catalog.
	CatalogPath string `mapstructure:"catalog_path"`
	HeaderName  string `mapstructure:"header_name"`
}

// CompressionConfig configures response compression.
type CompressionConfig struct {
	Enabled     bool `mapstructure:"enabled"`
	MinSize     int  `mapstructure:"min_size"`
	GzipLevel   int  `mapstructure:"gzip_level"`
	BrotliLevel int  `mapstructure:"brotli_level"`
}

// RateLimitConfig configures per-client request throttling.
type RateLimitConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	Type              string        `mapstructure:"type"`
	RequestsPerSecond int           `mapstructure:"requests_per_second"`
	Burst             int           `mapstructure:"burst"`
	Window            time.Duration `mapstructure:"window"`
}

// ObservabilityConfig configures logging, metrics, and tracing
type ObservabilityConfig struct {
	LogLevel          string  `mapstructure:"log_level"`
	LogFormat         string  `mapstructure:"log_format"` // json, text
	MetricsPath       string  `mapstructure:"metrics_path"`
	TracingEnabled    bool    `mapstructure:"tracing_enabled"`
	TracingSampleRate float64 `mapstructure:"tracing_sample_rate"`
	TracingEndpoint   string  `mapstructure:"tracing_endpoint"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		RouterType: RouterTypeGin,
		Service: ServiceConfig{
			Name:        "listquery",
			Environment: "development",
		},
		HTTP: HTTPConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  0,
			MaxBodyBytes:    1 << 20,
		},
		Management: ManagementConfig{
			Enabled:      true,
			Port:         9090,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Type:           DatabaseTypeMongoDB,
			URL:            "mongodb://localhost:27017",
			DatabaseName:   "app",
			ConnectTimeout: 10 * time.Second,
			QueryTimeout:   10 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:          false,
			Type:             CacheTypeRedis,
			URL:              "redis://localhost:6379/0",
			MaxConns:         10,
			TTL:              30 * time.Second,
			OperationTimeout: 2 * time.Second,
			BreakerFailures:  5,
			BreakerCooldown:  10 * time.Second,
		},
		Query: QueryConfig{
			DefaultLimit: 20,
			MaxLimit:     0,
			DefaultSort:  "-createdAt",
		},
		I18n: I18nConfig{
			DefaultLocale: "en",
			HeaderName:    "X-Locale",
		},
		Compression: CompressionConfig{
			Enabled:     true,
			MinSize:     1024,
			GzipLevel:   -1,
			BrotliLevel: 4,
		},
		RateLimit: RateLimitConfig{
			Enabled:           false,
			Type:              RateLimitTypeLocal,
			RequestsPerSecond: 50,
			Burst:             100,
			Window:            time.Second,
		},
		Observability: ObservabilityConfig{
			LogLevel:          "info",
			LogFormat:         "json",
			MetricsPath:       "/metrics",
			TracingEnabled:    false,
			TracingSampleRate: 0.1,
			TracingEndpoint:   "localhost:4317",
		},
	}
}
