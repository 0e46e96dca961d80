package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
	settings   map[string]interface{}
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"router-type":   "router_type",
	"http-port":     "http.port",
	"mgmt-port":     "management.port",
	"database-url":  "database.url",
	"database-name": "database.database_name",
	"cache-enabled": "cache.enabled",
	"cache-url":     "cache.url",
	"log-level":     "observability.log_level",
	"log-format":    "observability.log_format",
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (e.g., "APP")
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: configFile,
		envPrefix:  envPrefix,
	}
}

// WithFlags lets changed command line flags override every other source.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// RegisterFlags declares the override flags on fs.
func RegisterFlags(fs *pflag.FlagSet) {
	defaults := DefaultConfig()
	fs.String("router-type", defaults.RouterType, "HTTP router: gin or gorilla")
	fs.Int("http-port", defaults.HTTP.Port, "public HTTP port")
	fs.Int("mgmt-port", defaults.Management.Port, "management HTTP port")
	fs.String("database-url", defaults.Database.URL, "MongoDB connection URL")
	fs.String("database-name", defaults.Database.DatabaseName, "MongoDB database name")
	fs.Bool("cache-enabled", defaults.Cache.Enabled, "enable the Redis list result cache")
	fs.String("cache-url", defaults.Cache.URL, "Redis connection URL")
	fs.String("log-level", defaults.Observability.LogLevel, "log level: debug, info, warn, error")
	fs.String("log-format", defaults.Observability.LogFormat, "log format: json or text")
}

// Load loads configuration with precedence: flags > ENV > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	if err := l.bindFlags(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	l.settings = v.AllSettings()

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

// AllSettings returns the merged settings of the last Load.
func (l *ViperLoader) AllSettings() map[string]interface{} {
	if l.settings == nil {
		return map[string]interface{}{}
	}
	return l.settings
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range flagKeys {
		flag := l.flags.Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	v.BindEnv("router_type", l.prefixedEnv("ROUTER_TYPE"))
	v.BindEnv("service.name", l.prefixedEnv("SERVICE_NAME"))
	v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// HTTP
	v.BindEnv("http.port", l.prefixedEnv("HTTP_PORT"))
	v.BindEnv("http.read_timeout", l.prefixedEnv("HTTP_READ_TIMEOUT"))
	v.BindEnv("http.write_timeout", l.prefixedEnv("HTTP_WRITE_TIMEOUT"))
	v.BindEnv("http.idle_timeout", l.prefixedEnv("HTTP_IDLE_TIMEOUT"))
	v.BindEnv("http.shutdown_timeout", l.prefixedEnv("HTTP_SHUTDOWN_TIMEOUT"))
	v.BindEnv("http.request_timeout", l.prefixedEnv("HTTP_REQUEST_TIMEOUT"))
	v.BindEnv("http.max_body_bytes", l.prefixedEnv("HTTP_MAX_BODY_BYTES"))

	// Management
	v.BindEnv("management.enabled", l.prefixedEnv("MANAGEMENT_ENABLED"))
	v.BindEnv("management.port", l.prefixedEnv("MANAGEMENT_PORT"))
	v.BindEnv("management.read_timeout", l.prefixedEnv("MANAGEMENT_READ_TIMEOUT"))
	v.BindEnv("management.write_timeout", l.prefixedEnv("MANAGEMENT_WRITE_TIMEOUT"))
	v.BindEnv("management.mtls_enabled", l.prefixedEnv("MANAGEMENT_MTLS_ENABLED"))
	v.BindEnv("management.tls_cert_file", l.prefixedEnv("MANAGEMENT_TLS_CERT_FILE"))
	v.BindEnv("management.tls_key_file", l.prefixedEnv("MANAGEMENT_TLS_KEY_FILE"))
	v.BindEnv("management.tls_ca_file", l.prefixedEnv("MANAGEMENT_TLS_CA_FILE"))

	// Database
	v.BindEnv("database.type", l.prefixedEnv("DB_TYPE"))
	v.BindEnv("database.url", l.prefixedEnv("DB_URL"))
	v.BindEnv("database.database_name", l.prefixedEnv("DB_NAME"))
	v.BindEnv("database.connect_timeout", l.prefixedEnv("DB_CONNECT_TIMEOUT"))
	v.BindEnv("database.query_timeout", l.prefixedEnv("DB_QUERY_TIMEOUT"))

	// Cache
	v.BindEnv("cache.enabled", l.prefixedEnv("CACHE_ENABLED"))
	v.BindEnv("cache.type", l.prefixedEnv("CACHE_TYPE"))
	v.BindEnv("cache.url", l.prefixedEnv("CACHE_URL"))
	v.BindEnv("cache.max_conns", l.prefixedEnv("CACHE_MAX_CONNS"))
	v.BindEnv("cache.ttl", l.prefixedEnv("CACHE_TTL"))
	v.BindEnv("cache.operation_timeout", l.prefixedEnv("CACHE_OPERATION_TIMEOUT"))
	v.BindEnv("cache.breaker_failures", l.prefixedEnv("CACHE_BREAKER_FAILURES"))
	v.BindEnv("cache.breaker_cooldown", l.prefixedEnv("CACHE_BREAKER_COOLDOWN"))

	// Query
	v.BindEnv("query.default_limit", l.prefixedEnv("QUERY_DEFAULT_LIMIT"))
	v.BindEnv("query.max_limit", l.prefixedEnv("QUERY_MAX_LIMIT"))
	v.BindEnv("query.default_sort", l.prefixedEnv("QUERY_DEFAULT_SORT"))
	v.BindEnv("query.search_fields", l.prefixedEnv("QUERY_SEARCH_FIELDS"))

	// I18n
	v.BindEnv("i18n.default_locale", l.prefixedEnv("I18N_DEFAULT_LOCALE"))
	v.BindEnv("i18n.catalog_path", l.prefixedEnv("I18N_CATALOG_PATH"))
	v.BindEnv("i18n.header_name", l.prefixedEnv("I18N_HEADER_NAME"))

	// Compression
	v.BindEnv("compression.enabled", l.prefixedEnv("COMPRESSION_ENABLED"))
	v.BindEnv("compression.min_size", l.prefixedEnv("COMPRESSION_MIN_SIZE"))
	v.BindEnv("compression.gzip_level", l.prefixedEnv("COMPRESSION_GZIP_LEVEL"))
	v.BindEnv("compression.brotli_level", l.prefixedEnv("COMPRESSION_BROTLI_LEVEL"))

	// Rate limit
	v.BindEnv("rate_limit.enabled", l.prefixedEnv("RATE_LIMIT_ENABLED"))
	v.BindEnv("rate_limit.type", l.prefixedEnv("RATE_LIMIT_TYPE"))
	v.BindEnv("rate_limit.requests_per_second", l.prefixedEnv("RATE_LIMIT_RPS"))
	v.BindEnv("rate_limit.burst", l.prefixedEnv("RATE_LIMIT_BURST"))
	v.BindEnv("rate_limit.window", l.prefixedEnv("RATE_LIMIT_WINDOW"))

	// Observability
	v.BindEnv("observability.log_level", l.prefixedEnv("LOG_LEVEL"))
	v.BindEnv("observability.log_format", l.prefixedEnv("LOG_FORMAT"))
	v.BindEnv("observability.metrics_path", l.prefixedEnv("METRICS_PATH"))
	v.BindEnv("observability.tracing_enabled", l.prefixedEnv("TRACING_ENABLED"))
	v.BindEnv("observability.tracing_sample_rate", l.prefixedEnv("TRACING_SAMPLE_RATE"))
	v.BindEnv("observability.tracing_endpoint", l.prefixedEnv("TRACING_ENDPOINT"))
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = "APP"
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("router_type", cfg.RouterType)
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("http.port", cfg.HTTP.Port)
	v.SetDefault("http.read_timeout", cfg.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", cfg.HTTP.WriteTimeout)
	v.SetDefault("http.idle_timeout", cfg.HTTP.IdleTimeout)
	v.SetDefault("http.shutdown_timeout", cfg.HTTP.ShutdownTimeout)
	v.SetDefault("http.request_timeout", cfg.HTTP.RequestTimeout)
	v.SetDefault("http.max_body_bytes", cfg.HTTP.MaxBodyBytes)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)
	v.SetDefault("management.mtls_enabled", cfg.Management.MTLSEnabled)
	v.SetDefault("management.tls_cert_file", cfg.Management.TLSCertFile)
	v.SetDefault("management.tls_key_file", cfg.Management.TLSKeyFile)
	v.SetDefault("management.tls_ca_file", cfg.Management.TLSCAFile)

	v.SetDefault("database.type", cfg.Database.Type)
	v.SetDefault("database.url", cfg.Database.URL)
	v.SetDefault("database.database_name", cfg.Database.DatabaseName)
	v.SetDefault("database.connect_timeout", cfg.Database.ConnectTimeout)
	v.SetDefault("database.query_timeout", cfg.Database.QueryTimeout)

	v.SetDefault("cache.enabled", cfg.Cache.Enabled)
	v.SetDefault("cache.type", cfg.Cache.Type)
	v.SetDefault("cache.url", cfg.Cache.URL)
	v.SetDefault("cache.max_conns", cfg.Cache.MaxConns)
	v.SetDefault("cache.ttl", cfg.Cache.TTL)
	v.SetDefault("cache.operation_timeout", cfg.Cache.OperationTimeout)
	v.SetDefault("cache.breaker_failures", cfg.Cache.BreakerFailures)
	v.SetDefault("cache.breaker_cooldown", cfg.Cache.BreakerCooldown)

	v.SetDefault("query.default_limit", cfg.Query.DefaultLimit)
	v.SetDefault("query.max_limit", cfg.Query.MaxLimit)
	v.SetDefault("query.default_sort", cfg.Query.DefaultSort)
	v.SetDefault("query.search_fields", cfg.Query.SearchFields)

	v.SetDefault("i18n.default_locale", cfg.I18n.DefaultLocale)
	v.SetDefault("i18n.catalog_path", cfg.I18n.CatalogPath)
	v.SetDefault("i18n.header_name", cfg.I18n.HeaderName)

	v.SetDefault("compression.enabled", cfg.Compression.Enabled)
	v.SetDefault("compression.min_size", cfg.Compression.MinSize)
	v.SetDefault("compression.gzip_level", cfg.Compression.GzipLevel)
	v.SetDefault("compression.brotli_level", cfg.Compression.BrotliLevel)

	v.SetDefault("rate_limit.enabled", cfg.RateLimit.Enabled)
	v.SetDefault("rate_limit.type", cfg.RateLimit.Type)
	v.SetDefault("rate_limit.requests_per_second", cfg.RateLimit.RequestsPerSecond)
	v.SetDefault("rate_limit.burst", cfg.RateLimit.Burst)
	v.SetDefault("rate_limit.window", cfg.RateLimit.Window)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.metrics_path", cfg.Observability.MetricsPath)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
}

// Validate validates the configuration and returns every problem found.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	cfg.RouterType = strings.ToLower(strings.TrimSpace(cfg.RouterType))
	validRouterTypes := []string{RouterTypeGin, RouterTypeGorilla}
	if !contains(validRouterTypes, cfg.RouterType) {
		errs = append(errs, fmt.Errorf("invalid router_type: %s (must be one of: %v)", cfg.RouterType, validRouterTypes))
	}

	if cfg.HTTP.Port < 1 || cfg.HTTP.Port > 65535 {
		errs = append(errs, fmt.Errorf("http.port must be between 1 and 65535, got %d", cfg.HTTP.Port))
	}

	if cfg.Management.Enabled {
		if cfg.Management.Port < 1 || cfg.Management.Port > 65535 {
			errs = append(errs, fmt.Errorf("management.port must be between 1 and 65535, got %d", cfg.Management.Port))
		} else if cfg.Management.Port == cfg.HTTP.Port {
			errs = append(errs, fmt.Errorf("management.port %d collides with http.port", cfg.Management.Port))
		}
		if cfg.Management.MTLSEnabled && (cfg.Management.TLSCertFile == "" || cfg.Management.TLSKeyFile == "" || cfg.Management.TLSCAFile == "") {
			errs = append(errs, errors.New("management mTLS requires tls_cert_file, tls_key_file and tls_ca_file"))
		}
	}

	if !strings.EqualFold(cfg.Database.Type, DatabaseTypeMongoDB) {
		errs = append(errs, fmt.Errorf("unsupported database.type %q (supported: %s)", cfg.Database.Type, DatabaseTypeMongoDB))
	}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		errs = append(errs, errors.New("database.url is required"))
	}
	if strings.TrimSpace(cfg.Database.DatabaseName) == "" {
		errs = append(errs, errors.New("database.database_name is required"))
	}
	if cfg.Database.QueryTimeout <= 0 {
		errs = append(errs, errors.New("database.query_timeout must be positive"))
	}

	if cfg.Cache.Enabled {
		if !strings.EqualFold(cfg.Cache.Type, CacheTypeRedis) {
			errs = append(errs, fmt.Errorf("unsupported cache.type %q (supported: %s)", cfg.Cache.Type, CacheTypeRedis))
		}
		if strings.TrimSpace(cfg.Cache.URL) == "" {
			errs = append(errs, errors.New("cache.url is required when cache is enabled"))
		}
		if cfg.Cache.TTL <= 0 {
			errs = append(errs, errors.New("cache.ttl must be positive when cache is enabled"))
		}
		if cfg.Cache.BreakerFailures < 0 {
			errs = append(errs, errors.New("cache.breaker_failures must not be negative"))
		}
		if cfg.Cache.BreakerFailures > 0 && cfg.Cache.BreakerCooldown <= 0 {
			errs = append(errs, errors.New("cache.breaker_cooldown must be positive when the breaker is enabled"))
		}
	}

	if cfg.Query.DefaultLimit <= 0 {
		errs = append(errs, fmt.Errorf("query.default_limit must be positive, got %d", cfg.Query.DefaultLimit))
	}
	if cfg.Query.MaxLimit < 0 {
		errs = append(errs, fmt.Errorf("query.max_limit must not be negative, got %d", cfg.Query.MaxLimit))
	}
	if cfg.Query.MaxLimit > 0 && cfg.Query.DefaultLimit > cfg.Query.MaxLimit {
		errs = append(errs, fmt.Errorf("query.default_limit %d exceeds query.max_limit %d", cfg.Query.DefaultLimit, cfg.Query.MaxLimit))
	}
	cfg.Query.SearchFields = normalizeStringSlice(cfg.Query.SearchFields)

	seenPaths := map[string]bool{}
	for i := range cfg.Resources {
		res := &cfg.Resources[i]
		res.Path = "/" + strings.Trim(strings.TrimSpace(res.Path), "/")
		res.SearchFields = normalizeStringSlice(res.SearchFields)
		if strings.TrimSpace(res.Collection) == "" {
			errs = append(errs, fmt.Errorf("resources[%d].collection is required", i))
		}
		if res.Path == "/" {
			errs = append(errs, fmt.Errorf("resources[%d].path is required", i))
		} else if seenPaths[res.Path] {
			errs = append(errs, fmt.Errorf("resources[%d].path %s is duplicated", i, res.Path))
		}
		seenPaths[res.Path] = true
	}

	if cfg.HTTP.RequestTimeout < 0 {
		errs = append(errs, errors.New("http.request_timeout must not be negative"))
	}
	if cfg.HTTP.MaxBodyBytes < 0 {
		errs = append(errs, errors.New("http.max_body_bytes must not be negative"))
	}

	if strings.TrimSpace(cfg.I18n.DefaultLocale) == "" {
		errs = append(errs, errors.New("i18n.default_locale is required"))
	}

	if cfg.Compression.Enabled && (cfg.Compression.GzipLevel < -2 || cfg.Compression.GzipLevel > 9) {
		errs = append(errs, fmt.Errorf("compression.gzip_level must be between -2 and 9, got %d", cfg.Compression.GzipLevel))
	}
	if cfg.Compression.Enabled && (cfg.Compression.BrotliLevel < 0 || cfg.Compression.BrotliLevel > 11) {
		errs = append(errs, fmt.Errorf("compression.brotli_level must be between 0 and 11, got %d", cfg.Compression.BrotliLevel))
	}

	if cfg.RateLimit.Enabled {
		cfg.RateLimit.Type = strings.ToLower(strings.TrimSpace(cfg.RateLimit.Type))
		switch cfg.RateLimit.Type {
		case RateLimitTypeLocal:
		case RateLimitTypeRedis:
			if !cfg.Cache.Enabled {
				errs = append(errs, errors.New("rate_limit.type redis requires cache.enabled"))
			}
		default:
			errs = append(errs, fmt.Errorf("unsupported rate_limit.type %q (supported: %s, %s)", cfg.RateLimit.Type, RateLimitTypeLocal, RateLimitTypeRedis))
		}
		if cfg.RateLimit.RequestsPerSecond <= 0 {
			errs = append(errs, errors.New("rate_limit.requests_per_second must be positive"))
		}
		if cfg.RateLimit.Burst < 0 {
			errs = append(errs, errors.New("rate_limit.burst must not be negative"))
		}
	}

	validLogLevels := []string{"debug", "info", "warn", "warning", "error"}
	if !contains(validLogLevels, strings.ToLower(cfg.Observability.LogLevel)) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s", cfg.Observability.LogLevel))
	}
	validLogFormats := []string{"json", "text", "console"}
	if !contains(validLogFormats, strings.ToLower(cfg.Observability.LogFormat)) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s", cfg.Observability.LogFormat))
	}
	if !strings.HasPrefix(cfg.Observability.MetricsPath, "/") {
		errs = append(errs, fmt.Errorf("observability.metrics_path must start with /, got %q", cfg.Observability.MetricsPath))
	}
	if cfg.Observability.TracingEnabled {
		if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
			errs = append(errs, errors.New("observability.tracing_sample_rate must be between 0 and 1"))
		}
		if strings.TrimSpace(cfg.Observability.TracingEndpoint) == "" {
			errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
		}
	}

	return errors.Join(errs...)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func normalizeStringSlice(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(part); trimmed != "" {
				out = append(out, trimmed)
			}
		}
	}
	return out
}
