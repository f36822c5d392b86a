package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/myinner/pkg/audit"
)

// DefaultSensitivePrefixes are the request paths traced by the request audit middleware
var DefaultSensitivePrefixes = []string{
	"/api/auth/",
	"/api/users/",
	"/api/notes/",
	"/admin/",
	"/api/password-reset/",
}

// Config holds all application configuration
type Config struct {
	Server        ServerConfig
	Database      DatabaseConfig
	Audit         AuditConfig
	Archive       ArchiveConfig
	Cache         CacheConfig
	RateLimit     RateLimitConfig
	Auth          AuthConfig
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// Addr returns the listen address
func (s ServerConfig) Addr() string {
	return s.Host + ":" + s.Port
}

// DatabaseConfig holds the log store and entity store settings
type DatabaseConfig struct {
	// AuditBackend selects the log store: "postgres" or "memory"
	AuditBackend string
	PostgresURL  string
	MaxOpenConns int

	// EntityDBPath is the SQLite file holding notes, tags and users
	EntityDBPath string
}

// AuditConfig holds audit pipeline settings
type AuditConfig struct {
	RetainDays         int
	SensitivePrefixes  []string
	WriteFailurePolicy audit.WriteFailurePolicy

	// RegistryPath is an optional YAML file of tracked entity types, hot reloaded
	RegistryPath string

	// CleanupSchedule is the cron expression of the retention job
	CleanupSchedule string
}

// ArchiveConfig holds settings for archiving records before retention deletes them
type ArchiveConfig struct {
	Enabled bool

	// Type is "file" or "s3"
	Type string
	Dir  string

	S3Bucket       string
	S3Prefix       string
	S3Region       string
	S3Endpoint     string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
}

// CacheConfig holds cache settings
type CacheConfig struct {
	// RedisURL enables the Redis statistics cache when set
	RedisURL string
	StatsTTL time.Duration

	UserCacheSize int
	UserCacheTTL  time.Duration
}

// RateLimitConfig holds per-caller request limits. Limits are shared through Redis when
// a Redis URL is configured, otherwise they are per process.
type RateLimitConfig struct {
	Enabled            bool
	UserPerMinute      int
	AnonymousPerMinute int
	Burst              int
}

// AuthConfig holds bearer token settings
type AuthConfig struct {
	// BootstrapAdmin creates this staff user on startup and logs a token for it
	BootstrapAdmin string
	TokenTTL       time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	LogLevel       string
	MetricsEnabled bool

	// OpenTelemetry tracing
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	policy, err := audit.ParseWriteFailurePolicy(getEnv("MYINNER_AUDIT_WRITE_FAILURE_POLICY", "best_effort"))
	if err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	cfg := &Config{
		Server:        loadServerConfig(),
		Database:      loadDatabaseConfig(),
		Audit:         loadAuditConfig(policy),
		Archive:       loadArchiveConfig(),
		Cache:         loadCacheConfig(),
		RateLimit:     loadRateLimitConfig(),
		Auth:          loadAuthConfig(),
		Observability: loadObservabilityConfig(),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func loadServerConfig() ServerConfig {
	return ServerConfig{
		Host:            getEnv("MYINNER_HOST", "0.0.0.0"),
		Port:            getEnv("MYINNER_PORT", "8000"),
		ReadTimeout:     getEnvDuration("MYINNER_READ_TIMEOUT", 15*time.Second),
		WriteTimeout:    getEnvDuration("MYINNER_WRITE_TIMEOUT", 30*time.Second),
		IdleTimeout:     getEnvDuration("MYINNER_IDLE_TIMEOUT", 60*time.Second),
		ShutdownTimeout: getEnvDuration("MYINNER_SHUTDOWN_TIMEOUT", 30*time.Second),
	}
}

func loadDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		AuditBackend: strings.ToLower(getEnv("MYINNER_AUDIT_BACKEND", "postgres")),
		PostgresURL:  getEnv("MYINNER_DATABASE_URL", ""),
		MaxOpenConns: getEnvInt("MYINNER_DATABASE_MAX_CONNS", 10),
		EntityDBPath: getEnv("MYINNER_ENTITY_DB_PATH", "myinner.db"),
	}
}

func loadAuditConfig(policy audit.WriteFailurePolicy) AuditConfig {
	return AuditConfig{
		RetainDays:         getEnvInt("MYINNER_AUDIT_RETAIN_DAYS", audit.DefaultRetainDays),
		SensitivePrefixes:  getEnvList("MYINNER_AUDIT_SENSITIVE_PREFIXES", DefaultSensitivePrefixes),
		WriteFailurePolicy: policy,
		RegistryPath:       getEnv("MYINNER_AUDIT_REGISTRY", ""),
		CleanupSchedule:    getEnv("MYINNER_AUDIT_CLEANUP_SCHEDULE", "0 3 * * *"),
	}
}

func loadArchiveConfig() ArchiveConfig {
	return ArchiveConfig{
		Enabled:        getEnvBool("MYINNER_ARCHIVE_ENABLED", false),
		Type:           strings.ToLower(getEnv("MYINNER_ARCHIVE_TYPE", "file")),
		Dir:            getEnv("MYINNER_ARCHIVE_DIR", "audit-archive"),
		S3Bucket:       getEnv("MYINNER_S3_BUCKET", ""),
		S3Prefix:       getEnv("MYINNER_S3_PREFIX", "audit/"),
		S3Region:       getEnv("MYINNER_S3_REGION", "us-east-1"),
		S3Endpoint:     getEnv("MYINNER_S3_ENDPOINT", ""),
		S3AccessKey:    getEnv("MYINNER_S3_ACCESS_KEY", ""),
		S3SecretKey:    getEnv("MYINNER_S3_SECRET_KEY", ""),
		S3UsePathStyle: getEnvBool("MYINNER_S3_USE_PATH_STYLE", false),
	}
}

func loadCacheConfig() CacheConfig {
	return CacheConfig{
		RedisURL:      getEnv("MYINNER_REDIS_URL", ""),
		StatsTTL:      getEnvDuration("MYINNER_STATS_CACHE_TTL", time.Minute),
		UserCacheSize: getEnvInt("MYINNER_USER_CACHE_SIZE", 1024),
		UserCacheTTL:  getEnvDuration("MYINNER_USER_CACHE_TTL", 5*time.Minute),
	}
}

func loadRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:            getEnvBool("MYINNER_RATE_LIMIT_ENABLED", true),
		UserPerMinute:      getEnvInt("MYINNER_RATE_LIMIT_USER", 1000),
		AnonymousPerMinute: getEnvInt("MYINNER_RATE_LIMIT_ANONYMOUS", 100),
		Burst:              getEnvInt("MYINNER_RATE_LIMIT_BURST", 10),
	}
}

func loadAuthConfig() AuthConfig {
	return AuthConfig{
		BootstrapAdmin: getEnv("MYINNER_BOOTSTRAP_ADMIN", ""),
		TokenTTL:       getEnvDuration("MYINNER_TOKEN_TTL", 24*time.Hour),
	}
}

func loadObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           getEnv("MYINNER_LOG_LEVEL", "info"),
		MetricsEnabled:     getEnvBool("MYINNER_METRICS_ENABLED", true),
		OTelEnabled:        getEnvBool("MYINNER_OTEL_ENABLED", false),
		OTelEndpoint:       getEnv("MYINNER_OTEL_ENDPOINT", "localhost:4317"),
		OTelServiceName:    getEnv("MYINNER_OTEL_SERVICE_NAME", "myinner"),
		OTelServiceVersion: getEnv("MYINNER_OTEL_SERVICE_VERSION", "1.0.0"),
		OTelInsecure:       getEnvBool("MYINNER_OTEL_INSECURE", true),
	}
}

// RetentionPolicy returns the audit retention policy
func (c *Config) RetentionPolicy() audit.RetentionPolicy {
	return audit.RetentionPolicy{
		RetainDays:     c.Audit.RetainDays,
		ArchiveEnabled: c.Archive.Enabled,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if port, err := strconv.Atoi(c.Server.Port); err != nil || port <= 0 || port > 65535 {
		return fmt.Errorf("invalid server port: %s", c.Server.Port)
	}

	switch c.Database.AuditBackend {
	case "postgres":
		if c.Database.PostgresURL == "" {
			return fmt.Errorf("database URL is required for the postgres audit backend")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid audit backend: %s (must be postgres or memory)", c.Database.AuditBackend)
	}
	if c.Database.EntityDBPath == "" {
		return fmt.Errorf("entity database path is required")
	}

	if c.Audit.RetainDays <= 0 {
		return fmt.Errorf("audit retain days must be positive, got %d", c.Audit.RetainDays)
	}
	if _, err := cron.ParseStandard(c.Audit.CleanupSchedule); err != nil {
		return fmt.Errorf("invalid cleanup schedule %q: %w", c.Audit.CleanupSchedule, err)
	}

	if c.Archive.Enabled {
		switch c.Archive.Type {
		case "file":
			if c.Archive.Dir == "" {
				return fmt.Errorf("archive directory is required for file archiving")
			}
		case "s3":
			if c.Archive.S3Bucket == "" {
				return fmt.Errorf("S3 bucket is required for s3 archiving")
			}
		default:
			return fmt.Errorf("invalid archive type: %s (must be file or s3)", c.Archive.Type)
		}
	}

	if c.Cache.StatsTTL < 0 {
		return fmt.Errorf("stats cache TTL must not be negative")
	}

	if c.RateLimit.Enabled && (c.RateLimit.UserPerMinute <= 0 || c.RateLimit.AnonymousPerMinute <= 0) {
		return fmt.Errorf("rate limits must be positive when rate limiting is enabled")
	}
	if c.RateLimit.Burst < 0 {
		return fmt.Errorf("rate limit burst must not be negative")
	}

	if c.Observability.OTelEnabled && c.Observability.OTelEndpoint == "" {
		return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
	}

	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// getEnvList returns a comma separated environment variable or a default
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return append([]string(nil), defaultValue...)
	}

	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
