package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the adreport service.
type Config struct {
	Server     ServerConfig
	Upstream   UpstreamConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
	Auth       AuthConfig
	RateLimit  RateLimitConfig
	Log        LogConfig
	Metrics    MetricsConfig
	Geo        GeoConfig
	View       ViewConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
}

// UpstreamConfig points at the backend reporting API.
type UpstreamConfig struct {
	BaseURL string
	Timeout time.Duration
}

type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	PoolSize int
}

// ClickHouseConfig configures the snapshot archive.
type ClickHouseConfig struct {
	Enabled     bool
	Addr        []string
	Database    string
	User        string
	Password    string
	DialTimeout time.Duration
}

// AuthConfig controls the bearer token requirement. Tokens are not checked
// here; they are forwarded to the reporting API, which owns authentication.
type AuthConfig struct {
	Enabled   bool
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled bool
	RPS     float64
	Burst   int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled   bool
	Path      string
	Namespace string
}

// GeoConfig configures the GeoIP time zone lookup.
type GeoConfig struct {
	Enabled      bool
	DatabasePath string
}

// ViewConfig holds report view defaults.
type ViewConfig struct {
	DefaultRange    string
	PageSize        int
	SessionTTL      time.Duration
	ReportCacheTTL  time.Duration
	DefaultTimezone string
	FetchTimeout    time.Duration
}

// Location returns the default viewer time zone.
func (v ViewConfig) Location() (*time.Location, error) {
	return time.LoadLocation(v.DefaultTimezone)
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("ADREPORT_HTTP_ADDR", ":8080"),
			Env:             getEnv("ADREPORT_ENV", "development"),
			ShutdownTimeout: getDurationEnv("ADREPORT_SHUTDOWN_TIMEOUT", 30*time.Second),
			ReadTimeout:     getDurationEnv("ADREPORT_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationEnv("ADREPORT_WRITE_TIMEOUT", 60*time.Second),
		},
		Upstream: UpstreamConfig{
			BaseURL: getEnv("ADREPORT_UPSTREAM_URL", "http://localhost:5000/api"),
			Timeout: getDurationEnv("ADREPORT_UPSTREAM_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Enabled:  getBoolEnv("ADREPORT_DB_ENABLED", true),
			Host:     getEnv("ADREPORT_DB_HOST", "localhost"),
			Port:     getIntEnv("ADREPORT_DB_PORT", 5432),
			User:     getEnv("ADREPORT_DB_USER", "adreport"),
			Password: getEnv("ADREPORT_DB_PASSWORD", "adreport_secret"),
			DBName:   getEnv("ADREPORT_DB_NAME", "adreport"),
			SSLMode:  getEnv("ADREPORT_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("ADREPORT_DB_MAX_CONNS", 10),
			MinConns: getIntEnv("ADREPORT_DB_MIN_CONNS", 2),
		},
		Redis: RedisConfig{
			Enabled:  getBoolEnv("ADREPORT_REDIS_ENABLED", true),
			Addr:     getEnv("ADREPORT_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("ADREPORT_REDIS_PASSWORD", ""),
			DB:       getIntEnv("ADREPORT_REDIS_DB", 0),
			PoolSize: getIntEnv("ADREPORT_REDIS_POOL_SIZE", 20),
		},
		ClickHouse: ClickHouseConfig{
			Enabled:     getBoolEnv("ADREPORT_CLICKHOUSE_ENABLED", false),
			Addr:        getSliceEnv("ADREPORT_CLICKHOUSE_ADDR", []string{"localhost:9000"}),
			Database:    getEnv("ADREPORT_CLICKHOUSE_DB", "adreport"),
			User:        getEnv("ADREPORT_CLICKHOUSE_USER", "default"),
			Password:    getEnv("ADREPORT_CLICKHOUSE_PASSWORD", ""),
			DialTimeout: getDurationEnv("ADREPORT_CLICKHOUSE_DIAL_TIMEOUT", 5*time.Second),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("ADREPORT_AUTH_ENABLED", true),
			SkipPaths: getSliceEnv("ADREPORT_AUTH_SKIP_PATHS", []string{"/health", "/metrics"}),
		},
		RateLimit: RateLimitConfig{
			Enabled: getBoolEnv("ADREPORT_RATE_LIMIT_ENABLED", true),
			RPS:     getFloatEnv("ADREPORT_RATE_LIMIT_RPS", 20),
			Burst:   getIntEnv("ADREPORT_RATE_LIMIT_BURST", 40),
		},
		Log: LogConfig{
			Level:  getEnv("ADREPORT_LOG_LEVEL", "info"),
			Format: getEnv("ADREPORT_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled:   getBoolEnv("ADREPORT_METRICS_ENABLED", true),
			Path:      getEnv("ADREPORT_METRICS_PATH", "/metrics"),
			Namespace: getEnv("ADREPORT_METRICS_NAMESPACE", "adreport"),
		},
		Geo: GeoConfig{
			Enabled:      getBoolEnv("ADREPORT_GEO_ENABLED", false),
			DatabasePath: getEnv("ADREPORT_GEO_DB_PATH", "/app/data/GeoLite2-City.mmdb"),
		},
		View: ViewConfig{
			DefaultRange:    getEnv("ADREPORT_DEFAULT_RANGE", "LAST_7_DAYS"),
			PageSize:        getIntEnv("ADREPORT_PAGE_SIZE", 30),
			SessionTTL:      getDurationEnv("ADREPORT_SESSION_TTL", 2*time.Hour),
			ReportCacheTTL:  getDurationEnv("ADREPORT_REPORT_CACHE_TTL", 5*time.Minute),
			DefaultTimezone: getEnv("ADREPORT_DEFAULT_TIMEZONE", "UTC"),
			FetchTimeout:    getDurationEnv("ADREPORT_FETCH_TIMEOUT", 45*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	var errs []error
	if c.Upstream.BaseURL == "" {
		errs = append(errs, errors.New("ADREPORT_UPSTREAM_URL is required"))
	}
	if c.View.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("ADREPORT_PAGE_SIZE must be positive, got %d", c.View.PageSize))
	}
	if _, err := c.View.Location(); err != nil {
		errs = append(errs, fmt.Errorf("ADREPORT_DEFAULT_TIMEZONE: %w", err))
	}
	if c.RateLimit.Enabled && (c.RateLimit.RPS <= 0 || c.RateLimit.Burst <= 0) {
		errs = append(errs, errors.New("rate limit RPS and burst must be positive when enabled"))
	}
	if c.Redis.Enabled && c.Redis.PoolSize <= 0 {
		errs = append(errs, fmt.Errorf("ADREPORT_REDIS_POOL_SIZE must be positive, got %d", c.Redis.PoolSize))
	}
	if c.ClickHouse.Enabled && len(c.ClickHouse.Addr) == 0 {
		errs = append(errs, errors.New("ADREPORT_CLICKHOUSE_ADDR is required when ClickHouse is enabled"))
	}
	if c.Geo.Enabled && c.Geo.DatabasePath == "" {
		errs = append(errs, errors.New("ADREPORT_GEO_DB_PATH is required when geo is enabled"))
	}
	return errors.Join(errs...)
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}
