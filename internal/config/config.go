package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Security SecurityConfig
	Tracker  TrackerConfig
	Metrics  MetricsConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig points at the organization's catalog store. An empty URL
// means no backing store and the tracker runs on the demonstration catalog.
type DatabaseConfig struct {
	URL      string
	MaxConns int
	Migrate  bool
}

type RedisConfig struct {
	URL        string
	CatalogTTL time.Duration
}

type LoggerConfig struct {
	Level  string
	Format string
}

type SecurityConfig struct {
	EnableRateLimit bool
	RateLimitRPS    int
	RateLimitBurst  int
	AllowedOrigins  []string
	TrustedProxies  []string
}

type TrackerConfig struct {
	OrganizationID string
	NoticeTTL      time.Duration
	RemoteTimeout  time.Duration
	SheetTarget    string
	SheetNaming    string
	ColumnRange    string
	ReportTemplate string
	AutoSend       bool
	HalfStep       []string
}

type MetricsConfig struct {
	Enabled bool
	Path    string
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(getEnvString("ENV_FILE", ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            getEnvString("SERVER_HOST", "localhost"),
			Port:            getEnvInt("SERVER_PORT", 8084),
			ReadTimeout:     getEnvDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout:    getEnvDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvDuration("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			URL:      getEnvString("DATABASE_URL", ""),
			MaxConns: getEnvInt("DATABASE_MAX_CONNECTIONS", 10),
			Migrate:  getEnvBool("DATABASE_MIGRATE", false),
		},
		Redis: RedisConfig{
			URL:        getEnvString("REDIS_URL", ""),
			CatalogTTL: getEnvDuration("REDIS_CATALOG_TTL", 10*time.Minute),
		},
		Logger: LoggerConfig{
			Level:  getEnvString("LOG_LEVEL", "info"),
			Format: getEnvString("LOG_FORMAT", "json"),
		},
		Security: SecurityConfig{
			EnableRateLimit: getEnvBool("SECURITY_RATE_LIMIT_ENABLED", true),
			RateLimitRPS:    getEnvInt("SECURITY_RATE_LIMIT_RPS", 100),
			RateLimitBurst:  getEnvInt("SECURITY_RATE_LIMIT_BURST", 20),
			AllowedOrigins:  getEnvStringSlice("SECURITY_ALLOWED_ORIGINS", []string{"http://localhost:8084"}),
			TrustedProxies:  getEnvStringSlice("SECURITY_TRUSTED_PROXIES", []string{"127.0.0.1"}),
		},
		Tracker: TrackerConfig{
			OrganizationID: getEnvString("ORGANIZATION_ID", ""),
			NoticeTTL:      getEnvDuration("TRACKER_NOTICE_TTL", 3*time.Second),
			RemoteTimeout:  getEnvDuration("TRACKER_REMOTE_TIMEOUT", 10*time.Second),
			SheetTarget:    getEnvString("TRACKER_SHEET_TARGET", ""),
			SheetNaming:    getEnvString("TRACKER_SHEET_NAMING", "{event}-{date}"),
			ColumnRange:    getEnvString("TRACKER_SHEET_COLUMNS", "A:E"),
			ReportTemplate: getEnvString("TRACKER_REPORT_TEMPLATE", "summary"),
			AutoSend:       getEnvBool("TRACKER_REPORT_AUTO_SEND", false),
			HalfStep:       getEnvStringSlice("TRACKER_HALF_STEP_CATEGORIES", nil),
		},
		Metrics: MetricsConfig{
			Enabled: getEnvBool("METRICS_ENABLED", true),
			Path:    getEnvString("METRICS_PATH", "/metrics"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server read timeout must be positive")
	}

	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server write timeout must be positive")
	}

	if c.Database.URL != "" {
		if !strings.HasPrefix(c.Database.URL, "postgresql://") && !strings.HasPrefix(c.Database.URL, "postgres://") {
			return fmt.Errorf("DATABASE_URL must start with postgresql:// or postgres://")
		}
		if c.Database.MaxConns < 1 || c.Database.MaxConns > 100 {
			return fmt.Errorf("DATABASE_MAX_CONNECTIONS must be between 1 and 100")
		}
	}

	if c.Redis.URL != "" && !strings.HasPrefix(c.Redis.URL, "redis://") {
		return fmt.Errorf("REDIS_URL must start with redis://")
	}

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, c.Logger.Level) {
		return fmt.Errorf("invalid log level %q, must be one of: %s", c.Logger.Level, strings.Join(validLogLevels, ", "))
	}

	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, c.Logger.Format) {
		return fmt.Errorf("invalid log format %q, must be one of: %s", c.Logger.Format, strings.Join(validLogFormats, ", "))
	}

	if c.Security.RateLimitRPS <= 0 {
		return fmt.Errorf("rate limit RPS must be positive")
	}

	if c.Security.RateLimitBurst <= 0 {
		return fmt.Errorf("rate limit burst must be positive")
	}

	if c.Tracker.NoticeTTL <= 0 {
		return fmt.Errorf("tracker notice TTL must be positive")
	}

	if c.Tracker.RemoteTimeout <= 0 {
		return fmt.Errorf("tracker remote timeout must be positive")
	}

	validTemplates := []string{"summary", "detailed"}
	if !contains(validTemplates, c.Tracker.ReportTemplate) {
		return fmt.Errorf("invalid report template %q, must be one of: %s", c.Tracker.ReportTemplate, strings.Join(validTemplates, ", "))
	}

	if !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics path must start with /")
	}

	return nil
}

func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvStringSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// HasOrganization reports whether an organization context is configured.
func (c *Config) HasOrganization() bool {
	return c.Tracker.OrganizationID != "" && c.Database.URL != ""
}

// String omits credentials so the config can be logged at startup.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Addr: %s, LogLevel: %s, Org: %q, DB: %s, Redis: %s, Metrics: %v}",
		c.Address(), c.Logger.Level, c.Tracker.OrganizationID,
		maskURL(c.Database.URL), maskURL(c.Redis.URL), c.Metrics.Enabled,
	)
}

func maskURL(url string) string {
	at := strings.LastIndex(url, "@")
	scheme := strings.Index(url, "://")
	if at < 0 || scheme < 0 || scheme > at {
		return url
	}
	return url[:scheme+3] + "***" + url[at:]
}
