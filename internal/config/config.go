package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Supported DATABASE_DRIVER values
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds application configuration
type Config struct {
	DatabaseDriver   string
	DatabaseURL      string
	ServerPort       string
	FrontendURL      string
	EnableHSTS       bool
	RedisURL         string
	RateLimitEnabled bool
	DefaultRateLimit string
	RabbitMQURL      string
	RabbitMQPrefetch int
	WorkerDebugMode  bool
	ServerDebugMode  bool
	OTELEnabled      bool
	OTELEndpoint     string

	// TagAnalysisDebounce delays the rollup job enqueued after a mutation
	TagAnalysisDebounce      time.Duration
	TagAnalysisTimeframeDays int
	// TagRefreshSchedule is a cron spec for re-running rollups for every user
	TagRefreshSchedule string
	DLQGCInterval      time.Duration
	DLQRetention       time.Duration
}

// Load loads configuration from environment variables. A .env file (or the file named by
// ENV_FILE) is read first when present; variables already set in the environment win.
func Load() (*Config, error) {
	if err := loadEnvFile(getEnv("ENV_FILE", ".env")); err != nil {
		return nil, err
	}

	cfg := &Config{
		DatabaseDriver:           getEnv("DATABASE_DRIVER", DriverPostgres),
		DatabaseURL:              getEnv("DATABASE_URL", ""),
		ServerPort:               getEnv("SERVER_PORT", "8080"),
		FrontendURL:              getEnv("FRONTEND_URL", "http://localhost:3000"),
		EnableHSTS:               getEnvBool("ENABLE_HSTS", false),
		RedisURL:                 getEnv("REDIS_URL", "redis://localhost:6379/0"),
		RateLimitEnabled:         getEnvBool("RATE_LIMIT_ENABLED", true),
		DefaultRateLimit:         getEnv("DEFAULT_RATE_LIMIT", "10-S"),
		RabbitMQURL:              getEnv("RABBITMQ_URL", ""),
		RabbitMQPrefetch:         getEnvInt("RABBITMQ_PREFETCH", 1),
		WorkerDebugMode:          getEnvBool("WORKER_DEBUG_MODE", false),
		ServerDebugMode:          getEnvBool("SERVER_DEBUG_MODE", false),
		OTELEnabled:              getEnvBool("OTEL_ENABLED", false),
		OTELEndpoint:             getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TagAnalysisDebounce:      getEnvDuration("TAG_ANALYSIS_DEBOUNCE", 30*time.Second),
		TagAnalysisTimeframeDays: getEnvInt("TAG_ANALYSIS_TIMEFRAME_DAYS", 30),
		TagRefreshSchedule:       getEnv("TAG_REFRESH_SCHEDULE", "@every 6h"),
		DLQGCInterval:            getEnvDuration("DLQ_GC_INTERVAL", time.Hour),
		DLQRetention:             getEnvDuration("DLQ_RETENTION", 7*24*time.Hour),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.DatabaseDriver != DriverPostgres && cfg.DatabaseDriver != DriverSQLite {
		return nil, fmt.Errorf("DATABASE_DRIVER must be %q or %q, got %q", DriverPostgres, DriverSQLite, cfg.DatabaseDriver)
	}

	if cfg.TagAnalysisTimeframeDays <= 0 {
		return nil, fmt.Errorf("TAG_ANALYSIS_TIMEFRAME_DAYS must be positive, got %d", cfg.TagAnalysisTimeframeDays)
	}

	return cfg, nil
}

// QueueEnabled reports whether background tag rollups are configured
func (c *Config) QueueEnabled() bool {
	return c.RabbitMQURL != ""
}

// RequireRabbitMQ returns an error when RABBITMQ_URL is unset
func (c *Config) RequireRabbitMQ() error {
	if !c.QueueEnabled() {
		return fmt.Errorf("RABBITMQ_URL is required for the worker")
	}
	return nil
}

func loadEnvFile(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to stat env file %s: %w", path, err)
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
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

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
	}
	return defaultValue
}
