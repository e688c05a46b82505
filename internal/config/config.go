package config

import (
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port            string
	MaxBodyBytes    int64
	SaveRateLimit   int
	TrustedProxies  []string
	ShutdownTimeout time.Duration

	// Database
	DatabaseDriver    string
	SQLiteDBPath      string
	DatabaseURL       string
	DBMaxOpenConns    int
	DBConnectAttempts int

	// AMQP. An empty URL disables change events in the server.
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// View cache
	CacheBackend string
	CacheTTL     time.Duration
	CacheSize    int
	RedisURL     string

	// Worker
	DedupBatchSize int
	DedupInterval  time.Duration

	LogLevel string
}

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"

	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

func Load() *Config {
	return &Config{
		Port:            getEnv("PORT", "8081"),
		MaxBodyBytes:    int64(getEnvInt("MAX_BODY_BYTES", 5<<20)),
		SaveRateLimit:   getEnvInt("SAVE_RATE_LIMIT", 30),
		TrustedProxies:  getEnvList("TRUSTED_PROXIES"),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseDriver:    strings.ToLower(getEnv("DATABASE_DRIVER", DriverSQLite)),
		SQLiteDBPath:      getEnv("SQLITE_DB_PATH", "./data/orcamento.db"),
		DatabaseURL:       getEnv("DATABASE_URL", ""),
		DBMaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 10),
		DBConnectAttempts: getEnvInt("DB_CONNECT_ATTEMPTS", 10),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "orcamento"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "config_saved"),

		CacheBackend: strings.ToLower(getEnv("CACHE_BACKEND", CacheMemory)),
		CacheTTL:     getEnvDuration("CACHE_TTL", 5*time.Minute),
		CacheSize:    getEnvInt("CACHE_SIZE", 500),
		RedisURL:     getEnv("REDIS_URL", ""),

		DedupBatchSize: getEnvInt("DEDUP_BATCH_SIZE", 100),
		DedupInterval:  getEnvDuration("DEDUP_INTERVAL", time.Hour),

		LogLevel: getEnv("LOG_LEVEL", "info"),
	}
}

// Validate reports every problem at once.
func (c *Config) Validate() error {
	return c.validate(false)
}

// ValidateWorker also requires a broker, which the worker cannot run
// without.
func (c *Config) ValidateWorker() error {
	return c.validate(true)
}

func (c *Config) validate(worker bool) error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}
	if c.MaxBodyBytes < 1024 {
		errors = append(errors, fmt.Sprintf("invalid max body size %d: must be at least 1024 bytes", c.MaxBodyBytes))
	}
	if c.SaveRateLimit < 0 {
		errors = append(errors, fmt.Sprintf("invalid save rate limit %d: must not be negative", c.SaveRateLimit))
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using the sqlite driver")
		} else if dir := filepath.Dir(c.SQLiteDBPath); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				errors = append(errors, fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err))
			}
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errors = append(errors, "DATABASE_URL is required when using the postgres driver")
		} else if u, err := url.Parse(c.DatabaseURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid database URL: %v", err))
		} else if u.Scheme != "postgres" && u.Scheme != "postgresql" {
			errors = append(errors, fmt.Sprintf("invalid database URL scheme '%s': must be 'postgres' or 'postgresql'", u.Scheme))
		}
	default:
		errors = append(errors, fmt.Sprintf("invalid database driver '%s': must be one of [%s %s]", c.DatabaseDriver, DriverSQLite, DriverPostgres))
	}
	if c.DBMaxOpenConns < 1 {
		errors = append(errors, fmt.Sprintf("invalid max open connections %d: must be at least 1", c.DBMaxOpenConns))
	}
	if c.DBConnectAttempts < 1 {
		errors = append(errors, fmt.Sprintf("invalid connect attempts %d: must be at least 1", c.DBConnectAttempts))
	}

	if worker && c.AMQPURL == "" {
		errors = append(errors, "AMQP_URL is required for the worker")
	}
	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	validCaches := []string{CacheNone, CacheMemory, CacheRedis}
	if !slices.Contains(validCaches, c.CacheBackend) {
		errors = append(errors, fmt.Sprintf("invalid cache backend '%s': must be one of %v", c.CacheBackend, validCaches))
	}
	if c.CacheBackend != CacheNone && c.CacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid cache TTL %v: must be at least 1 second", c.CacheTTL))
	}
	if c.CacheBackend == CacheMemory && c.CacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid cache size %d: must be at least 1", c.CacheSize))
	}
	if c.CacheBackend == CacheRedis {
		if c.RedisURL == "" {
			errors = append(errors, "REDIS_URL is required when using the redis cache")
		} else if u, err := url.Parse(c.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errors = append(errors, fmt.Sprintf("invalid Redis URL '%s': must use the redis or rediss scheme", c.RedisURL))
		}
	}

	if c.DedupBatchSize < 1 || c.DedupBatchSize > 1000 {
		errors = append(errors, fmt.Sprintf("invalid dedup batch size %d: must be between 1 and 1000", c.DedupBatchSize))
	}
	if c.DedupInterval < time.Minute {
		errors = append(errors, fmt.Sprintf("invalid dedup interval %v: must be at least 1 minute", c.DedupInterval))
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be debug, info, warn or error", c.LogLevel))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping empty items.
func getEnvList(key string) []string {
	var out []string
	for _, item := range strings.Split(os.Getenv(key), ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
