package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds configuration for the health monitor, read once at process
// start from environment variables.
type Config struct {
	HTTPPort        string
	LogLevel        string
	LogDevelopment  bool
	Database        DatabaseConfig
	Cache           CacheConfig
	Redis           RedisConfig
	PollInterval    time.Duration
	OfficialStatus  OfficialStatusConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// CacheConfig holds in-process cache settings fronting History Store and
// Config Repository reads.
type CacheConfig struct {
	HistoryCacheSize int
	HistoryCacheTTL  time.Duration
	ConfigCacheSize  int
	ConfigCacheTTL   time.Duration
}

// RedisConfig holds Redis connection settings, used by the Official-Status
// Poller's shared cache and cross-replica fetch lock.
type RedisConfig struct {
	Address      string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// OfficialStatusConfig holds the official-status poller's own interval,
// independent of the probe poll interval.
type OfficialStatusConfig struct {
	PollInterval time.Duration
}

func getEnvInt(key string, defaultValue int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	intVal, err := strconv.Atoi(val)
	if err != nil {
		return defaultValue
	}

	return intVal
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(val)
	if err != nil {
		return defaultValue
	}

	return duration
}

func getEnvString(key string, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

// clampSeconds reads an integer-seconds env var and clamps it into [min, max].
func clampSeconds(key string, defaultValue, min, max int) time.Duration {
	v := getEnvInt(key, defaultValue)
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return time.Duration(v) * time.Second
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	cfg := &Config{
		HTTPPort:       getEnvString("HTTP_PORT", "8080"),
		LogLevel:       getEnvString("LOG_LEVEL", "info"),
		LogDevelopment: getEnvString("LOG_DEVELOPMENT", "false") == "true",
		Database: DatabaseConfig{
			URL:             dbURL,
			MaxOpenConns:    getEnvInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getEnvInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getEnvDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),
			ConnMaxIdleTime: getEnvDuration("DB_CONN_MAX_IDLE_TIME", 1*time.Minute),
		},
		Cache: CacheConfig{
			HistoryCacheSize: getEnvInt("CACHE_HISTORY_SIZE", 500),
			HistoryCacheTTL:  getEnvDuration("CACHE_HISTORY_TTL", 5*time.Second),
			ConfigCacheSize:  getEnvInt("CACHE_CONFIG_SIZE", 200),
			ConfigCacheTTL:   getEnvDuration("CACHE_CONFIG_TTL", 30*time.Second),
		},
		Redis: RedisConfig{
			Address:      getEnvString("REDIS_ADDRESS", "localhost:6379"),
			Password:     getEnvString("REDIS_PASSWORD", ""),
			DB:           getEnvInt("REDIS_DB", 0),
			PoolSize:     getEnvInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		// CHECK_POLL_INTERVAL_SECONDS: default 60, clamped to [15, 600] per spec.
		PollInterval: clampSeconds("CHECK_POLL_INTERVAL_SECONDS", 60, 15, 600),
		OfficialStatus: OfficialStatusConfig{
			// OFFICIAL_STATUS_POLL_INTERVAL_MINUTES: default 5, clamped to [1, 60].
			PollInterval: clampMinutes("OFFICIAL_STATUS_POLL_INTERVAL_MINUTES", 5, 1, 60),
		},
	}

	return cfg, nil
}

func clampMinutes(key string, defaultValue, min, max int) time.Duration {
	v := getEnvInt(key, defaultValue)
	if v < min {
		v = min
	}
	if v > max {
		v = max
	}
	return time.Duration(v) * time.Minute
}
