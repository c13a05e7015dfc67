package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all runtime configuration for the gateway and the fuse
// clients it fronts destinations with.
type Config struct {
	// Server
	Addr            string
	Env             string
	GracefulTimeout time.Duration
	LogLevel        string

	// Optional shared fuse-state coordination.
	RedisURL string

	// Connection pool defaults (spec.md §3 ConnectionPool, §4.2).
	PoolMaxConnections int
	PoolIdleTimeout    time.Duration
	PoolCleanInterval  time.Duration
	PoolAcquireTimeout time.Duration

	// Fuse defaults (spec.md §3 FuseClient, §6 "Configuration knobs").
	FuseSlideWindow       time.Duration
	FuseThreshold         uint64
	FuseRecoveryInterval  time.Duration
	FuseRecoveryThreshold uint64
	FuseInplaceRetries    int
	FuseTimeout           time.Duration
	FuseCoefficient       float64
	FuseLatencyTimeout    time.Duration
}

// Load reads configuration from environment variables and an optional
// .env file.
func Load() *Config {
	_ = godotenv.Load()

	cfg := &Config{
		Addr:            getEnv("GATEWAY_ADDR", ":8080"),
		Env:             getEnv("ENV", "development"),
		GracefulTimeout: time.Duration(getEnvInt("GATEWAY_GRACEFUL_TIMEOUT_SEC", 15)) * time.Second,
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		RedisURL:        getEnv("REDIS_URL", ""),

		PoolMaxConnections: getEnvInt("POOL_MAX_CONNECTIONS", 32),
		PoolIdleTimeout:    time.Duration(getEnvInt("POOL_IDLE_TIMEOUT_SEC", 90)) * time.Second,
		PoolCleanInterval:  time.Duration(getEnvInt("POOL_CLEAN_INTERVAL_SEC", 60)) * time.Second,
		PoolAcquireTimeout: time.Duration(getEnvInt("POOL_ACQUIRE_TIMEOUT_SEC", 5)) * time.Second,

		FuseSlideWindow:       time.Duration(getEnvInt("FUSE_SLIDE_WINDOW_SEC", 10)) * time.Second,
		FuseThreshold:         uint64(getEnvInt("FUSE_THRESHOLD", 5)),
		FuseRecoveryInterval:  time.Duration(getEnvInt("FUSE_RECOVERY_INTERVAL_SEC", 5)) * time.Second,
		FuseRecoveryThreshold: uint64(getEnvInt("FUSE_RECOVERY_THRESHOLD", 2)),
		FuseInplaceRetries:    getEnvInt("FUSE_INPLACE_RETRIES", 1),
		FuseTimeout:           time.Duration(getEnvInt("FUSE_TIMEOUT_SEC", 10)) * time.Second,
		FuseCoefficient:       getEnvFloat("FUSE_COEFFICIENT", 1.0),
		FuseLatencyTimeout:    time.Duration(getEnvInt("FUSE_LATENCY_TIMEOUT_MS", 0)) * time.Millisecond,
	}
	return cfg
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}
