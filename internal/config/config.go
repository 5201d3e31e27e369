// Package config loads configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all PhotoSweep server configuration.
type Config struct {
	// Server
	ListenAddr  string
	MetricsAddr string

	// Logging
	LogLevel  string
	LogFormat string

	// Photo store provider ("local", "pg", "s3", or "memory")
	Provider    string
	LibraryPath string
	DatabaseURL string

	// S3 provider
	S3Endpoint  string
	S3Bucket    string
	S3Prefix    string
	S3AccessKey string
	S3SecretKey string
	S3Region    string
	S3UseSSL    bool

	// Scope summary cache (badger)
	CacheDir string

	// Engine tuning
	PageSize            int
	PriorityCount       int
	PriorityConcurrency int
	BatchSize           int
	KeepWindow          int
	CleanupThreshold    int
	TrimEveryAdvances   int
	TrimInterval        time.Duration
}

// Load reads configuration from environment variables with defaults.
func Load() (*Config, error) {
	cfg := &Config{
		ListenAddr:  envOr("LISTEN_ADDR", ":8080"),
		MetricsAddr: envOr("METRICS_ADDR", ":9090"),
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),
		Provider:    envOr("PHOTO_PROVIDER", "local"),
		LibraryPath: envOr("LIBRARY_PATH", ""),
		DatabaseURL: envOr("DATABASE_URL", ""),
		S3Endpoint:  envOr("S3_ENDPOINT", "http://localhost:9000"),
		S3Bucket:    envOr("S3_BUCKET", "photosweep"),
		S3Prefix:    envOr("S3_PREFIX", ""),
		S3AccessKey: envOr("S3_ACCESS_KEY", "minioadmin"),
		S3SecretKey: envOr("S3_SECRET_KEY", "minioadmin"),
		S3Region:    envOr("S3_REGION", "us-east-1"),
		S3UseSSL:    envBool("S3_USE_SSL", false),
		CacheDir:    envOr("CACHE_DIR", "/data/cache"),

		PageSize:            envInt("PAGE_SIZE", 30),
		PriorityCount:       envInt("PRIORITY_COUNT", 5),
		PriorityConcurrency: envInt("PRIORITY_CONCURRENCY", 5),
		BatchSize:           envInt("BATCH_SIZE", 8),
		KeepWindow:          envInt("KEEP_WINDOW", 40),
		CleanupThreshold:    envInt("CLEANUP_THRESHOLD", 60),
		TrimEveryAdvances:   envInt("TRIM_EVERY_ADVANCES", 10),
		TrimInterval:        envDuration("TRIM_INTERVAL", 30*time.Second),
	}

	switch cfg.Provider {
	case "local":
		if cfg.LibraryPath == "" {
			return nil, fmt.Errorf("LIBRARY_PATH is required for the local provider")
		}
	case "pg":
		if cfg.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for the pg provider")
		}
	case "s3", "memory":
	default:
		return nil, fmt.Errorf("unknown PHOTO_PROVIDER: %s", cfg.Provider)
	}

	if cfg.PageSize <= 0 {
		return nil, fmt.Errorf("PAGE_SIZE must be positive")
	}
	if cfg.PriorityCount <= 0 || cfg.BatchSize <= 0 {
		return nil, fmt.Errorf("PRIORITY_COUNT and BATCH_SIZE must be positive")
	}
	if cfg.KeepWindow < 2 {
		return nil, fmt.Errorf("KEEP_WINDOW must be at least 2")
	}

	return cfg, nil
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func envDuration(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
