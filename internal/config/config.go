/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/friendsincode/timedimension/internal/datemath"
	"github.com/friendsincode/timedimension/internal/period"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	BaseURL       string // Public base URL used in export links
	DBBackend     DatabaseBackend
	DBDSN         string
	JWTSigningKey string // Empty disables auth on mutating endpoints outside production
	MetricsBind   string

	// Time grid defaults
	DefaultPeriodText string
	DefaultPeriod     period.Duration
	MaxGridPoints     int // Per-grid cap; 0 means unlimited
	DateModeText      string
	DateMode          datemath.Mode

	// Resolution cache
	CacheEnabled  bool
	CacheTTL      time.Duration
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Event fan-out between instances
	NATSEnabled bool
	NATSURL     string
	InstanceID  string

	// Export storage: local directory unless an S3 bucket is configured
	ExportRoot        string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string // For S3-compatible services (MinIO, Spaces, etc.)
	S3PublicBaseURL   string // Optional CDN URL
	S3UsePathStyle    bool   // Required for MinIO

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	LogBufferSize     int
	LegacyEnvWarnings []string

	// ReleaseFeed is "owner/repo" on GitHub or a URL serving a latest-release
	// JSON document. Empty disables release checks.
	ReleaseFeed          string
	ReleaseCheckInterval time.Duration
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{
		Environment:   getEnvAny([]string{"TIMEDIM_ENV", "TD_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"TIMEDIM_HTTP_BIND", "TD_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"TIMEDIM_HTTP_PORT", "TD_HTTP_PORT"}, 8080),
		BaseURL:       getEnvAny([]string{"TIMEDIM_BASE_URL", "TD_BASE_URL"}, ""),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"TIMEDIM_DB_BACKEND", "TD_DB_BACKEND"}, string(DatabaseSQLite))),
		DBDSN:         getEnvAny([]string{"TIMEDIM_DB_DSN", "TD_DB_DSN"}, "file:timedimension.db"),
		JWTSigningKey: getEnvAny([]string{"TIMEDIM_JWT_SIGNING_KEY", "TD_JWT_SIGNING_KEY"}, ""),
		MetricsBind:   getEnvAny([]string{"TIMEDIM_METRICS_BIND", "TD_METRICS_BIND"}, "127.0.0.1:9000"),

		DefaultPeriodText: getEnvAny([]string{"TIMEDIM_DEFAULT_PERIOD", "TD_DEFAULT_PERIOD"}, "P1D"),
		MaxGridPoints:     getEnvIntAny([]string{"TIMEDIM_MAX_GRID_POINTS", "TD_MAX_GRID_POINTS"}, 100000),
		DateModeText:      getEnvAny([]string{"TIMEDIM_DATE_MODE", "TD_DATE_MODE"}, "utc"),

		CacheEnabled:  getEnvBoolAny([]string{"TIMEDIM_CACHE_ENABLED", "TD_CACHE_ENABLED"}, false),
		CacheTTL:      time.Duration(getEnvIntAny([]string{"TIMEDIM_CACHE_TTL_SECONDS", "TD_CACHE_TTL_SECONDS"}, 300)) * time.Second,
		RedisAddr:     getEnvAny([]string{"TIMEDIM_REDIS_ADDR", "TD_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword: getEnvAny([]string{"TIMEDIM_REDIS_PASSWORD", "TD_REDIS_PASSWORD"}, ""),
		RedisDB:       getEnvIntAny([]string{"TIMEDIM_REDIS_DB", "TD_REDIS_DB"}, 0),

		NATSEnabled: getEnvBoolAny([]string{"TIMEDIM_NATS_ENABLED", "TD_NATS_ENABLED"}, false),
		NATSURL:     getEnvAny([]string{"TIMEDIM_NATS_URL", "TD_NATS_URL", "NATS_URL"}, "nats://localhost:4222"),
		InstanceID:  getEnvAny([]string{"TIMEDIM_INSTANCE_ID", "TD_INSTANCE_ID"}, ""),

		ExportRoot:        getEnvAny([]string{"TIMEDIM_EXPORT_ROOT", "TD_EXPORT_ROOT"}, "./exports"),
		S3AccessKeyID:     getEnvAny([]string{"TIMEDIM_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"TIMEDIM_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"TIMEDIM_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"TIMEDIM_S3_BUCKET", "S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"TIMEDIM_S3_ENDPOINT", "S3_ENDPOINT"}, ""),
		S3PublicBaseURL:   getEnvAny([]string{"TIMEDIM_S3_PUBLIC_BASE_URL", "S3_PUBLIC_BASE_URL"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"TIMEDIM_S3_USE_PATH_STYLE", "S3_USE_PATH_STYLE"}, false),

		TracingEnabled:    getEnvBoolAny([]string{"TIMEDIM_TRACING_ENABLED", "TD_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"TIMEDIM_OTLP_ENDPOINT", "TD_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"TIMEDIM_TRACING_SAMPLE_RATE", "TD_TRACING_SAMPLE_RATE"}, 1.0),

		LogBufferSize: getEnvIntAny([]string{"TIMEDIM_LOG_BUFFER_SIZE", "TD_LOG_BUFFER_SIZE"}, 1000),
		ReleaseFeed:   getEnvAny([]string{"TIMEDIM_RELEASE_FEED", "TD_RELEASE_FEED"}, ""),

		ReleaseCheckInterval: getEnvDurationAny([]string{"TIMEDIM_RELEASE_CHECK_INTERVAL", "TD_RELEASE_CHECK_INTERVAL"}, 6*time.Hour),
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("TIMEDIM_DB_DSN or TD_DB_DSN must be provided")
	}

	d, err := period.Parse(cfg.DefaultPeriodText)
	if err != nil {
		return nil, fmt.Errorf("TIMEDIM_DEFAULT_PERIOD: %w", err)
	}
	if d.IsZero() {
		return nil, fmt.Errorf("TIMEDIM_DEFAULT_PERIOD must not be zero")
	}
	cfg.DefaultPeriod = d

	mode, err := datemath.ParseMode(cfg.DateModeText)
	if err != nil {
		return nil, fmt.Errorf("TIMEDIM_DATE_MODE: %w", err)
	}
	cfg.DateMode = mode

	if cfg.MaxGridPoints < 0 {
		return nil, fmt.Errorf("TIMEDIM_MAX_GRID_POINTS must not be negative")
	}

	if cfg.ReleaseFeed != "" && cfg.ReleaseCheckInterval < time.Minute {
		return nil, fmt.Errorf("TIMEDIM_RELEASE_CHECK_INTERVAL must be at least 1m")
	}

	if strings.EqualFold(cfg.Environment, "production") {
		if cfg.JWTSigningKey == "" {
			return nil, fmt.Errorf("TIMEDIM_JWT_SIGNING_KEY or TD_JWT_SIGNING_KEY must be provided in production")
		}
		if cfg.S3Bucket != "" && cfg.S3Endpoint == "" && (cfg.S3AccessKeyID == "") != (cfg.S3SecretAccessKey == "") {
			return nil, fmt.Errorf("TIMEDIM_S3_ACCESS_KEY_ID and TIMEDIM_S3_SECRET_ACCESS_KEY must be set together")
		}
	}
	cfg.LegacyEnvWarnings = detectLegacyEnvWarnings()

	return cfg, nil
}

func detectLegacyEnvWarnings() []string {
	legacy := map[string]string{
		"ENVIRONMENT":         "use TIMEDIM_ENV (or TD_ENV)",
		"JWT_SIGNING_KEY":     "use TIMEDIM_JWT_SIGNING_KEY (or TD_JWT_SIGNING_KEY)",
		"TRACING_ENABLED":     "use TIMEDIM_TRACING_ENABLED (or TD_TRACING_ENABLED)",
		"OTLP_ENDPOINT":       "use TIMEDIM_OTLP_ENDPOINT (or TD_OTLP_ENDPOINT)",
		"TRACING_SAMPLE_RATE": "use TIMEDIM_TRACING_SAMPLE_RATE (or TD_TRACING_SAMPLE_RATE)",
		"DEFAULT_PERIOD":      "use TIMEDIM_DEFAULT_PERIOD",
	}

	warnings := make([]string, 0, len(legacy))
	for key, recommendation := range legacy {
		if os.Getenv(key) != "" {
			warnings = append(warnings, fmt.Sprintf("legacy env key %s is set; %s", key, recommendation))
		}
	}
	return warnings
}

// HTTPAddr returns the listen address for the API server.
func (c *Config) HTTPAddr() string {
	return fmt.Sprintf("%s:%d", c.HTTPBind, c.HTTPPort)
}

// UsesS3 reports whether exports go to an S3 bucket instead of ExportRoot.
func (c *Config) UsesS3() bool {
	return c != nil && c.S3Bucket != ""
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny returns the first set Go duration (e.g. "6h") from keys, or def.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := time.ParseDuration(v); err == nil {
				return parsed
			}
		}
	}
	return def
}
