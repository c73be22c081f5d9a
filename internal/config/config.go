// Package config loads the gateway's environment/configuration parameters
// into a typed, validated struct, loading a .env file via godotenv first.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pkg/errors"
)

// Config holds every knob the core consults.
type Config struct {
	// UpstreamTimeout bounds the entire unary upstream interaction, and the
	// initial response headers for streaming.
	UpstreamTimeout time.Duration `validate:"required"`
	// HealthCheckInterval is how often ProbeAll runs in the background.
	HealthCheckInterval time.Duration `validate:"required"`
	// MetricsWindowMinutes is the rolling window performance analysis uses.
	MetricsWindowMinutes int `validate:"required,min=1"`
	// StickyTTLMinutes is how long a StickyRoute survives without reuse.
	StickyTTLMinutes int `validate:"required,min=1"`
	// MaxConsecutiveFailures is the fast-path health predicate's threshold.
	MaxConsecutiveFailures int `validate:"required,min=1"`
	// DefaultStrategy is used when a request does not override it.
	DefaultStrategy string `validate:"required"`
	// CacheTrackingEnabled toggles sticky routing globally.
	CacheTrackingEnabled bool

	// DatabaseDSN configures the Metrics Store's durable log.
	DatabaseDSN string `validate:"required"`
	// DatabaseDriver selects mysql/postgres/sqlite.
	DatabaseDriver string `validate:"required,oneof=mysql postgres sqlite"`

	// RedisURL, if set, enables the optional cross-instance sticky-route
	// mirror. Empty disables it.
	RedisURL string

	// AdminJWTSecret signs/verifies the admin-facing bearer tokens
	// internal/adminauth validates.
	AdminJWTSecret string `validate:"required"`

	Debug bool
}

// Load reads environment variables (after attempting to load a .env file,
// ignoring its absence) and returns a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		UpstreamTimeout:        durationEnv("GATEWAY_UPSTREAM_TIMEOUT", 120*time.Second),
		HealthCheckInterval:    durationEnv("GATEWAY_HEALTH_CHECK_INTERVAL", 60*time.Second),
		MetricsWindowMinutes:   intEnv("GATEWAY_METRICS_WINDOW_MINUTES", 30),
		StickyTTLMinutes:       intEnv("GATEWAY_STICKY_TTL_MINUTES", 5),
		MaxConsecutiveFailures: intEnv("GATEWAY_MAX_CONSECUTIVE_FAILURES", 3),
		DefaultStrategy:        stringEnv("GATEWAY_DEFAULT_STRATEGY", "weighted_random"),
		CacheTrackingEnabled:   boolEnv("GATEWAY_CACHE_TRACKING_ENABLED", true),
		DatabaseDSN:            stringEnv("GATEWAY_DB_DSN", "gateway.db"),
		DatabaseDriver:         stringEnv("GATEWAY_DB_DRIVER", "sqlite"),
		RedisURL:               stringEnv("GATEWAY_REDIS_URL", ""),
		AdminJWTSecret:         stringEnv("GATEWAY_ADMIN_JWT_SECRET", "change-me-in-production"),
		Debug:                  boolEnv("GATEWAY_DEBUG", false),
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

func stringEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func intEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func boolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func durationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
