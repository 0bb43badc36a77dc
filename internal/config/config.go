// Package config loads and validates pipeline configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all pipeline configuration. Functional options at the root
// override individual fields after Load.
type Config struct {
	// Execution engine.
	MaxWorkers int

	// Decision cache.
	CacheMaxSize int
	CacheMaxAge  time.Duration

	// Precomputation.
	PrecomputeCap    int
	PredictQueueCap  int
	PredictInterval  time.Duration
	PrecomputeBudget time.Duration

	// Per-priority deadlines.
	TimeoutCritical time.Duration
	TimeoutHigh     time.Duration
	TimeoutNormal   time.Duration
	TimeoutLow      time.Duration

	// Optional embedded decision history (SQLite). Empty disables it.
	HistoryPath string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	// Operational settings.
	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	cfg := Config{
		MaxWorkers:       envInt("SENTE_MAX_WORKERS", 4),
		CacheMaxSize:     envInt("SENTE_CACHE_MAX_SIZE", 1000),
		CacheMaxAge:      envDuration("SENTE_CACHE_MAX_AGE", 3*time.Second),
		PrecomputeCap:    envInt("SENTE_PRECOMPUTE_CAP", 100),
		PredictQueueCap:  envInt("SENTE_PREDICT_QUEUE_CAP", 50),
		PredictInterval:  envDuration("SENTE_PREDICT_INTERVAL", 100*time.Millisecond),
		PrecomputeBudget: envDuration("SENTE_PRECOMPUTE_BUDGET", 2*time.Second),
		TimeoutCritical:  envDuration("SENTE_TIMEOUT_CRITICAL", 50*time.Millisecond),
		TimeoutHigh:      envDuration("SENTE_TIMEOUT_HIGH", 100*time.Millisecond),
		TimeoutNormal:    envDuration("SENTE_TIMEOUT_NORMAL", 200*time.Millisecond),
		TimeoutLow:       envDuration("SENTE_TIMEOUT_LOW", 500*time.Millisecond),
		HistoryPath:      envStr("SENTE_HISTORY_PATH", ""),
		OTELEndpoint:     envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTELInsecure:     envBool("OTEL_EXPORTER_OTLP_INSECURE", false),
		ServiceName:      envStr("OTEL_SERVICE_NAME", "sente"),
		LogLevel:         envStr("SENTE_LOG_LEVEL", "info"),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that the configuration is internally sane. Misconfiguration
// is a programming mistake and surfaces here rather than degrading at runtime.
func (c Config) Validate() error {
	if c.MaxWorkers <= 0 {
		return fmt.Errorf("config: SENTE_MAX_WORKERS must be positive, got %d", c.MaxWorkers)
	}
	if c.CacheMaxSize <= 0 {
		return fmt.Errorf("config: SENTE_CACHE_MAX_SIZE must be positive, got %d", c.CacheMaxSize)
	}
	if c.CacheMaxAge < 0 {
		return fmt.Errorf("config: SENTE_CACHE_MAX_AGE must not be negative")
	}
	if c.PrecomputeCap <= 0 {
		return fmt.Errorf("config: SENTE_PRECOMPUTE_CAP must be positive, got %d", c.PrecomputeCap)
	}
	if c.PredictQueueCap <= 0 {
		return fmt.Errorf("config: SENTE_PREDICT_QUEUE_CAP must be positive, got %d", c.PredictQueueCap)
	}
	for _, d := range []time.Duration{c.TimeoutCritical, c.TimeoutHigh, c.TimeoutNormal, c.TimeoutLow} {
		if d <= 0 {
			return fmt.Errorf("config: all priority timeouts must be positive")
		}
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func envBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
