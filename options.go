package sente

import (
	"log/slog"
	"time"
)

// Option configures a Pipeline.
type Option func(*resolvedOptions)

// resolvedOptions holds all extension points after applying defaults.
// Unexported — callers use the With* functions. Zero values mean "keep the
// value loaded from the environment".
type resolvedOptions struct {
	logger        *slog.Logger
	maxWorkers    int
	cacheMaxSize  int
	cacheMaxAge   time.Duration
	timeouts      *Timeouts
	fingerprinter Fingerprinter
	historyPath   string
	noHistory     bool
}

// WithLogger sets the structured logger for the pipeline.
// If not set, the default slog logger is used.
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithMaxWorkers overrides the execution pool size (SENTE_MAX_WORKERS).
func WithMaxWorkers(n int) Option {
	return func(o *resolvedOptions) { o.maxWorkers = n }
}

// WithCacheMaxSize overrides the decision cache capacity (SENTE_CACHE_MAX_SIZE).
func WithCacheMaxSize(n int) Option {
	return func(o *resolvedOptions) { o.cacheMaxSize = n }
}

// WithCacheMaxAge overrides how long a cached decision stays valid
// (SENTE_CACHE_MAX_AGE). Battle state changes with every action, so the
// default is deliberately short.
func WithCacheMaxAge(d time.Duration) Option {
	return func(o *resolvedOptions) { o.cacheMaxAge = d }
}

// WithTimeouts replaces the per-priority deadline table.
func WithTimeouts(t Timeouts) Option {
	return func(o *resolvedOptions) { o.timeouts = &t }
}

// WithFingerprinter replaces the default HP/MP-bucket fingerprinter.
func WithFingerprinter(f Fingerprinter) Option {
	return func(o *resolvedOptions) { o.fingerprinter = f }
}

// WithHistory enables the embedded SQLite decision log at path
// (SENTE_HISTORY_PATH). Every resolved decision is recorded with its
// source and latency for post-battle review.
func WithHistory(path string) Option {
	return func(o *resolvedOptions) { o.historyPath = path }
}

// WithoutHistory disables the decision log even when SENTE_HISTORY_PATH is set.
func WithoutHistory() Option {
	return func(o *resolvedOptions) { o.noHistory = true }
}
