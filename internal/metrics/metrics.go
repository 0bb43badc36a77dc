// Package metrics aggregates the pipeline's running performance counters.
//
// The counters are a tuning signal, not a billing record: they are guarded
// by a single mutex so the invariant hits+misses == total holds in every
// snapshot, but no stronger consistency is promised across concurrent
// updates.
package metrics

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/ashita-ai/sente/internal/model"
	"github.com/ashita-ai/sente/internal/telemetry"
)

// latencyWindow bounds the recent-latency history so the average tracks
// current performance rather than the lifetime mean.
const latencyWindow = 50

// Recorder accumulates decision outcomes. Safe for use from pool goroutines
// and the caller's thread.
type Recorder struct {
	mu             sync.Mutex
	total          int64
	hits           int64
	misses         int64
	precomputeHits int64
	timeouts       int64
	failures       int64
	latencies      []float64 // ring buffer, newest overwrites oldest
	latencyNext    int
	parallelEff    float64
}

// NewRecorder creates a zeroed recorder.
func NewRecorder() *Recorder {
	return &Recorder{latencies: make([]float64, 0, latencyWindow)}
}

// Hit records a decision served from the main cache.
func (r *Recorder) Hit(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	r.hits++
	r.pushLatency(latency)
}

// PrecomputeHit records a decision served from the precompute store.
// It counts as a cache hit for the hit-rate invariant and is additionally
// tracked on its own.
func (r *Recorder) PrecomputeHit(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	r.hits++
	r.precomputeHits++
	r.pushLatency(latency)
}

// Miss records a decision resolved by live computation.
func (r *Recorder) Miss(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	r.misses++
	r.pushLatency(latency)
}

// Timeout records a decision whose computation missed its deadline and was
// resolved via fallback. Counted as a miss for the hit-rate invariant.
func (r *Recorder) Timeout(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	r.misses++
	r.timeouts++
	r.pushLatency(latency)
}

// Failure records a decision whose maker returned an error, resolved via
// fallback. Counted as a miss, tracked separately from timeouts.
func (r *Recorder) Failure(latency time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.total++
	r.misses++
	r.failures++
	r.pushLatency(latency)
}

// Batch records the parallel efficiency of the most recent DecideMany call.
func (r *Recorder) Batch(efficiency float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.parallelEff = efficiency
}

// pushLatency appends into the bounded ring. Caller holds mu.
func (r *Recorder) pushLatency(latency time.Duration) {
	ms := float64(latency.Microseconds()) / 1000
	if len(r.latencies) < latencyWindow {
		r.latencies = append(r.latencies, ms)
		return
	}
	r.latencies[r.latencyNext] = ms
	r.latencyNext = (r.latencyNext + 1) % latencyWindow
}

// Snapshot returns a consistent copy of all counters.
func (r *Recorder) Snapshot() model.Metrics {
	r.mu.Lock()
	defer r.mu.Unlock()

	var avg float64
	if len(r.latencies) > 0 {
		var sum float64
		for _, ms := range r.latencies {
			sum += ms
		}
		avg = sum / float64(len(r.latencies))
	}

	return model.Metrics{
		TotalDecisions:     r.total,
		CacheHits:          r.hits,
		CacheMisses:        r.misses,
		PrecomputeHits:     r.precomputeHits,
		TimeoutCount:       r.timeouts,
		FailureCount:       r.failures,
		AverageLatencyMS:   avg,
		ParallelEfficiency: r.parallelEff,
	}
}

// RegisterObservability exports the counters as OTEL observable gauges.
// No-op providers make this free when OTEL is not configured.
func (r *Recorder) RegisterObservability() {
	meter := telemetry.Meter("sente/pipeline")

	_, _ = meter.Int64ObservableGauge("sente.decisions.total",
		metric.WithDescription("Total decisions resolved by the pipeline"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.Snapshot().TotalDecisions)
			return nil
		}),
	)
	_, _ = meter.Float64ObservableGauge("sente.cache.hit_rate",
		metric.WithDescription("Decision cache hit rate in percent"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(r.Snapshot().CacheHitRate())
			return nil
		}),
	)
	_, _ = meter.Float64ObservableGauge("sente.decisions.latency_avg_ms",
		metric.WithDescription("Rolling average decision latency in milliseconds"),
		metric.WithFloat64Callback(func(_ context.Context, o metric.Float64Observer) error {
			o.Observe(r.Snapshot().AverageLatencyMS)
			return nil
		}),
	)
	_, _ = meter.Int64ObservableGauge("sente.decisions.timeouts",
		metric.WithDescription("Decisions resolved via fallback after deadline expiry"),
		metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
			o.Observe(r.Snapshot().TimeoutCount)
			return nil
		}),
	)
}
