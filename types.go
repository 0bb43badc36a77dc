package sente

import "time"

// Priority classifies how urgently a decision is needed. Each priority maps
// to a wall-clock deadline for the live computation; a computation that
// misses its deadline is resolved via fallback, never retried.
type Priority string

const (
	// PriorityCritical is for decisions inside a frame budget (50ms).
	PriorityCritical Priority = "critical"
	// PriorityHigh is the pipeline's own responsiveness target (100ms).
	PriorityHigh Priority = "high"
	// PriorityNormal is the default for ordinary turns (200ms).
	PriorityNormal Priority = "normal"
	// PriorityLow is for decisions nobody is waiting on (500ms).
	PriorityLow Priority = "low"
)

// Timeouts is the per-priority deadline table. The NORMAL deadline may be
// relaxed by the self-tuning loop; CRITICAL and HIGH are hard gameplay
// requirements and never auto-adjust.
type Timeouts struct {
	Critical time.Duration
	High     time.Duration
	Normal   time.Duration
	Low      time.Duration
}

// For returns the deadline for a priority. Unknown priorities get the
// NORMAL deadline.
func (t Timeouts) For(p Priority) time.Duration {
	switch p {
	case PriorityCritical:
		return t.Critical
	case PriorityHigh:
		return t.High
	case PriorityLow:
		return t.Low
	default:
		return t.Normal
	}
}

// Position is a grid coordinate targeted by a decision.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Decision is the outcome of a tactical evaluation for one unit. The
// pipeline treats it as opaque apart from Confidence: a low value (0.3)
// marks a degraded fallback, which callers may surface in UI messaging.
type Decision struct {
	Action     string     `json:"action"`
	Targets    []Position `json:"targets"`
	Confidence float32    `json:"confidence"`
	Rationale  string     `json:"rationale,omitempty"`
	Expected   string     `json:"expected_outcome,omitempty"`
}

// Context is the coarse tactical situation a decision is computed from.
// The structured fields feed the default fingerprinter and the prediction
// heuristic; anything else a game's decision maker needs goes in Tags,
// which the pipeline never inspects.
type Context struct {
	HP           int            `json:"hp"`
	MaxHP        int            `json:"max_hp"`
	MP           int            `json:"mp"`
	MaxMP        int            `json:"max_mp"`
	EnemiesAlive int            `json:"enemies_alive"`
	AlliesAlive  int            `json:"allies_alive"`
	Turn         int            `json:"turn"`
	Tags         map[string]any `json:"tags,omitempty"`
}

// Request pairs a unit with its context for batch and precompute calls.
type Request struct {
	UnitID  string
	Context Context
}

// Metrics is a snapshot of the pipeline's running counters.
// CacheHits + CacheMisses always equals TotalDecisions: a timeout or maker
// failure counts as a miss resolved via fallback.
type Metrics struct {
	TotalDecisions     int64
	CacheHits          int64
	CacheMisses        int64
	PrecomputeHits     int64
	TimeoutCount       int64
	FailureCount       int64
	AverageLatencyMS   float64
	ParallelEfficiency float64
}

// CacheHitRate is derived, not stored: hits / (hits+misses) * 100.
func (m Metrics) CacheHitRate() float64 {
	total := m.CacheHits + m.CacheMisses
	if total == 0 {
		return 0
	}
	return float64(m.CacheHits) / float64(total) * 100
}

// CacheStatus describes the current occupancy of the caching layers.
type CacheStatus struct {
	Size           int
	MaxSize        int
	PrecomputeSize int
	QueueDepth     int
}

// PerformanceTarget compares observed latency against the pipeline's
// responsiveness target (the HIGH deadline).
type PerformanceTarget struct {
	TargetMS     float64
	WithinTarget bool
}

// Report is the output of Pipeline.Report.
type Report struct {
	Metrics Metrics
	Cache   CacheStatus
	Target  PerformanceTarget
}

// HistoryEntry is one recorded verdict from the embedded decision log.
// Source is one of "cache", "precomputed", "live", or "fallback".
type HistoryEntry struct {
	ID         string
	UnitID     string
	Action     string
	Source     string
	Priority   Priority
	Confidence float32
	LatencyMS  float64
	CreatedAt  time.Time
}
