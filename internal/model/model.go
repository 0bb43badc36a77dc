// Package model holds the core value types shared by the pipeline's internal
// packages. The root sente package mirrors these as public types; internal
// packages never import the root.
package model

// Position is a grid coordinate targeted by a decision.
type Position struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Decision is the outcome of a tactical evaluation for one unit.
// The pipeline treats it as opaque apart from Confidence.
type Decision struct {
	Action     string     `json:"action"`
	Targets    []Position `json:"targets"`
	Confidence float32    `json:"confidence"`
	Rationale  string     `json:"rationale,omitempty"`
	Expected   string     `json:"expected_outcome,omitempty"`
}

// Context is the coarse tactical situation a decision is computed from.
// Only the features relevant to fingerprinting and prediction are structured;
// anything else a game wants to feed its decision maker goes in Tags.
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

// Metrics is a snapshot of the pipeline's running counters.
// CacheHits + CacheMisses == TotalDecisions holds for every snapshot:
// timeouts and maker failures are counted as a miss resolved via fallback.
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

// TimeoutRate is the fraction of decisions resolved by deadline expiry, in percent.
func (m Metrics) TimeoutRate() float64 {
	if m.TotalDecisions == 0 {
		return 0
	}
	return float64(m.TimeoutCount) / float64(m.TotalDecisions) * 100
}
