// Package tuning is the pipeline's self-adjustment control loop.
//
// Each pass reads a metrics snapshot and nudges cache capacity and the
// NORMAL deadline toward the observed workload. Parameters only ever move
// monotonically per pass and a pass without new decisions is a no-op, so
// repeated calls converge instead of oscillating.
package tuning

import (
	"sync"
	"time"

	"github.com/ashita-ai/sente/internal/model"
)

const (
	// lowHitRate triggers cache growth: thrashing under normal play usually
	// means capacity, not fingerprint granularity.
	lowHitRate = 50.0

	// highTimeoutRate triggers deadline relaxation for NORMAL priority only.
	// CRITICAL and HIGH are hard gameplay requirements and never auto-relax.
	highTimeoutRate = 10.0

	// cacheGrowthNum/Den grow capacity by 50% per pass.
	cacheGrowthNum = 3
	cacheGrowthDen = 2

	// CacheCeiling is the absolute cache capacity limit.
	CacheCeiling = 5000

	// deadlineRelaxNum/Den relax the NORMAL deadline by 20% per pass.
	deadlineRelaxNum = 6
	deadlineRelaxDen = 5

	// StoreSoftLimit is the precompute store size past which a prune is
	// requested.
	StoreSoftLimit = 80
)

// State is the tunable parameter set a pass reads and adjusts.
type State struct {
	CacheMaxSize   int
	NormalDeadline time.Duration
	StoreLen       int
}

// Plan is the outcome of one pass.
type Plan struct {
	CacheMaxSize   int
	NormalDeadline time.Duration
	PruneStoreTo   int // 0 = no prune
}

// Tuner applies the self-tuning policy. It remembers the decision count of
// its previous pass so calling Optimize repeatedly without new evidence
// changes nothing.
type Tuner struct {
	mu        sync.Mutex
	lastTotal int64
}

// New creates a tuner.
func New() *Tuner {
	return &Tuner{}
}

// Pass evaluates the thresholds fresh against the snapshot and returns the
// adjusted parameters. The second return is false when no new decisions
// were observed since the previous pass and the plan must not be applied.
func (t *Tuner) Pass(m model.Metrics, s State) (Plan, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if m.TotalDecisions == t.lastTotal {
		return Plan{}, false
	}
	t.lastTotal = m.TotalDecisions

	p := Plan{
		CacheMaxSize:   s.CacheMaxSize,
		NormalDeadline: s.NormalDeadline,
	}

	if m.CacheHitRate() < lowHitRate {
		p.CacheMaxSize = min(s.CacheMaxSize*cacheGrowthNum/cacheGrowthDen, CacheCeiling)
	}
	if m.TimeoutRate() > highTimeoutRate {
		p.NormalDeadline = s.NormalDeadline * deadlineRelaxNum / deadlineRelaxDen
	}
	if s.StoreLen > StoreSoftLimit {
		p.PruneStoreTo = StoreSoftLimit / 2
	}
	return p, true
}
