// Package sente is a bounded-latency decision pipeline for turn-based
// tactical AI.
//
// It wraps a comparatively expensive decision maker behind a caching,
// prediction, and parallel-execution layer that guarantees an answer within
// a priority-derived deadline:
//
//	pipe, err := sente.New(myDecisionMaker,
//	    sente.WithLogger(logger),
//	    sente.WithMaxWorkers(4),
//	)
//	if err != nil { ... }
//	defer pipe.Close()
//
//	d := pipe.Decide(ctx, "unit_1", tacticalContext, sente.PriorityNormal)
//
// Decide never fails at runtime: a timeout or maker error degrades to a
// static low-confidence fallback so the game loop never stalls waiting on
// AI. Only constructor-time misconfiguration surfaces as an error.
//
// The import graph enforces a strict no-cycle rule: sente (root) imports
// internal/*, but internal/* never imports sente. Core types live in
// internal/model; the public mirrors and conversion helpers live here
// because this is the only file that sees both sides of the boundary.
package sente

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/ashita-ai/sente/internal/cache"
	"github.com/ashita-ai/sente/internal/config"
	"github.com/ashita-ai/sente/internal/engine"
	"github.com/ashita-ai/sente/internal/fallback"
	"github.com/ashita-ai/sente/internal/fingerprint"
	"github.com/ashita-ai/sente/internal/history"
	"github.com/ashita-ai/sente/internal/metrics"
	"github.com/ashita-ai/sente/internal/model"
	"github.com/ashita-ai/sente/internal/predict"
	"github.com/ashita-ai/sente/internal/tuning"
)

// Pipeline is the decision-latency-control layer. Construct with New();
// each instance owns its cache, metrics, and worker pool so independent
// battles (and tests) never cross-contaminate.
type Pipeline struct {
	cfg    config.Config
	maker  DecisionMaker
	fper   Fingerprinter
	cache  *cache.Cache
	store  *predict.Store
	queue  *predict.Queue
	worker *predict.Worker
	engine *engine.Engine
	rec    *metrics.Recorder
	falls  *fallback.Table
	hist   *history.Log // nil when history is disabled
	tuner  *tuning.Tuner
	logger *slog.Logger

	mu       sync.RWMutex // guards timeouts; Optimize adjusts Normal
	timeouts Timeouts

	flight    singleflight.Group
	closeOnce sync.Once
}

// New builds a pipeline around the given decision maker. Configuration is
// loaded from the environment, then options override individual settings.
// It starts the background precompute worker; call Close to stop it.
func New(maker DecisionMaker, opts ...Option) (*Pipeline, error) {
	if maker == nil {
		return nil, errors.New("sente: decision maker is required")
	}

	o := resolvedOptions{}
	for _, fn := range opts {
		fn(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if o.maxWorkers != 0 {
		cfg.MaxWorkers = o.maxWorkers
	}
	if o.cacheMaxSize != 0 {
		cfg.CacheMaxSize = o.cacheMaxSize
	}
	if o.cacheMaxAge != 0 {
		cfg.CacheMaxAge = o.cacheMaxAge
	}
	if o.historyPath != "" {
		cfg.HistoryPath = o.historyPath
	}
	if o.noHistory {
		cfg.HistoryPath = ""
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	timeouts := Timeouts{
		Critical: cfg.TimeoutCritical,
		High:     cfg.TimeoutHigh,
		Normal:   cfg.TimeoutNormal,
		Low:      cfg.TimeoutLow,
	}
	if o.timeouts != nil {
		timeouts = *o.timeouts
	}
	for _, d := range []time.Duration{timeouts.Critical, timeouts.High, timeouts.Normal, timeouts.Low} {
		if d <= 0 {
			return nil, errors.New("sente: all priority timeouts must be positive")
		}
	}

	fper := o.fingerprinter
	if fper == nil {
		fper = FingerprinterFunc(func(tc Context) string {
			return fingerprint.Coarse(tc.toModel())
		})
	}

	p := &Pipeline{
		cfg:      cfg,
		maker:    maker,
		fper:     fper,
		cache:    cache.New(cfg.CacheMaxSize, cfg.CacheMaxAge),
		store:    predict.NewStore(cfg.PrecomputeCap),
		queue:    predict.NewQueue(cfg.PredictQueueCap),
		rec:      metrics.NewRecorder(),
		falls:    fallback.New(),
		tuner:    tuning.New(),
		logger:   logger,
		timeouts: timeouts,
	}

	compute := func(ctx context.Context, unitID string, mtc model.Context) (model.Decision, error) {
		d, err := maker.Compute(ctx, unitID, fromModelContext(mtc))
		if err != nil {
			return model.Decision{}, err
		}
		return d.toModel(), nil
	}

	p.engine, err = engine.New(cfg.MaxWorkers, compute, logger)
	if err != nil {
		return nil, err
	}

	if cfg.HistoryPath != "" {
		p.hist, err = history.Open(cfg.HistoryPath, logger)
		if err != nil {
			return nil, err
		}
	}

	p.worker = predict.NewWorker(p.queue, p.store, compute, logger,
		cfg.PredictInterval, 2, cfg.PrecomputeBudget)
	p.worker.Start(context.Background())

	p.rec.RegisterObservability()

	return p, nil
}

// Decide resolves one unit's decision within the priority's deadline.
// Control flow: cache, precompute store, live computation, fallback.
// It always returns a usable Decision; degraded results are only visible
// through their low Confidence.
func (p *Pipeline) Decide(ctx context.Context, unitID string, tc Context, priority Priority) Decision {
	return p.decide(ctx, unitID, tc, priority, p.deadlineFor(priority))
}

// DecideWithTimeout is Decide with an explicit deadline overriding the
// priority table.
func (p *Pipeline) DecideWithTimeout(ctx context.Context, unitID string, tc Context, priority Priority, timeout time.Duration) Decision {
	return p.decide(ctx, unitID, tc, priority, timeout)
}

func (p *Pipeline) decide(ctx context.Context, unitID string, tc Context, priority Priority, deadline time.Duration) Decision {
	start := time.Now()
	fp := p.fper.Fingerprint(tc)

	if d, ok := p.cache.Lookup(unitID, fp); ok {
		p.rec.Hit(time.Since(start))
		p.record(ctx, unitID, d, history.SourceCache, priority, start)
		return fromModelDecision(d)
	}
	if d, ok := p.store.Get(fp); ok {
		p.rec.PrecomputeHit(time.Since(start))
		p.record(ctx, unitID, d, history.SourcePrecomputed, priority, start)
		return fromModelDecision(d)
	}

	// Live computation, deduplicated: concurrent callers for the same
	// unit+fingerprint share one maker invocation. The shared computation
	// runs under a generous bound so a short-deadline leader cannot starve
	// a follower with more budget; each caller enforces its own deadline
	// through the timer select below and falls back individually.
	mtc := tc.toModel()
	computeBound := p.computeBound(deadline)
	ch := p.flight.DoChan(cache.Key(unitID, fp), func() (any, error) {
		return p.engine.Do(ctx, unitID, mtc, computeBound, p.liveComplete(fp))
	})

	timer := time.NewTimer(deadline)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.Err == nil {
			d := res.Val.(model.Decision)
			p.rec.Miss(time.Since(start))
			p.record(ctx, unitID, d, history.SourceLive, priority, start)
			return fromModelDecision(d)
		}
		if errors.Is(res.Err, engine.ErrDeadline) {
			return p.timedOut(ctx, unitID, priority, start)
		}
		p.logger.Error("sente: decision maker failed",
			"unit_id", unitID,
			"priority", priority,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", res.Err,
		)
		p.rec.Failure(time.Since(start))
		return p.degrade(ctx, unitID, priority, start)
	case <-timer.C:
		return p.timedOut(ctx, unitID, priority, start)
	case <-ctx.Done():
		return p.timedOut(ctx, unitID, priority, start)
	}
}

func (p *Pipeline) timedOut(ctx context.Context, unitID string, priority Priority, start time.Time) Decision {
	p.logger.Warn("sente: decision timed out, using fallback",
		"unit_id", unitID,
		"priority", priority,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	p.rec.Timeout(time.Since(start))
	return p.degrade(ctx, unitID, priority, start)
}

// degrade returns the fallback decision and records it. The action category
// of the original request is unknown here, so the attack fallback is used:
// a safe basic action beats a unit visibly doing nothing.
func (p *Pipeline) degrade(ctx context.Context, unitID string, priority Priority, start time.Time) Decision {
	fb := p.falls.For(fallback.CategoryAttack)
	p.record(ctx, unitID, fb, history.SourceFallback, priority, start)
	return fromModelDecision(fb)
}

// liveComplete is invoked by the engine for every finished computation,
// including ones abandoned after deadline expiry. Caching here rather than
// on the caller's path means a late result is still cached under its own
// timestamp (inserts are last-write-wins and age out) and predictions are
// scheduled exactly once per run.
func (p *Pipeline) liveComplete(fp string) engine.OnComplete {
	return func(unitID string, mtc model.Context, d model.Decision) {
		p.cache.Insert(unitID, fp, d)
		p.schedulePredictions(unitID, mtc)
	}
}

// schedulePredictions enqueues the likely follow-up contexts for background
// precomputation. Best effort: a full queue drops them.
func (p *Pipeline) schedulePredictions(unitID string, mtc model.Context) {
	for _, next := range predict.FollowUps(mtc) {
		nfp := p.fper.Fingerprint(fromModelContext(next))
		if p.store.Has(nfp) {
			continue
		}
		p.queue.Push(predict.Request{UnitID: unitID, Context: next, Fingerprint: nfp})
	}
}

// DecideMany resolves independent decisions for several units concurrently
// under one shared deadline. The returned map always contains an entry for
// every requested unit; members that time out or fail get the fallback.
// Units whose decisions causally depend on each other are the combat
// layer's problem — no ordering is guaranteed here.
func (p *Pipeline) DecideMany(ctx context.Context, reqs []Request, priority Priority) map[string]Decision {
	start := time.Now()
	deadline := p.deadlineFor(priority)
	out := make(map[string]Decision, len(reqs))

	// Serve what the caches already know; only the rest goes to the pool.
	fps := make(map[string]string, len(reqs))
	var live []engine.Request
	for _, r := range reqs {
		fp := p.fper.Fingerprint(r.Context)
		fps[r.UnitID] = fp
		if d, ok := p.cache.Lookup(r.UnitID, fp); ok {
			p.rec.Hit(time.Since(start))
			p.record(ctx, r.UnitID, d, history.SourceCache, priority, start)
			out[r.UnitID] = fromModelDecision(d)
			continue
		}
		if d, ok := p.store.Get(fp); ok {
			p.rec.PrecomputeHit(time.Since(start))
			p.record(ctx, r.UnitID, d, history.SourcePrecomputed, priority, start)
			out[r.UnitID] = fromModelDecision(d)
			continue
		}
		live = append(live, engine.Request{UnitID: r.UnitID, Context: r.Context.toModel()})
	}
	if len(live) == 0 {
		return out
	}

	onComplete := func(unitID string, mtc model.Context, d model.Decision) {
		p.cache.Insert(unitID, fps[unitID], d)
		p.schedulePredictions(unitID, mtc)
	}
	completed, failed := p.engine.DoBatch(ctx, live, deadline, onComplete)

	for _, lr := range live {
		if d, ok := completed[lr.UnitID]; ok {
			p.rec.Miss(time.Since(start))
			p.record(ctx, lr.UnitID, d, history.SourceLive, priority, start)
			out[lr.UnitID] = fromModelDecision(d)
			continue
		}
		if _, ok := failed[lr.UnitID]; ok {
			p.rec.Failure(time.Since(start))
		} else {
			p.rec.Timeout(time.Since(start))
		}
		out[lr.UnitID] = p.degrade(ctx, lr.UnitID, priority, start)
	}

	p.rec.Batch(float64(len(completed)) / float64(len(live)))
	return out
}

// Precompute schedules background materialization of decisions for contexts
// the caller expects to need soon. It returns immediately; the worker
// drains the queue a few entries per tick between decisions.
func (p *Pipeline) Precompute(reqs []Request) {
	for _, r := range reqs {
		fp := p.fper.Fingerprint(r.Context)
		if p.store.Has(fp) {
			continue
		}
		p.queue.Push(predict.Request{UnitID: r.UnitID, Context: r.Context.toModel(), Fingerprint: fp})
	}
}

// Report returns the current metrics, cache occupancy, and how observed
// latency compares to the pipeline's responsiveness target.
func (p *Pipeline) Report() Report {
	m := fromModelMetrics(p.rec.Snapshot())

	p.mu.RLock()
	targetMS := float64(p.timeouts.High.Microseconds()) / 1000
	p.mu.RUnlock()

	return Report{
		Metrics: m,
		Cache: CacheStatus{
			Size:           p.cache.Len(),
			MaxSize:        p.cache.MaxSize(),
			PrecomputeSize: p.store.Len(),
			QueueDepth:     p.queue.Len(),
		},
		Target: PerformanceTarget{
			TargetMS:     targetMS,
			WithinTarget: m.AverageLatencyMS <= targetMS,
		},
	}
}

// Optimize applies one pass of the self-tuning policy: grow the cache when
// the hit rate is poor, relax the NORMAL deadline when timeouts are
// frequent, prune the precompute store when it sprawls. Safe to call
// repeatedly — a pass without new decisions since the last one is a no-op.
func (p *Pipeline) Optimize() {
	snap := p.rec.Snapshot()

	p.mu.Lock()
	state := tuning.State{
		CacheMaxSize:   p.cache.MaxSize(),
		NormalDeadline: p.timeouts.Normal,
		StoreLen:       p.store.Len(),
	}
	plan, ok := p.tuner.Pass(snap, state)
	if !ok {
		p.mu.Unlock()
		return
	}
	relaxed := plan.NormalDeadline != p.timeouts.Normal
	p.timeouts.Normal = plan.NormalDeadline
	p.mu.Unlock()

	if plan.CacheMaxSize != state.CacheMaxSize {
		p.cache.SetMaxSize(plan.CacheMaxSize)
		p.logger.Info("sente: cache capacity adjusted",
			"from", state.CacheMaxSize, "to", plan.CacheMaxSize,
			"hit_rate", snap.CacheHitRate(),
		)
	}
	if relaxed {
		p.logger.Info("sente: normal deadline relaxed",
			"from", state.NormalDeadline, "to", plan.NormalDeadline,
			"timeout_rate", snap.TimeoutRate(),
		)
	}
	if plan.PruneStoreTo > 0 {
		p.store.Prune(plan.PruneStoreTo)
	}
}

// History returns the recent entries of the embedded decision log, newest
// first. Returns nil when history is disabled.
func (p *Pipeline) History(ctx context.Context, limit int) ([]HistoryEntry, error) {
	if p.hist == nil {
		return nil, nil
	}
	entries, err := p.hist.Recent(ctx, limit)
	if err != nil {
		return nil, err
	}
	out := make([]HistoryEntry, len(entries))
	for i, e := range entries {
		out[i] = HistoryEntry{
			ID:         e.ID.String(),
			UnitID:     e.UnitID,
			Action:     e.Action,
			Source:     e.Source,
			Priority:   Priority(e.Priority),
			Confidence: e.Confidence,
			LatencyMS:  e.LatencyMS,
			CreatedAt:  e.CreatedAt,
		}
	}
	return out, nil
}

// Close stops the background worker, clears the caches, and closes the
// history log. Safe to call more than once.
func (p *Pipeline) Close() error {
	var err error
	p.closeOnce.Do(func() {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		p.worker.Stop(stopCtx)
		p.cache.Clear()
		p.store.Clear()
		if p.hist != nil {
			err = p.hist.Close()
		}
	})
	return err
}

func (p *Pipeline) deadlineFor(priority Priority) time.Duration {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.timeouts.For(priority)
}

// computeBound is the deadline handed to a shared live computation. The LOW
// deadline is the loosest bound any priority would accept, so running the
// flight under it lets every joiner apply its own tighter deadline without
// inheriting the leader's.
func (p *Pipeline) computeBound(deadline time.Duration) time.Duration {
	p.mu.RLock()
	bound := p.timeouts.Low
	p.mu.RUnlock()
	if deadline > bound {
		bound = deadline
	}
	return bound
}

func (p *Pipeline) record(ctx context.Context, unitID string, d model.Decision, source string, priority Priority, start time.Time) {
	if p.hist == nil {
		return
	}
	p.hist.Record(ctx, history.Entry{
		UnitID:     unitID,
		Action:     d.Action,
		Source:     source,
		Priority:   string(priority),
		Confidence: d.Confidence,
		LatencyMS:  float64(time.Since(start).Microseconds()) / 1000,
	})
}

// Conversions between the public mirrors and internal/model. Kept here
// because this is the only file that sees both sides of the boundary.

func (tc Context) toModel() model.Context {
	return model.Context{
		HP:           tc.HP,
		MaxHP:        tc.MaxHP,
		MP:           tc.MP,
		MaxMP:        tc.MaxMP,
		EnemiesAlive: tc.EnemiesAlive,
		AlliesAlive:  tc.AlliesAlive,
		Turn:         tc.Turn,
		Tags:         tc.Tags,
	}
}

func fromModelContext(mtc model.Context) Context {
	return Context{
		HP:           mtc.HP,
		MaxHP:        mtc.MaxHP,
		MP:           mtc.MP,
		MaxMP:        mtc.MaxMP,
		EnemiesAlive: mtc.EnemiesAlive,
		AlliesAlive:  mtc.AlliesAlive,
		Turn:         mtc.Turn,
		Tags:         mtc.Tags,
	}
}

func (d Decision) toModel() model.Decision {
	targets := make([]model.Position, len(d.Targets))
	for i, t := range d.Targets {
		targets[i] = model.Position{X: t.X, Y: t.Y}
	}
	return model.Decision{
		Action:     d.Action,
		Targets:    targets,
		Confidence: d.Confidence,
		Rationale:  d.Rationale,
		Expected:   d.Expected,
	}
}

func fromModelDecision(md model.Decision) Decision {
	targets := make([]Position, len(md.Targets))
	for i, t := range md.Targets {
		targets[i] = Position{X: t.X, Y: t.Y}
	}
	return Decision{
		Action:     md.Action,
		Targets:    targets,
		Confidence: md.Confidence,
		Rationale:  md.Rationale,
		Expected:   md.Expected,
	}
}

func fromModelMetrics(mm model.Metrics) Metrics {
	return Metrics{
		TotalDecisions:     mm.TotalDecisions,
		CacheHits:          mm.CacheHits,
		CacheMisses:        mm.CacheMisses,
		PrecomputeHits:     mm.PrecomputeHits,
		TimeoutCount:       mm.TimeoutCount,
		FailureCount:       mm.FailureCount,
		AverageLatencyMS:   mm.AverageLatencyMS,
		ParallelEfficiency: mm.ParallelEfficiency,
	}
}
