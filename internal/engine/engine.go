// Package engine bounds the latency of live decision computation.
//
// A fixed-size worker pool runs the external decision maker; callers block
// on a result channel up to a priority-derived deadline. A computation that
// misses its deadline is abandoned, not interrupted: the maker is an
// external collaborator whose internals are unknown, so the goroutine runs
// to completion and reports through the completion callback, where a late
// cache write is harmless (inserts are last-write-wins and age out).
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashita-ai/sente/internal/model"
)

// ErrDeadline is returned when a computation does not finish in time.
var ErrDeadline = errors.New("engine: deadline exceeded")

// Compute invokes the external decision maker. It must be safe to call
// concurrently for different unit ids.
type Compute func(ctx context.Context, unitID string, tc model.Context) (model.Decision, error)

// OnComplete observes every finished computation, including abandoned ones
// that finish after their caller has already fallen back. The pipeline uses
// it to cache results and schedule predictions exactly once per run.
type OnComplete func(unitID string, tc model.Context, d model.Decision)

// Request is one unit's decision in a batch.
type Request struct {
	UnitID  string
	Context model.Context
}

// Engine is the worker pool. The pool is the only concurrency primitive in
// the pipeline; it owns no game state.
type Engine struct {
	sem     chan struct{}
	compute Compute
	logger  *slog.Logger
}

// New validates the pool size and builds an engine. A non-positive worker
// count is a programming mistake and fails construction.
func New(maxWorkers int, compute Compute, logger *slog.Logger) (*Engine, error) {
	if maxWorkers <= 0 {
		return nil, fmt.Errorf("engine: max workers must be positive, got %d", maxWorkers)
	}
	if compute == nil {
		return nil, errors.New("engine: compute function is required")
	}
	return &Engine{
		sem:     make(chan struct{}, maxWorkers),
		compute: compute,
		logger:  logger,
	}, nil
}

type result struct {
	unitID   string
	decision model.Decision
	err      error
}

// Do computes one decision with the given deadline. On deadline expiry it
// returns ErrDeadline immediately; the underlying computation keeps running
// and its eventual result reaches onComplete. There are no retries — in a
// turn-based loop a missed deadline means "decide now, anyway".
func (e *Engine) Do(ctx context.Context, unitID string, tc model.Context, deadline time.Duration, onComplete OnComplete) (model.Decision, error) {
	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resCh := make(chan result, 1)
	go e.run(ctx, unitID, tc, onComplete, resCh)

	select {
	case res := <-resCh:
		return res.decision, res.err
	case <-cctx.Done():
		if errors.Is(cctx.Err(), context.DeadlineExceeded) {
			return model.Decision{}, ErrDeadline
		}
		return model.Decision{}, cctx.Err()
	}
}

// run acquires a pool slot, invokes the maker, and reports. The maker gets
// a context detached from the caller's deadline so abandonment does not
// interrupt it.
func (e *Engine) run(ctx context.Context, unitID string, tc model.Context, onComplete OnComplete, resCh chan<- result) {
	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		resCh <- result{unitID: unitID, err: ctx.Err()}
		return
	}
	defer func() { <-e.sem }()

	d, err := e.compute(context.WithoutCancel(ctx), unitID, tc)
	if err == nil && onComplete != nil {
		onComplete(unitID, tc, d)
	}
	resCh <- result{unitID: unitID, decision: d, err: err}
}

// DoBatch computes independent per-unit decisions concurrently under one
// shared deadline. It returns whatever completed in time plus the maker
// errors observed; the caller substitutes fallbacks for everything else, so
// a partial batch never fails as a whole. No ordering is guaranteed across
// units.
func (e *Engine) DoBatch(ctx context.Context, reqs []Request, deadline time.Duration, onComplete OnComplete) (map[string]model.Decision, map[string]error) {
	completed := make(map[string]model.Decision, len(reqs))
	failed := make(map[string]error)
	if len(reqs) == 0 {
		return completed, failed
	}

	cctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	resCh := make(chan result, len(reqs))
	for _, req := range reqs {
		go e.run(cctx, req.UnitID, req.Context, onComplete, resCh)
	}

	for range reqs {
		select {
		case res := <-resCh:
			switch {
			case res.err == nil:
				completed[res.unitID] = res.decision
			case errors.Is(res.err, context.DeadlineExceeded) || errors.Is(res.err, context.Canceled):
				// Pool slot wait expired: a timeout, not a maker failure.
			default:
				e.logger.Warn("engine: batch member failed",
					"unit_id", res.unitID, "error", res.err)
				failed[res.unitID] = res.err
			}
		case <-cctx.Done():
			return completed, failed
		}
	}
	return completed, failed
}
