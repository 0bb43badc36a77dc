package sente

import "context"

// DecisionMaker is the external tactical evaluator the pipeline wraps.
// It is injected at construction so tests can substitute deterministic,
// slow, or failing fakes without touching pipeline internals.
//
// Compute must be safe to call concurrently for different unit ids. It may
// return an error or overrun its context; the pipeline recovers both into a
// fallback decision and never propagates them to the caller.
type DecisionMaker interface {
	Compute(ctx context.Context, unitID string, tc Context) (Decision, error)
}

// DecisionMakerFunc adapts a plain function to the DecisionMaker interface.
type DecisionMakerFunc func(ctx context.Context, unitID string, tc Context) (Decision, error)

// Compute implements DecisionMaker.
func (f DecisionMakerFunc) Compute(ctx context.Context, unitID string, tc Context) (Decision, error) {
	return f(ctx, unitID, tc)
}

// Fingerprinter compresses a context into a deterministic cache-key string.
// It is the central correctness/performance trade-off of the pipeline: too
// coarse and the cache returns tactically stale decisions, too fine and the
// hit rate collapses. Games tune granularity by injecting their own via
// WithFingerprinter; the default buckets HP and MP and counts live enemies.
type Fingerprinter interface {
	Fingerprint(tc Context) string
}

// FingerprinterFunc adapts a plain function to the Fingerprinter interface.
type FingerprinterFunc func(tc Context) string

// Fingerprint implements Fingerprinter.
func (f FingerprinterFunc) Fingerprint(tc Context) string {
	return f(tc)
}
