package predict

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashita-ai/sente/internal/model"
)

// Compute runs the live decision maker for a predicted context.
type Compute func(ctx context.Context, unitID string, tc model.Context) (model.Decision, error)

// Worker drains the prediction queue during idle time and fills the store.
// It never touches the hot decision path: computations run on its own
// goroutine with a generous budget, and failures are logged and dropped.
type Worker struct {
	queue   *Queue
	store   *Store
	compute Compute
	logger  *slog.Logger

	interval time.Duration // poll cadence
	perTick  int           // max requests drained per tick
	budget   time.Duration // per-computation deadline, deliberately looser than live decisions

	started    atomic.Bool
	cancelLoop context.CancelFunc
	done       chan struct{}
	once       sync.Once
}

// NewWorker wires a drain worker over the given queue and store.
func NewWorker(queue *Queue, store *Store, compute Compute, logger *slog.Logger, interval time.Duration, perTick int, budget time.Duration) *Worker {
	return &Worker{
		queue:    queue,
		store:    store,
		compute:  compute,
		logger:   logger,
		interval: interval,
		perTick:  perTick,
		budget:   budget,
		done:     make(chan struct{}),
	}
}

// Start begins the background drain loop. Safe to call only once;
// subsequent calls are no-ops and log a warning.
func (w *Worker) Start(ctx context.Context) {
	if !w.started.CompareAndSwap(false, true) {
		w.logger.Warn("predict: Start called more than once, ignoring")
		return
	}
	loopCtx, cancel := context.WithCancel(ctx)
	w.cancelLoop = cancel
	go w.drainLoop(loopCtx)
}

// Stop signals the drain loop to exit and blocks until it has, or until ctx
// expires. Queued predictions still pending are abandoned — they are
// best-effort by contract.
func (w *Worker) Stop(ctx context.Context) {
	if w.cancelLoop != nil {
		w.cancelLoop()
	}
	if !w.started.Load() {
		return
	}
	select {
	case <-w.done:
	case <-ctx.Done():
		w.logger.Warn("predict: stop timed out")
	}
}

func (w *Worker) drainLoop(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.once.Do(func() { close(w.done) })
			return
		case <-ticker.C:
			w.DrainOnce(ctx)
		}
	}
}

// DrainOnce pops up to perTick requests and materializes them into the
// store. Exported so callers with their own idle loop (e.g. between turns)
// can drain synchronously instead of relying on the ticker.
func (w *Worker) DrainOnce(ctx context.Context) {
	for i := 0; i < w.perTick; i++ {
		req, ok := w.queue.Pop()
		if !ok {
			return
		}
		if w.store.Has(req.Fingerprint) {
			continue
		}

		cctx, cancel := context.WithTimeout(ctx, w.budget)
		d, err := w.compute(cctx, req.UnitID, req.Context)
		cancel()
		if err != nil {
			// Background failures never surface to the decision path.
			w.logger.Warn("predict: precompute failed",
				"unit_id", req.UnitID,
				"fingerprint", req.Fingerprint,
				"error", err,
			)
			continue
		}
		w.store.Put(req.Fingerprint, d)
	}
}
