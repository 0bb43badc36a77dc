package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/sente/internal/model"
)

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastCompute(_ context.Context, unitID string, _ model.Context) (model.Decision, error) {
	return model.Decision{Action: "basic_attack", Rationale: unitID, Confidence: 0.9}, nil
}

func slowCompute(d time.Duration) Compute {
	return func(_ context.Context, unitID string, _ model.Context) (model.Decision, error) {
		time.Sleep(d)
		return model.Decision{Action: "slow", Rationale: unitID}, nil
	}
}

func TestNew_RejectsBadConfig(t *testing.T) {
	_, err := New(0, fastCompute, discard())
	require.Error(t, err, "zero workers is a construction error")

	_, err = New(-1, fastCompute, discard())
	require.Error(t, err)

	_, err = New(4, nil, discard())
	require.Error(t, err)
}

func TestDo_FastComputation(t *testing.T) {
	e, err := New(4, fastCompute, discard())
	require.NoError(t, err)

	d, err := e.Do(context.Background(), "u1", model.Context{}, 100*time.Millisecond, nil)
	require.NoError(t, err)
	assert.Equal(t, "basic_attack", d.Action)
}

func TestDo_DeadlineExpiry(t *testing.T) {
	e, err := New(4, slowCompute(300*time.Millisecond), discard())
	require.NoError(t, err)

	start := time.Now()
	_, err = e.Do(context.Background(), "u1", model.Context{}, 50*time.Millisecond, nil)
	elapsed := time.Since(start)

	require.ErrorIs(t, err, ErrDeadline)
	assert.Less(t, elapsed, 100*time.Millisecond,
		"caller must be released within a small margin over the deadline")
}

func TestDo_MakerErrorPropagates(t *testing.T) {
	boom := errors.New("maker exploded")
	e, err := New(4, func(_ context.Context, _ string, _ model.Context) (model.Decision, error) {
		return model.Decision{}, boom
	}, discard())
	require.NoError(t, err)

	_, err = e.Do(context.Background(), "u1", model.Context{}, 100*time.Millisecond, nil)
	require.ErrorIs(t, err, boom)
}

func TestDo_AbandonedComputationStillCompletes(t *testing.T) {
	var mu sync.Mutex
	var completed []string
	onComplete := func(unitID string, _ model.Context, _ model.Decision) {
		mu.Lock()
		defer mu.Unlock()
		completed = append(completed, unitID)
	}

	e, err := New(4, slowCompute(80*time.Millisecond), discard())
	require.NoError(t, err)

	_, err = e.Do(context.Background(), "u1", model.Context{}, 20*time.Millisecond, onComplete)
	require.ErrorIs(t, err, ErrDeadline)

	// The abandoned goroutine runs to completion and reports.
	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(completed) == 1 && completed[0] == "u1"
	}, time.Second, 10*time.Millisecond)
}

func TestDoBatch_AllFast(t *testing.T) {
	e, err := New(4, fastCompute, discard())
	require.NoError(t, err)

	reqs := []Request{
		{UnitID: "u1"}, {UnitID: "u2"}, {UnitID: "u3"},
	}
	got, failed := e.DoBatch(context.Background(), reqs, 100*time.Millisecond, nil)

	require.Len(t, got, 3)
	assert.Empty(t, failed)
	assert.Equal(t, "u2", got["u2"].Rationale)
}

func TestDoBatch_PartialCompletion(t *testing.T) {
	compute := func(ctx context.Context, unitID string, tc model.Context) (model.Decision, error) {
		if unitID == "slow1" || unitID == "slow2" {
			time.Sleep(300 * time.Millisecond)
		}
		return fastCompute(ctx, unitID, tc)
	}
	e, err := New(8, compute, discard())
	require.NoError(t, err)

	reqs := []Request{
		{UnitID: "fast1"}, {UnitID: "slow1"}, {UnitID: "fast2"},
		{UnitID: "slow2"}, {UnitID: "fast3"},
	}
	got, failed := e.DoBatch(context.Background(), reqs, 100*time.Millisecond, nil)

	assert.Len(t, got, 3, "only the fast members complete inside the shared deadline")
	assert.Empty(t, failed, "slow members time out, they do not fail")
	for _, id := range []string{"fast1", "fast2", "fast3"} {
		assert.Contains(t, got, id)
	}
}

func TestDoBatch_Empty(t *testing.T) {
	e, err := New(4, fastCompute, discard())
	require.NoError(t, err)
	got, failed := e.DoBatch(context.Background(), nil, time.Second, nil)
	assert.Empty(t, got)
	assert.Empty(t, failed)
}

func TestDoBatch_MakerErrorReportedAsFailure(t *testing.T) {
	boom := errors.New("maker exploded")
	compute := func(ctx context.Context, unitID string, tc model.Context) (model.Decision, error) {
		if unitID == "bad" {
			return model.Decision{}, boom
		}
		return fastCompute(ctx, unitID, tc)
	}
	e, err := New(4, compute, discard())
	require.NoError(t, err)

	got, failed := e.DoBatch(context.Background(), []Request{{UnitID: "ok"}, {UnitID: "bad"}}, 100*time.Millisecond, nil)
	assert.Len(t, got, 1)
	require.Contains(t, failed, "bad")
	assert.ErrorIs(t, failed["bad"], boom)
}

func TestDo_PoolExhaustionRespectsDeadline(t *testing.T) {
	e, err := New(1, slowCompute(200*time.Millisecond), discard())
	require.NoError(t, err)

	// Occupy the single worker.
	go e.Do(context.Background(), "hog", model.Context{}, 500*time.Millisecond, nil) //nolint:errcheck

	time.Sleep(10 * time.Millisecond)

	start := time.Now()
	_, err = e.Do(context.Background(), "u1", model.Context{}, 50*time.Millisecond, nil)
	require.Error(t, err, "waiting for a pool slot counts against the deadline")
	assert.Less(t, time.Since(start), 120*time.Millisecond)
}
