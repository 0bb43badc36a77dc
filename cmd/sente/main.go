// Command sente runs a scripted skirmish through the decision pipeline and
// reports the latency and cache behavior it observed. Useful for smoke
// testing a deployment and for demonstrating the API; the pipeline itself
// is consumed as a library.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/sente"
	"github.com/ashita-ai/sente/internal/config"
	"github.com/ashita-ai/sente/internal/telemetry"
	sentemcp "github.com/ashita-ai/sente/mcp"
)

// version is set at build time via -ldflags.
var version = "dev"

func main() {
	os.Exit(run0())
}

func run0() int {
	level := slog.LevelInfo
	if os.Getenv("SENTE_LOG_LEVEL") == "debug" {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger); err != nil {
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger) error {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	slog.Info("sente starting", "version", version, "workers", cfg.MaxWorkers)

	otelShutdown, err := telemetry.Init(ctx, telemetry.Settings{
		Endpoint:    cfg.OTELEndpoint,
		ServiceName: cfg.ServiceName,
		Version:     version,
		Insecure:    cfg.OTELInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	maker, cleanup, err := newMaker(ctx, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	pipe, err := sente.New(maker, sente.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("pipeline: %w", err)
	}
	defer func() { _ = pipe.Close() }()

	if err := skirmish(ctx, pipe, logger); err != nil {
		return err
	}

	report(pipe, logger)
	slog.Info("sente stopped")
	return nil
}

// newMaker selects the decision maker: an MCP tool server when
// SENTE_MCP_ENDPOINT is set, else the built-in heuristic tactician.
func newMaker(ctx context.Context, logger *slog.Logger) (sente.DecisionMaker, func(), error) {
	endpoint := os.Getenv("SENTE_MCP_ENDPOINT")
	if endpoint == "" {
		logger.Info("decision maker: built-in heuristic (no SENTE_MCP_ENDPOINT)")
		return heuristicMaker(), func() {}, nil
	}

	var headers map[string]string
	if token := os.Getenv("SENTE_MCP_TOKEN"); token != "" {
		headers = map[string]string{"Authorization": "Bearer " + token}
	}
	m, err := sentemcp.NewMaker(ctx, endpoint, headers, sentemcp.WithLogger(logger))
	if err != nil {
		return nil, nil, fmt.Errorf("mcp maker: %w", err)
	}
	logger.Info("decision maker: mcp", "endpoint", endpoint)
	return m, func() { _ = m.Close() }, nil
}

// heuristicMaker is a stand-in tactician with deliberately uneven latency,
// so the demo exercises the cache, timeout, and fallback paths.
func heuristicMaker() sente.DecisionMaker {
	return sente.DecisionMakerFunc(func(ctx context.Context, unitID string, tc sente.Context) (sente.Decision, error) {
		// Simulate model inference time: usually fast, occasionally slow
		// enough to blow a CRITICAL deadline.
		delay := time.Duration(5+rand.IntN(30)) * time.Millisecond
		if rand.IntN(10) == 0 {
			delay += 80 * time.Millisecond
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return sente.Decision{}, ctx.Err()
		}

		switch {
		case tc.HP*4 < tc.MaxHP:
			return sente.Decision{
				Action:     "retreat",
				Confidence: 0.8,
				Rationale:  "low hp, falling back to heal range",
			}, nil
		case tc.MP >= 20 && tc.EnemiesAlive >= 3:
			return sente.Decision{
				Action:     "fireball",
				Targets:    []sente.Position{{X: 5, Y: 5}},
				Confidence: 0.85,
				Rationale:  "enemy cluster in blast radius",
			}, nil
		default:
			return sente.Decision{
				Action:     "basic_attack",
				Targets:    []sente.Position{{X: 3, Y: 3}},
				Confidence: 0.9,
				Rationale:  "nearest enemy in range",
			}, nil
		}
	})
}

// skirmish plays ten turns of a four-unit squad: one CRITICAL interrupt
// check, a HIGH batch for the squad, background precompute for the next
// turn, and one tuning pass per turn.
func skirmish(ctx context.Context, pipe *sente.Pipeline, logger *slog.Logger) error {
	units := []string{"knight", "mage", "archer", "cleric"}

	for turn := 1; turn <= 10; turn++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		// Reaction check for the point unit must resolve inside a frame.
		d := pipe.Decide(ctx, units[0], unitContext(units[0], turn), sente.PriorityCritical)
		logger.Info("reaction", "turn", turn, "unit", units[0],
			"action", d.Action, "confidence", d.Confidence)

		reqs := make([]sente.Request, len(units))
		for i, u := range units {
			reqs[i] = sente.Request{UnitID: u, Context: unitContext(u, turn)}
		}
		decisions := pipe.DecideMany(ctx, reqs, sente.PriorityHigh)
		for u, d := range decisions {
			logger.Debug("decision", "turn", turn, "unit", u,
				"action", d.Action, "confidence", d.Confidence)
		}

		// Warm the store for next turn while the player animates this one.
		next := make([]sente.Request, len(units))
		for i, u := range units {
			next[i] = sente.Request{UnitID: u, Context: unitContext(u, turn+1)}
		}
		pipe.Precompute(next)

		pipe.Optimize()
		time.Sleep(200 * time.Millisecond) // idle window between turns
	}
	return nil
}

// unitContext synthesizes a plausible battlefield state that evolves with
// the turn counter: HP attrition, enemies thinning out.
func unitContext(unitID string, turn int) sente.Context {
	hp := 100 - turn*7
	if unitID == "knight" {
		hp -= 10 // point unit soaks extra damage
	}
	if hp < 5 {
		hp = 5
	}
	enemies := 6 - turn/2
	if enemies < 1 {
		enemies = 1
	}
	return sente.Context{
		HP: hp, MaxHP: 100,
		MP: 50 - turn*3, MaxMP: 50,
		EnemiesAlive: enemies,
		AlliesAlive:  4,
		Turn:         turn,
	}
}

func report(pipe *sente.Pipeline, logger *slog.Logger) {
	rep := pipe.Report()
	logger.Info("skirmish report",
		"total_decisions", rep.Metrics.TotalDecisions,
		"cache_hits", rep.Metrics.CacheHits,
		"cache_misses", rep.Metrics.CacheMisses,
		"precompute_hits", rep.Metrics.PrecomputeHits,
		"hit_rate_pct", fmt.Sprintf("%.1f", rep.Metrics.CacheHitRate()),
		"timeouts", rep.Metrics.TimeoutCount,
		"failures", rep.Metrics.FailureCount,
		"avg_latency_ms", fmt.Sprintf("%.2f", rep.Metrics.AverageLatencyMS),
		"parallel_efficiency", rep.Metrics.ParallelEfficiency,
		"cache_size", rep.Cache.Size,
		"precompute_size", rep.Cache.PrecomputeSize,
		"within_target", rep.Target.WithinTarget,
	)
}
