package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	cachecoordinator "github.com/huykn/cache-coordinator"
	"github.com/huykn/cache-coordinator/store"
	"github.com/huykn/cache-coordinator/types"
)

var simulateFlags = []string{"keys", "bursts", "per-burst", "interval", "seed"}

func newSimulateCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay bursts of mixed-priority requests and print the outcome",
		Long: `Drive a coordinator over an in-memory query store with bursts of random
requests on a simulated clock, then print coordinator and store statistics as JSON.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := bindFlags(v, cmd.Flags(), append(simulateFlags, coordinatorFlags...)...); err != nil {
				return err
			}

			logger, err := newLogger(v)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			report, err := runSimulation(cmd.Context(), simulation{
				Keys:     v.GetInt("keys"),
				Bursts:   v.GetInt("bursts"),
				PerBurst: v.GetInt("per-burst"),
				Interval: v.GetDuration("interval"),
				Seed:     v.GetUint64("seed"),
				Settings: readCoordinatorSettings(v),
				Debug:    v.GetBool("debug"),
			}, logger)
			if err != nil {
				return err
			}

			out, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return fmt.Errorf("format report: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(out))
			return nil
		},
	}

	fs := cmd.Flags()
	fs.Int("keys", 20, "Number of distinct cache keys")
	fs.Int("bursts", 10, "Number of request bursts")
	fs.Int("per-burst", 25, "Requests per burst")
	fs.Duration("interval", 300*time.Millisecond, "Simulated time between bursts")
	fs.Uint64("seed", 1, "Random seed")
	addCoordinatorFlags(fs)

	return cmd
}

type simulation struct {
	Keys     int
	Bursts   int
	PerBurst int
	Interval time.Duration
	Seed     uint64
	Settings coordinatorSettings
	Debug    bool
}

type simulationReport struct {
	Requests    int                   `json:"requests"`
	ByPriority  map[string]int        `json:"by_priority"`
	Scheduled   int64                 `json:"scheduled"`
	Suppressed  int64                 `json:"suppressed"`
	Drains      int64                 `json:"drains"`
	Failures    int64                 `json:"failures"`
	Pending     int                   `json:"pending"`
	KeysTouched int                   `json:"keys_touched"`
	Store       store.QueryStoreStats `json:"store"`
}

// settleRounds bounds how many extra batch delays the simulation waits for
// outstanding drains after the last burst.
const settleRounds = 50

func runSimulation(ctx context.Context, sim simulation, logger *zap.Logger) (simulationReport, error) {
	if sim.Keys <= 0 || sim.Bursts <= 0 || sim.PerBurst <= 0 || sim.Interval <= 0 {
		return simulationReport{}, fmt.Errorf("keys, bursts, per-burst and interval must be positive")
	}

	var version int64
	qsOpts := store.DefaultQueryStoreOptions()
	qsOpts.Fetcher = func(ctx context.Context, key string) (any, error) {
		return fmt.Sprintf("%s@%d", key, atomic.AddInt64(&version, 1)), nil
	}
	qs, err := store.NewQueryStore(qsOpts)
	if err != nil {
		return simulationReport{}, err
	}
	defer qs.Close()

	keys := make([]string, sim.Keys)
	for i := range keys {
		keys[i] = fmt.Sprintf("entity_%03d", i)
		if _, err := qs.Get(ctx, keys[i]); err != nil {
			return simulationReport{}, fmt.Errorf("seed %s: %w", keys[i], err)
		}
	}

	mock := clock.NewMock()
	mock.Set(time.Now())

	cfg := cachecoordinator.DefaultConfig()
	sim.Settings.apply(&cfg)
	cfg.Store = qs
	cfg.Clock = mock
	cfg.Logger = cachecoordinator.NewZapLogger(logger.Named("coordinator"))
	cfg.DebugMode = sim.Debug

	coord, err := cachecoordinator.New(cfg)
	if err != nil {
		return simulationReport{}, fmt.Errorf("create coordinator: %w", err)
	}
	defer coord.Close()

	rng := rand.New(rand.NewPCG(sim.Seed, sim.Seed^0x9e3779b97f4a7c15))
	report := simulationReport{ByPriority: make(map[string]int)}

	for b := 0; b < sim.Bursts; b++ {
		for i := 0; i < sim.PerBurst; i++ {
			priority := randomPriority(rng)
			coord.Schedule(keys[rng.IntN(len(keys))], fmt.Sprintf("burst-%d", b), priority, false, nil)
			report.Requests++
			report.ByPriority[priority.String()]++
		}
		mock.Add(sim.Interval)
	}

	for round := 0; round < settleRounds; round++ {
		stats := coord.GetStats()
		if stats.PendingCount == 0 && !stats.IsExecuting {
			break
		}
		mock.Add(sim.Settings.BatchDelay)
		time.Sleep(time.Millisecond)
	}

	stats := coord.GetStats()
	report.Scheduled = stats.Scheduled
	report.Suppressed = stats.Suppressed
	report.Drains = stats.Drains
	report.Failures = stats.Failures
	report.Pending = stats.PendingCount
	report.KeysTouched = len(stats.Cooldowns)
	report.Store = qs.Stats()
	return report, nil
}

// randomPriority draws low 40%, normal 30%, high 20%, critical 10%.
func randomPriority(rng *rand.Rand) types.Priority {
	switch n := rng.IntN(10); {
	case n < 4:
		return types.PriorityLow
	case n < 7:
		return types.PriorityNormal
	case n < 9:
		return types.PriorityHigh
	default:
		return types.PriorityCritical
	}
}
