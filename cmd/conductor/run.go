package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/nexuslabs/conductor/internal/config"
	"github.com/nexuslabs/conductor/internal/orchestrator"
	"github.com/nexuslabs/conductor/internal/state"
	"github.com/nexuslabs/conductor/pkg/models"
)

var (
	runConfigPath string
	runPriority   int
	runWorkers    int
	runTimeout    time.Duration
	runDeadline   time.Duration
	runLatency    time.Duration
)

var runCmd = &cobra.Command{
	Use:   "run <description>",
	Short: "Run a composite task on local workers",
	Long: `Run a composite task description through the orchestration core.

The description is decomposed into dependency-linked subtasks, each routed
to the best-scoring local worker by capability overlap, health, and load.
The command blocks until the composite result settles and prints the
per-subtask breakdown.

Priority ranges from 1 (lowest) to 5 (critical). Debug-style requests are
bumped one level automatically.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runTask,
}

func init() {
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to a config file (defaults to XDG lookup)")
	runCmd.Flags().IntVar(&runPriority, "priority", int(models.PriorityNormal), "Task priority, 1 (lowest) to 5 (critical)")
	runCmd.Flags().IntVar(&runWorkers, "workers", 4, "Number of simulated local workers")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 2*time.Minute, "How long to wait for the composite result")
	runCmd.Flags().DurationVar(&runDeadline, "deadline", 0, "Per-subtask dispatch deadline (0 disables)")
	runCmd.Flags().DurationVar(&runLatency, "latency", 50*time.Millisecond, "Simulated execution time per subtask")
}

func loadConfig() (*config.Config, error) {
	if runConfigPath != "" {
		return config.LoadFromPath(runConfigPath)
	}
	return config.Load()
}

func runTask(cmd *cobra.Command, args []string) error {
	description := strings.Join(args, " ")
	priority := models.Priority(runPriority)
	if !priority.Valid() {
		return fmt.Errorf("priority %d out of range 1..5", runPriority)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := orchestrator.NewDebugLogger(cfg.Logging.DebugLog)
	if err != nil {
		return fmt.Errorf("open debug log: %w", err)
	}
	defer logger.Close()

	opts := []orchestrator.Option{
		orchestrator.WithLogger(logger),
		orchestrator.WithEventBuffer(cfg.Events.Buffer),
		orchestrator.WithMetrics(prometheus.NewRegistry()),
		orchestrator.WithDefaultMaxRetries(cfg.Retry.MaxRetries),
		orchestrator.WithPollInterval(cfg.Scheduler.PollInterval),
		orchestrator.WithBackoff(orchestrator.BackoffConfig{
			Enabled:         cfg.Retry.BackoffEnabled,
			InitialInterval: cfg.Retry.BackoffInitial,
			MaxInterval:     cfg.Retry.BackoffMax,
			Multiplier:      cfg.Retry.BackoffMultiplier,
		}),
		orchestrator.WithHealthThresholds(cfg.Health.HeartbeatInterval, cfg.Health.DegradedAfter, cfg.Health.FailedAfter),
		orchestrator.WithSnapshotInterval(cfg.State.SnapshotInterval),
	}
	if cfg.Scheduler.Breakers {
		opts = append(opts, orchestrator.WithBreakers())
	}
	if cfg.Keywords.Path != "" {
		table, err := config.LoadKeywordTable(cfg.Keywords.Path)
		if err != nil {
			return fmt.Errorf("load keyword table: %w", err)
		}
		opts = append(opts, orchestrator.WithKeywordTable(orchestrator.KeywordTable(table)))
	}

	var store *state.DB
	if cfg.State.Path != "" {
		store, err = state.Open(cfg.State.Path)
		if err != nil {
			return fmt.Errorf("open state db: %w", err)
		}
		defer store.Close()
		if err := store.Migrate(); err != nil {
			return fmt.Errorf("migrate state db: %w", err)
		}
		opts = append(opts, orchestrator.WithStateStore(store))
	}

	pool := newWorkerPool(runWorkers, runLatency)
	core := orchestrator.NewCore(pool.dispatch, opts...)
	if err := pool.attach(core); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Keywords.Path != "" && cfg.Keywords.Watch {
		err := config.WatchKeywordTable(ctx, cfg.Keywords.Path,
			func(table config.KeywordTable) {
				core.ReloadKeywords(orchestrator.KeywordTable(table))
			},
			func(err error) {
				fmt.Printf("%s keyword table reload failed: %v\n", color.YellowString("⚠"), err)
			})
		if err != nil {
			return fmt.Errorf("watch keyword table: %w", err)
		}
	}

	core.Start(ctx)
	defer core.Stop()

	poolCtx, cancelPool := context.WithCancel(ctx)
	defer cancelPool()
	poolDone := make(chan struct{})
	go func() {
		defer close(poolDone)
		pool.run(poolCtx, cfg.Health.HeartbeatInterval/2)
	}()

	var submitOpts []orchestrator.SubmitOption
	if runDeadline > 0 {
		submitOpts = append(submitOpts, orchestrator.WithDeadline(time.Now().Add(runDeadline)))
	}

	rootID, err := core.Submit(description, priority, submitOpts...)
	if err != nil {
		return fmt.Errorf("submit: %w", err)
	}
	fmt.Printf("Submitted %s (%d workers)\n\n", color.CyanString(rootID), runWorkers)

	started := time.Now()
	result, err := core.AwaitComposite(ctx, rootID, runTimeout)
	cancelPool()
	<-poolDone
	if err != nil {
		return fmt.Errorf("await composite: %w", err)
	}

	printComposite(result, time.Since(started))
	if !result.AllSucceeded() {
		return fmt.Errorf("%d of %d subtasks did not complete", len(result.Subtasks)-result.Succeeded, len(result.Subtasks))
	}
	return nil
}

func printComposite(result *models.CompositeResult, elapsed time.Duration) {
	fmt.Printf("Composite %s finished in %s\n", result.RootID, formatDuration(elapsed))
	for _, sub := range result.Subtasks {
		switch sub.Status {
		case models.TaskStatusCompleted:
			fmt.Printf("  %s %s", color.GreenString("✓"), sub.Title)
			if sub.Retries > 0 {
				fmt.Printf(" (%d retries)", sub.Retries)
			}
			fmt.Println()
		case models.TaskStatusFailed:
			fmt.Printf("  %s %s: %s\n", color.RedString("✗"), sub.Title, sub.Error)
		default:
			fmt.Printf("  %s %s (%s)\n", color.YellowString("–"), sub.Title, sub.Status)
		}
	}
	fmt.Printf("\n%d succeeded, %d failed, %d cancelled\n", result.Succeeded, result.Failed, result.Cancelled)
}
