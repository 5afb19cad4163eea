package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nexuslabs/conductor/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE:  runConfigShow,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file to the user config path",
	RunE:  runConfigInit,
}

func init() {
	configCmd.AddCommand(configInitCmd)
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	fmt.Printf("User config:    %s\n", config.GetUserConfigPath())
	if project := config.GetProjectConfigPath(); project != "" {
		fmt.Printf("Project config: %s\n", project)
	}
	fmt.Println()

	fmt.Println("scheduler:")
	fmt.Printf("  poll_interval: %s\n", cfg.Scheduler.PollInterval)
	fmt.Printf("  breakers: %v\n", cfg.Scheduler.Breakers)
	fmt.Println("retry:")
	fmt.Printf("  max_retries: %d\n", cfg.Retry.MaxRetries)
	fmt.Printf("  backoff_enabled: %v\n", cfg.Retry.BackoffEnabled)
	fmt.Printf("  backoff_initial: %s\n", cfg.Retry.BackoffInitial)
	fmt.Printf("  backoff_max: %s\n", cfg.Retry.BackoffMax)
	fmt.Printf("  backoff_multiplier: %g\n", cfg.Retry.BackoffMultiplier)
	fmt.Println("health:")
	fmt.Printf("  heartbeat_interval: %s\n", cfg.Health.HeartbeatInterval)
	fmt.Printf("  degraded_after: %d\n", cfg.Health.DegradedAfter)
	fmt.Printf("  failed_after: %d\n", cfg.Health.FailedAfter)
	fmt.Println("events:")
	fmt.Printf("  buffer: %d\n", cfg.Events.Buffer)
	fmt.Println("state:")
	fmt.Printf("  path: %s\n", orNotSet(cfg.State.Path))
	fmt.Printf("  snapshot_interval: %s\n", cfg.State.SnapshotInterval)
	fmt.Println("keywords:")
	fmt.Printf("  path: %s\n", orNotSet(cfg.Keywords.Path))
	fmt.Printf("  watch: %v\n", cfg.Keywords.Watch)
	fmt.Println("logging:")
	fmt.Printf("  debug_log: %s\n", orNotSet(cfg.Logging.DebugLog))
	return nil
}

func runConfigInit(cmd *cobra.Command, args []string) error {
	if err := config.Save(config.Default()); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	fmt.Printf("%s wrote %s\n", color.GreenString("✓"), config.GetUserConfigPath())
	return nil
}

func orNotSet(s string) string {
	if s == "" {
		return "(not set)"
	}
	return s
}
