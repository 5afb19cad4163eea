package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Capability-based task orchestration core",
	Long: `Conductor routes composite tasks to capability-matched workers.

Submitted descriptions are decomposed into dependency-linked subtasks,
scheduled by priority onto the healthiest matching workers, retried on
failure, and merged back into a composite result.

Core capabilities:
- Decomposes requests into canonical subtask sequences
- Infers required capabilities from task descriptions
- Scores workers on capability overlap, health, and load
- Tracks worker health via heartbeats with automatic requeue
- Persists task and worker state across restarts`,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}
