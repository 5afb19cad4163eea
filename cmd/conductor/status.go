package main

import (
	"fmt"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/nexuslabs/conductor/internal/config"
	"github.com/nexuslabs/conductor/internal/state"
	"github.com/nexuslabs/conductor/pkg/models"
)

var statusDBPath string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show persisted task and worker state",
	Long: `Display the task and worker state from the last persisted snapshot.

Shows:
  - Recent composite tasks and their subtask progress
  - Registered workers with health and load`,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusDBPath, "db", "", "State database path (defaults to config, then XDG)")
}

func resolveDBPath() string {
	if statusDBPath != "" {
		return statusDBPath
	}
	if cfg, err := config.Load(); err == nil && cfg.State.Path != "" {
		return cfg.State.Path
	}
	return state.DefaultDBPath()
}

func runStatus(cmd *cobra.Command, args []string) error {
	dbPath := resolveDBPath()
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		fmt.Println("No persisted state. Run 'conductor run <task>' with state.path configured.")
		return nil
	}

	db, err := state.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}

	if err := displayRoots(db); err != nil {
		return err
	}
	fmt.Println()
	return displayWorkers(db)
}

func displayRoots(db *state.DB) error {
	roots, err := db.ListRoots()
	if err != nil {
		return fmt.Errorf("list composite tasks: %w", err)
	}
	if len(roots) == 0 {
		fmt.Println("Composite tasks: none")
		return nil
	}
	if len(roots) > 5 {
		roots = roots[:5]
	}

	fmt.Println("Recent composite tasks:")
	for _, root := range roots {
		subtasks, err := db.ListTasksByParent(root.ID)
		if err != nil {
			return fmt.Errorf("list subtasks of %s: %w", root.ID, err)
		}

		done, failed := 0, 0
		for _, sub := range subtasks {
			switch sub.Status {
			case models.TaskStatusCompleted:
				done++
			case models.TaskStatusFailed:
				failed++
			}
		}

		age := formatDuration(time.Since(root.CreatedAt))
		fmt.Printf("  %s %s (%s ago)\n", statusGlyph(root.Status), root.Description, age)
		fmt.Printf("    %d/%d subtasks done", done, len(subtasks))
		if failed > 0 {
			fmt.Printf(", %s", color.RedString("%d failed", failed))
		}
		fmt.Println()
	}
	return nil
}

func displayWorkers(db *state.DB) error {
	workers, err := db.ListWorkers()
	if err != nil {
		return fmt.Errorf("list workers: %w", err)
	}
	if len(workers) == 0 {
		fmt.Println("Workers: none")
		return nil
	}

	fmt.Printf("Workers: %d\n", len(workers))
	for _, w := range workers {
		label := w.ID
		if w.Name != "" {
			label = fmt.Sprintf("%s (%s)", w.ID, w.Name)
		}
		fmt.Printf("  %s %s health=%.2f load=%d/%d, last heartbeat %s ago\n",
			workerGlyph(w.Status), label, w.HealthScore,
			w.ActiveTasks, w.MaxConcurrency,
			formatDuration(time.Since(w.LastHeartbeat)))
	}
	return nil
}

func statusGlyph(s models.TaskStatus) string {
	switch s {
	case models.TaskStatusCompleted:
		return color.GreenString("✓")
	case models.TaskStatusFailed:
		return color.RedString("✗")
	case models.TaskStatusCancelled:
		return color.YellowString("–")
	default:
		return color.CyanString("●")
	}
}

func workerGlyph(s models.WorkerStatus) string {
	switch s {
	case models.WorkerStatusHealthy:
		return color.GreenString("●")
	case models.WorkerStatusDegraded:
		return color.YellowString("●")
	default:
		return color.RedString("●")
	}
}

// formatDuration formats a duration in a human-readable way.
func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	if d < time.Minute {
		return fmt.Sprintf("%ds", int(d.Seconds()))
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	if d < 24*time.Hour {
		h := int(d.Hours())
		m := int(d.Minutes()) % 60
		if m > 0 {
			return fmt.Sprintf("%dh%dm", h, m)
		}
		return fmt.Sprintf("%dh", h)
	}
	days := int(d.Hours()) / 24
	return fmt.Sprintf("%dd", days)
}
