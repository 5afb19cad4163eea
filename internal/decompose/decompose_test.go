package decompose

import (
	"testing"

	"github.com/nexuslabs/conductor/internal/graph"
	"github.com/nexuslabs/conductor/pkg/models"
)

// staticInferrer returns a fixed tag set for every description.
type staticInferrer struct {
	tags []models.CapabilityTag
}

func (s *staticInferrer) Infer(string) []models.CapabilityTag {
	if len(s.tags) == 0 {
		return []models.CapabilityTag{models.CapabilityGeneral}
	}
	return s.tags
}

func newTestDecomposer() *Decomposer {
	return New(&staticInferrer{}, 2)
}

func TestDecomposeAnalyzeOptimize(t *testing.T) {
	d := newTestDecomposer()

	tasks, err := d.Decompose("root-1", "analyze and optimize the payment module", models.PriorityHigh)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantTitles := []string{
		"Initial Analysis",
		"Identify Issues",
		"Generate Solutions",
		"Implement Changes",
		"Verify Results",
	}
	if len(tasks) != len(wantTitles) {
		t.Fatalf("expected %d subtasks, got %d", len(wantTitles), len(tasks))
	}

	for i, task := range tasks {
		if task.Title != wantTitles[i] {
			t.Errorf("subtask %d: expected title %q, got %q", i, wantTitles[i], task.Title)
		}
		if task.ParentID != "root-1" {
			t.Errorf("subtask %d: expected parent root-1, got %q", i, task.ParentID)
		}
		if task.Priority != models.PriorityHigh {
			t.Errorf("subtask %d: expected inherited priority %d, got %d", i, models.PriorityHigh, task.Priority)
		}
		if i == 0 {
			if len(task.DependsOn) != 0 {
				t.Errorf("first subtask should have no dependencies, got %v", task.DependsOn)
			}
			continue
		}
		if len(task.DependsOn) != 1 || task.DependsOn[0] != tasks[i-1].ID {
			t.Errorf("subtask %d: expected linear chain on %s, got %v", i, tasks[i-1].ID, task.DependsOn)
		}
	}
}

func TestDecomposeGenericFallback(t *testing.T) {
	d := newTestDecomposer()

	tasks, err := d.Decompose("root-2", "build a small utility", models.PriorityNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantTitles := []string{
		"Understand Requirements",
		"Plan Approach",
		"Execute Plan",
		"Verify Outcome",
	}
	if len(tasks) != len(wantTitles) {
		t.Fatalf("expected %d subtasks, got %d", len(wantTitles), len(tasks))
	}
	for i, task := range tasks {
		if task.Title != wantTitles[i] {
			t.Errorf("subtask %d: expected %q, got %q", i, wantTitles[i], task.Title)
		}
	}
	for i := 1; i < len(tasks); i++ {
		if len(tasks[i].DependsOn) != 1 || tasks[i].DependsOn[0] != tasks[i-1].ID {
			t.Errorf("expected linear chain at %d", i)
		}
	}
}

func TestDecomposeRefactorNonLinear(t *testing.T) {
	d := newTestDecomposer()

	tasks, err := d.Decompose("root-3", "refactor the storage layer", models.PriorityNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tasks) != 5 {
		t.Fatalf("expected 5 subtasks, got %d", len(tasks))
	}

	// First two steps are independent roots, both gating the plan step.
	if len(tasks[0].DependsOn) != 0 || len(tasks[1].DependsOn) != 0 {
		t.Error("expected two independent root subtasks")
	}
	if len(tasks[2].DependsOn) != 2 {
		t.Fatalf("expected plan step to depend on both roots, got %v", tasks[2].DependsOn)
	}
}

func TestDecomposeDebugPriorityBump(t *testing.T) {
	d := newTestDecomposer()

	tasks, err := d.Decompose("root-4", "fix the crash in the parser", models.PriorityNormal)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, task := range tasks {
		if task.Priority != models.PriorityHigh {
			t.Errorf("expected bumped priority %d, got %d", models.PriorityHigh, task.Priority)
		}
	}

	// Bump at the top of the range clamps instead of overflowing.
	tasks, err = d.Decompose("root-5", "fix the crash in the parser", models.PriorityCritical)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, task := range tasks {
		if task.Priority != models.PriorityCritical {
			t.Errorf("expected clamped priority %d, got %d", models.PriorityCritical, task.Priority)
		}
	}
}

func TestDecomposeEmptyDescription(t *testing.T) {
	d := newTestDecomposer()
	if _, err := d.Decompose("root", "", models.PriorityNormal); err == nil {
		t.Fatal("expected error for empty description")
	}
}

func TestDecomposeOutputBuildsAcyclicGraph(t *testing.T) {
	d := newTestDecomposer()

	for _, desc := range []string{
		"analyze and optimize the cache",
		"refactor the scheduler",
		"fix the login error",
		"improve test coverage",
		"write a changelog",
	} {
		tasks, err := d.Decompose("root", desc, models.PriorityNormal)
		if err != nil {
			t.Fatalf("%q: unexpected error: %v", desc, err)
		}
		g := graph.New()
		if err := g.Build(tasks); err != nil {
			t.Errorf("%q: decomposition produced an invalid graph: %v", desc, err)
		}
	}
}

func TestRuleName(t *testing.T) {
	tests := []struct {
		desc string
		want string
	}{
		{"analyze and optimize the db", "analyze-optimize"},
		{"refactor everything", "refactor"},
		{"fix this bug", "debug"},
		{"add test coverage", "testing"},
		{"do something else", "generic"},
	}
	for _, tt := range tests {
		if got := RuleName(tt.desc); got != tt.want {
			t.Errorf("RuleName(%q) = %q, want %q", tt.desc, got, tt.want)
		}
	}
}
