// Package decompose breaks composite task descriptions into dependency-linked
// subtask sequences using an ordered rule table.
package decompose

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nexuslabs/conductor/pkg/models"
)

// CapabilityInferrer maps a free-text description to required capability tags.
type CapabilityInferrer interface {
	Infer(description string) []models.CapabilityTag
}

// Decomposer turns a composite request into subtasks. Rules are checked most
// specific first; a generic understand/plan/execute/verify sequence is the
// fallback so every request decomposes.
type Decomposer struct {
	inferrer CapabilityInferrer
	// defaultMaxRetries is applied to every produced subtask.
	defaultMaxRetries int
}

// New creates a Decomposer using the given capability inferrer.
func New(inferrer CapabilityInferrer, defaultMaxRetries int) *Decomposer {
	return &Decomposer{inferrer: inferrer, defaultMaxRetries: defaultMaxRetries}
}

// Decompose produces the subtask list for a composite request. Each subtask
// inherits the parent's priority unless the matched rule bumps it, carries
// the parent's ID, and gets its required capabilities inferred from its own
// step description combined with the parent description.
func (d *Decomposer) Decompose(parentID, description string, priority models.Priority) ([]*models.Task, error) {
	if description == "" {
		return nil, fmt.Errorf("empty task description")
	}
	priority = priority.Clamp()

	r := matchRule(description)
	now := time.Now()

	tasks := make([]*models.Task, len(r.steps))
	for i, s := range r.steps {
		tasks[i] = &models.Task{
			ID:                   uuid.New().String(),
			ParentID:             parentID,
			Title:                s.title,
			Description:          fmt.Sprintf("%s: %s", s.description, description),
			RequiredCapabilities: d.inferrer.Infer(s.description + " " + description),
			Priority:             bumpPriority(priority, s.priorityBump),
			Status:               models.TaskStatusPending,
			MaxRetries:           d.defaultMaxRetries,
			CreatedAt:            now,
		}
	}

	link(r, tasks)
	return tasks, nil
}

// link records dependency edges on the produced subtasks. Linear rules chain
// task[i] onto task[i-1]; non-linear rules use each step's explicit indexes.
func link(r rule, tasks []*models.Task) {
	if r.linear {
		for i := 1; i < len(tasks); i++ {
			tasks[i].DependsOn = []string{tasks[i-1].ID}
		}
		return
	}
	for i, s := range r.steps {
		for _, dep := range s.dependsOn {
			tasks[i].DependsOn = append(tasks[i].DependsOn, tasks[dep].ID)
		}
	}
}

// RuleName returns the name of the rule that would match the description.
// Exposed for diagnostics and tests.
func RuleName(description string) string {
	return matchRule(description).name
}
