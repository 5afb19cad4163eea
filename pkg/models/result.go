package models

import "time"

// SubtaskOutcome is the terminal record of a single subtask inside a
// composite result.
type SubtaskOutcome struct {
	// TaskID is the subtask identifier.
	TaskID string `json:"task_id"`
	// Title is the subtask title.
	Title string `json:"title"`
	// Status is the terminal status of the subtask.
	Status TaskStatus `json:"status"`
	// Result is the payload reported on success.
	Result any `json:"result,omitempty"`
	// Error is the failure message, if the subtask failed.
	Error string `json:"error,omitempty"`
	// Retries is how many times the subtask was retried.
	Retries int `json:"retries"`
}

// CompositeResult merges the outcomes of all subtasks under a root task.
// Partial success is representable: some subtasks may have succeeded while
// others failed terminally.
type CompositeResult struct {
	// RootID is the composite task identifier.
	RootID string `json:"root_id"`
	// Description is the original composite description.
	Description string `json:"description"`
	// Subtasks holds the per-subtask breakdown in dependency order.
	Subtasks []SubtaskOutcome `json:"subtasks"`
	// Succeeded is the count of completed subtasks.
	Succeeded int `json:"succeeded"`
	// Failed is the count of terminally failed subtasks.
	Failed int `json:"failed"`
	// Cancelled is the count of cancelled subtasks.
	Cancelled int `json:"cancelled"`
	// CollectedAt is when the composite was assembled.
	CollectedAt time.Time `json:"collected_at"`
}

// AllSucceeded returns true if every subtask completed successfully.
func (r *CompositeResult) AllSucceeded() bool {
	return r.Failed == 0 && r.Cancelled == 0 && r.Succeeded == len(r.Subtasks)
}
