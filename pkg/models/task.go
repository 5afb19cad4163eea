package models

import "time"

// TaskStatus represents the current state of a task in the scheduler.
type TaskStatus string

const (
	// TaskStatusPending indicates the task is waiting on unmet dependencies.
	TaskStatusPending TaskStatus = "pending"
	// TaskStatusReady indicates all dependencies are satisfied and the task
	// is queued for dispatch.
	TaskStatusReady TaskStatus = "ready"
	// TaskStatusDispatched indicates the task has been handed to a worker.
	TaskStatusDispatched TaskStatus = "dispatched"
	// TaskStatusCancelRequested indicates cancellation was requested while
	// the task was dispatched; the result will be discarded when it arrives.
	TaskStatusCancelRequested TaskStatus = "cancel_requested"
	// TaskStatusCompleted indicates the task finished successfully.
	TaskStatusCompleted TaskStatus = "completed"
	// TaskStatusFailed indicates the task failed terminally.
	TaskStatusFailed TaskStatus = "failed"
	// TaskStatusCancelled indicates the task was cancelled before completion.
	TaskStatusCancelled TaskStatus = "cancelled"
)

// Valid returns true if the status is a known value.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusReady, TaskStatusDispatched,
		TaskStatusCancelRequested, TaskStatusCompleted, TaskStatusFailed,
		TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Terminal returns true if the status is final. Terminal states are immutable.
func (s TaskStatus) Terminal() bool {
	switch s {
	case TaskStatusCompleted, TaskStatusFailed, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// Priority is the scheduling priority of a task. Higher dispatches first.
type Priority int

const (
	// PriorityLowest is background work.
	PriorityLowest Priority = 1
	// PriorityLow is below-normal work.
	PriorityLow Priority = 2
	// PriorityNormal is the default priority.
	PriorityNormal Priority = 3
	// PriorityHigh is above-normal work.
	PriorityHigh Priority = 4
	// PriorityCritical preempts everything else in the queue.
	PriorityCritical Priority = 5
)

// Valid returns true if the priority is in the allowed 1..5 range.
func (p Priority) Valid() bool {
	return p >= PriorityLowest && p <= PriorityCritical
}

// Clamp returns the priority bounded to the allowed 1..5 range.
func (p Priority) Clamp() Priority {
	if p < PriorityLowest {
		return PriorityLowest
	}
	if p > PriorityCritical {
		return PriorityCritical
	}
	return p
}

// Task represents a unit of work tracked by the orchestration core.
type Task struct {
	// ID is the unique identifier for this task.
	ID string `json:"id"`
	// ParentID is the ID of the composite (root) task this subtask belongs to.
	ParentID string `json:"parent_id,omitempty"`
	// Title is the short description of the task.
	Title string `json:"title"`
	// Description provides detailed information about the task.
	Description string `json:"description,omitempty"`
	// RequiredCapabilities lists the capability tags a worker must overlap
	// with to be a scoring candidate. Never empty after inference.
	RequiredCapabilities []CapabilityTag `json:"required_capabilities"`
	// Priority is the scheduling priority (1..5, higher first).
	Priority Priority `json:"priority"`
	// Status is the current state of the task.
	Status TaskStatus `json:"status"`
	// DependsOn lists task IDs that must complete before this task.
	DependsOn []string `json:"depends_on,omitempty"`
	// AssignedWorker is the ID of the worker currently holding this task.
	// At most one worker holds a task at any instant.
	AssignedWorker string `json:"assigned_worker,omitempty"`
	// RetryCount is the number of times this task has been retried.
	RetryCount int `json:"retry_count,omitempty"`
	// MaxRetries bounds RetryCount; exceeding it forces terminal failure.
	MaxRetries int `json:"max_retries"`
	// Deadline, if set, fails the task before dispatch once passed.
	Deadline *time.Time `json:"deadline,omitempty"`
	// Result holds the payload reported by the worker on success.
	Result any `json:"result,omitempty"`
	// Error contains the most recent failure message, if any.
	Error string `json:"error,omitempty"`
	// CreatedAt is when the task was created.
	CreatedAt time.Time `json:"created_at"`
	// DispatchedAt is when the task was last handed to a worker.
	DispatchedAt *time.Time `json:"dispatched_at,omitempty"`
	// CompletedAt is when the task reached a terminal state.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Clone returns a shallow copy of the task, safe to hand to callers as a
// snapshot. Slice fields are copied so the caller cannot mutate core state.
func (t *Task) Clone() *Task {
	c := *t
	c.RequiredCapabilities = append([]CapabilityTag(nil), t.RequiredCapabilities...)
	c.DependsOn = append([]string(nil), t.DependsOn...)
	return &c
}
