package orchestrator

import (
	"errors"
	"fmt"
)

// Structural errors are surfaced immediately at call time, never swallowed.
var (
	// ErrDuplicateWorker indicates a registration with an ID already in use.
	ErrDuplicateWorker = errors.New("worker already registered")
	// ErrUnknownWorker indicates an operation on a worker the registry
	// does not know about.
	ErrUnknownWorker = errors.New("unknown worker")
	// ErrUnknownTask indicates an operation on a task the core does not track.
	ErrUnknownTask = errors.New("unknown task")
	// ErrWorkerBusy indicates a deregistration was refused because the
	// worker holds tasks that no other worker could take over.
	ErrWorkerBusy = errors.New("worker has active tasks with no redistribution target")
	// ErrNoCandidateWorker indicates no worker in the pool can take a task.
	ErrNoCandidateWorker = errors.New("no candidate worker available")
	// ErrDeadlineExceeded indicates a task deadline passed before dispatch.
	ErrDeadlineExceeded = errors.New("deadline exceeded before dispatch")
	// ErrAwaitTimeout indicates a caller-side wait expired.
	ErrAwaitTimeout = errors.New("timed out waiting for task completion")
	// ErrUpstreamDependencyFailed marks tasks failed by cascade from a
	// terminally failed dependency.
	ErrUpstreamDependencyFailed = errors.New("upstream dependency failed")
	// ErrTaskCancelled indicates the awaited task was cancelled.
	ErrTaskCancelled = errors.New("task cancelled")
	// ErrCompositeIncomplete indicates a composite collection was attempted
	// while some subtasks were still non-terminal.
	ErrCompositeIncomplete = errors.New("composite task has non-terminal subtasks")
)

// TaskFailedError reports the terminal failure of an awaited task, carrying
// the error recorded at failure time.
type TaskFailedError struct {
	// TaskID is the failed task.
	TaskID string
	// Reason is the recorded failure message.
	Reason string
}

// Error implements the error interface.
func (e *TaskFailedError) Error() string {
	return fmt.Sprintf("task %s failed: %s", e.TaskID, e.Reason)
}
