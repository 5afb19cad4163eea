package orchestrator

import "time"

// EventType represents the type of a core lifecycle event.
type EventType string

const (
	// EventTaskSubmitted indicates a composite task was accepted.
	EventTaskSubmitted EventType = "task_submitted"
	// EventTaskQueued indicates a task became ready and entered the queue.
	EventTaskQueued EventType = "task_queued"
	// EventTaskDispatched indicates a task was handed to a worker.
	EventTaskDispatched EventType = "task_dispatched"
	// EventTaskCompleted indicates a task finished successfully.
	EventTaskCompleted EventType = "task_completed"
	// EventTaskRetried indicates a failed task was requeued for another attempt.
	EventTaskRetried EventType = "task_retried"
	// EventTaskFailed indicates a task failed terminally.
	EventTaskFailed EventType = "task_failed"
	// EventTaskCancelled indicates a task was cancelled.
	EventTaskCancelled EventType = "task_cancelled"
	// EventWorkerRegistered indicates a worker joined the pool.
	EventWorkerRegistered EventType = "worker_registered"
	// EventWorkerDeregistered indicates a worker left the pool.
	EventWorkerDeregistered EventType = "worker_deregistered"
	// EventWorkerDegraded indicates a worker missed heartbeats and was
	// deprioritized.
	EventWorkerDegraded EventType = "worker_degraded"
	// EventWorkerFailed indicates a worker was removed from the candidate
	// pool and its in-flight tasks requeued.
	EventWorkerFailed EventType = "worker_failed"
	// EventWorkerRecovered indicates a failed worker reported healthy again.
	EventWorkerRecovered EventType = "worker_recovered"
	// EventNoCandidate indicates no worker could take a ready task.
	EventNoCandidate EventType = "no_candidate"
)

// Event is a lifecycle notification consumed by telemetry sinks. Events are
// informational; the core's correctness does not depend on their delivery.
type Event struct {
	// Type is the kind of event.
	Type EventType
	// TaskID is the ID of the related task, if applicable.
	TaskID string
	// WorkerID is the ID of the related worker, if applicable.
	WorkerID string
	// Message provides additional context about the event.
	Message string
	// Err contains error details for failure events.
	Err error
	// Timestamp is when the event occurred.
	Timestamp time.Time
}
