package models

import "time"

// WorkerStatus represents the health state of a worker.
type WorkerStatus string

const (
	// WorkerStatusHealthy indicates the worker is heartbeating normally.
	WorkerStatusHealthy WorkerStatus = "healthy"
	// WorkerStatusDegraded indicates the worker missed heartbeats and is
	// deprioritized for new dispatches.
	WorkerStatusDegraded WorkerStatus = "degraded"
	// WorkerStatusFailed indicates the worker is removed from the candidate
	// pool. Recovery requires an explicit heartbeat from the worker.
	WorkerStatusFailed WorkerStatus = "failed"
)

// Valid returns true if the status is a known value.
func (s WorkerStatus) Valid() bool {
	switch s {
	case WorkerStatusHealthy, WorkerStatusDegraded, WorkerStatusFailed:
		return true
	default:
		return false
	}
}

// Worker represents a registered task executor. The core only tracks worker
// state; execution itself happens out of process.
type Worker struct {
	// ID is the unique identifier for this worker.
	ID string `json:"id"`
	// Name is a human-readable label for the worker.
	Name string `json:"name,omitempty"`
	// Capabilities is the set of work classes this worker can perform.
	Capabilities []CapabilityTag `json:"capabilities"`
	// Status is the current health state, mutated only by the health monitor.
	Status WorkerStatus `json:"status"`
	// HealthScore is in [0,1]; it feeds candidate scoring.
	HealthScore float64 `json:"health_score"`
	// ActiveTasks is the number of tasks currently dispatched to this worker.
	// Never exceeds MaxConcurrency.
	ActiveTasks int `json:"active_tasks"`
	// MaxConcurrency is the dispatch cap for this worker.
	MaxConcurrency int `json:"max_concurrency"`
	// RegisteredAt is when the worker joined the pool.
	RegisteredAt time.Time `json:"registered_at"`
	// LastHeartbeat is when the worker last reported in.
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

// HasCapability returns true if the worker carries the given tag.
func (w *Worker) HasCapability(tag CapabilityTag) bool {
	for _, c := range w.Capabilities {
		if c == tag {
			return true
		}
	}
	return false
}

// Load returns the worker's load fraction in [0,1].
func (w *Worker) Load() float64 {
	if w.MaxConcurrency <= 0 {
		return 1
	}
	return float64(w.ActiveTasks) / float64(w.MaxConcurrency)
}

// HasSpareConcurrency returns true if another task can be dispatched.
func (w *Worker) HasSpareConcurrency() bool {
	return w.ActiveTasks < w.MaxConcurrency
}

// Clone returns a shallow copy safe to hand out as a snapshot.
func (w *Worker) Clone() *Worker {
	c := *w
	c.Capabilities = append([]CapabilityTag(nil), w.Capabilities...)
	return &c
}
