package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/nexuslabs/conductor/pkg/models"
)

// Health monitor defaults. A worker degrades after two missed heartbeat
// intervals and fails after four.
const (
	DefaultHeartbeatInterval = 5 * time.Second
	DefaultDegradedAfter     = 2
	DefaultFailedAfter       = 4
)

// HealthMonitor watches worker heartbeats and drives the worker state
// machine: healthy to degraded to failed on missed heartbeats, and back to
// healthy only on an explicit heartbeat. When a worker fails, its in-flight
// tasks are pulled back into the queue through the scheduler.
type HealthMonitor struct {
	registry  *Registry
	scheduler *Scheduler
	emitter   *EventEmitter
	metrics   *Metrics

	interval      time.Duration
	degradedAfter int
	failedAfter   int

	mu     sync.Mutex
	missed map[string]int
}

// NewHealthMonitor creates a monitor over the registry. The scheduler is
// notified when failed workers need their tasks requeued.
func NewHealthMonitor(reg *Registry, sched *Scheduler) *HealthMonitor {
	return &HealthMonitor{
		registry:      reg,
		scheduler:     sched,
		interval:      DefaultHeartbeatInterval,
		degradedAfter: DefaultDegradedAfter,
		failedAfter:   DefaultFailedAfter,
		missed:        make(map[string]int),
	}
}

// SetEmitter sets the lifecycle event emitter.
func (h *HealthMonitor) SetEmitter(e *EventEmitter) { h.emitter = e }

// SetMetrics sets the metrics collector.
func (h *HealthMonitor) SetMetrics(m *Metrics) { h.metrics = m }

// SetThresholds overrides the heartbeat interval and the missed-interval
// counts for degradation and failure. Zero values keep the defaults.
func (h *HealthMonitor) SetThresholds(interval time.Duration, degradedAfter, failedAfter int) {
	if interval > 0 {
		h.interval = interval
	}
	if degradedAfter > 0 {
		h.degradedAfter = degradedAfter
	}
	if failedAfter > degradedAfter && failedAfter > 0 {
		h.failedAfter = failedAfter
	}
}

// Run checks heartbeats on every interval until the context is cancelled.
func (h *HealthMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			h.CheckOnce(now)
		}
	}
}

// transition is a pending state change collected during a check pass.
type transition struct {
	workerID string
	from     models.WorkerStatus
	to       models.WorkerStatus
	score    float64
}

// CheckOnce evaluates every worker's heartbeat age against the thresholds
// and applies any resulting transitions. Exposed for deterministic tests.
func (h *HealthMonitor) CheckOnce(now time.Time) {
	// Collect transitions before acting so requeueing never runs under the
	// missed-count lock.
	var changes []transition

	h.mu.Lock()
	for _, w := range h.registry.All() {
		elapsed := now.Sub(w.LastHeartbeat)
		missed := int(elapsed / h.interval)
		h.missed[w.ID] = missed

		score := 1 - float64(missed)/float64(h.failedAfter)
		if score < 0 {
			score = 0
		}

		var next models.WorkerStatus
		switch {
		case missed >= h.failedAfter:
			next = models.WorkerStatusFailed
		case missed >= h.degradedAfter:
			next = models.WorkerStatusDegraded
		default:
			next = w.Status // missed heartbeats never promote on their own
			if w.Status == models.WorkerStatusHealthy {
				score = w.HealthScore
			}
		}

		if next != w.Status || score != w.HealthScore {
			changes = append(changes, transition{workerID: w.ID, from: w.Status, to: next, score: score})
		}
	}
	h.mu.Unlock()

	for _, c := range changes {
		h.apply(c)
	}
}

// apply commits a single transition and its side effects.
func (h *HealthMonitor) apply(c transition) {
	h.registry.SetHealth(c.workerID, c.to, c.score)
	h.metrics.setWorkerHealth(c.workerID, c.score)

	if c.from == c.to {
		return
	}
	debugLog("[health] worker %s: %s -> %s (score %.2f)", c.workerID, c.from, c.to, c.score)

	switch c.to {
	case models.WorkerStatusDegraded:
		h.emit(Event{Type: EventWorkerDegraded, WorkerID: c.workerID})
	case models.WorkerStatusFailed:
		h.emit(Event{Type: EventWorkerFailed, WorkerID: c.workerID})
		if h.scheduler != nil {
			h.scheduler.RequeueWorkerTasks(c.workerID)
		}
	}
}

// ReportHeartbeat records a heartbeat from a worker. This is the only path
// back to healthy: a failed worker that heartbeats again rejoins the
// candidate pool with a full health score.
func (h *HealthMonitor) ReportHeartbeat(workerID string, at time.Time) error {
	w := h.registry.Snapshot(workerID)
	if w == nil {
		return ErrUnknownWorker
	}

	h.registry.TouchHeartbeat(workerID, at)

	h.mu.Lock()
	h.missed[workerID] = 0
	h.mu.Unlock()

	if w.Status != models.WorkerStatusHealthy {
		h.registry.SetHealth(workerID, models.WorkerStatusHealthy, 1.0)
		h.metrics.setWorkerHealth(workerID, 1.0)
		h.emit(Event{Type: EventWorkerRecovered, WorkerID: workerID})
		debugLog("[health] worker %s recovered via heartbeat", workerID)
	} else {
		h.registry.SetHealth(workerID, models.WorkerStatusHealthy, 1.0)
		h.metrics.setWorkerHealth(workerID, 1.0)
	}
	return nil
}

// Forget drops tracking state for a deregistered worker.
func (h *HealthMonitor) Forget(workerID string) {
	h.mu.Lock()
	delete(h.missed, workerID)
	h.mu.Unlock()
	h.metrics.dropWorker(workerID)
}

func (h *HealthMonitor) emit(event Event) {
	if h.emitter != nil {
		h.emitter.Emit(event)
	}
}
