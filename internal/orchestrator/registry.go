package orchestrator

import (
	"sort"
	"sync"
	"time"

	"github.com/nexuslabs/conductor/pkg/models"
)

// Candidate scoring weights. Capability overlap dominates, with health and
// spare capacity sharing the remainder.
const (
	scoreWeightOverlap = 0.4
	scoreWeightHealth  = 0.3
	scoreWeightLoad    = 0.3
)

// Registry holds the set of known workers. Registration and deregistration
// are explicit; health fields are mutated only through the health monitor
// and load fields only through the scheduler.
type Registry struct {
	mu      sync.RWMutex
	workers map[string]*models.Worker
}

// NewRegistry creates an empty worker registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[string]*models.Worker)}
}

// Register adds a worker to the pool. Returns ErrDuplicateWorker if the ID
// is already registered. Workers with no declared capabilities are given the
// general tag so they remain schedulable.
func (r *Registry) Register(id, name string, capabilities []models.CapabilityTag, maxConcurrency int) (*models.Worker, error) {
	if maxConcurrency < 1 {
		maxConcurrency = 1
	}
	if len(capabilities) == 0 {
		capabilities = []models.CapabilityTag{models.CapabilityGeneral}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workers[id]; exists {
		return nil, ErrDuplicateWorker
	}

	now := time.Now()
	w := &models.Worker{
		ID:             id,
		Name:           name,
		Capabilities:   models.SortCapabilities(append([]models.CapabilityTag(nil), capabilities...)),
		Status:         models.WorkerStatusHealthy,
		HealthScore:    1.0,
		MaxConcurrency: maxConcurrency,
		RegisteredAt:   now,
		LastHeartbeat:  now,
	}
	r.workers[id] = w
	return w.Clone(), nil
}

// Deregister removes a worker from the pool. Returns ErrWorkerBusy if the
// worker still holds active tasks; the core reassigns those first.
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return ErrUnknownWorker
	}
	if w.ActiveTasks > 0 {
		return ErrWorkerBusy
	}
	delete(r.workers, id)
	return nil
}

// get returns the live worker record. Callers must treat it as owned by the
// registry and mutate it only via registry methods.
func (r *Registry) get(id string) *models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.workers[id]
}

// Snapshot returns a copy of the worker, or nil if unknown.
func (r *Registry) Snapshot(id string) *models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if w, ok := r.workers[id]; ok {
		return w.Clone()
	}
	return nil
}

// All returns copies of every registered worker, sorted by ID.
func (r *Registry) All() []*models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	workers := make([]*models.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		workers = append(workers, w.Clone())
	}
	sort.Slice(workers, func(i, j int) bool { return workers[i].ID < workers[j].ID })
	return workers
}

// Count returns the number of registered workers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.workers)
}

// AvailableCount returns the number of workers not in the failed state.
func (r *Registry) AvailableCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, w := range r.workers {
		if w.Status != models.WorkerStatusFailed {
			n++
		}
	}
	return n
}

// scored pairs a worker with its candidate score for sorting.
type scored struct {
	worker *models.Worker
	score  float64
}

// Candidates returns workers able to take a task with the given requirement
// set, best first. Workers in the failed state and workers in the exclude
// set are never returned. Score is
//
//	overlap_fraction*0.4 + health_score*0.3 + (1-load)*0.3
//
// with ties broken by worker ID for determinism. If no worker overlaps the
// requirements at all, the least-loaded healthy workers are returned as a
// fallback so work is never silently dropped.
func (r *Registry) Candidates(required []models.CapabilityTag, exclude map[string]bool) []*models.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ranked []scored
	for _, w := range r.workers {
		if w.Status == models.WorkerStatusFailed || exclude[w.ID] {
			continue
		}
		overlap := models.CapabilityOverlap(required, w.Capabilities)
		if overlap == 0 {
			continue
		}
		frac := float64(overlap) / float64(len(required))
		score := frac*scoreWeightOverlap + w.HealthScore*scoreWeightHealth + (1-w.Load())*scoreWeightLoad
		ranked = append(ranked, scored{worker: w, score: score})
	}

	if len(ranked) == 0 {
		return r.fallbackCandidatesLocked(exclude)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].worker.ID < ranked[j].worker.ID
	})

	workers := make([]*models.Worker, len(ranked))
	for i, s := range ranked {
		workers[i] = s.worker
	}
	return workers
}

// fallbackCandidatesLocked returns healthy workers ordered by load. Degraded
// and failed workers are never fallback targets.
func (r *Registry) fallbackCandidatesLocked(exclude map[string]bool) []*models.Worker {
	var healthy []*models.Worker
	for _, w := range r.workers {
		if w.Status != models.WorkerStatusHealthy || exclude[w.ID] {
			continue
		}
		healthy = append(healthy, w)
	}
	sort.Slice(healthy, func(i, j int) bool {
		if healthy[i].Load() != healthy[j].Load() {
			return healthy[i].Load() < healthy[j].Load()
		}
		return healthy[i].ID < healthy[j].ID
	})
	return healthy
}

// IncrementActive records a dispatch to the worker. Returns false if the
// worker is unknown or already at its concurrency cap; the cap is a hard
// invariant, never exceeded.
func (r *Registry) IncrementActive(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok || w.ActiveTasks >= w.MaxConcurrency {
		return false
	}
	w.ActiveTasks++
	return true
}

// DecrementActive frees a concurrency slot on the worker.
func (r *Registry) DecrementActive(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[id]; ok && w.ActiveTasks > 0 {
		w.ActiveTasks--
	}
}

// SetHealth updates a worker's health state. Used by the health monitor only.
func (r *Registry) SetHealth(id string, status models.WorkerStatus, score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.workers[id]
	if !ok {
		return
	}
	w.Status = status
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	w.HealthScore = score
}

// TouchHeartbeat records a heartbeat arrival time.
func (r *Registry) TouchHeartbeat(id string, at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if w, ok := r.workers[id]; ok {
		w.LastHeartbeat = at
	}
}
