package orchestrator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nexuslabs/conductor/internal/graph"
	"github.com/nexuslabs/conductor/pkg/models"
)

// DefaultPollInterval bounds how long the scheduler loop sleeps between
// dispatch attempts when no completion wakes it earlier.
const DefaultPollInterval = 100 * time.Millisecond

// DispatchFunc hands a task to a worker. It is called off the scheduler
// goroutine and must not block on worker execution: implementations deliver
// the assignment and return, with the worker reporting back through
// ReportResult. A non-nil error counts as a failed attempt for the task.
type DispatchFunc func(task *models.Task, worker *models.Worker) error

// Scheduler owns all task state transitions. It maintains the ready queue,
// picks the best-scoring worker per task, enforces per-worker concurrency,
// retries failures up to each task's budget, and cascades terminal failures
// to transitive dependents within the same tick.
//
// All transitions happen under a single mutex; ReportResult is idempotent
// against duplicate delivery because transitions are status-checked
// compare-and-set.
type Scheduler struct {
	graph    *graph.TaskGraph
	registry *Registry
	agg      *Aggregator
	dispatch DispatchFunc

	emitter  *EventEmitter
	metrics  *Metrics
	backoff  BackoffConfig
	breakers *BreakerSet

	mu    sync.Mutex
	queue *taskQueue
	// excluded maps task ID to the worker excluded from its current attempt
	// (the worker that failed the previous one).
	excluded map[string]string

	pollInterval time.Duration
	trigger      chan struct{}
}

// NewScheduler creates a Scheduler over the given graph, registry, and
// aggregator. dispatch delivers assignments to workers.
func NewScheduler(g *graph.TaskGraph, reg *Registry, agg *Aggregator, dispatch DispatchFunc) *Scheduler {
	return &Scheduler{
		graph:        g,
		registry:     reg,
		agg:          agg,
		dispatch:     dispatch,
		backoff:      DefaultBackoffConfig(),
		queue:        newTaskQueue(),
		excluded:     make(map[string]string),
		pollInterval: DefaultPollInterval,
		trigger:      make(chan struct{}, 1),
	}
}

// SetEmitter sets the lifecycle event emitter.
func (s *Scheduler) SetEmitter(e *EventEmitter) { s.emitter = e }

// SetMetrics sets the metrics collector.
func (s *Scheduler) SetMetrics(m *Metrics) { s.metrics = m }

// SetBackoff sets the retry backoff policy.
func (s *Scheduler) SetBackoff(cfg BackoffConfig) { s.backoff = cfg }

// SetBreakers sets the per-worker dispatch circuit breakers.
func (s *Scheduler) SetBreakers(b *BreakerSet) { s.breakers = b }

// SetPollInterval overrides the dispatch poll interval.
func (s *Scheduler) SetPollInterval(d time.Duration) {
	if d > 0 {
		s.pollInterval = d
	}
}

// Run drives dispatch ticks until the context is cancelled. Ticks fire on
// completion triggers and on the poll interval, whichever comes first.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(s.pollInterval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		case <-timer.C:
		}
		s.Tick()

		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(s.pollInterval)
	}
}

// Enqueue admits a task to scheduling. The task must already be in the
// graph. Tasks whose dependencies are satisfied enter the ready queue;
// others stay pending until a completion promotes them.
func (s *Scheduler) Enqueue(task *models.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if task.Status != models.TaskStatusPending {
		return
	}
	if s.graph.Ready(task.ID) {
		s.markReadyLocked(task, time.Now())
	}
	s.triggerLocked()
}

// delivery is a dispatch decision awaiting hand-off to its worker.
type delivery struct {
	task   *models.Task
	worker *models.Worker
}

// Tick pops ready tasks and dispatches each to the best available worker.
// Non-blocking: tasks with no available candidate are requeued for the next
// tick at their original queue position. Deliveries happen off the lock, in
// pop order, so workers observe priority-then-FIFO order. Returns the number
// of dispatches.
func (s *Scheduler) Tick() int {
	dispatched, deliveries := s.tickLocked()
	if len(deliveries) > 0 {
		go s.deliverAll(deliveries)
	}
	return dispatched
}

func (s *Scheduler) tickLocked() (int, []delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dispatched := 0
	var deliveries []delivery
	var requeue []*queueItem

	for n := s.queue.Len(); n > 0; n-- {
		item := s.queue.popItem()
		if item == nil {
			break
		}
		task := item.task
		if task.Status != models.TaskStatusReady {
			continue // stale entry left behind by cancel or cascade
		}

		now := time.Now()
		if task.Deadline != nil && now.After(*task.Deadline) {
			// Deadline failures do not consume a retry.
			s.failTerminalLocked(task, ErrDeadlineExceeded.Error(), now)
			continue
		}
		if !s.graph.Ready(task.ID) {
			task.Status = models.TaskStatusPending
			continue
		}

		target := s.selectWorkerLocked(task)
		if target == nil {
			if s.registry.Count() > 0 && s.registry.AvailableCount() == 0 {
				// The pool exists but every worker failed: surface rather
				// than retrying forever.
				s.emit(Event{Type: EventNoCandidate, TaskID: task.ID, Err: ErrNoCandidateWorker})
				s.failTerminalLocked(task, ErrNoCandidateWorker.Error(), now)
				continue
			}
			requeue = append(requeue, item)
			continue
		}

		if s.dispatchLocked(task, target, now, &deliveries) {
			dispatched++
		} else {
			requeue = append(requeue, item)
		}
	}

	for _, item := range requeue {
		s.queue.pushItem(item)
	}
	s.metrics.setQueueDepth(s.queue.Len())
	return dispatched, deliveries
}

// selectWorkerLocked returns the best-scoring candidate with spare
// concurrency whose breaker permits dispatch, or nil.
func (s *Scheduler) selectWorkerLocked(task *models.Task) *models.Worker {
	exclude := make(map[string]bool, 1)
	if w := s.excluded[task.ID]; w != "" {
		exclude[w] = true
	}

	for _, w := range s.registry.Candidates(task.RequiredCapabilities, exclude) {
		if !w.HasSpareConcurrency() {
			continue
		}
		if s.breakers != nil && !s.breakers.Allow(w.ID) {
			continue
		}
		return w
	}
	return nil
}

// dispatchLocked transitions the task to dispatched and records the pending
// delivery. Returns false if the worker slot could not be claimed.
func (s *Scheduler) dispatchLocked(task *models.Task, worker *models.Worker, now time.Time, deliveries *[]delivery) bool {
	if !s.registry.IncrementActive(worker.ID) {
		return false
	}

	task.Status = models.TaskStatusDispatched
	task.AssignedWorker = worker.ID
	at := now
	task.DispatchedAt = &at

	s.metrics.dispatched()
	s.emit(Event{Type: EventTaskDispatched, TaskID: task.ID, WorkerID: worker.ID, Message: task.Title})
	debugLog("[scheduler] dispatched %s (%s) to worker %s", task.ID, task.Title, worker.ID)

	*deliveries = append(*deliveries, delivery{task: task.Clone(), worker: worker.Clone()})
	return true
}

// deliverAll hands a tick's assignments to their workers sequentially, so a
// single tick's dispatches arrive in the order they were popped.
func (s *Scheduler) deliverAll(deliveries []delivery) {
	for _, d := range deliveries {
		s.deliver(d.task, d.worker)
	}
}

// deliver hands the assignment to the worker outside the scheduler lock.
// Delivery failure counts as a task attempt.
func (s *Scheduler) deliver(task *models.Task, worker *models.Worker) {
	var err error
	if s.breakers != nil {
		err = s.breakers.Deliver(worker.ID, func() error { return s.dispatch(task, worker) })
	} else {
		err = s.dispatch(task, worker)
	}
	if err != nil {
		debugLog("[scheduler] delivery to worker %s failed for task %s: %v", worker.ID, task.ID, err)
		_ = s.ReportResult(task.ID, false, fmt.Sprintf("dispatch delivery failed: %v", err))
	}
}

// ReportResult records a worker's outcome for a task. Idempotent: a report
// for a task not currently dispatched is a no-op. On success the task
// completes and its dependents are re-evaluated for readiness; on failure
// the task is requeued (excluding the failed worker) until its retry budget
// is exhausted, then failed terminally with cascade.
func (s *Scheduler) ReportResult(taskID string, success bool, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.graph.Task(taskID)
	if task == nil {
		return ErrUnknownTask
	}
	now := time.Now()

	switch task.Status {
	case models.TaskStatusDispatched:
		// fall through to outcome handling
	case models.TaskStatusCancelRequested:
		// Cancellation raced the worker; the result is discarded.
		s.releaseWorkerLocked(task)
		task.Status = models.TaskStatusCancelled
		task.CompletedAt = &now
		s.metrics.cancelled()
		s.agg.resolve(taskID)
		s.emit(Event{Type: EventTaskCancelled, TaskID: taskID, Message: "result discarded after cancellation"})
		return nil
	default:
		return nil // duplicate delivery
	}

	failedWorker := task.AssignedWorker
	s.releaseWorkerLocked(task)

	if success {
		task.Status = models.TaskStatusCompleted
		task.Result = payload
		task.CompletedAt = &now
		delete(s.excluded, taskID)

		s.graph.MarkComplete(taskID)
		s.metrics.completed()
		s.agg.resolve(taskID)
		s.emit(Event{Type: EventTaskCompleted, TaskID: taskID, WorkerID: failedWorker, Message: task.Title})
		debugLog("[scheduler] task %s completed by worker %s", taskID, failedWorker)

		s.promoteDependentsLocked(taskID, now)
		s.triggerLocked()
		return nil
	}

	errMsg := fmt.Sprint(payload)
	if task.RetryCount < task.MaxRetries {
		task.RetryCount++
		task.Error = errMsg
		if failedWorker != "" {
			s.excluded[taskID] = failedWorker
		}
		task.Status = models.TaskStatusReady

		s.metrics.retried()
		s.emit(Event{Type: EventTaskRetried, TaskID: taskID, WorkerID: failedWorker, Message: errMsg})
		debugLog("[scheduler] task %s failed on worker %s, retry %d/%d: %s",
			taskID, failedWorker, task.RetryCount, task.MaxRetries, errMsg)

		if delay := s.backoff.Delay(task.RetryCount - 1); delay > 0 {
			time.AfterFunc(delay, func() { s.requeueAfterBackoff(taskID) })
		} else {
			// Immediate requeue with a fresh enqueue time: the retried task
			// may reorder relative to untouched peers.
			s.queue.push(task, now)
			s.triggerLocked()
		}
		return nil
	}

	s.failTerminalLocked(task, errMsg, now)
	return nil
}

// requeueAfterBackoff reinserts a retried task once its backoff elapsed.
func (s *Scheduler) requeueAfterBackoff(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.graph.Task(taskID)
	if task == nil || task.Status != models.TaskStatusReady {
		return
	}
	s.queue.push(task, time.Now())
	s.triggerLocked()
}

// promoteDependentsLocked moves pending dependents whose dependencies are
// now satisfied into the ready queue.
func (s *Scheduler) promoteDependentsLocked(taskID string, now time.Time) {
	for _, depID := range s.graph.Dependents(taskID) {
		dep := s.graph.Task(depID)
		if dep != nil && dep.Status == models.TaskStatusPending && s.graph.Ready(depID) {
			s.markReadyLocked(dep, now)
		}
	}
}

// markReadyLocked transitions a pending task to ready and queues it.
func (s *Scheduler) markReadyLocked(task *models.Task, now time.Time) {
	task.Status = models.TaskStatusReady
	s.queue.push(task, now)
	s.emit(Event{Type: EventTaskQueued, TaskID: task.ID, Message: task.Title})
}

// failTerminalLocked moves a task to terminal failure and propagates the
// failure to every transitive dependent in the same tick, so no dependent
// is left silently stuck.
func (s *Scheduler) failTerminalLocked(task *models.Task, reason string, now time.Time) {
	s.releaseWorkerLocked(task)
	s.queue.remove(task.ID)
	delete(s.excluded, task.ID)

	task.Status = models.TaskStatusFailed
	task.Error = reason
	task.CompletedAt = &now

	s.metrics.failed()
	s.agg.resolve(task.ID)
	s.emit(Event{Type: EventTaskFailed, TaskID: task.ID, Message: reason})
	debugLog("[scheduler] task %s failed terminally: %s", task.ID, reason)

	for _, depID := range s.graph.TransitiveDependents(task.ID) {
		dep := s.graph.Task(depID)
		if dep == nil || dep.Status.Terminal() {
			continue
		}
		s.queue.remove(depID)
		s.releaseWorkerLocked(dep)
		delete(s.excluded, depID)

		dep.Status = models.TaskStatusFailed
		dep.Error = fmt.Sprintf("%s: %s", ErrUpstreamDependencyFailed, task.ID)
		dep.CompletedAt = &now

		s.metrics.failed()
		s.metrics.cascaded()
		s.agg.resolve(depID)
		s.emit(Event{Type: EventTaskFailed, TaskID: depID, Err: ErrUpstreamDependencyFailed})
	}
}

// Cancel cancels the task and all of its transitive dependents. Dispatched
// tasks are marked cancel-requested: the worker is not assumed to stop, and
// its result is discarded when it arrives. Returns how many tasks changed
// state.
func (s *Scheduler) Cancel(taskID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := append([]string{taskID}, s.graph.TransitiveDependents(taskID)...)
	now := time.Now()
	cancelled := 0

	for _, id := range ids {
		task := s.graph.Task(id)
		if task == nil || task.Status.Terminal() {
			continue
		}
		switch task.Status {
		case models.TaskStatusDispatched:
			task.Status = models.TaskStatusCancelRequested
			// The core stops waiting on the task now; the worker slot is
			// freed when the discarded result arrives.
			s.agg.resolve(id)
			s.emit(Event{Type: EventTaskCancelled, TaskID: id, Message: "cancel requested"})
			cancelled++
		case models.TaskStatusCancelRequested:
			// already requested
		default:
			s.queue.remove(id)
			task.Status = models.TaskStatusCancelled
			task.CompletedAt = &now
			s.metrics.cancelled()
			s.agg.resolve(id)
			s.emit(Event{Type: EventTaskCancelled, TaskID: id})
			cancelled++
		}
	}
	return cancelled
}

// SettleRoot folds a composite outcome into the root task. Compare-and-set:
// only a still-pending root transitions, so a concurrent Cancel cannot race
// the settlement. Roots are never dispatched, so pending is the only
// non-terminal state they can hold.
func (s *Scheduler) SettleRoot(rootID string, result *models.CompositeResult) {
	s.mu.Lock()
	defer s.mu.Unlock()

	root := s.graph.Task(rootID)
	if root == nil || root.Status != models.TaskStatusPending {
		return
	}

	now := time.Now()
	switch {
	case result.AllSucceeded():
		root.Status = models.TaskStatusCompleted
	case result.Failed > 0:
		root.Status = models.TaskStatusFailed
		root.Error = "one or more subtasks failed"
	default:
		root.Status = models.TaskStatusCancelled
	}
	root.CompletedAt = &now
	s.agg.resolve(rootID)
}

// RequeueWorkerTasks pulls every in-flight task off a failed worker and
// requeues it as if it had failed once, consuming a retry and excluding the
// worker from the next attempt. Called by the health monitor on
// degraded-to-failed transitions.
func (s *Scheduler) RequeueWorkerTasks(workerID string) {
	s.requeueFromWorker(workerID, true)
}

// ReassignWorkerTasks moves a deregistering worker's in-flight tasks back to
// the queue without consuming a retry.
func (s *Scheduler) ReassignWorkerTasks(workerID string) {
	s.requeueFromWorker(workerID, false)
}

func (s *Scheduler) requeueFromWorker(workerID string, consumeRetry bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	reason := fmt.Sprintf("worker %s unavailable", workerID)

	for _, task := range s.graph.Tasks() {
		if task.AssignedWorker != workerID {
			continue
		}
		switch task.Status {
		case models.TaskStatusDispatched:
			s.releaseWorkerLocked(task)
			if consumeRetry {
				if task.RetryCount >= task.MaxRetries {
					s.failTerminalLocked(task, reason, now)
					continue
				}
				task.RetryCount++
			}
			task.Error = reason
			s.excluded[task.ID] = workerID
			task.Status = models.TaskStatusReady
			s.queue.push(task, now)
			s.metrics.retried()
			s.emit(Event{Type: EventTaskRetried, TaskID: task.ID, WorkerID: workerID, Message: reason})
		case models.TaskStatusCancelRequested:
			s.releaseWorkerLocked(task)
			task.Status = models.TaskStatusCancelled
			task.CompletedAt = &now
			s.metrics.cancelled()
			s.agg.resolve(task.ID)
			s.emit(Event{Type: EventTaskCancelled, TaskID: task.ID})
		}
	}
	s.triggerLocked()
}

// TasksAssignedTo returns snapshots of the tasks currently dispatched to a
// worker.
func (s *Scheduler) TasksAssignedTo(workerID string) []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	var assigned []*models.Task
	for _, task := range s.graph.Tasks() {
		if task.AssignedWorker == workerID && !task.Status.Terminal() {
			assigned = append(assigned, task.Clone())
		}
	}
	return assigned
}

// TaskSnapshot returns a clone of the task, or nil. Task fields are only
// ever mutated under the scheduler lock, so all reads go through here.
func (s *Scheduler) TaskSnapshot(taskID string) *models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := s.graph.Task(taskID)
	if task == nil {
		return nil
	}
	return task.Clone()
}

// TaskSnapshots returns clones of every task in the graph.
func (s *Scheduler) TaskSnapshots() []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	tasks := s.graph.Tasks()
	snapshots := make([]*models.Task, len(tasks))
	for i, task := range tasks {
		snapshots[i] = task.Clone()
	}
	return snapshots
}

// SubtaskSnapshots returns clones of a composite's subtasks in dependency
// order.
func (s *Scheduler) SubtaskSnapshots(rootID string) []*models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()

	subtasks := s.graph.Subtasks(rootID)
	snapshots := make([]*models.Task, len(subtasks))
	for i, task := range subtasks {
		snapshots[i] = task.Clone()
	}
	return snapshots
}

// QueueDepth returns the number of tasks waiting in the ready queue.
func (s *Scheduler) QueueDepth() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.queue.Len()
}

// releaseWorkerLocked frees the worker slot held by a task, if any.
func (s *Scheduler) releaseWorkerLocked(task *models.Task) {
	if task.AssignedWorker != "" {
		s.registry.DecrementActive(task.AssignedWorker)
		task.AssignedWorker = ""
	}
}

// triggerLocked wakes the run loop without blocking.
func (s *Scheduler) triggerLocked() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

func (s *Scheduler) emit(event Event) {
	if s.emitter != nil {
		s.emitter.Emit(event)
	}
}
