package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nexuslabs/conductor/internal/decompose"
	"github.com/nexuslabs/conductor/internal/graph"
	"github.com/nexuslabs/conductor/pkg/models"
)

// Core-level defaults.
const (
	// DefaultEventBuffer is the lifecycle event channel capacity.
	DefaultEventBuffer = 256
	// DefaultMaxRetries is the retry budget applied to produced subtasks.
	DefaultMaxRetries = 3
	// DefaultSnapshotInterval is how often state snapshots are persisted.
	DefaultSnapshotInterval = 10 * time.Second
)

// StateStore persists periodic snapshots of core state. Implemented by the
// sqlite-backed store in internal/state.
type StateStore interface {
	SaveSnapshot(tasks []*models.Task, workers []*models.Worker) error
	Close() error
}

// Core is the orchestration facade: it accepts composite task submissions,
// decomposes them into dependency-linked subtasks, schedules the subtasks
// onto registered workers, tracks worker health, and aggregates results.
//
// All methods are safe for concurrent use.
type Core struct {
	graph      *graph.TaskGraph
	registry   *Registry
	matcher    *Matcher
	decomposer *decompose.Decomposer
	agg        *Aggregator
	sched      *Scheduler
	health     *HealthMonitor

	emitter *EventEmitter
	metrics *Metrics
	logger  *DebugLogger
	breaker *BreakerSet

	store            StateStore
	snapshotInterval time.Duration

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewCore builds a fully wired core. The dispatch function delivers task
// assignments to workers and must not block on execution.
func NewCore(dispatch DispatchFunc, opts ...Option) *Core {
	cfg := defaultCoreConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	g := graph.New()
	reg := NewRegistry()
	matcher := NewMatcher(cfg.keywordTable)
	agg := NewAggregator(g)
	sched := NewScheduler(g, reg, agg, dispatch)
	health := NewHealthMonitor(reg, sched)
	emitter := NewEventEmitter(cfg.eventBuffer)

	c := &Core{
		graph:            g,
		registry:         reg,
		matcher:          matcher,
		decomposer:       decompose.New(matcher, cfg.defaultRetries),
		agg:              agg,
		sched:            sched,
		health:           health,
		emitter:          emitter,
		logger:           cfg.logger,
		store:            cfg.store,
		snapshotInterval: cfg.snapshotInterval,
	}

	if cfg.logger != nil {
		setPackageLogger(cfg.logger)
		g.SetDebugLog(cfg.logger.Log)
	}
	if cfg.metricsEnabled {
		c.metrics = NewMetrics(cfg.promRegisterer)
		sched.SetMetrics(c.metrics)
		health.SetMetrics(c.metrics)
	}
	if cfg.breakersEnabled {
		c.breaker = NewBreakerSet(func(workerID string) {
			debugLog("[core] breaker tripped for worker %s", workerID)
		})
		sched.SetBreakers(c.breaker)
	}

	sched.SetEmitter(emitter)
	sched.SetBackoff(cfg.backoff)
	sched.SetPollInterval(cfg.pollInterval)
	health.SetEmitter(emitter)
	health.SetThresholds(cfg.hbInterval, cfg.degradedAfter, cfg.failedAfter)

	return c
}

// Start launches the scheduler, health monitor, and snapshot loops. Idempotent.
func (c *Core) Start(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return
	}
	c.started = true

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(2)
	go func() {
		defer c.wg.Done()
		c.sched.Run(runCtx)
	}()
	go func() {
		defer c.wg.Done()
		c.health.Run(runCtx)
	}()

	if c.store != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			c.snapshotLoop(runCtx)
		}()
	}
	debugLog("[core] started")
}

// Stop halts the background loops, writes a final snapshot, and closes the
// event channel. Idempotent.
func (c *Core) Stop() {
	c.mu.Lock()
	if !c.started {
		c.mu.Unlock()
		return
	}
	c.started = false
	cancel := c.cancel
	c.mu.Unlock()

	cancel()
	c.wg.Wait()

	if c.store != nil {
		if err := c.persistSnapshot(); err != nil {
			debugLog("[core] final snapshot failed: %v", err)
		}
	}
	c.emitter.Close()
	debugLog("[core] stopped")
}

// snapshotLoop persists state on every snapshot interval.
func (c *Core) snapshotLoop(ctx context.Context) {
	ticker := time.NewTicker(c.snapshotInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.persistSnapshot(); err != nil {
				debugLog("[core] snapshot failed: %v", err)
			}
		}
	}
}

func (c *Core) persistSnapshot() error {
	return c.store.SaveSnapshot(c.sched.TaskSnapshots(), c.registry.All())
}

// SubmitOption adjusts a single submission.
type SubmitOption func(*submitConfig)

type submitConfig struct {
	deadline   *time.Time
	maxRetries *int
}

// WithDeadline sets a dispatch deadline on every produced subtask. A subtask
// whose deadline passes before dispatch fails terminally without consuming a
// retry.
func WithDeadline(t time.Time) SubmitOption {
	return func(c *submitConfig) { c.deadline = &t }
}

// WithMaxRetries overrides the retry budget for this submission's subtasks.
func WithMaxRetries(n int) SubmitOption {
	return func(c *submitConfig) {
		if n >= 0 {
			c.maxRetries = &n
		}
	}
}

// Submit accepts a composite task description, decomposes it into
// dependency-linked subtasks, and enqueues the ones with no unmet
// dependencies. Returns the root task ID used to await and collect the
// composite result. Priority is clamped to the valid range.
func (c *Core) Submit(description string, priority models.Priority, opts ...SubmitOption) (string, error) {
	var sc submitConfig
	for _, opt := range opts {
		opt(&sc)
	}

	rootID := uuid.New().String()
	subtasks, err := c.decomposer.Decompose(rootID, description, priority)
	if err != nil {
		return "", err
	}

	for _, sub := range subtasks {
		if sc.deadline != nil {
			d := *sc.deadline
			sub.Deadline = &d
		}
		if sc.maxRetries != nil {
			sub.MaxRetries = *sc.maxRetries
		}
	}

	root := &models.Task{
		ID:          rootID,
		Title:       "composite: " + decompose.RuleName(description),
		Description: description,
		Priority:    priority.Clamp(),
		Status:      models.TaskStatusPending,
		CreatedAt:   time.Now(),
	}

	// Cycle or unknown-dependency errors surface here, at submission time.
	if err := c.graph.Build(append([]*models.Task{root}, subtasks...)); err != nil {
		return "", err
	}

	for _, sub := range subtasks {
		c.sched.Enqueue(sub)
	}

	c.emitter.Emit(Event{Type: EventTaskSubmitted, TaskID: rootID, Message: description})
	debugLog("[core] submitted %s as %d subtasks (rule %s)", rootID, len(subtasks), decompose.RuleName(description))
	return rootID, nil
}

// RegisterWorker adds a worker to the pool and returns its snapshot.
func (c *Core) RegisterWorker(id, name string, capabilities []models.CapabilityTag, maxConcurrency int) (*models.Worker, error) {
	w, err := c.registry.Register(id, name, capabilities, maxConcurrency)
	if err != nil {
		return nil, err
	}
	c.metrics.setWorkerHealth(id, w.HealthScore)
	c.emitter.Emit(Event{Type: EventWorkerRegistered, WorkerID: id, Message: name})
	debugLog("[core] worker %s registered with capabilities %v", id, w.Capabilities)
	return w, nil
}

// DeregisterWorker removes a worker from the pool. In-flight tasks are moved
// back to the queue without consuming a retry, provided another non-failed
// worker exists to take them; otherwise ErrWorkerBusy is returned and the
// worker stays registered.
func (c *Core) DeregisterWorker(id string) error {
	if c.registry.Snapshot(id) == nil {
		return ErrUnknownWorker
	}

	if assigned := c.sched.TasksAssignedTo(id); len(assigned) > 0 {
		if c.registry.AvailableCount() < 2 {
			return ErrWorkerBusy
		}
		c.sched.ReassignWorkerTasks(id)
	}

	if err := c.registry.Deregister(id); err != nil {
		return err
	}
	c.health.Forget(id)
	if c.breaker != nil {
		c.breaker.Forget(id)
	}
	c.emitter.Emit(Event{Type: EventWorkerDeregistered, WorkerID: id})
	debugLog("[core] worker %s deregistered", id)
	return nil
}

// ReportHeartbeat records a worker heartbeat, recovering it if it was
// degraded or failed.
func (c *Core) ReportHeartbeat(workerID string) error {
	return c.health.ReportHeartbeat(workerID, time.Now())
}

// ReportResult records a worker's outcome for a dispatched task. Duplicate
// reports are no-ops.
func (c *Core) ReportResult(taskID string, success bool, payload any) error {
	return c.sched.ReportResult(taskID, success, payload)
}

// GetTaskStatus returns a snapshot of the task, or ErrUnknownTask.
func (c *Core) GetTaskStatus(taskID string) (*models.Task, error) {
	task := c.sched.TaskSnapshot(taskID)
	if task == nil {
		return nil, ErrUnknownTask
	}
	return task, nil
}

// GetWorkerStatus returns a snapshot of the worker, or ErrUnknownWorker.
func (c *Core) GetWorkerStatus(workerID string) (*models.Worker, error) {
	w := c.registry.Snapshot(workerID)
	if w == nil {
		return nil, ErrUnknownWorker
	}
	return w, nil
}

// Workers returns snapshots of every registered worker, sorted by ID.
func (c *Core) Workers() []*models.Worker {
	return c.registry.All()
}

// Subtasks returns snapshots of a composite's subtasks in dependency order.
func (c *Core) Subtasks(rootID string) []*models.Task {
	return c.sched.SubtaskSnapshots(rootID)
}

// Cancel cancels a task and all of its transitive dependents. Cancelling a
// composite root cancels every subtask. Dispatched subtasks have their
// results discarded on arrival; the core stops waiting on them immediately.
func (c *Core) Cancel(taskID string) error {
	task := c.graph.Task(taskID)
	if task == nil {
		return ErrUnknownTask
	}

	subtasks := c.graph.Subtasks(taskID)
	if len(subtasks) == 0 {
		c.sched.Cancel(taskID)
		return nil
	}

	// Composite root: cancel every subtask, then settle the root itself.
	for _, sub := range subtasks {
		c.sched.Cancel(sub.ID)
	}
	c.sched.Cancel(taskID)
	return nil
}

// AwaitCompletion blocks until the task settles or the timeout elapses. A
// zero timeout waits indefinitely.
func (c *Core) AwaitCompletion(ctx context.Context, taskID string, timeout time.Duration) error {
	return c.agg.AwaitCompletion(ctx, taskID, timeout)
}

// AwaitComposite waits for every subtask of a composite to settle, then
// returns the merged result. Partial success is representable in the result.
func (c *Core) AwaitComposite(ctx context.Context, rootID string, timeout time.Duration) (*models.CompositeResult, error) {
	result, err := c.agg.AwaitComposite(ctx, rootID, timeout)
	if err != nil {
		return nil, err
	}
	c.finalizeRoot(rootID, result)
	return result, nil
}

// CollectComposite assembles the composite result if every subtask already
// settled, without waiting.
func (c *Core) CollectComposite(rootID string) (*models.CompositeResult, error) {
	result, err := c.agg.CollectComposite(rootID)
	if err != nil {
		return nil, err
	}
	c.finalizeRoot(rootID, result)
	return result, nil
}

// finalizeRoot folds the composite outcome into the root task's status. The
// transition runs under the scheduler lock so it cannot race a concurrent
// Cancel of the root.
func (c *Core) finalizeRoot(rootID string, result *models.CompositeResult) {
	c.sched.SettleRoot(rootID, result)
}

// ReloadKeywords swaps the capability inference table at runtime.
func (c *Core) ReloadKeywords(table KeywordTable) {
	c.matcher.Reload(table)
	debugLog("[core] keyword table reloaded")
}

// Events returns the lifecycle event channel. Events are dropped, not
// blocked on, if the subscriber falls behind.
func (c *Core) Events() <-chan Event {
	return c.emitter.Events()
}

// QueueDepth returns the number of tasks waiting for dispatch.
func (c *Core) QueueDepth() int {
	return c.sched.QueueDepth()
}

// Tick runs one synchronous dispatch pass. Exposed for deterministic tests
// and for embedders driving the core manually.
func (c *Core) Tick() int {
	return c.sched.Tick()
}
