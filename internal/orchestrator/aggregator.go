package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/nexuslabs/conductor/internal/graph"
	"github.com/nexuslabs/conductor/pkg/models"
)

// Aggregator tracks per-task completion futures and assembles composite
// results for decomposed submissions. A future resolves when its task
// reaches a terminal state or has its cancellation requested; the outcome
// itself is read from the task at await time.
type Aggregator struct {
	graph *graph.TaskGraph

	mu      sync.Mutex
	futures map[string]chan struct{}
}

// NewAggregator creates an aggregator over the given graph.
func NewAggregator(g *graph.TaskGraph) *Aggregator {
	return &Aggregator{
		graph:   g,
		futures: make(map[string]chan struct{}),
	}
}

// future returns the settlement channel for a task, creating it on first use.
func (a *Aggregator) future(taskID string) chan struct{} {
	a.mu.Lock()
	defer a.mu.Unlock()

	ch, ok := a.futures[taskID]
	if !ok {
		ch = make(chan struct{})
		a.futures[taskID] = ch
	}
	return ch
}

// resolve settles a task's future. Safe to call more than once.
func (a *Aggregator) resolve(taskID string) {
	ch := a.future(taskID)

	a.mu.Lock()
	defer a.mu.Unlock()
	select {
	case <-ch:
	default:
		close(ch)
	}
}

// settled reports whether a task's future has resolved.
func (a *Aggregator) settled(taskID string) bool {
	select {
	case <-a.future(taskID):
		return true
	default:
		return false
	}
}

// AwaitCompletion blocks until the task settles, the timeout elapses, or the
// context is cancelled. A zero timeout waits indefinitely. On settlement the
// task's recorded outcome determines the return: nil for success,
// TaskFailedError for terminal failure, ErrTaskCancelled for cancellation.
func (a *Aggregator) AwaitCompletion(ctx context.Context, taskID string, timeout time.Duration) error {
	task := a.graph.Task(taskID)
	if task == nil {
		return ErrUnknownTask
	}

	var timeoutCh <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		timeoutCh = timer.C
	}

	select {
	case <-a.future(taskID):
	case <-timeoutCh:
		return ErrAwaitTimeout
	case <-ctx.Done():
		return ctx.Err()
	}

	return a.outcome(taskID)
}

// outcome translates a settled task's status into the await result.
func (a *Aggregator) outcome(taskID string) error {
	task := a.graph.Task(taskID)
	if task == nil {
		return ErrUnknownTask
	}
	switch task.Status {
	case models.TaskStatusCompleted:
		return nil
	case models.TaskStatusFailed:
		return &TaskFailedError{TaskID: taskID, Reason: task.Error}
	case models.TaskStatusCancelled, models.TaskStatusCancelRequested:
		return ErrTaskCancelled
	default:
		return nil
	}
}

// AwaitComposite waits until every subtask of a root settles, then collects
// the composite result. Wait semantics match AwaitCompletion.
func (a *Aggregator) AwaitComposite(ctx context.Context, rootID string, timeout time.Duration) (*models.CompositeResult, error) {
	subtasks := a.graph.Subtasks(rootID)
	if len(subtasks) == 0 {
		return nil, ErrUnknownTask
	}

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for _, sub := range subtasks {
		remaining := time.Duration(0)
		if !deadline.IsZero() {
			remaining = time.Until(deadline)
			if remaining <= 0 {
				return nil, ErrAwaitTimeout
			}
		}

		var timeoutCh <-chan time.Time
		if remaining > 0 {
			timer := time.NewTimer(remaining)
			timeoutCh = timer.C
			select {
			case <-a.future(sub.ID):
				timer.Stop()
			case <-timeoutCh:
				return nil, ErrAwaitTimeout
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
			continue
		}

		select {
		case <-a.future(sub.ID):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return a.CollectComposite(rootID)
}

// CollectComposite assembles the result of a decomposed submission from its
// subtasks' terminal states. Returns ErrCompositeIncomplete if any subtask
// has not settled yet.
func (a *Aggregator) CollectComposite(rootID string) (*models.CompositeResult, error) {
	subtasks := a.graph.Subtasks(rootID)
	if len(subtasks) == 0 {
		return nil, ErrUnknownTask
	}

	result := &models.CompositeResult{
		RootID:      rootID,
		CollectedAt: time.Now(),
	}
	if root := a.graph.Task(rootID); root != nil {
		result.Description = root.Description
	}

	for _, sub := range subtasks {
		if !a.settled(sub.ID) {
			return nil, ErrCompositeIncomplete
		}
		outcome := models.SubtaskOutcome{
			TaskID:  sub.ID,
			Title:   sub.Title,
			Status:  sub.Status,
			Result:  sub.Result,
			Error:   sub.Error,
			Retries: sub.RetryCount,
		}
		result.Subtasks = append(result.Subtasks, outcome)

		switch sub.Status {
		case models.TaskStatusCompleted:
			result.Succeeded++
		case models.TaskStatusFailed:
			result.Failed++
		case models.TaskStatusCancelled, models.TaskStatusCancelRequested:
			result.Cancelled++
		}
	}
	return result, nil
}

// forget drops the future for a task. Used when pruning settled roots.
func (a *Aggregator) forget(taskID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.futures, taskID)
}
