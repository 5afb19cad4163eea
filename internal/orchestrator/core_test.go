package orchestrator

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nexuslabs/conductor/pkg/models"
)

// autoWorker acks every delivery so the test can drive outcomes explicitly.
type manualDispatch struct {
	mu       sync.Mutex
	assigned []dispatchRecord
}

func (m *manualDispatch) fn(task *models.Task, worker *models.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigned = append(m.assigned, dispatchRecord{taskID: task.ID, workerID: worker.ID})
	return nil
}

func (m *manualDispatch) drain() []dispatchRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.assigned
	m.assigned = nil
	return out
}

// runToCompletion ticks the core and acks every dispatch until the composite
// settles, failing the test if the pipeline stalls.
func runToCompletion(t *testing.T, c *Core, d *manualDispatch, rootID string) *models.CompositeResult {
	t.Helper()
	for i := 0; i < 400; i++ {
		c.Tick()
		for _, rec := range d.drain() {
			if err := c.ReportResult(rec.taskID, true, "done by "+rec.workerID); err != nil {
				t.Fatalf("ReportResult(%s): %v", rec.taskID, err)
			}
		}
		if result, err := c.CollectComposite(rootID); err == nil {
			return result
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("pipeline did not drain")
	return nil
}

func TestCoreSubmitDecomposes(t *testing.T) {
	d := &manualDispatch{}
	c := NewCore(d.fn)

	rootID, err := c.Submit("analyze and optimize the query planner", models.PriorityHigh)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	subtasks := c.Subtasks(rootID)
	if len(subtasks) != 5 {
		t.Fatalf("subtasks = %d, want 5", len(subtasks))
	}
	for _, sub := range subtasks {
		if sub.ParentID != rootID {
			t.Errorf("subtask %s parent = %s, want %s", sub.ID, sub.ParentID, rootID)
		}
		if sub.Priority != models.PriorityHigh {
			t.Errorf("subtask %s priority = %d, want %d", sub.Title, sub.Priority, models.PriorityHigh)
		}
		if len(sub.RequiredCapabilities) == 0 {
			t.Errorf("subtask %s has no required capabilities", sub.Title)
		}
	}
}

func TestCoreSubmitEmptyDescription(t *testing.T) {
	c := NewCore((&manualDispatch{}).fn)
	if _, err := c.Submit("", models.PriorityNormal); err == nil {
		t.Error("Submit with empty description succeeded")
	}
}

func TestCoreEndToEndComposite(t *testing.T) {
	d := &manualDispatch{}
	c := NewCore(d.fn)

	c.RegisterWorker("w1", "generalist", nil, 4)
	c.RegisterWorker("w2", "analyst", []models.CapabilityTag{
		models.CapabilityCodeAnalysis, models.CapabilityOptimization,
	}, 4)

	rootID, err := c.Submit("optimize the slow import pipeline", models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	result := runToCompletion(t, c, d, rootID)
	if !result.AllSucceeded() {
		t.Fatalf("composite not fully successful: %+v", result)
	}

	root, err := c.GetTaskStatus(rootID)
	if err != nil {
		t.Fatalf("GetTaskStatus: %v", err)
	}
	if root.Status != models.TaskStatusCompleted {
		t.Errorf("root status = %s, want completed", root.Status)
	}
}

func TestCoreAwaitCompositeWithDeadlinePassed(t *testing.T) {
	d := &manualDispatch{}
	c := NewCore(d.fn)
	c.RegisterWorker("w1", "", nil, 4)

	rootID, err := c.Submit("document the release process", models.PriorityNormal,
		WithDeadline(time.Now().Add(-time.Minute)))
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Every subtask's deadline already passed, so the first tick fails the
	// first ready subtask and cascades to the rest.
	c.Tick()

	result, err := c.CollectComposite(rootID)
	if err != nil {
		t.Fatalf("CollectComposite: %v", err)
	}
	if result.Failed == 0 {
		t.Errorf("no failed subtasks: %+v", result)
	}
	if result.Succeeded != 0 {
		t.Errorf("succeeded = %d, want 0", result.Succeeded)
	}
}

func TestCoreCancelComposite(t *testing.T) {
	d := &manualDispatch{}
	c := NewCore(d.fn)

	rootID, err := c.Submit("research storage backends", models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	if err := c.Cancel(rootID); err != nil {
		t.Fatalf("Cancel: %v", err)
	}

	result, err := c.CollectComposite(rootID)
	if err != nil {
		t.Fatalf("CollectComposite: %v", err)
	}
	if result.Cancelled != len(result.Subtasks) {
		t.Errorf("cancelled = %d, want %d", result.Cancelled, len(result.Subtasks))
	}

	root, _ := c.GetTaskStatus(rootID)
	if root.Status != models.TaskStatusCancelled {
		t.Errorf("root status = %s, want cancelled", root.Status)
	}
}

func TestCoreConcurrentSettleAndCancelRoot(t *testing.T) {
	d := &manualDispatch{}
	c := NewCore(d.fn)
	c.RegisterWorker("w1", "", nil, 8)

	rootID, err := c.Submit("summarize the incident reports", models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Drive every subtask to completion without collecting, so the root is
	// still pending when the race starts.
	total := len(c.Subtasks(rootID))
	for i := 0; ; i++ {
		c.Tick()
		for _, rec := range d.drain() {
			if err := c.ReportResult(rec.taskID, true, nil); err != nil {
				t.Fatalf("ReportResult(%s): %v", rec.taskID, err)
			}
		}
		done := 0
		for _, sub := range c.Subtasks(rootID) {
			if sub.Status == models.TaskStatusCompleted {
				done++
			}
		}
		if done == total {
			break
		}
		if i == 400 {
			t.Fatal("pipeline did not drain")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// Settlement and cancellation race for the root's one pending-to-terminal
	// transition; exactly one side must win and the other must be a no-op.
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		if _, err := c.CollectComposite(rootID); err != nil {
			t.Errorf("CollectComposite: %v", err)
		}
	}()
	go func() {
		defer wg.Done()
		if err := c.Cancel(rootID); err != nil {
			t.Errorf("Cancel: %v", err)
		}
	}()
	wg.Wait()

	root, err := c.GetTaskStatus(rootID)
	if err != nil {
		t.Fatalf("GetTaskStatus: %v", err)
	}
	if root.Status != models.TaskStatusCompleted && root.Status != models.TaskStatusCancelled {
		t.Errorf("root status = %s, want completed or cancelled", root.Status)
	}
	if root.CompletedAt == nil {
		t.Error("root has no completion time")
	}
}

func TestCoreCancelUnknownTask(t *testing.T) {
	c := NewCore((&manualDispatch{}).fn)
	if err := c.Cancel("ghost"); !errors.Is(err, ErrUnknownTask) {
		t.Errorf("err = %v, want ErrUnknownTask", err)
	}
}

func TestCoreDeregisterBusyWorker(t *testing.T) {
	d := &manualDispatch{}
	c := NewCore(d.fn)
	c.RegisterWorker("w1", "", nil, 4)

	if _, err := c.Submit("test the migration tooling", models.PriorityNormal); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	c.Tick()
	deadline := time.Now().Add(2 * time.Second)
	for len(d.drain()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("no dispatch happened")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// The only worker holds in-flight tasks and nothing can take them over.
	if err := c.DeregisterWorker("w1"); !errors.Is(err, ErrWorkerBusy) {
		t.Fatalf("err = %v, want ErrWorkerBusy", err)
	}

	// With a takeover target, deregistration reassigns and succeeds.
	c.RegisterWorker("w2", "", nil, 4)
	if err := c.DeregisterWorker("w1"); err != nil {
		t.Fatalf("DeregisterWorker with target: %v", err)
	}
	if _, err := c.GetWorkerStatus("w1"); !errors.Is(err, ErrUnknownWorker) {
		t.Errorf("w1 still known after deregistration")
	}
}

func TestCoreHeartbeatRecoversWorker(t *testing.T) {
	c := NewCore((&manualDispatch{}).fn)
	c.RegisterWorker("w1", "", nil, 1)

	c.health.CheckOnce(time.Now().Add(time.Hour))
	if w, _ := c.GetWorkerStatus("w1"); w.Status != models.WorkerStatusFailed {
		t.Fatalf("status = %s, want failed", w.Status)
	}

	if err := c.ReportHeartbeat("w1"); err != nil {
		t.Fatalf("ReportHeartbeat: %v", err)
	}
	if w, _ := c.GetWorkerStatus("w1"); w.Status != models.WorkerStatusHealthy {
		t.Errorf("status = %s, want healthy", w.Status)
	}
}

func TestCoreEventsObserveLifecycle(t *testing.T) {
	d := &manualDispatch{}
	c := NewCore(d.fn, WithEventBuffer(64))
	c.RegisterWorker("w1", "", nil, 4)

	rootID, err := c.Submit("fix the startup crash", models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	runToCompletion(t, c, d, rootID)

	seen := map[EventType]bool{}
	for {
		select {
		case ev := <-c.Events():
			seen[ev.Type] = true
		default:
			for _, want := range []EventType{
				EventWorkerRegistered, EventTaskSubmitted, EventTaskQueued,
				EventTaskDispatched, EventTaskCompleted,
			} {
				if !seen[want] {
					t.Errorf("missing %s event", want)
				}
			}
			return
		}
	}
}

func TestCoreDebugPriorityBump(t *testing.T) {
	c := NewCore((&manualDispatch{}).fn)

	rootID, err := c.Submit("debug the crash in the ingest worker", models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	subtasks := c.Subtasks(rootID)
	if len(subtasks) == 0 {
		t.Fatal("no subtasks")
	}
	for _, sub := range subtasks {
		if sub.Priority <= models.PriorityNormal {
			t.Errorf("subtask %s priority = %d, want above normal", sub.Title, sub.Priority)
		}
	}
}

func TestCoreStartStop(t *testing.T) {
	d := &manualDispatch{}
	c := NewCore(d.fn, WithPollInterval(10*time.Millisecond))
	c.RegisterWorker("w1", "", nil, 8)

	c.Start(context.Background())
	defer c.Stop()

	rootID, err := c.Submit("verify and validate the data export", models.PriorityNormal)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	// Ack deliveries in the background while the run loop dispatches.
	done := make(chan struct{})
	go func() {
		defer close(done)
		deadline := time.Now().Add(3 * time.Second)
		for time.Now().Before(deadline) {
			for _, rec := range d.drain() {
				c.ReportResult(rec.taskID, true, nil)
			}
			if result, err := c.CollectComposite(rootID); err == nil && result.AllSucceeded() {
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	result, err := c.AwaitComposite(context.Background(), rootID, 5*time.Second)
	if err != nil {
		t.Fatalf("AwaitComposite: %v", err)
	}
	if !result.AllSucceeded() {
		t.Errorf("composite not fully successful: %+v", result)
	}
	<-done
}
