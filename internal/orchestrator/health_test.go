package orchestrator

import (
	"errors"
	"testing"
	"time"

	"github.com/nexuslabs/conductor/pkg/models"
)

func newHealthFixture(t *testing.T) (*HealthMonitor, *Registry, *schedFixture) {
	t.Helper()
	f := newSchedFixture(t)
	h := NewHealthMonitor(f.registry, f.sched)
	h.SetThresholds(time.Second, 2, 4)
	return h, f.registry, f
}

func TestHealthMonitorDegradesAndFails(t *testing.T) {
	h, reg, _ := newHealthFixture(t)
	reg.Register("w1", "", nil, 1)
	start := reg.Snapshot("w1").LastHeartbeat

	tests := []struct {
		name       string
		elapsed    time.Duration
		wantStatus models.WorkerStatus
		wantScore  float64
	}{
		{"fresh", 500 * time.Millisecond, models.WorkerStatusHealthy, 1.0},
		{"one missed", 1500 * time.Millisecond, models.WorkerStatusHealthy, 1.0},
		{"two missed degrades", 2500 * time.Millisecond, models.WorkerStatusDegraded, 0.5},
		{"three missed stays degraded", 3500 * time.Millisecond, models.WorkerStatusDegraded, 0.25},
		{"four missed fails", 4500 * time.Millisecond, models.WorkerStatusFailed, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.CheckOnce(start.Add(tt.elapsed))
			w := reg.Snapshot("w1")
			if w.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", w.Status, tt.wantStatus)
			}
			if w.HealthScore != tt.wantScore {
				t.Errorf("score = %v, want %v", w.HealthScore, tt.wantScore)
			}
		})
	}
}

func TestHealthMonitorFailureRequeuesTasks(t *testing.T) {
	h, reg, f := newHealthFixture(t)
	reg.Register("w1", "", nil, 1)
	start := reg.Snapshot("w1").LastHeartbeat

	f.addTask(t, simpleTask("t1", models.PriorityNormal))
	f.sched.Tick()
	f.dispatch.wait(t)

	h.CheckOnce(start.Add(10 * time.Second))

	if w := reg.Snapshot("w1"); w.Status != models.WorkerStatusFailed {
		t.Fatalf("worker status = %s, want failed", w.Status)
	}
	got := f.graph.Task("t1")
	if got.Status != models.TaskStatusReady {
		t.Errorf("task status = %s, want ready", got.Status)
	}
	if got.RetryCount != 1 {
		t.Errorf("retry count = %d, want 1 (health failure consumes a retry)", got.RetryCount)
	}
}

func TestHealthMonitorRecoveryOnlyViaHeartbeat(t *testing.T) {
	h, reg, _ := newHealthFixture(t)
	reg.Register("w1", "", nil, 1)
	start := reg.Snapshot("w1").LastHeartbeat

	h.CheckOnce(start.Add(10 * time.Second))
	if w := reg.Snapshot("w1"); w.Status != models.WorkerStatusFailed {
		t.Fatalf("status = %s, want failed", w.Status)
	}

	// More checks never promote the worker back on their own.
	h.CheckOnce(start.Add(11 * time.Second))
	if w := reg.Snapshot("w1"); w.Status != models.WorkerStatusFailed {
		t.Fatalf("status after re-check = %s, want failed", w.Status)
	}

	if err := h.ReportHeartbeat("w1", start.Add(12*time.Second)); err != nil {
		t.Fatalf("ReportHeartbeat: %v", err)
	}
	w := reg.Snapshot("w1")
	if w.Status != models.WorkerStatusHealthy {
		t.Errorf("status after heartbeat = %s, want healthy", w.Status)
	}
	if w.HealthScore != 1.0 {
		t.Errorf("score after heartbeat = %v, want 1.0", w.HealthScore)
	}
}

func TestHealthMonitorHeartbeatUnknownWorker(t *testing.T) {
	h, _, _ := newHealthFixture(t)
	if err := h.ReportHeartbeat("ghost", time.Now()); !errors.Is(err, ErrUnknownWorker) {
		t.Errorf("err = %v, want ErrUnknownWorker", err)
	}
}

func TestHealthMonitorEmitsTransitions(t *testing.T) {
	f := newSchedFixture(t)
	h := NewHealthMonitor(f.registry, f.sched)
	h.SetThresholds(time.Second, 2, 4)
	emitter := NewEventEmitter(16)
	h.SetEmitter(emitter)

	f.registry.Register("w1", "", nil, 1)
	start := f.registry.Snapshot("w1").LastHeartbeat

	h.CheckOnce(start.Add(2500 * time.Millisecond))
	h.CheckOnce(start.Add(4500 * time.Millisecond))
	h.ReportHeartbeat("w1", start.Add(5*time.Second))

	want := []EventType{EventWorkerDegraded, EventWorkerFailed, EventWorkerRecovered}
	for _, wantType := range want {
		select {
		case ev := <-emitter.Events():
			if ev.Type != wantType {
				t.Fatalf("event = %s, want %s", ev.Type, wantType)
			}
			if ev.WorkerID != "w1" {
				t.Errorf("event worker = %s, want w1", ev.WorkerID)
			}
		default:
			t.Fatalf("missing %s event", wantType)
		}
	}
}

func TestHealthMonitorDegradedWorkerStillCandidate(t *testing.T) {
	h, reg, _ := newHealthFixture(t)
	reg.Register("w1", "", []models.CapabilityTag{models.CapabilityTesting}, 1)
	start := reg.Snapshot("w1").LastHeartbeat

	h.CheckOnce(start.Add(2500 * time.Millisecond))
	if w := reg.Snapshot("w1"); w.Status != models.WorkerStatusDegraded {
		t.Fatalf("status = %s, want degraded", w.Status)
	}

	// Degraded workers keep taking matching work, just at a lower score.
	got := reg.Candidates([]models.CapabilityTag{models.CapabilityTesting}, nil)
	if len(got) != 1 || got[0].ID != "w1" {
		t.Errorf("candidates = %v, want [w1]", ids(got))
	}
}
