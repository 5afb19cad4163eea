package models

import "testing"

func TestWorkerStatusValid(t *testing.T) {
	for _, s := range []WorkerStatus{WorkerStatusHealthy, WorkerStatusDegraded, WorkerStatusFailed} {
		if !s.Valid() {
			t.Errorf("expected %q to be valid", s)
		}
	}
	if WorkerStatus("offline").Valid() {
		t.Error("expected unknown status to be invalid")
	}
}

func TestWorkerLoad(t *testing.T) {
	tests := []struct {
		name   string
		active int
		max    int
		want   float64
	}{
		{"idle", 0, 4, 0},
		{"half", 2, 4, 0.5},
		{"full", 4, 4, 1},
		{"zero concurrency treated as full", 0, 0, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := &Worker{ActiveTasks: tt.active, MaxConcurrency: tt.max}
			if got := w.Load(); got != tt.want {
				t.Errorf("Load() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWorkerHasSpareConcurrency(t *testing.T) {
	w := &Worker{ActiveTasks: 1, MaxConcurrency: 1}
	if w.HasSpareConcurrency() {
		t.Error("expected no spare concurrency at cap")
	}
	w.ActiveTasks = 0
	if !w.HasSpareConcurrency() {
		t.Error("expected spare concurrency below cap")
	}
}

func TestCapabilityOverlap(t *testing.T) {
	required := []CapabilityTag{CapabilityDebugging, CapabilityTesting}
	have := []CapabilityTag{CapabilityDebugging, CapabilityGeneral}

	if got := CapabilityOverlap(required, have); got != 1 {
		t.Errorf("expected overlap 1, got %d", got)
	}
	if got := CapabilityOverlap(required, nil); got != 0 {
		t.Errorf("expected overlap 0 with no capabilities, got %d", got)
	}
	if got := CapabilityOverlap(required, required); got != 2 {
		t.Errorf("expected overlap 2, got %d", got)
	}
}

func TestCapabilityTagValid(t *testing.T) {
	for _, c := range AllCapabilities {
		if !c.Valid() {
			t.Errorf("expected %q to be valid", c)
		}
	}
	if CapabilityTag("quantum").Valid() {
		t.Error("expected unknown tag to be invalid")
	}
}
