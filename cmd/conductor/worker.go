package main

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nexuslabs/conductor/internal/orchestrator"
	"github.com/nexuslabs/conductor/pkg/models"
)

// workerProfile describes one simulated local worker.
type workerProfile struct {
	name         string
	capabilities []models.CapabilityTag
}

// localProfiles rotate across the pool so every capability has coverage.
var localProfiles = []workerProfile{
	{name: "generalist", capabilities: []models.CapabilityTag{models.CapabilityGeneral}},
	{name: "analyst", capabilities: []models.CapabilityTag{
		models.CapabilityCodeAnalysis, models.CapabilityOptimization, models.CapabilityGeneral,
	}},
	{name: "debugger", capabilities: []models.CapabilityTag{
		models.CapabilityDebugging, models.CapabilityTesting, models.CapabilityGeneral,
	}},
	{name: "librarian", capabilities: []models.CapabilityTag{
		models.CapabilityDocumentation, models.CapabilityResearch,
		models.CapabilityFileOperations, models.CapabilityGeneral,
	}},
}

// localWorker simulates an in-process task executor fed by the core's
// dispatch function.
type localWorker struct {
	id           string
	name         string
	capabilities []models.CapabilityTag
	tasks        chan *models.Task
}

// workerPool runs a set of simulated workers against a core. It stands in
// for out-of-process executors: dispatch lands on a per-worker channel and
// results flow back through ReportResult.
type workerPool struct {
	core    *orchestrator.Core
	workers map[string]*localWorker
	latency time.Duration
}

// newWorkerPool creates n local workers with rotating capability profiles.
// The pool's dispatch method must be handed to the core before attach.
func newWorkerPool(n int, latency time.Duration) *workerPool {
	if n < 1 {
		n = 1
	}
	pool := &workerPool{
		workers: make(map[string]*localWorker, n),
		latency: latency,
	}
	for i := 0; i < n; i++ {
		profile := localProfiles[i%len(localProfiles)]
		w := &localWorker{
			id:           fmt.Sprintf("local-%d", i+1),
			name:         profile.name,
			capabilities: profile.capabilities,
			tasks:        make(chan *models.Task, 16),
		}
		pool.workers[w.id] = w
	}
	return pool
}

// dispatch is the core's DispatchFunc: it queues the task on the target
// worker's channel without blocking on execution.
func (p *workerPool) dispatch(task *models.Task, worker *models.Worker) error {
	w, ok := p.workers[worker.ID]
	if !ok {
		return fmt.Errorf("unknown local worker %s", worker.ID)
	}
	select {
	case w.tasks <- task:
		return nil
	default:
		return fmt.Errorf("worker %s inbox full", worker.ID)
	}
}

// attach registers every worker with the core.
func (p *workerPool) attach(core *orchestrator.Core) error {
	p.core = core
	for _, w := range p.workers {
		if _, err := core.RegisterWorker(w.id, w.name, w.capabilities, 2); err != nil {
			return fmt.Errorf("register %s: %w", w.id, err)
		}
	}
	return nil
}

// run executes workers and their heartbeats until the context is cancelled.
func (p *workerPool) run(ctx context.Context, heartbeatEvery time.Duration) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, w := range p.workers {
		w := w
		g.Go(func() error {
			return p.runWorker(ctx, w)
		})
	}
	g.Go(func() error {
		return p.runHeartbeats(ctx, heartbeatEvery)
	})

	return g.Wait()
}

// runWorker consumes the worker's inbox and reports simulated results.
func (p *workerPool) runWorker(ctx context.Context, w *localWorker) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case task := <-w.tasks:
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.latency):
			}
			result := fmt.Sprintf("%s handled by %s", task.Title, w.name)
			if err := p.core.ReportResult(task.ID, true, result); err != nil {
				return fmt.Errorf("report result for %s: %w", task.ID, err)
			}
		}
	}
}

// runHeartbeats keeps every worker healthy while the pool runs.
func (p *workerPool) runHeartbeats(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for id := range p.workers {
				if err := p.core.ReportHeartbeat(id); err != nil {
					return fmt.Errorf("heartbeat %s: %w", id, err)
				}
			}
		}
	}
}
