// Package graph provides the task dependency graph used by the scheduler.
package graph

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nexuslabs/conductor/pkg/models"
)

// ErrCycleDetected indicates a circular dependency was found in the task graph.
var ErrCycleDetected = errors.New("circular dependency detected")

// TaskGraph is a directed acyclic graph over task IDs. An edge A -> B means
// B depends on A's completion. Acyclicity is a hard invariant: both Build
// and AddEdge reject any edge that would close a cycle.
type TaskGraph struct {
	mu sync.RWMutex
	// nodes maps task ID to the task itself (arena-style flat map).
	nodes map[string]*models.Task
	// edges maps task ID to the IDs of tasks it depends on.
	edges map[string][]string
	// completed tracks tasks that reached terminal success.
	completed map[string]bool
	// debugLog is an optional logging function.
	debugLog func(format string, args ...any)
}

// New creates an empty task graph.
func New() *TaskGraph {
	return &TaskGraph{
		nodes:     make(map[string]*models.Task),
		edges:     make(map[string][]string),
		completed: make(map[string]bool),
		debugLog:  func(format string, args ...any) {},
	}
}

// SetDebugLog sets the debug logging function.
func (g *TaskGraph) SetDebugLog(fn func(format string, args ...any)) {
	if fn != nil {
		g.debugLog = fn
	}
}

// Build adds a batch of tasks and their DependsOn edges to the graph.
// Returns an error if a cycle is detected or a dependency references an
// unknown task. On error the graph is left unchanged.
func (g *TaskGraph) Build(tasks []*models.Task) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	// Stage the additions so a rejected batch leaves no partial state.
	staged := make(map[string]*models.Task, len(tasks))
	for _, task := range tasks {
		if _, exists := g.nodes[task.ID]; exists {
			return fmt.Errorf("task %s already in graph", task.ID)
		}
		staged[task.ID] = task
	}

	stagedEdges := make(map[string][]string, len(tasks))
	for _, task := range tasks {
		for _, depID := range task.DependsOn {
			if _, ok := staged[depID]; !ok {
				if _, ok := g.nodes[depID]; !ok {
					return fmt.Errorf("task %s depends on unknown task %s", task.ID, depID)
				}
			}
			stagedEdges[task.ID] = append(stagedEdges[task.ID], depID)
		}
	}

	for id, task := range staged {
		g.nodes[id] = task
		g.edges[id] = stagedEdges[id]
	}

	if g.hasCycleLocked() {
		for id := range staged {
			delete(g.nodes, id)
			delete(g.edges, id)
		}
		return ErrCycleDetected
	}

	g.debugLog("[graph] built %d tasks, total %d nodes", len(tasks), len(g.nodes))
	return nil
}

// AddTask registers a single task with no edges beyond its DependsOn field.
func (g *TaskGraph) AddTask(task *models.Task) error {
	return g.Build([]*models.Task{task})
}

// AddEdge records that "to" depends on "from". The edge is checked with a
// DFS back-edge scan before being committed; closing a cycle returns
// ErrCycleDetected and leaves the graph unchanged.
func (g *TaskGraph) AddEdge(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[from]; !ok {
		return fmt.Errorf("unknown task %s", from)
	}
	if _, ok := g.nodes[to]; !ok {
		return fmt.Errorf("unknown task %s", to)
	}
	for _, depID := range g.edges[to] {
		if depID == from {
			return nil // edge already present
		}
	}

	g.edges[to] = append(g.edges[to], from)
	if g.hasCycleLocked() {
		deps := g.edges[to]
		g.edges[to] = deps[:len(deps)-1]
		return ErrCycleDetected
	}

	task := g.nodes[to]
	task.DependsOn = append(task.DependsOn, from)
	return nil
}

// HasCycle returns true if the graph contains a circular dependency.
// Uses depth-first search with coloring to detect back edges.
func (g *TaskGraph) HasCycle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.hasCycleLocked()
}

// hasCycleLocked assumes the lock is held.
// Color states: 0 = white (unvisited), 1 = gray (in progress), 2 = black (done).
func (g *TaskGraph) hasCycleLocked() bool {
	colors := make(map[string]int, len(g.nodes))

	var visit func(id string) bool
	visit = func(id string) bool {
		colors[id] = 1
		for _, depID := range g.edges[id] {
			switch colors[depID] {
			case 1:
				return true // back edge
			case 0:
				if visit(depID) {
					return true
				}
			}
		}
		colors[id] = 2
		return false
	}

	for id := range g.nodes {
		if colors[id] == 0 {
			if visit(id) {
				return true
			}
		}
	}
	return false
}

// TopologicalSort returns task IDs in an order where all dependencies come
// before the tasks that depend on them.
func (g *TaskGraph) TopologicalSort() ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	if g.hasCycleLocked() {
		return nil, ErrCycleDetected
	}

	visited := make(map[string]bool, len(g.nodes))
	var result []string

	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		for _, depID := range g.edges[id] {
			visit(depID)
		}
		result = append(result, id)
	}

	for id := range g.nodes {
		visit(id)
	}
	return result, nil
}

// Ready returns true if every dependency of the task reached terminal
// success. Unknown tasks are never ready.
func (g *TaskGraph) Ready(taskID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.readyLocked(taskID)
}

func (g *TaskGraph) readyLocked(taskID string) bool {
	if _, ok := g.nodes[taskID]; !ok {
		return false
	}
	for _, depID := range g.edges[taskID] {
		if !g.completed[depID] {
			return false
		}
	}
	return true
}

// ReadyTasks returns all tasks whose dependencies are satisfied and which
// have not themselves reached a terminal state.
func (g *TaskGraph) ReadyTasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var ready []*models.Task
	for id, task := range g.nodes {
		if g.completed[id] || task.Status.Terminal() {
			continue
		}
		if g.readyLocked(id) {
			ready = append(ready, task)
		}
	}
	return ready
}

// MarkComplete records terminal success for a task, affecting subsequent
// readiness checks.
func (g *TaskGraph) MarkComplete(taskID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.completed[taskID] = true
	g.debugLog("[graph] marked %s complete", taskID)
}

// Task returns the task for a given ID, or nil if not found.
func (g *TaskGraph) Task(taskID string) *models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.nodes[taskID]
}

// Tasks returns every task in the graph, in unspecified order.
func (g *TaskGraph) Tasks() []*models.Task {
	g.mu.RLock()
	defer g.mu.RUnlock()

	tasks := make([]*models.Task, 0, len(g.nodes))
	for _, task := range g.nodes {
		tasks = append(tasks, task)
	}
	return tasks
}

// Size returns the number of tasks in the graph.
func (g *TaskGraph) Size() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// Dependencies returns the IDs of tasks the given task depends on.
func (g *TaskGraph) Dependencies(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]string(nil), g.edges[taskID]...)
}

// Dependents returns the IDs of tasks that directly depend on the given task.
func (g *TaskGraph) Dependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.dependentsLocked(taskID)
}

func (g *TaskGraph) dependentsLocked(taskID string) []string {
	var dependents []string
	for id, deps := range g.edges {
		for _, depID := range deps {
			if depID == taskID {
				dependents = append(dependents, id)
				break
			}
		}
	}
	return dependents
}

// TransitiveDependents returns the IDs of every task downstream of the given
// task, direct or indirect. Used for cascading failure and cancellation.
func (g *TaskGraph) TransitiveDependents(taskID string) []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	seen := make(map[string]bool)
	var result []string
	queue := []string{taskID}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, dep := range g.dependentsLocked(current) {
			if seen[dep] {
				continue
			}
			seen[dep] = true
			result = append(result, dep)
			queue = append(queue, dep)
		}
	}
	return result
}

// Subtasks returns all tasks whose ParentID matches the given root, in
// topological order where possible.
func (g *TaskGraph) Subtasks(rootID string) []*models.Task {
	order, err := g.TopologicalSort()

	g.mu.RLock()
	defer g.mu.RUnlock()

	var result []*models.Task
	if err == nil {
		for _, id := range order {
			if task := g.nodes[id]; task != nil && task.ParentID == rootID {
				result = append(result, task)
			}
		}
		return result
	}
	for _, task := range g.nodes {
		if task.ParentID == rootID {
			result = append(result, task)
		}
	}
	return result
}
