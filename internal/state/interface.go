// Package state provides SQLite-based persistence for conductor.
package state

import (
	"io"

	"github.com/nexuslabs/conductor/pkg/models"
)

// TaskStore handles task-related persistence operations.
type TaskStore interface {
	SaveTask(t *models.Task) error
	GetTask(id string) (*models.Task, error)
	ListTasksByParent(parentID string) ([]models.Task, error)
	ListTasksByStatus(status models.TaskStatus) ([]models.Task, error)
	ListRoots() ([]models.Task, error)
}

// WorkerStore handles worker-related persistence operations.
type WorkerStore interface {
	SaveWorker(w *models.Worker) error
	GetWorker(id string) (*models.Worker, error)
	ListWorkers() ([]models.Worker, error)
	DeleteWorker(id string) error
}

// Snapshotter persists a consistent view of core state in one shot.
type Snapshotter interface {
	SaveSnapshot(tasks []*models.Task, workers []*models.Worker) error
}

// Migrator handles database schema migrations.
// Separating this allows clients to depend only on migration functionality.
type Migrator interface {
	// Migrate applies all pending schema migrations.
	Migrate() error
}

// Store defines the interface for state persistence. It allows the CLI and
// the core to work with any backend without depending on the concrete
// SQLite implementation.
type Store interface {
	io.Closer
	Migrator
	Snapshotter
	TaskStore
	WorkerStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store       = (*DB)(nil)
	_ Migrator    = (*DB)(nil)
	_ Snapshotter = (*DB)(nil)
	_ TaskStore   = (*DB)(nil)
	_ WorkerStore = (*DB)(nil)
)
