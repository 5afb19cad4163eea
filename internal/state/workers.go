package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nexuslabs/conductor/pkg/models"
)

// SaveWorker upserts a worker row.
func (db *DB) SaveWorker(w *models.Worker) error {
	return db.Transaction(func(tx *sql.Tx) error {
		return saveWorkerTx(tx, w)
	})
}

func saveWorkerTx(tx *sql.Tx, w *models.Worker) error {
	caps, err := json.Marshal(w.Capabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}

	_, err = tx.Exec(`
		INSERT INTO workers (
			id, name, capabilities, status, health_score,
			active_tasks, max_concurrency, registered_at, last_heartbeat
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			capabilities = excluded.capabilities,
			status = excluded.status,
			health_score = excluded.health_score,
			active_tasks = excluded.active_tasks,
			max_concurrency = excluded.max_concurrency,
			last_heartbeat = excluded.last_heartbeat
	`,
		w.ID, w.Name, string(caps), string(w.Status), w.HealthScore,
		w.ActiveTasks, w.MaxConcurrency, formatTime(w.RegisteredAt), formatTime(w.LastHeartbeat),
	)
	if err != nil {
		return fmt.Errorf("save worker %s: %w", w.ID, err)
	}
	return nil
}

// GetWorker loads a worker by ID. Returns sql.ErrNoRows if absent.
func (db *DB) GetWorker(id string) (*models.Worker, error) {
	row := db.QueryRow(`
		SELECT id, name, capabilities, status, health_score,
		       active_tasks, max_concurrency, registered_at, last_heartbeat
		FROM workers WHERE id = ?
	`, id)
	return scanWorker(row)
}

// ListWorkers returns every persisted worker, ordered by ID.
func (db *DB) ListWorkers() ([]models.Worker, error) {
	rows, err := db.Query(`
		SELECT id, name, capabilities, status, health_score,
		       active_tasks, max_concurrency, registered_at, last_heartbeat
		FROM workers ORDER BY id
	`)
	if err != nil {
		return nil, fmt.Errorf("list workers: %w", err)
	}
	defer rows.Close()

	var workers []models.Worker
	for rows.Next() {
		w, err := scanWorker(rows)
		if err != nil {
			return nil, err
		}
		workers = append(workers, *w)
	}
	return workers, rows.Err()
}

// DeleteWorker removes a worker row.
func (db *DB) DeleteWorker(id string) error {
	if _, err := db.Exec("DELETE FROM workers WHERE id = ?", id); err != nil {
		return fmt.Errorf("delete worker %s: %w", id, err)
	}
	return nil
}

func scanWorker(row rowScanner) (*models.Worker, error) {
	var w models.Worker
	var caps sql.NullString
	var status, registeredAt, lastHeartbeat string

	err := row.Scan(
		&w.ID, &w.Name, &caps, &status, &w.HealthScore,
		&w.ActiveTasks, &w.MaxConcurrency, &registeredAt, &lastHeartbeat,
	)
	if err != nil {
		return nil, err
	}

	w.Status = models.WorkerStatus(status)
	if caps.Valid && caps.String != "" {
		if err := json.Unmarshal([]byte(caps.String), &w.Capabilities); err != nil {
			return nil, fmt.Errorf("unmarshal capabilities for %s: %w", w.ID, err)
		}
	}
	if at, err := parseTime(registeredAt); err == nil {
		w.RegisteredAt = at
	}
	if at, err := parseTime(lastHeartbeat); err == nil {
		w.LastHeartbeat = at
	}
	return &w, nil
}
