package state

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/nexuslabs/conductor/pkg/models"
)

// SaveTask upserts a task row.
func (db *DB) SaveTask(t *models.Task) error {
	return db.Transaction(func(tx *sql.Tx) error {
		return saveTaskTx(tx, t)
	})
}

func saveTaskTx(tx *sql.Tx, t *models.Task) error {
	caps, err := json.Marshal(t.RequiredCapabilities)
	if err != nil {
		return fmt.Errorf("marshal capabilities: %w", err)
	}
	deps, err := json.Marshal(t.DependsOn)
	if err != nil {
		return fmt.Errorf("marshal depends_on: %w", err)
	}
	var result any
	if t.Result != nil {
		encoded, err := json.Marshal(t.Result)
		if err != nil {
			return fmt.Errorf("marshal result: %w", err)
		}
		result = string(encoded)
	}

	_, err = tx.Exec(`
		INSERT INTO tasks (
			id, parent_id, title, description, required_capabilities,
			priority, status, depends_on, assigned_worker, retry_count,
			max_retries, deadline, result, error, created_at,
			dispatched_at, completed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			assigned_worker = excluded.assigned_worker,
			retry_count = excluded.retry_count,
			result = excluded.result,
			error = excluded.error,
			dispatched_at = excluded.dispatched_at,
			completed_at = excluded.completed_at
	`,
		t.ID, t.ParentID, t.Title, t.Description, string(caps),
		int(t.Priority), string(t.Status), string(deps), t.AssignedWorker, t.RetryCount,
		t.MaxRetries, nullableTimeArg(t.Deadline), result, t.Error, formatTime(t.CreatedAt),
		nullableTimeArg(t.DispatchedAt), nullableTimeArg(t.CompletedAt),
	)
	if err != nil {
		return fmt.Errorf("save task %s: %w", t.ID, err)
	}
	return nil
}

// GetTask loads a task by ID. Returns sql.ErrNoRows if absent.
func (db *DB) GetTask(id string) (*models.Task, error) {
	row := db.QueryRow(`
		SELECT id, parent_id, title, description, required_capabilities,
		       priority, status, depends_on, assigned_worker, retry_count,
		       max_retries, deadline, result, error, created_at,
		       dispatched_at, completed_at
		FROM tasks WHERE id = ?
	`, id)
	return scanTask(row)
}

// ListTasksByParent returns all subtasks of a composite root, ordered by
// creation time.
func (db *DB) ListTasksByParent(parentID string) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, parent_id, title, description, required_capabilities,
		       priority, status, depends_on, assigned_worker, retry_count,
		       max_retries, deadline, result, error, created_at,
		       dispatched_at, completed_at
		FROM tasks WHERE parent_id = ? ORDER BY created_at, id
	`, parentID)
	if err != nil {
		return nil, fmt.Errorf("list tasks by parent: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListTasksByStatus returns all tasks in the given status.
func (db *DB) ListTasksByStatus(status models.TaskStatus) ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, parent_id, title, description, required_capabilities,
		       priority, status, depends_on, assigned_worker, retry_count,
		       max_retries, deadline, result, error, created_at,
		       dispatched_at, completed_at
		FROM tasks WHERE status = ? ORDER BY created_at, id
	`, string(status))
	if err != nil {
		return nil, fmt.Errorf("list tasks by status: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// ListRoots returns all composite root tasks, newest first.
func (db *DB) ListRoots() ([]models.Task, error) {
	rows, err := db.Query(`
		SELECT id, parent_id, title, description, required_capabilities,
		       priority, status, depends_on, assigned_worker, retry_count,
		       max_retries, deadline, result, error, created_at,
		       dispatched_at, completed_at
		FROM tasks WHERE parent_id IS NULL OR parent_id = ''
		ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("list root tasks: %w", err)
	}
	defer rows.Close()
	return collectTasks(rows)
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	var t models.Task
	var caps, deps sql.NullString
	var result, errMsg, createdAt sql.NullString
	var deadline, dispatchedAt, completedAt sql.NullString
	var priority int
	var status string

	err := row.Scan(
		&t.ID, &t.ParentID, &t.Title, &t.Description, &caps,
		&priority, &status, &deps, &t.AssignedWorker, &t.RetryCount,
		&t.MaxRetries, &deadline, &result, &errMsg, &createdAt,
		&dispatchedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	t.Priority = models.Priority(priority)
	t.Status = models.TaskStatus(status)
	if caps.Valid && caps.String != "" {
		if err := json.Unmarshal([]byte(caps.String), &t.RequiredCapabilities); err != nil {
			return nil, fmt.Errorf("unmarshal capabilities for %s: %w", t.ID, err)
		}
	}
	if deps.Valid && deps.String != "" {
		if err := json.Unmarshal([]byte(deps.String), &t.DependsOn); err != nil {
			return nil, fmt.Errorf("unmarshal depends_on for %s: %w", t.ID, err)
		}
	}
	if result.Valid && result.String != "" {
		var payload any
		if err := json.Unmarshal([]byte(result.String), &payload); err == nil {
			t.Result = payload
		} else {
			t.Result = result.String
		}
	}
	if errMsg.Valid {
		t.Error = errMsg.String
	}
	if createdAt.Valid {
		if at, err := parseTime(createdAt.String); err == nil {
			t.CreatedAt = at
		}
	}
	t.Deadline = parseNullableTime(deadline)
	t.DispatchedAt = parseNullableTime(dispatchedAt)
	t.CompletedAt = parseNullableTime(completedAt)
	return &t, nil
}

func collectTasks(rows *sql.Rows) ([]models.Task, error) {
	var tasks []models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}
