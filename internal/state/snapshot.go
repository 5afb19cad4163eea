package state

import (
	"database/sql"
	"fmt"

	"github.com/nexuslabs/conductor/pkg/models"
)

// SaveSnapshot persists the core's current task and worker state in one
// transaction. Tasks are upserted so history survives across snapshots;
// the worker table is replaced wholesale, since deregistered workers must
// not linger.
func (db *DB) SaveSnapshot(tasks []*models.Task, workers []*models.Worker) error {
	return db.Transaction(func(tx *sql.Tx) error {
		for _, t := range tasks {
			if err := saveTaskTx(tx, t); err != nil {
				return err
			}
		}

		if _, err := tx.Exec("DELETE FROM workers"); err != nil {
			return fmt.Errorf("clear workers: %w", err)
		}
		for _, w := range workers {
			if err := saveWorkerTx(tx, w); err != nil {
				return err
			}
		}
		return nil
	})
}
