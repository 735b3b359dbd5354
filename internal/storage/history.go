package storage

import (
	"time"

	"github.com/google/uuid"
)

// Task run statuses.
const (
	RunSucceeded = "succeeded"
	RunFailed    = "failed"
	RunTimeout   = "timeout"
)

// TaskRun is one completed execution of a scheduled task.
type TaskRun struct {
	ID         string    `json:"id"`
	TaskName   string    `json:"task_name"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Status     string    `json:"status"`
	Detail     string    `json:"detail,omitempty"`
}

// HistoryStore persists task run outcomes.
type HistoryStore struct {
	db *DB
}

// NewHistoryStore creates a HistoryStore.
func NewHistoryStore(db *DB) *HistoryStore {
	return &HistoryStore{db: db}
}

// Record writes one task run, assigning an id when missing.
func (s *HistoryStore) Record(run *TaskRun) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	_, err := s.db.Exec(
		`INSERT INTO task_runs (id, task_name, started_at, finished_at, status, detail)
		VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.TaskName, run.StartedAt, run.FinishedAt, run.Status, run.Detail,
	)
	return err
}

// ListByTask returns the most recent runs of a task, newest first.
func (s *HistoryStore) ListByTask(taskName string, limit int) ([]*TaskRun, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, task_name, started_at, finished_at, status, detail
		FROM task_runs WHERE task_name = ? ORDER BY started_at DESC LIMIT ?`,
		taskName, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*TaskRun
	for rows.Next() {
		var r TaskRun
		if err := rows.Scan(&r.ID, &r.TaskName, &r.StartedAt, &r.FinishedAt, &r.Status, &r.Detail); err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
