package storage

import (
	"database/sql"
	"errors"
	"time"
)

// Task is a scheduled agent task.
type Task struct {
	Name      string        `json:"name"`
	Schedule  string        `json:"schedule"`
	Provider  string        `json:"provider,omitempty"`
	Prompt    string        `json:"prompt"`
	MaxSteps  int           `json:"max_steps,omitempty"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Enabled   bool          `json:"enabled"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// TaskStore persists scheduled tasks.
type TaskStore struct {
	db *DB
}

// NewTaskStore creates a TaskStore.
func NewTaskStore(db *DB) *TaskStore {
	return &TaskStore{db: db}
}

// Create inserts a new task. The name must be unique.
func (s *TaskStore) Create(task *Task) error {
	now := time.Now()
	task.CreatedAt = now
	task.UpdatedAt = now

	_, err := s.db.Exec(
		`INSERT INTO tasks (name, schedule, provider, prompt, max_steps, timeout_seconds, enabled, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		task.Name, task.Schedule, task.Provider, task.Prompt, task.MaxSteps,
		int64(task.Timeout.Seconds()), task.Enabled, now, now,
	)
	return err
}

// Get returns a task by name.
func (s *TaskStore) Get(name string) (*Task, error) {
	row := s.db.QueryRow(
		`SELECT name, schedule, provider, prompt, max_steps, timeout_seconds, enabled, created_at, updated_at
		FROM tasks WHERE name = ?`, name)
	return scanTask(row)
}

// List returns all tasks ordered by name.
func (s *TaskStore) List() ([]*Task, error) {
	rows, err := s.db.Query(
		`SELECT name, schedule, provider, prompt, max_steps, timeout_seconds, enabled, created_at, updated_at
		FROM tasks ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// Update rewrites a task's mutable fields.
func (s *TaskStore) Update(task *Task) error {
	task.UpdatedAt = time.Now()

	result, err := s.db.Exec(
		`UPDATE tasks SET schedule = ?, provider = ?, prompt = ?, max_steps = ?,
			timeout_seconds = ?, enabled = ?, updated_at = ?
		WHERE name = ?`,
		task.Schedule, task.Provider, task.Prompt, task.MaxSteps,
		int64(task.Timeout.Seconds()), task.Enabled, task.UpdatedAt, task.Name,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// SetEnabled toggles a task on or off.
func (s *TaskStore) SetEnabled(name string, enabled bool) error {
	result, err := s.db.Exec(
		"UPDATE tasks SET enabled = ?, updated_at = ? WHERE name = ?",
		enabled, time.Now(), name,
	)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete removes a task.
func (s *TaskStore) Delete(name string) error {
	result, err := s.db.Exec("DELETE FROM tasks WHERE name = ?", name)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*Task, error) {
	var t Task
	var timeoutSeconds int64

	err := row.Scan(&t.Name, &t.Schedule, &t.Provider, &t.Prompt, &t.MaxSteps,
		&timeoutSeconds, &t.Enabled, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	t.Timeout = time.Duration(timeoutSeconds) * time.Second
	return &t, nil
}

func requireAffected(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}
