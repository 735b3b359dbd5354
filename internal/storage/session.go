package storage

import (
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Session is a persisted conversation session.
type Session struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// SessionStore persists sessions.
type SessionStore struct {
	db *DB
}

// NewSessionStore creates a SessionStore.
func NewSessionStore(db *DB) *SessionStore {
	return &SessionStore{db: db}
}

// Create inserts a new session, generating an id when none is given.
func (s *SessionStore) Create(id, channel string) (*Session, error) {
	if id == "" {
		id = uuid.New().String()
	}
	now := time.Now()

	_, err := s.db.Exec(
		"INSERT INTO sessions (id, channel, created_at, updated_at) VALUES (?, ?, ?, ?)",
		id, channel, now, now,
	)
	if err != nil {
		return nil, err
	}

	return &Session{ID: id, Channel: channel, CreatedAt: now, UpdatedAt: now}, nil
}

// Get returns a session by id.
func (s *SessionStore) Get(id string) (*Session, error) {
	var sess Session
	err := s.db.QueryRow(
		"SELECT id, channel, created_at, updated_at FROM sessions WHERE id = ?", id,
	).Scan(&sess.ID, &sess.Channel, &sess.CreatedAt, &sess.UpdatedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

// Touch bumps the session's updated_at timestamp.
func (s *SessionStore) Touch(id string) error {
	result, err := s.db.Exec("UPDATE sessions SET updated_at = ? WHERE id = ?", time.Now(), id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// Delete removes a session.
func (s *SessionStore) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM sessions WHERE id = ?", id)
	if err != nil {
		return err
	}
	return requireAffected(result)
}

// List returns sessions ordered by most recent activity.
func (s *SessionStore) List(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		"SELECT id, channel, created_at, updated_at FROM sessions ORDER BY updated_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []*Session
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.ID, &sess.Channel, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
			return nil, err
		}
		sessions = append(sessions, &sess)
	}
	return sessions, rows.Err()
}
