package storage

import (
	"encoding/json"
	"time"

	"axon/internal/approval"
)

// AuditEntry is one persisted approval resolution.
type AuditEntry struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	EventType string    `json:"event_type"`
	RequestID string    `json:"request_id"`
	Tool      string    `json:"tool"`
	Params    string    `json:"params"`
	Decision  string    `json:"decision"`
	LatencyMS int64     `json:"latency_ms"`
	SessionID string    `json:"session_id"`
}

// Audit event types.
const (
	AuditEventResolved = "resolved"
	AuditEventTimeout  = "timeout"
)

// AuditStore persists approval resolutions. It satisfies approval.AuditSink.
type AuditStore struct {
	db *DB
}

// NewAuditStore creates an AuditStore.
func NewAuditStore(db *DB) *AuditStore {
	return &AuditStore{db: db}
}

// RecordResolution writes one audit row. Timeouts are recorded under their
// own event type so unattended denials are distinguishable from human ones.
func (s *AuditStore) RecordResolution(res *approval.Resolution) error {
	eventType := AuditEventResolved
	if res.Decision == approval.DecisionTimeout {
		eventType = AuditEventTimeout
	}

	params, err := json.Marshal(res.Request.ParamMap())
	if err != nil {
		params = []byte("{}")
	}

	_, err = s.db.Exec(
		`INSERT INTO approval_audit
			(created_at, event_type, request_id, tool, params, decision, latency_ms, session_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		res.DecidedAt, eventType, res.Request.ID, res.Request.Tool,
		string(params), string(res.Decision), res.Latency.Milliseconds(),
		res.Request.SessionID,
	)
	return err
}

// ListRecent returns the most recent audit entries, newest first.
func (s *AuditStore) ListRecent(limit int) ([]*AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(
		`SELECT id, created_at, event_type, request_id, tool, params, decision, latency_ms, session_id
		FROM approval_audit ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []*AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.CreatedAt, &e.EventType, &e.RequestID,
			&e.Tool, &e.Params, &e.Decision, &e.LatencyMS, &e.SessionID); err != nil {
			return nil, err
		}
		entries = append(entries, &e)
	}
	return entries, rows.Err()
}
