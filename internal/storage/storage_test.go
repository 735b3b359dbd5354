package storage

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axon/internal/approval"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(filepath.Join(t.TempDir(), "axon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpen_MigratesIdempotently(t *testing.T) {
	path := filepath.Join(t.TempDir(), "axon.db")

	db, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	// Reopening an already-migrated database is a no-op.
	db, err = Open(path)
	require.NoError(t, err)
	defer db.Close()

	var version int
	require.NoError(t, db.QueryRow("SELECT MAX(version) FROM _migrations").Scan(&version))
	assert.Equal(t, 1, version)
}

func TestAuditStore_RecordResolution(t *testing.T) {
	db := openTestDB(t)
	store := NewAuditStore(db)

	req := &approval.Request{
		ID:        "req-1",
		Tool:      "shell_execute",
		Params:    []approval.Param{{Key: "command", Value: "ls"}},
		Risk:      approval.RiskCritical,
		SessionID: "s1",
		CreatedAt: time.Now().Add(-3 * time.Second),
	}

	require.NoError(t, store.RecordResolution(&approval.Resolution{
		Request:   req,
		Decision:  approval.DecisionOnce,
		DecidedAt: time.Now(),
		Latency:   3 * time.Second,
	}))
	require.NoError(t, store.RecordResolution(&approval.Resolution{
		Request:   req,
		Decision:  approval.DecisionTimeout,
		DecidedAt: time.Now(),
		Latency:   2 * time.Minute,
	}))

	entries, err := store.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	// Newest first: the timeout row carries its own event type.
	assert.Equal(t, AuditEventTimeout, entries[0].EventType)
	assert.Equal(t, string(approval.DecisionTimeout), entries[0].Decision)
	assert.Equal(t, AuditEventResolved, entries[1].EventType)
	assert.Equal(t, "shell_execute", entries[1].Tool)
	assert.Contains(t, entries[1].Params, `"command":"ls"`)
	assert.EqualValues(t, 3000, entries[1].LatencyMS)
}

func TestTaskStore_CRUD(t *testing.T) {
	db := openTestDB(t)
	store := NewTaskStore(db)

	task := &Task{
		Name:     "daily-report",
		Schedule: "0 9 * * *",
		Provider: "ollama",
		Prompt:   "summarize yesterday",
		MaxSteps: 5,
		Timeout:  10 * time.Minute,
		Enabled:  true,
	}
	require.NoError(t, store.Create(task))

	got, err := store.Get("daily-report")
	require.NoError(t, err)
	assert.Equal(t, task.Schedule, got.Schedule)
	assert.Equal(t, 10*time.Minute, got.Timeout)
	assert.True(t, got.Enabled)

	got.Prompt = "summarize today"
	require.NoError(t, store.Update(got))
	got, err = store.Get("daily-report")
	require.NoError(t, err)
	assert.Equal(t, "summarize today", got.Prompt)

	require.NoError(t, store.SetEnabled("daily-report", false))
	got, err = store.Get("daily-report")
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	list, err := store.List()
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete("daily-report"))
	_, err = store.Get("daily-report")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestTaskStore_NotFound(t *testing.T) {
	db := openTestDB(t)
	store := NewTaskStore(db)

	_, err := store.Get("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.Delete("missing"), ErrNotFound)
	assert.ErrorIs(t, store.SetEnabled("missing", true), ErrNotFound)
}

func TestHistoryStore_RecordAndList(t *testing.T) {
	db := openTestDB(t)
	store := NewHistoryStore(db)

	base := time.Now().Add(-time.Hour)
	for i, status := range []string{RunSucceeded, RunFailed, RunTimeout} {
		require.NoError(t, store.Record(&TaskRun{
			TaskName:   "daily-report",
			StartedAt:  base.Add(time.Duration(i) * time.Minute),
			FinishedAt: base.Add(time.Duration(i)*time.Minute + 30*time.Second),
			Status:     status,
		}))
	}

	runs, err := store.ListByTask("daily-report", 2)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, RunTimeout, runs[0].Status)
	assert.Equal(t, RunFailed, runs[1].Status)

	runs, err = store.ListByTask("other-task", 10)
	require.NoError(t, err)
	assert.Empty(t, runs)
}

func TestSessionStore_CRUD(t *testing.T) {
	db := openTestDB(t)
	store := NewSessionStore(db)

	sess, err := store.Create("", "discord")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.ID)

	got, err := store.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "discord", got.Channel)

	require.NoError(t, store.Touch(sess.ID))

	list, err := store.List(10)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(sess.ID))
	_, err = store.Get(sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}
