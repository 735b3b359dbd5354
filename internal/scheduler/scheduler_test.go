package scheduler

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axon/internal/approval"
	"axon/internal/permission"
	"axon/internal/provider"
	"axon/internal/runner"
	"axon/internal/storage"
	"axon/internal/tools"
)

// scriptedProvider returns canned responses in order, then plain text. When
// block is set, Chat waits for ctx cancellation instead.
type scriptedProvider struct {
	mu        sync.Mutex
	responses []*provider.ChatResponse
	block     bool
	release   chan struct{}
}

func (p *scriptedProvider) Name() string { return "scripted" }

func (p *scriptedProvider) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	if p.block {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-p.release:
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.responses) == 0 {
		return &provider.ChatResponse{Content: "done", FinishReason: provider.FinishReasonStop}, nil
	}
	resp := p.responses[0]
	p.responses = p.responses[1:]
	return resp, nil
}

func (p *scriptedProvider) HealthCheck(ctx context.Context) error   { return nil }
func (p *scriptedProvider) UpdateConfig(settings provider.Settings) {}

type markerTool struct {
	name string
	risk approval.RiskLevel
}

func (t *markerTool) Name() string             { return t.name }
func (t *markerTool) Description() string      { return "marker" }
func (t *markerTool) Risk() approval.RiskLevel { return t.risk }

func (t *markerTool) Parameters() map[string]any {
	return tools.ObjectSchema(map[string]any{})
}

func (t *markerTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	return tools.NewSuccessResult("ran " + t.name), nil
}

type fixture struct {
	db       *storage.DB
	tasks    *storage.TaskStore
	history  *storage.HistoryStore
	executor *Executor
	provider *scriptedProvider
}

func newFixture(t *testing.T, p *scriptedProvider) *fixture {
	t.Helper()

	db, err := storage.Open(filepath.Join(t.TempDir(), "axon.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	registry := tools.NewRegistry(zerolog.Nop())
	require.NoError(t, registry.Register(&markerTool{name: "fetch", risk: approval.RiskLow}))
	require.NoError(t, registry.Register(&markerTool{name: "destroy", risk: approval.RiskCritical}))

	router := provider.NewRouter(provider.RouterConfig{
		Factories: map[string]provider.Factory{
			"scripted": func(provider.Settings) provider.Provider { return p },
		},
		DefaultKind: "scripted",
	}, zerolog.Nop())

	orchestrator := runner.NewOrchestrator(router, registry, permission.NewCache(), &runner.Config{
		Policy: &runner.AutoPolicy{},
	}, zerolog.Nop())

	history := storage.NewHistoryStore(db)
	executor := NewExecutor(orchestrator, history, nil, zerolog.Nop())

	return &fixture{
		db:       db,
		tasks:    storage.NewTaskStore(db),
		history:  history,
		executor: executor,
		provider: p,
	}
}

func toolCallResponse(name string) *provider.ChatResponse {
	return &provider.ChatResponse{
		ToolCalls: []provider.ToolCall{{
			ID:        "call_0",
			Name:      name,
			Arguments: `{}`,
		}},
		FinishReason: provider.FinishReasonToolCalls,
	}
}

func TestNormalizeSchedule(t *testing.T) {
	assert.Equal(t, "0 */5 * * * *", NormalizeSchedule("*/5 * * * *"))
	assert.Equal(t, "30 */5 * * * *", NormalizeSchedule("30 */5 * * * *"))
	assert.Equal(t, "@hourly", NormalizeSchedule("@hourly"))
}

func TestValidateSchedule(t *testing.T) {
	assert.NoError(t, ValidateSchedule("*/5 * * * *"))
	assert.NoError(t, ValidateSchedule("0 30 9 * * 1"))
	assert.NoError(t, ValidateSchedule("@daily"))
	assert.ErrorIs(t, ValidateSchedule("not a schedule"), ErrInvalidSchedule)
	assert.ErrorIs(t, ValidateSchedule("61 * * * *"), ErrInvalidSchedule)
}

func TestExecutor_SuccessfulRun(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCallResponse("fetch"),
		{Content: "report ready", FinishReason: provider.FinishReasonStop},
	}}
	f := newFixture(t, p)

	task := &storage.Task{Name: "report", Schedule: "@daily", Prompt: "build the report", Enabled: true}
	require.NoError(t, f.tasks.Create(task))

	result := f.executor.Execute(context.Background(), task)
	require.NoError(t, result.Error)
	assert.Equal(t, storage.RunSucceeded, result.Run.Status)
	assert.Contains(t, result.Output, "report ready")

	runs, err := f.history.ListByTask("report", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.RunSucceeded, runs[0].Status)
	assert.Contains(t, runs[0].Detail, "1 tool calls")
}

func TestExecutor_DeniedCriticalToolStillCompletes(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		toolCallResponse("destroy"),
		{Content: "could not do that", FinishReason: provider.FinishReasonStop},
	}}
	f := newFixture(t, p)

	task := &storage.Task{Name: "cleanup", Schedule: "@daily", Prompt: "clean up", Enabled: true}
	require.NoError(t, f.tasks.Create(task))

	result := f.executor.Execute(context.Background(), task)
	require.NoError(t, result.Error)
	assert.Equal(t, storage.RunSucceeded, result.Run.Status)
	assert.Contains(t, result.Run.Detail, "1 denied")
}

func TestExecutor_Timeout(t *testing.T) {
	p := &scriptedProvider{block: true, release: make(chan struct{})}
	f := newFixture(t, p)

	task := &storage.Task{
		Name:     "stuck",
		Schedule: "@daily",
		Prompt:   "never finishes",
		Timeout:  100 * time.Millisecond,
		Enabled:  true,
	}
	require.NoError(t, f.tasks.Create(task))

	result := f.executor.Execute(context.Background(), task)
	assert.Equal(t, storage.RunTimeout, result.Run.Status)

	runs, err := f.history.ListByTask("stuck", 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, storage.RunTimeout, runs[0].Status)
}

func TestScheduler_BuildTruncatesAtCapacity(t *testing.T) {
	f := newFixture(t, &scriptedProvider{})

	for i := 0; i < 4; i++ {
		require.NoError(t, f.tasks.Create(&storage.Task{
			Name:     fmt.Sprintf("task-%d", i),
			Schedule: "@daily",
			Prompt:   "x",
			Enabled:  true,
		}))
	}
	require.NoError(t, f.tasks.Create(&storage.Task{
		Name: "task-disabled", Schedule: "@daily", Prompt: "x", Enabled: false,
	}))

	s := New(f.tasks, f.executor, &Config{MaxTasks: 2}, zerolog.Nop())
	report, err := s.Start()
	require.NoError(t, err)
	defer s.Stop()

	assert.Len(t, report.Scheduled, 2)
	assert.Len(t, report.Truncated, 2)
	assert.NotContains(t, report.Scheduled, "task-disabled")
	assert.NotContains(t, report.Truncated, "task-disabled")
	assert.Equal(t, 2, s.Entries())
}

func TestScheduler_StartTwice(t *testing.T) {
	f := newFixture(t, &scriptedProvider{})
	s := New(f.tasks, f.executor, nil, zerolog.Nop())

	_, err := s.Start()
	require.NoError(t, err)
	defer s.Stop()

	_, err = s.Start()
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}

func TestScheduler_AddTaskValidatesSchedule(t *testing.T) {
	f := newFixture(t, &scriptedProvider{})
	s := New(f.tasks, f.executor, nil, zerolog.Nop())

	err := s.AddTask(&storage.Task{Name: "bad", Schedule: "nope", Prompt: "x"})
	assert.ErrorIs(t, err, ErrInvalidSchedule)

	_, err = f.tasks.Get("bad")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScheduler_AddRemoveTask(t *testing.T) {
	f := newFixture(t, &scriptedProvider{})
	s := New(f.tasks, f.executor, nil, zerolog.Nop())

	_, err := s.Start()
	require.NoError(t, err)
	defer s.Stop()

	require.NoError(t, s.AddTask(&storage.Task{
		Name: "late", Schedule: "*/5 * * * *", Prompt: "x", Enabled: true,
	}))
	assert.Equal(t, 1, s.Entries())

	next, ok := s.NextRun("late")
	require.True(t, ok)
	assert.True(t, next.After(time.Now()))

	require.NoError(t, s.RemoveTask("late"))
	assert.Equal(t, 0, s.Entries())
	_, ok = s.NextRun("late")
	assert.False(t, ok)
}

func TestScheduler_RunNow(t *testing.T) {
	p := &scriptedProvider{responses: []*provider.ChatResponse{
		{Content: "hi", FinishReason: provider.FinishReasonStop},
	}}
	f := newFixture(t, p)
	s := New(f.tasks, f.executor, nil, zerolog.Nop())

	require.NoError(t, f.tasks.Create(&storage.Task{
		Name: "adhoc", Schedule: "@daily", Prompt: "x", Enabled: true,
	}))

	result, err := s.RunNow(context.Background(), "adhoc")
	require.NoError(t, err)
	assert.Equal(t, storage.RunSucceeded, result.Run.Status)

	_, err = s.RunNow(context.Background(), "missing")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScheduler_RunNowSuppressesOverlap(t *testing.T) {
	p := &scriptedProvider{block: true, release: make(chan struct{})}
	f := newFixture(t, p)
	s := New(f.tasks, f.executor, nil, zerolog.Nop())

	require.NoError(t, f.tasks.Create(&storage.Task{
		Name: "slow", Schedule: "@daily", Prompt: "x", Timeout: 5 * time.Second, Enabled: true,
	}))

	started := make(chan struct{})
	finished := make(chan *RunResult, 1)
	go func() {
		close(started)
		result, err := s.RunNow(context.Background(), "slow")
		assert.NoError(t, err)
		finished <- result
	}()

	<-started
	// Give the first run time to claim the executing slot.
	require.Eventually(t, func() bool {
		_, err := s.RunNow(context.Background(), "slow")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	_, err := s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrTaskRunning)

	close(p.release)
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("first run never finished")
	}
}
