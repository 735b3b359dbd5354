// Package scheduler runs stored tasks on cron schedules through the agent
// orchestrator. Scheduled turns are unattended: the auto policy stands in
// for the human and sensitive tools are denied outright.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"axon/internal/runner"
	"axon/internal/storage"
)

// DefaultRunTimeout bounds one task run from first model call to done.
const DefaultRunTimeout = 10 * time.Minute

// Executor runs one task as a synthetic agent turn and records the outcome.
type Executor struct {
	orchestrator *runner.Orchestrator
	history      *storage.HistoryStore
	policy       runner.DecisionPolicy
	logger       zerolog.Logger

	defaultTimeout time.Duration
}

// ExecutorConfig configures the Executor.
type ExecutorConfig struct {
	// Policy decides tool calls during scheduled runs. Defaults to AutoPolicy.
	Policy runner.DecisionPolicy

	// DefaultTimeout applies to tasks without their own timeout.
	DefaultTimeout time.Duration
}

// NewExecutor creates an Executor.
func NewExecutor(orchestrator *runner.Orchestrator, history *storage.HistoryStore, config *ExecutorConfig, logger zerolog.Logger) *Executor {
	e := &Executor{
		orchestrator:   orchestrator,
		history:        history,
		policy:         &runner.AutoPolicy{},
		logger:         logger.With().Str("component", "scheduler").Logger(),
		defaultTimeout: DefaultRunTimeout,
	}
	if config != nil {
		if config.Policy != nil {
			e.policy = config.Policy
		}
		if config.DefaultTimeout > 0 {
			e.defaultTimeout = config.DefaultTimeout
		}
	}
	return e
}

// RunResult is the outcome of one task execution.
type RunResult struct {
	Run    *storage.TaskRun
	Output string
	Error  error
}

// Execute runs the task in a fresh session under the executor's policy. The
// run is bounded by the task timeout; on expiry the run is recorded as timed
// out and whatever tool effects already completed stand.
func (e *Executor) Execute(ctx context.Context, task *storage.Task) *RunResult {
	timeout := task.Timeout
	if timeout <= 0 {
		timeout = e.defaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	started := time.Now()
	run := &storage.TaskRun{
		TaskName:  task.Name,
		StartedAt: started,
	}

	events, err := e.orchestrator.RunTurn(runCtx, runner.TurnRequest{
		Message:       task.Prompt,
		Provider:      task.Provider,
		Policy:        e.policy,
		MaxIterations: task.MaxSteps,
	})
	if err != nil {
		run.FinishedAt = time.Now()
		run.Status = storage.RunFailed
		run.Detail = err.Error()
		e.record(run)
		return &RunResult{Run: run, Error: err}
	}

	var output strings.Builder
	toolCalls := 0
	denied := 0
	sawDone := false

	for event := range events {
		switch event.Type {
		case runner.EventText:
			if output.Len() > 0 {
				output.WriteString("\n")
			}
			output.WriteString(event.Content)
		case runner.EventToolResult:
			toolCalls++
		case runner.EventToolRejected:
			denied++
		case runner.EventDone:
			sawDone = true
		}
	}

	run.FinishedAt = time.Now()
	switch {
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		run.Status = storage.RunTimeout
		run.Detail = fmt.Sprintf("timed out after %s", timeout)
	case !sawDone:
		run.Status = storage.RunFailed
		run.Detail = "turn ended without completion"
	default:
		run.Status = storage.RunSucceeded
		run.Detail = fmt.Sprintf("%d tool calls, %d denied", toolCalls, denied)
	}

	e.record(run)
	e.logger.Info().
		Str("task", task.Name).
		Str("status", run.Status).
		Dur("elapsed", run.FinishedAt.Sub(run.StartedAt)).
		Int("tool_calls", toolCalls).
		Int("denied", denied).
		Msg("task run finished")

	return &RunResult{Run: run, Output: output.String()}
}

// record persists the run outcome; history failures are logged, never fatal.
func (e *Executor) record(run *storage.TaskRun) {
	if e.history == nil {
		return
	}
	if err := e.history.Record(run); err != nil {
		e.logger.Warn().Err(err).Str("task", run.TaskName).Msg("failed to record task run")
	}
}
