package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"axon/internal/storage"
)

// DefaultMaxTasks caps how many tasks a schedule build registers.
const DefaultMaxTasks = 100

// Error definitions.
var (
	ErrAlreadyRunning  = errors.New("scheduler: already running")
	ErrNotRunning      = errors.New("scheduler: not running")
	ErrTaskRunning     = errors.New("scheduler: task is already running")
	ErrInvalidSchedule = errors.New("scheduler: invalid cron expression")
)

// Scheduler registers stored tasks with robfig/cron and executes them through
// the Executor. Overlapping runs of the same task are suppressed.
type Scheduler struct {
	cron     *cron.Cron
	entries  map[string]cron.EntryID
	store    *storage.TaskStore
	executor *Executor
	logger   zerolog.Logger

	mu      sync.RWMutex
	running bool
	wg      sync.WaitGroup

	// task name -> start time of the in-flight run
	executing sync.Map

	maxTasks int
}

// Config configures the Scheduler.
type Config struct {
	// MaxTasks caps the number of registered tasks per schedule build.
	MaxTasks int

	// Location for cron time zone handling; defaults to time.Local.
	Location *time.Location
}

// New creates a Scheduler.
func New(store *storage.TaskStore, executor *Executor, config *Config, logger zerolog.Logger) *Scheduler {
	maxTasks := DefaultMaxTasks
	location := time.Local
	if config != nil {
		if config.MaxTasks > 0 {
			maxTasks = config.MaxTasks
		}
		if config.Location != nil {
			location = config.Location
		}
	}

	return &Scheduler{
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(location),
		),
		entries:  make(map[string]cron.EntryID),
		store:    store,
		executor: executor,
		logger:   logger.With().Str("component", "scheduler").Logger(),
		maxTasks: maxTasks,
	}
}

// BuildReport summarizes one schedule build.
type BuildReport struct {
	Scheduled []string `json:"scheduled"`
	Truncated []string `json:"truncated"`
}

// Start builds the schedule from enabled stored tasks and starts the cron
// loop. The build is capped at MaxTasks; tasks beyond the ceiling are
// reported, not executed.
func (s *Scheduler) Start() (*BuildReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil, ErrAlreadyRunning
	}

	report, err := s.buildLocked()
	if err != nil {
		return nil, err
	}

	s.cron.Start()
	s.running = true
	s.logger.Info().
		Int("scheduled", len(report.Scheduled)).
		Int("truncated", len(report.Truncated)).
		Msg("scheduler started")

	return report, nil
}

// Rebuild drops all entries and re-registers enabled tasks from the store.
func (s *Scheduler) Rebuild() (*BuildReport, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil, ErrNotRunning
	}
	return s.buildLocked()
}

// buildLocked registers enabled tasks up to the capacity ceiling.
// Caller must hold s.mu.
func (s *Scheduler) buildLocked() (*BuildReport, error) {
	for name, id := range s.entries {
		s.cron.Remove(id)
		delete(s.entries, name)
	}

	tasks, err := s.store.List()
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}

	report := &BuildReport{}
	for _, task := range tasks {
		if !task.Enabled {
			continue
		}
		if len(s.entries) >= s.maxTasks {
			report.Truncated = append(report.Truncated, task.Name)
			continue
		}
		if err := s.addEntryLocked(task); err != nil {
			s.logger.Error().Err(err).Str("task", task.Name).Msg("failed to register task")
			continue
		}
		report.Scheduled = append(report.Scheduled, task.Name)
	}

	if len(report.Truncated) > 0 {
		s.logger.Warn().
			Int("count", len(report.Truncated)).
			Strs("tasks", report.Truncated).
			Int("max_tasks", s.maxTasks).
			Msg("schedule build truncated at capacity")
	}
	return report, nil
}

// Stop halts the cron loop and waits for in-flight runs.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCtx := s.cron.Stop()
	s.running = false
	s.mu.Unlock()

	<-stopCtx.Done()
	s.wg.Wait()
	s.logger.Info().Msg("scheduler stopped")
}

// AddTask validates, persists and registers a new task.
func (s *Scheduler) AddTask(task *storage.Task) error {
	if err := ValidateSchedule(task.Schedule); err != nil {
		return err
	}
	if err := s.store.Create(task); err != nil {
		return fmt.Errorf("create task: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running && task.Enabled {
		if len(s.entries) >= s.maxTasks {
			s.logger.Warn().Str("task", task.Name).Int("max_tasks", s.maxTasks).
				Msg("task stored but not scheduled, capacity reached")
			return nil
		}
		if err := s.addEntryLocked(task); err != nil {
			s.logger.Error().Err(err).Str("task", task.Name).Msg("failed to register new task")
		}
	}
	return nil
}

// UpdateTask validates, persists and re-registers an existing task.
func (s *Scheduler) UpdateTask(task *storage.Task) error {
	if err := ValidateSchedule(task.Schedule); err != nil {
		return err
	}
	if err := s.store.Update(task); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	if id, ok := s.entries[task.Name]; ok {
		s.cron.Remove(id)
		delete(s.entries, task.Name)
	}
	if task.Enabled && len(s.entries) < s.maxTasks {
		if err := s.addEntryLocked(task); err != nil {
			s.logger.Error().Err(err).Str("task", task.Name).Msg("failed to re-register task")
		}
	}
	return nil
}

// RemoveTask deletes a task from the schedule and the store.
func (s *Scheduler) RemoveTask(name string) error {
	s.mu.Lock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
	s.mu.Unlock()

	return s.store.Delete(name)
}

// RunNow executes a task immediately, outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) (*RunResult, error) {
	task, err := s.store.Get(name)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	if _, loaded := s.executing.LoadOrStore(name, start); loaded {
		return nil, fmt.Errorf("%w: %s", ErrTaskRunning, name)
	}
	defer s.executing.Delete(name)

	s.wg.Add(1)
	defer s.wg.Done()

	return s.executor.Execute(ctx, task), nil
}

// NextRun returns the next scheduled run time for a task.
func (s *Scheduler) NextRun(name string) (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.entries[name]
	if !ok {
		return time.Time{}, false
	}
	entry := s.cron.Entry(id)
	if entry.ID == 0 {
		return time.Time{}, false
	}
	return entry.Next, true
}

// Entries returns the number of registered cron entries.
func (s *Scheduler) Entries() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// addEntryLocked registers a task with the cron runtime.
// Caller must hold s.mu.
func (s *Scheduler) addEntryLocked(task *storage.Task) error {
	name := task.Name
	id, err := s.cron.AddFunc(NormalizeSchedule(task.Schedule), func() {
		s.runTask(name)
	})
	if err != nil {
		return fmt.Errorf("add cron entry: %w", err)
	}
	s.entries[name] = id
	return nil
}

// runTask executes one scheduled firing with overlap suppression. The task is
// reloaded so edits between firings take effect.
func (s *Scheduler) runTask(name string) {
	start := time.Now()
	if prev, loaded := s.executing.LoadOrStore(name, start); loaded {
		s.logger.Warn().
			Str("task", name).
			Time("previous_start", prev.(time.Time)).
			Msg("skipping overlapping run, previous still active")
		return
	}
	defer s.executing.Delete(name)

	s.wg.Add(1)
	defer s.wg.Done()

	task, err := s.store.Get(name)
	if err != nil {
		s.logger.Error().Err(err).Str("task", name).Msg("failed to reload task")
		return
	}
	if !task.Enabled {
		s.logger.Debug().Str("task", name).Msg("skipping disabled task")
		return
	}

	s.logger.Info().Str("task", name).Msg("executing scheduled task")
	s.executor.Execute(context.Background(), task)
}

// NormalizeSchedule widens a standard 5-field expression to the 6-field form
// the seconds-aware cron runtime expects. 6-field expressions pass through.
func NormalizeSchedule(schedule string) string {
	if len(strings.Fields(schedule)) == 5 {
		return "0 " + schedule
	}
	return schedule
}

// ValidateSchedule checks a cron expression in either 5- or 6-field form.
func ValidateSchedule(schedule string) error {
	parser := cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	if _, err := parser.Parse(NormalizeSchedule(schedule)); err != nil {
		return fmt.Errorf("%w: %q: %v", ErrInvalidSchedule, schedule, err)
	}
	return nil
}
