package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"axon/internal/gateway/handlers"
	"axon/internal/scheduler"
	"axon/internal/storage"
)

// taskPayload is the request body for creating or updating a task.
type taskPayload struct {
	Name           string `json:"name"`
	Schedule       string `json:"schedule"`
	Provider       string `json:"provider,omitempty"`
	Prompt         string `json:"prompt"`
	MaxSteps       int    `json:"max_steps,omitempty"`
	TimeoutSeconds int    `json:"timeout_seconds,omitempty"`
	Enabled        *bool  `json:"enabled,omitempty"`
}

// taskView is a task as rendered in API responses.
type taskView struct {
	Name           string     `json:"name"`
	Schedule       string     `json:"schedule"`
	Provider       string     `json:"provider,omitempty"`
	Prompt         string     `json:"prompt"`
	MaxSteps       int        `json:"max_steps,omitempty"`
	TimeoutSeconds int        `json:"timeout_seconds,omitempty"`
	Enabled        bool       `json:"enabled"`
	NextRun        *time.Time `json:"next_run,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s *Server) taskView(task *storage.Task) taskView {
	v := taskView{
		Name:           task.Name,
		Schedule:       task.Schedule,
		Provider:       task.Provider,
		Prompt:         task.Prompt,
		MaxSteps:       task.MaxSteps,
		TimeoutSeconds: int(task.Timeout.Seconds()),
		Enabled:        task.Enabled,
		CreatedAt:      task.CreatedAt,
		UpdatedAt:      task.UpdatedAt,
	}
	if s.scheduler != nil {
		if next, ok := s.scheduler.NextRun(task.Name); ok {
			v.NextRun = &next
		}
	}
	return v
}

// schedulerReady guards the scheduler endpoints when scheduling is disabled.
func (s *Server) schedulerReady(w http.ResponseWriter) bool {
	if s.scheduler == nil || s.tasks == nil {
		handlers.SendError(w, http.StatusServiceUnavailable,
			handlers.ErrCodeServiceUnavailable, "scheduler is disabled")
		return false
	}
	return true
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	if !s.schedulerReady(w) {
		return
	}

	tasks, err := s.tasks.List()
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to list tasks")
		return
	}

	views := make([]taskView, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, s.taskView(task))
	}
	handlers.SendJSON(w, http.StatusOK, map[string]any{"tasks": views})
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	if !s.schedulerReady(w) {
		return
	}

	var body taskPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if body.Name == "" || body.Schedule == "" || body.Prompt == "" {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest,
			"name, schedule and prompt are required")
		return
	}

	if _, err := s.tasks.Get(body.Name); err == nil {
		handlers.SendError(w, http.StatusConflict, handlers.ErrCodeConflict, "task already exists")
		return
	}

	enabled := true
	if body.Enabled != nil {
		enabled = *body.Enabled
	}
	task := &storage.Task{
		Name:     body.Name,
		Schedule: body.Schedule,
		Provider: body.Provider,
		Prompt:   body.Prompt,
		MaxSteps: body.MaxSteps,
		Timeout:  time.Duration(body.TimeoutSeconds) * time.Second,
		Enabled:  enabled,
	}

	if err := s.scheduler.AddTask(task); err != nil {
		if errors.Is(err, scheduler.ErrInvalidSchedule) {
			handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, err.Error())
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to create task")
		return
	}

	handlers.SendJSON(w, http.StatusCreated, s.taskView(task))
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	if !s.schedulerReady(w) {
		return
	}

	task, err := s.tasks.Get(mux.Vars(r)["name"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "task not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to load task")
		return
	}
	handlers.SendJSON(w, http.StatusOK, s.taskView(task))
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	if !s.schedulerReady(w) {
		return
	}

	task, err := s.tasks.Get(mux.Vars(r)["name"])
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "task not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to load task")
		return
	}

	var body taskPayload
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if body.Schedule != "" {
		task.Schedule = body.Schedule
	}
	if body.Provider != "" {
		task.Provider = body.Provider
	}
	if body.Prompt != "" {
		task.Prompt = body.Prompt
	}
	if body.MaxSteps > 0 {
		task.MaxSteps = body.MaxSteps
	}
	if body.TimeoutSeconds > 0 {
		task.Timeout = time.Duration(body.TimeoutSeconds) * time.Second
	}
	if body.Enabled != nil {
		task.Enabled = *body.Enabled
	}

	if err := s.scheduler.UpdateTask(task); err != nil {
		if errors.Is(err, scheduler.ErrInvalidSchedule) {
			handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, err.Error())
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to update task")
		return
	}

	handlers.SendJSON(w, http.StatusOK, s.taskView(task))
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	if !s.schedulerReady(w) {
		return
	}

	if err := s.scheduler.RemoveTask(mux.Vars(r)["name"]); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "task not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to delete task")
		return
	}
	handlers.SendJSON(w, http.StatusOK, map[string]any{"deleted": true})
}

func (s *Server) handleRunTask(w http.ResponseWriter, r *http.Request) {
	if !s.schedulerReady(w) {
		return
	}

	result, err := s.scheduler.RunNow(r.Context(), mux.Vars(r)["name"])
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrNotFound):
			handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "task not found")
		case errors.Is(err, scheduler.ErrTaskRunning):
			handlers.SendError(w, http.StatusConflict, handlers.ErrCodeConflict, "task is already running")
		default:
			handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to run task")
		}
		return
	}

	handlers.SendJSON(w, http.StatusOK, result.Run)
}

func (s *Server) handleTaskHistory(w http.ResponseWriter, r *http.Request) {
	if !s.schedulerReady(w) {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	runs, err := s.history.ListByTask(mux.Vars(r)["name"], limit)
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to load history")
		return
	}
	if runs == nil {
		runs = []*storage.TaskRun{}
	}
	handlers.SendJSON(w, http.StatusOK, map[string]any{"runs": runs})
}
