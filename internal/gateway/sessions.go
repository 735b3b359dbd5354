package gateway

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"axon/internal/gateway/handlers"
	"axon/internal/storage"
	"axon/pkg/logger"
)

// recordSession upserts the session row for a completed chat turn.
func (s *Server) recordSession(id, channel string) {
	if s.sessions == nil || id == "" {
		return
	}
	if err := s.sessions.Touch(id); err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			logger.Warn().Err(err).Str("session_id", id).Msg("failed to touch session")
			return
		}
		if _, err := s.sessions.Create(id, channel); err != nil {
			logger.Warn().Err(err).Str("session_id", id).Msg("failed to record session")
		}
	}
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		handlers.SendError(w, http.StatusServiceUnavailable,
			handlers.ErrCodeServiceUnavailable, "session store is disabled")
		return
	}

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}

	sessions, err := s.sessions.List(limit)
	if err != nil {
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to list sessions")
		return
	}
	if sessions == nil {
		sessions = []*storage.Session{}
	}
	handlers.SendJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

// handleDeleteSession drops a session's transcript, cached permissions and
// its stored row.
func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if s.sessions == nil {
		handlers.SendError(w, http.StatusServiceUnavailable,
			handlers.ErrCodeServiceUnavailable, "session store is disabled")
		return
	}

	id := mux.Vars(r)["id"]
	s.orchestrator.ClearSession(id)

	if err := s.sessions.Delete(id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "session not found")
			return
		}
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "failed to delete session")
		return
	}
	handlers.SendJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
