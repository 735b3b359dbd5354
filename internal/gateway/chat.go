package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"axon/internal/approval"
	"axon/internal/gateway/handlers"
	"axon/internal/runner"
	"axon/pkg/logger"
)

// chatAgentRequest is the body of POST /api/v1/chat/agent.
type chatAgentRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
	Provider  string `json:"provider,omitempty"`
}

// handleChatAgent runs an agent turn and streams its events as SSE.
func (s *Server) handleChatAgent(w http.ResponseWriter, r *http.Request) {
	var body chatAgentRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if body.Message == "" {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "message is required")
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		handlers.SendError(w, http.StatusInternalServerError, handlers.ErrCodeInternalError, "streaming not supported")
		return
	}

	events, err := s.orchestrator.RunTurn(r.Context(), runner.TurnRequest{
		SessionID: body.SessionID,
		Message:   body.Message,
		Provider:  body.Provider,
	})
	if err != nil {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for event := range events {
		if event.Type == runner.EventDone {
			s.recordSession(event.SessionID, "web")
		}
		data, err := event.Marshal()
		if err != nil {
			logger.Warn().Err(err).Str("type", string(event.Type)).Msg("failed to marshal event")
			continue
		}
		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			// Client went away; drain remaining events so the turn
			// finishes cleanly.
			for ev := range events {
				if ev.Type == runner.EventDone {
					s.recordSession(ev.SessionID, "web")
				}
			}
			return
		}
		flusher.Flush()
	}
}

// handleApprove resolves a pending approval request.
// First resolver wins: 200 on success, 409 when another decision won first,
// 404 for unknown or expired ids.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	decision, ok := approval.ParseDecision(r.URL.Query().Get("decision"))
	if !ok {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest,
			"decision must be one of once, session, never")
		return
	}

	switch s.broker.Resolve(id, decision) {
	case approval.Resolved:
		handlers.SendJSON(w, http.StatusOK, map[string]string{
			"id":       id,
			"status":   "resolved",
			"decision": string(decision),
		})
	case approval.AlreadyResolved:
		handlers.SendError(w, http.StatusConflict, handlers.ErrCodeConflict, "request already resolved")
	case approval.NotFound:
		handlers.SendError(w, http.StatusNotFound, handlers.ErrCodeNotFound, "request not found or expired")
	}
}

// handleListApprovals returns all pending approval requests.
func (s *Server) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	pending := s.broker.ListPending()
	if pending == nil {
		pending = []*approval.Request{}
	}
	handlers.SendJSON(w, http.StatusOK, map[string]any{"approvals": pending})
}
