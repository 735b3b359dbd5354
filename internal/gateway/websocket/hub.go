// Package websocket pushes approval lifecycle events to connected web
// clients and accepts their decisions.
package websocket

import (
	"encoding/json"
	"sync"

	"axon/internal/approval"
	"axon/pkg/logger"
)

// ResolveFunc delivers a client decision to the approval broker.
type ResolveFunc func(id string, decision approval.Decision) approval.ResolveStatus

// Hub maintains the set of active clients and broadcasts approval events to
// all of them. It implements approval.Notifier.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	resolve ResolveFunc
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, 256),
		done:       make(chan struct{}),
	}
}

// SetResolver sets the callback used for client approval responses.
func (h *Hub) SetResolver(resolve ResolveFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.resolve = resolve
}

// Run starts the hub's main loop. It returns when Stop is called.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("websocket client connected")

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()
			logger.Info().Str("client_id", client.id).Msg("websocket client disconnected")

		case data := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					// Client buffer full, skip.
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop terminates the hub's main loop and disconnects all clients.
func (h *Hub) Stop() {
	close(h.done)

	h.mu.Lock()
	defer h.mu.Unlock()
	for client := range h.clients {
		close(client.send)
		delete(h.clients, client)
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// NotifyRequest broadcasts a newly registered approval request.
func (h *Hub) NotifyRequest(req *approval.Request) error {
	return h.broadcastTyped(TypeApprovalRequest, req)
}

// NotifyResolved broadcasts the resolution of an approval request.
func (h *Hub) NotifyResolved(req *approval.Request, decision approval.Decision) error {
	return h.broadcastTyped(TypeApprovalResolved, struct {
		ID       string            `json:"id"`
		Tool     string            `json:"tool"`
		Decision approval.Decision `json:"decision"`
	}{ID: req.ID, Tool: req.Tool, Decision: decision})
}

func (h *Hub) broadcastTyped(messageType string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	envelope, err := json.Marshal(Message{Type: messageType, Data: data})
	if err != nil {
		return err
	}

	select {
	case h.broadcast <- envelope:
	case <-h.done:
	}
	return nil
}

// handleResponse delivers a client decision through the resolver.
func (h *Hub) handleResponse(id string, decision approval.Decision) approval.ResolveStatus {
	h.mu.RLock()
	resolve := h.resolve
	h.mu.RUnlock()

	if resolve == nil {
		logger.Warn().Str("request_id", id).Msg("approval response received but no resolver configured")
		return approval.NotFound
	}
	return resolve(id, decision)
}
