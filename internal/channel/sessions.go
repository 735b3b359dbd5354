package channel

import (
	"sync"
)

// Sessions maps an adapter's conversation ids (Discord channel, Telegram
// chat) to agent session ids. Sessions are assigned by the gateway: a
// conversation's first turn runs without one and adopts the id from the done
// event; it then holds that session until the user starts a new one.
type Sessions struct {
	mu       sync.Mutex
	sessions map[string]string
}

// NewSessions creates an empty conversation-session map.
func NewSessions() *Sessions {
	return &Sessions{sessions: make(map[string]string)}
}

// Set adopts a server-assigned session id for a conversation.
func (s *Sessions) Set(conversationID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[conversationID] = sessionID
}

// Get returns the current session for a conversation, if any.
func (s *Sessions) Get(conversationID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.sessions[conversationID]
	return id, ok
}

// Reset drops the conversation's session so the next message starts fresh.
// Returns the dropped session id, if there was one.
func (s *Sessions) Reset(conversationID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.sessions[conversationID]
	delete(s.sessions, conversationID)
	return id, ok
}
