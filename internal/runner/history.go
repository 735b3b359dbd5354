package runner

import (
	"sync"

	"axon/internal/provider"
)

// historyStore keeps per-session conversation transcripts in memory. A
// session's transcript grows turn by turn and is dropped when the session is
// cleared.
type historyStore struct {
	mu       sync.Mutex
	sessions map[string][]provider.Message
}

func newHistoryStore() *historyStore {
	return &historyStore{
		sessions: make(map[string][]provider.Message),
	}
}

// snapshot returns a copy of the session transcript.
func (h *historyStore) snapshot(sessionID string) []provider.Message {
	h.mu.Lock()
	defer h.mu.Unlock()

	src := h.sessions[sessionID]
	out := make([]provider.Message, len(src))
	copy(out, src)
	return out
}

// replace stores the updated transcript for the session.
func (h *historyStore) replace(sessionID string, messages []provider.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessions[sessionID] = messages
}

// clear drops the session transcript.
func (h *historyStore) clear(sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sessions, sessionID)
}
