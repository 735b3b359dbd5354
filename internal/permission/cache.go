// Package permission provides the session-scoped permission cache. A cached
// "session" or "never" decision answers repeated requests for the same tool
// without re-prompting; one-shot decisions are never stored.
package permission

import (
	"sync"

	"axon/internal/approval"
)

// Cache maps (session id, tool name) to a standing decision. Safe for
// concurrent use across turns of different sessions; a single session has at
// most one active turn at a time.
type Cache struct {
	mu       sync.RWMutex
	sessions map[string]map[string]approval.Decision
}

// NewCache creates an empty permission cache.
func NewCache() *Cache {
	return &Cache{
		sessions: make(map[string]map[string]approval.Decision),
	}
}

// Lookup returns the remembered decision for the tool in this session.
// Always reflects the most recently remembered decision.
func (c *Cache) Lookup(sessionID, tool string) (approval.Decision, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools, ok := c.sessions[sessionID]
	if !ok {
		return "", false
	}
	d, ok := tools[tool]
	return d, ok
}

// Remember stores the decision for the session's lifetime. Only "session"
// and "never" persist; "once", "rejected" and "timeout" are one-shot and
// silently dropped.
func (c *Cache) Remember(sessionID, tool string, decision approval.Decision) {
	if decision != approval.DecisionSession && decision != approval.DecisionNever {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tools, ok := c.sessions[sessionID]
	if !ok {
		tools = make(map[string]approval.Decision)
		c.sessions[sessionID] = tools
	}
	tools[tool] = decision
}

// Clear drops all remembered decisions for the session. Invoked on session
// termination.
func (c *Cache) Clear(sessionID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
}

// Len returns the number of sessions with at least one remembered decision.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.sessions)
}
