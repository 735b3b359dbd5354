// Package approval provides the tool-call approval broker: pending requests
// are registered by an in-flight agent turn and resolved exactly once by
// whichever channel delivers a decision first.
package approval

import (
	"time"
)

// Decision represents the outcome of an approval request.
type Decision string

const (
	// DecisionOnce allows the tool call a single time; never cached.
	DecisionOnce Decision = "once"

	// DecisionSession allows the tool for the rest of the session.
	DecisionSession Decision = "session"

	// DecisionNever denies the tool for the rest of the session.
	DecisionNever Decision = "never"

	// DecisionRejected denies this tool call only.
	DecisionRejected Decision = "rejected"

	// DecisionTimeout is synthesized when no decision arrives before the
	// deadline. Treated as a denial, reported distinctly for audit.
	DecisionTimeout Decision = "timeout"
)

// Allows reports whether the decision permits executing the tool.
func (d Decision) Allows() bool {
	return d == DecisionOnce || d == DecisionSession
}

// ParseDecision validates a decision submitted by a channel.
// Only human-originated decisions are accepted; rejected and timeout
// are system-asserted and cannot be posted from outside.
func ParseDecision(s string) (Decision, bool) {
	switch Decision(s) {
	case DecisionOnce, DecisionSession, DecisionNever:
		return Decision(s), true
	}
	return "", false
}

// RiskLevel is the declared sensitivity of a tool.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// Param is a single named tool parameter. Parameters keep their original
// order so prompts render them the way the model supplied them.
type Param struct {
	Key   string `json:"key"`
	Value any    `json:"value"`
}

// Request represents a pending approval request.
type Request struct {
	// ID is the unique identifier for this request, generated at creation.
	ID string `json:"id"`

	// Tool is the name of the tool being called.
	Tool string `json:"tool"`

	// Params contains the ordered tool parameters.
	Params []Param `json:"params"`

	// Description is the human-readable explanation of the call.
	Description string `json:"description"`

	// Risk is the declared risk level of the tool.
	Risk RiskLevel `json:"risk_level"`

	// SessionID is the session this request belongs to.
	SessionID string `json:"session_id"`

	// CreatedAt is when the request was created.
	CreatedAt time.Time `json:"created_at"`

	// ExpiresAt is when the request will time out.
	ExpiresAt time.Time `json:"expires_at"`
}

// ParamMap returns the parameters as a map for JSON event payloads.
func (r *Request) ParamMap() map[string]any {
	m := make(map[string]any, len(r.Params))
	for _, p := range r.Params {
		m[p.Key] = p.Value
	}
	return m
}

// ResolveStatus is the outcome of a Resolve call.
type ResolveStatus int

const (
	// Resolved means this caller's decision won and was delivered.
	Resolved ResolveStatus = iota

	// AlreadyResolved means another decision won first; the call is a no-op.
	AlreadyResolved

	// NotFound means the id never existed or already timed out and was purged.
	NotFound
)

func (s ResolveStatus) String() string {
	switch s {
	case Resolved:
		return "resolved"
	case AlreadyResolved:
		return "already_resolved"
	case NotFound:
		return "not_found"
	}
	return "unknown"
}

// Resolution is the audit snapshot produced for every resolved request,
// including timeouts.
type Resolution struct {
	Request   *Request      `json:"request"`
	Decision  Decision      `json:"decision"`
	DecidedAt time.Time     `json:"decided_at"`
	Latency   time.Duration `json:"latency"`
}

// AuditSink records approval resolutions. Writes are best-effort: a sink
// failure is logged by the broker and never blocks the orchestrated action.
type AuditSink interface {
	RecordResolution(res *Resolution) error
}

// Notifier pushes approval lifecycle events to connected UIs.
type Notifier interface {
	NotifyRequest(req *Request) error
	NotifyResolved(req *Request, decision Decision) error
}
