// Package runner drives a single agent turn: provider chat, tool-call
// approval, tool execution and the ordered event stream the channels render.
package runner

import (
	"encoding/json"

	"axon/internal/approval"
)

// EventType identifies the kind of a turn event.
type EventType string

const (
	// EventText carries a chunk of assistant text.
	EventText EventType = "text"

	// EventToolRequest announces a pending approval request.
	EventToolRequest EventType = "tool_request"

	// EventToolResult carries the output of an executed tool call.
	EventToolResult EventType = "tool_result"

	// EventToolRejected reports a denied tool call.
	EventToolRejected EventType = "tool_rejected"

	// EventDone terminates the turn stream.
	EventDone EventType = "done"
)

// Event is a single entry in a turn's ordered event stream. Fields are
// populated according to Type; the zero values are omitted on the wire.
type Event struct {
	Type EventType `json:"type"`

	// text
	Content string `json:"content,omitempty"`

	// tool_request / tool_result / tool_rejected
	Tool string `json:"tool,omitempty"`

	// tool_request
	Params      map[string]any `json:"params,omitempty"`
	Description string         `json:"description,omitempty"`
	Risk        string         `json:"risk_level,omitempty"`

	// tool_request; echoed on the terminal tool_result/tool_rejected when an
	// approval was registered, so consumers can retire their prompt.
	ApprovalID string `json:"approval_id,omitempty"`

	// tool_result
	Result          string `json:"result,omitempty"`
	ExecutionTimeMS int64  `json:"execution_time_ms,omitempty"`

	// done
	SessionID string `json:"session_id,omitempty"`
}

// Marshal renders the event as its JSON wire form.
func (e Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

func textEvent(content string) Event {
	return Event{Type: EventText, Content: content}
}

func toolRequestEvent(req *approval.Request) Event {
	return Event{
		Type:        EventToolRequest,
		Tool:        req.Tool,
		Params:      req.ParamMap(),
		Description: req.Description,
		Risk:        string(req.Risk),
		ApprovalID:  req.ID,
	}
}

func toolResultEvent(tool, approvalID, result string, elapsedMS int64) Event {
	return Event{
		Type:            EventToolResult,
		Tool:            tool,
		ApprovalID:      approvalID,
		Result:          result,
		ExecutionTimeMS: elapsedMS,
	}
}

func toolRejectedEvent(tool, approvalID string) Event {
	return Event{Type: EventToolRejected, Tool: tool, ApprovalID: approvalID}
}

func doneEvent(sessionID string) Event {
	return Event{Type: EventDone, SessionID: sessionID}
}
