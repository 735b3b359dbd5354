package websocket

import "encoding/json"

// Message types exchanged with WebSocket clients.
const (
	// Server to client.
	TypeApprovalRequest  = "approval_request"
	TypeApprovalResolved = "approval_resolved"
	TypePong             = "pong"
	TypeError            = "error"

	// Client to server.
	TypeApprovalResponse = "approval_response"
	TypePing             = "ping"
)

// Message is the wire envelope for WebSocket traffic.
type Message struct {
	Type string `json:"type"`

	// Data carries the payload for server-originated messages.
	Data json.RawMessage `json:"data,omitempty"`

	// RequestID and Decision carry an approval response from the client.
	RequestID string `json:"request_id,omitempty"`
	Decision  string `json:"decision,omitempty"`

	// Code and Text carry error details.
	Code string `json:"code,omitempty"`
	Text string `json:"text,omitempty"`
}
