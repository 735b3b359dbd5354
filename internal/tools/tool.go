// Package tools defines the Tool interface and the registry the orchestrator
// executes approved tool calls through.
package tools

import (
	"context"

	"axon/internal/approval"
)

// Tool defines the interface that all tools must implement.
// A tool is a side-effecting capability an agent can invoke on behalf of a
// human; its declared risk level drives approval prompting and the
// scheduler's auto-decision policy.
type Tool interface {
	// Name returns the unique identifier for this tool.
	Name() string

	// Description returns a human-readable description of what this tool does.
	Description() string

	// Risk returns the declared sensitivity of this tool.
	Risk() approval.RiskLevel

	// Parameters returns the JSON Schema for the tool's input parameters.
	Parameters() map[string]any

	// Execute runs the tool with the given arguments.
	Execute(ctx context.Context, args map[string]any) (Result, error)
}

// Result represents the result of a tool execution.
type Result struct {
	// Content is the main output of the tool, typically text.
	Content string `json:"content"`

	// IsError indicates whether this result represents an error condition.
	IsError bool `json:"is_error"`
}

// NewSuccessResult creates a successful tool result with the given content.
func NewSuccessResult(content string) Result {
	return Result{Content: content}
}

// NewErrorResult creates an error tool result with the given error message.
func NewErrorResult(errMsg string) Result {
	return Result{Content: errMsg, IsError: true}
}

// ObjectSchema builds a JSON Schema object from property definitions.
func ObjectSchema(properties map[string]any, required ...string) map[string]any {
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}
