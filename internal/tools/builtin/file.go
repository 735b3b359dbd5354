package builtin

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"axon/internal/approval"
	"axon/internal/tools"
)

// maxReadSize bounds how much of a file read_file returns.
const maxReadSize = 256 * 1024

// ReadFileTool reads a file from the local filesystem.
type ReadFileTool struct{}

// NewReadFileTool creates a file read tool.
func NewReadFileTool() *ReadFileTool { return &ReadFileTool{} }

func (t *ReadFileTool) Name() string { return "read_file" }

func (t *ReadFileTool) Description() string {
	return "Read the contents of a file from the local filesystem."
}

func (t *ReadFileTool) Risk() approval.RiskLevel { return approval.RiskLow }

func (t *ReadFileTool) Parameters() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path of the file to read",
		},
	}, "path")
}

func (t *ReadFileTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return tools.NewErrorResult("missing required argument: path"),
			tools.NewInvalidArgsError(t.Name(), "path is required")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("read failed: %v", err)), nil
	}
	if len(data) > maxReadSize {
		data = data[:maxReadSize]
		return tools.NewSuccessResult(fmt.Sprintf("%s\n... (truncated at %d bytes)", data, maxReadSize)), nil
	}
	return tools.NewSuccessResult(string(data)), nil
}

// WriteFileTool writes content to a file, creating parent directories as
// needed.
type WriteFileTool struct{}

// NewWriteFileTool creates a file write tool.
func NewWriteFileTool() *WriteFileTool { return &WriteFileTool{} }

func (t *WriteFileTool) Name() string { return "write_file" }

func (t *WriteFileTool) Description() string {
	return "Write content to a file on the local filesystem, replacing any existing content."
}

func (t *WriteFileTool) Risk() approval.RiskLevel { return approval.RiskHigh }

func (t *WriteFileTool) Parameters() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"path": map[string]any{
			"type":        "string",
			"description": "Path of the file to write",
		},
		"content": map[string]any{
			"type":        "string",
			"description": "Content to write",
		},
	}, "path", "content")
}

func (t *WriteFileTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	path, ok := stringArg(args, "path")
	if !ok || path == "" {
		return tools.NewErrorResult("missing required argument: path"),
			tools.NewInvalidArgsError(t.Name(), "path is required")
	}
	content, ok := stringArg(args, "content")
	if !ok {
		return tools.NewErrorResult("missing required argument: content"),
			tools.NewInvalidArgsError(t.Name(), "content is required")
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return tools.NewErrorResult(fmt.Sprintf("create directory: %v", err)), nil
		}
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return tools.NewErrorResult(fmt.Sprintf("write failed: %v", err)), nil
	}
	return tools.NewSuccessResult(fmt.Sprintf("wrote %d bytes to %s", len(content), path)), nil
}
