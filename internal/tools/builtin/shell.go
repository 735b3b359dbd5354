package builtin

import (
	"context"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"axon/internal/approval"
	"axon/internal/tools"
)

// ShellTool executes shell commands on the host.
type ShellTool struct {
	timeout time.Duration
}

// NewShellTool creates a shell execution tool with the default timeout.
func NewShellTool() *ShellTool {
	return &ShellTool{timeout: 60 * time.Second}
}

func (t *ShellTool) Name() string { return "shell_execute" }

func (t *ShellTool) Description() string {
	return "Execute a shell command on the host and return its combined output."
}

func (t *ShellTool) Risk() approval.RiskLevel { return approval.RiskCritical }

func (t *ShellTool) Parameters() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"command": map[string]any{
			"type":        "string",
			"description": "The shell command to execute",
		},
		"working_dir": map[string]any{
			"type":        "string",
			"description": "Working directory for the command (optional)",
		},
	}, "command")
}

// Execute runs the command through the platform shell.
func (t *ShellTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	command, ok := stringArg(args, "command")
	if !ok || strings.TrimSpace(command) == "" {
		return tools.NewErrorResult("missing required argument: command"),
			tools.NewInvalidArgsError(t.Name(), "command is required")
	}

	execCtx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	var cmd *exec.Cmd
	if runtime.GOOS == "windows" {
		cmd = exec.CommandContext(execCtx, "cmd", "/C", command)
	} else {
		cmd = exec.CommandContext(execCtx, "sh", "-c", command)
	}
	if dir := optionalStringArg(args, "working_dir", ""); dir != "" {
		cmd.Dir = dir
	}

	output, err := cmd.CombinedOutput()
	if execCtx.Err() == context.DeadlineExceeded {
		return tools.NewErrorResult(fmt.Sprintf("command timed out after %s", t.timeout)), nil
	}
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("command failed: %v\n%s", err, output)), nil
	}

	out := string(output)
	if out == "" {
		out = "(no output)"
	}
	return tools.NewSuccessResult(out), nil
}
