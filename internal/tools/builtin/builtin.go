// Package builtin provides the built-in tools shipped with the agent.
package builtin

import (
	"fmt"

	"axon/internal/tools"
)

// RegisterAll registers every built-in tool into the registry.
func RegisterAll(registry *tools.Registry, opts Options) error {
	all := []tools.Tool{
		NewShellTool(),
		NewReadFileTool(),
		NewWriteFileTool(),
		NewHTTPRequestTool(),
		NewSendEmailTool(opts.Mailer),
	}
	for _, t := range all {
		if err := registry.Register(t); err != nil {
			return fmt.Errorf("register %s: %w", t.Name(), err)
		}
	}
	return nil
}

// Options carries injectable dependencies for built-in tools.
type Options struct {
	// Mailer sends outbound mail for the send_email tool. When nil the tool
	// uses a plain SMTP sender configured via tool arguments.
	Mailer Mailer
}

// stringArg extracts a required string argument.
func stringArg(args map[string]any, key string) (string, bool) {
	v, ok := args[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// optionalStringArg extracts an optional string argument, returning the
// fallback when absent.
func optionalStringArg(args map[string]any, key, fallback string) string {
	if s, ok := stringArg(args, key); ok {
		return s
	}
	return fallback
}
