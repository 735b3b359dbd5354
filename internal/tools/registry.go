package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"axon/internal/provider"
)

// DefaultExecuteTimeout bounds a single tool execution.
const DefaultExecuteTimeout = 60 * time.Second

// Registry holds the set of tools available to the agent.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	timeout time.Duration
	logger  zerolog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		timeout: DefaultExecuteTimeout,
		logger:  logger.With().Str("component", "tools").Logger(),
	}
}

// SetTimeout overrides the per-execution timeout.
func (r *Registry) SetTimeout(d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d > 0 {
		r.timeout = d
	}
}

// Register adds a tool to the registry.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return NewInvalidArgsError("", "tool name is empty")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrToolExists, name)
	}
	r.tools[name] = t

	r.logger.Debug().Str("tool", name).Str("risk", string(t.Risk())).Msg("tool registered")
	return nil
}

// Get returns the tool with the given name.
func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	return t, nil
}

// List returns all registered tools sorted by name.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	result := make([]Tool, 0, len(names))
	for _, name := range names {
		result = append(result, r.tools[name])
	}
	return result
}

// Definitions renders all registered tools as provider tool definitions.
func (r *Registry) Definitions() []provider.Tool {
	list := r.List()
	result := make([]provider.Tool, 0, len(list))
	for _, t := range list {
		schema, err := json.Marshal(t.Parameters())
		if err != nil {
			// A tool with an unmarshalable schema is a programming error;
			// skip it rather than poison the whole request.
			r.logger.Error().Err(err).Str("tool", t.Name()).Msg("failed to marshal tool schema")
			continue
		}
		result = append(result, provider.Tool{
			Type: "function",
			Function: provider.ToolFunction{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  schema,
			},
		})
	}
	return result
}

// Execute runs a registered tool with a bounded timeout. Panics inside the
// tool are recovered and surfaced as an error result so one misbehaving tool
// cannot take down an agent turn.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (result Result, err error) {
	t, err := r.Get(name)
	if err != nil {
		return NewErrorResult(err.Error()), err
	}

	r.mu.RLock()
	timeout := r.timeout
	r.mu.RUnlock()

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tools: %s panicked: %v", name, rec)
			result = NewErrorResult(err.Error())
			r.logger.Error().Str("tool", name).Interface("panic", rec).Msg("tool panicked")
		}
	}()

	start := time.Now()
	result, err = t.Execute(execCtx, args)
	elapsed := time.Since(start)

	evt := r.logger.Debug().Str("tool", name).Dur("elapsed", elapsed)
	if err != nil {
		evt = r.logger.Warn().Str("tool", name).Dur("elapsed", elapsed).Err(err)
	}
	evt.Msg("tool executed")

	return result, err
}
