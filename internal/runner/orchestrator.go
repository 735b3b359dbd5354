package runner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"axon/internal/approval"
	"axon/internal/permission"
	"axon/internal/provider"
	"axon/internal/tools"
)

// Defaults.
const (
	DefaultMaxIterations = 10
	DefaultSystemPrompt  = "You are a helpful assistant with access to tools. " +
		"Use tools when they help answer the user; otherwise reply directly."
)

// eventBuffer sizes the per-turn event channel. Emission also honors ctx so a
// vanished consumer never wedges a turn.
const eventBuffer = 32

// Orchestrator runs agent turns. It owns the conversation transcripts, the
// permission cache consultation and the per-tool-call approval flow; the
// event stream it produces is the single source of truth for what happened in
// a turn.
type Orchestrator struct {
	router   *provider.Router
	registry *tools.Registry
	cache    *permission.Cache
	policy   DecisionPolicy
	history  *historyStore
	logger   zerolog.Logger

	systemPrompt  string
	maxIterations int
}

// Config configures the Orchestrator.
type Config struct {
	// Policy decides tool calls when a turn does not override it.
	Policy DecisionPolicy

	// SystemPrompt seeds every new session transcript.
	SystemPrompt string

	// MaxIterations bounds provider round-trips within one turn.
	MaxIterations int
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(router *provider.Router, registry *tools.Registry, cache *permission.Cache, config *Config, logger zerolog.Logger) *Orchestrator {
	o := &Orchestrator{
		router:        router,
		registry:      registry,
		cache:         cache,
		history:       newHistoryStore(),
		logger:        logger.With().Str("component", "runner").Logger(),
		systemPrompt:  DefaultSystemPrompt,
		maxIterations: DefaultMaxIterations,
	}
	if config != nil {
		o.policy = config.Policy
		if config.SystemPrompt != "" {
			o.systemPrompt = config.SystemPrompt
		}
		if config.MaxIterations > 0 {
			o.maxIterations = config.MaxIterations
		}
	}
	return o
}

// TurnRequest describes a single agent turn.
type TurnRequest struct {
	// SessionID scopes the transcript and permission cache. Empty creates a
	// fresh session.
	SessionID string

	// Message is the user (or synthetic) input for this turn.
	Message string

	// Provider selects the provider kind; empty uses the router default.
	Provider string

	// Policy overrides the orchestrator's decision policy for this turn.
	Policy DecisionPolicy

	// MaxIterations overrides the round-trip bound for this turn.
	MaxIterations int
}

// Run executes a turn with the orchestrator's default policy and provider.
// The returned channel is closed after the done event.
func (o *Orchestrator) Run(ctx context.Context, sessionID, message string) (<-chan Event, error) {
	return o.RunTurn(ctx, TurnRequest{SessionID: sessionID, Message: message})
}

// RunTurn executes a turn. Events arrive strictly ordered; the stream always
// finishes with exactly one done event, whatever happened before it.
func (o *Orchestrator) RunTurn(ctx context.Context, req TurnRequest) (<-chan Event, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("runner: empty message")
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}
	policy := req.Policy
	if policy == nil {
		policy = o.policy
	}
	if policy == nil {
		return nil, fmt.Errorf("runner: no decision policy configured")
	}
	maxIterations := req.MaxIterations
	if maxIterations <= 0 {
		maxIterations = o.maxIterations
	}

	p, err := o.router.Get(req.Provider)
	if err != nil {
		return nil, err
	}

	events := make(chan Event, eventBuffer)
	go o.runTurn(ctx, req, p, policy, maxIterations, events)
	return events, nil
}

// ClearSession drops the session transcript and its remembered permissions.
func (o *Orchestrator) ClearSession(sessionID string) {
	o.history.clear(sessionID)
	o.cache.Clear(sessionID)
}

func (o *Orchestrator) runTurn(ctx context.Context, req TurnRequest, p provider.Provider, policy DecisionPolicy, maxIterations int, events chan<- Event) {
	defer close(events)

	logger := o.logger.With().Str("session_id", req.SessionID).Str("provider", p.Name()).Logger()
	logger.Info().Msg("turn started")

	emit := func(e Event) bool {
		select {
		case events <- e:
			return true
		case <-ctx.Done():
			return false
		}
	}

	messages := o.history.snapshot(req.SessionID)
	if len(messages) == 0 {
		messages = append(messages, provider.Message{Role: provider.RoleSystem, Content: o.systemPrompt})
	}
	messages = append(messages, provider.Message{Role: provider.RoleUser, Content: req.Message})

	defs := o.registry.Definitions()

	for iteration := 0; iteration < maxIterations; iteration++ {
		resp, err := p.Chat(ctx, provider.ChatRequest{
			Messages: messages,
			Tools:    defs,
		})
		if err != nil {
			logger.Error().Err(err).Msg("provider chat failed")
			emit(textEvent(fmt.Sprintf("Provider error: %v", err)))
			break
		}

		assistant := provider.Message{
			Role:      provider.RoleAssistant,
			Content:   resp.Content,
			ToolCalls: resp.ToolCalls,
		}
		messages = append(messages, assistant)

		if resp.Content != "" {
			if !emit(textEvent(resp.Content)) {
				break
			}
		}
		if len(resp.ToolCalls) == 0 {
			break
		}

		aborted := false
		for _, call := range resp.ToolCalls {
			resultMsg, ok := o.handleToolCall(ctx, req.SessionID, policy, call, emit, logger)
			if !ok {
				aborted = true
				break
			}
			resultMsg.ToolCallID = call.ID
			messages = append(messages, resultMsg)
		}
		if aborted {
			break
		}
	}

	o.history.replace(req.SessionID, messages)

	// Unconditional terminal event. When ctx is gone the send is best-effort
	// so a buffered consumer can still observe the turn boundary.
	select {
	case events <- doneEvent(req.SessionID):
	case <-ctx.Done():
		select {
		case events <- doneEvent(req.SessionID):
		default:
		}
	}
	logger.Info().Msg("turn finished")
}

// handleToolCall runs the full approval flow for one tool-call intent and
// returns the tool-role message to feed back to the model. ok is false when
// the turn should stop (context cancelled mid-wait).
func (o *Orchestrator) handleToolCall(ctx context.Context, sessionID string, policy DecisionPolicy, call provider.ToolCall, emit func(Event) bool, logger zerolog.Logger) (provider.Message, bool) {
	toolMsg := func(content string) provider.Message {
		return provider.Message{Role: provider.RoleTool, Content: content}
	}

	tool, err := o.registry.Get(call.Name)
	if err != nil {
		logger.Warn().Str("tool", call.Name).Msg("model requested unknown tool")
		if !emit(toolResultEvent(call.Name, "", "Error: unknown tool", 0)) {
			return provider.Message{}, false
		}
		return toolMsg(fmt.Sprintf("Error: unknown tool %q", call.Name)), true
	}

	params, args, err := parseArguments(call.Arguments)
	if err != nil {
		logger.Warn().Err(err).Str("tool", call.Name).Msg("malformed tool arguments")
		if !emit(toolResultEvent(call.Name, "", "Error: malformed arguments", 0)) {
			return provider.Message{}, false
		}
		return toolMsg(fmt.Sprintf("Error: malformed arguments: %v", err)), true
	}

	req := &approval.Request{
		Tool:        call.Name,
		Params:      params,
		Description: tool.Description(),
		Risk:        tool.Risk(),
		SessionID:   sessionID,
	}

	// Standing decisions answer without prompting: a remembered "session"
	// grant executes directly, a remembered "never" denies directly. Neither
	// path emits a tool_request.
	if cached, ok := o.cache.Lookup(sessionID, call.Name); ok {
		switch cached {
		case approval.DecisionSession:
			logger.Debug().Str("tool", call.Name).Msg("session grant hit")
			return o.executeTool(ctx, call.Name, "", args, emit, toolMsg)
		case approval.DecisionNever:
			logger.Debug().Str("tool", call.Name).Msg("standing denial hit")
			if !emit(toolRejectedEvent(call.Name, "")) {
				return provider.Message{}, false
			}
			return toolMsg("Tool call denied by user."), true
		}
	}

	decision, err := policy.Decide(ctx, req, func(id string) {
		emit(toolRequestEvent(req))
	})
	if err != nil {
		if ctx.Err() != nil {
			return provider.Message{}, false
		}
		logger.Warn().Err(err).Str("tool", call.Name).Msg("decision failed")
		if !emit(toolRejectedEvent(call.Name, req.ID)) {
			return provider.Message{}, false
		}
		return toolMsg(fmt.Sprintf("Tool call not permitted: %v", err)), true
	}

	o.cache.Remember(sessionID, call.Name, decision)

	if !decision.Allows() {
		logger.Info().Str("tool", call.Name).Str("decision", string(decision)).Msg("tool call denied")
		if !emit(toolRejectedEvent(call.Name, req.ID)) {
			return provider.Message{}, false
		}
		return toolMsg("Tool call denied by user."), true
	}

	return o.executeTool(ctx, call.Name, req.ID, args, emit, toolMsg)
}

// executeTool runs the tool and emits its terminal tool_result event.
// Execution failures become result text; they never abort the turn.
func (o *Orchestrator) executeTool(ctx context.Context, name, approvalID string, args map[string]any, emit func(Event) bool, toolMsg func(string) provider.Message) (provider.Message, bool) {
	start := time.Now()
	result, err := o.registry.Execute(ctx, name, args)
	elapsed := time.Since(start).Milliseconds()

	content := result.Content
	if err != nil && content == "" {
		content = fmt.Sprintf("Error: %v", err)
	}

	if !emit(toolResultEvent(name, approvalID, content, elapsed)) {
		return provider.Message{}, false
	}
	return toolMsg(content), true
}
