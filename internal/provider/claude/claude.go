// Package claude implements the Provider interface for the Anthropic API.
package claude

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"axon/internal/provider"
)

// Defaults.
const (
	DefaultEndpoint  = "https://api.anthropic.com"
	DefaultModel     = "claude-sonnet-4-20250514"
	DefaultMaxTokens = 4096
	DefaultTimeout   = 120 * time.Second

	apiVersion = "2023-06-01"
)

// Error definitions.
var (
	ErrRequestFailed   = errors.New("claude: request failed")
	ErrInvalidResponse = errors.New("claude: invalid response")
)

// Client implements the Provider interface for Anthropic Claude.
type Client struct {
	mu       sync.RWMutex
	endpoint string
	apiKey   string
	model    string

	httpClient *http.Client
}

// New creates a new Claude provider client.
func New(settings provider.Settings) provider.Provider {
	if settings.Endpoint == "" {
		settings.Endpoint = DefaultEndpoint
	}
	if settings.Model == "" {
		settings.Model = DefaultModel
	}
	return &Client{
		endpoint: settings.Endpoint,
		apiKey:   settings.APIKey,
		model:    settings.Model,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return provider.KindClaude
}

// UpdateConfig rewrites api key and model in place.
func (c *Client) UpdateConfig(settings provider.Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if settings.Endpoint != "" {
		c.endpoint = settings.Endpoint
	}
	if settings.APIKey != "" {
		c.apiKey = settings.APIKey
	}
	if settings.Model != "" {
		c.model = settings.Model
	}
}

func (c *Client) config() (endpoint, apiKey, model string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint, c.apiKey, c.model
}

// Messages API wire types.

type messagesRequest struct {
	Model     string          `json:"model"`
	MaxTokens int             `json:"max_tokens"`
	System    string          `json:"system,omitempty"`
	Messages  []apiMessage    `json:"messages"`
	Tools     []apiTool       `json:"tools,omitempty"`
	Temp      float64         `json:"temperature,omitempty"`
}

type apiMessage struct {
	Role    string         `json:"role"`
	Content []contentBlock `json:"content"`
}

type contentBlock struct {
	Type string `json:"type"`

	// type == "text"
	Text string `json:"text,omitempty"`

	// type == "tool_use"
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// type == "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type apiTool struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"input_schema,omitempty"`
}

type messagesResponse struct {
	Content    []contentBlock `json:"content"`
	StopReason string         `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Chat sends a messages request and returns the response.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	endpoint, apiKey, model := c.config()
	if apiKey == "" {
		return nil, provider.ErrNotConfigured
	}
	if req.Model != "" {
		model = req.Model
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	system, messages := toAPIMessages(req.Messages)
	body := messagesRequest{
		Model:     model,
		MaxTokens: maxTokens,
		System:    system,
		Messages:  messages,
		Tools:     toAPITools(req.Tools),
		Temp:      req.Temperature,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d: %s", ErrRequestFailed, resp.StatusCode, truncate(string(data), 200))
	}

	var apiResp messagesResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}

	out := &provider.ChatResponse{
		Usage: &provider.Usage{
			PromptTokens:     apiResp.Usage.InputTokens,
			CompletionTokens: apiResp.Usage.OutputTokens,
			TotalTokens:      apiResp.Usage.InputTokens + apiResp.Usage.OutputTokens,
		},
		FinishReason: provider.FinishReasonStop,
	}

	for _, block := range apiResp.Content {
		switch block.Type {
		case "text":
			out.Content += block.Text
		case "tool_use":
			out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: string(block.Input),
			})
		}
	}
	if apiResp.StopReason == "tool_use" || len(out.ToolCalls) > 0 {
		out.FinishReason = provider.FinishReasonToolCalls
	}

	return out, nil
}

// HealthCheck verifies credentials against the models endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint, apiKey, _ := c.config()
	if apiKey == "" {
		return provider.ErrNotConfigured
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/v1/models", nil)
	if err != nil {
		return err
	}
	httpReq.Header.Set("x-api-key", apiKey)
	httpReq.Header.Set("anthropic-version", apiVersion)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrRequestFailed, resp.StatusCode)
	}
	return nil
}

// toAPIMessages splits out the system prompt and folds tool results into the
// content-block shape the messages API expects.
func toAPIMessages(messages []provider.Message) (string, []apiMessage) {
	var system string
	result := make([]apiMessage, 0, len(messages))

	for _, m := range messages {
		switch m.Role {
		case provider.RoleSystem:
			system = m.Content
		case provider.RoleTool:
			result = append(result, apiMessage{
				Role: "user",
				Content: []contentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case provider.RoleAssistant:
			blocks := []contentBlock{}
			if m.Content != "" {
				blocks = append(blocks, contentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				blocks = append(blocks, contentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: json.RawMessage(tc.Arguments),
				})
			}
			result = append(result, apiMessage{Role: "assistant", Content: blocks})
		default:
			result = append(result, apiMessage{
				Role:    "user",
				Content: []contentBlock{{Type: "text", Text: m.Content}},
			})
		}
	}
	return system, result
}

func toAPITools(tools []provider.Tool) []apiTool {
	result := make([]apiTool, 0, len(tools))
	for _, t := range tools {
		result = append(result, apiTool{
			Name:        t.Function.Name,
			Description: t.Function.Description,
			InputSchema: t.Function.Parameters,
		})
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
