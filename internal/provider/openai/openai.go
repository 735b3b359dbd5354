// Package openai implements the Provider interface for the OpenAI API.
package openai

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
	DefaultEndpoint = "https://api.openai.com"
	DefaultModel    = "gpt-4o"
	DefaultTimeout  = 120 * time.Second
)

// Error definitions.
var (
	ErrRequestFailed   = errors.New("openai: request failed")
	ErrInvalidResponse = errors.New("openai: invalid response")
)

// Client implements the Provider interface for OpenAI.
type Client struct {
	mu       sync.RWMutex
	endpoint string
	apiKey   string
	model    string

	httpClient *http.Client
}

// New creates a new OpenAI provider client.
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
	return provider.KindOpenAI
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

// Chat completions wire types.

type completionsRequest struct {
	Model       string             `json:"model"`
	Messages    []apiMessage       `json:"messages"`
	Tools       []provider.Tool    `json:"tools,omitempty"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
}

type apiMessage struct {
	Role       string        `json:"role"`
	Content    string        `json:"content"`
	ToolCalls  []apiToolCall `json:"tool_calls,omitempty"`
	ToolCallID string        `json:"tool_call_id,omitempty"`
}

type apiToolCall struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type completionsResponse struct {
	Choices []struct {
		Message      apiMessage `json:"message"`
		FinishReason string     `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Chat sends a chat completion request and returns the response.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	endpoint, apiKey, model := c.config()
	if apiKey == "" {
		return nil, provider.ErrNotConfigured
	}
	if req.Model != "" {
		model = req.Model
	}

	body := completionsRequest{
		Model:       model,
		Messages:    toAPIMessages(req.Messages),
		Tools:       req.Tools,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

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

	var apiResp completionsResponse
	if err := json.Unmarshal(data, &apiResp); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if len(apiResp.Choices) == 0 {
		return nil, fmt.Errorf("%w: no choices", ErrInvalidResponse)
	}

	choice := apiResp.Choices[0]
	out := &provider.ChatResponse{
		Content: choice.Message.Content,
		Usage: &provider.Usage{
			PromptTokens:     apiResp.Usage.PromptTokens,
			CompletionTokens: apiResp.Usage.CompletionTokens,
			TotalTokens:      apiResp.Usage.TotalTokens,
		},
		FinishReason: choice.FinishReason,
	}
	for _, tc := range choice.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
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
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

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

func toAPIMessages(messages []provider.Message) []apiMessage {
	result := make([]apiMessage, 0, len(messages))
	for _, m := range messages {
		am := apiMessage{
			Role:       m.Role,
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			var atc apiToolCall
			atc.ID = tc.ID
			atc.Type = "function"
			atc.Function.Name = tc.Name
			atc.Function.Arguments = tc.Arguments
			am.ToolCalls = append(am.ToolCalls, atc)
		}
		result = append(result, am)
	}
	return result
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
