// Package ollama implements the Provider interface for a local Ollama server.
package ollama

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
	DefaultEndpoint = "http://localhost:11434"
	DefaultModel    = "llama3.2"
	DefaultTimeout  = 120 * time.Second
)

// Error definitions.
var (
	ErrConnectionFailed = errors.New("ollama: failed to connect to server")
	ErrInvalidResponse  = errors.New("ollama: invalid response")
)

// Client implements the Provider interface for Ollama.
type Client struct {
	mu       sync.RWMutex
	endpoint string
	model    string

	httpClient *http.Client
}

// New creates a new Ollama provider client.
func New(settings provider.Settings) provider.Provider {
	if settings.Endpoint == "" {
		settings.Endpoint = DefaultEndpoint
	}
	if settings.Model == "" {
		settings.Model = DefaultModel
	}
	return &Client{
		endpoint: settings.Endpoint,
		model:    settings.Model,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return provider.KindOllama
}

// UpdateConfig rewrites endpoint and model in place.
func (c *Client) UpdateConfig(settings provider.Settings) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if settings.Endpoint != "" {
		c.endpoint = settings.Endpoint
	}
	if settings.Model != "" {
		c.model = settings.Model
	}
}

func (c *Client) config() (endpoint, model string) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endpoint, c.model
}

// chatRequest is the Ollama /api/chat request body.
type chatRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
	Tools    []chatTool    `json:"tools,omitempty"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatOptions struct {
	Temperature float64 `json:"temperature,omitempty"`
	NumPredict  int     `json:"num_predict,omitempty"`
}

type chatMessage struct {
	Role      string         `json:"role"`
	Content   string         `json:"content"`
	ToolCalls []chatToolCall `json:"tool_calls,omitempty"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type chatToolCall struct {
	Function struct {
		Name      string          `json:"name"`
		Arguments json.RawMessage `json:"arguments"`
	} `json:"function"`
}

// chatResponse is the Ollama /api/chat response body.
type chatResponse struct {
	Message         chatMessage `json:"message"`
	Done            bool        `json:"done"`
	DoneReason      string      `json:"done_reason,omitempty"`
	PromptEvalCount int         `json:"prompt_eval_count,omitempty"`
	EvalCount       int         `json:"eval_count,omitempty"`
}

// Chat sends a chat completion request and returns the response.
func (c *Client) Chat(ctx context.Context, req provider.ChatRequest) (*provider.ChatResponse, error) {
	endpoint, model := c.config()
	if req.Model != "" {
		model = req.Model
	}

	body := chatRequest{
		Model:    model,
		Messages: toOllamaMessages(req.Messages),
		Tools:    toOllamaTools(req.Tools),
		Stream:   false,
	}
	if req.Temperature > 0 || req.MaxTokens > 0 {
		body.Options = &chatOptions{
			Temperature: req.Temperature,
			NumPredict:  req.MaxTokens,
		}
	}

	var resp chatResponse
	if err := c.doJSON(ctx, http.MethodPost, endpoint+"/api/chat", body, &resp); err != nil {
		return nil, err
	}

	out := &provider.ChatResponse{
		Content: resp.Message.Content,
		Usage: &provider.Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
		FinishReason: provider.FinishReasonStop,
	}

	for i, tc := range resp.Message.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, provider.ToolCall{
			ID:        fmt.Sprintf("call_%d", i),
			Name:      tc.Function.Name,
			Arguments: string(tc.Function.Arguments),
		})
	}
	if len(out.ToolCalls) > 0 {
		out.FinishReason = provider.FinishReasonToolCalls
	}

	return out, nil
}

// HealthCheck probes the /api/tags endpoint.
func (c *Client) HealthCheck(ctx context.Context) error {
	endpoint, _ := c.config()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"/api/tags", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrInvalidResponse, resp.StatusCode)
	}
	return nil
}

// doJSON posts a JSON body and decodes a JSON response.
func (c *Client) doJSON(ctx context.Context, method, url string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrConnectionFailed, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d: %s", ErrInvalidResponse, resp.StatusCode, truncate(string(data), 200))
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	return nil
}

func toOllamaMessages(messages []provider.Message) []chatMessage {
	result := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		cm := chatMessage{Role: m.Role, Content: m.Content}
		for _, tc := range m.ToolCalls {
			var otc chatToolCall
			otc.Function.Name = tc.Name
			otc.Function.Arguments = json.RawMessage(tc.Arguments)
			cm.ToolCalls = append(cm.ToolCalls, otc)
		}
		result = append(result, cm)
	}
	return result
}

func toOllamaTools(tools []provider.Tool) []chatTool {
	result := make([]chatTool, 0, len(tools))
	for _, t := range tools {
		result = append(result, chatTool{
			Type: "function",
			Function: chatFunction{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
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
