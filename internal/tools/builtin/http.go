package builtin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"axon/internal/approval"
	"axon/internal/tools"
)

// maxResponseSize bounds how much of a response body http_request returns.
const maxResponseSize = 128 * 1024

// HTTPRequestTool performs an HTTP request and returns the response body.
type HTTPRequestTool struct {
	client *http.Client
}

// NewHTTPRequestTool creates an HTTP request tool.
func NewHTTPRequestTool() *HTTPRequestTool {
	return &HTTPRequestTool{
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

func (t *HTTPRequestTool) Name() string { return "http_request" }

func (t *HTTPRequestTool) Description() string {
	return "Perform an HTTP request and return the response status and body."
}

func (t *HTTPRequestTool) Risk() approval.RiskLevel { return approval.RiskMedium }

func (t *HTTPRequestTool) Parameters() map[string]any {
	return tools.ObjectSchema(map[string]any{
		"url": map[string]any{
			"type":        "string",
			"description": "The URL to request",
		},
		"method": map[string]any{
			"type":        "string",
			"description": "HTTP method (default GET)",
			"enum":        []string{"GET", "POST", "PUT", "DELETE", "PATCH", "HEAD"},
		},
		"body": map[string]any{
			"type":        "string",
			"description": "Request body (optional)",
		},
		"content_type": map[string]any{
			"type":        "string",
			"description": "Content-Type header for the request body (optional)",
		},
	}, "url")
}

func (t *HTTPRequestTool) Execute(ctx context.Context, args map[string]any) (tools.Result, error) {
	url, ok := stringArg(args, "url")
	if !ok || url == "" {
		return tools.NewErrorResult("missing required argument: url"),
			tools.NewInvalidArgsError(t.Name(), "url is required")
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return tools.NewErrorResult("url must start with http:// or https://"),
			tools.NewInvalidArgsError(t.Name(), "unsupported url scheme")
	}

	method := strings.ToUpper(optionalStringArg(args, "method", http.MethodGet))
	var body io.Reader
	if b := optionalStringArg(args, "body", ""); b != "" {
		body = strings.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("build request: %v", err)), nil
	}
	if ct := optionalStringArg(args, "content_type", ""); ct != "" {
		req.Header.Set("Content-Type", ct)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("request failed: %v", err)), nil
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return tools.NewErrorResult(fmt.Sprintf("read response: %v", err)), nil
	}

	return tools.NewSuccessResult(fmt.Sprintf("HTTP %d\n%s", resp.StatusCode, data)), nil
}
