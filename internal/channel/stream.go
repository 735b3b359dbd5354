package channel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"axon/internal/approval"
	"axon/internal/runner"
)

// APIClient talks to the agent gateway on behalf of an adapter: it streams
// turn events over SSE and posts approval decisions.
type APIClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewAPIClient creates a gateway client. Streaming requests carry no client
// timeout; the turn's own deadline governs.
func NewAPIClient(baseURL string) *APIClient {
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

type chatRequest struct {
	SessionID string `json:"session_id,omitempty"`
	Message   string `json:"message"`
}

// Chat starts an agent turn and streams its events. Malformed lines and
// unrecognized event types in the stream are skipped; the channel closes
// when the stream ends.
func (c *APIClient) Chat(ctx context.Context, sessionID, message string) (<-chan runner.Event, error) {
	payload, err := json.Marshal(chatRequest{SessionID: sessionID, Message: message})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/chat/agent", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("channel: chat request failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("channel: chat request failed: status %d", resp.StatusCode)
	}

	events := make(chan runner.Event, 16)
	go func() {
		defer close(events)
		defer resp.Body.Close()

		scanner := bufio.NewScanner(resp.Body)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			data, ok := strings.CutPrefix(line, "data: ")
			if !ok {
				continue
			}

			var event runner.Event
			if err := json.Unmarshal([]byte(data), &event); err != nil {
				continue
			}
			if !knownEventType(event.Type) {
				continue
			}

			select {
			case events <- event:
			case <-ctx.Done():
				return
			}
			if event.Type == runner.EventDone {
				return
			}
		}
	}()

	return events, nil
}

func knownEventType(t runner.EventType) bool {
	switch t {
	case runner.EventText, runner.EventToolRequest, runner.EventToolResult,
		runner.EventToolRejected, runner.EventDone:
		return true
	}
	return false
}

// Approve posts an approval decision and maps the gateway's reply onto a
// resolve status.
func (c *APIClient) Approve(ctx context.Context, approvalID, decision string) (approval.ResolveStatus, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/api/v1/chat/approve/%s?decision=%s", c.baseURL, approvalID, decision)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return approval.NotFound, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return approval.NotFound, fmt.Errorf("channel: approve request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return approval.Resolved, nil
	case http.StatusConflict:
		return approval.AlreadyResolved, nil
	case http.StatusNotFound:
		return approval.NotFound, nil
	default:
		return approval.NotFound, fmt.Errorf("channel: approve request failed: status %d", resp.StatusCode)
	}
}
