package discord

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axon/internal/runner"
)

func TestNew_RequiresToken(t *testing.T) {
	_, err := New(Config{GatewayURL: "http://localhost:8090"}, zerolog.Nop())
	assert.Error(t, err)

	a, err := New(Config{Token: "t0ken", GatewayURL: "http://localhost:8090"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "discord", a.Name())
}

func TestApprovalCustomIDRoundTrip(t *testing.T) {
	id := approvalCustomID("ap-123", "session")
	assert.Equal(t, "approve:ap-123:session", id)

	approvalID, decision, ok := parseApprovalCustomID(id)
	require.True(t, ok)
	assert.Equal(t, "ap-123", approvalID)
	assert.Equal(t, "session", decision)
}

func TestParseApprovalCustomID_Rejects(t *testing.T) {
	cases := []string{
		"",
		"approve:ap-123",
		"approve:ap-123:maybe",
		"approve::once",
		"other:ap-123:once",
		"approve:ap-123:once:extra",
	}
	for _, c := range cases {
		_, _, ok := parseApprovalCustomID(c)
		assert.False(t, ok, "custom id %q should be rejected", c)
	}
}

func TestAllowed(t *testing.T) {
	a, err := New(Config{
		Token:           "t0ken",
		GatewayURL:      "http://localhost:8090",
		AllowedUsers:    []string{"u1"},
		AllowedChannels: []string{"c1", " c2 "},
	}, zerolog.Nop())
	require.NoError(t, err)

	assert.True(t, a.allowed("u1", "c1"))
	assert.True(t, a.allowed("u1", "c2"))
	assert.False(t, a.allowed("u2", "c1"))
	assert.False(t, a.allowed("u1", "c3"))

	open, err := New(Config{Token: "t0ken", GatewayURL: "http://localhost:8090"}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, open.allowed("anyone", "anywhere"))
}

func TestRiskRendering(t *testing.T) {
	assert.Equal(t, "🟢", riskEmoji("low"))
	assert.Equal(t, "🟡", riskEmoji("medium"))
	assert.Equal(t, "🔴", riskEmoji("high"))
	assert.Equal(t, "⛔", riskEmoji("critical"))
	assert.Equal(t, "🟡", riskEmoji("unknown"))

	assert.Equal(t, 0x00ff00, riskColor("low"))
	assert.Equal(t, 0xffaa00, riskColor("medium"))
	assert.Equal(t, 0xff0000, riskColor("high"))
	assert.Equal(t, 0xff0000, riskColor("critical"))
}

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

// stubDiscordREST swaps the session HTTP client for one that answers every
// Discord REST call with a canned message object, and counts how many
// approval prompts went out.
func stubDiscordREST(a *Adapter, promptsSent *int32) {
	a.session.Client = &http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		if r.Body != nil {
			body, _ := io.ReadAll(r.Body)
			if strings.Contains(string(body), "Allow once") {
				atomic.AddInt32(promptsSent, 1)
			}
		}
		return &http.Response{
			StatusCode: http.StatusOK,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(`{"id":"1","channel_id":"c1"}`)),
			Request:    r,
		}, nil
	})}
}

// An approval resolved elsewhere (web UI, another channel) still retires the
// local prompt when its terminal event arrives.
func TestRunTurn_ExternalResolutionClearsPending(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat/agent", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		writeEvent := func(e runner.Event) {
			data, err := e.Marshal()
			require.NoError(t, err)
			fmt.Fprintf(w, "data: %s\n\n", data)
		}
		writeEvent(runner.Event{
			Type:        runner.EventToolRequest,
			Tool:        "shell_execute",
			Risk:        "critical",
			ApprovalID:  "ap-1",
			Description: "Run a shell command",
		})
		writeEvent(runner.Event{Type: runner.EventToolResult, Tool: "shell_execute", ApprovalID: "ap-1", Result: "ok"})
		writeEvent(runner.Event{Type: runner.EventDone, SessionID: "sess-1"})
	})
	gw := httptest.NewServer(mux)
	defer gw.Close()

	a, err := New(Config{Token: "t0ken", GatewayURL: gw.URL}, zerolog.Nop())
	require.NoError(t, err)

	var promptsSent int32
	stubDiscordREST(a, &promptsSent)

	m := &discordgo.MessageCreate{Message: &discordgo.Message{
		ChannelID: "c1",
		Author:    &discordgo.User{ID: "u1"},
		Content:   "run the tool",
	}}
	a.runTurn(context.Background(), m, "run the tool")

	assert.EqualValues(t, 1, atomic.LoadInt32(&promptsSent), "approval prompt was never sent")

	a.mu.Lock()
	pending := len(a.pending)
	a.mu.Unlock()
	assert.Zero(t, pending, "prompt for an externally resolved approval leaked")
}
