package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axon/internal/channel"
	"axon/internal/runner"
)

// newTestBot builds a BotAPI against a stubbed Telegram HTTP API so adapter
// flows run without the network.
func newTestBot(t *testing.T) *tgbotapi.BotAPI {
	t.Helper()

	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			fmt.Fprint(w, `{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"axon","username":"axonbot"}}`)
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			fmt.Fprint(w, `{"ok":true,"result":{"message_id":1,"date":1,"chat":{"id":5,"type":"private"}}}`)
		default:
			fmt.Fprint(w, `{"ok":true,"result":true}`)
		}
	}))
	t.Cleanup(api.Close)

	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint("test-token", api.URL+"/bot%s/%s")
	require.NoError(t, err)
	return bot
}

// fakeGateway serves the chat SSE stream and the approve endpoint. When
// holdForApprove is set the stream stalls after tool_request until a decision
// arrives, mirroring a turn blocked on the approval broker.
type fakeGateway struct {
	ts             *httptest.Server
	holdForApprove bool

	approved chan string

	once    sync.Once
	release chan struct{}
}

func newFakeGateway(t *testing.T, holdForApprove bool) *fakeGateway {
	t.Helper()

	g := &fakeGateway{
		holdForApprove: holdForApprove,
		approved:       make(chan string, 1),
		release:        make(chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/chat/agent", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)

		writeEvent := func(e runner.Event) {
			data, err := e.Marshal()
			require.NoError(t, err)
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}

		writeEvent(runner.Event{
			Type:        runner.EventToolRequest,
			Tool:        "shell_execute",
			Risk:        "critical",
			ApprovalID:  "ap-1",
			Description: "Run a shell command",
		})

		if g.holdForApprove {
			select {
			case <-g.release:
			case <-time.After(5 * time.Second):
			}
		}

		writeEvent(runner.Event{Type: runner.EventToolResult, Tool: "shell_execute", ApprovalID: "ap-1", Result: "ok"})
		writeEvent(runner.Event{Type: runner.EventDone, SessionID: "sess-1"})
	})
	mux.HandleFunc("/api/v1/chat/approve/", func(w http.ResponseWriter, r *http.Request) {
		g.approved <- r.URL.Query().Get("decision")
		g.once.Do(func() { close(g.release) })
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"ap-1","status":"resolved","decision":"once"}`)
	})

	g.ts = httptest.NewServer(mux)
	t.Cleanup(g.ts.Close)
	return g
}

func newTestAdapter(t *testing.T, gatewayURL string) *Adapter {
	t.Helper()
	return &Adapter{
		bot:          newTestBot(t),
		client:       channel.NewAPIClient(gatewayURL),
		sessions:     channel.NewSessions(),
		logger:       zerolog.Nop(),
		allowedUsers: map[int64]bool{},
		pending:      make(map[string]string),
		done:         make(chan struct{}),
	}
}

func pendingLen(a *Adapter) int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

func messageUpdate(id int, text string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		Message: &tgbotapi.Message{
			MessageID: 10 + id,
			From:      &tgbotapi.User{ID: 5},
			Chat:      &tgbotapi.Chat{ID: 5, Type: "private"},
			Text:      text,
		},
	}
}

func callbackUpdate(id int, data string) tgbotapi.Update {
	return tgbotapi.Update{
		UpdateID: id,
		CallbackQuery: &tgbotapi.CallbackQuery{
			ID:   "cb-1",
			From: &tgbotapi.User{ID: 5},
			Message: &tgbotapi.Message{
				MessageID: 20 + id,
				Chat:      &tgbotapi.Chat{ID: 5, Type: "private"},
			},
			Data: data,
		},
	}
}

// A turn blocked on an approval must not hold up the callback carrying the
// decision: the button press has to resolve the request before the broker
// deadline, not after it.
func TestPump_CallbackResolvesBlockedTurn(t *testing.T) {
	gw := newFakeGateway(t, true)
	a := newTestAdapter(t, gw.ts.URL)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates := make(chan tgbotapi.Update, 4)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.pump(ctx, updates)
	}()

	updates <- messageUpdate(1, "run the tool")

	require.Eventually(t, func() bool { return pendingLen(a) == 1 },
		2*time.Second, 10*time.Millisecond, "approval prompt was never sent")

	updates <- callbackUpdate(2, "approve:ap-1:once")

	select {
	case decision := <-gw.approved:
		assert.Equal(t, "once", decision)
	case <-time.After(2 * time.Second):
		t.Fatal("decision never reached the gateway: callback stuck behind the running turn")
	}

	require.Eventually(t, func() bool { return pendingLen(a) == 0 },
		2*time.Second, 10*time.Millisecond)

	cancel()
	a.wg.Wait()
}

// An approval resolved elsewhere (web UI, another channel) still retires the
// local prompt when its terminal event arrives.
func TestRunTurn_ExternalResolutionClearsPending(t *testing.T) {
	gw := newFakeGateway(t, false)
	a := newTestAdapter(t, gw.ts.URL)

	msg := messageUpdate(1, "run the tool").Message
	a.runTurn(context.Background(), msg, "5")

	assert.Zero(t, pendingLen(a), "prompt for an externally resolved approval leaked")
	assert.Empty(t, gw.approved, "no decision should have been posted from this channel")

	sessionID, ok := a.sessions.Get("5")
	require.True(t, ok)
	assert.Equal(t, "sess-1", sessionID)
}

func TestCallbackDataRoundTrip(t *testing.T) {
	data := callbackData("ap-42", "never")
	assert.Equal(t, "approve:ap-42:never", data)

	approvalID, decision, ok := parseCallbackData(data)
	require.True(t, ok)
	assert.Equal(t, "ap-42", approvalID)
	assert.Equal(t, "never", decision)
}

func TestParseCallbackData_Rejects(t *testing.T) {
	cases := []string{
		"",
		"approve:ap-42",
		"approve:ap-42:always",
		"approve::once",
		"reject:ap-42:once",
	}
	for _, c := range cases {
		_, _, ok := parseCallbackData(c)
		assert.False(t, ok, "callback data %q should be rejected", c)
	}
}

func TestDecisionLabel(t *testing.T) {
	assert.Equal(t, "allowed once", decisionLabel("once"))
	assert.Equal(t, "allowed for session", decisionLabel("session"))
	assert.Equal(t, "denied", decisionLabel("never"))
	assert.Equal(t, "other", decisionLabel("other"))
}
