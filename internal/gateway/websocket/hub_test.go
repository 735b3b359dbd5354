package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axon/internal/approval"
)

func dialTestHub(t *testing.T, hub *Hub) *websocket.Conn {
	t.Helper()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ServeWs(hub, w, r)
	}))
	t.Cleanup(ts.Close)

	url := "ws" + strings.TrimPrefix(ts.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestHub_NotifyRequestBroadcast(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	conn := dialTestHub(t, hub)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	req := &approval.Request{
		ID:   "req-1",
		Tool: "shell_execute",
		Risk: approval.RiskCritical,
	}
	require.NoError(t, hub.NotifyRequest(req))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, TypeApprovalRequest, msg.Type)

	var payload approval.Request
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, "req-1", payload.ID)
	assert.Equal(t, "shell_execute", payload.Tool)
}

func TestHub_ApprovalResponse(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	type resolved struct {
		id       string
		decision approval.Decision
	}
	got := make(chan resolved, 1)
	hub.SetResolver(func(id string, decision approval.Decision) approval.ResolveStatus {
		got <- resolved{id, decision}
		return approval.Resolved
	})

	conn := dialTestHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	data, err := json.Marshal(Message{
		Type:      TypeApprovalResponse,
		RequestID: "req-7",
		Decision:  "session",
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	select {
	case r := <-got:
		assert.Equal(t, "req-7", r.id)
		assert.Equal(t, approval.DecisionSession, r.decision)
	case <-time.After(2 * time.Second):
		t.Fatal("resolver was not called")
	}
}

func TestHub_InvalidResponseDecision(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	called := false
	hub.SetResolver(func(id string, decision approval.Decision) approval.ResolveStatus {
		called = true
		return approval.Resolved
	})

	conn := dialTestHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	data, err := json.Marshal(Message{
		Type:      TypeApprovalResponse,
		RequestID: "req-8",
		Decision:  "always",
	})
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, TypeError, msg.Type)
	assert.False(t, called)
}

func TestHub_PingPong(t *testing.T) {
	hub := NewHub()
	go hub.Run()
	defer hub.Stop()

	conn := dialTestHub(t, hub)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 },
		time.Second, 10*time.Millisecond)

	data, _ := json.Marshal(Message{Type: TypePing})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg Message
	require.NoError(t, json.Unmarshal(raw, &msg))
	assert.Equal(t, TypePong, msg.Type)
}
