package builtin

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"axon/internal/approval"
	"axon/internal/tools"
)

func TestRegisterAll(t *testing.T) {
	registry := tools.NewRegistry(zerolog.Nop())
	require.NoError(t, RegisterAll(registry, Options{}))

	list := registry.List()
	names := make([]string, 0, len(list))
	for _, tool := range list {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"http_request", "read_file", "send_email", "shell_execute", "write_file"}, names)
}

func TestRiskLevels(t *testing.T) {
	assert.Equal(t, approval.RiskCritical, NewShellTool().Risk())
	assert.Equal(t, approval.RiskHigh, NewWriteFileTool().Risk())
	assert.Equal(t, approval.RiskLow, NewReadFileTool().Risk())
	assert.Equal(t, approval.RiskMedium, NewHTTPRequestTool().Risk())
	assert.Equal(t, approval.RiskHigh, NewSendEmailTool(nil).Risk())
}

func TestShellTool_Execute(t *testing.T) {
	tool := NewShellTool()

	result, err := tool.Execute(context.Background(), map[string]any{
		"command": "echo hello",
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "hello")
}

func TestShellTool_MissingCommand(t *testing.T) {
	tool := NewShellTool()

	result, err := tool.Execute(context.Background(), map[string]any{})
	assert.ErrorIs(t, err, tools.ErrInvalidArgs)
	assert.True(t, result.IsError)
}

func TestShellTool_CommandFailure(t *testing.T) {
	tool := NewShellTool()

	result, err := tool.Execute(context.Background(), map[string]any{
		"command": "exit 3",
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestFileTools_WriteThenRead(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.txt")

	writeResult, err := NewWriteFileTool().Execute(context.Background(), map[string]any{
		"path":    path,
		"content": "round trip",
	})
	require.NoError(t, err)
	assert.False(t, writeResult.IsError)

	readResult, err := NewReadFileTool().Execute(context.Background(), map[string]any{
		"path": path,
	})
	require.NoError(t, err)
	assert.Equal(t, "round trip", readResult.Content)
}

func TestReadFileTool_Missing(t *testing.T) {
	result, err := NewReadFileTool().Execute(context.Background(), map[string]any{
		"path": filepath.Join(t.TempDir(), "absent.txt"),
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestWriteFileTool_MissingContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "x.txt")

	result, err := NewWriteFileTool().Execute(context.Background(), map[string]any{
		"path": path,
	})
	assert.ErrorIs(t, err, tools.ErrInvalidArgs)
	assert.True(t, result.IsError)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestHTTPRequestTool_Execute(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	result, err := NewHTTPRequestTool().Execute(context.Background(), map[string]any{
		"url":    srv.URL,
		"method": "post",
		"body":   `{"name":"axon"}`,
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Contains(t, result.Content, "HTTP 201")
	assert.Contains(t, result.Content, `"ok":true`)
}

func TestHTTPRequestTool_RejectsNonHTTPScheme(t *testing.T) {
	result, err := NewHTTPRequestTool().Execute(context.Background(), map[string]any{
		"url": "file:///etc/passwd",
	})
	assert.ErrorIs(t, err, tools.ErrInvalidArgs)
	assert.True(t, result.IsError)
}

type recordingMailer struct {
	to      []string
	subject string
	body    string
	err     error
}

func (m *recordingMailer) Send(ctx context.Context, to []string, subject, body string) error {
	m.to = to
	m.subject = subject
	m.body = body
	return m.err
}

func TestSendEmailTool_Execute(t *testing.T) {
	mailer := &recordingMailer{}
	tool := NewSendEmailTool(mailer)

	result, err := tool.Execute(context.Background(), map[string]any{
		"to":      "a@example.com, b@example.com",
		"subject": "report",
		"body":    "done",
	})
	require.NoError(t, err)
	assert.False(t, result.IsError)
	assert.Equal(t, []string{"a@example.com", "b@example.com"}, mailer.to)
	assert.Equal(t, "report", mailer.subject)
}

func TestSendEmailTool_NotConfigured(t *testing.T) {
	result, err := NewSendEmailTool(nil).Execute(context.Background(), map[string]any{
		"to": "a@example.com", "subject": "s", "body": "b",
	})
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, result.Content, "not configured")
}
