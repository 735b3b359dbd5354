package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Gateway.Host)
	assert.Equal(t, 8090, cfg.Gateway.Port)
	assert.Equal(t, "ollama", cfg.Providers.Default)
	assert.Equal(t, 100, cfg.Approval.MaxPending)
	assert.True(t, cfg.Scheduler.Enabled)
	assert.Equal(t, "info", cfg.Log.Level)
	require.NoError(t, cfg.Validate())
}

func TestLoad_FromFile(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "axon.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
gateway:
  port: 9999
providers:
  default: claude
  claude:
    api_key: sk-test-1234567890
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Gateway.Port)
	assert.Equal(t, "claude", cfg.Providers.Default)
	assert.Equal(t, "sk-test-1234567890", cfg.Providers.Claude.APIKey)
	// Untouched sections keep their defaults.
	assert.Equal(t, "127.0.0.1", cfg.Gateway.Host)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, 8090, cfg.Gateway.Port)
}

func TestLoad_ParseErrorFails(t *testing.T) {
	resetViper(t)

	path := filepath.Join(t.TempDir(), "broken.yaml")
	require.NoError(t, os.WriteFile(path, []byte("gateway: [not: valid"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveTo_RoundTrip(t *testing.T) {
	resetViper(t)

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Gateway.Port = 7070
	cfg.Providers.Claude.APIKey = "sk-roundtrip-9876"

	path := filepath.Join(t.TempDir(), "sub", "axon.yaml")
	require.NoError(t, SaveTo(cfg, path))

	resetViper(t)
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7070, loaded.Gateway.Port)
	assert.Equal(t, "sk-roundtrip-9876", loaded.Providers.Claude.APIKey)
}

func TestValidate(t *testing.T) {
	resetViper(t)

	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Gateway.Port = 0
	assert.Error(t, cfg.Validate())
	cfg.Gateway.Port = 8090

	cfg.Providers.Default = "mystery"
	assert.Error(t, cfg.Validate())
	cfg.Providers.Default = "ollama"

	cfg.Channels.Discord.Enabled = true
	assert.Error(t, cfg.Validate())
	cfg.Channels.Discord.Token = "token-1234"
	assert.NoError(t, cfg.Validate())
}

func TestMaskSecret(t *testing.T) {
	assert.Equal(t, "", MaskSecret(""))
	assert.Equal(t, "", MaskSecret("short"))
	assert.Equal(t, "", MaskSecret("1234567"))

	masked := MaskSecret("sk-abcdef-123456")
	assert.Len(t, []rune(masked), 24)
	assert.Equal(t, "3456", masked[len(masked)-4:])
}

func TestSettingsView_MasksKeys(t *testing.T) {
	resetViper(t)

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Providers.Claude.APIKey = "sk-very-secret-key-0042"

	view := cfg.View()
	assert.Equal(t, "ollama", view.DefaultProvider)
	assert.NotContains(t, view.Providers["claude"].APIKey, "secret")
	assert.Contains(t, view.Providers["claude"].APIKey, "0042")
	assert.True(t, view.Providers["claude"].APIKeySet)
	assert.False(t, view.Providers["openai"].APIKeySet)

	// A set key too short to mask renders empty but still reports set.
	cfg.Providers.OpenAI.APIKey = "tiny"
	view = cfg.View()
	assert.Empty(t, view.Providers["openai"].APIKey)
	assert.True(t, view.Providers["openai"].APIKeySet)
}

func TestApply_PartialUpdate(t *testing.T) {
	resetViper(t)

	cfg, err := Load("")
	require.NoError(t, err)
	cfg.Providers.Claude.APIKey = "sk-original-key-111"

	newDefault := "claude"
	newModel := "claude-sonnet-4-20250514"
	emptyKey := ""
	changed := cfg.Apply(&SettingsUpdate{
		DefaultProvider: &newDefault,
		Providers: map[string]ProviderUpdate{
			"claude": {Model: &newModel, APIKey: &emptyKey},
		},
	})

	assert.Equal(t, []string{"claude"}, changed)
	assert.Equal(t, "claude", cfg.Providers.Default)
	assert.Equal(t, newModel, cfg.Providers.Claude.Model)
	// An empty submitted key keeps the stored secret.
	assert.Equal(t, "sk-original-key-111", cfg.Providers.Claude.APIKey)
}

func TestExpandPath(t *testing.T) {
	home, err := os.UserHomeDir()
	require.NoError(t, err)

	got, err := ExpandPath("~/x/y.db")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "x", "y.db"), got)

	got, err = ExpandPath("/abs/path.db")
	require.NoError(t, err)
	assert.Equal(t, "/abs/path.db", got)
}
