// Package config loads and persists the application configuration.
// Precedence: environment variables > config file > defaults.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure.
type Config struct {
	App       AppConfig       `mapstructure:"app" yaml:"app"`
	Gateway   GatewayConfig   `mapstructure:"gateway" yaml:"gateway"`
	Providers ProvidersConfig `mapstructure:"providers" yaml:"providers"`
	Approval  ApprovalConfig  `mapstructure:"approval" yaml:"approval"`
	Scheduler SchedulerConfig `mapstructure:"scheduler" yaml:"scheduler"`
	Channels  ChannelsConfig  `mapstructure:"channels" yaml:"channels"`
	Email     EmailConfig     `mapstructure:"email" yaml:"email,omitempty"`
	Storage   StorageConfig   `mapstructure:"storage" yaml:"storage"`
	Log       LogConfig       `mapstructure:"log" yaml:"log"`
}

// AppConfig holds agent-level settings.
type AppConfig struct {
	SystemPrompt  string `mapstructure:"system_prompt" yaml:"system_prompt,omitempty"`
	MaxIterations int    `mapstructure:"max_iterations" yaml:"max_iterations,omitempty"`
}

// GatewayConfig holds HTTP gateway settings.
type GatewayConfig struct {
	Host      string          `mapstructure:"host" yaml:"host"`
	Port      int             `mapstructure:"port" yaml:"port"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// Addr returns the listen address.
func (c *GatewayConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// RateLimitConfig holds request rate limiting settings.
type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled" yaml:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	Burst             int  `mapstructure:"burst" yaml:"burst"`
}

// ProvidersConfig selects and configures the model backends.
type ProvidersConfig struct {
	Default string         `mapstructure:"default" yaml:"default"`
	Ollama  ProviderConfig `mapstructure:"ollama" yaml:"ollama"`
	Claude  ProviderConfig `mapstructure:"claude" yaml:"claude"`
	OpenAI  ProviderConfig `mapstructure:"openai" yaml:"openai"`
}

// ProviderConfig holds the settings for one provider kind.
type ProviderConfig struct {
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	APIKey   string `mapstructure:"api_key" yaml:"api_key,omitempty"`
	Model    string `mapstructure:"model" yaml:"model,omitempty"`
}

// ApprovalConfig holds approval broker settings.
type ApprovalConfig struct {
	Timeout    time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxPending int           `mapstructure:"max_pending" yaml:"max_pending"`
}

// SchedulerConfig holds scheduler settings. Location is an IANA time zone
// name; empty means the local zone.
type SchedulerConfig struct {
	Enabled    bool          `mapstructure:"enabled" yaml:"enabled"`
	MaxTasks   int           `mapstructure:"max_tasks" yaml:"max_tasks"`
	RunTimeout time.Duration `mapstructure:"run_timeout" yaml:"run_timeout"`
	Location   string        `mapstructure:"location" yaml:"location,omitempty"`
}

// ChannelsConfig holds channel adapter settings.
type ChannelsConfig struct {
	Discord  DiscordConfig  `mapstructure:"discord" yaml:"discord"`
	Telegram TelegramConfig `mapstructure:"telegram" yaml:"telegram"`
}

// DiscordConfig holds the Discord adapter settings. Empty allow lists admit
// everyone.
type DiscordConfig struct {
	Enabled         bool     `mapstructure:"enabled" yaml:"enabled"`
	Token           string   `mapstructure:"token" yaml:"token,omitempty"`
	AllowedChannels []string `mapstructure:"allowed_channels" yaml:"allowed_channels,omitempty"`
	AllowedUsers    []string `mapstructure:"allowed_users" yaml:"allowed_users,omitempty"`
}

// TelegramConfig holds the Telegram adapter settings. An empty allow list
// admits everyone.
type TelegramConfig struct {
	Enabled      bool    `mapstructure:"enabled" yaml:"enabled"`
	Token        string  `mapstructure:"token" yaml:"token,omitempty"`
	AllowedUsers []int64 `mapstructure:"allowed_users" yaml:"allowed_users,omitempty"`
}

// EmailConfig holds SMTP settings for the send_email tool.
type EmailConfig struct {
	SMTPAddr string `mapstructure:"smtp_addr" yaml:"smtp_addr,omitempty"`
	From     string `mapstructure:"from" yaml:"from,omitempty"`
	Username string `mapstructure:"username" yaml:"username,omitempty"`
	Password string `mapstructure:"password" yaml:"password,omitempty"`
}

// StorageConfig holds database settings.
type StorageConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
	File   string `mapstructure:"file" yaml:"file,omitempty"`
}

var (
	mu         sync.RWMutex
	configPath string
)

// SetDefaults registers default values with viper.
func SetDefaults() {
	viper.SetDefault("app.max_iterations", 10)

	viper.SetDefault("gateway.host", "127.0.0.1")
	viper.SetDefault("gateway.port", 8090)
	viper.SetDefault("gateway.rate_limit.enabled", true)
	viper.SetDefault("gateway.rate_limit.requests_per_minute", 120)
	viper.SetDefault("gateway.rate_limit.burst", 30)

	viper.SetDefault("providers.default", "ollama")
	viper.SetDefault("providers.ollama.endpoint", "http://localhost:11434")
	viper.SetDefault("providers.ollama.model", "llama3.2")

	viper.SetDefault("approval.timeout", 2*time.Minute)
	viper.SetDefault("approval.max_pending", 100)

	viper.SetDefault("scheduler.enabled", true)
	viper.SetDefault("scheduler.max_tasks", 100)
	viper.SetDefault("scheduler.run_timeout", 10*time.Minute)

	viper.SetDefault("storage.path", "~/.axon/axon.db")

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "console")
}

// Load reads configuration from the given path. A missing file is not an
// error; parse failures are.
func Load(path string) (*Config, error) {
	mu.Lock()
	defer mu.Unlock()

	SetDefaults()

	viper.SetEnvPrefix("AXON")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if path != "" {
		expandedPath, err := ExpandPath(path)
		if err != nil {
			return nil, err
		}
		configPath = expandedPath

		viper.SetConfigFile(expandedPath)
		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigParseError); ok {
				return nil, err
			}
			var pathErr *os.PathError
			if !errors.As(err, &pathErr) && !os.IsNotExist(err) {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Path returns the loaded config file path, empty when none was given.
func Path() string {
	mu.RLock()
	defer mu.RUnlock()
	return configPath
}

// SaveTo writes the configuration as YAML to the given path.
func SaveTo(cfg *Config, path string) error {
	expandedPath, err := ExpandPath(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(expandedPath), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(expandedPath, data, 0o600)
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("config: invalid gateway port %d", c.Gateway.Port)
	}
	switch c.Providers.Default {
	case "ollama", "claude", "openai":
	default:
		return fmt.Errorf("config: unknown default provider %q", c.Providers.Default)
	}
	if c.Approval.Timeout < 0 {
		return errors.New("config: approval timeout must not be negative")
	}
	if c.Channels.Discord.Enabled && c.Channels.Discord.Token == "" {
		return errors.New("config: discord enabled without a token")
	}
	if c.Channels.Telegram.Enabled && c.Channels.Telegram.Token == "" {
		return errors.New("config: telegram enabled without a token")
	}
	return nil
}

// DefaultConfigPath returns the default config file location.
func DefaultConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".axon", "config.yaml"), nil
}

// ExpandPath resolves a leading ~ to the user's home directory.
func ExpandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
	}
	return path, nil
}

// MaskSecret renders a secret for display: a fixed run of bullets plus the
// last four characters. Secrets too short to mask safely render empty.
func MaskSecret(secret string) string {
	if len(secret) < 8 {
		return ""
	}
	return strings.Repeat("•", 20) + secret[len(secret)-4:]
}
