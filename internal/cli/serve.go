package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"axon/internal/approval"
	"axon/internal/channel"
	"axon/internal/channel/discord"
	"axon/internal/channel/telegram"
	"axon/internal/config"
	"axon/internal/gateway"
	"axon/internal/gateway/websocket"
	"axon/internal/permission"
	"axon/internal/provider"
	"axon/internal/provider/claude"
	"axon/internal/provider/ollama"
	"axon/internal/provider/openai"
	"axon/internal/runner"
	"axon/internal/scheduler"
	"axon/internal/storage"
	"axon/internal/tools"
	"axon/internal/tools/builtin"
	"axon/pkg/logger"
)

// NewServeCmd creates the serve command.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Axon gateway server",
		Long: `Start the Axon gateway server.

The server exposes the chat and approval REST endpoints, streams agent
turns over SSE, pushes approval requests to web clients over WebSocket,
runs the cron scheduler, and connects the enabled channel adapters.`,
		Example: `  # Start with the default configuration
  axon serve

  # Start on a custom port
  axon serve --port 8080`,
		RunE: runServe,
	}

	cmd.Flags().IntP("port", "p", 0, "port to listen on (overrides config)")
	cmd.Flags().String("host", "", "host to bind to (overrides config)")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := loadedConfig
	if cfg == nil {
		return fmt.Errorf("configuration not initialized")
	}

	if port, _ := cmd.Flags().GetInt("port"); port > 0 {
		cfg.Gateway.Port = port
	}
	if host, _ := cmd.Flags().GetString("host"); host != "" {
		cfg.Gateway.Host = host
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	log := *logger.Get()

	dbPath, err := config.ExpandPath(cfg.Storage.Path)
	if err != nil {
		return err
	}
	db, err := storage.Open(dbPath)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	auditStore := storage.NewAuditStore(db)
	taskStore := storage.NewTaskStore(db)
	historyStore := storage.NewHistoryStore(db)
	sessionStore := storage.NewSessionStore(db)

	hub := websocket.NewHub()

	broker := approval.NewBroker(&approval.BrokerConfig{
		Notifier:   hub,
		Audit:      auditStore,
		Timeout:    cfg.Approval.Timeout,
		MaxPending: cfg.Approval.MaxPending,
	}, log)
	hub.SetResolver(broker.Resolve)

	router := provider.NewRouter(provider.RouterConfig{
		Factories: map[string]provider.Factory{
			provider.KindOllama: ollama.New,
			provider.KindClaude: claude.New,
			provider.KindOpenAI: openai.New,
		},
		Settings:    providerSettings(cfg),
		DefaultKind: cfg.Providers.Default,
	}, log)

	registry := tools.NewRegistry(log)
	var toolOpts builtin.Options
	if cfg.Email.SMTPAddr != "" {
		toolOpts.Mailer = &builtin.SMTPMailer{
			Addr:     cfg.Email.SMTPAddr,
			From:     cfg.Email.From,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
		}
	}
	if err := builtin.RegisterAll(registry, toolOpts); err != nil {
		return fmt.Errorf("register tools: %w", err)
	}

	orchestrator := runner.NewOrchestrator(router, registry, permission.NewCache(), &runner.Config{
		Policy:        &runner.BrokerPolicy{Broker: broker},
		SystemPrompt:  cfg.App.SystemPrompt,
		MaxIterations: cfg.App.MaxIterations,
	}, log)

	var sched *scheduler.Scheduler
	if cfg.Scheduler.Enabled {
		var location *time.Location
		if cfg.Scheduler.Location != "" {
			location, err = time.LoadLocation(cfg.Scheduler.Location)
			if err != nil {
				return fmt.Errorf("scheduler location: %w", err)
			}
		}

		executor := scheduler.NewExecutor(orchestrator, historyStore, &scheduler.ExecutorConfig{
			DefaultTimeout: cfg.Scheduler.RunTimeout,
		}, log)
		sched = scheduler.New(taskStore, executor, &scheduler.Config{
			MaxTasks: cfg.Scheduler.MaxTasks,
			Location: location,
		}, log)

		report, err := sched.Start()
		if err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		log.Info().
			Int("scheduled", len(report.Scheduled)).
			Int("truncated", len(report.Truncated)).
			Msg("scheduler started")
	}

	server := gateway.NewServer(gateway.Deps{
		Config:       cfg,
		Orchestrator: orchestrator,
		Broker:       broker,
		Providers:    router,
		Scheduler:    sched,
		Tasks:        taskStore,
		History:      historyStore,
		Sessions:     sessionStore,
		DB:           db,
		Hub:          hub,
	})

	if path := config.Path(); path != "" {
		if _, err := os.Stat(path); err == nil {
			watcher, err := gateway.NewWatcher(path, func(newCfg *config.Config) {
				applyProviderConfig(router, newCfg, log)
			})
			if err != nil {
				log.Warn().Err(err).Msg("config watcher unavailable")
			} else if err := watcher.Start(); err != nil {
				log.Warn().Err(err).Str("path", path).Msg("config watcher failed to start")
			} else {
				server.SetWatcher(watcher)
			}
		}
	}

	channels := channel.NewRegistry(log)
	gatewayURL := fmt.Sprintf("http://%s", cfg.Gateway.Addr())
	if cfg.Channels.Discord.Enabled {
		adapter, err := discord.New(discord.Config{
			Token:           cfg.Channels.Discord.Token,
			GatewayURL:      gatewayURL,
			AllowedChannels: cfg.Channels.Discord.AllowedChannels,
			AllowedUsers:    cfg.Channels.Discord.AllowedUsers,
		}, log)
		if err != nil {
			return err
		}
		channels.Register(adapter)
	}
	if cfg.Channels.Telegram.Enabled {
		adapter, err := telegram.New(telegram.Config{
			Token:        cfg.Channels.Telegram.Token,
			GatewayURL:   gatewayURL,
			AllowedUsers: cfg.Channels.Telegram.AllowedUsers,
		}, log)
		if err != nil {
			return err
		}
		channels.Register(adapter)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	// Channel adapters talk to the gateway over HTTP, so they start after it.
	ctx := cmd.Context()
	if channels.Count() > 0 {
		if err := channels.StartAll(ctx); err != nil {
			return err
		}
		log.Info().Int("count", channels.Count()).Msg("channel adapters started")
	}

	log.Info().Str("address", gatewayURL).Msg("axon is running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		log.Info().Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := channels.StopAll(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("channel shutdown error")
	}
	if sched != nil {
		sched.Stop()
	}
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("gateway shutdown error")
	}
	broker.Close()

	log.Info().Msg("stopped")
	return nil
}

// providerSettings maps the file configuration onto router settings.
func providerSettings(cfg *config.Config) map[string]provider.Settings {
	kinds := provider.Kinds()
	settings := make(map[string]provider.Settings, len(kinds))
	for _, kind := range kinds {
		pc, ok := cfg.ProviderSettings(kind)
		if !ok {
			continue
		}
		settings[kind] = provider.Settings{
			Endpoint: pc.Endpoint,
			APIKey:   pc.APIKey,
			Model:    pc.Model,
		}
	}
	return settings
}

// applyProviderConfig pushes reloaded provider settings into the live router.
func applyProviderConfig(router *provider.Router, cfg *config.Config, log zerolog.Logger) {
	for kind, settings := range providerSettings(cfg) {
		if err := router.UpdateSettings(kind, settings); err != nil {
			log.Warn().Err(err).Str("kind", kind).Msg("provider settings reload failed")
		}
	}
	if err := router.SetDefaultKind(cfg.Providers.Default); err != nil {
		log.Warn().Err(err).Str("kind", cfg.Providers.Default).Msg("default provider reload failed")
	}
}
