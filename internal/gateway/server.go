// Package gateway provides the HTTP gateway server.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"axon/internal/approval"
	"axon/internal/config"
	"axon/internal/gateway/handlers"
	"axon/internal/gateway/middleware"
	"axon/internal/gateway/websocket"
	"axon/internal/provider"
	"axon/internal/runner"
	"axon/internal/scheduler"
	"axon/internal/storage"
	"axon/pkg/logger"
)

// Deps holds the server's dependencies.
type Deps struct {
	Config       *config.Config
	Orchestrator *runner.Orchestrator
	Broker       *approval.Broker
	Providers    *provider.Router
	Scheduler    *scheduler.Scheduler
	Tasks        *storage.TaskStore
	History      *storage.HistoryStore
	Sessions     *storage.SessionStore
	DB           *storage.DB
	Hub          *websocket.Hub
}

// Server is the HTTP gateway server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	watcher     *Watcher
	rateLimiter *middleware.RateLimiter

	configMu sync.Mutex
	config   *config.Config

	orchestrator *runner.Orchestrator
	broker       *approval.Broker
	providers    *provider.Router
	scheduler    *scheduler.Scheduler
	tasks        *storage.TaskStore
	history      *storage.HistoryStore
	sessions     *storage.SessionStore
	db           *storage.DB
}

// NewServer creates a gateway server and registers its routes.
func NewServer(deps Deps) *Server {
	router := mux.NewRouter()

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfig{
		Enabled:           deps.Config.Gateway.RateLimit.Enabled,
		RequestsPerMinute: deps.Config.Gateway.RateLimit.RequestsPerMinute,
		Burst:             deps.Config.Gateway.RateLimit.Burst,
	})

	handler := middleware.Recovery(
		middleware.Logging(
			rateLimiter.RateLimit(router),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Addr:        deps.Config.Gateway.Addr(),
			Handler:     handler,
			ReadTimeout: 60 * time.Second,
			// SSE streams are bounded by the request context, not a
			// write deadline.
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
		router:       router,
		hub:          deps.Hub,
		rateLimiter:  rateLimiter,
		config:       deps.Config,
		orchestrator: deps.Orchestrator,
		broker:       deps.Broker,
		providers:    deps.Providers,
		scheduler:    deps.Scheduler,
		tasks:        deps.Tasks,
		history:      deps.History,
		sessions:     deps.Sessions,
		db:           deps.DB,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	v1 := s.router.PathPrefix("/api/v1").Subrouter()

	// Chat and approvals.
	v1.HandleFunc("/chat/agent", s.handleChatAgent).Methods(http.MethodPost)
	v1.HandleFunc("/chat/approve/{id}", s.handleApprove).Methods(http.MethodPost)
	v1.HandleFunc("/approvals", s.handleListApprovals).Methods(http.MethodGet)

	// Sessions.
	v1.HandleFunc("/sessions", s.handleListSessions).Methods(http.MethodGet)
	v1.HandleFunc("/sessions/{id}", s.handleDeleteSession).Methods(http.MethodDelete)

	// Settings.
	v1.HandleFunc("/settings", s.handleGetSettings).Methods(http.MethodGet)
	v1.HandleFunc("/settings", s.handleUpdateSettings).Methods(http.MethodPut)
	v1.HandleFunc("/settings/health", s.handleProviderHealth).Methods(http.MethodGet)

	// Scheduler.
	v1.HandleFunc("/scheduler/tasks", s.handleListTasks).Methods(http.MethodGet)
	v1.HandleFunc("/scheduler/tasks", s.handleCreateTask).Methods(http.MethodPost)
	v1.HandleFunc("/scheduler/tasks/{name}", s.handleGetTask).Methods(http.MethodGet)
	v1.HandleFunc("/scheduler/tasks/{name}", s.handleUpdateTask).Methods(http.MethodPut)
	v1.HandleFunc("/scheduler/tasks/{name}", s.handleDeleteTask).Methods(http.MethodDelete)
	v1.HandleFunc("/scheduler/tasks/{name}/run", s.handleRunTask).Methods(http.MethodPost)
	v1.HandleFunc("/scheduler/tasks/{name}/history", s.handleTaskHistory).Methods(http.MethodGet)

	// WebSocket approval notifications.
	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})
}

// Start runs the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	go s.hub.Run()

	logger.Info().Str("addr", s.httpServer.Addr).Msg("starting gateway server")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("shutting down gateway server")

	if s.watcher != nil {
		s.watcher.Stop()
	}
	s.rateLimiter.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)

	s.hub.Stop()

	if err != nil {
		return fmt.Errorf("gateway shutdown: %w", err)
	}
	return nil
}

// SetWatcher attaches the config file watcher so Shutdown stops it.
func (s *Server) SetWatcher(w *Watcher) {
	s.watcher = w
}

// Router returns the underlying router for tests.
func (s *Server) Router() *mux.Router {
	return s.router
}

// handleHealth reports overall process health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	components := make(map[string]string)

	status := "healthy"
	if s.db != nil {
		if err := s.db.Ping(); err != nil {
			components["database"] = "unhealthy"
			status = "degraded"
		} else {
			components["database"] = "healthy"
		}
	}
	if s.scheduler != nil {
		components["scheduler"] = "healthy"
	} else {
		components["scheduler"] = "disabled"
	}

	handlers.SendJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().Format(time.RFC3339),
	})
}
