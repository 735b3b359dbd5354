package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"axon/internal/config"
	"axon/internal/gateway/handlers"
	"axon/internal/provider"
	"axon/pkg/logger"
)

// handleGetSettings returns the current settings with secrets masked.
func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	s.configMu.Lock()
	view := s.config.View()
	s.configMu.Unlock()

	handlers.SendJSON(w, http.StatusOK, view)
}

// handleUpdateSettings applies a partial settings change, pushes the new
// provider settings into live clients and persists the configuration.
func (s *Server) handleUpdateSettings(w http.ResponseWriter, r *http.Request) {
	var update config.SettingsUpdate
	if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
		handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest, "invalid request body")
		return
	}

	if update.DefaultProvider != nil {
		if err := s.providers.SetDefaultKind(*update.DefaultProvider); err != nil {
			handlers.SendError(w, http.StatusBadRequest, handlers.ErrCodeInvalidRequest,
				"unknown provider: "+*update.DefaultProvider)
			return
		}
	}

	s.configMu.Lock()
	changed := s.config.Apply(&update)
	for _, kind := range changed {
		settings, ok := s.config.ProviderSettings(kind)
		if !ok {
			continue
		}
		if err := s.providers.UpdateSettings(kind, provider.Settings{
			Endpoint: settings.Endpoint,
			APIKey:   settings.APIKey,
			Model:    settings.Model,
		}); err != nil {
			logger.Warn().Err(err).Str("provider", kind).Msg("failed to push provider settings")
		}
	}

	if path := config.Path(); path != "" {
		if err := config.SaveTo(s.config, path); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("failed to persist settings")
		}
	}
	view := s.config.View()
	s.configMu.Unlock()

	handlers.SendJSON(w, http.StatusOK, view)
}

// handleProviderHealth probes every configured provider.
func (s *Server) handleProviderHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	handlers.SendJSON(w, http.StatusOK, map[string]any{
		"providers": s.providers.HealthCheckAll(ctx),
		"default":   s.providers.DefaultKind(),
	})
}
