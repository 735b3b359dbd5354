package channel

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Registry holds the configured channel adapters.
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	logger   zerolog.Logger
}

// NewRegistry creates an empty adapter registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		adapters: make(map[string]Adapter),
		logger:   logger.With().Str("component", "channel").Logger(),
	}
}

// Register adds an adapter.
func (r *Registry) Register(a Adapter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adapters[a.Name()] = a
}

// Get returns an adapter by name.
func (r *Registry) Get(name string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[name]
	return a, ok
}

// Count returns the number of registered adapters.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// StartAll starts every adapter, failing on the first error.
func (r *Registry) StartAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name, a := range r.adapters {
		if err := a.Start(ctx); err != nil {
			return fmt.Errorf("start channel %s: %w", name, err)
		}
		r.logger.Info().Str("channel", name).Msg("channel started")
	}
	return nil
}

// StopAll stops every adapter, returning the last error.
func (r *Registry) StopAll(ctx context.Context) error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var lastErr error
	for name, a := range r.adapters {
		if err := a.Stop(ctx); err != nil {
			r.logger.Warn().Err(err).Str("channel", name).Msg("channel stop failed")
			lastErr = fmt.Errorf("stop channel %s: %w", name, err)
		}
	}
	return lastErr
}
