package provider

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Provider kinds. The set is closed: anything else is ErrUnknownProvider.
const (
	KindOllama = "ollama"
	KindClaude = "claude"
	KindOpenAI = "openai"
)

// Kinds lists every known provider kind in a stable order.
func Kinds() []string {
	return []string{KindOllama, KindClaude, KindOpenAI}
}

// Factory constructs a provider client from its settings.
type Factory func(settings Settings) Provider

// Router lazily instantiates and caches one client per configured backend.
// Settings updates rewrite cached handles in place rather than recreating
// them, so in-flight requests keep working.
type Router struct {
	mu          sync.RWMutex
	factories   map[string]Factory
	clients     map[string]Provider
	settings    map[string]Settings
	defaultKind string
	logger      zerolog.Logger
}

// RouterConfig configures the Router.
type RouterConfig struct {
	// Factories maps each known kind to its constructor.
	Factories map[string]Factory

	// Settings holds the initial per-kind settings.
	Settings map[string]Settings

	// DefaultKind is the provider used when none is specified.
	DefaultKind string
}

// NewRouter creates a new provider router.
func NewRouter(config RouterConfig, logger zerolog.Logger) *Router {
	defaultKind := config.DefaultKind
	if defaultKind == "" {
		defaultKind = KindOllama
	}

	settings := make(map[string]Settings, len(config.Settings))
	for kind, s := range config.Settings {
		settings[kind] = s
	}

	return &Router{
		factories:   config.Factories,
		clients:     make(map[string]Provider),
		settings:    settings,
		defaultKind: defaultKind,
		logger:      logger,
	}
}

// Get returns the cached client for the kind, constructing it on first use.
// An empty kind selects the configured default. Unknown kinds fail with
// ErrUnknownProvider.
func (r *Router) Get(kind string) (Provider, error) {
	if kind == "" {
		r.mu.RLock()
		kind = r.defaultKind
		r.mu.RUnlock()
	}

	r.mu.RLock()
	if p, ok := r.clients[kind]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()

	// Re-check under the write lock.
	if p, ok := r.clients[kind]; ok {
		return p, nil
	}

	factory, ok := r.factories[kind]
	if !ok {
		return nil, &UnknownProviderError{Kind: kind}
	}

	p := factory(r.settings[kind])
	r.clients[kind] = p
	r.logger.Debug().Str("provider", kind).Msg("provider client created")
	return p, nil
}

// DefaultKind returns the configured default provider kind.
func (r *Router) DefaultKind() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultKind
}

// SetDefaultKind changes the default provider kind.
func (r *Router) SetDefaultKind(kind string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[kind]; !ok {
		return &UnknownProviderError{Kind: kind}
	}
	r.defaultKind = kind
	return nil
}

// UpdateSettings rewrites the stored settings for the kind and pushes them
// into an existing cached client in place. Clients not yet constructed pick
// the settings up at construction time.
func (r *Router) UpdateSettings(kind string, settings Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.factories[kind]; !ok {
		return &UnknownProviderError{Kind: kind}
	}

	r.settings[kind] = settings
	if p, ok := r.clients[kind]; ok {
		p.UpdateConfig(settings)
		r.logger.Info().Str("provider", kind).Msg("provider settings updated in place")
	}
	return nil
}

// HealthCheckAll probes every known provider kind independently. A failure
// for one provider is recorded as false and never aborts checking the others.
func (r *Router) HealthCheckAll(ctx context.Context) map[string]bool {
	results := make(map[string]bool, len(r.factories))

	r.mu.RLock()
	kinds := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		kinds = append(kinds, kind)
	}
	r.mu.RUnlock()

	for _, kind := range kinds {
		p, err := r.Get(kind)
		if err != nil {
			results[kind] = false
			continue
		}
		if err := p.HealthCheck(ctx); err != nil {
			r.logger.Warn().Err(err).Str("provider", kind).Msg("provider health check failed")
			results[kind] = false
			continue
		}
		results[kind] = true
	}
	return results
}
