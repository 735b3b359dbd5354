// Package provider defines the LLM provider interface and the router that
// caches one configured client per backend.
package provider

import "context"

// Provider defines the interface for LLM providers.
type Provider interface {
	// Name returns the provider name.
	Name() string

	// Chat sends a chat request and returns the response.
	Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error)

	// HealthCheck probes the backend for availability.
	HealthCheck(ctx context.Context) error

	// UpdateConfig rewrites the provider's configuration in place so that
	// in-flight requests keep working and pick up the new credentials and
	// model on their next call.
	UpdateConfig(settings Settings)
}

// Settings holds the live, updatable configuration of a provider.
type Settings struct {
	Endpoint string `json:"endpoint,omitempty"`
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
}
