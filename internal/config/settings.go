package config

// SettingsView is the masked configuration exposed over the API. Secrets are
// rendered through MaskSecret and never leave the process in the clear.
type SettingsView struct {
	DefaultProvider string                    `json:"default_provider"`
	Providers       map[string]MaskedProvider `json:"providers"`
}

// MaskedProvider is one provider's settings with the API key masked.
// APIKeySet distinguishes an unset key from a set one too short to mask.
type MaskedProvider struct {
	Endpoint  string `json:"endpoint,omitempty"`
	APIKey    string `json:"api_key,omitempty"`
	APIKeySet bool   `json:"api_key_set"`
	Model     string `json:"model,omitempty"`
}

// View renders the masked settings for API consumers.
func (c *Config) View() *SettingsView {
	mask := func(p ProviderConfig) MaskedProvider {
		return MaskedProvider{
			Endpoint:  p.Endpoint,
			APIKey:    MaskSecret(p.APIKey),
			APIKeySet: p.APIKey != "",
			Model:     p.Model,
		}
	}
	return &SettingsView{
		DefaultProvider: c.Providers.Default,
		Providers: map[string]MaskedProvider{
			"ollama": mask(c.Providers.Ollama),
			"claude": mask(c.Providers.Claude),
			"openai": mask(c.Providers.OpenAI),
		},
	}
}

// SettingsUpdate is a partial settings change submitted over the API. Nil
// fields are left untouched; empty api keys keep the stored secret.
type SettingsUpdate struct {
	DefaultProvider *string                   `json:"default_provider,omitempty"`
	Providers       map[string]ProviderUpdate `json:"providers,omitempty"`
}

// ProviderUpdate is a partial change to one provider's settings.
type ProviderUpdate struct {
	Endpoint *string `json:"endpoint,omitempty"`
	APIKey   *string `json:"api_key,omitempty"`
	Model    *string `json:"model,omitempty"`
}

// Apply merges the update into the configuration and reports the provider
// kinds that changed.
func (c *Config) Apply(update *SettingsUpdate) []string {
	var changed []string

	if update.DefaultProvider != nil && *update.DefaultProvider != c.Providers.Default {
		c.Providers.Default = *update.DefaultProvider
	}

	apply := func(kind string, dst *ProviderConfig) {
		u, ok := update.Providers[kind]
		if !ok {
			return
		}
		dirty := false
		if u.Endpoint != nil && *u.Endpoint != dst.Endpoint {
			dst.Endpoint = *u.Endpoint
			dirty = true
		}
		if u.APIKey != nil && *u.APIKey != "" && *u.APIKey != dst.APIKey {
			dst.APIKey = *u.APIKey
			dirty = true
		}
		if u.Model != nil && *u.Model != dst.Model {
			dst.Model = *u.Model
			dirty = true
		}
		if dirty {
			changed = append(changed, kind)
		}
	}

	apply("ollama", &c.Providers.Ollama)
	apply("claude", &c.Providers.Claude)
	apply("openai", &c.Providers.OpenAI)
	return changed
}

// ProviderSettings returns the stored settings for a provider kind.
func (c *Config) ProviderSettings(kind string) (ProviderConfig, bool) {
	switch kind {
	case "ollama":
		return c.Providers.Ollama, true
	case "claude":
		return c.Providers.Claude, true
	case "openai":
		return c.Providers.OpenAI, true
	}
	return ProviderConfig{}, false
}
