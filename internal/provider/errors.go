package provider

import (
	"errors"
	"fmt"
)

var (
	// ErrUnknownProvider indicates a provider kind outside the closed set.
	ErrUnknownProvider = errors.New("provider: unknown provider")

	// ErrNotConfigured indicates the provider lacks required credentials.
	ErrNotConfigured = errors.New("provider: not configured")
)

// UnknownProviderError wraps ErrUnknownProvider with the requested kind.
type UnknownProviderError struct {
	Kind string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("provider: unknown provider %q", e.Kind)
}

func (e *UnknownProviderError) Unwrap() error {
	return ErrUnknownProvider
}
