// Package channel hosts the chat surface adapters. Every adapter renders the
// same turn event stream and offers the same three approval choices; the
// gateway's broker stays the single point of truth for decisions.
package channel

import (
	"context"
)

// Adapter is a chat surface (Discord, Telegram, ...) bridging users to the
// agent gateway.
type Adapter interface {
	// Name returns the adapter's unique identifier.
	Name() string

	// Start connects the adapter and begins handling messages.
	Start(ctx context.Context) error

	// Stop disconnects the adapter.
	Stop(ctx context.Context) error
}

// Approval decision labels shared by all adapters. Every surface offers
// exactly these three choices.
const (
	ChoiceOnce    = "once"
	ChoiceSession = "session"
	ChoiceNever   = "never"
)
