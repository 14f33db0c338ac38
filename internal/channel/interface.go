package channel

import (
	"context"
)

// Channel defines a runtime adapter between Packrat and a chat platform.
// Implementations are responsible for receiving inbound events, normalizing
// them into Messages, and sending outbound replies.
type Channel interface {
	// ID returns the unique configured channel identifier.
	ID() string

	// Type returns the channel provider type used for routing.
	Type() Type

	// Start begins the channel receive loop and should block until the context
	// is canceled or a fatal error occurs.
	Start(ctx context.Context) error

	// Stop gracefully shuts down channel resources.
	Stop(ctx context.Context) error

	// SendMessage sends text content to the target chat.
	// chatID is provider-specific and is passed as a string for portability.
	SendMessage(ctx context.Context, chatID string, content string) error

	// RegisterMessageHandler registers the inbound message callback.
	// The handler is invoked for each incoming normalized Message.
	RegisterMessageHandler(handler func(ctx context.Context, msg *Message) error) error
}
