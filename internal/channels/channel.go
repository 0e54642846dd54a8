// Package channels forwards owner notifications to chat platforms.
package channels

import (
	"context"

	"github.com/KafClaw/PairClaw/internal/bus"
)

// Channel defines the interface for notification transports.
type Channel interface {
	// Name returns the channel name (e.g. "slack").
	Name() string
	// Start subscribes the channel to the bus.
	Start(ctx context.Context) error
	// Stop stops the channel.
	Stop() error
	// Send delivers one notification.
	Send(ctx context.Context, n *bus.Notification) error
}

// BaseChannel provides common functionality for channels.
type BaseChannel struct {
	Bus *bus.MessageBus
}
