package websocket

import (
	"context"

	"github.com/sheetsync/sheetsync/internal/events"
)

// EventSubscriber represents a subscriber to events (a WebSocket connection).
type EventSubscriber interface {
	// ID returns the unique subscriber ID.
	ID() string

	// Send sends an event to the subscriber. Returns an error if the
	// subscriber is closed or the event cannot be sent.
	Send(event events.Event) error

	// Close closes the subscriber connection.
	Close() error

	// Context returns the subscriber context (for cancellation).
	Context() context.Context
}

// baseSubscriber provides common functionality for subscribers.
type baseSubscriber struct {
	id      string
	ctx     context.Context
	onClose func()
}

func (s *baseSubscriber) ID() string {
	return s.id
}

func (s *baseSubscriber) Context() context.Context {
	return s.ctx
}
