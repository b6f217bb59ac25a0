// Package event provides the change-notification primitives of the runtime:
// an immutable Event value, an in-memory fan-out Bus, and a Batcher that
// coalesces bursts of events into one delivery after a quiet window.
//
// The graph store publishes to a LocalBus; the execution engine, document
// autosaver and any presentation layer are independent subscribers.
package event

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type classifies an event, e.g. "node.created".
type Type string

// Event describes one change. Events are immutable once created.
type Event struct {
	ID      string    `json:"id"`
	Type    Type      `json:"type"`
	Source  string    `json:"source"`
	Subject string    `json:"subject"`
	Time    time.Time `json:"time"`
	Data    any       `json:"data,omitempty"`
}

func (e Event) String() string {
	return fmt.Sprintf("%s(%s)", e.Type, e.Subject)
}

// Option configures event creation.
type Option func(*Event)

// WithID sets a specific event ID (default: auto-generated UUID).
func WithID(id string) Option {
	return func(e *Event) {
		e.ID = id
	}
}

// WithTime sets a specific timestamp (default: time.Now()).
func WithTime(t time.Time) Option {
	return func(e *Event) {
		e.Time = t
	}
}

// New creates an event of the given type about subject.
func New(typ Type, source, subject string, data any, opts ...Option) Event {
	evt := Event{
		ID:      uuid.New().String(),
		Type:    typ,
		Source:  source,
		Subject: subject,
		Time:    time.Now(),
		Data:    data,
	}
	for _, opt := range opts {
		opt(&evt)
	}
	return evt
}

// Handler processes events delivered by a Bus.
type Handler interface {
	Handle(ctx context.Context, evt Event) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, evt Event) error

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, evt Event) error {
	return f(ctx, evt)
}

// Error represents a failure to publish or handle an event.
type Error struct {
	Event   Event
	Message string
	Err     error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("event %s: %s: %v", e.Event.ID, e.Message, e.Err)
	}
	return fmt.Sprintf("event %s: %s", e.Event.ID, e.Message)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}
