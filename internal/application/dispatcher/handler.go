package dispatcher

import (
	"context"

	"github.com/garyjia/uxone/internal/domain/event"
)

// Handler processes domain events
type Handler func(ctx context.Context, evt *event.Event) error

// Subscription describes a registered handler
type Subscription struct {
	Name        string     `json:"name"`
	EventType   event.Type `json:"event_type"`
	Description string     `json:"description,omitempty"`

	handler Handler
}
