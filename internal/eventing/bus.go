// Package eventing is the in-process event bus that links the cache
// reconciler to the dashboard recompute.
package eventing

import (
	"context"
	"errors"
	"log"
	"reflect"
	"sync"
)

// EventHandler handles a published event.
type EventHandler func(ctx context.Context, event any) error

// EventBus delivers events to subscribed handlers.
type EventBus interface {
	Publish(ctx context.Context, event any) error
	Subscribe(eventType string, handler EventHandler)
}

// ErrNilEvent is returned when a nil event is published.
var ErrNilEvent = errors.New("eventing: nil event")

// ErrInvalidEventType is returned when the event type cannot be determined.
var ErrInvalidEventType = errors.New("eventing: invalid event type")

// InMemoryBus dispatches synchronously on the publisher's goroutine.
type InMemoryBus struct {
	mu       sync.RWMutex
	handlers map[string][]EventHandler
	logger   *log.Logger
}

// NewInMemoryBus constructs a new in-memory bus.
func NewInMemoryBus(logger *log.Logger) *InMemoryBus {
	return &InMemoryBus{
		handlers: make(map[string][]EventHandler),
		logger:   logger,
	}
}

// Publish dispatches an event to all handlers of its type and returns the
// first handler error. Every handler runs even when an earlier one fails.
func (b *InMemoryBus) Publish(ctx context.Context, event any) error {
	if event == nil {
		return ErrNilEvent
	}
	eventType := EventType(event)
	if eventType == "" {
		return ErrInvalidEventType
	}
	if _, ok := EventIDFromContext(ctx); !ok {
		ctx = WithEventID(ctx, newEventID())
	}

	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.handlers[eventType]...)
	b.mu.RUnlock()

	var firstErr error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			if b.logger != nil {
				id, _ := EventIDFromContext(ctx)
				b.logger.Printf("eventing: handler failed type=%s event_id=%s: %v", eventType, id, err)
			}
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// Subscribe registers a handler for an event type.
func (b *InMemoryBus) Subscribe(eventType string, handler EventHandler) {
	if eventType == "" || handler == nil {
		return
	}
	b.mu.Lock()
	b.handlers[eventType] = append(b.handlers[eventType], handler)
	b.mu.Unlock()
}

// EventType returns the fully-qualified type name for an event instance.
func EventType(event any) string {
	if event == nil {
		return ""
	}
	t := reflect.TypeOf(event)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.String()
}

// EventTypeOf returns the fully-qualified type name for a type parameter.
func EventTypeOf[T any]() string {
	return reflect.TypeOf((*T)(nil)).Elem().String()
}
