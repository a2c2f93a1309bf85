package bus

import "time"

// EventBus is a thread-safe, in-process pub/sub bus.
//
// Handlers subscribe by Event.Type() string. Publish delivers synchronously
// in the caller goroutine and returns the handlers' errors joined; handlers
// should be quick or offload heavy work. All methods are safe for
// concurrent use.
type EventBus interface {
	// Publish delivers the event synchronously to all active subscribers
	// of event.Type(). If one or more handlers return an error, a joined
	// error is returned.
	Publish(event Event) error
	// PublishAsync publishes in a separate goroutine and returns a channel
	// that receives the joined error (or nil) once delivery completes.
	PublishAsync(event Event) <-chan error
	// Subscribe registers a handler for an event type and returns a
	// Subscription handle used to cancel later.
	Subscribe(eventType string, handler EventHandler) (Subscription, error)
	// Unsubscribe cancels the given Subscription. Safe to call with nil.
	Unsubscribe(Subscription) error
}

// Event is an immutable message transported by the bus. Implementations
// should treat Event values as read-only.
type Event interface {
	Type() string
	Source() string
	Timestamp() time.Time
	Data() any
}

// EventHandler is a callback invoked per delivered event. A returned error
// is aggregated into the Publish result.
type EventHandler func(event Event) error

// Subscription represents a registered handler bound to an event type.
type Subscription interface {
	ID() string
	EventType() string
	IsActive() bool
	// Cancel de-registers the handler. Multiple calls are safe.
	Cancel() error
}
