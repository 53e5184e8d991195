package outbox

import "context"

// Event is any domain event with a name identifier. The name doubles as the topic.
type Event interface {
	EventName() string
}

// Keyed events carry a partition key; all events with the same key stay ordered.
type Keyed interface {
	EventKey() string
}

// Identified events carry a unique id that consumers use for deduplication.
type Identified interface {
	EventID() string
}

// Handler processes a delivered event. A non-nil error means the delivery is not acknowledged.
type Handler func(ctx context.Context, e Event) error

// Publisher publishes events to interested subscribers.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Subscriber registers handlers for event names.
type Subscriber interface {
	Subscribe(eventName string, h Handler)
}

// KeyOf returns the partition key of e, or "" when it has none.
func KeyOf(e Event) string {
	if k, ok := e.(Keyed); ok {
		return k.EventKey()
	}
	return ""
}

// IDOf returns the id of e, or "" when it has none.
func IDOf(e Event) string {
	if i, ok := e.(Identified); ok {
		return i.EventID()
	}
	return ""
}
