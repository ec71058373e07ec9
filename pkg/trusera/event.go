package trusera

import "github.com/trusera/trusera-go/internal/event"

// Event is one recorded agent activity. Immutable after construction.
type Event = event.Event

// EventType classifies an event.
type EventType = event.Type

// The closed set of event types the collection API accepts.
const (
	ToolCall   = event.TypeToolCall
	LLMInvoke  = event.TypeLLMInvoke
	DataAccess = event.TypeDataAccess
	APICall    = event.TypeAPICall
	FileWrite  = event.TypeFileWrite
	Decision   = event.TypeDecision
)

// NewEvent constructs an event with a fresh id and timestamp.
func NewEvent(t EventType, name string, opts ...event.Option) Event {
	return event.New(t, name, opts...)
}

// WithPayload attaches event-specific data.
func WithPayload(payload map[string]any) event.Option {
	return event.WithPayload(payload)
}

// WithEventMetadata attaches additional context such as duration or
// model name.
func WithEventMetadata(metadata map[string]any) event.Option {
	return event.WithMetadata(metadata)
}

// ParseEventType converts a raw string into an EventType, rejecting
// values outside the closed set.
func ParseEventType(s string) (EventType, error) {
	return event.ParseType(s)
}
