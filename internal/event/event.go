// Package event defines the Trusera event record and its wire encoding.
//
// An Event is an immutable description of one discrete agent activity
// (a tool call, an LLM invocation, a file write). Producers construct
// events with New and hand them to the client; nothing mutates an
// event after construction.
package event

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Type classifies an event. The set is closed; the collection API
// rejects unknown types.
type Type string

const (
	TypeToolCall   Type = "tool_call"
	TypeLLMInvoke  Type = "llm_invoke"
	TypeDataAccess Type = "data_access"
	TypeAPICall    Type = "api_call"
	TypeFileWrite  Type = "file_write"
	TypeDecision   Type = "decision"
)

var validTypes = map[Type]bool{
	TypeToolCall:   true,
	TypeLLMInvoke:  true,
	TypeDataAccess: true,
	TypeAPICall:    true,
	TypeFileWrite:  true,
	TypeDecision:   true,
}

// Valid reports whether t is one of the known event types.
func (t Type) Valid() bool { return validTypes[t] }

// ParseType converts a raw string into a Type, rejecting unknown values.
func ParseType(s string) (Type, error) {
	t := Type(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown event type %q", s)
	}
	return t, nil
}

// Event is one recorded activity. All fields are set at construction
// and never modified afterwards.
type Event struct {
	ID        string
	Type      Type
	Name      string
	Payload   map[string]any
	Metadata  map[string]any
	Timestamp time.Time
}

// Option customizes an event at construction time.
type Option func(*Event)

// WithPayload attaches event-specific data (inputs, outputs, etc.).
func WithPayload(payload map[string]any) Option {
	return func(e *Event) { e.Payload = copyMap(payload) }
}

// WithMetadata attaches additional context (duration, model, etc.).
func WithMetadata(metadata map[string]any) Option {
	return func(e *Event) { e.Metadata = copyMap(metadata) }
}

// New constructs an event with a fresh id and a UTC timestamp.
func New(t Type, name string, opts ...Option) Event {
	e := Event{
		ID:        uuid.NewString(),
		Type:      t,
		Name:      name,
		Timestamp: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&e)
	}
	if e.Payload == nil {
		e.Payload = map[string]any{}
	}
	if e.Metadata == nil {
		e.Metadata = map[string]any{}
	}
	return e
}

// copyMap shallow-copies the producer's map so later mutation by the
// producer cannot change a queued event.
func copyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
