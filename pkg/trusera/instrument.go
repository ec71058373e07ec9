package trusera

import (
	"context"
	"log/slog"
	"time"
)

// InstrumentedFunc is the call shape Instrument wraps: a named
// operation taking structured input and returning a result or error.
type InstrumentedFunc func(ctx context.Context, input map[string]any) (any, error)

// InstrumentOption configures one Instrument call.
type InstrumentOption func(*instrumentConfig)

type instrumentConfig struct {
	eventType     EventType
	name          string
	client        *Client
	captureArgs   bool
	captureResult bool
}

// InstrumentWithType sets the event type recorded for each call
// (default ToolCall).
func InstrumentWithType(t EventType) InstrumentOption {
	return func(c *instrumentConfig) { c.eventType = t }
}

// InstrumentWithName sets the event name (required; there is no
// function-name reflection worth trusting here).
func InstrumentWithName(name string) InstrumentOption {
	return func(c *instrumentConfig) { c.name = name }
}

// InstrumentWithClient routes events to a specific client instead of
// the process-wide default.
func InstrumentWithClient(client *Client) InstrumentOption {
	return func(c *instrumentConfig) { c.client = client }
}

// InstrumentWithoutArgs omits the call input from the event payload.
func InstrumentWithoutArgs() InstrumentOption {
	return func(c *instrumentConfig) { c.captureArgs = false }
}

// InstrumentWithoutResult omits the return value from the event payload.
func InstrumentWithoutResult() InstrumentOption {
	return func(c *instrumentConfig) { c.captureResult = false }
}

// Instrument wraps fn so every call emits one event carrying the
// input, result or error, and duration. The wrapper is a pure producer:
// it touches the client only through Track, and when no client is
// configured it degrades to a logged passthrough rather than failing
// the wrapped call.
func Instrument(fn InstrumentedFunc, opts ...InstrumentOption) InstrumentedFunc {
	cfg := instrumentConfig{
		eventType:     ToolCall,
		name:          "instrumented_call",
		captureArgs:   true,
		captureResult: true,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(ctx context.Context, input map[string]any) (any, error) {
		client := cfg.client
		if client == nil {
			client = Default()
		}
		if client == nil {
			slog.Warn("no trusera client configured, skipping tracking",
				"call", cfg.name)
			return fn(ctx, input)
		}

		start := time.Now()
		result, err := fn(ctx, input)
		duration := time.Since(start)

		payload := map[string]any{}
		if cfg.captureArgs && input != nil {
			payload["arguments"] = input
		}
		if cfg.captureResult && err == nil && result != nil {
			payload["result"] = result
		}
		if err != nil {
			payload["error"] = map[string]any{"message": err.Error()}
		}

		client.Track(NewEvent(cfg.eventType, cfg.name,
			WithPayload(payload),
			WithEventMetadata(map[string]any{
				"duration_ms": float64(duration) / float64(time.Millisecond),
				"success":     err == nil,
			}),
		))
		return result, err
	}
}
