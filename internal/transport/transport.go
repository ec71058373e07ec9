// Package transport delivers serialized event batches and agent
// registrations to the Trusera collection API over HTTP.
package transport

import (
	"context"
	"encoding/json"
	"fmt"
)

// Registration describes a new agent to the collection API.
type Registration struct {
	Name      string         `json:"name"`
	Framework string         `json:"framework"`
	Metadata  map[string]any `json:"metadata"`
}

// Transport sends one batch or one registration and reports the
// outcome. Implementations classify failures via *DeliveryError so the
// flush engine can decide between retrying and dropping.
type Transport interface {
	// RegisterAgent creates an agent and returns its id.
	RegisterAgent(ctx context.Context, reg Registration) (string, error)

	// SendBatch delivers one encoded batch for the given agent. A nil
	// return means the batch was accepted; any error terminates the
	// attempt and its retryability drives the engine's retry decision.
	SendBatch(ctx context.Context, agentID string, events []json.RawMessage) error
}

// DeliveryError is a failed delivery attempt. Retryable errors
// (network faults, timeouts, 408/429/5xx) consume retry budget;
// non-retryable ones (other 4xx: bad credentials, validation) drop the
// batch immediately.
type DeliveryError struct {
	StatusCode int
	Body       string
	Retryable  bool
	Err        error
}

func (e *DeliveryError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("delivery failed: %v", e.Err)
	}
	return fmt.Sprintf("delivery failed: status %d: %s", e.StatusCode, e.Body)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
