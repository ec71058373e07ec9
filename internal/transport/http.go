package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// userAgent identifies the SDK to the collection API.
const userAgent = "trusera-go/0.1.1"

// maxErrorBody caps how much of an error response is retained for logs.
const maxErrorBody = 2 << 10

// HTTPOption configures the HTTP transport.
type HTTPOption func(*HTTP)

// WithHTTPClient substitutes the underlying *http.Client. The caller
// owns the client's timeout in that case.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(t *HTTP) { t.client = client }
}

// WithLogger sets the transport logger.
func WithLogger(logger *slog.Logger) HTTPOption {
	return func(t *HTTP) { t.logger = logger }
}

// HTTP is the production Transport. Every request carries bearer auth,
// a per-attempt timeout, and OpenTelemetry propagation via otelhttp.
type HTTP struct {
	baseURL string
	apiKey  string
	timeout time.Duration
	client  *http.Client
	logger  *slog.Logger
}

// NewHTTP creates a transport for the given endpoint and credential.
func NewHTTP(baseURL, apiKey string, timeout time.Duration, opts ...HTTPOption) *HTTP {
	t := &HTTP{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		timeout: timeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.client == nil {
		t.client = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		}
	}
	return t
}

// registerResponse tolerates both the current collection API field and
// the legacy one.
type registerResponse struct {
	AgentID string `json:"agent_id"`
	ID      string `json:"id"`
}

// RegisterAgent creates an agent and returns its id.
func (t *HTTP) RegisterAgent(ctx context.Context, reg Registration) (string, error) {
	if reg.Metadata == nil {
		reg.Metadata = map[string]any{}
	}
	body, err := t.post(ctx, t.baseURL+"/api/v1/agents", reg)
	if err != nil {
		return "", err
	}

	var resp registerResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", fmt.Errorf("decode registration response: %w", err)
	}
	id := resp.AgentID
	if id == "" {
		id = resp.ID
	}
	if id == "" {
		return "", fmt.Errorf("registration response carried no agent id")
	}
	return id, nil
}

// batchRequest is the batch delivery envelope.
type batchRequest struct {
	Events []json.RawMessage `json:"events"`
}

// SendBatch delivers one encoded batch for the given agent.
func (t *HTTP) SendBatch(ctx context.Context, agentID string, events []json.RawMessage) error {
	url := fmt.Sprintf("%s/api/v1/agents/%s/events", t.baseURL, agentID)
	_, err := t.post(ctx, url, batchRequest{Events: events})
	return err
}

// post issues one JSON POST with the per-attempt timeout and maps the
// outcome onto the delivery error taxonomy.
func (t *HTTP) post(ctx context.Context, url string, payload any) ([]byte, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &DeliveryError{Retryable: false, Err: fmt.Errorf("marshal request: %w", err)}
	}

	ctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, &DeliveryError{Retryable: false, Err: fmt.Errorf("create request: %w", err)}
	}
	req.Header.Set("Authorization", "Bearer "+t.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)

	resp, err := t.client.Do(req)
	if err != nil {
		// Network faults and timeouts are retryable; the engine's
		// backoff gives transient conditions time to clear.
		return nil, &DeliveryError{Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err != nil {
		return nil, &DeliveryError{Retryable: true, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, nil
	}
	return nil, &DeliveryError{
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
		Retryable:  retryableStatus(resp.StatusCode),
	}
}

// retryableStatus classifies an HTTP status: server-side and
// throttling failures are transient, everything else in 4xx is a
// request the API will never accept.
func retryableStatus(code int) bool {
	switch {
	case code >= 500:
		return true
	case code == http.StatusRequestTimeout, code == http.StatusTooManyRequests:
		return true
	}
	return false
}

// Retryable reports whether err should consume retry budget rather
// than drop the batch outright. Unclassified errors are treated as
// retryable so a transport bug cannot silently discard events.
func Retryable(err error) bool {
	var de *DeliveryError
	if errors.As(err, &de) {
		return de.Retryable
	}
	return true
}

// CloseIdleConnections releases pooled connections on client shutdown.
func (t *HTTP) CloseIdleConnections() {
	t.client.CloseIdleConnections()
}
