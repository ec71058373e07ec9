// Package flush implements the batching and delivery engine: it owns
// the ingestion queue's consumer side, forms batches on size, time,
// manual, and shutdown triggers, and applies the retry/backoff and
// drop policy around the delivery transport.
package flush

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/trusera/trusera-go/internal/event"
	"github.com/trusera/trusera-go/internal/queue"
	"github.com/trusera/trusera-go/internal/transport"
)

// Backoff constants for the retry loop. The wait starts at
// initialBackoff, doubles per consecutive failure, is capped at
// maxBackoff, and carries +/-50% jitter.
const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// Config wires an engine to its collaborators.
type Config struct {
	Queue      *queue.Queue
	Transport  transport.Transport
	BatchSize  int
	Interval   time.Duration
	MaxRetries int
	Logger     *slog.Logger

	// Backoff overrides the retry wait computation. Tests use it to
	// avoid real sleeps; production leaves it nil.
	Backoff func(attempt int) time.Duration
}

// Engine drains the queue into batches and delivers them. At most one
// flush cycle runs at a time per engine: the mutex covers the whole
// drain-serialize-send-retry sequence, so overlapping triggers
// serialize instead of racing concurrent sends.
type Engine struct {
	queue      *queue.Queue
	transport  transport.Transport
	batchSize  int
	interval   time.Duration
	maxRetries int
	logger     *slog.Logger
	tracer     trace.Tracer
	backoffFn  func(attempt int) time.Duration

	agentID atomic.Value // string

	mu       sync.Mutex // single flush in flight
	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates an engine. Call Start to run the background loop, or
// drive Flush directly for cooperative scheduling.
func New(cfg Config) *Engine {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{
		queue:      cfg.Queue,
		transport:  cfg.Transport,
		batchSize:  cfg.BatchSize,
		interval:   cfg.Interval,
		maxRetries: cfg.MaxRetries,
		logger:     logger,
		tracer:     otel.Tracer("trusera-go/flush"),
		done:       make(chan struct{}),
	}
	e.backoffFn = cfg.Backoff
	if e.backoffFn == nil {
		e.backoffFn = e.backoff
	}
	e.agentID.Store("")
	return e
}

// SetAgentID records the registered agent id. Events queued earlier
// pick it up at send time.
func (e *Engine) SetAgentID(id string) { e.agentID.Store(id) }

// AgentID returns the current agent id, or "" before registration.
func (e *Engine) AgentID() string { return e.agentID.Load().(string) }

// Start launches the background flush loop.
func (e *Engine) Start() {
	e.wg.Add(1)
	go e.loop()
}

// loop flushes on the interval ticker and on size-threshold wakeups
// from the queue, until Shutdown.
func (e *Engine) loop() {
	defer e.wg.Done()

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.done:
			return
		case <-ticker.C:
		case <-e.queue.Notify():
			if e.queue.Len() < e.batchSize {
				continue
			}
		}
		if err := e.Flush(context.Background()); err != nil {
			e.logger.Warn("background flush interrupted", "error", err)
		}
	}
}

// Flush drains everything queued at the moment of the call and drives
// each batch to a terminal state: delivered, retried to exhaustion, or
// dropped. It is the barrier callers rely on; concurrent callers are
// serialized by the engine mutex and each returns only after its own
// cycle completes. The returned error is non-nil only when ctx expired
// before the backlog reached a terminal state.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	agentID := e.AgentID()
	if agentID == "" {
		if e.queue.Len() > 0 {
			e.logger.Warn("no agent id set, deferring flush", "queued", e.queue.Len())
		}
		return nil
	}

	// Bound the cycle to the backlog present at entry so a busy
	// producer cannot pin the caller indefinitely.
	backlog := e.queue.Len()
	for backlog > 0 {
		batch := e.queue.Drain(e.batchSize)
		if len(batch) == 0 {
			return nil
		}
		backlog -= len(batch)
		e.deliver(ctx, agentID, batch)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// deliver runs one batch through the send/retry state machine. The
// batch is owned by this call: on success it is discarded, on a fatal
// failure or retry exhaustion it is dropped. It is never re-merged
// into the live queue, which would reorder it against newer events.
func (e *Engine) deliver(ctx context.Context, agentID string, batch []event.Event) {
	encoded := e.encode(batch)
	if len(encoded) == 0 {
		return
	}

	ctx, span := e.tracer.Start(ctx, "trusera.flush",
		trace.WithAttributes(attribute.Int("batch.size", len(encoded))))
	defer span.End()

	for attempt := 1; ; attempt++ {
		err := e.transport.SendBatch(ctx, agentID, encoded)
		if err == nil {
			span.SetAttributes(attribute.String("batch.outcome", "delivered"))
			e.logger.Debug("batch delivered", "events", len(encoded), "attempts", attempt)
			return
		}

		if !transport.Retryable(err) {
			span.SetAttributes(attribute.String("batch.outcome", "dropped_fatal"))
			e.logger.Error("dropping batch after fatal delivery error",
				"events", len(encoded), "error", err)
			return
		}

		if attempt >= e.maxRetries {
			span.SetAttributes(attribute.String("batch.outcome", "dropped_exhausted"))
			e.logger.Error("dropping batch after exhausting retries",
				"events", len(encoded), "attempts", attempt, "error", err)
			return
		}

		wait := e.backoffFn(attempt)
		e.logger.Warn("batch delivery failed, will retry",
			"events", len(encoded), "attempt", attempt, "backoff", wait, "error", err)

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			// The caller's budget expired mid-backoff. One immediate
			// last attempt, then the batch is dropped either way.
			e.finalAttempt(agentID, encoded, span)
			return
		case <-e.done:
			// Shutdown interrupts the backoff wait rather than
			// delaying process exit by a full interval.
			e.finalAttempt(agentID, encoded, span)
			return
		}
	}
}

// finalAttempt makes one bounded send after a backoff wait was
// interrupted, so graceful shutdown still gets a delivery chance.
func (e *Engine) finalAttempt(agentID string, encoded []json.RawMessage, span trace.Span) {
	const budget = 5 * time.Second
	ctx, cancel := context.WithTimeout(context.Background(), budget)
	defer cancel()

	if err := e.transport.SendBatch(ctx, agentID, encoded); err != nil {
		span.SetAttributes(attribute.String("batch.outcome", "dropped_interrupted"))
		e.logger.Error("dropping batch, retry interrupted by shutdown",
			"events", len(encoded), "error", err)
		return
	}
	span.SetAttributes(attribute.String("batch.outcome", "delivered"))
	e.logger.Debug("batch delivered on final attempt", "events", len(encoded))
}

// encode serializes the batch, skipping (and logging) events that fail
// to encode so one malformed event cannot poison its batch.
func (e *Engine) encode(batch []event.Event) []json.RawMessage {
	encoded := make([]json.RawMessage, 0, len(batch))
	for _, ev := range batch {
		raw, err := event.Encode(ev)
		if err != nil {
			e.logger.Warn("dropping unencodable event",
				"event_id", ev.ID, "event_name", ev.Name, "error", err)
			continue
		}
		encoded = append(encoded, raw)
	}
	return encoded
}

// backoff computes the wait before retry n: exponential from
// initialBackoff, capped at maxBackoff, with +/-50% jitter so clients
// sharing a failing endpoint do not retry in lockstep.
func (e *Engine) backoff(attempt int) time.Duration {
	d := initialBackoff << (attempt - 1)
	if d > maxBackoff || d <= 0 {
		d = maxBackoff
	}
	return d/2 + rand.N(d)
}

// Shutdown stops the background loop, interrupts any in-progress
// backoff wait, and performs the final drain with ctx as the time
// budget. It is idempotent.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.stopOnce.Do(func() { close(e.done) })
	e.wg.Wait()
	return e.Flush(ctx)
}
