package trusera

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/trusera/trusera-go/internal/config"
	"github.com/trusera/trusera-go/internal/flush"
	"github.com/trusera/trusera-go/internal/queue"
	"github.com/trusera/trusera-go/internal/transport"
)

// ConfigurationError is returned by New when the SDK cannot operate
// with the supplied configuration (typically a missing API key). It is
// the only error the client ever surfaces to the host application;
// everything in the delivery path is contained and logged.
type ConfigurationError = config.ConfigurationError

// Client buffers agent events and ships them in batches to the Trusera
// collection API. Safe for concurrent use by any number of producers.
type Client struct {
	cfg       *config.Config
	logger    *slog.Logger
	queue     *queue.Queue
	engine    *flush.Engine
	transport transport.Transport
	closed    atomic.Bool
}

// New creates a client and, unless WithoutBackgroundFlush is given,
// starts its background flush loop. Configuration resolves from
// explicit options, then the environment, then the optional config
// file, then defaults.
func New(opts ...Option) (*Client, error) {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	logger := s.logger
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := config.Load(s.configFile, s.explicit, logger)
	if err != nil {
		return nil, err
	}

	tr := s.transport
	if tr == nil {
		var httpOpts []transport.HTTPOption
		if s.httpClient != nil {
			httpOpts = append(httpOpts, transport.WithHTTPClient(s.httpClient))
		}
		httpOpts = append(httpOpts, transport.WithLogger(logger))
		tr = transport.NewHTTP(cfg.BaseURL, cfg.APIKey, cfg.Timeout, httpOpts...)
	}

	q := queue.New()
	c := &Client{
		cfg:       cfg,
		logger:    logger,
		queue:     q,
		transport: tr,
		engine: flush.New(flush.Config{
			Queue:      q,
			Transport:  tr,
			BatchSize:  cfg.BatchSize,
			Interval:   cfg.FlushInterval,
			MaxRetries: cfg.MaxRetries,
			Logger:     logger,
		}),
	}

	if !s.manual {
		c.engine.Start()
	}
	return c, nil
}

// RegisterAgent creates an agent with the collection API and caches
// its id for the session. Events tracked before registration attach
// the id at send time.
func (c *Client) RegisterAgent(ctx context.Context, name, framework string, metadata map[string]any) (string, error) {
	id, err := c.transport.RegisterAgent(ctx, transport.Registration{
		Name:      name,
		Framework: framework,
		Metadata:  metadata,
	})
	if err != nil {
		c.logger.Error("agent registration failed", "agent_name", name, "error", err)
		return "", err
	}
	c.engine.SetAgentID(id)
	c.logger.Info("agent registered", "agent_name", name, "agent_id", id)
	return id, nil
}

// SetAgentID installs a pre-registered agent id.
func (c *Client) SetAgentID(id string) { c.engine.SetAgentID(id) }

// AgentID returns the cached agent id, or "" before registration.
func (c *Client) AgentID() string { return c.engine.AgentID() }

// Track queues one event for delivery. It never blocks on I/O and
// never returns an error: malformed events and post-close calls are
// logged and dropped so the host application is unaffected.
func (c *Client) Track(ev Event) {
	if c.closed.Load() {
		c.logger.Warn("client is closed, event not tracked",
			"event_type", ev.Type, "event_name", ev.Name)
		return
	}
	if !ev.Type.Valid() {
		c.logger.Warn("dropping event with unknown type",
			"event_type", ev.Type, "event_name", ev.Name)
		return
	}
	c.queue.Push(ev)
	c.logger.Debug("event queued", "event_type", ev.Type, "event_name", ev.Name)
}

// Flush synchronously drives every event queued before the call to a
// terminal state: delivered, retried to exhaustion, or dropped.
// Concurrent callers are serialized; each returns after its own cycle.
func (c *Client) Flush(ctx context.Context) error {
	return c.engine.Flush(ctx)
}

// Close stops the background loop, makes a final bounded delivery
// attempt for whatever is queued, and releases transport resources.
// Calling Close again is a no-op. Pass a context with a deadline to
// bound shutdown when the process is exiting.
func (c *Client) Close(ctx context.Context) error {
	if !c.closed.CompareAndSwap(false, true) {
		return nil
	}
	c.logger.Info("closing trusera client")

	err := c.engine.Shutdown(ctx)
	if t, ok := c.transport.(*transport.HTTP); ok {
		t.CloseIdleConnections()
	}
	if err != nil {
		c.logger.Warn("final flush did not complete", "error", err)
		return err
	}
	c.logger.Info("trusera client closed")
	return nil
}
