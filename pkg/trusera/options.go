package trusera

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/trusera/trusera-go/internal/config"
	"github.com/trusera/trusera-go/internal/transport"
)

// Option configures a Client at creation time.
type Option func(*settings)

type settings struct {
	explicit   config.Config
	configFile string
	logger     *slog.Logger
	httpClient *http.Client
	transport  transport.Transport
	manual     bool
}

// WithAPIKey sets the Trusera API key (normally "tsk_..."). Falls back
// to TRUSERA_API_KEY when omitted.
func WithAPIKey(key string) Option {
	return func(s *settings) { s.explicit.APIKey = key }
}

// WithBaseURL overrides the collection endpoint. Falls back to
// TRUSERA_API_URL, then the production default.
func WithBaseURL(url string) Option {
	return func(s *settings) { s.explicit.BaseURL = url }
}

// WithFlushInterval sets the period between time-triggered flushes.
func WithFlushInterval(d time.Duration) Option {
	return func(s *settings) { s.explicit.FlushInterval = d }
}

// WithBatchSize sets the event count that triggers a size-based flush
// and the maximum events per delivery attempt.
func WithBatchSize(n int) Option {
	return func(s *settings) { s.explicit.BatchSize = n }
}

// WithTimeout sets the per-delivery-attempt network timeout.
func WithTimeout(d time.Duration) Option {
	return func(s *settings) { s.explicit.Timeout = d }
}

// WithMaxRetries sets the attempts per batch before it is dropped.
func WithMaxRetries(n int) Option {
	return func(s *settings) { s.explicit.MaxRetries = n }
}

// WithConfigFile layers a YAML file between the environment and the
// built-in defaults.
func WithConfigFile(path string) Option {
	return func(s *settings) { s.configFile = path }
}

// WithLogger sets the logger; slog.Default() otherwise.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithHTTPClient substitutes the HTTP client used for delivery, for
// proxies or custom TLS configuration.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) { s.httpClient = client }
}

// WithTransport substitutes the whole delivery transport. Tests use it
// to observe batches without a network.
func WithTransport(t transport.Transport) Option {
	return func(s *settings) { s.transport = t }
}

// WithoutBackgroundFlush disables the background flush goroutine. The
// owner then drives delivery by calling Flush from its own scheduler;
// single-flight and barrier guarantees are unchanged. This is the
// cooperative-scheduling counterpart of the default background mode.
func WithoutBackgroundFlush() Option {
	return func(s *settings) { s.manual = true }
}
