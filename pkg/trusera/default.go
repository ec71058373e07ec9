package trusera

import "sync"

// The process-wide default client feeds Instrument when no explicit
// client is wired in. It is deliberately explicit state: set it once
// during initialization, clear it during teardown. Nothing in the SDK
// mutates it implicitly.
var (
	defaultMu     sync.RWMutex
	defaultClient *Client
)

// SetDefault installs the process-wide default client.
func SetDefault(c *Client) {
	defaultMu.Lock()
	defaultClient = c
	defaultMu.Unlock()
}

// Default returns the process-wide default client, or nil if none is
// set.
func Default() *Client {
	defaultMu.RLock()
	defer defaultMu.RUnlock()
	return defaultClient
}

// ClearDefault removes the process-wide default client. Call it in
// teardown, after closing the client it referenced.
func ClearDefault() {
	defaultMu.Lock()
	defaultClient = nil
	defaultMu.Unlock()
}
