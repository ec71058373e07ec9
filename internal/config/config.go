// Package config loads SDK configuration from explicit options, the
// process environment, an optional trusera.yaml file, and built-in
// defaults, in that order of precedence.
package config

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Defaults applied when neither options, file, nor environment supply
// a value.
const (
	DefaultBaseURL       = "https://api.trusera.dev"
	DefaultFlushInterval = 5 * time.Second
	DefaultBatchSize     = 100
	DefaultTimeout       = 10 * time.Second
	DefaultMaxRetries    = 3
)

// keyPrefix is the expected shape of a Trusera API key.
const keyPrefix = "tsk_"

// envPrefix namespaces the environment fallback: TRUSERA_API_KEY,
// TRUSERA_API_URL, TRUSERA_FLUSH_INTERVAL, TRUSERA_BATCH_SIZE,
// TRUSERA_TIMEOUT, TRUSERA_MAX_RETRIES. Durations use Go syntax
// ("5s", "1m30s").
const envPrefix = "TRUSERA_"

// Config is the resolved client configuration.
type Config struct {
	APIKey        string
	BaseURL       string
	FlushInterval time.Duration
	BatchSize     int
	Timeout       time.Duration
	MaxRetries    int
}

// ConfigurationError reports a configuration the SDK cannot operate
// with. It is the only error category surfaced to the host application
// at client construction.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return "trusera: invalid configuration: " + e.Reason
}

// Load resolves the configuration. Zero fields of explicit fall
// through to the environment, then the file at path (if non-empty),
// then the defaults. A missing API key is a ConfigurationError; a key
// without the expected prefix only logs a warning, matching the
// collection API's tolerance for legacy keys.
func Load(path string, explicit Config, logger *slog.Logger) (*Config, error) {
	if logger == nil {
		logger = slog.Default()
	}

	k := koanf.New(".")
	k.Set("api_url", DefaultBaseURL)
	k.Set("flush_interval", DefaultFlushInterval)
	k.Set("batch_size", DefaultBatchSize)
	k.Set("timeout", DefaultTimeout)
	k.Set("max_retries", DefaultMaxRetries)

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				return nil, &ConfigurationError{Reason: "config file " + path + ": " + err.Error()}
			}
			logger.Debug("config file not found, using environment and defaults", "path", path)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.Replace(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".", -1)
	}), nil); err != nil {
		return nil, &ConfigurationError{Reason: "environment: " + err.Error()}
	}

	cfg := &Config{
		APIKey:        firstNonEmpty(explicit.APIKey, k.String("api_key")),
		BaseURL:       strings.TrimSuffix(firstNonEmpty(explicit.BaseURL, k.String("api_url")), "/"),
		FlushInterval: firstPositive(explicit.FlushInterval, k.Duration("flush_interval")),
		BatchSize:     firstPositiveInt(explicit.BatchSize, k.Int("batch_size")),
		Timeout:       firstPositive(explicit.Timeout, k.Duration("timeout")),
		MaxRetries:    firstPositiveInt(explicit.MaxRetries, k.Int("max_retries")),
	}

	if cfg.APIKey == "" {
		return nil, &ConfigurationError{
			Reason: "API key is required: pass WithAPIKey or set " + envPrefix + "API_KEY",
		}
	}
	if !strings.HasPrefix(cfg.APIKey, keyPrefix) {
		logger.Warn("API key does not carry the expected prefix", "prefix", keyPrefix)
	}
	return cfg, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func firstPositive(values ...time.Duration) time.Duration {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}

func firstPositiveInt(values ...int) int {
	for _, v := range values {
		if v > 0 {
			return v
		}
	}
	return 0
}
