package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TRUSERA_API_KEY", "TRUSERA_API_URL", "TRUSERA_FLUSH_INTERVAL",
		"TRUSERA_BATCH_SIZE", "TRUSERA_TIMEOUT", "TRUSERA_MAX_RETRIES",
	} {
		t.Setenv(key, "")
		os.Unsetenv(key)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load("", Config{APIKey: "tsk_explicit"}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.BaseURL != DefaultBaseURL {
		t.Errorf("BaseURL = %q", cfg.BaseURL)
	}
	if cfg.FlushInterval != DefaultFlushInterval {
		t.Errorf("FlushInterval = %v", cfg.FlushInterval)
	}
	if cfg.BatchSize != DefaultBatchSize {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	if cfg.Timeout != DefaultTimeout {
		t.Errorf("Timeout = %v", cfg.Timeout)
	}
	if cfg.MaxRetries != DefaultMaxRetries {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
}

func TestLoadEnvironmentFallback(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRUSERA_API_KEY", "tsk_from_env")
	t.Setenv("TRUSERA_API_URL", "https://collector.internal/")
	t.Setenv("TRUSERA_FLUSH_INTERVAL", "2s")
	t.Setenv("TRUSERA_BATCH_SIZE", "25")
	t.Setenv("TRUSERA_MAX_RETRIES", "7")

	cfg, err := Load("", Config{}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "tsk_from_env" {
		t.Errorf("APIKey = %q", cfg.APIKey)
	}
	if cfg.BaseURL != "https://collector.internal" {
		t.Errorf("BaseURL = %q (trailing slash must be stripped)", cfg.BaseURL)
	}
	if cfg.FlushInterval != 2*time.Second {
		t.Errorf("FlushInterval = %v", cfg.FlushInterval)
	}
	if cfg.BatchSize != 25 {
		t.Errorf("BatchSize = %d", cfg.BatchSize)
	}
	if cfg.MaxRetries != 7 {
		t.Errorf("MaxRetries = %d", cfg.MaxRetries)
	}
}

func TestExplicitValuesWinOverEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("TRUSERA_API_KEY", "tsk_from_env")
	t.Setenv("TRUSERA_BATCH_SIZE", "25")

	cfg, err := Load("", Config{APIKey: "tsk_explicit", BatchSize: 50}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "tsk_explicit" {
		t.Errorf("APIKey = %q, explicit value must win", cfg.APIKey)
	}
	if cfg.BatchSize != 50 {
		t.Errorf("BatchSize = %d, explicit value must win", cfg.BatchSize)
	}
}

func TestConfigFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "trusera.yaml")
	if err := os.WriteFile(path, []byte("api_key: tsk_from_file\nbatch_size: 10\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, Config{}, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.APIKey != "tsk_from_file" || cfg.BatchSize != 10 {
		t.Errorf("file values not applied: %+v", cfg)
	}

	// A missing file is not an error; construction falls back to env
	// and defaults.
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"), Config{APIKey: "tsk_x"}, nil); err != nil {
		t.Fatalf("missing file must not fail Load: %v", err)
	}
}

func TestMissingAPIKeyIsConfigurationError(t *testing.T) {
	clearEnv(t)
	_, err := Load("", Config{}, nil)
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected *ConfigurationError, got %v", err)
	}
}
