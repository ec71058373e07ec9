// Command trusera-demo runs a small instrumented "agent" against a
// collector (by default the local trusera-collector) to exercise the
// SDK end to end: registration, automatic instrumentation, manual
// flush, and graceful close.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/trusera/trusera-go/internal/telemetry"
	"github.com/trusera/trusera-go/pkg/trusera"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	shutdownTracing, err := telemetry.Init("trusera-demo", logger)
	if err != nil {
		log.Fatalf("initialize tracing: %v", err)
	}
	defer shutdownTracing(context.Background())

	client, err := trusera.New(
		trusera.WithAPIKey(envOr("TRUSERA_API_KEY", "tsk_demo")),
		trusera.WithBaseURL(envOr("TRUSERA_API_URL", "http://localhost:8440")),
		trusera.WithFlushInterval(2*time.Second),
		trusera.WithLogger(logger),
	)
	if err != nil {
		// The one error category New surfaces: unusable configuration.
		log.Fatalf("create client: %v", err)
	}
	trusera.SetDefault(client)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	agentID, err := client.RegisterAgent(ctx, "demo-agent", "custom", map[string]any{
		"host": hostname(),
	})
	if err != nil {
		log.Fatalf("register agent: %v", err)
	}
	logger.Info("running demo agent", "agent_id", agentID)

	search := trusera.Instrument(
		func(ctx context.Context, input map[string]any) (any, error) {
			query, _ := input["query"].(string)
			if query == "" {
				return nil, fmt.Errorf("empty query")
			}
			return []string{"result-1", "result-2"}, nil
		},
		trusera.InstrumentWithName("search"),
		trusera.InstrumentWithType(trusera.ToolCall),
	)

	for i := 0; ctx.Err() == nil && i < 25; i++ {
		if _, err := search(ctx, map[string]any{"query": fmt.Sprintf("topic-%d", i)}); err != nil {
			logger.Warn("search failed", "error", err)
		}
		client.Track(trusera.NewEvent(trusera.Decision, "next_step",
			trusera.WithPayload(map[string]any{"iteration": i})))
		time.Sleep(200 * time.Millisecond)
	}

	// Barrier flush before exit so the run's tail is visible in the
	// collector even if the interval flush has not fired yet.
	flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := client.Flush(flushCtx); err != nil {
		logger.Warn("final flush incomplete", "error", err)
	}

	trusera.ClearDefault()
	if err := client.Close(flushCtx); err != nil {
		logger.Warn("close incomplete", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func hostname() string {
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	return h
}
