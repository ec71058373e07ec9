package main

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/trusera/trusera-go/internal/event"
)

// maxBatchEvents bounds one ingest request.
const maxBatchEvents = 1000

// collector serves the Trusera ingestion API for local development.
type collector struct {
	store  *Store
	apiKey string
	logger *slog.Logger
}

// newRouter builds the chi router with the collector's middleware
// stack and routes.
func (c *collector) newRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(loggingMiddleware(c.logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "trusera-collector")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Group(func(r chi.Router) {
		r.Use(c.authMiddleware)
		r.Post("/api/v1/agents", c.handleRegister)
		r.Post("/api/v1/agents/{agentID}/events", c.handleIngest)
	})
	return r
}

// authMiddleware checks the bearer credential when the collector is
// started with an API key; without one it accepts everything, which is
// convenient for local smoke tests.
func (c *collector) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c.apiKey != "" {
			got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
			if got != c.apiKey {
				writeError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

type registerRequest struct {
	Name      string         `json:"name"`
	Framework string         `json:"framework"`
	Metadata  map[string]any `json:"metadata"`
}

func (c *collector) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed registration body")
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "agent name is required")
		return
	}

	id := uuid.NewString()
	if err := c.store.CreateAgent(r.Context(), id, req.Name, req.Framework, req.Metadata); err != nil {
		c.logger.Error("agent insert failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	c.logger.Info("agent registered", "agent_id", id, "agent_name", req.Name,
		"framework", req.Framework)
	writeJSON(w, http.StatusCreated, map[string]string{"agent_id": id, "id": id})
}

type ingestRequest struct {
	Events []storedEvent `json:"events"`
}

func (c *collector) handleIngest(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "agentID")

	exists, err := c.store.AgentExists(r.Context(), agentID)
	if err != nil {
		c.logger.Error("agent lookup failed", "error", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, "unknown agent")
		return
	}

	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed batch body")
		return
	}
	if len(req.Events) == 0 {
		writeError(w, http.StatusBadRequest, "batch carried no events")
		return
	}
	if len(req.Events) > maxBatchEvents {
		writeError(w, http.StatusBadRequest, "batch exceeds event limit")
		return
	}
	for _, ev := range req.Events {
		if _, err := event.ParseType(ev.Type); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	if err := c.store.InsertEvents(r.Context(), agentID, req.Events); err != nil {
		c.logger.Error("event insert failed", "agent_id", agentID, "error", err)
		writeError(w, http.StatusInternalServerError, "storage failure")
		return
	}

	c.logger.Info("batch ingested", "agent_id", agentID, "events", len(req.Events))
	writeJSON(w, http.StatusAccepted, map[string]int{"accepted": len(req.Events)})
}

// loggingMiddleware emits one structured line per request on
// completion.
func loggingMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(wrapped, r)

			logger.Info("request completed",
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", wrapped.Status()),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
