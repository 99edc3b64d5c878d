// Package agent implements the compute agent: a DuckDB-backed gRPC worker
// that runs SQL batches for remote providers, plus a plain HTTP health probe.
// It is extracted from cmd/compute-agent so that tests can run an in-process
// agent.
package agent

import (
	"database/sql"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"
)

// HandlerConfig holds the parameters shared by the agent's gRPC server and
// its HTTP probe.
type HandlerConfig struct {
	DB              *sql.DB
	AgentToken      string
	StartTime       time.Time
	MaxMemoryGB     int
	QueryResultTTL  time.Duration
	CleanupInterval time.Duration
	Logger          *slog.Logger
}

func (c HandlerConfig) withDefaults() HandlerConfig {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	if c.StartTime.IsZero() {
		c.StartTime = time.Now()
	}
	if c.QueryResultTTL <= 0 {
		c.QueryResultTTL = defaultResultTTL
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = defaultCleanupInterval
	}
	return c
}

// NewHandler builds the agent's HTTP handler. It serves GET /health, which
// needs no token so that orchestrators can use it as a liveness probe.
func NewHandler(cfg HandlerConfig, server *ComputeGRPCServer) http.Handler {
	cfg = cfg.withDefaults()

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		var version string
		if err := cfg.DB.QueryRowContext(r.Context(), "SELECT version()").Scan(&version); err != nil {
			cfg.Logger.Error("health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}

		body := map[string]any{
			"status":         "ok",
			"uptime_seconds": int(time.Since(cfg.StartTime).Seconds()),
			"duckdb_version": version,
			"max_memory_gb":  cfg.MaxMemoryGB,
		}
		if server != nil {
			active, queued, running, completed, stored, cleaned := server.Metrics()
			body["active_queries"] = active
			body["queued_jobs"] = queued
			body["running_jobs"] = running
			body["completed_jobs"] = completed
			body["stored_jobs"] = stored
			body["cleaned_jobs"] = cleaned
		}
		writeJSON(w, http.StatusOK, body)
	})

	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
