package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// AgentConfig is the compute agent's environment-derived configuration.
type AgentConfig struct {
	AgentToken      string        // AGENT_TOKEN, required
	DuckDBPath      string        // DUCKDB_PATH, "" opens an in-memory database
	ListenAddr      string        // LISTEN_ADDR for the gRPC worker service
	HealthAddr      string        // HEALTH_ADDR for the HTTP liveness probe
	LogLevel        string        // LOG_LEVEL
	MaxMemoryGB     int           // MAX_MEMORY_GB, 0 leaves DuckDB's default
	QueryResultTTL  time.Duration // QUERY_RESULT_TTL, how long finished runs stay fetchable
	CleanupInterval time.Duration // QUERY_CLEANUP_INTERVAL between expiry sweeps
}

var errMissingToken = errors.New("AGENT_TOKEN is required")

func loadAgentConfig() (*AgentConfig, error) {
	cfg := &AgentConfig{
		AgentToken: os.Getenv("AGENT_TOKEN"),
		DuckDBPath: os.Getenv("DUCKDB_PATH"),
		ListenAddr: envOr("LISTEN_ADDR", ":9443"),
		HealthAddr: envOr("HEALTH_ADDR", ":9444"),
		LogLevel:   envOr("LOG_LEVEL", "info"),
	}
	if cfg.AgentToken == "" {
		return nil, errMissingToken
	}

	var err error
	if cfg.MaxMemoryGB, err = envInt("MAX_MEMORY_GB"); err != nil {
		return nil, err
	}
	if cfg.QueryResultTTL, err = envDuration("QUERY_RESULT_TTL", 10*time.Minute); err != nil {
		return nil, err
	}
	if cfg.CleanupInterval, err = envDuration("QUERY_CLEANUP_INTERVAL", time.Minute); err != nil {
		return nil, err
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a non-negative integer", key, v)
	}
	return n, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be positive", key, v)
	}
	return d, nil
}
