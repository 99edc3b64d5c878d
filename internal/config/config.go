// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"
)

// RemoteProvider names a compute agent registered as a query provider.
type RemoteProvider struct {
	Name string
	URL  string
}

// Config holds the configuration of the query server.
type Config struct {
	ListenAddr  string // HTTP listen address (default ":8080")
	LogLevel    string // log level: debug, info, warn, error (default "info")
	Env         string // environment: "development" (default) or "production"
	MetaDBPath  string // path to SQLite metadata file (bindings and history)
	DuckDBPath  string // DuckDB database of the local provider ("" = in-memory)
	ResultChunk int    // rows per result-set update of the local provider (default 500)

	// FlightSQLAddr enables the Arrow Flight SQL listener ("" = disabled).
	FlightSQLAddr string

	// Providers
	DefaultProvider string           // identity used for unbound documents (default "local")
	RemoteProviders []RemoteProvider // from REMOTE_PROVIDERS=name=grpc://host:port,...
	AgentToken      string           // shared token for compute agents

	// API authentication; both empty disables it
	JWTSecret string // HS256 secret for bearer tokens
	APIKey    string // static X-API-Key value

	// Rate limiting
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	// BindingsFile is an optional YAML file of document bindings seeded at startup.
	BindingsFile string

	// History
	HistoryRetention     time.Duration // default 168h
	HistoryPruneSchedule string        // cron spec, default "@hourly"

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// LocalProviderID is the identity of the in-process DuckDB provider.
const LocalProviderID = "local"

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	return ParseLogLevel(c.LogLevel)
}

// ParseLogLevel maps a level name to an slog.Level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when the server is running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		ListenAddr:           os.Getenv("LISTEN_ADDR"),
		LogLevel:             os.Getenv("LOG_LEVEL"),
		Env:                  os.Getenv("ENV"),
		MetaDBPath:           os.Getenv("META_DB_PATH"),
		DuckDBPath:           os.Getenv("DUCKDB_PATH"),
		FlightSQLAddr:        strings.TrimSpace(os.Getenv("FLIGHTSQL_ADDR")),
		DefaultProvider:      strings.TrimSpace(os.Getenv("DEFAULT_PROVIDER")),
		AgentToken:           os.Getenv("AGENT_TOKEN"),
		JWTSecret:            os.Getenv("JWT_SECRET"),
		APIKey:               os.Getenv("API_KEY"),
		BindingsFile:         os.Getenv("BINDINGS_FILE"),
		HistoryPruneSchedule: strings.TrimSpace(os.Getenv("HISTORY_PRUNE_SCHEDULE")),
	}

	// Rate limiting
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_RPS %q", v))
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		} else {
			cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("ignoring invalid RATE_LIMIT_BURST %q", v))
		}
	}
	if v := os.Getenv("RESULT_CHUNK_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid RESULT_CHUNK_SIZE %q: must be a positive integer", v)
		}
		cfg.ResultChunk = n
	}
	if v := os.Getenv("HISTORY_RETENTION"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid HISTORY_RETENTION: %w", err)
		}
		cfg.HistoryRetention = d
	}

	// CORS
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = compactNonEmpty(origins)
	}

	remotes, err := parseRemoteProviders(os.Getenv("REMOTE_PROVIDERS"))
	if err != nil {
		return nil, err
	}
	cfg.RemoteProviders = remotes

	// Defaults
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.MetaDBPath == "" {
		cfg.MetaDBPath = "duckquery_meta.sqlite"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.DefaultProvider == "" {
		cfg.DefaultProvider = LocalProviderID
	}
	if cfg.ResultChunk == 0 {
		cfg.ResultChunk = 500
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.HistoryRetention == 0 {
		cfg.HistoryRetention = 7 * 24 * time.Hour
	}
	if cfg.HistoryPruneSchedule == "" {
		cfg.HistoryPruneSchedule = "@hourly"
	}

	if !cfg.knownProvider(cfg.DefaultProvider) {
		return nil, fmt.Errorf("DEFAULT_PROVIDER %q is neither %q nor a REMOTE_PROVIDERS entry", cfg.DefaultProvider, LocalProviderID)
	}
	if len(cfg.RemoteProviders) > 0 && cfg.AgentToken == "" {
		cfg.Warnings = append(cfg.Warnings, "AGENT_TOKEN not set; compute agents will reject remote provider calls")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
		if cfg.JWTSecret == "" && cfg.APIKey == "" {
			return nil, fmt.Errorf("JWT_SECRET or API_KEY is required in production (ENV=production)")
		}
		for _, rp := range cfg.RemoteProviders {
			if strings.HasPrefix(rp.URL, "grpc://") {
				cfg.Warnings = append(cfg.Warnings, fmt.Sprintf("remote provider %q uses plaintext gRPC in production", rp.Name))
			}
		}
	}

	return cfg, nil
}

func (c *Config) knownProvider(id string) bool {
	if id == LocalProviderID {
		return true
	}
	for _, rp := range c.RemoteProviders {
		if rp.Name == id {
			return true
		}
	}
	return false
}

// parseRemoteProviders parses "name=grpc://host:port,name2=grpcs://host:port".
func parseRemoteProviders(raw string) ([]RemoteProvider, error) {
	var out []RemoteProvider
	seen := map[string]bool{}
	for _, entry := range compactNonEmpty(strings.Split(raw, ",")) {
		name, endpoint, ok := strings.Cut(entry, "=")
		name = strings.TrimSpace(name)
		endpoint = strings.TrimSpace(endpoint)
		if !ok || name == "" || endpoint == "" {
			return nil, fmt.Errorf("invalid REMOTE_PROVIDERS entry %q: want name=grpc://host:port", entry)
		}
		if name == LocalProviderID {
			return nil, fmt.Errorf("invalid REMOTE_PROVIDERS entry %q: %q is reserved", entry, LocalProviderID)
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate REMOTE_PROVIDERS name %q", name)
		}
		u, err := url.Parse(endpoint)
		if err != nil || (u.Scheme != "grpc" && u.Scheme != "grpcs") || u.Host == "" {
			return nil, fmt.Errorf("invalid REMOTE_PROVIDERS endpoint %q: want grpc:// or grpcs://", endpoint)
		}
		seen[name] = true
		out = append(out, RemoteProvider{Name: name, URL: endpoint})
	}
	return out, nil
}

func compactNonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// LoadDotEnv reads a .env file and sets any variables not already in the environment.
// Lines must be in KEY=VALUE format. Comments (#) and blank lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(strings.TrimPrefix(key, "export "))
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
