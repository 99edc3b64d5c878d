package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LISTEN_ADDR", "LOG_LEVEL", "ENV", "META_DB_PATH", "DUCKDB_PATH", "DEFAULT_PROVIDER",
		"REMOTE_PROVIDERS", "AGENT_TOKEN", "JWT_SECRET", "API_KEY", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"CORS_ALLOWED_ORIGINS", "BINDINGS_FILE", "HISTORY_RETENTION", "HISTORY_PRUNE_SCHEDULE",
		"RESULT_CHUNK_SIZE", "FLIGHTSQL_ADDR",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "duckquery_meta.sqlite", cfg.MetaDBPath)
	assert.Empty(t, cfg.DuckDBPath)
	assert.Empty(t, cfg.FlightSQLAddr)
	assert.Equal(t, LocalProviderID, cfg.DefaultProvider)
	assert.Empty(t, cfg.RemoteProviders)
	assert.Equal(t, 500, cfg.ResultChunk)
	assert.InDelta(t, 100, cfg.RateLimitRPS, 0)
	assert.Equal(t, 200, cfg.RateLimitBurst)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, 168*time.Hour, cfg.HistoryRetention)
	assert.Equal(t, "@hourly", cfg.HistoryPruneSchedule)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Empty(t, cfg.Warnings)
}

func TestLoadFromEnv_AllVarsSet(t *testing.T) {
	clearEnv(t)
	t.Setenv("LISTEN_ADDR", ":9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("META_DB_PATH", "/tmp/test.sqlite")
	t.Setenv("DUCKDB_PATH", "/tmp/local.duckdb")
	t.Setenv("REMOTE_PROVIDERS", "warehouse=grpc://compute-1:9443, adhoc=grpcs://compute-2:9443")
	t.Setenv("DEFAULT_PROVIDER", "warehouse")
	t.Setenv("AGENT_TOKEN", "secret")
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("API_KEY", "key-1")
	t.Setenv("RATE_LIMIT_RPS", "2.5")
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")
	t.Setenv("BINDINGS_FILE", "bindings.yaml")
	t.Setenv("HISTORY_RETENTION", "24h")
	t.Setenv("HISTORY_PRUNE_SCHEDULE", "*/5 * * * *")
	t.Setenv("RESULT_CHUNK_SIZE", "50")
	t.Setenv("FLIGHTSQL_ADDR", ":31337")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.ListenAddr)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "/tmp/test.sqlite", cfg.MetaDBPath)
	assert.Equal(t, "/tmp/local.duckdb", cfg.DuckDBPath)
	assert.Equal(t, []RemoteProvider{
		{Name: "warehouse", URL: "grpc://compute-1:9443"},
		{Name: "adhoc", URL: "grpcs://compute-2:9443"},
	}, cfg.RemoteProviders)
	assert.Equal(t, "warehouse", cfg.DefaultProvider)
	assert.Equal(t, "secret", cfg.AgentToken)
	assert.Equal(t, "jwt-secret", cfg.JWTSecret)
	assert.Equal(t, "key-1", cfg.APIKey)
	assert.InDelta(t, 2.5, cfg.RateLimitRPS, 0)
	assert.Equal(t, 5, cfg.RateLimitBurst)
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "bindings.yaml", cfg.BindingsFile)
	assert.Equal(t, 24*time.Hour, cfg.HistoryRetention)
	assert.Equal(t, "*/5 * * * *", cfg.HistoryPruneSchedule)
	assert.Equal(t, 50, cfg.ResultChunk)
	assert.Equal(t, ":31337", cfg.FlightSQLAddr)
}

func TestLoadFromEnv_Errors(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		wantErr string
	}{
		{"malformed remote entry", map[string]string{"REMOTE_PROVIDERS": "warehouse"}, "want name=grpc://host:port"},
		{"reserved remote name", map[string]string{"REMOTE_PROVIDERS": "local=grpc://x:1"}, "reserved"},
		{"duplicate remote name", map[string]string{"REMOTE_PROVIDERS": "a=grpc://x:1,a=grpc://y:1"}, "duplicate"},
		{"http remote endpoint", map[string]string{"REMOTE_PROVIDERS": "a=http://x:1"}, "grpc:// or grpcs://"},
		{"unknown default provider", map[string]string{"DEFAULT_PROVIDER": "nowhere"}, "DEFAULT_PROVIDER"},
		{"invalid retention", map[string]string{"HISTORY_RETENTION": "forever"}, "HISTORY_RETENTION"},
		{"invalid chunk size", map[string]string{"RESULT_CHUNK_SIZE": "0"}, "RESULT_CHUNK_SIZE"},
		{"production wildcard cors", map[string]string{"ENV": "production", "API_KEY": "k"}, "CORS wildcard"},
		{"production without auth", map[string]string{"ENV": "production", "CORS_ALLOWED_ORIGINS": "https://a.example.com"}, "JWT_SECRET or API_KEY"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := LoadFromEnv()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadFromEnv_Warnings(t *testing.T) {
	clearEnv(t)
	t.Setenv("REMOTE_PROVIDERS", "warehouse=grpc://compute-1:9443")
	t.Setenv("RATE_LIMIT_RPS", "fast")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	require.Len(t, cfg.Warnings, 2)
	assert.Contains(t, cfg.Warnings[0], "RATE_LIMIT_RPS")
	assert.Contains(t, cfg.Warnings[1], "AGENT_TOKEN")
	assert.InDelta(t, 100, cfg.RateLimitRPS, 0)
}

func TestParseLogLevel(t *testing.T) {
	t.Parallel()
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLogLevel(in), in)
	}
}

func TestLoadDotEnv_FileNotFound(t *testing.T) {
	require.NoError(t, LoadDotEnv("/nonexistent/.env"))
}

func TestLoadDotEnv_ParsesKeyValue(t *testing.T) {
	envFile := filepath.Join(t.TempDir(), ".env")
	content := "# comment\n\nDOTENV_PLAIN=value\nexport DOTENV_EXPORTED=exported\nDOTENV_QUOTED=\"quoted value\"\nnot a pair\n"
	require.NoError(t, os.WriteFile(envFile, []byte(content), 0o600))
	t.Setenv("DOTENV_PLAIN", "")
	t.Setenv("DOTENV_EXPORTED", "")
	t.Setenv("DOTENV_QUOTED", "")

	require.NoError(t, LoadDotEnv(envFile))

	assert.Equal(t, "value", os.Getenv("DOTENV_PLAIN"))
	assert.Equal(t, "exported", os.Getenv("DOTENV_EXPORTED"))
	assert.Equal(t, "quoted value", os.Getenv("DOTENV_QUOTED"))
}

func TestLoadDotEnv_EnvVarPrecedence(t *testing.T) {
	t.Setenv("TEST_PRECEDENCE_KEY", "from_env")
	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("TEST_PRECEDENCE_KEY=from_file\n"), 0o600))

	require.NoError(t, LoadDotEnv(envFile))
	assert.Equal(t, "from_env", os.Getenv("TEST_PRECEDENCE_KEY"))
}

func TestParseBindings(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		doc := `apiVersion: duckquery/v1
kind: Bindings
bindings:
  - document: file:///reports/daily.sql
    provider: warehouse
  - document: " file:///scratch.sql "
    provider: local
`
		got, err := ParseBindings(strings.NewReader(doc), "bindings.yaml")
		require.NoError(t, err)
		assert.Equal(t, []BindingEntry{
			{Document: "file:///reports/daily.sql", Provider: "warehouse"},
			{Document: "file:///scratch.sql", Provider: "local"},
		}, got)
	})

	t.Run("empty document", func(t *testing.T) {
		t.Parallel()
		got, err := ParseBindings(strings.NewReader(""), "empty.yaml")
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	errorCases := []struct {
		name    string
		doc     string
		wantErr string
	}{
		{"wrong version", "apiVersion: v0\nkind: Bindings\n", "unsupported apiVersion"},
		{"wrong kind", "apiVersion: duckquery/v1\nkind: Providers\n", "unexpected kind"},
		{"unknown field", "apiVersion: duckquery/v1\nkind: Bindings\nowner: me\n", "owner"},
		{"missing provider", "apiVersion: duckquery/v1\nkind: Bindings\nbindings:\n  - document: a\n", "needs both"},
		{"duplicate document", "apiVersion: duckquery/v1\nkind: Bindings\nbindings:\n  - {document: a, provider: x}\n  - {document: a, provider: y}\n", "bound twice"},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseBindings(strings.NewReader(tc.doc), "bindings.yaml")
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.wantErr)
		})
	}
}

func TestLoadBindingsFile(t *testing.T) {
	t.Parallel()

	got, err := LoadBindingsFile(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Nil(t, got)

	path := filepath.Join(t.TempDir(), "bindings.yaml")
	require.NoError(t, os.WriteFile(path, []byte("apiVersion: duckquery/v1\nkind: Bindings\nbindings:\n  - {document: a.sql, provider: local}\n"), 0o600))
	got, err = LoadBindingsFile(path)
	require.NoError(t, err)
	assert.Equal(t, []BindingEntry{{Document: "a.sql", Provider: "local"}}, got)
}
