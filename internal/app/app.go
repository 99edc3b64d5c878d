// Package app provides application-level wiring for the query server: the
// orchestrator, its providers, the metastore repositories, history recording
// and the HTTP handler.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"duck-query/internal/api"
	"duck-query/internal/compute"
	"duck-query/internal/config"
	"duck-query/internal/db"
	"duck-query/internal/db/repository"
	"duck-query/internal/document"
	"duck-query/internal/flightsql"
	"duck-query/internal/history"
	"duck-query/internal/middleware"
	"duck-query/internal/query"
)

// Deps holds the external dependencies that main() must provide.
// These are things the app package cannot (or should not) create itself:
// database handles, config, and the logger.
type Deps struct {
	Cfg       *config.Config
	DuckDB    *sql.DB
	Metastore *db.Metastore
	Logger    *slog.Logger
}

// App holds the fully-wired application.
type App struct {
	Orchestrator *query.Orchestrator
	Documents    *document.Store
	Local        *compute.LocalProvider
	Remotes      *compute.RemoteCache
	Directory    *compute.Directory
	Bindings     *repository.DocumentBindingRepo
	History      *repository.QueryHistoryRepo
	Recorder     *history.Recorder
	Pruner       *history.Pruner
	Handler      *api.Handler
	// FlightSQL is nil unless cfg.FlightSQLAddr is set.
	FlightSQL *flightsql.Server

	cfg     *config.Config
	logger  *slog.Logger
	revokes []func()
}

// New wires repositories, providers, the orchestrator and history recording
// from the provided deps. Bindings from cfg.BindingsFile are seeded into the
// metastore.
func New(ctx context.Context, deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	// === Repositories ===
	bindingRepo := repository.NewDocumentBindingRepo(deps.Metastore.Write, deps.Metastore.Read)
	historyRepo := repository.NewQueryHistoryRepo(deps.Metastore.Write, deps.Metastore.Read)

	// === Orchestrator ===
	docs := document.NewStore()
	directory := compute.NewDirectory(bindingRepo, cfg.DefaultProvider)
	orch := query.NewOrchestrator(directory, logger.With("component", "orchestrator"))

	a := &App{
		Orchestrator: orch,
		Documents:    docs,
		Directory:    directory,
		Bindings:     bindingRepo,
		History:      historyRepo,
		cfg:          cfg,
		logger:       logger,
	}

	// === Providers ===
	a.Local = compute.NewLocalProvider(compute.LocalConfig{
		ID:        config.LocalProviderID,
		DB:        deps.DuckDB,
		Documents: docs,
		ChunkSize: cfg.ResultChunk,
		Logger:    logger,
	})
	a.revokes = append(a.revokes, orch.RegisterProvider(a.Local))

	a.Remotes = compute.NewRemoteCache(docs, logger)
	for _, rp := range cfg.RemoteProviders {
		p := a.Remotes.GetOrCreate(compute.Endpoint{Name: rp.Name, URL: rp.URL, AuthToken: cfg.AgentToken})
		a.revokes = append(a.revokes, orch.RegisterProvider(p))
	}

	// === Seed bindings ===
	if cfg.BindingsFile != "" {
		entries, err := config.LoadBindingsFile(cfg.BindingsFile)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("bindings file: %w", err)
		}
		if err := seedBindings(ctx, bindingRepo, entries, orch.Providers(), logger); err != nil {
			a.Close()
			return nil, err
		}
	}

	// === History ===
	a.Recorder = history.NewRecorder(historyRepo, logger)
	a.Recorder.Attach(orch)
	pruner, err := history.NewPruner(historyRepo, cfg.HistoryPruneSchedule, cfg.HistoryRetention, logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.Pruner = pruner

	// === HTTP ===
	a.Handler = api.NewHandler(api.Deps{
		Orchestrator: orch,
		Documents:    docs,
		Bindings:     bindingRepo,
		History:      historyRepo,
		Logger:       logger,
	})

	// === Flight SQL ===
	if cfg.FlightSQLAddr != "" {
		a.FlightSQL = flightsql.NewServer(flightsql.Config{
			Addr:         cfg.FlightSQLAddr,
			Orchestrator: orch,
			Documents:    docs,
			Auth:         a.authConfig(),
			Logger:       logger,
		})
	}

	logger.Info("application wired",
		"providers", orch.Providers(),
		"default_provider", cfg.DefaultProvider,
		"history_retention", cfg.HistoryRetention)
	return a, nil
}

// Router returns the HTTP router. limiter may be nil.
func (a *App) Router(limiter *middleware.RateLimiter) http.Handler {
	return api.NewRouter(a.Handler, api.RouterConfig{
		Logger:             a.logger,
		CORSAllowedOrigins: a.cfg.CORSAllowedOrigins,
		RateLimiter:        limiter,
		Auth:               a.authConfig(),
	})
}

func (a *App) authConfig() middleware.AuthConfig {
	return middleware.AuthConfig{JWTSecret: []byte(a.cfg.JWTSecret), APIKey: a.cfg.APIKey}
}

// Start begins background work and the Flight SQL listener when configured.
func (a *App) Start() error {
	if a.Pruner != nil {
		a.Pruner.Start()
	}
	if a.FlightSQL != nil {
		if err := a.FlightSQL.Start(); err != nil {
			return fmt.Errorf("start flight sql: %w", err)
		}
	}
	return nil
}

// Close stops background work, unregisters providers and releases their
// resources. The databases in Deps are left open.
func (a *App) Close() {
	if a.FlightSQL != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := a.FlightSQL.Shutdown(ctx); err != nil {
			a.logger.Warn("flight sql shutdown", "error", err)
		}
		cancel()
	}
	if a.Pruner != nil {
		a.Pruner.Stop()
	}
	if a.Recorder != nil {
		a.Recorder.Close()
	}
	for _, revoke := range a.revokes {
		revoke()
	}
	a.revokes = nil
	if a.Local != nil {
		a.Local.Close()
	}
	if a.Remotes != nil {
		a.Remotes.Close()
	}
	a.Orchestrator.Close()
}
