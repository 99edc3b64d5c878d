// Package flightsql exposes the query orchestrator to Arrow Flight SQL
// clients. Every statement runs as a short-lived document through the same
// providers, bindings and history as the HTTP API.
package flightsql

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	arrowflight "github.com/apache/arrow-go/v18/arrow/flight"
	arrowflightsql "github.com/apache/arrow-go/v18/arrow/flight/flightsql"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	grpcHealth "google.golang.org/grpc/health"
	grpcHealthV1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"duck-query/internal/document"
	"duck-query/internal/middleware"
	"duck-query/internal/query"
)

// Config configures a Flight SQL listener.
type Config struct {
	Addr         string
	Orchestrator *query.Orchestrator
	Documents    *document.Store
	Auth         middleware.AuthConfig
	Logger       *slog.Logger
	// Slots bounds the number of statement documents kept alive. Tickets of a
	// slot expire when the slot is reused. Defaults to 64.
	Slots int
	// BatchRows is the number of rows per streamed record batch. Defaults to 1024.
	BatchRows int
}

// Server is a Flight SQL listener with a gRPC health service.
type Server struct {
	addr   string
	logger *slog.Logger
	auth   middleware.AuthConfig
	query  *queryServer

	mu         sync.Mutex
	ln         net.Listener
	grpcServer *grpc.Server
	health     *grpcHealth.Server
	wg         sync.WaitGroup
}

func NewServer(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "flightsql")
	runner := newStatementRunner(cfg.Orchestrator, cfg.Documents, cfg.Slots, logger)
	return &Server{
		addr:   cfg.Addr,
		logger: logger,
		auth:   cfg.Auth,
		query:  newQueryServer(runner, cfg.BatchRows, logger),
	}
}

func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return fmt.Errorf("flight sql listener already started")
	}

	ln, err := (&net.ListenConfig{}).Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("listen flight sql: %w", err)
	}
	grpcSrv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.unaryAuth),
		grpc.ChainStreamInterceptor(s.streamAuth),
	)
	arrowflight.RegisterFlightServiceServer(grpcSrv, arrowflightsql.NewFlightServer(s.query))
	healthSrv := grpcHealth.NewServer()
	healthSrv.SetServingStatus("", grpcHealthV1.HealthCheckResponse_SERVING)
	grpcHealthV1.RegisterHealthServer(grpcSrv, healthSrv)

	s.ln = ln
	s.grpcServer = grpcSrv
	s.health = healthSrv
	s.wg.Add(1)
	go s.serveLoop()
	s.logger.Info("Flight SQL listener enabled", "addr", ln.Addr().String())
	return nil
}

func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.ln
	grpcSrv := s.grpcServer
	health := s.health
	s.ln = nil
	s.grpcServer = nil
	s.health = nil
	s.mu.Unlock()
	if ln == nil {
		return nil
	}
	if health != nil {
		health.Shutdown()
	}

	if grpcSrv != nil {
		stopped := make(chan struct{})
		go func() {
			grpcSrv.GracefulStop()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-ctx.Done():
			grpcSrv.Stop()
			return fmt.Errorf("flight sql shutdown: %w", ctx.Err())
		case <-time.After(5 * time.Second):
			grpcSrv.Stop()
		}
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("flight sql shutdown wait: %w", ctx.Err())
	}
}

func (s *Server) serveLoop() {
	defer s.wg.Done()
	s.mu.Lock()
	grpcSrv := s.grpcServer
	ln := s.ln
	s.mu.Unlock()
	if grpcSrv == nil || ln == nil {
		return
	}
	if err := grpcSrv.Serve(ln); err != nil && err != grpc.ErrServerStopped {
		s.logger.Warn("Flight SQL server stopped", "error", err)
	}
}

// authenticate resolves the caller from "authorization" or "x-api-key"
// metadata. Health checks are always allowed.
func (s *Server) authenticate(ctx context.Context, method string) (context.Context, error) {
	if !s.auth.Enabled() || strings.HasPrefix(method, "/grpc.health.v1.Health/") {
		return ctx, nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	principal, ok := middleware.Authenticate(s.auth, firstValue(md, "authorization"), firstValue(md, "x-api-key"))
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "unauthorized: provide a valid JWT Bearer token or API key")
	}
	return middleware.WithPrincipal(ctx, principal), nil
}

func (s *Server) unaryAuth(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
	ctx, err := s.authenticate(ctx, info.FullMethod)
	if err != nil {
		return nil, err
	}
	return handler(ctx, req)
}

func (s *Server) streamAuth(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
	ctx, err := s.authenticate(ss.Context(), info.FullMethod)
	if err != nil {
		return err
	}
	return handler(srv, &authedStream{ServerStream: ss, ctx: ctx})
}

type authedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (a *authedStream) Context() context.Context { return a.ctx }

func firstValue(md metadata.MD, key string) string {
	if values := md.Get(key); len(values) > 0 {
		return values[0]
	}
	return ""
}
