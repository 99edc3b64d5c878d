package agent

import (
	"context"
	"sync/atomic"
	"time"

	"duck-query/internal/compute"
	computeproto "duck-query/internal/compute/proto"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// ComputeGRPCServer serves the ComputeWorker service: batches are submitted
// as jobs, polled for status, paged out and deleted by the caller.
type ComputeGRPCServer struct {
	computeproto.UnimplementedComputeWorkerServer

	cfg           HandlerConfig
	activeQueries atomic.Int64
	jobs          *queryStore
	now           func() time.Time
}

// NewComputeGRPCServer creates a server executing against cfg.DB.
func NewComputeGRPCServer(cfg HandlerConfig) *ComputeGRPCServer {
	cfg = cfg.withDefaults()
	return &ComputeGRPCServer{
		cfg:  cfg,
		jobs: newQueryStore(cfg.QueryResultTTL, cfg.CleanupInterval),
		now:  time.Now,
	}
}

// Register attaches the server to registrar using the JSON codec.
func (s *ComputeGRPCServer) Register(registrar grpc.ServiceRegistrar) {
	compute.EnsureGRPCJSONCodec()
	computeproto.RegisterComputeWorkerServer(registrar, s)
}

// Metrics returns the job counters reported by Health.
func (s *ComputeGRPCServer) Metrics() (active, queued, running, completed, stored, cleaned int64) {
	queued, running, completed, stored, cleaned = s.jobs.metrics()
	return s.activeQueries.Load(), queued, running, completed, stored, cleaned
}

func (s *ComputeGRPCServer) SubmitQuery(ctx context.Context, req *computeproto.SubmitQueryRequest) (*computeproto.SubmitQueryResponse, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if req == nil || req.Sql == "" {
		return nil, status.Error(codes.InvalidArgument, "sql is required")
	}
	if req.MaxRows < 0 {
		return nil, status.Error(codes.InvalidArgument, "max_rows must not be negative")
	}

	requestID := ""
	if req.Context != nil {
		requestID = req.Context.RequestId
	}
	s.jobs.maybeCleanup(s.now())
	if existing, ok := s.jobs.getByRequestID(requestID); ok {
		state := existing.statusResponse()
		return &computeproto.SubmitQueryResponse{QueryId: existing.id, Status: state.Status}, nil
	}

	job := &queryJob{
		id:        newQueryID(),
		requestID: requestID,
		maxRows:   req.MaxRows,
		status:    compute.QueryStatusQueued,
		createdAt: s.now(),
	}
	s.jobs.set(job)
	s.cfg.Logger.Info("query submitted", "query_id", job.id, "request_id", requestID)

	jobCtx, cancel := context.WithCancel(context.Background())
	job.setRunning(cancel)
	go func(sqlQuery string) {
		defer cancel()
		runJob(jobCtx, s.cfg.DB, job, sqlQuery, &s.activeQueries)
		state := job.statusResponse()
		s.cfg.Logger.Info("query finished", "query_id", job.id, "request_id", requestID,
			"status", state.Status, "row_count", state.RowCount)
	}(req.Sql)

	return &computeproto.SubmitQueryResponse{QueryId: job.id, Status: compute.QueryStatusRunning}, nil
}

func (s *ComputeGRPCServer) GetQueryStatus(ctx context.Context, req *computeproto.GetQueryStatusRequest) (*computeproto.QueryStatusResponse, error) {
	job, err := s.lookup(ctx, req.GetQueryId())
	if err != nil {
		return nil, err
	}
	state := job.statusResponse()
	return &computeproto.QueryStatusResponse{
		QueryId:            state.QueryID,
		Status:             state.Status,
		Error:              state.Error,
		Columns:            columnsToProto(state.Columns),
		RowCount:           state.RowCount,
		RowsAffected:       state.RowsAffected,
		HasResult:          state.HasResult,
		CompletedAtRfc3339: state.CompletedAt,
	}, nil
}

func (s *ComputeGRPCServer) FetchQueryResults(ctx context.Context, req *computeproto.FetchQueryResultsRequest) (*computeproto.FetchQueryResultsResponse, error) {
	job, err := s.lookup(ctx, req.GetQueryId())
	if err != nil {
		return nil, err
	}

	state := job.statusResponse()
	switch state.Status {
	case compute.QueryStatusQueued, compute.QueryStatusRunning:
		return nil, status.Error(codes.FailedPrecondition, "query is not ready")
	case compute.QueryStatusFailed, compute.QueryStatusCanceled:
		return nil, status.Error(codes.FailedPrecondition, state.Error)
	}
	if !state.HasResult {
		return nil, status.Error(codes.FailedPrecondition, "query produced no result set")
	}

	limit := int(req.MaxResults)
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > compute.MaxPageSize {
		limit = compute.MaxPageSize
	}

	columns, rows, total, next := job.page(compute.DecodePageToken(req.PageToken), limit)
	out := &computeproto.FetchQueryResultsResponse{
		QueryId:       job.id,
		Columns:       columnsToProto(columns),
		Rows:          make([]*computeproto.ResultRow, len(rows)),
		RowCount:      total,
		NextPageToken: next,
	}
	for i, cells := range rows {
		row := compute.RowFromCells(cells)
		out.Rows[i] = &computeproto.ResultRow{Values: row.Values, Nulls: row.Nulls}
	}
	return out, nil
}

func (s *ComputeGRPCServer) CancelQuery(ctx context.Context, req *computeproto.CancelQueryRequest) (*computeproto.CancelQueryResponse, error) {
	job, err := s.lookup(ctx, req.GetQueryId())
	if err != nil {
		return nil, err
	}
	job.cancelQuery()
	s.cfg.Logger.Info("query cancel requested", "query_id", job.id)
	return &computeproto.CancelQueryResponse{QueryId: job.id, Status: job.statusResponse().Status}, nil
}

func (s *ComputeGRPCServer) DeleteQuery(ctx context.Context, req *computeproto.DeleteQueryRequest) (*computeproto.DeleteQueryResponse, error) {
	job, err := s.lookup(ctx, req.GetQueryId())
	if err != nil {
		return nil, err
	}
	job.cancelQuery()
	state := job.statusResponse()
	s.jobs.delete(job.id)
	if state.Status == "" {
		state.Status = compute.QueryStatusCanceled
	}
	return &computeproto.DeleteQueryResponse{QueryId: job.id, Status: state.Status}, nil
}

func (s *ComputeGRPCServer) Health(ctx context.Context, _ *computeproto.HealthRequest) (*computeproto.HealthResponse, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}

	s.jobs.maybeCleanup(s.now())
	active, queued, running, completed, stored, cleaned := s.Metrics()
	var version string
	if err := s.cfg.DB.QueryRowContext(ctx, "SELECT version()").Scan(&version); err != nil {
		s.cfg.Logger.Warn("duckdb version lookup failed", "error", err)
	}
	return &computeproto.HealthResponse{
		Status:        "ok",
		UptimeSeconds: int64(s.now().Sub(s.cfg.StartTime).Seconds()),
		ActiveQueries: active,
		QueuedJobs:    queued,
		RunningJobs:   running,
		CompletedJobs: completed,
		StoredJobs:    stored,
		CleanedJobs:   cleaned,
		DuckdbVersion: version,
		MaxMemoryGb:   int32(s.cfg.MaxMemoryGB), //nolint:gosec
		ResultTtlSecs: int32(s.jobs.ttl.Seconds()),
	}, nil
}

func (s *ComputeGRPCServer) lookup(ctx context.Context, queryID string) (*queryJob, error) {
	if err := s.authorize(ctx); err != nil {
		return nil, err
	}
	if queryID == "" {
		return nil, status.Error(codes.InvalidArgument, "query_id is required")
	}
	s.jobs.maybeCleanup(s.now())
	job, ok := s.jobs.get(queryID)
	if !ok {
		return nil, status.Error(codes.NotFound, "query not found")
	}
	return job, nil
}

func (s *ComputeGRPCServer) authorize(ctx context.Context) error {
	if s.cfg.AgentToken == "" {
		return nil
	}
	md, _ := metadata.FromIncomingContext(ctx)
	method, _ := grpc.Method(ctx)
	if err := compute.VerifyAgentCall(md, method, s.cfg.AgentToken, s.now(), compute.DefaultSignatureSkew); err != nil {
		s.cfg.Logger.Warn("rejected agent call", "method", method, "error", err)
		return status.Error(codes.Unauthenticated, "unauthorized")
	}
	return nil
}

func columnsToProto(cols []compute.Column) []*computeproto.Column {
	out := make([]*computeproto.Column, len(cols))
	for i, c := range cols {
		out[i] = &computeproto.Column{Name: c.Name, Type: c.Type}
	}
	return out
}
