package compute

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"duck-query/internal/document"
	"duck-query/internal/domain"
)

var (
	_ domain.QueryProvider   = (*RemoteProvider)(nil)
	_ domain.OptionDescriber = (*RemoteProvider)(nil)
)

// DefaultPollInterval is how often the remote provider polls job status.
const DefaultPollInterval = 100 * time.Millisecond

var remoteOptionSpecs = []domain.OptionSpec{
	{Name: OptionMaxRows, Kind: domain.OptionNumber, Description: "Keep at most this many rows per result (0 = unlimited)."},
	{Name: OptionStopOnError, Kind: domain.OptionBool, Description: "Skip the remaining batches after a failed batch (default true)."},
}

// RemoteConfig configures a RemoteProvider.
type RemoteConfig struct {
	ID           string
	EndpointURL  string
	AuthToken    string
	Documents    domain.DocumentSource
	PollInterval time.Duration
	Logger       *slog.Logger
}

// RemoteProvider runs document batches on a compute agent through the gRPC
// query lifecycle. Results stay on the agent and are paged on demand.
type RemoteProvider struct {
	EventHub

	id           string
	endpointURL  string
	authToken    string
	docs         domain.DocumentSource
	pollInterval time.Duration
	logger       *slog.Logger

	grpcMu     sync.Mutex
	grpcClient *grpcWorkerClient

	mu      sync.Mutex
	runs    map[string]*remoteRun
	results map[string]map[domain.ResultSetKey]string
	options map[string]runOptions
}

type remoteRun struct {
	cancel  context.CancelFunc
	done    chan struct{}
	mu      sync.Mutex
	queryID string
}

func (r *remoteRun) current() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.queryID
}

func (r *remoteRun) setCurrent(id string) {
	r.mu.Lock()
	r.queryID = id
	r.mu.Unlock()
}

// NewRemoteProvider creates a RemoteProvider for a compute agent endpoint.
func NewRemoteProvider(cfg RemoteConfig) *RemoteProvider {
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RemoteProvider{
		id:           cfg.ID,
		endpointURL:  strings.TrimRight(cfg.EndpointURL, "/"),
		authToken:    cfg.AuthToken,
		docs:         cfg.Documents,
		pollInterval: poll,
		logger:       logger.With("component", "remote-provider", "provider", cfg.ID),
		runs:         make(map[string]*remoteRun),
		results:      make(map[string]map[domain.ResultSetKey]string),
		options:      make(map[string]runOptions),
	}
}

// ProviderID implements domain.QueryProvider.
func (p *RemoteProvider) ProviderID() string { return p.id }

// KnownOptions implements domain.OptionDescriber.
func (p *RemoteProvider) KnownOptions() []domain.OptionSpec {
	return append([]domain.OptionSpec(nil), remoteOptionSpecs...)
}

// RunQuery submits the document's batches to the agent one after another on
// a background goroutine. Results of the owner's previous run are discarded.
func (p *RemoteProvider) RunQuery(_ context.Context, ownerURI string) error {
	text, ok := p.docs.Text(ownerURI)
	if !ok {
		return domain.ErrNotFound("document %q not found", ownerURI)
	}
	client, err := p.ensureGRPCClient()
	if err != nil {
		return err
	}
	batches := document.SplitBatches(text)

	p.mu.Lock()
	if _, running := p.runs[ownerURI]; running {
		p.mu.Unlock()
		return domain.ErrConflict("a query for %q is already running", ownerURI)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	run := &remoteRun{cancel: cancel, done: make(chan struct{})}
	p.runs[ownerURI] = run
	previous := p.results[ownerURI]
	results := make(map[domain.ResultSetKey]string)
	p.results[ownerURI] = results
	opts := p.optionsFor(ownerURI)
	p.mu.Unlock()

	p.logger.Info("running query", "owner_uri", ownerURI, "batches", len(batches))

	go func() {
		defer close(run.done)
		p.discard(client, previous)
		p.execute(runCtx, client, run, ownerURI, batches, results, opts)

		p.mu.Lock()
		if p.runs[ownerURI] == run {
			delete(p.runs, ownerURI)
		}
		p.mu.Unlock()
		cancel()
		p.report(p.EmitQueryComplete(domain.QueryCompleteEvent{OwnerURI: ownerURI}))
	}()
	return nil
}

// CancelQuery cancels the owner's current job on the agent and stops the run
// without waiting for it to finish emitting events.
func (p *RemoteProvider) CancelQuery(ctx context.Context, ownerURI string) (string, error) {
	p.mu.Lock()
	run, ok := p.runs[ownerURI]
	p.mu.Unlock()
	if !ok {
		return StatusNotExecuted, nil
	}

	if queryID := run.current(); queryID != "" {
		if client, err := p.ensureGRPCClient(); err == nil {
			if err := client.cancelQuery(ctx, CancelQueryRequest{QueryID: queryID}, ""); err != nil && !isGRPCNotFound(err) {
				p.logger.Warn("remote cancel failed", "owner_uri", ownerURI, "query_id", queryID, "error", err)
			}
		}
	}
	run.cancel()
	p.logger.Info("query cancelled", "owner_uri", ownerURI)
	return StatusCancelled, nil
}

// FetchSubset pages rows of a result set from the agent, following page
// tokens until RowCount rows were read or the result is exhausted.
func (p *RemoteProvider) FetchSubset(ctx context.Context, ownerURI string, req domain.SubsetRequest) (*domain.ResultSubset, error) {
	if req.StartIndex < 0 || req.RowCount < 0 {
		return nil, domain.ErrValidation("start index and row count must not be negative")
	}

	p.mu.Lock()
	queryID, ok := p.results[ownerURI][domain.ResultSetKey{BatchIndex: req.BatchIndex, ResultIndex: req.ResultIndex}]
	p.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound("result set %d:%d not found for %q", req.BatchIndex, req.ResultIndex, ownerURI)
	}

	client, err := p.ensureGRPCClient()
	if err != nil {
		return nil, err
	}

	requestID := uuid.New().String()
	subset := &domain.ResultSubset{Rows: make([][]domain.CellValue, 0, min(req.RowCount, MaxPageSize))}
	pageToken := EncodePageToken(req.StartIndex)
	remaining := req.RowCount

	for remaining > 0 {
		page, err := client.fetchQueryResults(ctx, FetchQueryResultsRequest{
			QueryID:    queryID,
			PageToken:  pageToken,
			MaxResults: remaining,
		}, requestID)
		if err != nil {
			if isGRPCNotFound(err) {
				return nil, domain.ErrNotFound("result set %d:%d for %q is no longer available", req.BatchIndex, req.ResultIndex, ownerURI)
			}
			return nil, fmt.Errorf("fetch query results: %w", err)
		}
		for _, row := range page.Rows {
			subset.Rows = append(subset.Rows, CellsFromRow(row))
		}
		remaining -= len(page.Rows)
		if page.NextPageToken == "" || len(page.Rows) == 0 {
			break
		}
		pageToken = page.NextPageToken
	}

	subset.RowCount = len(subset.Rows)
	return subset, nil
}

// SetExecutionOptions stores options applied to the owner's next run.
func (p *RemoteProvider) SetExecutionOptions(_ context.Context, ownerURI string, opts domain.ExecutionOptions) error {
	if err := domain.ValidateExecutionOptions(opts, remoteOptionSpecs); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	current := p.optionsFor(ownerURI)
	if v, ok := opts[OptionMaxRows].AsNumber(); ok {
		if v < 0 || v != math.Trunc(v) {
			return domain.ErrValidation("%s must be a non-negative integer", OptionMaxRows)
		}
		current.maxRows = int64(v)
	}
	if v, ok := opts[OptionStopOnError].AsBool(); ok {
		current.stopOnError = v
	}
	p.options[ownerURI] = current
	return nil
}

// Ping performs a health check against the remote agent.
func (p *RemoteProvider) Ping(ctx context.Context) (HealthResponse, error) {
	client, err := p.ensureGRPCClient()
	if err != nil {
		return HealthResponse{}, err
	}
	resp, err := client.health(ctx)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("grpc health check: %w", err)
	}
	return resp, nil
}

// Close cancels running queries, deletes stored results on the agent, and
// closes the connection.
func (p *RemoteProvider) Close() error {
	p.mu.Lock()
	runs := make([]*remoteRun, 0, len(p.runs))
	for _, run := range p.runs {
		runs = append(runs, run)
	}
	p.mu.Unlock()
	for _, run := range runs {
		run.cancel()
		<-run.done
	}

	p.grpcMu.Lock()
	client := p.grpcClient
	p.grpcClient = nil
	p.grpcMu.Unlock()
	if client == nil {
		return nil
	}

	p.mu.Lock()
	stored := p.results
	p.results = make(map[string]map[domain.ResultSetKey]string)
	p.mu.Unlock()
	for _, results := range stored {
		p.discard(client, results)
	}
	return client.close()
}

func (p *RemoteProvider) optionsFor(ownerURI string) runOptions {
	if opts, ok := p.options[ownerURI]; ok {
		return opts
	}
	return runOptions{stopOnError: true}
}

func (p *RemoteProvider) ensureGRPCClient() (*grpcWorkerClient, error) {
	p.grpcMu.Lock()
	defer p.grpcMu.Unlock()

	if p.grpcClient != nil {
		return p.grpcClient, nil
	}
	client, err := newGRPCWorkerClient(p.endpointURL, p.authToken)
	if err != nil {
		return nil, err
	}
	p.grpcClient = client
	return client, nil
}

// discard deletes agent-side jobs of a finished execution.
func (p *RemoteProvider) discard(client *grpcWorkerClient, results map[domain.ResultSetKey]string) {
	for _, queryID := range results {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := client.deleteQuery(ctx, DeleteQueryRequest{QueryID: queryID}, ""); err != nil && !isGRPCNotFound(err) {
			p.logger.Debug("delete remote query failed", "query_id", queryID, "error", err)
		}
		cancel()
	}
}

func (p *RemoteProvider) execute(ctx context.Context, client *grpcWorkerClient, run *remoteRun, ownerURI string, batches []document.Batch, results map[domain.ResultSetKey]string, opts runOptions) {
	for _, batch := range batches {
		if ctx.Err() != nil {
			break
		}

		p.report(p.EmitBatchStart(domain.BatchStartEvent{
			OwnerURI:       ownerURI,
			BatchIndex:     batch.Index,
			ExecutionStart: time.Now(),
		}))

		err := p.runBatch(ctx, client, run, ownerURI, batch, results, opts)
		if err != nil {
			text := err.Error()
			if ctx.Err() != nil {
				text = "Query was cancelled."
			}
			p.message(ownerURI, batch.Index, text, true)
		}

		p.report(p.EmitBatchComplete(domain.BatchCompleteEvent{
			OwnerURI:     ownerURI,
			BatchIndex:   batch.Index,
			ExecutionEnd: time.Now(),
			HasError:     err != nil,
		}))

		if err != nil && opts.stopOnError {
			break
		}
	}
}

func (p *RemoteProvider) runBatch(ctx context.Context, client *grpcWorkerClient, run *remoteRun, ownerURI string, batch document.Batch, results map[domain.ResultSetKey]string, opts runOptions) error {
	requestID := uuid.New().String()
	submitResp, err := client.submitQuery(ctx, SubmitQueryRequest{SQL: batch.SQL, RequestID: requestID, MaxRows: opts.maxRows})
	if err != nil {
		return fmt.Errorf("submit query: %w", err)
	}
	if submitResp.QueryID == "" {
		return errors.New("submit query: missing query id")
	}
	run.setCurrent(submitResp.QueryID)
	defer run.setCurrent("")

	statusResp, err := p.waitForCompletion(ctx, client, submitResp.QueryID, requestID)
	if err != nil {
		return err
	}

	switch statusResp.Status {
	case QueryStatusFailed:
		if statusResp.Error == "" {
			return errors.New("query did not complete successfully")
		}
		return errors.New(statusResp.Error)
	case QueryStatusCanceled:
		return context.Canceled
	}

	key := domain.ResultSetKey{BatchIndex: batch.Index}
	if !statusResp.HasResult {
		p.discard(client, map[domain.ResultSetKey]string{key: submitResp.QueryID})
		p.message(ownerURI, batch.Index, rowsAffected(statusResp.RowsAffected), false)
		return nil
	}

	p.mu.Lock()
	results[key] = submitResp.QueryID
	p.mu.Unlock()

	summary := domain.ResultSetSummary{
		BatchIndex: batch.Index,
		RowCount:   statusResp.RowCount,
		Columns:    ColumnInfos(statusResp.Columns),
	}
	p.report(p.EmitResultSetAvailable(domain.ResultSetEvent{OwnerURI: ownerURI, Summary: summary}))
	summary.Completed = true
	p.report(p.EmitResultSetUpdated(domain.ResultSetEvent{OwnerURI: ownerURI, Summary: summary}))
	p.message(ownerURI, batch.Index, rowsAffected(statusResp.RowCount), false)
	return nil
}

func (p *RemoteProvider) waitForCompletion(ctx context.Context, client *grpcWorkerClient, queryID, requestID string) (QueryStatusResponse, error) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		statusResp, err := client.getQueryStatus(ctx, GetQueryStatusRequest{QueryID: queryID}, requestID)
		if err != nil {
			if ctx.Err() != nil {
				return QueryStatusResponse{}, ctx.Err()
			}
			return QueryStatusResponse{}, fmt.Errorf("query status failed: %w", err)
		}
		if statusResp.Terminal() {
			return statusResp, nil
		}

		select {
		case <-ctx.Done():
			_ = client.cancelQuery(context.Background(), CancelQueryRequest{QueryID: queryID}, requestID)
			return QueryStatusResponse{}, fmt.Errorf("wait for query completion: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (p *RemoteProvider) message(ownerURI string, batchIndex int, text string, isError bool) {
	idx := batchIndex
	p.report(p.EmitMessage(domain.MessageEvent{
		OwnerURI: ownerURI,
		Messages: []domain.Message{{Text: text, IsError: isError, Time: time.Now(), BatchIndex: &idx}},
	}))
}

func (p *RemoteProvider) report(err error) {
	if err != nil {
		p.logger.Warn("event rejected by subscriber", "error", err)
	}
}
