package compute

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"duck-query/internal/document"
	"duck-query/internal/domain"
)

var (
	_ domain.QueryProvider   = (*LocalProvider)(nil)
	_ domain.OptionDescriber = (*LocalProvider)(nil)
)

// Status texts returned by CancelQuery.
const (
	StatusCancelled   = "Query cancelled by user."
	StatusNotExecuted = "No query is executing."
)

// DefaultChunkSize is the number of rows read between result set updates.
const DefaultChunkSize = 500

// Execution options understood by the local provider.
const (
	OptionMaxRows     = "max_rows"
	OptionStopOnError = "stop_on_error"
	OptionChunkSize   = "chunk_size"
)

var localOptionSpecs = []domain.OptionSpec{
	{Name: OptionMaxRows, Kind: domain.OptionNumber, Description: "Stop reading a result after this many rows (0 = unlimited)."},
	{Name: OptionStopOnError, Kind: domain.OptionBool, Description: "Skip the remaining batches after a failed batch (default true)."},
	{Name: OptionChunkSize, Kind: domain.OptionNumber, Description: "Rows read between result set updates."},
}

// LocalConfig configures a LocalProvider.
type LocalConfig struct {
	// ID is the identity the provider registers under. Defaults to "local".
	ID        string
	DB        *sql.DB
	Documents domain.DocumentSource
	ChunkSize int
	Logger    *slog.Logger
}

// LocalProvider executes documents against an in-process DuckDB database and
// keeps their result rows in memory until the document runs again.
type LocalProvider struct {
	EventHub

	id        string
	db        *sql.DB
	docs      domain.DocumentSource
	chunkSize int
	logger    *slog.Logger

	mu      sync.Mutex
	runs    map[string]*localRun
	results map[string]*resultStore
	options map[string]runOptions
}

type localRun struct {
	cancel context.CancelFunc
	done   chan struct{}
}

type runOptions struct {
	maxRows     int64
	stopOnError bool
	chunkSize   int
}

// NewLocalProvider creates a LocalProvider.
func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	id := cfg.ID
	if id == "" {
		id = "local"
	}
	chunk := cfg.ChunkSize
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalProvider{
		id:        id,
		db:        cfg.DB,
		docs:      cfg.Documents,
		chunkSize: chunk,
		logger:    logger.With("component", "local-provider", "provider", id),
		runs:      make(map[string]*localRun),
		results:   make(map[string]*resultStore),
		options:   make(map[string]runOptions),
	}
}

// ProviderID implements domain.QueryProvider.
func (p *LocalProvider) ProviderID() string { return p.id }

// KnownOptions implements domain.OptionDescriber.
func (p *LocalProvider) KnownOptions() []domain.OptionSpec {
	return append([]domain.OptionSpec(nil), localOptionSpecs...)
}

// RunQuery starts executing the document stored under ownerURI. Batches run
// sequentially on a background goroutine that emits every event for the owner.
func (p *LocalProvider) RunQuery(_ context.Context, ownerURI string) error {
	text, ok := p.docs.Text(ownerURI)
	if !ok {
		return domain.ErrNotFound("document %q not found", ownerURI)
	}
	batches := document.SplitBatches(text)

	p.mu.Lock()
	if _, running := p.runs[ownerURI]; running {
		p.mu.Unlock()
		return domain.ErrConflict("a query for %q is already running", ownerURI)
	}
	runCtx, cancel := context.WithCancel(context.Background())
	run := &localRun{cancel: cancel, done: make(chan struct{})}
	p.runs[ownerURI] = run
	store := newResultStore()
	p.results[ownerURI] = store
	opts := p.optionsFor(ownerURI)
	p.mu.Unlock()

	p.logger.Info("running query", "owner_uri", ownerURI, "batches", len(batches))

	go func() {
		defer close(run.done)
		p.execute(runCtx, ownerURI, batches, store, opts)
		p.release(ownerURI, run)
		p.report(p.EmitQueryComplete(domain.QueryCompleteEvent{OwnerURI: ownerURI}))
		p.logger.Debug("query finished", "owner_uri", ownerURI)
	}()
	return nil
}

// release frees the owner. It runs before QueryComplete is emitted.
func (p *LocalProvider) release(ownerURI string, run *localRun) {
	p.mu.Lock()
	if p.runs[ownerURI] == run {
		delete(p.runs, ownerURI)
	}
	p.mu.Unlock()
	run.cancel()
}

// CancelQuery signals the owner's running query to stop and returns without
// waiting for it. The run still emits its remaining events, ending with
// QueryComplete.
func (p *LocalProvider) CancelQuery(_ context.Context, ownerURI string) (string, error) {
	p.mu.Lock()
	run, ok := p.runs[ownerURI]
	p.mu.Unlock()
	if !ok {
		return StatusNotExecuted, nil
	}

	run.cancel()
	p.logger.Info("query cancelled", "owner_uri", ownerURI)
	return StatusCancelled, nil
}

// FetchSubset returns rows [StartIndex, StartIndex+RowCount) of one result
// set, clamped to the rows read so far.
func (p *LocalProvider) FetchSubset(_ context.Context, ownerURI string, req domain.SubsetRequest) (*domain.ResultSubset, error) {
	if req.StartIndex < 0 || req.RowCount < 0 {
		return nil, domain.ErrValidation("start index and row count must not be negative")
	}

	p.mu.Lock()
	store, ok := p.results[ownerURI]
	p.mu.Unlock()
	if !ok {
		return nil, domain.ErrNotFound("no results for %q", ownerURI)
	}

	rs, ok := store.get(domain.ResultSetKey{BatchIndex: req.BatchIndex, ResultIndex: req.ResultIndex})
	if !ok {
		return nil, domain.ErrNotFound("result set %d:%d not found for %q", req.BatchIndex, req.ResultIndex, ownerURI)
	}
	rows := rs.window(req.StartIndex, req.RowCount)
	return &domain.ResultSubset{RowCount: len(rows), Rows: rows}, nil
}

// SetExecutionOptions stores options applied to the owner's next run.
func (p *LocalProvider) SetExecutionOptions(_ context.Context, ownerURI string, opts domain.ExecutionOptions) error {
	if err := domain.ValidateExecutionOptions(opts, localOptionSpecs); err != nil {
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
	if v, ok := opts[OptionChunkSize].AsNumber(); ok {
		if v < 1 || v != math.Trunc(v) {
			return domain.ErrValidation("%s must be a positive integer", OptionChunkSize)
		}
		current.chunkSize = int(v)
	}
	if v, ok := opts[OptionStopOnError].AsBool(); ok {
		current.stopOnError = v
	}
	p.options[ownerURI] = current
	return nil
}

// Close cancels every running query and waits for them to stop.
func (p *LocalProvider) Close() {
	p.mu.Lock()
	runs := make([]*localRun, 0, len(p.runs))
	for _, run := range p.runs {
		runs = append(runs, run)
	}
	p.mu.Unlock()

	for _, run := range runs {
		run.cancel()
		<-run.done
	}
}

// optionsFor must be called with p.mu held.
func (p *LocalProvider) optionsFor(ownerURI string) runOptions {
	if opts, ok := p.options[ownerURI]; ok {
		return opts
	}
	return runOptions{stopOnError: true, chunkSize: p.chunkSize}
}

func (p *LocalProvider) execute(ctx context.Context, ownerURI string, batches []document.Batch, store *resultStore, opts runOptions) {
	for _, batch := range batches {
		if ctx.Err() != nil {
			break
		}

		p.report(p.EmitBatchStart(domain.BatchStartEvent{
			OwnerURI:       ownerURI,
			BatchIndex:     batch.Index,
			ExecutionStart: time.Now(),
		}))

		err := p.runBatch(ctx, ownerURI, batch, store, opts)
		if err != nil {
			text := err.Error()
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
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

func (p *LocalProvider) runBatch(ctx context.Context, ownerURI string, batch document.Batch, store *resultStore, opts runOptions) error {
	if !ReturnsRows(batch.SQL) {
		res, err := p.db.ExecContext(ctx, batch.SQL)
		if err != nil {
			return err
		}
		affected, err := res.RowsAffected()
		if err != nil {
			affected = -1
		}
		p.message(ownerURI, batch.Index, rowsAffected(affected), false)
		return nil
	}

	rows, err := p.db.QueryContext(ctx, batch.SQL)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck

	cols, err := ColumnsFromRows(rows)
	if err != nil {
		return err
	}

	rs := store.add(domain.ResultSetKey{BatchIndex: batch.Index}, ColumnInfos(cols))
	p.report(p.EmitResultSetAvailable(domain.ResultSetEvent{OwnerURI: ownerURI, Summary: rs.summary()}))

	var read int64
	for rows.Next() {
		cells, err := ScanRow(rows, len(cols))
		if err != nil {
			return err
		}
		rs.append(cells)
		read++
		if read%int64(opts.chunkSize) == 0 {
			p.report(p.EmitResultSetUpdated(domain.ResultSetEvent{OwnerURI: ownerURI, Summary: rs.summary()}))
		}
		if opts.maxRows > 0 && read >= opts.maxRows {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return err
	}

	rs.complete()
	p.report(p.EmitResultSetUpdated(domain.ResultSetEvent{OwnerURI: ownerURI, Summary: rs.summary()}))
	p.message(ownerURI, batch.Index, rowsAffected(read), false)
	return nil
}

func (p *LocalProvider) message(ownerURI string, batchIndex int, text string, isError bool) {
	idx := batchIndex
	p.report(p.EmitMessage(domain.MessageEvent{
		OwnerURI: ownerURI,
		Messages: []domain.Message{{Text: text, IsError: isError, Time: time.Now(), BatchIndex: &idx}},
	}))
}

// report logs events the orchestrator rejected. Execution continues.
func (p *LocalProvider) report(err error) {
	if err != nil {
		p.logger.Warn("event rejected by subscriber", "error", err)
	}
}

// rowsAffected renders a row count message. Negative counts mean the driver
// could not report one.
func rowsAffected(n int64) string {
	if n < 0 {
		return "Commands completed successfully."
	}
	if n == 1 {
		return "(1 row affected)"
	}
	return fmt.Sprintf("(%d rows affected)", n)
}

// resultStore holds the buffered result sets of one execution.
type resultStore struct {
	mu   sync.RWMutex
	sets map[domain.ResultSetKey]*bufferedResult
}

func newResultStore() *resultStore {
	return &resultStore{sets: make(map[domain.ResultSetKey]*bufferedResult)}
}

func (s *resultStore) add(key domain.ResultSetKey, cols []domain.ColumnInfo) *bufferedResult {
	rs := &bufferedResult{key: key, columns: cols}
	s.mu.Lock()
	s.sets[key] = rs
	s.mu.Unlock()
	return rs
}

func (s *resultStore) get(key domain.ResultSetKey) (*bufferedResult, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rs, ok := s.sets[key]
	return rs, ok
}

type bufferedResult struct {
	key     domain.ResultSetKey
	columns []domain.ColumnInfo

	mu        sync.RWMutex
	rows      [][]domain.CellValue
	completed bool
}

func (r *bufferedResult) append(row []domain.CellValue) {
	r.mu.Lock()
	r.rows = append(r.rows, row)
	r.mu.Unlock()
}

func (r *bufferedResult) complete() {
	r.mu.Lock()
	r.completed = true
	r.mu.Unlock()
}

func (r *bufferedResult) summary() domain.ResultSetSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return domain.ResultSetSummary{
		BatchIndex:  r.key.BatchIndex,
		ResultIndex: r.key.ResultIndex,
		RowCount:    int64(len(r.rows)),
		Completed:   r.completed,
		Columns:     r.columns,
	}
}

func (r *bufferedResult) window(start, count int) [][]domain.CellValue {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if start >= len(r.rows) || count == 0 {
		return [][]domain.CellValue{}
	}
	end := start + count
	if end > len(r.rows) || end < start {
		end = len(r.rows)
	}
	return append([][]domain.CellValue(nil), r.rows[start:end]...)
}
