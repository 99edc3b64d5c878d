package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"duck-query/internal/compute"
	"duck-query/internal/config"
	"duck-query/internal/document"
	"duck-query/internal/domain"
	"duck-query/internal/query"
)

type runFlags struct {
	pageSize int
	options  []string
	dbPath   string
	timeout  time.Duration
}

func (f *runFlags) register(fs *pflag.FlagSet) {
	fs.IntVar(&f.pageSize, "page-size", 100, "Rows fetched per page when printing result sets")
	fs.StringArrayVar(&f.options, "option", nil, "Execution option as name=value (repeatable), e.g. max_rows=1000")
	fs.StringVar(&f.dbPath, "db", "", "DuckDB database file (default in-memory)")
	fs.DurationVar(&f.timeout, "timeout", 0, "Cancel the query after this long (0 = no limit)")
}

func newRunCmd(newLogger func(io.Writer) *slog.Logger) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run FILE",
		Short: "Execute a SQL file and print its messages and result sets",
		Long: `Runs FILE as one document. Lines consisting only of GO separate batches.
Messages are printed as they arrive; once the query completes every result set
is printed page by page.`,
		Example: `  duckq run report.sql
  duckq run report.sql --page-size 50 --option max_rows=1000 --option stop_on_error=false
  duckq run load.sql --db warehouse.duckdb -o json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()
			if flags.timeout > 0 {
				var tcancel context.CancelFunc
				ctx, tcancel = context.WithTimeout(ctx, flags.timeout)
				defer tcancel()
			}
			return runFile(ctx, cmd.OutOrStdout(), newLogger(cmd.ErrOrStderr()), args[0], flags, getOutputFormat(cmd) == "json")
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

// parseOptions turns name=value pairs into execution options. true/false
// become booleans, numeric values numbers, anything else a string.
func parseOptions(pairs []string) (domain.ExecutionOptions, error) {
	opts := domain.ExecutionOptions{}
	for _, pair := range pairs {
		name, raw, ok := strings.Cut(pair, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid --option %q: want name=value", pair)
		}
		opts[name] = domain.ParseOptionValue(strings.TrimSpace(raw))
	}
	return opts, nil
}

type runResult struct {
	Document   string             `json:"document"`
	Messages   []domain.Message   `json:"messages"`
	ResultSets []resultSetPayload `json:"result_sets"`
}

type resultSetPayload struct {
	BatchIndex  int                  `json:"batch_index"`
	ResultIndex int                  `json:"result_index"`
	Columns     []domain.ColumnInfo  `json:"columns"`
	Rows        [][]domain.CellValue `json:"rows"`
}

func runFile(ctx context.Context, out io.Writer, logger *slog.Logger, path string, flags runFlags, asJSON bool) error {
	if flags.pageSize <= 0 {
		return fmt.Errorf("--page-size must be positive, got %d", flags.pageSize)
	}
	opts, err := parseOptions(flags.options)
	if err != nil {
		return err
	}
	text, err := os.ReadFile(path) //nolint:gosec // user-selected input file
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolve %s: %w", path, err)
	}
	uri := "file://" + filepath.ToSlash(abs)

	duck, err := sql.Open("duckdb", flags.dbPath)
	if err != nil {
		return fmt.Errorf("open duckdb: %w", err)
	}
	defer duck.Close() //nolint:errcheck

	docs := document.NewStore()
	if _, err := docs.Put(uri, string(text)); err != nil {
		return err
	}
	local := compute.NewLocalProvider(compute.LocalConfig{ID: config.LocalProviderID, DB: duck, Documents: docs, Logger: logger})
	defer local.Close()

	orch := query.NewOrchestrator(compute.NewDirectory(nil, config.LocalProviderID), logger)
	defer orch.Close()
	orch.RegisterProvider(local)

	q := orch.CreateOrGetQuery(uri, false)
	if len(opts) > 0 {
		if err := q.SetExecutionOptions(ctx, opts); err != nil {
			return err
		}
	}

	var outMu sync.Mutex
	if !asJSON {
		sub := q.OnMessage(func(msgs []domain.Message) {
			outMu.Lock()
			defer outMu.Unlock()
			for _, m := range msgs {
				prefix := ""
				if m.IsError {
					prefix = "ERROR: "
				}
				_, _ = fmt.Fprintf(out, "%s%s\n", prefix, m.Text)
			}
		})
		defer sub.Unsubscribe()
	}
	done := make(chan struct{}, 1)
	completeSub := q.OnQueryComplete(func(*query.Query) {
		select {
		case done <- struct{}{}:
		default:
		}
	})
	defer completeSub.Unsubscribe()

	if err := q.Execute(ctx); err != nil {
		return err
	}
	select {
	case <-done:
	case <-ctx.Done():
		cancelCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := q.Cancel(cancelCtx); err != nil {
			logger.Warn("cancel query", "error", err)
		}
		select {
		case <-done:
		case <-cancelCtx.Done():
			logger.Warn("query did not stop after cancel")
		}
		return fmt.Errorf("query interrupted: %w", ctx.Err())
	}

	result := runResult{Document: uri, Messages: q.Messages()}
	hadError := false
	for _, m := range result.Messages {
		hadError = hadError || m.IsError
	}

	outMu.Lock()
	defer outMu.Unlock()
	for _, rs := range q.ResultSets() {
		payload := resultSetPayload{BatchIndex: rs.BatchIndex(), ResultIndex: rs.ResultIndex(), Columns: rs.Columns()}
		if !asJSON {
			_, _ = fmt.Fprintf(out, "\n-- result set %s (%d rows)\n", rs.ID(), rs.RowCount())
		}
		err := pageResultSet(ctx, rs, flags.pageSize, func(rows [][]domain.CellValue) error {
			if asJSON {
				payload.Rows = append(payload.Rows, rows...)
				return nil
			}
			return printTable(out, payload.Columns, rows)
		})
		if err != nil {
			return fmt.Errorf("fetch result set %s: %w", rs.ID(), err)
		}
		result.ResultSets = append(result.ResultSets, payload)
	}
	if asJSON {
		if err := printJSON(out, result); err != nil {
			return err
		}
	}
	if hadError {
		return errors.New("query finished with errors")
	}
	return nil
}

// pageResultSet fetches rs in pages of pageSize rows and hands each non-empty
// page to emit.
func pageResultSet(ctx context.Context, rs *query.ResultSet, pageSize int, emit func([][]domain.CellValue) error) error {
	total := rs.RowCount()
	for offset := int64(0); offset < total; offset += int64(pageSize) {
		subset, err := rs.Fetch(ctx, int(offset), pageSize)
		if err != nil {
			return err
		}
		if subset.RowCount == 0 {
			return nil
		}
		if err := emit(subset.Rows); err != nil {
			return err
		}
	}
	return nil
}
