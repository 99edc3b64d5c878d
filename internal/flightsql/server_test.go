package flightsql

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/apache/arrow-go/v18/arrow/array"
	arrowflightsql "github.com/apache/arrow-go/v18/arrow/flight/flightsql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	grpcHealthV1 "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	_ "github.com/duckdb/duckdb-go/v2"

	"duck-query/internal/compute"
	"duck-query/internal/document"
	"duck-query/internal/middleware"
	"duck-query/internal/query"
)

type testEnv struct {
	srv    *Server
	orch   *query.Orchestrator
	client *arrowflightsql.Client
}

func startServer(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	db, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	docs := document.NewStore()
	local := compute.NewLocalProvider(compute.LocalConfig{ID: "local", DB: db, Documents: docs})
	orch := query.NewOrchestrator(compute.NewDirectory(nil, "local"), nil)
	orch.RegisterProvider(local)

	cfg.Addr = "127.0.0.1:0"
	cfg.Orchestrator = orch
	cfg.Documents = docs
	srv := NewServer(cfg)
	require.NoError(t, srv.Start())

	client, err := arrowflightsql.NewClient(srv.Addr(), nil, nil,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = client.Close()
		_ = srv.Shutdown(context.Background())
		orch.Close()
		local.Close()
		_ = db.Close()
	})
	return &testEnv{srv: srv, orch: orch, client: client}
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// readAll executes sqlText and returns the rows of every streamed batch as
// strings, with nil for NULL.
func (e *testEnv) readAll(ctx context.Context, t *testing.T, sqlText string) (batches int, rows [][]*string) {
	t.Helper()
	info, err := e.client.Execute(ctx, sqlText)
	require.NoError(t, err)
	require.Len(t, info.Endpoint, 1)

	rdr, err := e.client.DoGet(ctx, info.Endpoint[0].Ticket)
	require.NoError(t, err)
	defer rdr.Release()

	for rdr.Next() {
		batches++
		rec := rdr.Record()
		for r := 0; r < int(rec.NumRows()); r++ {
			row := make([]*string, rec.NumCols())
			for c := range row {
				col := rec.Column(c).(*array.String)
				if !col.IsNull(r) {
					v := col.Value(r)
					row[c] = &v
				}
			}
			rows = append(rows, row)
		}
	}
	require.NoError(t, rdr.Err())
	return batches, rows
}

func TestServer_HealthCheck(t *testing.T) {
	env := startServer(t, Config{Auth: middleware.AuthConfig{APIKey: "k-1"}})
	ctx := testContext(t)

	conn, err := grpc.NewClient(env.srv.Addr(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	resp, err := grpcHealthV1.NewHealthClient(conn).Check(ctx, &grpcHealthV1.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, grpcHealthV1.HealthCheckResponse_SERVING, resp.GetStatus())
}

func TestServer_ExecuteStreamsBatches(t *testing.T) {
	env := startServer(t, Config{BatchRows: 1000})
	ctx := testContext(t)

	batches, rows := env.readAll(ctx, t, "SELECT range AS n, CASE WHEN range % 2 = 0 THEN NULL ELSE 'odd' END AS label FROM range(2500)")
	assert.Equal(t, 3, batches)
	require.Len(t, rows, 2500)
	assert.Equal(t, "0", *rows[0][0])
	assert.Nil(t, rows[0][1])
	assert.Equal(t, "odd", *rows[1][1])
	assert.Equal(t, "2499", *rows[2499][0])
}

func TestServer_ExecuteReturnsLastResultSet(t *testing.T) {
	env := startServer(t, Config{})
	ctx := testContext(t)

	_, rows := env.readAll(ctx, t, "CREATE TABLE t AS SELECT 42 AS v\nGO\nSELECT v FROM t")
	require.Len(t, rows, 1)
	assert.Equal(t, "42", *rows[0][0])

	q, ok := env.orch.Query(slotURI(0))
	require.True(t, ok)
	assert.Len(t, q.ResultSets(), 1)
}

func TestServer_ExecuteWithoutRows(t *testing.T) {
	env := startServer(t, Config{})
	ctx := testContext(t)

	batches, rows := env.readAll(ctx, t, "CREATE TABLE empty_t (a INTEGER)")
	assert.Zero(t, batches)
	assert.Empty(t, rows)
}

func TestServer_ExecuteErrors(t *testing.T) {
	env := startServer(t, Config{})
	ctx := testContext(t)

	_, err := env.client.Execute(ctx, "SELECT * FROM missing_table")
	require.Error(t, err)
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
	assert.Contains(t, err.Error(), "missing_table")

	_, err = env.client.Execute(ctx, "   ")
	assert.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_TicketExpiresWhenSlotReused(t *testing.T) {
	env := startServer(t, Config{Slots: 1})
	ctx := testContext(t)

	first, err := env.client.Execute(ctx, "SELECT 1 AS a")
	require.NoError(t, err)
	_, rows := env.readAll(ctx, t, "SELECT 2 AS a")
	require.Len(t, rows, 1)
	assert.Equal(t, "2", *rows[0][0])

	rdr, err := env.client.DoGet(ctx, first.Endpoint[0].Ticket)
	if err == nil {
		// Errors raised by DoGetStatement may surface on the first read.
		defer rdr.Release()
		assert.False(t, rdr.Next())
		err = rdr.Err()
	}
	require.Error(t, err)
	assert.Contains(t, err.Error(), "statement results expired")
}

func TestServer_GetTables(t *testing.T) {
	env := startServer(t, Config{})
	ctx := testContext(t)

	env.readAll(ctx, t, "CREATE TABLE orders (id INTEGER)\nGO\nCREATE VIEW recent AS SELECT * FROM orders")

	info, err := env.client.GetTables(ctx, &arrowflightsql.GetTablesOpts{TableTypes: []string{"TABLE"}})
	require.NoError(t, err)
	require.NotEmpty(t, info.Endpoint)

	rdr, err := env.client.DoGet(ctx, info.Endpoint[0].Ticket)
	require.NoError(t, err)
	defer rdr.Release()

	require.True(t, rdr.Next())
	rec := rdr.Record()
	require.Equal(t, int64(1), rec.NumRows())
	require.Equal(t, int64(4), rec.NumCols())
	assert.Equal(t, "orders", rec.Column(2).(*array.String).Value(0))
	assert.Equal(t, "BASE TABLE", rec.Column(3).(*array.String).Value(0))

	_, err = env.client.GetTables(ctx, &arrowflightsql.GetTablesOpts{IncludeSchema: true})
	assert.Equal(t, codes.Unimplemented, status.Code(err))
}

func TestServer_Auth(t *testing.T) {
	env := startServer(t, Config{Auth: middleware.AuthConfig{APIKey: "k-1"}})
	ctx := testContext(t)

	_, err := env.client.Execute(ctx, "SELECT 1")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	wrong := metadata.AppendToOutgoingContext(ctx, "x-api-key", "nope")
	_, err = env.client.Execute(wrong, "SELECT 1")
	assert.Equal(t, codes.Unauthenticated, status.Code(err))

	authed := metadata.AppendToOutgoingContext(ctx, "x-api-key", "k-1")
	_, rows := env.readAll(authed, t, "SELECT 7")
	require.Len(t, rows, 1)
	assert.Equal(t, "7", *rows[0][0])
}

func TestStatementRunner_Lookup(t *testing.T) {
	t.Parallel()
	r := newStatementRunner(nil, nil, 2, nil)
	r.results[1] = &statement{id: "abc", slot: 1}

	st, err := r.lookup("1:abc")
	require.NoError(t, err)
	assert.Equal(t, "1:abc", st.handle())

	for handle, want := range map[string]codes.Code{
		"1:zzz": codes.NotFound,
		"0:abc": codes.NotFound,
		"9:abc": codes.InvalidArgument,
		"abc":   codes.InvalidArgument,
	} {
		_, err := r.lookup(handle)
		assert.Equal(t, want, status.Code(err), handle)
	}
}

type tablesRequest struct {
	catalog, schemaPattern, tablePattern *string
	types                                []string
}

func (r tablesRequest) GetCatalog() *string                { return r.catalog }
func (r tablesRequest) GetDBSchemaFilterPattern() *string  { return r.schemaPattern }
func (r tablesRequest) GetTableNameFilterPattern() *string { return r.tablePattern }
func (r tablesRequest) GetTableTypes() []string            { return r.types }
func (r tablesRequest) GetIncludeSchema() bool             { return false }

func TestBuildTablesQuery(t *testing.T) {
	t.Parallel()
	const base = "SELECT table_catalog, table_schema, table_name, table_type FROM information_schema.tables"
	const order = " ORDER BY table_catalog, table_schema, table_name, table_type"

	assert.Equal(t, base+order, buildTablesQuery(tablesRequest{}))

	catalog, pattern := "main", "o'rd%"
	got := buildTablesQuery(tablesRequest{catalog: &catalog, tablePattern: &pattern, types: []string{"table", " "}})
	assert.Equal(t, base+" WHERE table_catalog = 'main' AND table_name LIKE 'o''rd%' AND UPPER(table_type) IN ('TABLE','BASE TABLE')"+order, got)
}
