package flightsql

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/array"
	arrowflight "github.com/apache/arrow-go/v18/arrow/flight"
	arrowflightsql "github.com/apache/arrow-go/v18/arrow/flight/flightsql"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"duck-query/internal/domain"
	"duck-query/internal/middleware"
	"duck-query/internal/query"
)

const defaultBatchRows = 1024

type queryServer struct {
	arrowflightsql.BaseServer

	runner    *statementRunner
	batchRows int
	logger    *slog.Logger
}

func newQueryServer(runner *statementRunner, batchRows int, logger *slog.Logger) *queryServer {
	if batchRows <= 0 {
		batchRows = defaultBatchRows
	}
	srv := &queryServer{runner: runner, batchRows: batchRows, logger: logger}
	_ = srv.RegisterSqlInfo(arrowflightsql.SqlInfoFlightSqlServerName, "duck-query")
	_ = srv.RegisterSqlInfo(arrowflightsql.SqlInfoFlightSqlServerVersion, "dev")
	_ = srv.RegisterSqlInfo(arrowflightsql.SqlInfoFlightSqlServerArrowVersion, "18")
	_ = srv.RegisterSqlInfo(arrowflightsql.SqlInfoFlightSqlServerSql, true)
	_ = srv.RegisterSqlInfo(arrowflightsql.SqlInfoFlightSqlServerReadOnly, false)
	return srv
}

func (s *queryServer) GetFlightInfoStatement(ctx context.Context, stmt arrowflightsql.StatementQuery, desc *arrowflight.FlightDescriptor) (*arrowflight.FlightInfo, error) {
	st, err := s.runner.run(ctx, stmt.GetQuery())
	if err != nil {
		return nil, err
	}
	principal, _ := middleware.PrincipalFromContext(ctx)
	s.logger.Debug("statement prepared", "principal", principal, "handle", st.handle())

	ticket, err := arrowflightsql.CreateStatementQueryTicket([]byte(st.handle()))
	if err != nil {
		return nil, fmt.Errorf("create statement query ticket: %w", err)
	}

	var (
		schema = arrow.NewSchema(nil, nil)
		total  int64
	)
	if st.rs != nil {
		schema = schemaFromColumns(st.rs.Columns())
		total = st.rs.RowCount()
	}
	return &arrowflight.FlightInfo{
		Schema:           arrowflight.SerializeSchema(schema, memory.DefaultAllocator),
		FlightDescriptor: desc,
		Endpoint: []*arrowflight.FlightEndpoint{{
			Ticket: &arrowflight.Ticket{Ticket: ticket},
			Location: []*arrowflight.Location{{
				Uri: arrowflight.LocationReuseConnection,
			}},
		}},
		TotalRecords: total,
		TotalBytes:   -1,
		Ordered:      true,
	}, nil
}

func (s *queryServer) DoGetStatement(ctx context.Context, queryTicket arrowflightsql.StatementQueryTicket) (*arrow.Schema, <-chan arrowflight.StreamChunk, error) {
	st, err := s.runner.lookup(string(queryTicket.GetStatementHandle()))
	if err != nil {
		return nil, nil, err
	}
	if st.rs == nil {
		schema := arrow.NewSchema(nil, nil)
		ch := make(chan arrowflight.StreamChunk)
		close(ch)
		return schema, ch, nil
	}
	schema := schemaFromColumns(st.rs.Columns())
	return schema, s.streamResultSet(ctx, schema, st.rs, nil), nil
}

func (s *queryServer) GetFlightInfoTables(_ context.Context, req arrowflightsql.GetTables, desc *arrowflight.FlightDescriptor) (*arrowflight.FlightInfo, error) {
	if req.GetIncludeSchema() {
		return nil, status.Error(codes.Unimplemented, "table schemas are not supported")
	}
	return &arrowflight.FlightInfo{
		Schema:           arrowflight.SerializeSchema(tablesSchema(), memory.DefaultAllocator),
		FlightDescriptor: desc,
		Endpoint: []*arrowflight.FlightEndpoint{{
			Ticket: &arrowflight.Ticket{Ticket: desc.Cmd},
			Location: []*arrowflight.Location{{
				Uri: arrowflight.LocationReuseConnection,
			}},
		}},
		TotalRecords: -1,
		TotalBytes:   -1,
		Ordered:      true,
	}, nil
}

func (s *queryServer) GetSchemaTables(_ context.Context, req arrowflightsql.GetTables, _ *arrowflight.FlightDescriptor) (*arrowflight.SchemaResult, error) {
	if req.GetIncludeSchema() {
		return nil, status.Error(codes.Unimplemented, "table schemas are not supported")
	}
	return &arrowflight.SchemaResult{Schema: arrowflight.SerializeSchema(tablesSchema(), memory.DefaultAllocator)}, nil
}

func (s *queryServer) DoGetTables(ctx context.Context, req arrowflightsql.GetTables) (*arrow.Schema, <-chan arrowflight.StreamChunk, error) {
	st, err := s.runner.run(ctx, buildTablesQuery(req))
	if err != nil {
		return nil, nil, err
	}
	schema := tablesSchema()
	if st.rs == nil {
		ch := make(chan arrowflight.StreamChunk)
		close(ch)
		return schema, ch, nil
	}
	// table_name and table_type are declared non-nullable.
	required := map[int]bool{2: true, 3: true}
	return schema, s.streamResultSet(ctx, schema, st.rs, required), nil
}

// streamResultSet pages rs into record batches of batchRows rows. Columns in
// required render NULL as the empty string.
func (s *queryServer) streamResultSet(ctx context.Context, schema *arrow.Schema, rs *query.ResultSet, required map[int]bool) <-chan arrowflight.StreamChunk {
	ch := make(chan arrowflight.StreamChunk)
	go func() {
		defer close(ch)
		total := rs.RowCount()
		for offset := int64(0); offset < total; offset += int64(s.batchRows) {
			subset, err := rs.Fetch(ctx, int(offset), s.batchRows)
			if err != nil {
				s.send(ctx, ch, arrowflight.StreamChunk{Err: statusFromError(err)})
				return
			}
			if subset.RowCount == 0 {
				return
			}
			record := recordFromRows(schema, subset.Rows, required)
			if !s.send(ctx, ch, arrowflight.StreamChunk{Data: record}) {
				record.Release()
				return
			}
		}
	}()
	return ch
}

func (s *queryServer) send(ctx context.Context, ch chan<- arrowflight.StreamChunk, chunk arrowflight.StreamChunk) bool {
	select {
	case ch <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// schemaFromColumns maps result columns to nullable string fields. The
// provider's type name travels in the Flight SQL type-name metadata.
func schemaFromColumns(columns []domain.ColumnInfo) *arrow.Schema {
	fields := make([]arrow.Field, len(columns))
	for i, column := range columns {
		name := strings.TrimSpace(column.Title)
		if name == "" {
			name = fmt.Sprintf("column_%d", i+1)
		}
		typeName := column.DataType
		if typeName == "" {
			typeName = string(column.Type)
		}
		fields[i] = arrow.Field{
			Name:     name,
			Type:     arrow.BinaryTypes.String,
			Nullable: true,
			Metadata: arrow.NewMetadata([]string{arrowflightsql.TypeNameKey}, []string{typeName}),
		}
	}
	return arrow.NewSchema(fields, nil)
}

func recordFromRows(schema *arrow.Schema, rows [][]domain.CellValue, required map[int]bool) arrow.Record {
	width := len(schema.Fields())
	builders := make([]*array.StringBuilder, width)
	for i := range builders {
		builders[i] = array.NewStringBuilder(memory.DefaultAllocator)
	}

	for _, row := range rows {
		for i := range builders {
			if i >= len(row) || row[i].IsNull {
				if required[i] {
					builders[i].Append("")
				} else {
					builders[i].AppendNull()
				}
				continue
			}
			builders[i].Append(row[i].DisplayValue)
		}
	}

	cols := make([]arrow.Array, width)
	for i := range builders {
		cols[i] = builders[i].NewArray()
		builders[i].Release()
	}

	record := array.NewRecord(schema, cols, int64(len(rows)))
	for i := range cols {
		cols[i].Release()
	}
	return record
}

func tablesSchema() *arrow.Schema {
	return arrow.NewSchema([]arrow.Field{
		{Name: "catalog_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "db_schema_name", Type: arrow.BinaryTypes.String, Nullable: true},
		{Name: "table_name", Type: arrow.BinaryTypes.String, Nullable: false},
		{Name: "table_type", Type: arrow.BinaryTypes.String, Nullable: false},
	}, nil)
}

func buildTablesQuery(req arrowflightsql.GetTables) string {
	query := "SELECT table_catalog, table_schema, table_name, table_type FROM information_schema.tables"
	filters := make([]string, 0, 4)

	if catalog := req.GetCatalog(); catalog != nil {
		filters = append(filters, fmt.Sprintf("table_catalog = %s", quoteSQLLiteral(*catalog)))
	}
	if pattern := req.GetDBSchemaFilterPattern(); pattern != nil {
		filters = append(filters, fmt.Sprintf("table_schema LIKE %s", quoteSQLLiteral(*pattern)))
	}
	if pattern := req.GetTableNameFilterPattern(); pattern != nil {
		filters = append(filters, fmt.Sprintf("table_name LIKE %s", quoteSQLLiteral(*pattern)))
	}

	if tableTypes := req.GetTableTypes(); len(tableTypes) > 0 {
		typeLiterals := make([]string, 0, len(tableTypes)*2)
		for _, tableType := range tableTypes {
			normalized := strings.ToUpper(strings.TrimSpace(tableType))
			if normalized == "" {
				continue
			}
			typeLiterals = append(typeLiterals, quoteSQLLiteral(normalized))
			if normalized == "TABLE" {
				typeLiterals = append(typeLiterals, quoteSQLLiteral("BASE TABLE"))
			}
		}
		if len(typeLiterals) > 0 {
			filters = append(filters, fmt.Sprintf("UPPER(table_type) IN (%s)", strings.Join(typeLiterals, ",")))
		}
	}

	if len(filters) > 0 {
		query += " WHERE " + strings.Join(filters, " AND ")
	}
	query += " ORDER BY table_catalog, table_schema, table_name, table_type"
	return query
}

func quoteSQLLiteral(value string) string {
	return "'" + strings.ReplaceAll(value, "'", "''") + "'"
}
