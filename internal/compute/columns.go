package compute

import (
	"database/sql"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"duck-query/internal/domain"
)

// SemanticColumnType maps a DuckDB type name to the semantic type grids use
// to pick a viewer.
func SemanticColumnType(dbType string) domain.ColumnType {
	switch strings.ToUpper(strings.TrimSpace(dbType)) {
	case "JSON":
		return domain.ColumnTypeJSON
	case "XML":
		return domain.ColumnTypeXML
	default:
		return domain.ColumnTypeUnknown
	}
}

// ColumnsFromRows describes the columns of an open result.
func ColumnsFromRows(rows *sql.Rows) ([]Column, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, fmt.Errorf("column types: %w", err)
	}
	cols := make([]Column, len(types))
	for i, ct := range types {
		cols[i] = Column{Name: ct.Name(), Type: ct.DatabaseTypeName()}
	}
	return cols, nil
}

// ColumnInfos converts wire columns to domain column descriptions.
func ColumnInfos(cols []Column) []domain.ColumnInfo {
	out := make([]domain.ColumnInfo, len(cols))
	for i, c := range cols {
		out[i] = domain.ColumnInfo{Title: c.Name, Type: SemanticColumnType(c.Type), DataType: c.Type}
	}
	return out
}

// ScanRow reads the current row of rows and renders every cell.
func ScanRow(rows *sql.Rows, width int) ([]domain.CellValue, error) {
	values := make([]any, width)
	ptrs := make([]any, width)
	for i := range values {
		ptrs[i] = &values[i]
	}
	if err := rows.Scan(ptrs...); err != nil {
		return nil, fmt.Errorf("scan row: %w", err)
	}
	cells := make([]domain.CellValue, width)
	for i, v := range values {
		cells[i] = RenderCell(v)
	}
	return cells, nil
}

// RenderCell converts a scanned database value to its display form.
func RenderCell(v any) domain.CellValue {
	switch x := v.(type) {
	case nil:
		return domain.CellValue{IsNull: true}
	case string:
		return domain.CellValue{DisplayValue: x}
	case []byte:
		return domain.CellValue{DisplayValue: "0x" + hex.EncodeToString(x)}
	case bool:
		return domain.CellValue{DisplayValue: strconv.FormatBool(x)}
	case float64:
		return domain.CellValue{DisplayValue: strconv.FormatFloat(x, 'g', -1, 64)}
	case float32:
		return domain.CellValue{DisplayValue: strconv.FormatFloat(float64(x), 'g', -1, 32)}
	case time.Time:
		return domain.CellValue{DisplayValue: x.Format(time.RFC3339Nano)}
	default:
		return domain.CellValue{DisplayValue: fmt.Sprintf("%v", x)}
	}
}

// RowFromCells encodes rendered cells as a wire row.
func RowFromCells(cells []domain.CellValue) ResultRow {
	row := ResultRow{Values: make([]string, len(cells))}
	for i, c := range cells {
		row.Values[i] = c.DisplayValue
		if c.IsNull {
			if row.Nulls == nil {
				row.Nulls = make([]bool, len(cells))
			}
			row.Nulls[i] = true
		}
	}
	return row
}

// CellsFromRow decodes a wire row.
func CellsFromRow(row ResultRow) []domain.CellValue {
	cells := make([]domain.CellValue, len(row.Values))
	for i, v := range row.Values {
		cells[i] = domain.CellValue{DisplayValue: v, IsNull: i < len(row.Nulls) && row.Nulls[i]}
	}
	return cells
}

var rowReturningKeywords = map[string]bool{
	"SELECT": true, "WITH": true, "FROM": true, "VALUES": true, "TABLE": true,
	"SHOW": true, "DESCRIBE": true, "SUMMARIZE": true, "EXPLAIN": true,
	"PRAGMA": true, "CALL": true, "PIVOT": true, "UNPIVOT": true, "(": true,
}

// ReturnsRows reports whether the last statement of a batch produces a result
// set, judged by its leading keyword.
func ReturnsRows(batch string) bool {
	last := lastStatement(stripComments(batch))
	if last == "" {
		return false
	}
	if strings.HasPrefix(last, "(") {
		return true
	}
	word := last
	if i := strings.IndexFunc(last, func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '('
	}); i >= 0 {
		word = last[:i]
	}
	return rowReturningKeywords[strings.ToUpper(word)]
}

func lastStatement(sql string) string {
	parts := strings.Split(sql, ";")
	for i := len(parts) - 1; i >= 0; i-- {
		if s := strings.TrimSpace(parts[i]); s != "" {
			return s
		}
	}
	return ""
}

// stripComments removes -- line comments and /* */ block comments outside
// single-quoted strings.
func stripComments(sql string) string {
	var b strings.Builder
	inString := false
	for i := 0; i < len(sql); i++ {
		c := sql[i]
		switch {
		case inString:
			b.WriteByte(c)
			if c == '\'' {
				inString = false
			}
		case c == '\'':
			inString = true
			b.WriteByte(c)
		case c == '-' && i+1 < len(sql) && sql[i+1] == '-':
			for i < len(sql) && sql[i] != '\n' {
				i++
			}
			b.WriteByte('\n')
		case c == '/' && i+1 < len(sql) && sql[i+1] == '*':
			end := strings.Index(sql[i+2:], "*/")
			if end < 0 {
				return b.String()
			}
			i += end + 3
			b.WriteByte(' ')
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}
