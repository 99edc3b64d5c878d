package agent

import (
	"context"
	"database/sql"
	"fmt"
	"sync/atomic"

	"duck-query/internal/compute"
	"duck-query/internal/domain"
)

// runJob executes one batch and records its outcome on job. Batches whose
// last statement returns rows are buffered up to job.maxRows; the rest report
// the number of affected rows.
func runJob(ctx context.Context, db *sql.DB, job *queryJob, sqlQuery string, activeQueries *atomic.Int64) {
	activeQueries.Add(1)
	defer activeQueries.Add(-1)

	var err error
	if compute.ReturnsRows(sqlQuery) {
		err = bufferRows(ctx, db, job, sqlQuery)
	} else {
		err = execStatement(ctx, db, job, sqlQuery)
	}
	if err == nil {
		return
	}
	if ctx.Err() != nil {
		job.setCanceled()
		return
	}
	job.setFailed(err)
}

func bufferRows(ctx context.Context, db *sql.DB, job *queryJob, sqlQuery string) error {
	rows, err := db.QueryContext(ctx, sqlQuery)
	if err != nil {
		return err
	}
	defer rows.Close() //nolint:errcheck

	columns, err := compute.ColumnsFromRows(rows)
	if err != nil {
		return err
	}

	var buffered [][]domain.CellValue
	for rows.Next() {
		if job.maxRows > 0 && int64(len(buffered)) >= job.maxRows {
			break
		}
		cells, err := compute.ScanRow(rows, len(columns))
		if err != nil {
			return err
		}
		buffered = append(buffered, cells)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("read rows: %w", err)
	}
	job.setResult(columns, buffered)
	return nil
}

func execStatement(ctx context.Context, db *sql.DB, job *queryJob, sqlQuery string) error {
	res, err := db.ExecContext(ctx, sqlQuery)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		n = -1
	}
	job.setRowsAffected(n)
	return nil
}
