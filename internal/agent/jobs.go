package agent

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"duck-query/internal/compute"
	"duck-query/internal/domain"
)

const (
	defaultResultTTL       = 10 * time.Minute
	defaultCleanupInterval = time.Minute
	defaultPageSize        = 1000
)

// queryJob is one submitted batch and, once it succeeded, its buffered rows.
type queryJob struct {
	id        string
	requestID string
	maxRows   int64
	createdAt time.Time

	mu           sync.RWMutex
	status       string
	errMsg       string
	columns      []compute.Column
	rows         [][]domain.CellValue
	rowsAffected int64
	hasResult    bool
	completedAt  time.Time
	cancel       context.CancelFunc
}

func (j *queryJob) setRunning(cancel context.CancelFunc) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.cancel = cancel
	if j.status == compute.QueryStatusQueued {
		j.status = compute.QueryStatusRunning
	}
}

func (j *queryJob) setResult(columns []compute.Column, rows [][]domain.CellValue) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.terminal() {
		return
	}
	j.columns = columns
	j.rows = rows
	j.hasResult = true
	j.finish(compute.QueryStatusSucceeded, "")
}

func (j *queryJob) setRowsAffected(n int64) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.terminal() {
		return
	}
	j.rowsAffected = n
	j.finish(compute.QueryStatusSucceeded, "")
}

func (j *queryJob) setFailed(err error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finish(compute.QueryStatusFailed, err.Error())
}

func (j *queryJob) setCanceled() {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.finish(compute.QueryStatusCanceled, "query canceled")
}

// finish must be called with j.mu held. A job that already reached a
// terminal status keeps it.
func (j *queryJob) finish(status, errMsg string) {
	if j.terminal() {
		return
	}
	j.status = status
	j.errMsg = errMsg
	j.completedAt = time.Now()
}

func (j *queryJob) terminal() bool {
	switch j.status {
	case compute.QueryStatusSucceeded, compute.QueryStatusFailed, compute.QueryStatusCanceled:
		return true
	default:
		return false
	}
}

func (j *queryJob) cancelQuery() {
	j.mu.Lock()
	cancel := j.cancel
	if j.status == compute.QueryStatusQueued {
		j.finish(compute.QueryStatusCanceled, "query canceled")
	}
	j.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (j *queryJob) statusResponse() compute.QueryStatusResponse {
	j.mu.RLock()
	defer j.mu.RUnlock()
	resp := compute.QueryStatusResponse{
		QueryID:      j.id,
		Status:       j.status,
		Columns:      j.columns,
		RowCount:     int64(len(j.rows)),
		RowsAffected: j.rowsAffected,
		HasResult:    j.hasResult,
		Error:        j.errMsg,
		RequestID:    j.requestID,
	}
	if !j.completedAt.IsZero() {
		resp.CompletedAt = j.completedAt.UTC().Format(time.RFC3339)
	}
	return resp
}

// page returns rows [offset, offset+limit) and the token of the next page.
func (j *queryJob) page(offset, limit int) ([]compute.Column, [][]domain.CellValue, int64, string) {
	j.mu.RLock()
	defer j.mu.RUnlock()
	total := len(j.rows)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	next := ""
	if end < total {
		next = compute.EncodePageToken(end)
	}
	return j.columns, j.rows[offset:end], int64(total), next
}

func (j *queryJob) expired(now time.Time, ttl time.Duration) bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.terminal() && !j.completedAt.IsZero() && now.Sub(j.completedAt) > ttl
}

// queryStore keeps submitted jobs until their results expire.
type queryStore struct {
	ttl             time.Duration
	cleanupInterval time.Duration

	mu          sync.RWMutex
	jobs        map[string]*queryJob
	byRequestID map[string]string
	lastCleanup time.Time
	cleaned     atomic.Int64
}

func newQueryStore(ttl, cleanupInterval time.Duration) *queryStore {
	if ttl <= 0 {
		ttl = defaultResultTTL
	}
	if cleanupInterval <= 0 {
		cleanupInterval = defaultCleanupInterval
	}
	return &queryStore{
		ttl:             ttl,
		cleanupInterval: cleanupInterval,
		jobs:            make(map[string]*queryJob),
		byRequestID:     make(map[string]string),
	}
}

func (s *queryStore) set(job *queryJob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.id] = job
	if job.requestID != "" {
		s.byRequestID[job.requestID] = job.id
	}
}

func (s *queryStore) get(id string) (*queryJob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	job, ok := s.jobs[id]
	return job, ok
}

func (s *queryStore) getByRequestID(requestID string) (*queryJob, bool) {
	if requestID == "" {
		return nil, false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byRequestID[requestID]
	if !ok {
		return nil, false
	}
	job, ok := s.jobs[id]
	return job, ok
}

func (s *queryStore) delete(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deleteLocked(id)
}

func (s *queryStore) deleteLocked(id string) {
	job, ok := s.jobs[id]
	if !ok {
		return
	}
	delete(s.jobs, id)
	if job.requestID != "" && s.byRequestID[job.requestID] == id {
		delete(s.byRequestID, job.requestID)
	}
}

// maybeCleanup drops expired jobs at most once per cleanup interval.
func (s *queryStore) maybeCleanup(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now.Sub(s.lastCleanup) < s.cleanupInterval {
		return
	}
	s.lastCleanup = now
	for id, job := range s.jobs {
		if job.expired(now, s.ttl) {
			s.deleteLocked(id)
			s.cleaned.Add(1)
		}
	}
}

func (s *queryStore) metrics() (queued, running, completed, stored, cleaned int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, job := range s.jobs {
		job.mu.RLock()
		switch job.status {
		case compute.QueryStatusQueued:
			queued++
		case compute.QueryStatusRunning:
			running++
		default:
			completed++
		}
		job.mu.RUnlock()
	}
	return queued, running, completed, int64(len(s.jobs)), s.cleaned.Load()
}

var queryIDCounter atomic.Uint64

func newQueryID() string {
	return fmt.Sprintf("q-%d", queryIDCounter.Add(1))
}
