package history

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"duck-query/internal/domain"
)

// Pruner deletes history older than the retention on a cron schedule.
type Pruner struct {
	cron      *cron.Cron
	repo      domain.QueryHistoryRepository
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

// NewPruner creates a Pruner. schedule is a standard cron spec or descriptor
// such as "@hourly".
func NewPruner(repo domain.QueryHistoryRepository, schedule string, retention time.Duration, logger *slog.Logger) (*Pruner, error) {
	if retention <= 0 {
		return nil, domain.ErrValidation("history retention must be positive")
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &Pruner{
		cron:      cron.New(),
		repo:      repo,
		retention: retention,
		logger:    logger.With("component", "history-pruner"),
		now:       time.Now,
	}
	if _, err := p.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		if _, err := p.PruneOnce(ctx); err != nil {
			p.logger.Warn("history prune failed", "error", err)
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid history prune schedule %q: %w", schedule, err)
	}
	return p, nil
}

// PruneOnce deletes entries recorded before now minus the retention.
func (p *Pruner) PruneOnce(ctx context.Context) (int64, error) {
	cutoff := p.now().Add(-p.retention)
	n, err := p.repo.DeleteBefore(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete history before %s: %w", cutoff.Format(time.RFC3339), err)
	}
	if n > 0 {
		p.logger.Info("pruned query history", "deleted", n, "cutoff", cutoff)
	}
	return n, nil
}

// Start runs the schedule in the background.
func (p *Pruner) Start() {
	p.cron.Start()
	p.logger.Info("history pruner started", "retention", p.retention)
}

// Stop halts the schedule and waits for a running prune to finish.
func (p *Pruner) Stop() {
	<-p.cron.Stop().Done()
	p.logger.Info("history pruner stopped")
}
