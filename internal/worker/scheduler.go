package worker

import (
	"context"
	"log/slog"
	"time"

	"kirapay/internal/application"
	"kirapay/internal/domain"
)

// OverdueScheduler enqueues a check-overdue job on a fixed interval. The
// scan itself runs inside the pool like any other job, so its retries and
// dead-lettering follow the same rules.
type OverdueScheduler struct {
	queue    application.JobQueue
	interval time.Duration
	dryRun   bool
	logger   *slog.Logger
}

func NewOverdueScheduler(queue application.JobQueue, interval time.Duration, dryRun bool, logger *slog.Logger) *OverdueScheduler {
	return &OverdueScheduler{
		queue:    queue,
		interval: interval,
		dryRun:   dryRun,
		logger:   logger,
	}
}

func (s *OverdueScheduler) Start(ctx context.Context) {
	s.logger.Info("overdue scheduler started", "interval", s.interval, "dry_run", s.dryRun)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("overdue scheduler stopping")
			return
		case <-ticker.C:
			job, err := domain.NewJob(domain.JobCheckOverdue, domain.CheckOverduePayload{DryRun: s.dryRun}, 1)
			if err != nil {
				s.logger.Error("failed to build check-overdue job", "error", err)
				continue
			}
			if err := s.queue.Enqueue(ctx, job); err != nil {
				s.logger.Error("failed to enqueue check-overdue job", "error", err)
			}
		}
	}
}
