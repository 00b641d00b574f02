// Package worker runs the asynchronous side of the payment core: a bounded
// pool pulling jobs from an at-least-once queue, with retry, backoff and
// dead-lettering.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"kirapay/internal/application"
	"kirapay/internal/domain"
)

// ErrQueueFull is returned when the delivery buffer cannot take another job.
// The job row is already persisted at that point, so nothing is lost; the
// caller surfaces the pressure instead of blocking.
var ErrQueueFull = errors.New("job queue is full")

// Queue is the in-process job transport. Every job is persisted before it
// is offered for delivery, so a consumer crash loses at most the delivery,
// not the job. The contract is at-least-once and handlers tolerate
// redelivery.
type Queue struct {
	jobs    chan *domain.Job
	jobRepo application.JobRepository
	logger  *slog.Logger
}

func NewQueue(size int, jobRepo application.JobRepository, logger *slog.Logger) *Queue {
	return &Queue{
		jobs:    make(chan *domain.Job, size),
		jobRepo: jobRepo,
		logger:  logger,
	}
}

func (q *Queue) Enqueue(ctx context.Context, job *domain.Job) error {
	if err := q.jobRepo.Create(ctx, job); err != nil {
		return err
	}
	return q.deliver(job)
}

// EnqueueAfter re-delivers an already-persisted job after a backoff delay.
func (q *Queue) EnqueueAfter(ctx context.Context, job *domain.Job, delay time.Duration) error {
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		if err := q.deliver(job); err != nil {
			q.logger.Error("failed to redeliver job",
				"job_id", job.ID,
				"job_type", job.Type,
				"error", err)
		}
	}()
	return nil
}

// Recover reloads persisted jobs that never reached a terminal status and
// offers them for delivery again. Runs once on startup, before the pool
// drains the buffer, so jobs stranded by a crash are picked up instead of
// sitting in their rows forever.
func (q *Queue) Recover(ctx context.Context) error {
	jobs, err := q.jobRepo.FindDeliverable(ctx, cap(q.jobs))
	if err != nil {
		return err
	}

	recovered := 0
	for _, job := range jobs {
		if err := q.deliver(job); err != nil {
			q.logger.Warn("delivery buffer full during recovery, remaining jobs wait for the next restart",
				"recovered", recovered,
				"pending", len(jobs)-recovered)
			break
		}
		recovered++
	}
	if recovered > 0 {
		q.logger.Info("recovered persisted jobs", "count", recovered)
	}
	return nil
}

// Jobs exposes the delivery channel to the pool.
func (q *Queue) Jobs() <-chan *domain.Job {
	return q.jobs
}

func (q *Queue) deliver(job *domain.Job) error {
	select {
	case q.jobs <- job:
		return nil
	default:
		return ErrQueueFull
	}
}
