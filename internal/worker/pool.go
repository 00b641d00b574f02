package worker

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"kirapay/internal/application"
	"kirapay/internal/domain"
)

// HandlerFunc processes one job. A returned error is classified by kind:
// transient errors are re-queued with backoff, terminal ones fail the job
// immediately.
type HandlerFunc func(ctx context.Context, job *domain.Job) error

// Pool is the bounded-concurrency job executor.
type Pool struct {
	queue       *Queue
	jobRepo     application.JobRepository
	bus         application.EventPublisher
	logger      *slog.Logger
	concurrency int
	baseBackoff time.Duration

	handlers map[domain.JobType]HandlerFunc
	wg       sync.WaitGroup
}

func NewPool(
	queue *Queue,
	jobRepo application.JobRepository,
	bus application.EventPublisher,
	logger *slog.Logger,
	concurrency int,
	baseBackoff time.Duration,
) *Pool {
	return &Pool{
		queue:       queue,
		jobRepo:     jobRepo,
		bus:         bus,
		logger:      logger,
		concurrency: concurrency,
		baseBackoff: baseBackoff,
		handlers:    make(map[domain.JobType]HandlerFunc),
	}
}

// Register binds a handler to a job type. All registration happens before
// Start; the map is read-only afterwards.
func (p *Pool) Register(jobType domain.JobType, handler HandlerFunc) {
	p.handlers[jobType] = handler
}

// Start launches the worker goroutines. It returns immediately; Stop waits
// for in-flight jobs to finish.
func (p *Pool) Start(ctx context.Context) {
	p.logger.Info("job worker pool started", "concurrency", p.concurrency)

	for i := 0; i < p.concurrency; i++ {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case job := <-p.queue.Jobs():
					p.process(ctx, job)
				}
			}
		}()
	}
}

// Stop blocks until every worker goroutine has drained.
func (p *Pool) Stop() {
	p.wg.Wait()
	p.logger.Info("job worker pool stopped")
}

func (p *Pool) process(ctx context.Context, job *domain.Job) {
	handler, ok := p.handlers[job.Type]
	if !ok {
		p.deadLetter(ctx, job, fmt.Errorf("no handler registered for job type %q", job.Type))
		return
	}

	job.Attempts++
	job.Status = domain.JobRunning
	if err := p.jobRepo.Update(ctx, job); err != nil {
		p.logger.Error("failed to mark job running", "job_id", job.ID, "error", err)
	}

	err := handler(ctx, job)
	if err == nil {
		job.Status = domain.JobCompleted
		job.Progress = 100
		if err := p.jobRepo.Update(ctx, job); err != nil {
			p.logger.Error("failed to mark job completed", "job_id", job.ID, "error", err)
		}
		return
	}

	errMsg := err.Error()
	job.LastError = &errMsg

	// Terminal business failures are not worth another attempt no matter
	// how much budget remains.
	if !application.IsRetryable(err) {
		p.logger.Warn("job failed terminally",
			"job_id", job.ID,
			"job_type", job.Type,
			"attempt", job.Attempts,
			"error", err)
		p.deadLetter(ctx, job, err)
		return
	}

	if job.ExhaustedAttempts() {
		p.deadLetter(ctx, job, err)
		return
	}

	delay := p.backoff(job.Attempts)
	job.Status = domain.JobQueued
	if err := p.jobRepo.Update(ctx, job); err != nil {
		p.logger.Error("failed to re-queue job", "job_id", job.ID, "error", err)
	}

	p.logger.Info("retrying job",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempt", job.Attempts,
		"max_attempts", job.MaxAttempts,
		"delay", delay)

	if err := p.queue.EnqueueAfter(ctx, job, delay); err != nil {
		p.logger.Error("failed to schedule retry", "job_id", job.ID, "error", err)
	}
}

func (p *Pool) deadLetter(ctx context.Context, job *domain.Job, cause error) {
	job.Status = domain.JobDeadLettered
	if err := p.jobRepo.Update(ctx, job); err != nil {
		p.logger.Error("failed to dead-letter job", "job_id", job.ID, "error", err)
	}

	p.logger.Error("job dead-lettered",
		"job_id", job.ID,
		"job_type", job.Type,
		"attempts", job.Attempts,
		"error", cause)

	p.bus.Publish(domain.NewEvent(domain.EventJobDeadLettered, domain.DeadLetterEventPayload{
		JobID:     job.ID,
		JobType:   job.Type,
		Attempts:  job.Attempts,
		LastError: cause.Error(),
	}))
}

// backoff grows exponentially with jitter so retries from a burst of
// failures do not land together.
func (p *Pool) backoff(attempt int) time.Duration {
	base := p.baseBackoff * time.Duration(1<<(attempt-1))
	jitter := time.Duration(rand.Intn(1000)) * time.Millisecond
	return base + jitter
}
