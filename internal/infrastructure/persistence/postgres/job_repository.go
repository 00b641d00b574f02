package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"kirapay/internal/domain"
)

var ErrJobNotFound = errors.New("job not found")

// JobRepository retains every job, dead-lettered ones included, so an
// operator can inspect what the worker did and why.
type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Create(ctx context.Context, job *domain.Job) error {
	query := `
		INSERT INTO jobs (id, type, payload, attempts, max_attempts, progress, status, last_error, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	_, err := r.db.Pool.Exec(ctx, query,
		job.ID,
		job.Type,
		job.Payload,
		job.Attempts,
		job.MaxAttempts,
		job.Progress,
		job.Status,
		job.LastError,
		job.CreatedAt,
		job.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}

	return nil
}

func (r *JobRepository) Update(ctx context.Context, job *domain.Job) error {
	query := `
		UPDATE jobs
		SET attempts = $2, progress = $3, status = $4, last_error = $5, updated_at = $6
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query,
		job.ID,
		job.Attempts,
		job.Progress,
		job.Status,
		job.LastError,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}

	return nil
}

func (r *JobRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Job, error) {
	query := `
		SELECT id, type, payload, attempts, max_attempts, progress, status, last_error, created_at, updated_at
		FROM jobs WHERE id = $1
	`

	var j domain.Job
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&j.ID,
		&j.Type,
		&j.Payload,
		&j.Attempts,
		&j.MaxAttempts,
		&j.Progress,
		&j.Status,
		&j.LastError,
		&j.CreatedAt,
		&j.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrJobNotFound
		}
		return nil, fmt.Errorf("failed to find job: %w", err)
	}

	return &j, nil
}

// FindDeliverable returns jobs left in a non-terminal status, oldest first.
// After a crash these are the rows whose delivery was lost with the process.
func (r *JobRepository) FindDeliverable(ctx context.Context, limit int) ([]*domain.Job, error) {
	query := `
		SELECT id, type, payload, attempts, max_attempts, progress, status, last_error, created_at, updated_at
		FROM jobs
		WHERE status = $1 OR status = $2
		ORDER BY created_at ASC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, domain.JobQueued, domain.JobRunning, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query deliverable jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.Job
	for rows.Next() {
		var j domain.Job
		err := rows.Scan(
			&j.ID,
			&j.Type,
			&j.Payload,
			&j.Attempts,
			&j.MaxAttempts,
			&j.Progress,
			&j.Status,
			&j.LastError,
			&j.CreatedAt,
			&j.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		jobs = append(jobs, &j)
	}

	return jobs, rows.Err()
}
