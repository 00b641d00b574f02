package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JobType selects the worker handler a job is dispatched to.
type JobType string

const (
	JobProcessPayment  JobType = "process-payment"
	JobGenerateReceipt JobType = "generate-receipt"
	JobCheckOverdue    JobType = "check-overdue"
)

// JobStatus tracks a job from enqueue to a terminal outcome. Dead-lettered
// jobs are kept for operator inspection, never reaped.
type JobStatus string

const (
	JobQueued       JobStatus = "QUEUED"
	JobRunning      JobStatus = "RUNNING"
	JobCompleted    JobStatus = "COMPLETED"
	JobDeadLettered JobStatus = "DEAD_LETTERED"
)

// Job is one unit of asynchronous work. Delivery is at-least-once, so every
// handler must tolerate seeing the same job twice.
type Job struct {
	ID          uuid.UUID
	Type        JobType
	Payload     json.RawMessage
	Attempts    int
	MaxAttempts int
	Progress    int
	Status      JobStatus
	LastError   *string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func NewJob(jobType JobType, payload any, maxAttempts int) (*Job, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	return &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     raw,
		MaxAttempts: maxAttempts,
		Status:      JobQueued,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// ExhaustedAttempts reports whether the retry budget is spent.
func (j *Job) ExhaustedAttempts() bool {
	return j.Attempts >= j.MaxAttempts
}

// ProcessPaymentPayload drives payment execution.
type ProcessPaymentPayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
}

// GenerateReceiptPayload drives receipt artifact generation.
type GenerateReceiptPayload struct {
	PaymentID uuid.UUID `json:"payment_id"`
}

// CheckOverduePayload drives the periodic overdue scan. DryRun performs the
// scan without mutating anything.
type CheckOverduePayload struct {
	DryRun bool `json:"dry_run"`
}
