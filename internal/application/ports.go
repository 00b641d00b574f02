// Package application defines the ports the payment core depends on and the
// service-level error taxonomy.
package application

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"kirapay/internal/domain"
)

// ErrKeyNotFound is returned by KVStore.Get when the key is absent or expired.
var ErrKeyNotFound = errors.New("key not found")

// ErrStaleTransition is returned by TransitionStatus when the row no longer
// holds the expected status; another worker already drove the transition.
var ErrStaleTransition = errors.New("payment status changed concurrently")

// PaymentRepository persists the payment aggregate.
type PaymentRepository interface {
	Create(ctx context.Context, payment *domain.Payment) error
	Update(ctx context.Context, payment *domain.Payment) error
	// TransitionStatus writes a state transition conditionally: the update
	// applies only while the row still holds the from status. Workers racing
	// on one delivery see ErrStaleTransition instead of a double write.
	TransitionStatus(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error)
	// FindOverduePending returns PENDING payments due before the cutoff,
	// oldest first, capped at limit.
	FindOverduePending(ctx context.Context, dueBefore time.Time, limit int) ([]*domain.Payment, error)
}

// ContractRepository reads contracts and applies the atomic balance
// increment on settlement.
type ContractRepository interface {
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error)
	// AddToBalance applies an atomic increment at the storage layer, never a
	// read-modify-write, since concurrent completions may target one contract.
	AddToBalance(ctx context.Context, contractID uuid.UUID, amountCents int64) error
	// IncrementTenantRisk bumps the tenant's overdue risk indicator atomically.
	IncrementTenantRisk(ctx context.Context, tenantID uuid.UUID) error
}

// JobRepository retains jobs, including dead-lettered ones, for inspection.
type JobRepository interface {
	Create(ctx context.Context, job *domain.Job) error
	Update(ctx context.Context, job *domain.Job) error
	FindByID(ctx context.Context, id uuid.UUID) (*domain.Job, error)
	// FindDeliverable returns non-terminal job rows, oldest first, capped at
	// limit. Used on startup to re-deliver jobs stranded by a crash.
	FindDeliverable(ctx context.Context, limit int) ([]*domain.Job, error)
}

// KVStore is the durable key-value collaborator backing the idempotency
// guard and the receipt sequence.
type KVStore interface {
	// SetIfAbsent performs a single atomic conditional write; it reports
	// whether the key was set.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	Increment(ctx context.Context, key string) (int64, error)
	ExpireAt(ctx context.Context, key string, at time.Time) error
}

// JobQueue hands jobs to the async worker, at-least-once.
type JobQueue interface {
	Enqueue(ctx context.Context, job *domain.Job) error
	// EnqueueAfter re-delivers a job after a backoff delay.
	EnqueueAfter(ctx context.Context, job *domain.Job, delay time.Duration) error
}

// EventPublisher announces domain events. Publish never blocks on subscriber
// processing and never returns an error into the payment path.
type EventPublisher interface {
	Publish(event domain.Event)
}

// ReceiptSequence issues unique year-scoped receipt references.
type ReceiptSequence interface {
	Next(ctx context.Context) (string, error)
}

// ArtifactStore keeps rendered receipt documents.
type ArtifactStore interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	TemporaryURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}
