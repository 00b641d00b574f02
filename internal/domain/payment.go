// Package domain encodes the payment aggregate and its lifecycle.
package domain

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// PaymentStatus represents the current state of a payment in its lifecycle
type PaymentStatus string

const (
	StatusPending    PaymentStatus = "PENDING"
	StatusProcessing PaymentStatus = "PROCESSING"
	StatusCompleted  PaymentStatus = "COMPLETED"
	StatusFailed     PaymentStatus = "FAILED"
)

// PaymentMethod identifies how the tenant pays. Mobile-money and card
// methods go through an external provider; cash and check settle in-office.
type PaymentMethod string

const (
	MethodTelebirr PaymentMethod = "TELEBIRR"
	MethodCBEBirr  PaymentMethod = "CBE_BIRR"
	MethodChapa    PaymentMethod = "CHAPA"
	MethodCash     PaymentMethod = "CASH"
	MethodCheck    PaymentMethod = "CHECK"
)

// MetadataKeyIdempotencyToken is where the caller's idempotence token is
// kept on the payment for audit purposes.
const MetadataKeyIdempotencyToken = "idempotency_token"

func (m PaymentMethod) Valid() bool {
	switch m {
	case MethodTelebirr, MethodCBEBirr, MethodChapa, MethodCash, MethodCheck:
		return true
	default:
		return false
	}
}

// RequiresProvider reports whether the method settles through an external
// payment provider.
func (m PaymentMethod) RequiresProvider() bool {
	return m == MethodTelebirr || m == MethodCBEBirr || m == MethodChapa
}

// Payment is the aggregate root of the processing core. It is mutated only
// through its transition methods; callers never set Status directly.
type Payment struct {
	ID         uuid.UUID
	ContractID uuid.UUID
	TenantID   uuid.UUID

	AmountCents int64
	Method      PaymentMethod
	Status      PaymentStatus

	DueDate       time.Time
	PaidAt        *time.Time
	ProviderTxnID *string
	FailureReason *string

	ReceiptNumber    string
	ReceiptObjectKey *string

	Metadata  map[string]string
	CreatedBy string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func NewPayment(
	id uuid.UUID,
	contractID uuid.UUID,
	tenantID uuid.UUID,
	amountCents int64,
	method PaymentMethod,
	dueDate time.Time,
	createdBy string,
) (*Payment, error) {
	if amountCents <= 0 {
		return nil, NewInvalidAmountError(amountCents)
	}
	if !method.Valid() {
		return nil, NewInvalidMethodError(method)
	}
	if createdBy == "" {
		return nil, NewMissingFieldError("createdBy")
	}

	now := time.Now()
	return &Payment{
		ID:          id,
		ContractID:  contractID,
		TenantID:    tenantID,
		AmountCents: amountCents,
		Method:      method,
		Status:      StatusPending,
		DueDate:     dueDate,
		Metadata:    make(map[string]string),
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

// MarkProcessing moves the payment into the provider-execution phase.
func (p *Payment) MarkProcessing() error {
	return p.transition(StatusProcessing)
}

// Complete settles the payment, recording the provider transaction id and
// the settlement time.
func (p *Payment) Complete(providerTxnID string, paidAt time.Time) error {
	if err := p.transition(StatusCompleted); err != nil {
		return err
	}
	if providerTxnID != "" {
		p.ProviderTxnID = &providerTxnID
	}
	p.PaidAt = &paidAt
	return nil
}

// Fail terminates the payment with a reason visible to operators.
func (p *Payment) Fail(reason string) error {
	if err := p.transition(StatusFailed); err != nil {
		return err
	}
	p.FailureReason = &reason
	return nil
}

// AttachReceiptArtifact records the rendered receipt's storage key. A
// payment carries at most one artifact; later attachments are rejected
// by the generate-receipt handler, not here.
func (p *Payment) AttachReceiptArtifact(objectKey string) {
	p.ReceiptObjectKey = &objectKey
	p.UpdatedAt = time.Now()
}

func (p *Payment) IsTerminal() bool {
	return p.Status == StatusCompleted || p.Status == StatusFailed
}

// DaysOverdue returns whole days elapsed since the due date, zero if not due.
func (p *Payment) DaysOverdue(now time.Time) int {
	if !now.After(p.DueDate) {
		return 0
	}
	return int(now.Sub(p.DueDate).Hours() / 24)
}

func (p *Payment) transition(target PaymentStatus) error {
	if err := p.canTransitionTo(target); err != nil {
		return err
	}
	p.Status = target
	p.UpdatedAt = time.Now()
	return nil
}

// canTransitionTo enforces the monotonic lifecycle:
// PENDING -> PROCESSING -> {COMPLETED, FAILED}. Terminal states allow
// nothing further.
func (p *Payment) canTransitionTo(target PaymentStatus) error {
	switch p.Status {
	case StatusPending:
		return p.allow(target, StatusProcessing, StatusFailed)
	case StatusProcessing:
		return p.allow(target, StatusCompleted, StatusFailed)
	}
	return NewInvalidTransitionError(p.Status, target)
}

func (p *Payment) allow(target PaymentStatus, allowed ...PaymentStatus) error {
	if slices.Contains(allowed, target) {
		return nil
	}
	return NewInvalidTransitionError(p.Status, target)
}
