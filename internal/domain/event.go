package domain

import (
	"time"

	"github.com/google/uuid"
)

// EventType names a domain event on the bus.
type EventType string

const (
	EventPaymentCreated   EventType = "payment.created"
	EventPaymentCompleted EventType = "payment.completed"
	EventPaymentFailed    EventType = "payment.failed"
	EventPaymentOverdue   EventType = "payment.overdue"
	EventReceiptGenerated EventType = "receipt.generated"
	EventJobDeadLettered  EventType = "job.dead_lettered"
)

// Event is published after state transitions for notification, audit and
// metrics consumers. The core never waits on its delivery.
type Event struct {
	Type       EventType
	OccurredAt time.Time
	Payload    any
}

func NewEvent(eventType EventType, payload any) Event {
	return Event{
		Type:       eventType,
		OccurredAt: time.Now(),
		Payload:    payload,
	}
}

type PaymentEventPayload struct {
	PaymentID     uuid.UUID
	ContractID    uuid.UUID
	TenantID      uuid.UUID
	AmountCents   int64
	Method        PaymentMethod
	Status        PaymentStatus
	ReceiptNumber string
	FailureReason string
}

type OverdueEventPayload struct {
	PaymentID   uuid.UUID
	TenantID    uuid.UUID
	AmountCents int64
	DaysOverdue int
	Remind      bool
}

type ReceiptEventPayload struct {
	PaymentID     uuid.UUID
	ReceiptNumber string
	ObjectKey     string
	URL           string
}

type DeadLetterEventPayload struct {
	JobID     uuid.UUID
	JobType   JobType
	Attempts  int
	LastError string
}

// PaymentEventFrom builds the standard payload for payment lifecycle events.
func PaymentEventFrom(p *Payment) PaymentEventPayload {
	payload := PaymentEventPayload{
		PaymentID:     p.ID,
		ContractID:    p.ContractID,
		TenantID:      p.TenantID,
		AmountCents:   p.AmountCents,
		Method:        p.Method,
		Status:        p.Status,
		ReceiptNumber: p.ReceiptNumber,
	}
	if p.FailureReason != nil {
		payload.FailureReason = *p.FailureReason
	}
	return payload
}
