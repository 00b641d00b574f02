package services

import (
	"time"

	"github.com/google/uuid"

	"kirapay/internal/domain"
)

// CreatePaymentCommand is the validated input of the create-payment
// operation. Request parsing and schema validation happen at the transport
// edge; by the time a command reaches the service it is well-formed.
type CreatePaymentCommand struct {
	ContractID  uuid.UUID
	TenantID    uuid.UUID
	AmountCents int64
	Method      domain.PaymentMethod
	DueDate     time.Time
	Metadata    map[string]string
}

// PaymentResponse is what callers poll. StatusURL lets a client follow a
// PENDING payment to its terminal state.
type PaymentResponse struct {
	PaymentID     uuid.UUID            `json:"payment_id"`
	Status        domain.PaymentStatus `json:"status"`
	ReceiptNumber string               `json:"receipt_number"`
	AmountCents   int64                `json:"amount_cents"`
	Method        domain.PaymentMethod `json:"method"`
	StatusURL     string               `json:"status_url"`
	PaidAt        *time.Time           `json:"paid_at,omitempty"`
	FailureReason *string              `json:"failure_reason,omitempty"`
}

func toResponse(p *domain.Payment) *PaymentResponse {
	return &PaymentResponse{
		PaymentID:     p.ID,
		Status:        p.Status,
		ReceiptNumber: p.ReceiptNumber,
		AmountCents:   p.AmountCents,
		Method:        p.Method,
		StatusURL:     "/api/v1/payments/" + p.ID.String(),
		PaidAt:        p.PaidAt,
		FailureReason: p.FailureReason,
	}
}
