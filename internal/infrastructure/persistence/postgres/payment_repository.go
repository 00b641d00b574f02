package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"kirapay/internal/application"
	"kirapay/internal/domain"
)

const paymentColumns = `
	id, contract_id, tenant_id, amount_cents, method, status,
	due_date, paid_at, provider_txn_id, failure_reason,
	receipt_number, receipt_object_key, metadata, created_by,
	created_at, updated_at
`

type PaymentRepository struct {
	db *DB
}

func NewPaymentRepository(db *DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

func (r *PaymentRepository) Create(ctx context.Context, payment *domain.Payment) error {
	query := `
		INSERT INTO payments (
			id, contract_id, tenant_id, amount_cents, method, status,
			due_date, paid_at, provider_txn_id, failure_reason,
			receipt_number, receipt_object_key, metadata, created_by,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	metadata, err := json.Marshal(payment.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal payment metadata: %w", err)
	}

	_, err = r.db.Pool.Exec(ctx, query,
		payment.ID,
		payment.ContractID,
		payment.TenantID,
		payment.AmountCents,
		payment.Method,
		payment.Status,
		payment.DueDate,
		payment.PaidAt,
		payment.ProviderTxnID,
		payment.FailureReason,
		payment.ReceiptNumber,
		payment.ReceiptObjectKey,
		metadata,
		payment.CreatedBy,
		payment.CreatedAt,
		payment.UpdatedAt,
	)
	if err != nil {
		if IsUniqueViolation(err) {
			return domain.NewDuplicateReceiptError(payment.ReceiptNumber)
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}

	return nil
}

// TransitionStatus persists a state transition with a compare-and-set on the
// current status. Two workers holding copies of the same row cannot both
// drive it: the loser's write matches zero rows and gets ErrStaleTransition.
func (r *PaymentRepository) TransitionStatus(ctx context.Context, payment *domain.Payment, from domain.PaymentStatus) error {
	query := `
		UPDATE payments
		SET status = $3, paid_at = $4, provider_txn_id = $5, failure_reason = $6,
		    metadata = $7, updated_at = $8
		WHERE id = $1 AND status = $2
	`

	metadata, err := json.Marshal(payment.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal payment metadata: %w", err)
	}

	tag, err := r.db.Pool.Exec(ctx, query,
		payment.ID,
		from,
		payment.Status,
		payment.PaidAt,
		payment.ProviderTxnID,
		payment.FailureReason,
		metadata,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to transition payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return application.ErrStaleTransition
	}

	return nil
}

func (r *PaymentRepository) Update(ctx context.Context, payment *domain.Payment) error {
	query := `
		UPDATE payments
		SET status = $2, paid_at = $3, provider_txn_id = $4, failure_reason = $5,
		    receipt_object_key = $6, metadata = $7, updated_at = $8
		WHERE id = $1
	`

	metadata, err := json.Marshal(payment.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal payment metadata: %w", err)
	}

	tag, err := r.db.Pool.Exec(ctx, query,
		payment.ID,
		payment.Status,
		payment.PaidAt,
		payment.ProviderTxnID,
		payment.FailureReason,
		payment.ReceiptObjectKey,
		metadata,
		time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewPaymentNotFoundError(payment.ID.String())
	}

	return nil
}

func (r *PaymentRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`

	row := r.db.Pool.QueryRow(ctx, query, id)
	return scanPayment(row)
}

func (r *PaymentRepository) FindOverduePending(ctx context.Context, dueBefore time.Time, limit int) ([]*domain.Payment, error) {
	query := `
		SELECT ` + paymentColumns + `
		FROM payments
		WHERE status = $1 AND due_date < $2
		ORDER BY due_date ASC
		LIMIT $3
	`

	rows, err := r.db.Pool.Query(ctx, query, domain.StatusPending, dueBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query overdue payments: %w", err)
	}
	defer rows.Close()

	var payments []*domain.Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments = append(payments, p)
	}

	return payments, rows.Err()
}

func scanPayment(row pgx.Row) (*domain.Payment, error) {
	var p domain.Payment
	var metadata []byte

	err := row.Scan(
		&p.ID,
		&p.ContractID,
		&p.TenantID,
		&p.AmountCents,
		&p.Method,
		&p.Status,
		&p.DueDate,
		&p.PaidAt,
		&p.ProviderTxnID,
		&p.FailureReason,
		&p.ReceiptNumber,
		&p.ReceiptObjectKey,
		&metadata,
		&p.CreatedBy,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewPaymentNotFoundError("")
		}
		return nil, fmt.Errorf("failed to scan payment: %w", err)
	}

	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &p.Metadata); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payment metadata: %w", err)
		}
	}
	if p.Metadata == nil {
		p.Metadata = make(map[string]string)
	}

	return &p, nil
}
