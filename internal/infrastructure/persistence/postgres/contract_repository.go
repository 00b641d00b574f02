package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"kirapay/internal/domain"
)

type ContractRepository struct {
	db *DB
}

func NewContractRepository(db *DB) *ContractRepository {
	return &ContractRepository{db: db}
}

func (r *ContractRepository) FindByID(ctx context.Context, id uuid.UUID) (*domain.Contract, error) {
	query := `
		SELECT id, tenant_id, monthly_rent_cents, balance_cents, status, created_at, updated_at
		FROM contracts WHERE id = $1
	`

	var c domain.Contract
	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&c.ID,
		&c.TenantID,
		&c.MonthlyRentCents,
		&c.BalanceCents,
		&c.Status,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewContractNotFoundError(id.String())
		}
		return nil, fmt.Errorf("failed to find contract: %w", err)
	}

	return &c, nil
}

// AddToBalance is a single atomic increment; concurrent payment completions
// against the same contract must never read-modify-write.
func (r *ContractRepository) AddToBalance(ctx context.Context, contractID uuid.UUID, amountCents int64) error {
	query := `
		UPDATE contracts
		SET balance_cents = balance_cents + $2, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, contractID, amountCents)
	if err != nil {
		return fmt.Errorf("failed to increment contract balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewContractNotFoundError(contractID.String())
	}

	return nil
}

func (r *ContractRepository) IncrementTenantRisk(ctx context.Context, tenantID uuid.UUID) error {
	query := `
		UPDATE tenants
		SET risk_score = risk_score + 1, updated_at = NOW()
		WHERE id = $1
	`

	if _, err := r.db.Pool.Exec(ctx, query, tenantID); err != nil {
		return fmt.Errorf("failed to increment tenant risk score: %w", err)
	}

	return nil
}
