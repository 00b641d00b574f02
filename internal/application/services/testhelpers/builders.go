package testhelpers

import (
	"log/slog"
	"os"
	"time"

	"github.com/google/uuid"

	"kirapay/internal/domain"
)

// QuietLogger keeps test output readable; only errors come through.
func QuietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelError,
	}))
}

// ActiveContract builds a contract a payment can settle against.
func ActiveContract(tenantID uuid.UUID, monthlyRentCents int64) *domain.Contract {
	now := time.Now()
	return &domain.Contract{
		ID:               uuid.New(),
		TenantID:         tenantID,
		MonthlyRentCents: monthlyRentCents,
		Status:           domain.ContractActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

// PendingPayment builds a payment with a due date the given number of days
// in the past.
func PendingPayment(contract *domain.Contract, amountCents int64, daysOverdue int) *domain.Payment {
	payment, err := domain.NewPayment(
		uuid.New(),
		contract.ID,
		contract.TenantID,
		amountCents,
		domain.MethodCash,
		time.Now().Add(-time.Duration(daysOverdue)*24*time.Hour),
		"test-operator",
	)
	if err != nil {
		panic(err)
	}
	return payment
}
