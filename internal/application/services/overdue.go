package services

import (
	"context"
	"log/slog"
	"slices"
	"time"

	"kirapay/internal/application"
	"kirapay/internal/domain"
)

// OverdueConfig tunes the periodic scan.
type OverdueConfig struct {
	GraceDays          int
	BatchSize          int
	ReminderMilestones []int
}

// OverdueScanner finds PENDING payments past their grace window, bumps the
// affected tenants' risk indicator and emits overdue alerts. Reminders fire
// only on day milestones so tenants are not spammed daily.
type OverdueScanner struct {
	paymentRepo  application.PaymentRepository
	contractRepo application.ContractRepository
	bus          application.EventPublisher
	logger       *slog.Logger
	cfg          OverdueConfig
	now          func() time.Time
}

func NewOverdueScanner(
	paymentRepo application.PaymentRepository,
	contractRepo application.ContractRepository,
	bus application.EventPublisher,
	logger *slog.Logger,
	cfg OverdueConfig,
) *OverdueScanner {
	return &OverdueScanner{
		paymentRepo:  paymentRepo,
		contractRepo: contractRepo,
		bus:          bus,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
	}
}

// ScanResult summarizes one run for logging and operator inspection.
type ScanResult struct {
	Scanned   int
	Reminders int
	DryRun    bool
}

// Scan processes at most BatchSize overdue payments. In dry-run mode it
// reports what it would do without mutating or notifying anything.
func (s *OverdueScanner) Scan(ctx context.Context, dryRun bool) (ScanResult, error) {
	now := s.now()
	cutoff := now.Add(-time.Duration(s.cfg.GraceDays) * 24 * time.Hour)

	overdue, err := s.paymentRepo.FindOverduePending(ctx, cutoff, s.cfg.BatchSize)
	if err != nil {
		return ScanResult{}, err
	}

	result := ScanResult{DryRun: dryRun}
	for _, payment := range overdue {
		days := payment.DaysOverdue(now)
		remind := slices.Contains(s.cfg.ReminderMilestones, days)

		if dryRun {
			s.logger.Info("overdue scan (dry run)",
				"payment_id", payment.ID,
				"tenant_id", payment.TenantID,
				"days_overdue", days,
				"would_remind", remind)
			result.Scanned++
			continue
		}

		if err := s.contractRepo.IncrementTenantRisk(ctx, payment.TenantID); err != nil {
			s.logger.Error("failed to increment tenant risk",
				"tenant_id", payment.TenantID,
				"error", err)
			continue
		}

		s.bus.Publish(domain.NewEvent(domain.EventPaymentOverdue, domain.OverdueEventPayload{
			PaymentID:   payment.ID,
			TenantID:    payment.TenantID,
			AmountCents: payment.AmountCents,
			DaysOverdue: days,
			Remind:      remind,
		}))

		result.Scanned++
		if remind {
			result.Reminders++
		}
	}

	if result.Scanned > 0 {
		s.logger.Info("overdue scan finished",
			"scanned", result.Scanned,
			"reminders", result.Reminders,
			"dry_run", dryRun)
	}

	return result, nil
}
