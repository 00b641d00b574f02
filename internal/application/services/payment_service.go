// Package services implements the payment state machine and the overdue
// scan on top of the application ports.
package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"kirapay/internal/application"
	"kirapay/internal/breaker"
	"kirapay/internal/domain"
	"kirapay/internal/idempotency"
	"kirapay/internal/provider"
)

// PaymentService owns the payment lifecycle: creation behind the
// idempotency guard, execution behind the per-provider circuit breakers,
// and status reads.
type PaymentService struct {
	paymentRepo  application.PaymentRepository
	contractRepo application.ContractRepository
	guard        *idempotency.Guard
	sequence     application.ReceiptSequence
	providers    *provider.Registry
	breakers     *breaker.Registry
	queue        application.JobQueue
	bus          application.EventPublisher
	logger       *slog.Logger

	toleranceRatio float64
	maxAttempts    int
}

func NewPaymentService(
	paymentRepo application.PaymentRepository,
	contractRepo application.ContractRepository,
	guard *idempotency.Guard,
	sequence application.ReceiptSequence,
	providers *provider.Registry,
	breakers *breaker.Registry,
	queue application.JobQueue,
	bus application.EventPublisher,
	logger *slog.Logger,
	toleranceRatio float64,
	maxAttempts int,
) *PaymentService {
	return &PaymentService{
		paymentRepo:    paymentRepo,
		contractRepo:   contractRepo,
		guard:          guard,
		sequence:       sequence,
		providers:      providers,
		breakers:       breakers,
		queue:          queue,
		bus:            bus,
		logger:         logger,
		toleranceRatio: toleranceRatio,
		maxAttempts:    maxAttempts,
	}
}

// Create turns a possibly-retried request into exactly one PENDING payment.
// Duplicate submissions with the same token resolve to the first payment's
// id; the guard's conditional set is the only thing standing between a
// retried request and a double charge.
func (s *PaymentService) Create(ctx context.Context, cmd CreatePaymentCommand, createdBy, idempotencyToken string) (*PaymentResponse, error) {
	if cmd.AmountCents <= 0 {
		return nil, application.NewValidationError(domain.NewInvalidAmountError(cmd.AmountCents))
	}
	if !cmd.Method.Valid() {
		return nil, application.NewValidationError(domain.NewInvalidMethodError(cmd.Method))
	}

	begin, err := s.guard.Begin(ctx, idempotencyToken)
	if err != nil {
		return nil, err
	}

	if !begin.IsNew {
		resolvedID, err := uuid.Parse(begin.ResolvedPaymentID)
		if err != nil {
			return nil, application.NewInternalError(fmt.Errorf("malformed resolved payment id %q: %w", begin.ResolvedPaymentID, err))
		}
		payment, err := s.paymentRepo.FindByID(ctx, resolvedID)
		if err != nil {
			return nil, application.NewInternalError(err)
		}
		return toResponse(payment), nil
	}

	response, err := s.createPayment(ctx, cmd, createdBy, idempotencyToken)
	if err != nil {
		// Free the token so the caller's retry is not wedged behind a
		// failed attempt.
		if abortErr := s.guard.Abort(ctx, idempotencyToken); abortErr != nil {
			s.logger.Error("failed to abort idempotency token",
				"token", idempotencyToken,
				"error", abortErr)
		}
		return nil, err
	}

	return response, nil
}

func (s *PaymentService) createPayment(ctx context.Context, cmd CreatePaymentCommand, createdBy, idempotencyToken string) (*PaymentResponse, error) {
	contract, err := s.contractRepo.FindByID(ctx, cmd.ContractID)
	if err != nil {
		if domain.IsErrorCode(err, domain.ErrCodeContractNotFound) {
			return nil, application.NewBusinessRuleError(err)
		}
		return nil, application.NewInternalError(err)
	}
	if !contract.IsActive() {
		return nil, application.NewBusinessRuleError(domain.NewInactiveContractError(contract.ID.String(), contract.Status))
	}
	if !contract.BelongsTo(cmd.TenantID) {
		return nil, application.NewBusinessRuleError(domain.NewTenantMismatchError(contract.ID.String()))
	}

	// Underpayment inside the tolerance band is worth a warning, never a
	// rejection; partial rent payments are normal in this business.
	threshold := int64(float64(contract.MonthlyRentCents) * s.toleranceRatio)
	if cmd.AmountCents < threshold {
		s.logger.Warn("payment amount below tolerance band",
			"contract_id", contract.ID,
			"amount_cents", cmd.AmountCents,
			"monthly_rent_cents", contract.MonthlyRentCents,
			"tolerance_ratio", s.toleranceRatio)
	}

	receiptNumber, err := s.sequence.Next(ctx)
	if err != nil {
		return nil, application.NewInternalError(err)
	}

	payment, err := domain.NewPayment(uuid.New(), cmd.ContractID, cmd.TenantID, cmd.AmountCents, cmd.Method, cmd.DueDate, createdBy)
	if err != nil {
		return nil, application.NewValidationError(err)
	}
	payment.ReceiptNumber = receiptNumber
	payment.Metadata[domain.MetadataKeyIdempotencyToken] = idempotencyToken
	for k, v := range cmd.Metadata {
		payment.Metadata[k] = v
	}

	if err := s.paymentRepo.Create(ctx, payment); err != nil {
		return nil, application.NewInternalError(err)
	}

	if err := s.guard.Resolve(ctx, idempotencyToken, payment.ID.String()); err != nil {
		return nil, err
	}

	job, err := domain.NewJob(domain.JobProcessPayment, domain.ProcessPaymentPayload{PaymentID: payment.ID}, s.maxAttempts)
	if err != nil {
		return nil, application.NewInternalError(err)
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		return nil, application.NewInternalError(err)
	}

	s.bus.Publish(domain.NewEvent(domain.EventPaymentCreated, domain.PaymentEventFrom(payment)))

	s.logger.Info("payment created",
		"payment_id", payment.ID,
		"contract_id", payment.ContractID,
		"amount_cents", payment.AmountCents,
		"method", payment.Method,
		"receipt_number", payment.ReceiptNumber)

	return toResponse(payment), nil
}

// Execute drives a payment to a terminal state. Delivery is at-least-once:
// a terminal payment is a logged no-op, and a payment already PROCESSING
// (a retried job) resumes the provider call, which is idempotent on the
// provider side via the payment id.
func (s *PaymentService) Execute(ctx context.Context, paymentID uuid.UUID) error {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		return err
	}

	if payment.IsTerminal() {
		s.logger.Info("skipping execution of terminal payment",
			"payment_id", payment.ID,
			"status", payment.Status)
		return nil
	}

	if payment.Status == domain.StatusPending {
		from := payment.Status
		if err := payment.MarkProcessing(); err != nil {
			return err
		}
		if err := s.paymentRepo.TransitionStatus(ctx, payment, from); err != nil {
			if errors.Is(err, application.ErrStaleTransition) {
				s.logger.Info("payment already claimed by another worker",
					"payment_id", payment.ID)
				return nil
			}
			return application.NewTransientError(err)
		}
	}

	if !payment.Method.RequiresProvider() {
		// Cash and check settle in-office; there is nothing to call.
		return s.complete(ctx, payment, "", time.Now())
	}

	return s.executeProvider(ctx, payment)
}

func (s *PaymentService) executeProvider(ctx context.Context, payment *domain.Payment) error {
	client, err := s.providers.ForMethod(payment.Method)
	if err != nil {
		return s.fail(ctx, payment, err.Error(), err)
	}
	brk, err := s.breakers.Get(string(payment.Method))
	if err != nil {
		return s.fail(ctx, payment, err.Error(), err)
	}

	var chargeResp *provider.ChargeResponse
	execErr := brk.Execute(ctx, func(callCtx context.Context) error {
		var chargeErr error
		chargeResp, chargeErr = client.Charge(callCtx, provider.ChargeRequest{
			PaymentID:     payment.ID,
			TenantID:      payment.TenantID,
			AmountCents:   payment.AmountCents,
			ReceiptNumber: payment.ReceiptNumber,
		})
		return chargeErr
	})

	if execErr != nil {
		if errors.Is(execErr, breaker.ErrCircuitOpen) {
			// Fast-fail: retrying while the breaker is open only wastes the
			// retry budget.
			if err := s.fail(ctx, payment, "Service unavailable", execErr); err != nil {
				return err
			}
			return application.NewProviderUnavailableError(string(payment.Method))
		}
		if provErr, ok := provider.IsProviderError(execErr); ok && provErr.IsBusinessRejection() {
			if err := s.fail(ctx, payment, provErr.Message, execErr); err != nil {
				return err
			}
			return application.NewBusinessRuleError(execErr)
		}
		// Network blips and provider 5xx bubble up so the worker's retry
		// policy can have another go.
		return execErr
	}

	if len(chargeResp.Raw) > 0 {
		payment.Metadata["provider_payload"] = string(chargeResp.Raw)
	}
	paidAt := chargeResp.PaidAt
	if paidAt.IsZero() {
		paidAt = time.Now()
	}
	return s.complete(ctx, payment, chargeResp.TransactionID, paidAt)
}

func (s *PaymentService) complete(ctx context.Context, payment *domain.Payment, providerTxnID string, paidAt time.Time) error {
	from := payment.Status
	if err := payment.Complete(providerTxnID, paidAt); err != nil {
		return err
	}
	if err := s.paymentRepo.TransitionStatus(ctx, payment, from); err != nil {
		if errors.Is(err, application.ErrStaleTransition) {
			// A duplicate delivery settled this payment first. The balance
			// increment already happened there; doing it again would double
			// the settlement.
			s.logger.Info("payment settled by a concurrent delivery",
				"payment_id", payment.ID)
			return nil
		}
		return application.NewTransientError(err)
	}

	if err := s.contractRepo.AddToBalance(ctx, payment.ContractID, payment.AmountCents); err != nil {
		// The payment is settled; a failed balance bump must not unsettle
		// it. Operators reconcile from the log line.
		s.logger.Error("failed to increment contract balance",
			"payment_id", payment.ID,
			"contract_id", payment.ContractID,
			"error", err)
	}

	job, err := domain.NewJob(domain.JobGenerateReceipt, domain.GenerateReceiptPayload{PaymentID: payment.ID}, s.maxAttempts)
	if err == nil {
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.logger.Error("failed to enqueue receipt job", "payment_id", payment.ID, "error", err)
		}
	}

	s.bus.Publish(domain.NewEvent(domain.EventPaymentCompleted, domain.PaymentEventFrom(payment)))

	s.logger.Info("payment completed",
		"payment_id", payment.ID,
		"provider_txn_id", providerTxnID,
		"amount_cents", payment.AmountCents)
	return nil
}

func (s *PaymentService) fail(ctx context.Context, payment *domain.Payment, reason string, cause error) error {
	from := payment.Status
	if err := payment.Fail(reason); err != nil {
		return err
	}
	if err := s.paymentRepo.TransitionStatus(ctx, payment, from); err != nil {
		if errors.Is(err, application.ErrStaleTransition) {
			s.logger.Info("payment already driven terminal by a concurrent delivery",
				"payment_id", payment.ID)
			return nil
		}
		return application.NewTransientError(err)
	}

	s.bus.Publish(domain.NewEvent(domain.EventPaymentFailed, domain.PaymentEventFrom(payment)))

	s.logger.Warn("payment failed",
		"payment_id", payment.ID,
		"reason", reason,
		"error", cause)
	return nil
}

// GetStatus is a pure read.
func (s *PaymentService) GetStatus(ctx context.Context, paymentID uuid.UUID) (*PaymentResponse, error) {
	payment, err := s.paymentRepo.FindByID(ctx, paymentID)
	if err != nil {
		if domain.IsErrorCode(err, domain.ErrCodePaymentNotFound) {
			return nil, application.NewNotFoundError(err)
		}
		return nil, application.NewInternalError(err)
	}
	return toResponse(payment), nil
}
