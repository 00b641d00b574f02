package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"kirapay/internal/application"
	"kirapay/internal/application/services"
	"kirapay/internal/domain"
	"kirapay/internal/receipt"
)

// Handlers owns the job-type dispatch targets.
type Handlers struct {
	payments    *services.PaymentService
	scanner     *services.OverdueScanner
	paymentRepo application.PaymentRepository
	jobRepo     application.JobRepository
	renderer    *receipt.Renderer
	artifacts   application.ArtifactStore
	kv          application.KVStore
	bus         application.EventPublisher
	logger      *slog.Logger
}

func NewHandlers(
	payments *services.PaymentService,
	scanner *services.OverdueScanner,
	paymentRepo application.PaymentRepository,
	jobRepo application.JobRepository,
	renderer *receipt.Renderer,
	artifacts application.ArtifactStore,
	kv application.KVStore,
	bus application.EventPublisher,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		payments:    payments,
		scanner:     scanner,
		paymentRepo: paymentRepo,
		jobRepo:     jobRepo,
		renderer:    renderer,
		artifacts:   artifacts,
		kv:          kv,
		bus:         bus,
		logger:      logger,
	}
}

func (h *Handlers) RegisterAll(pool *Pool) {
	pool.Register(domain.JobProcessPayment, h.ProcessPayment)
	pool.Register(domain.JobGenerateReceipt, h.GenerateReceipt)
	pool.Register(domain.JobCheckOverdue, h.CheckOverdue)
}

// ProcessPayment drives the payment state machine from a queued job.
func (h *Handlers) ProcessPayment(ctx context.Context, job *domain.Job) error {
	var payload domain.ProcessPaymentPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return application.NewValidationError(fmt.Errorf("malformed process-payment payload: %w", err))
	}

	h.reportProgress(ctx, job, 10)

	if err := h.payments.Execute(ctx, payload.PaymentID); err != nil {
		return err
	}

	h.reportProgress(ctx, job, 100)
	return nil
}

// GenerateReceipt renders and stores the receipt artifact. Redelivery for a
// payment that already carries an artifact is a no-op: no second upload, no
// second notification.
func (h *Handlers) GenerateReceipt(ctx context.Context, job *domain.Job) error {
	var payload domain.GenerateReceiptPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return application.NewValidationError(fmt.Errorf("malformed generate-receipt payload: %w", err))
	}

	payment, err := h.paymentRepo.FindByID(ctx, payload.PaymentID)
	if err != nil {
		return err
	}

	if payment.ReceiptObjectKey != nil {
		h.logger.Info("receipt already generated, skipping",
			"payment_id", payment.ID,
			"object_key", *payment.ReceiptObjectKey)
		return nil
	}
	if payment.Status != domain.StatusCompleted {
		h.logger.Info("skipping receipt for non-completed payment",
			"payment_id", payment.ID,
			"status", payment.Status)
		return nil
	}

	data, err := h.renderer.Render(payment)
	if err != nil {
		return application.NewInternalError(err)
	}

	key := h.renderer.ObjectKey(payment)
	contentType := "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	if err := h.artifacts.Upload(ctx, key, data, contentType); err != nil {
		return application.NewTransientError(err)
	}

	payment.AttachReceiptArtifact(key)
	if err := h.paymentRepo.Update(ctx, payment); err != nil {
		return application.NewTransientError(err)
	}

	url, err := h.artifacts.TemporaryURL(ctx, key, 24*time.Hour)
	if err != nil {
		// The artifact is stored and recorded; a missing presigned URL only
		// degrades the notification.
		h.logger.Error("failed to presign receipt url", "payment_id", payment.ID, "error", err)
	}

	h.bus.Publish(domain.NewEvent(domain.EventReceiptGenerated, domain.ReceiptEventPayload{
		PaymentID:     payment.ID,
		ReceiptNumber: payment.ReceiptNumber,
		ObjectKey:     key,
		URL:           url,
	}))

	h.logger.Info("receipt generated",
		"payment_id", payment.ID,
		"receipt_number", payment.ReceiptNumber,
		"object_key", key)
	return nil
}

// CheckOverdue runs one overdue scan batch.
func (h *Handlers) CheckOverdue(ctx context.Context, job *domain.Job) error {
	var payload domain.CheckOverduePayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return application.NewValidationError(fmt.Errorf("malformed check-overdue payload: %w", err))
	}

	_, err := h.scanner.Scan(ctx, payload.DryRun)
	return err
}

// reportProgress writes the job's progress both to the job row and to the
// KV store for cheap live polling.
func (h *Handlers) reportProgress(ctx context.Context, job *domain.Job, percent int) {
	job.Progress = percent
	if err := h.jobRepo.Update(ctx, job); err != nil {
		h.logger.Error("failed to persist job progress", "job_id", job.ID, "error", err)
	}
	key := fmt.Sprintf("jobs:progress:%s", job.ID)
	if err := h.kv.Set(ctx, key, fmt.Sprintf("%d", percent), time.Hour); err != nil {
		h.logger.Error("failed to report job progress", "job_id", job.ID, "error", err)
	}
}
