package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/go-playground/validator"

	"kirapay/internal/application"
	"kirapay/internal/application/services"
	"kirapay/internal/domain"
	"kirapay/internal/interfaces/rest"
	"kirapay/internal/interfaces/rest/middleware"
)

// IdempotencyKeyHeader is the client-supplied retry token. Every create
// request must carry one; retries must reuse it.
const IdempotencyKeyHeader = "Idempotency-Key"

type Handlers struct {
	payments *services.PaymentService
	jobs     application.JobRepository
	kv       application.KVStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewHandlers(
	payments *services.PaymentService,
	jobs application.JobRepository,
	kv application.KVStore,
	logger *slog.Logger,
) *Handlers {
	return &Handlers{
		payments: payments,
		jobs:     jobs,
		kv:       kv,
		validate: validator.New(),
		logger:   logger,
	}
}

type createPaymentRequest struct {
	ContractID  string            `json:"contract_id" validate:"required,uuid"`
	TenantID    string            `json:"tenant_id" validate:"required,uuid"`
	AmountCents int64             `json:"amount_cents" validate:"required"`
	Method      string            `json:"method" validate:"required"`
	DueDate     time.Time         `json:"due_date" validate:"required"`
	Metadata    map[string]string `json:"metadata"`
}

type jobResponse struct {
	JobID       uuid.UUID        `json:"job_id"`
	Type        domain.JobType   `json:"type"`
	Status      domain.JobStatus `json:"status"`
	Attempts    int              `json:"attempts"`
	MaxAttempts int              `json:"max_attempts"`
	Progress    int              `json:"progress"`
	LastError   string           `json:"last_error,omitempty"`
}

func (h *Handlers) CreatePayment(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get(IdempotencyKeyHeader)
	if token == "" {
		rest.WriteError(w, h.logger, application.NewValidationError(
			fmt.Errorf("missing %s header", IdempotencyKeyHeader)))
		return
	}

	actor := middleware.ActorID(r.Context())
	if actor == "" {
		rest.WriteError(w, h.logger, application.NewValidationError(
			fmt.Errorf("missing %s header", middleware.ActorIDHeader)))
		return
	}

	var req createPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rest.WriteError(w, h.logger, application.NewValidationError(
			fmt.Errorf("malformed request body: %w", err)))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		rest.WriteError(w, h.logger, application.NewValidationError(err))
		return
	}

	contractID, err := uuid.Parse(req.ContractID)
	if err != nil {
		rest.WriteError(w, h.logger, application.NewValidationError(
			fmt.Errorf("contract_id is not a valid uuid: %w", err)))
		return
	}
	tenantID, err := uuid.Parse(req.TenantID)
	if err != nil {
		rest.WriteError(w, h.logger, application.NewValidationError(
			fmt.Errorf("tenant_id is not a valid uuid: %w", err)))
		return
	}

	cmd := services.CreatePaymentCommand{
		ContractID:  contractID,
		TenantID:    tenantID,
		AmountCents: req.AmountCents,
		Method:      domain.PaymentMethod(req.Method),
		DueDate:     req.DueDate,
		Metadata:    req.Metadata,
	}

	resp, err := h.payments.Create(r.Context(), cmd, actor, token)
	if err != nil {
		rest.WriteError(w, h.logger, err)
		return
	}

	rest.WriteJSON(w, http.StatusAccepted, resp)
}

func (h *Handlers) GetPayment(w http.ResponseWriter, r *http.Request) {
	paymentID, err := uuid.Parse(chi.URLParam(r, "payment_id"))
	if err != nil {
		rest.WriteError(w, h.logger, application.NewValidationError(
			fmt.Errorf("payment id is not a valid uuid: %w", err)))
		return
	}

	resp, err := h.payments.GetStatus(r.Context(), paymentID)
	if err != nil {
		rest.WriteError(w, h.logger, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	jobID, err := uuid.Parse(chi.URLParam(r, "job_id"))
	if err != nil {
		rest.WriteError(w, h.logger, application.NewValidationError(
			fmt.Errorf("job id is not a valid uuid: %w", err)))
		return
	}

	job, err := h.jobs.FindByID(r.Context(), jobID)
	if err != nil {
		rest.WriteError(w, h.logger, application.NewNotFoundError(err))
		return
	}

	resp := jobResponse{
		JobID:       job.ID,
		Type:        job.Type,
		Status:      job.Status,
		Attempts:    job.Attempts,
		MaxAttempts: job.MaxAttempts,
		Progress:    job.Progress,
	}
	if job.LastError != nil {
		resp.LastError = *job.LastError
	}

	// The worker reports progress out of band; that value is fresher
	// than the job row for long-running jobs.
	if raw, err := h.kv.Get(r.Context(), "jobs:progress:"+jobID.String()); err == nil {
		if percent, convErr := strconv.Atoi(raw); convErr == nil {
			resp.Progress = percent
		}
	} else if !errors.Is(err, application.ErrKeyNotFound) {
		h.logger.Warn("job progress lookup failed", "job_id", jobID, "error", err)
	}

	rest.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	rest.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
