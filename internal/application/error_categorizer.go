package application

import (
	"context"
	"errors"

	"kirapay/internal/breaker"
	"kirapay/internal/domain"
	"kirapay/internal/provider"
)

// ErrorCategory drives the job worker's retry decision. The worker must
// distinguish by error kind, never by a generic catch-all.
type ErrorCategory string

const (
	// CategoryTransient errors are retried with backoff up to the attempt cap.
	CategoryTransient ErrorCategory = "TRANSIENT"
	// CategoryTerminal errors fail the job immediately regardless of the
	// remaining attempt budget.
	CategoryTerminal ErrorCategory = "TERMINAL"
)

// CategorizeError classifies an execution failure.
func CategorizeError(err error) ErrorCategory {
	if err == nil {
		return ""
	}

	// An open circuit is a fast terminal failure for the current attempt:
	// re-queueing while the breaker is open only burns the retry budget.
	if errors.Is(err, breaker.ErrCircuitOpen) {
		return CategoryTerminal
	}

	// Business rejections from a provider (4xx) are final; 5xx is the
	// provider's problem and worth another attempt.
	if provErr, ok := provider.IsProviderError(err); ok {
		if provErr.IsBusinessRejection() {
			return CategoryTerminal
		}
		return CategoryTransient
	}

	// Domain rule violations never change on retry.
	var domainErr *domain.DomainError
	if errors.As(err, &domainErr) {
		return CategoryTerminal
	}

	if svcErr, ok := IsServiceError(err); ok {
		switch svcErr.Code {
		case ErrCodeValidation, ErrCodeConflict, ErrCodeBusinessRule, ErrCodeNotFound, ErrCodeProviderUnavailable:
			return CategoryTerminal
		}
		return CategoryTransient
	}

	// Timeouts and cancellations are network-shaped problems.
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return CategoryTransient
	}

	return CategoryTransient
}

// IsRetryable reports whether the worker should re-queue the job.
func IsRetryable(err error) bool {
	return CategorizeError(err) == CategoryTransient
}
