package application

import (
	"errors"
	"fmt"
	"net/http"
)

// ServiceError carries a stable error kind so callers can tell "retry me"
// from "do not retry" conditions.
type ServiceError struct {
	Code       string
	Message    string
	HTTPStatus int
	Err        error
}

func (e *ServiceError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeConflict            = "CONFLICT"
	ErrCodeBusinessRule        = "BUSINESS_RULE"
	ErrCodeProviderUnavailable = "PROVIDER_UNAVAILABLE"
	ErrCodeTransient           = "TRANSIENT_INFRASTRUCTURE"
	ErrCodeProcessingTimeout   = "PROCESSING_TIMEOUT"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeInternal            = "INTERNAL_ERROR"
)

func NewValidationError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeValidation,
		Message:    "invalid request",
		HTTPStatus: http.StatusBadRequest,
		Err:        err,
	}
}

func NewConflictError(message string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeConflict,
		Message:    message,
		HTTPStatus: http.StatusConflict,
	}
}

func NewBusinessRuleError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeBusinessRule,
		Message:    "business rule violation",
		HTTPStatus: http.StatusUnprocessableEntity,
		Err:        err,
	}
}

func NewProviderUnavailableError(provider string) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeProviderUnavailable,
		Message:    fmt.Sprintf("payment provider %s is unavailable", provider),
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func NewTransientError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeTransient,
		Message:    "temporary infrastructure failure",
		HTTPStatus: http.StatusBadGateway,
		Err:        err,
	}
}

func NewProcessingTimeoutError() *ServiceError {
	return &ServiceError{
		Code:       ErrCodeProcessingTimeout,
		Message:    "request is still being processed, try again later",
		HTTPStatus: http.StatusServiceUnavailable,
	}
}

func NewNotFoundError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeNotFound,
		Message:    "resource not found",
		HTTPStatus: http.StatusNotFound,
		Err:        err,
	}
}

func NewInternalError(err error) *ServiceError {
	return &ServiceError{
		Code:       ErrCodeInternal,
		Message:    "an internal error occurred",
		HTTPStatus: http.StatusInternalServerError,
		Err:        err,
	}
}

func IsServiceError(err error) (*ServiceError, bool) {
	var svcErr *ServiceError
	ok := errors.As(err, &svcErr)
	return svcErr, ok
}
