package rest

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"kirapay/internal/application"
	"kirapay/internal/domain"
)

type ErrorResponse struct {
	Success bool        `json:"success"`
	Error   ErrorDetail `json:"error"`
}

type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteError maps service and domain errors to HTTP responses.
func WriteError(w http.ResponseWriter, logger *slog.Logger, err error) {
	statusCode := http.StatusInternalServerError
	errorCode := application.ErrCodeInternal
	message := "an internal error occurred"

	if svcErr, ok := application.IsServiceError(err); ok {
		statusCode = svcErr.HTTPStatus
		errorCode = svcErr.Code
		message = svcErr.Error()
	} else if domErr, ok := domain.IsDomainError(err); ok {
		statusCode = http.StatusUnprocessableEntity
		errorCode = domErr.Code
		message = domErr.Message
	} else {
		logger.Error("unmapped error reached transport", "error", err)
	}

	response := ErrorResponse{
		Success: false,
		Error: ErrorDetail{
			Code:    errorCode,
			Message: message,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(response)
}

// WriteJSON writes a success payload.
func WriteJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}
