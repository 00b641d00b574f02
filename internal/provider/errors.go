package provider

import (
	"errors"
	"fmt"
)

// Error is a rejection or failure reported by an external payment provider.
type Error struct {
	Provider   string
	Code       string
	Message    string
	StatusCode int
}

type errorResponse struct {
	Err     string `json:"error"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s error [%s]: %s (status: %d)", e.Provider, e.Code, e.Message, e.StatusCode)
}

// IsBusinessRejection reports whether the provider rejected the charge for
// business reasons (4xx). Such failures are terminal and must not be retried.
func (e *Error) IsBusinessRejection() bool {
	return e.StatusCode >= 400 && e.StatusCode < 500
}

func IsProviderError(err error) (*Error, bool) {
	var provErr *Error
	ok := errors.As(err, &provErr)
	return provErr, ok
}
