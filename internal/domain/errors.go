package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a business rule violation.
type DomainError struct {
	Code    string
	Message string
	Err     error
}

func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error for errors.Is/As support
func (e *DomainError) Unwrap() error {
	return e.Err
}

const (
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodePaymentNotFound   = "PAYMENT_NOT_FOUND"
	ErrCodeContractNotFound  = "CONTRACT_NOT_FOUND"
	ErrCodeInvalidAmount     = "INVALID_AMOUNT"
	ErrCodeInvalidMethod     = "INVALID_METHOD"
	ErrCodeInactiveContract  = "INACTIVE_CONTRACT"
	ErrCodeTenantMismatch    = "TENANT_MISMATCH"
	ErrCodeMissingField      = "MISSING_REQUIRED_FIELD"
	ErrCodeDuplicateReceipt  = "DUPLICATE_RECEIPT"
)

func NewInvalidTransitionError(from, to PaymentStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidTransition,
		Message: fmt.Sprintf("cannot transition from %s to %s", from, to),
	}
}

func NewInvalidAmountError(amount int64) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidAmount,
		Message: fmt.Sprintf("invalid amount %d: must be positive", amount),
	}
}

func NewInvalidMethodError(method PaymentMethod) *DomainError {
	return &DomainError{
		Code:    ErrCodeInvalidMethod,
		Message: fmt.Sprintf("unsupported payment method %q", method),
	}
}

func NewPaymentNotFoundError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodePaymentNotFound,
		Message: fmt.Sprintf("payment with ID %s not found", id),
	}
}

func NewContractNotFoundError(id string) *DomainError {
	return &DomainError{
		Code:    ErrCodeContractNotFound,
		Message: fmt.Sprintf("contract with ID %s not found", id),
	}
}

func NewInactiveContractError(id string, status ContractStatus) *DomainError {
	return &DomainError{
		Code:    ErrCodeInactiveContract,
		Message: fmt.Sprintf("contract %s is %s, expected ACTIVE", id, status),
	}
}

func NewTenantMismatchError(contractID string) *DomainError {
	return &DomainError{
		Code:    ErrCodeTenantMismatch,
		Message: fmt.Sprintf("contract %s does not belong to the given tenant", contractID),
	}
}

func NewDuplicateReceiptError(receiptNumber string) *DomainError {
	return &DomainError{
		Code:    ErrCodeDuplicateReceipt,
		Message: fmt.Sprintf("receipt number %s is already issued", receiptNumber),
	}
}

func NewMissingFieldError(field string) *DomainError {
	return &DomainError{
		Code:    ErrCodeMissingField,
		Message: fmt.Sprintf("%s is required", field),
	}
}

// IsErrorCode checks if an error is a DomainError with a specific code
func IsErrorCode(err error, code string) bool {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code == code
	}
	return false
}

// IsDomainError unwraps err into a DomainError if one is in the chain.
func IsDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	ok := errors.As(err, &domainErr)
	return domainErr, ok
}
