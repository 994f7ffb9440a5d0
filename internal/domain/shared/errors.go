package shared

import (
	"errors"
	"fmt"
)

// Error kind codes. Every business failure surfaced by the ledger carries one of these.
const (
	CodeValidation                  = "VALIDATION_ERROR"
	CodeInvalidStateTransition      = "INVALID_STATE_TRANSITION"
	CodeInsufficientRemainingAmount = "INSUFFICIENT_REMAINING_AMOUNT"
	CodeInvalidInvoiceState         = "INVALID_INVOICE_STATE"
	CodeOverpayment                 = "OVERPAYMENT"
	CodeApplicationNotFound         = "APPLICATION_NOT_FOUND"
	CodeNotFound                    = "NOT_FOUND"
	CodeConcurrencyConflict         = "CONCURRENCY_CONFLICT"
	CodeStorage                     = "STORAGE_ERROR"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Cause   error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap exposes the underlying cause (storage errors)
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError with the same code, so errors.Is(err, ErrOverpayment)
// holds for every overpayment regardless of its message.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewValidationError reports malformed input
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewInvalidStateTransitionError reports an operation not legal from the current status
func NewInvalidStateTransitionError(from, to string) *DomainError {
	return NewDomainError(CodeInvalidStateTransition,
		fmt.Sprintf("cannot transition from %s to %s", from, to))
}

// NewInsufficientRemainingAmountError reports an amount above what an entry or invoice can absorb
func NewInsufficientRemainingAmountError(format string, args ...any) *DomainError {
	return NewDomainError(CodeInsufficientRemainingAmount, fmt.Sprintf(format, args...))
}

// NewInvalidInvoiceStateError reports an invoice operation forbidden in the invoice's status
func NewInvalidInvoiceStateError(format string, args ...any) *DomainError {
	return NewDomainError(CodeInvalidInvoiceState, fmt.Sprintf(format, args...))
}

// NewOverpaymentError reports a payment larger than the open balance
func NewOverpaymentError(format string, args ...any) *DomainError {
	return NewDomainError(CodeOverpayment, fmt.Sprintf(format, args...))
}

// NewStorageError wraps an I/O failure. The cause stays reachable through errors.Is/As.
func NewStorageError(op string, cause error) *DomainError {
	return &DomainError{
		Code:    CodeStorage,
		Message: fmt.Sprintf("storage failure during %s", op),
		Cause:   cause,
	}
}

// Common domain errors
var (
	ErrNotFound            = NewDomainError(CodeNotFound, "Resource not found")
	ErrValidation          = NewDomainError(CodeValidation, "Invalid input provided")
	ErrInvalidTransition   = NewDomainError(CodeInvalidStateTransition, "Operation not allowed in current state")
	ErrInsufficientAmount  = NewDomainError(CodeInsufficientRemainingAmount, "Insufficient remaining amount")
	ErrInvalidInvoiceState = NewDomainError(CodeInvalidInvoiceState, "Operation not allowed for invoice status")
	ErrOverpayment         = NewDomainError(CodeOverpayment, "Payment exceeds open balance")
	ErrApplicationNotFound = NewDomainError(CodeApplicationNotFound, "Application not found")
	ErrConcurrencyConflict = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrStorage             = NewDomainError(CodeStorage, "Storage failure")
)

// ErrorCode returns the DomainError code of err, or "" for foreign errors.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// IsRetryable reports whether the caller may retry the same request unchanged.
func IsRetryable(err error) bool {
	switch ErrorCode(err) {
	case CodeConcurrencyConflict, CodeStorage:
		return true
	}
	return false
}
