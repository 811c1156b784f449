package shared

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotAllowed indicates a business rule rejects the operation.
	ErrNotAllowed = errors.New("operation not allowed")
	// ErrAlreadyApproved indicates the document is already approved.
	ErrAlreadyApproved = errors.New("document already approved")
	// ErrLocked indicates the document date falls inside a closed period.
	ErrLocked = errors.New("document locked by closed period")
	// ErrPeriodClosed indicates approval was attempted past the lock boundary without override.
	ErrPeriodClosed = errors.New("accounting period closed")
	// ErrLimitExceeded indicates the approver limit is below the document total.
	ErrLimitExceeded = errors.New("approval limit exceeded")
	// ErrUnbalanced indicates debit and credit sums differ.
	ErrUnbalanced = errors.New("transaction not balanced")
	// ErrAllocationMismatch indicates allocation amounts do not sum to the payment amount.
	ErrAllocationMismatch = errors.New("allocations do not sum to payment amount")
	// ErrOverpayment indicates an allocation would exceed the invoice balance.
	ErrOverpayment = errors.New("allocation exceeds invoice balance")
	// ErrPaymentProcessor indicates the external card gateway rejected or failed the charge.
	ErrPaymentProcessor = errors.New("payment processor failure")
)

// FieldError describes a single invalid input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationError aggregates field errors for a rejected request.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %s", f.Field, f.Message))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// NewValidationError builds a ValidationError from field/message pairs.
func NewValidationError(fields ...FieldError) *ValidationError {
	return &ValidationError{Fields: fields}
}

// AsValidationError unwraps err into a *ValidationError when possible.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}
