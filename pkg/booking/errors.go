package booking

import (
	"errors"
	"fmt"
)

// Domain-level error values returned by the booking engine.
var (
	ErrCellConflict             = errors.New("cell already claimed")
	ErrHoldExpired              = errors.New("hold expired")
	ErrInvalidState             = errors.New("invalid lifecycle state")
	ErrDurationLimitExceeded    = errors.New("duration limit exceeded")
	ErrNotFound                 = errors.New("not found")
	ErrValidation               = errors.New("validation failed")
	ErrInvalidFieldID           = errors.New("invalid field id")
	ErrInvalidUserID            = errors.New("invalid user id")
	ErrInvalidReservationID     = errors.New("invalid reservation id")
	ErrInvalidRequestID         = errors.New("invalid request id")
	ErrInvalidSlotID            = errors.New("invalid slot id")
	ErrInvalidDate              = errors.New("invalid date")
	ErrInvalidAmountCents       = errors.New("invalid amount cents")
	ErrInvalidCellStatus        = errors.New("invalid cell status")
	ErrInvalidBookingStatus     = errors.New("invalid booking status")
	ErrInvalidPaymentStatus     = errors.New("invalid payment status")
	ErrInvalidActorRole         = errors.New("invalid actor role")
	ErrInvalidCancellationState = errors.New("invalid cancellation state")
	ErrInvalidServiceConfig     = errors.New("invalid service config")
)

// OperationError wraps a failure with a stable operation code.
type OperationError struct {
	operation string
	subject   string
	code      string
	err       error
}

// Error returns the formatted error message.
func (operationError OperationError) Error() string {
	return fmt.Sprintf("%s.%s.%s: %v", operationError.operation, operationError.subject, operationError.code, operationError.err)
}

// Unwrap returns the underlying error.
func (operationError OperationError) Unwrap() error {
	return operationError.err
}

// Operation returns the operation segment.
func (operationError OperationError) Operation() string {
	return operationError.operation
}

// Subject returns the subject segment.
func (operationError OperationError) Subject() string {
	return operationError.subject
}

// Code returns the stable error code segment.
func (operationError OperationError) Code() string {
	return operationError.code
}

// WrapError wraps an error with operation, subject, and code metadata.
func WrapError(operation string, subject string, code string, err error) error {
	if err == nil {
		return nil
	}
	return OperationError{
		operation: operation,
		subject:   subject,
		code:      code,
		err:       err,
	}
}
