// Package apperrors defines the typed errors shared by the agent's components.
// Each error carries a stable kind that the HTTP layer maps to a status code.
package apperrors

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Kind identifies an error category on the wire.
type Kind string

// Stable error kinds.
const (
	KindValidation      Kind = "validation_error"
	KindUnauthorized    Kind = "unauthorized"
	KindForbidden       Kind = "forbidden"
	KindPaymentRequired Kind = "payment_required"
	KindNotFound        Kind = "not_found"
	KindConflict        Kind = "conflict"
	KindAlreadyRunning  Kind = "already_running"
	KindInternal        Kind = "internal_error"
)

// ValidationError indicates malformed or missing input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("validation error: %s", e.Message)
	}
	return fmt.Sprintf("validation error: %s - %s", e.Field, e.Message)
}

// FromValidator converts a validator error into a ValidationError naming the
// first failing field. Other errors become a generic ValidationError.
func FromValidator(err error) error {
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) && len(fieldErrs) > 0 {
		fe := fieldErrs[0]
		return &ValidationError{Field: fe.Field(), Message: "failed " + fe.Tag() + " check"}
	}
	return &ValidationError{Message: err.Error()}
}

// UnauthorizedError indicates a missing or invalid credential.
type UnauthorizedError struct {
	Reason string
}

func (e *UnauthorizedError) Error() string {
	if e.Reason == "" {
		return "unauthorized"
	}
	return "unauthorized: " + e.Reason
}

// ForbiddenError indicates an authenticated caller lacking a capability.
type ForbiddenError struct {
	Capability string
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s capability required", e.Capability)
}

// PaymentRequiredError indicates admission control rejected the request.
type PaymentRequiredError struct {
	Reason string
}

func (e *PaymentRequiredError) Error() string {
	if e.Reason == "" {
		return "payment required"
	}
	return "payment required: " + e.Reason
}

// NotFoundError indicates a referenced entity does not exist.
type NotFoundError struct {
	Entity string
	ID     string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Entity, e.ID)
}

// ConflictError indicates the request is inconsistent with current state.
type ConflictError struct {
	Message string
}

func (e *ConflictError) Error() string {
	return "conflict: " + e.Message
}

// AlreadyRunningError is returned when a tick is requested while another is in progress.
type AlreadyRunningError struct{}

func (e *AlreadyRunningError) Error() string {
	return "tick already in progress"
}

// InternalError wraps an unexpected failure, usually from storage.
type InternalError struct {
	Op    string
	Cause error
}

func (e *InternalError) Error() string {
	if e.Cause == nil {
		return fmt.Sprintf("internal error: %s", e.Op)
	}
	return fmt.Sprintf("internal error: %s: %v", e.Op, e.Cause)
}

func (e *InternalError) Unwrap() error {
	return e.Cause
}

// Internal wraps cause as an InternalError unless it already carries a known kind.
func Internal(op string, cause error) error {
	if cause == nil {
		return nil
	}
	if KindOf(cause) != KindInternal {
		return cause
	}
	var ie *InternalError
	if errors.As(cause, &ie) {
		return cause
	}
	return &InternalError{Op: op, Cause: cause}
}

// KindOf returns the stable kind of err. Unknown errors are internal.
func KindOf(err error) Kind {
	var (
		validation *ValidationError
		unauth     *UnauthorizedError
		forbidden  *ForbiddenError
		payment    *PaymentRequiredError
		notFound   *NotFoundError
		conflict   *ConflictError
		running    *AlreadyRunningError
	)
	switch {
	case errors.As(err, &validation):
		return KindValidation
	case errors.As(err, &unauth):
		return KindUnauthorized
	case errors.As(err, &forbidden):
		return KindForbidden
	case errors.As(err, &payment):
		return KindPaymentRequired
	case errors.As(err, &notFound):
		return KindNotFound
	case errors.As(err, &conflict):
		return KindConflict
	case errors.As(err, &running):
		return KindAlreadyRunning
	default:
		return KindInternal
	}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}
