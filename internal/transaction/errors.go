package transaction

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorKind is the machine-readable error category reported to callers.
type ErrorKind string

const (
	KindIllegalTransition      ErrorKind = "illegal_transition"
	KindInsufficientStock      ErrorKind = "insufficient_stock"
	KindDropshipNotEligible    ErrorKind = "dropship_required_but_not_eligible"
	KindConcurrentModification ErrorKind = "concurrent_modification"
	KindValidationError        ErrorKind = "validation_error"
)

// Error is a recoverable posting failure. The transaction always remains in
// its prior status; the caller corrects the cause and resubmits.
type Error struct {
	Kind    ErrorKind
	Message string
	Details []string
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorKind satisfies httpx.Kinder.
func (e *Error) ErrorKind() string {
	return string(e.Kind)
}

// ErrorDetails satisfies httpx.Kinder.
func (e *Error) ErrorDetails() []string {
	return e.Details
}

// HTTPStatus satisfies httpx.Kinder.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidationError:
		return http.StatusBadRequest
	case KindIllegalTransition, KindConcurrentModification:
		return http.StatusConflict
	case KindInsufficientStock, KindDropshipNotEligible:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusBadRequest
	}
}

// NewIllegalTransition builds the error for an action not legal from the
// current status.
func NewIllegalTransition(kind Kind, current Status, action Action) *Error {
	return &Error{
		Kind:    KindIllegalTransition,
		Message: fmt.Sprintf("action %q is not allowed for %s in status %q", action, kind, current),
	}
}

// NewInsufficientStock builds the error carrying the offending lines.
func NewInsufficientStock(details []string) *Error {
	return &Error{
		Kind:    KindInsufficientStock,
		Message: "insufficient stock for one or more lines",
		Details: details,
	}
}

// NewDropshipNotEligible reports a short line whose item cannot dropship.
func NewDropshipNotEligible(details []string) *Error {
	return &Error{
		Kind:    KindDropshipNotEligible,
		Message: "stock is short and item is not dropship eligible",
		Details: details,
	}
}

// NewConcurrentModification reports a lost posting race.
func NewConcurrentModification() *Error {
	return &Error{
		Kind:    KindConcurrentModification,
		Message: "another posting committed first, reload and retry",
	}
}

// NewValidationError reports malformed input with per-field details.
func NewValidationError(message string, details ...string) *Error {
	return &Error{Kind: KindValidationError, Message: message, Details: details}
}

// AsError extracts a *Error when err carries one.
func AsError(err error) (*Error, bool) {
	var domainErr *Error
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}
