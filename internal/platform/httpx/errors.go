package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors shared across handlers.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrValidation = errors.New("validation failed")
)

// Kinder is implemented by domain errors carrying a machine-readable kind,
// an HTTP status and per-line details.
type Kinder interface {
	error
	ErrorKind() string
	HTTPStatus() int
	ErrorDetails() []string
}

// RespondError maps domain errors to failure envelopes.
func RespondError(w http.ResponseWriter, err error) {
	var kinded Kinder
	switch {
	case errors.As(err, &kinded):
		Fail(w, kinded.HTTPStatus(), kinded.ErrorKind(), kinded.Error(), kinded.ErrorDetails()...)
	case errors.Is(err, ErrNotFound):
		Fail(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, ErrValidation):
		Fail(w, http.StatusBadRequest, "validation_error", err.Error())
	default:
		Fail(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}
