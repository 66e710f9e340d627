// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/odyssey-erp/odyssey-campus/internal/shared"
)

// Debug controls whether unclassified error details reach the client.
// Set once at startup, outside production only.
var Debug bool

// StatusFor maps a domain error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrCorruptRecord):
		return http.StatusInternalServerError
	case errors.Is(err, shared.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrPermissionDenied):
		return http.StatusForbidden
	case errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, shared.ErrUnauthorized), errors.Is(err, shared.ErrInvalidCredentials):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

// RespondError maps domain errors to the failure envelope.
func RespondError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	env := Envelope{Success: false, Message: shared.UserSafeMessage(err)}
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		env.Errors = verr.Fields
	}
	if status == http.StatusInternalServerError && Debug && err != nil {
		env.Debug = err.Error()
	}
	JSON(w, status, env)
}
