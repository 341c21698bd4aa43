package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/nerrad567/homey-core/internal/identity"
)

// Error represents a structured error response.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Common error codes.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeInternal     = "internal_error"
	ErrCodeValidation   = "validation_error"
	ErrCodeUnavailable  = "unavailable"
)

// MessageMissingFields is shown when the add-device form is incomplete.
const MessageMissingFields = "Please fill in all fields"

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError writes a structured error response.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, Error{
		Status:  status,
		Code:    code,
		Message: message,
	})
}

func writeBadRequest(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeBadRequest, message)
}

func writeValidationError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

func writeNotFound(w http.ResponseWriter, message string) {
	writeError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

func writeUnauthorized(w http.ResponseWriter, message string) {
	writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

func writeInternalError(w http.ResponseWriter, message string) {
	writeError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// writeAuthError maps an identity error onto a response whose message is
// the text the sign-in form shows.
func writeAuthError(w http.ResponseWriter, err error) {
	msg := identity.UserMessage(err)

	switch identity.KindOf(err) {
	case identity.KindValidation:
		writeValidationError(w, msg)
	case identity.KindInvalidCredentials, identity.KindEmailNotConfirmed:
		writeUnauthorized(w, msg)
	default:
		if errors.Is(err, identity.ErrNoSession) || errors.Is(err, identity.ErrTokenInvalid) {
			writeUnauthorized(w, "session expired or signed out")
			return
		}
		writeInternalError(w, msg)
	}
}
