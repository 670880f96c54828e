package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Davincible/polypasshash/pkg/crypto/shamir"
	"github.com/Davincible/polypasshash/pkg/passwords"
)

// Common errors
var (
	ErrInvalidRequest = errors.New("invalid request")
	ErrInternalError  = errors.New("internal server error")
	ErrRateLimited    = errors.New("rate limit exceeded")

	// ErrInvalidCredentials hides whether a username exists.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrForbidden is returned when the supplied credentials do not carry
	// the authority an operation needs.
	ErrForbidden = errors.New("forbidden")
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes err with the status code it maps to. Internal errors are
// not echoed to the client.
func writeError(w http.ResponseWriter, err error) {
	statusCode := mapErrorToStatusCode(err)
	resp := ErrorResponse{Error: err.Error(), Code: statusCode}
	if statusCode == http.StatusInternalServerError {
		resp = ErrorResponse{
			Error:   ErrInternalError.Error(),
			Message: "An unexpected error occurred",
			Code:    statusCode,
		}
	}
	writeJSON(w, statusCode, resp)
}

// mapErrorToStatusCode maps errors to HTTP status codes.
func mapErrorToStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, passwords.ErrInvalidUsername),
		errors.Is(err, passwords.ErrCapacityExceeded),
		errors.Is(err, passwords.ErrInsufficientShares),
		errors.Is(err, shamir.ErrDuplicateShare):
		return http.StatusBadRequest
	case errors.Is(err, ErrInvalidCredentials),
		errors.Is(err, passwords.ErrUnknownUser),
		errors.Is(err, passwords.ErrWrongSecret),
		errors.Is(err, shamir.ErrInconsistentShares):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, passwords.ErrDuplicateUser),
		errors.Is(err, passwords.ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, passwords.ErrClosed):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
