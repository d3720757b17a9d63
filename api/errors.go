// Package api holds the HTTP error mapping and helpers shared by the
// operator-facing handlers.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/kilianp07/fleetcmd/core/dispatch"
)

// ErrBadRequest marks a request body or query that could not be used.
var ErrBadRequest = errors.New("bad request")

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ToAPIError converts an error to an HTTP status code and JSON body.
func ToAPIError(err error) (int, []byte) {
	if err == nil {
		return http.StatusOK, nil
	}
	var status int
	var code, msg string
	switch {
	case errors.Is(err, dispatch.ErrUnauthorized):
		status, code, msg = http.StatusUnauthorized, "UNAUTHORIZED", "Missing or invalid operator token"
	case errors.Is(err, dispatch.ErrTargetNotFound):
		status, code, msg = http.StatusNotFound, "TARGET_NOT_FOUND", "Vehicle not connected"
	case errors.Is(err, dispatch.ErrCommandNotFound):
		status, code, msg = http.StatusNotFound, "COMMAND_NOT_FOUND", "Command not found"
	case errors.Is(err, ErrBadRequest), errors.Is(err, dispatch.ErrInvalidCommand):
		status, code, msg = http.StatusBadRequest, "BAD_REQUEST", err.Error()
	default:
		status, code, msg = http.StatusInternalServerError, "INTERNAL", "Internal server error"
	}
	body, _ := json.Marshal(ErrorResponse{Error: code, Message: msg})
	return status, body
}

// WriteError writes err using ToAPIError.
func WriteError(w http.ResponseWriter, err error) {
	status, body := ToAPIError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(body, '\n'))
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// BearerToken extracts the token of an "Authorization: Bearer <token>" header.
// It returns "" when the header is missing or uses another scheme.
func BearerToken(r *http.Request) string {
	scheme, tok, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}
