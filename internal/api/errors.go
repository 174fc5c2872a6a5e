package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/introspect-ai/sophia/internal/conversation"
	"github.com/introspect-ai/sophia/internal/observe"
	"github.com/introspect-ai/sophia/internal/store"
)

// errorBody is the JSON shape for all error responses.
type errorBody struct {
	Error string `json:"error"`
}

// statusFor maps domain errors onto HTTP status codes:
//
//   - unknown user on a chat call        → 401
//   - unknown user/summary on a lookup   → 404
//   - duplicate user name on create      → 409
//   - engine or provider failure         → 502
//   - anything else (database, internal) → 500
func statusFor(err error) int {
	switch {
	case errors.Is(err, conversation.ErrUnknownUser):
		return http.StatusUnauthorized
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, conversation.ErrEngine):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError maps err to a status code and writes the JSON error body.
// Internal errors are logged with their cause but surfaced with a generic
// message so database details never leak to clients.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		observe.Logger(r.Context()).Error("request failed", "path", r.URL.Path, "err", err)
		msg = "internal error"
	}
	writeJSON(w, status, errorBody{Error: msg})
}

// writeError writes a JSON error body with the given status and message.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorBody{Error: msg})
}

// writeJSON encodes v and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
