package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/jmcleod/fleetguard/guard"
	"github.com/jmcleod/fleetguard/identity"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// mapError turns a guard error into a status code and a user-safe
// message. The raw error is logged, never written.
func (a *API) mapError(w http.ResponseWriter, r *http.Request, err error) {
	var rl *guard.RateLimitError
	var wp *guard.WeakPasswordError
	switch {
	case errors.As(err, &rl):
		w.Header().Set("Retry-After", retryAfterString(rl.RetryAfter))
		writeError(w, http.StatusTooManyRequests, guard.UserMessage(err))
	case errors.As(err, &wp):
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: guard.UserMessage(err), Violations: wp.Violations})
	case errors.Is(err, guard.ErrValidation):
		writeError(w, http.StatusBadRequest, guard.UserMessage(err))
	case errors.Is(err, identity.ErrNotAuthenticated):
		writeError(w, http.StatusUnauthorized, guard.UserMessage(err))
	case errors.Is(err, identity.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, guard.UserMessage(err))
	case errors.Is(err, identity.ErrAccountExists):
		writeError(w, http.StatusConflict, guard.UserMessage(err))
	case errors.Is(err, guard.ErrUpstreamAuth):
		a.logger.Error("identity provider failure", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusBadGateway, guard.UserMessage(err))
	default:
		a.logger.Error("request failed", "path", r.URL.Path, "error", err)
		writeError(w, http.StatusInternalServerError, guard.UserMessage(err))
	}
}
