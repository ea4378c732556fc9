package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/driftnotes/driftsync/internal/common"
)

type errorResponse struct {
	Error string `json:"error"`
}

// writeError maps the error taxonomy onto HTTP statuses. Response bodies
// carry fixed canonical strings, never the wrapped error text: upstream
// failures and issuance errors can embed details that do not belong on the
// wire.
func writeError(w http.ResponseWriter, err error) {
	var rl *common.RateLimitedError
	if errors.As(err, &rl) {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", retryAfterSeconds(rl)))
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limited"})
		return
	}

	switch {
	case errors.Is(err, common.ErrUnauthenticated):
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthenticated"})
	case errors.Is(err, common.ErrForbidden):
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden"})
	case errors.Is(err, common.ErrRateLimited):
		writeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limited"})
	case errors.Is(err, common.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
	case errors.Is(err, common.ErrUpstreamUnavailable),
		errors.Is(err, common.ErrCredentialIssuance):
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "service unavailable"})
	default:
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func retryAfterSeconds(rl *common.RateLimitedError) int {
	secs := int(rl.RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

func writeBadRequest(w http.ResponseWriter, msg string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}
