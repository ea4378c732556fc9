package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/driftnotes/driftsync/internal/broker/ratelimit"
	"github.com/driftnotes/driftsync/internal/common"
)

type healthzResponse struct {
	Status    string             `json:"status"`
	Timestamp int64              `json:"timestamp"`
	RateLimit ratelimit.Snapshot `json:"rate_limit"`
}

func (a *api) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthzResponse{
		Status:    "ok",
		Timestamp: time.Now().Unix(),
		RateLimit: a.Limiter.MetricsSnapshot(),
	})
}

// handleBootstrap serves the manifest with revalidation support. The bytes
// served are the same bytes the fingerprint was computed over.
func (a *api) handleBootstrap(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("ETag", a.Bootstrap.ETag())
	w.Header().Set("Cache-Control", a.Bootstrap.CacheControl())

	if a.Bootstrap.NotModified(r.Header.Get("If-None-Match")) {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(a.Bootstrap.Body())
}

func (a *api) handleSyncToken(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrUnauthenticated)
		return
	}

	if err := a.Limiter.Check(r.Context(), ratelimit.EndpointSyncToken, claims.Subject); err != nil {
		writeError(w, err)
		return
	}

	cred, err := a.Tokens.IssueSyncCredential(r.Context(), claims)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cred)
}

type presignRequest struct {
	ObjectKey   string `json:"object_key"`
	ContentType string `json:"content_type,omitempty"`
}

func (a *api) handlePresignUpload(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrUnauthenticated)
		return
	}

	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := a.Limiter.Check(r.Context(), ratelimit.EndpointMediaPresign, claims.Subject); err != nil {
		writeError(w, err)
		return
	}

	op, err := a.Media.PresignUpload(r.Context(), claims, req.ObjectKey, req.ContentType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (a *api) handlePresignDownload(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrUnauthenticated)
		return
	}

	objectKey := r.URL.Query().Get("object_key")
	if objectKey == "" {
		writeBadRequest(w, "object_key query parameter is required")
		return
	}

	if err := a.Limiter.Check(r.Context(), ratelimit.EndpointMediaPresign, claims.Subject); err != nil {
		writeError(w, err)
		return
	}

	op, err := a.Media.PresignDownload(r.Context(), claims, objectKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

func (a *api) handlePresignDelete(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, common.ErrUnauthenticated)
		return
	}

	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid request body")
		return
	}

	if err := a.Limiter.Check(r.Context(), ratelimit.EndpointMediaPresign, claims.Subject); err != nil {
		writeError(w, err)
		return
	}

	op, err := a.Media.PresignDelete(r.Context(), claims, req.ObjectKey)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}
