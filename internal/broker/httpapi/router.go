// Package httpapi exposes the broker over HTTP: the public bootstrap
// manifest plus the authenticated credential and presign endpoints.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/driftnotes/driftsync/internal/broker/auth"
	"github.com/driftnotes/driftsync/internal/broker/bootstrap"
	"github.com/driftnotes/driftsync/internal/broker/media"
	"github.com/driftnotes/driftsync/internal/broker/ratelimit"
	"github.com/driftnotes/driftsync/internal/broker/tokens"
	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

// TokenVerifier validates a bearer token into claims.
type TokenVerifier interface {
	VerifyAccessToken(ctx context.Context, raw string) (*auth.Claims, error)
}

// CredentialIssuer exchanges claims for a sync credential.
type CredentialIssuer interface {
	IssueSyncCredential(ctx context.Context, claims *auth.Claims) (tokens.SyncCredential, error)
}

// MediaPresigner issues namespace-checked presigned URLs.
type MediaPresigner interface {
	PresignUpload(ctx context.Context, claims *auth.Claims, objectKey, contentType string) (*media.PresignedOperation, error)
	PresignDownload(ctx context.Context, claims *auth.Claims, objectKey string) (*media.PresignedOperation, error)
	PresignDelete(ctx context.Context, claims *auth.Claims, objectKey string) (*media.PresignedOperation, error)
}

// Deps collects the services the router dispatches to.
type Deps struct {
	Verifier  TokenVerifier
	Limiter   *ratelimit.Limiter
	Tokens    CredentialIssuer
	Media     MediaPresigner
	Bootstrap *bootstrap.Service
	Logger    logging.Logger
}

type api struct {
	Deps
}

// NewRouter builds the chi router with the full middleware chain.
func NewRouter(deps Deps) http.Handler {
	a := &api{Deps: deps}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "If-None-Match"},
		MaxAge:         300,
	}))

	r.Get("/healthz", a.handleHealthz)
	r.Get("/v1/bootstrap", a.handleBootstrap)

	r.Group(func(pr chi.Router) {
		pr.Use(a.requireAuth)
		pr.Post("/v1/sync/token", a.handleSyncToken)
		pr.Post("/v1/media/presign/upload", a.handlePresignUpload)
		pr.Get("/v1/media/presign/download", a.handlePresignDownload)
		pr.Post("/v1/media/presign/delete", a.handlePresignDelete)
	})

	return r
}

// requireAuth rejects requests without a valid bearer token and stores the
// resulting claims in the request context. A key-set outage maps to 503,
// everything else to 401.
func (a *api) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := auth.ExtractBearerToken(r.Header)
		if err != nil {
			writeError(w, common.ErrUnauthenticated)
			return
		}

		claims, err := a.Verifier.VerifyAccessToken(r.Context(), token)
		if err != nil {
			if errors.Is(err, common.ErrUpstreamUnavailable) {
				writeError(w, err)
				return
			}
			writeError(w, common.ErrUnauthenticated)
			return
		}

		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}
