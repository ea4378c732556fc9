package httpapi

import (
	"context"

	"github.com/driftnotes/driftsync/internal/broker/auth"
)

type ctxClaimsKey struct{}

// WithClaims stores validated claims in the request context. Only the auth
// middleware should call this.
func WithClaims(ctx context.Context, claims *auth.Claims) context.Context {
	return context.WithValue(ctx, ctxClaimsKey{}, claims)
}

// ClaimsFromContext returns the claims placed by the auth middleware.
func ClaimsFromContext(ctx context.Context) (*auth.Claims, bool) {
	claims, ok := ctx.Value(ctxClaimsKey{}).(*auth.Claims)
	return claims, ok
}
