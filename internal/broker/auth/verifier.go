package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

// tokenClaims is the wire shape of the identity token payload.
type tokenClaims struct {
	jwt.RegisteredClaims
	Role      string `json:"role"`
	SessionID string `json:"session_id"`
}

// Verifier validates bearer tokens against the identity provider's key set
// and the configured audience/issuer, with a clock-skew tolerance.
type Verifier struct {
	keys     *KeySet
	issuer   string
	audience string
	skew     time.Duration
	parser   *jwt.Parser
	logger   logging.Logger
	now      func() time.Time
}

// NewVerifier builds a Verifier around a shared key set.
func NewVerifier(keys *KeySet, issuer, audience string, skew time.Duration, logger logging.Logger) *Verifier {
	return &Verifier{
		keys:     keys,
		issuer:   issuer,
		audience: audience,
		skew:     skew,
		// Temporal validation is done by the claim pipeline below, with the
		// configured skew, so the library's own validation is disabled.
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{"RS256"}),
			jwt.WithoutClaimsValidation(),
		),
		logger: logger.With("module", "claims_verifier"),
		now:    time.Now,
	}
}

// VerifyAccessToken produces validated Claims or fails the whole request.
// A key-set outage maps to ErrUpstreamUnavailable; every other failure is
// ErrUnauthenticated. There is no anonymous fallback.
func (v *Verifier) VerifyAccessToken(ctx context.Context, raw string) (*Claims, error) {
	tc := &tokenClaims{}
	token, err := v.parser.ParseWithClaims(raw, tc, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("token header missing kid")
		}
		return v.keys.Resolve(ctx, kid)
	})
	if err != nil {
		if errors.Is(err, common.ErrUpstreamUnavailable) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: token validation failed: %v", common.ErrUnauthenticated, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("%w: token signature invalid", common.ErrUnauthenticated)
	}

	return v.validate(tc)
}

// validate runs the full claim pipeline. The checks are a fixed, ordered
// list so that adding a mandatory claim means adding a row here, not an ad
// hoc lookup somewhere in a handler.
func (v *Verifier) validate(tc *tokenClaims) (*Claims, error) {
	now := v.now()

	checks := []struct {
		claim string
		ok    bool
	}{
		{"sub", strings.TrimSpace(tc.Subject) != ""},
		{"role", tc.Role == RoleAuthenticated},
		{"iss", tc.Issuer == v.issuer},
		{"aud", audienceMatches(tc.Audience, v.audience)},
		{"exp", tc.ExpiresAt != nil && tc.ExpiresAt.Time.After(now.Add(-v.skew))},
		{"iat", tc.IssuedAt != nil && !tc.IssuedAt.Time.After(now.Add(v.skew))},
		{"nbf", tc.NotBefore == nil || !tc.NotBefore.Time.After(now.Add(v.skew))},
	}
	for _, c := range checks {
		if !c.ok {
			return nil, fmt.Errorf("%w: claim %q rejected", common.ErrUnauthenticated, c.claim)
		}
	}

	claims := &Claims{
		Subject:   tc.Subject,
		Role:      tc.Role,
		Audience:  tc.Audience,
		Issuer:    tc.Issuer,
		IssuedAt:  tc.IssuedAt.Time,
		ExpiresAt: tc.ExpiresAt.Time,
		SessionID: tc.SessionID,
	}
	if tc.NotBefore != nil {
		nbf := tc.NotBefore.Time
		claims.NotBefore = &nbf
	}
	if claims.SessionID == "" {
		claims.SessionID = tc.ID
	}
	return claims, nil
}
