// Package auth verifies bearer tokens issued by the external identity
// provider. The broker never issues identity tokens itself: it validates a
// token's signature against the provider's published key set and runs a
// fixed claim pipeline over the result.
package auth

import (
	"errors"
	"net/http"
	"strings"
	"time"
)

// RoleAuthenticated is the only role allowed on protected endpoints.
const RoleAuthenticated = "authenticated"

// Claims are the validated attributes of a caller, extracted from a
// signed bearer token. A Claims value only exists after every mandatory
// check has passed.
type Claims struct {
	Subject   string
	Role      string
	Audience  []string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
	NotBefore *time.Time
	SessionID string
}

// ExtractBearerToken pulls the token out of an Authorization header.
// The scheme comparison is case-insensitive; the token must be non-empty.
func ExtractBearerToken(h http.Header) (string, error) {
	raw := h.Get("Authorization")
	if raw == "" {
		return "", errors.New("missing Authorization header")
	}

	scheme, token, found := strings.Cut(raw, " ")
	if !found {
		return "", errors.New("Authorization header must be `Bearer <token>`")
	}
	if !strings.EqualFold(scheme, "Bearer") {
		return "", errors.New("Authorization scheme must be `Bearer`")
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return "", errors.New("bearer token is empty")
	}
	return token, nil
}

func audienceMatches(audience []string, expected string) bool {
	for _, a := range audience {
		if a == expected {
			return true
		}
	}
	return false
}
