// Package common defines shared sentinel errors used across the broker and
// client layers. Callers should use errors.Is to match these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// Broker request errors.
	ErrUnauthenticated     = errors.New("unauthenticated")
	ErrForbidden           = errors.New("forbidden")
	ErrRateLimited         = errors.New("rate limited")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
	ErrCredentialIssuance  = errors.New("credential issuance failed")

	// Client-side errors.
	ErrMalformedManifest = errors.New("malformed manifest")
	ErrStaleCredential   = errors.New("stale credential")
	ErrSyncUnavailable   = errors.New("sync unavailable")

	// Generic flow control.
	ErrNotFound = errors.New("not found")
	ErrInternal = errors.New("internal error")
)

// RateLimitedError carries the remaining window time that a denied caller
// should wait before retrying. Matches ErrRateLimited via errors.Is.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
