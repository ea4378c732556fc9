package credentials

import (
	"context"
	"sync"
	"time"

	"github.com/driftnotes/driftsync/internal/logging"
)

// Exchanger mints a fresh credential.
type Exchanger interface {
	Exchange(ctx context.Context) (Credential, error)
}

// Source hands out a valid credential, reusing the held one while it stays
// outside the expiry safety margin. Credentials live in memory only; they
// are never written to disk.
type Source struct {
	exchanger Exchanger
	margin    time.Duration
	logger    logging.Logger
	now       func() time.Time

	mu      sync.Mutex
	current *Credential
}

// NewSource wraps an exchanger with in-memory caching. margin is how long
// before the published expiry a credential is considered stale.
func NewSource(exchanger Exchanger, margin time.Duration, logger logging.Logger) *Source {
	return &Source{
		exchanger: exchanger,
		margin:    margin,
		logger:    logger.With("module", "credential_source"),
		now:       time.Now,
	}
}

// Get returns the held credential while it is still fresh, otherwise mints
// a new one. A mint failure never serves the stale credential as a
// fallback.
func (s *Source) Get(ctx context.Context) (Credential, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.current != nil && s.now().Add(s.margin).Before(s.current.ExpiresAt) {
		return *s.current, nil
	}

	cred, err := s.exchanger.Exchange(ctx)
	if err != nil {
		s.current = nil
		return Credential{}, err
	}

	s.current = &cred
	s.logger.Debug(ctx, "minted sync credential", "expires_at", cred.ExpiresAt.Unix())
	return cred, nil
}

// Invalidate drops the held credential so the next Get mints a fresh one.
// Called when the database rejects the credential before its published
// expiry.
func (s *Source) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.current = nil
}
