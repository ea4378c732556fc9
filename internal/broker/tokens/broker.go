// Package tokens mints short-lived, identity-scoped database sync
// credentials by calling the database platform's administrative API.
package tokens

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/driftnotes/driftsync/internal/broker/auth"
	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

// SyncCredential is a scoped database-access credential with an absolute
// expiry. The expiry is always absolute, never a relative TTL, so clients
// can reason about staleness without trusting their own interval math.
//
// The token value is redacted from String, Debug and slog output; only the
// JSON encoding for the issuing response carries it.
type SyncCredential struct {
	AuthToken   string `json:"auth_token"`
	ExpiresAt   int64  `json:"expires_at"`
	DatabaseURL string `json:"database_url"`
}

func (c SyncCredential) String() string {
	return fmt.Sprintf("SyncCredential{auth_token:[REDACTED], expires_at:%d, database_url:%s}", c.ExpiresAt, c.DatabaseURL)
}

// LogValue keeps the token out of structured logs even when a credential
// is passed to a logger by accident.
func (c SyncCredential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("auth_token", "[REDACTED]"),
		slog.Int64("expires_at", c.ExpiresAt),
		slog.String("database_url", c.DatabaseURL),
	)
}

// Minter is the narrow interface to the upstream platform API. It exists so
// the broker's own logic is testable without live upstream calls.
type Minter interface {
	MintDatabaseToken(ctx context.Context, subject string, ttl time.Duration) (token string, expiresAt int64, err error)
}

// Broker exchanges validated claims for a SyncCredential.
type Broker struct {
	minter      Minter
	databaseURL string
	ttl         time.Duration
	logger      logging.Logger
	now         func() time.Time
}

// NewBroker wires a Broker to an upstream minter. databaseURL is the
// endpoint clients pair with the minted token.
func NewBroker(minter Minter, databaseURL string, ttl time.Duration, logger logging.Logger) *Broker {
	return &Broker{
		minter:      minter,
		databaseURL: databaseURL,
		ttl:         ttl,
		logger:      logger.With("module", "token_broker"),
		now:         time.Now,
	}
}

// IssueSyncCredential mints a credential bound to the caller's identity.
// There is no credential cache: a cached token could leak across
// identities, and a stale token must never be served as a fallback.
func (b *Broker) IssueSyncCredential(ctx context.Context, claims *auth.Claims) (SyncCredential, error) {
	token, expiresAt, err := b.minter.MintDatabaseToken(ctx, claims.Subject, b.ttl)
	if err != nil {
		return SyncCredential{}, fmt.Errorf("%w: %w", common.ErrCredentialIssuance, err)
	}

	if expiresAt == 0 {
		// Upstream omitted the expiry; derive the absolute time from the
		// requested TTL.
		expiresAt = b.now().Add(b.ttl).Unix()
	}

	cred := SyncCredential{
		AuthToken:   token,
		ExpiresAt:   expiresAt,
		DatabaseURL: b.databaseURL,
	}

	b.logger.Info(ctx, "issued sync credential",
		"subject", common.SubjectFingerprint(claims.Subject),
		"expires_at", cred.ExpiresAt,
	)
	return cred, nil
}
