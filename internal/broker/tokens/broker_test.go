package tokens

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftnotes/driftsync/internal/broker/auth"
	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

type fakeMinter struct {
	token     string
	expiresAt int64
	err       error
	lastTTL   time.Duration
	subject   string
}

func (f *fakeMinter) MintDatabaseToken(ctx context.Context, subject string, ttl time.Duration) (string, int64, error) {
	f.subject = subject
	f.lastTTL = ttl
	return f.token, f.expiresAt, f.err
}

func testClaims(subject string) *auth.Claims {
	return &auth.Claims{Subject: subject, Role: auth.RoleAuthenticated}
}

func TestIssueSyncCredential_Success(t *testing.T) {
	t.Parallel()

	minter := &fakeMinter{token: "db-token", expiresAt: 1700000900}
	b := NewBroker(minter, "postgres://db.example:5432/notes", 15*time.Minute, logging.Nop())

	cred, err := b.IssueSyncCredential(context.Background(), testClaims("user-1"))
	require.NoError(t, err)
	assert.Equal(t, "db-token", cred.AuthToken)
	assert.Equal(t, int64(1700000900), cred.ExpiresAt)
	assert.Equal(t, "postgres://db.example:5432/notes", cred.DatabaseURL)
	assert.Equal(t, "user-1", minter.subject)
	assert.Equal(t, 15*time.Minute, minter.lastTTL)
}

func TestIssueSyncCredential_AbsoluteExpiryFallback(t *testing.T) {
	t.Parallel()

	minter := &fakeMinter{token: "db-token", expiresAt: 0}
	b := NewBroker(minter, "postgres://db", 15*time.Minute, logging.Nop())
	fixed := time.Unix(1700000000, 0)
	b.now = func() time.Time { return fixed }

	cred, err := b.IssueSyncCredential(context.Background(), testClaims("u"))
	require.NoError(t, err)
	assert.Equal(t, fixed.Add(15*time.Minute).Unix(), cred.ExpiresAt)
}

func TestIssueSyncCredential_UpstreamFailure(t *testing.T) {
	t.Parallel()

	minter := &fakeMinter{err: fmt.Errorf("%w: boom", common.ErrUpstreamUnavailable)}
	b := NewBroker(minter, "postgres://db", 15*time.Minute, logging.Nop())

	_, err := b.IssueSyncCredential(context.Background(), testClaims("u"))
	assert.ErrorIs(t, err, common.ErrCredentialIssuance)
	assert.ErrorIs(t, err, common.ErrUpstreamUnavailable)
}

func TestSyncCredential_Redaction(t *testing.T) {
	t.Parallel()

	cred := SyncCredential{AuthToken: "super-secret", ExpiresAt: 123, DatabaseURL: "postgres://db"}

	assert.NotContains(t, cred.String(), "super-secret")
	assert.Contains(t, cred.String(), "[REDACTED]")
	assert.NotContains(t, fmt.Sprintf("%v", cred), "super-secret")
	assert.NotContains(t, fmt.Sprintf("%+v", cred), "super-secret")
	assert.NotContains(t, cred.LogValue().String(), "super-secret")
}

func TestPlatformMinter_MintsToken(t *testing.T) {
	t.Parallel()

	var gotPath, gotAuth string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path + "?" + r.URL.RawQuery
		gotAuth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{"jwt": "minted", "expires_at": 1700000900})
	}))
	t.Cleanup(srv.Close)

	m := NewPlatformMinter(srv.URL, "org", "notes", "platform-secret", 2*time.Second, logging.Nop())
	token, expiresAt, err := m.MintDatabaseToken(context.Background(), "user-1", 900*time.Second)
	require.NoError(t, err)

	assert.Equal(t, "minted", token)
	assert.Equal(t, int64(1700000900), expiresAt)
	assert.Equal(t, "/v1/organizations/org/databases/notes/credentials?expiration=900s", gotPath)
	assert.Equal(t, "Bearer platform-secret", gotAuth)

	metadata, ok := gotBody["metadata"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "user-1", metadata["subject"])
}

func TestPlatformMinter_RetriesServerErrors(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"auth_token": "minted"})
	}))
	t.Cleanup(srv.Close)

	m := NewPlatformMinter(srv.URL, "org", "notes", "secret", 2*time.Second, logging.Nop())
	token, _, err := m.MintDatabaseToken(context.Background(), "u", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "minted", token)
	assert.Equal(t, int64(3), hits.Load())
}

func TestPlatformMinter_ClientErrorIsNotRetried(t *testing.T) {
	t.Parallel()

	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(srv.Close)

	// a rejected platform token will not heal with backoff
	m := NewPlatformMinter(srv.URL, "org", "notes", "secret", 2*time.Second, logging.Nop())
	_, _, err := m.MintDatabaseToken(context.Background(), "u", time.Minute)
	assert.ErrorIs(t, err, common.ErrUpstreamUnavailable)
	assert.Equal(t, int64(1), hits.Load())
}

func TestPlatformMinter_ExhaustedRetriesSurfaceUpstreamError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	t.Cleanup(srv.Close)

	m := NewPlatformMinter(srv.URL, "org", "notes", "secret", 2*time.Second, logging.Nop())
	_, _, err := m.MintDatabaseToken(context.Background(), "u", time.Minute)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrUpstreamUnavailable)
	// the platform secret never leaks into error text
	assert.False(t, errors.Is(err, common.ErrUnauthenticated))
	assert.NotContains(t, err.Error(), "secret")
}

func TestPlatformMinter_EmptyTokenIsError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"auth_token": "   "})
	}))
	t.Cleanup(srv.Close)

	m := NewPlatformMinter(srv.URL, "org", "notes", "tok", 2*time.Second, logging.Nop())
	_, _, err := m.MintDatabaseToken(context.Background(), "u", time.Minute)
	assert.ErrorIs(t, err, common.ErrUpstreamUnavailable)
}

func TestCompact(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "a b c", compact(" a\n b\t c "))
	assert.Equal(t, "", compact(strings.Repeat(" ", 5)))
}
