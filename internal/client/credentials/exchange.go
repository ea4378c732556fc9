// Package credentials obtains and caches the short-lived database
// credential the client syncs with. The broker mints it in exchange for
// the caller's identity token.
package credentials

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/driftnotes/driftsync/internal/common"
)

// Credential is a short-lived database access grant.
//
// The token value is redacted from String and slog output.
type Credential struct {
	AuthToken   string
	ExpiresAt   time.Time
	DatabaseURL string
}

func (c Credential) String() string {
	return fmt.Sprintf("Credential{auth_token:[REDACTED], expires_at:%d, database_url:%s}",
		c.ExpiresAt.Unix(), c.DatabaseURL)
}

// LogValue keeps the token out of structured logs even when a credential is
// passed to a logger by accident.
func (c Credential) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("auth_token", "[REDACTED]"),
		slog.Int64("expires_at", c.ExpiresAt.Unix()),
		slog.String("database_url", c.DatabaseURL),
	)
}

// exchangeResponse mirrors the broker's issuing payload. expires_in is the
// relative fallback some deployments send instead of the absolute form.
type exchangeResponse struct {
	AuthToken   string `json:"auth_token"`
	ExpiresAt   int64  `json:"expires_at"`
	ExpiresIn   int64  `json:"expires_in"`
	DatabaseURL string `json:"database_url"`
}

// ExchangeClient posts the identity token to the broker's sync token
// endpoint and parses the credential out of the response.
type ExchangeClient struct {
	endpoint      string
	identityToken string
	client        *http.Client
	now           func() time.Time
}

// NewExchangeClient builds a client for the given sync token endpoint,
// normally taken from the bootstrap manifest.
func NewExchangeClient(endpoint, identityToken string, timeout time.Duration) *ExchangeClient {
	return &ExchangeClient{
		endpoint:      endpoint,
		identityToken: identityToken,
		client:        &http.Client{Timeout: timeout},
		now:           time.Now,
	}
}

// Exchange mints a fresh credential. Broker statuses map onto the error
// taxonomy: 401/403 mean the identity token is no good, 429 carries the
// server's retry delay, anything 5xx is an upstream outage.
func (c *ExchangeClient) Exchange(ctx context.Context) (Credential, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(nil))
	if err != nil {
		return Credential{}, err
	}
	req.Header.Set("Authorization", "Bearer "+c.identityToken)

	resp, err := c.client.Do(req)
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
		// fall through to decode
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Credential{}, common.ErrUnauthenticated
	case resp.StatusCode == http.StatusTooManyRequests:
		return Credential{}, &common.RateLimitedError{RetryAfter: retryAfter(resp)}
	case resp.StatusCode >= 500:
		return Credential{}, fmt.Errorf("%w: broker returned %d", common.ErrUpstreamUnavailable, resp.StatusCode)
	default:
		return Credential{}, fmt.Errorf("unexpected broker status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Credential{}, fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err)
	}

	var payload exchangeResponse
	if err := json.Unmarshal(body, &payload); err != nil {
		return Credential{}, fmt.Errorf("malformed credential response: %w", err)
	}
	if payload.AuthToken == "" || payload.DatabaseURL == "" {
		return Credential{}, fmt.Errorf("%w: credential response missing fields", common.ErrCredentialIssuance)
	}

	expiresAt := time.Unix(payload.ExpiresAt, 0)
	if payload.ExpiresAt == 0 {
		if payload.ExpiresIn == 0 {
			return Credential{}, fmt.Errorf("%w: credential response missing expiry", common.ErrCredentialIssuance)
		}
		expiresAt = c.now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	}

	return Credential{
		AuthToken:   payload.AuthToken,
		ExpiresAt:   expiresAt,
		DatabaseURL: payload.DatabaseURL,
	}, nil
}

func retryAfter(resp *http.Response) time.Duration {
	raw := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if raw == "" {
		return time.Second
	}
	var secs int
	if _, err := fmt.Sscanf(raw, "%d", &secs); err != nil || secs < 1 {
		return time.Second
	}
	return time.Duration(secs) * time.Second
}
