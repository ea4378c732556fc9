package tokens

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

const (
	mintRetryBase     = 250 * time.Millisecond
	mintRetryAttempts = 2
)

// PlatformMinter mints database tokens from the platform's administrative
// API. The platform API token is a server-only secret and is excluded from
// all error messages and logs.
type PlatformMinter struct {
	apiURL   string
	org      string
	database string
	apiToken string
	client   *http.Client
	logger   logging.Logger
}

// NewPlatformMinter builds a minter against the given platform API.
// timeout bounds each mint attempt.
func NewPlatformMinter(apiURL, org, database, apiToken string, timeout time.Duration, logger logging.Logger) *PlatformMinter {
	return &PlatformMinter{
		apiURL:   strings.TrimRight(apiURL, "/"),
		org:      org,
		database: database,
		apiToken: apiToken,
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With("module", "platform_minter"),
	}
}

type mintRequest struct {
	Permissions struct {
		FullAccess bool `json:"full_access"`
	} `json:"permissions"`
	Metadata struct {
		Subject string `json:"subject"`
	} `json:"metadata"`
}

type mintResponse struct {
	AuthToken string `json:"auth_token"`
	Token     string `json:"token"`
	JWT       string `json:"jwt"`
	ExpiresAt int64  `json:"expires_at"`
}

// MintDatabaseToken requests a token bound to the subject's logical
// partition. Transport failures and 5xx responses are retried a bounded
// number of times with backoff; every other failure surfaces immediately.
func (m *PlatformMinter) MintDatabaseToken(ctx context.Context, subject string, ttl time.Duration) (string, int64, error) {
	requestURL := fmt.Sprintf("%s/v1/organizations/%s/databases/%s/credentials?expiration=%ds",
		m.apiURL, m.org, m.database, int64(ttl.Seconds()))

	var body mintRequest
	body.Permissions.FullAccess = true
	body.Metadata.Subject = subject
	payload, err := json.Marshal(body)
	if err != nil {
		return "", 0, err
	}

	var parsed mintResponse
	backoff := retry.WithMaxRetries(mintRetryAttempts, retry.NewExponential(mintRetryBase))
	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, retryable, err := m.mintOnce(ctx, requestURL, payload)
		if err != nil {
			m.logger.Warn(ctx, "platform mint attempt failed", "error", err)
			if retryable {
				return retry.RetryableError(err)
			}
			return err
		}
		parsed = *resp
		return nil
	})
	if err != nil {
		return "", 0, fmt.Errorf("%w: platform token request failed: %v", common.ErrUpstreamUnavailable, err)
	}

	token := firstNonEmpty(parsed.AuthToken, parsed.Token, parsed.JWT)
	if token == "" {
		return "", 0, fmt.Errorf("%w: platform token API returned no token", common.ErrUpstreamUnavailable)
	}
	return token, parsed.ExpiresAt, nil
}

// mintOnce performs one mint attempt. retryable is true only for transport
// failures and 5xx responses; a 4xx (a rejected platform token, a bad org
// or database name) will not change on retry and surfaces immediately.
func (m *PlatformMinter) mintOnce(ctx context.Context, url string, payload []byte) (*mintResponse, bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, false, err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiToken)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 180))
		return nil, resp.StatusCode >= 500, fmt.Errorf("HTTP %d: %s", resp.StatusCode, compact(string(body)))
	}

	var parsed mintResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, true, fmt.Errorf("response parse failed: %w", err)
	}

	parsed.AuthToken = strings.TrimSpace(parsed.AuthToken)
	parsed.Token = strings.TrimSpace(parsed.Token)
	parsed.JWT = strings.TrimSpace(parsed.JWT)
	return &parsed, false, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func compact(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
