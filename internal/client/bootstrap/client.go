// Package bootstrap fetches and caches the broker's bootstrap manifest.
// The client revalidates with the stored fingerprint and keeps the last
// known good manifest when the broker serves something it cannot accept.
package bootstrap

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/driftnotes/driftsync/internal/common"
	"github.com/driftnotes/driftsync/internal/logging"
)

// supportedSchemaVersion is the only manifest layout this client reads.
const supportedSchemaVersion = 1

// Manifest is the client's view of the broker bootstrap document. Unknown
// sibling fields are ignored; schema_version is the compatibility gate.
type Manifest struct {
	SchemaVersion     int    `json:"schema_version"`
	ManifestVersion   string `json:"manifest_version"`
	AuthBaseURL       string `json:"auth_base_url"`
	AuthPublicKey     string `json:"auth_public_key"`
	APIBaseURL        string `json:"api_base_url"`
	SyncTokenEndpoint string `json:"sync_token_endpoint"`
}

// Client fetches the manifest with conditional requests.
type Client struct {
	url    string
	client *http.Client
	logger logging.Logger

	mu   sync.Mutex
	last *Manifest
	etag string
}

// NewClient builds a manifest client for the given broker base URL.
func NewClient(brokerBaseURL string, timeout time.Duration, logger logging.Logger) *Client {
	return &Client{
		url:    strings.TrimSuffix(brokerBaseURL, "/") + "/v1/bootstrap",
		client: &http.Client{Timeout: timeout},
		logger: logger.With("module", "bootstrap"),
	}
}

// Fetch returns the current manifest. A 304 revalidation or a bad response
// returns the held manifest; a bad response with nothing held is an error.
func (c *Client) Fetch(ctx context.Context) (*Manifest, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, err
	}
	if c.etag != "" {
		req.Header.Set("If-None-Match", c.etag)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return c.fallback(ctx, fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && c.last != nil:
		return c.last, nil
	case resp.StatusCode != http.StatusOK:
		return c.fallback(ctx, fmt.Errorf("%w: manifest fetch returned %d", common.ErrUpstreamUnavailable, resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return c.fallback(ctx, fmt.Errorf("%w: %v", common.ErrUpstreamUnavailable, err))
	}

	m, err := parseManifest(body)
	if err != nil {
		return c.fallback(ctx, err)
	}

	c.last = m
	c.etag = resp.Header.Get("ETag")
	c.logger.Debug(ctx, "refreshed bootstrap manifest", "manifest_version", m.ManifestVersion)
	return m, nil
}

// fallback serves the last known good manifest if one is held, otherwise
// the error.
func (c *Client) fallback(ctx context.Context, cause error) (*Manifest, error) {
	if c.last != nil {
		c.logger.Warn(ctx, "manifest refresh failed, using last known good", "error", cause.Error())
		return c.last, nil
	}
	return nil, cause
}

func parseManifest(body []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedManifest, err)
	}
	if m.SchemaVersion != supportedSchemaVersion {
		return nil, fmt.Errorf("%w: unsupported schema_version %d", common.ErrMalformedManifest, m.SchemaVersion)
	}
	if m.APIBaseURL == "" {
		return nil, fmt.Errorf("%w: api_base_url is required", common.ErrMalformedManifest)
	}
	if m.SyncTokenEndpoint == "" {
		// Older manifests omit the explicit field; derive it.
		m.SyncTokenEndpoint = strings.TrimSuffix(m.APIBaseURL, "/") + "/v1/sync/token"
	}
	return &m, nil
}
