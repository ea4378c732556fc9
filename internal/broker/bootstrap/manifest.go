// Package bootstrap serves the client bootstrap manifest: the public
// configuration a client needs before it can authenticate. The manifest is
// immutable for the lifetime of the process, so it is rendered and
// fingerprinted once at startup.
package bootstrap

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/driftnotes/driftsync/internal/broker/config"
)

// SchemaVersion is the manifest layout version. Clients refuse manifests
// with a schema version they do not understand.
const SchemaVersion = 1

// FeatureFlags advertises which managed capabilities this deployment offers.
type FeatureFlags struct {
	ManagedSync  bool `json:"managed_sync"`
	ManagedMedia bool `json:"managed_media"`
}

// Manifest carries only public values. Secrets never belong here.
type Manifest struct {
	SchemaVersion     int          `json:"schema_version"`
	ManifestVersion   string       `json:"manifest_version"`
	AuthBaseURL       string       `json:"auth_base_url"`
	AuthPublicKey     string       `json:"auth_public_key"`
	APIBaseURL        string       `json:"api_base_url"`
	SyncTokenEndpoint string       `json:"sync_token_endpoint"`
	Features          FeatureFlags `json:"features"`
}

// Service holds the rendered manifest, its fingerprint and the caching
// policy handed to clients.
type Service struct {
	manifest Manifest
	body     []byte
	etag     string
	maxAge   time.Duration
}

// NewService renders the manifest from configuration. The sync token
// endpoint is derived from the API base URL rather than configured
// separately, so the two can never disagree.
func NewService(cfg *config.Config) (*Service, error) {
	apiBase := strings.TrimSuffix(cfg.PublicAPIBaseURL, "/")
	if apiBase == "" {
		apiBase = "http://" + strings.TrimPrefix(cfg.BindAddr, "http://")
	}

	m := Manifest{
		SchemaVersion:     SchemaVersion,
		ManifestVersion:   cfg.ManifestVersion,
		AuthBaseURL:       cfg.AuthBaseURL,
		AuthPublicKey:     cfg.AuthPublicKey,
		APIBaseURL:        apiBase,
		SyncTokenEndpoint: apiBase + "/v1/sync/token",
		Features: FeatureFlags{
			ManagedSync:  cfg.PlatformAPIURL != "",
			ManagedMedia: cfg.S3Bucket != "",
		},
	}

	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encoding manifest: %w", err)
	}

	sum := sha256.Sum256(body)
	return &Service{
		manifest: m,
		body:     body,
		etag:     fmt.Sprintf(`W/"%x"`, sum[:8]),
		maxAge:   cfg.BootstrapCacheMaxAge,
	}, nil
}

// Manifest returns the rendered manifest value.
func (s *Service) Manifest() Manifest { return s.manifest }

// Body returns the canonical JSON encoding the fingerprint was computed
// over. Handlers must serve these exact bytes or the ETag lies.
func (s *Service) Body() []byte { return s.body }

// ETag returns the weak entity tag for the current manifest.
func (s *Service) ETag() string { return s.etag }

// CacheControl returns the caching policy header value.
func (s *Service) CacheControl() string {
	return fmt.Sprintf("public, max-age=%d, must-revalidate", int(s.maxAge.Seconds()))
}

// NotModified reports whether an If-None-Match header value matches the
// current manifest. Accepts `*` and comma-separated candidate lists.
func (s *Service) NotModified(ifNoneMatch string) bool {
	ifNoneMatch = strings.TrimSpace(ifNoneMatch)
	if ifNoneMatch == "" {
		return false
	}
	if ifNoneMatch == "*" {
		return true
	}
	for _, candidate := range strings.Split(ifNoneMatch, ",") {
		if strings.TrimSpace(candidate) == s.etag {
			return true
		}
	}
	return false
}
