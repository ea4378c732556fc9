package bootstrap

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/driftnotes/driftsync/internal/broker/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.LoadDefaults()
	cfg.PublicAPIBaseURL = "https://api.driftnotes.example"
	cfg.BootstrapCacheMaxAge = 5 * time.Minute
	return cfg
}

func TestNewService_ManifestContent(t *testing.T) {
	svc, err := NewService(testConfig())
	require.NoError(t, err)

	m := svc.Manifest()
	assert.Equal(t, 1, m.SchemaVersion)
	assert.Equal(t, "https://api.driftnotes.example", m.APIBaseURL)
	assert.Equal(t, "https://api.driftnotes.example/v1/sync/token", m.SyncTokenEndpoint)
	assert.True(t, m.Features.ManagedSync)
	assert.True(t, m.Features.ManagedMedia)
}

func TestNewService_NoSecretsInBody(t *testing.T) {
	cfg := testConfig()
	cfg.PlatformAPIToken = "super-secret-platform-token"
	cfg.S3SecretAccessKey = "super-secret-s3-key"

	svc, err := NewService(cfg)
	require.NoError(t, err)

	body := string(svc.Body())
	assert.NotContains(t, body, "super-secret-platform-token")
	assert.NotContains(t, body, "super-secret-s3-key")
}

func TestNewService_APIBaseFallsBackToBindAddr(t *testing.T) {
	cfg := testConfig()
	cfg.PublicAPIBaseURL = ""
	cfg.BindAddr = "127.0.0.1:8080"

	svc, err := NewService(cfg)
	require.NoError(t, err)

	m := svc.Manifest()
	assert.Equal(t, "http://127.0.0.1:8080", m.APIBaseURL)
	assert.Equal(t, "http://127.0.0.1:8080/v1/sync/token", m.SyncTokenEndpoint)
}

func TestNewService_TrailingSlashTrimmed(t *testing.T) {
	cfg := testConfig()
	cfg.PublicAPIBaseURL = "https://api.driftnotes.example/"

	svc, err := NewService(cfg)
	require.NoError(t, err)
	assert.Equal(t, "https://api.driftnotes.example/v1/sync/token", svc.Manifest().SyncTokenEndpoint)
}

func TestETag_StableAndWeak(t *testing.T) {
	a, err := NewService(testConfig())
	require.NoError(t, err)
	b, err := NewService(testConfig())
	require.NoError(t, err)

	assert.Equal(t, a.ETag(), b.ETag())
	assert.True(t, strings.HasPrefix(a.ETag(), `W/"`))
	assert.True(t, strings.HasSuffix(a.ETag(), `"`))
}

func TestETag_ChangesWithContent(t *testing.T) {
	a, err := NewService(testConfig())
	require.NoError(t, err)

	cfg := testConfig()
	cfg.ManifestVersion = "v2"
	b, err := NewService(cfg)
	require.NoError(t, err)

	assert.NotEqual(t, a.ETag(), b.ETag())
}

func TestNotModified(t *testing.T) {
	svc, err := NewService(testConfig())
	require.NoError(t, err)

	tests := []struct {
		name        string
		ifNoneMatch string
		want        bool
	}{
		{"empty", "", false},
		{"wildcard", "*", true},
		{"exact", svc.ETag(), true},
		{"in list", `W/"other", ` + svc.ETag(), true},
		{"mismatch", `W/"deadbeefdeadbeef"`, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.NotModified(tt.ifNoneMatch))
		})
	}
}

func TestCacheControl(t *testing.T) {
	svc, err := NewService(testConfig())
	require.NoError(t, err)
	assert.Equal(t, "public, max-age=300, must-revalidate", svc.CacheControl())
}

func TestBody_IsCanonicalJSON(t *testing.T) {
	svc, err := NewService(testConfig())
	require.NoError(t, err)

	var m Manifest
	require.NoError(t, json.Unmarshal(svc.Body(), &m))
	assert.Equal(t, svc.Manifest(), m)
}
