package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/driftnotes/driftsync/internal/flagx"
	"github.com/driftnotes/driftsync/internal/timex"
)

// jsonConfig is the DTO for the optional JSON config file. Interval fields
// use timex.Duration so values may be strings ("30s") or nanoseconds.
// Only fields present in the file override the current Config values.
type jsonConfig struct {
	BindAddr              *string         `json:"bind_addr"`
	AuthBaseURL           *string         `json:"auth_base_url"`
	AuthPublicKey         *string         `json:"auth_public_key"`
	JWKSURL               *string         `json:"jwks_url"`
	JWTIssuer             *string         `json:"jwt_issuer"`
	JWTAudience           *string         `json:"jwt_audience"`
	JWKSCacheTTL          *timex.Duration `json:"jwks_cache_ttl"`
	ClockSkew             *timex.Duration `json:"clock_skew"`
	ManifestVersion       *string         `json:"manifest_version"`
	BootstrapCacheMaxAge  *timex.Duration `json:"bootstrap_cache_max_age"`
	PublicAPIBaseURL      *string         `json:"public_api_base_url"`
	PlatformAPIURL        *string         `json:"platform_api_url"`
	PlatformOrg           *string         `json:"platform_org"`
	PlatformDatabase      *string         `json:"platform_database"`
	PlatformAPIToken      *string         `json:"platform_api_token"`
	DatabaseURL           *string         `json:"database_url"`
	SyncTokenTTL          *timex.Duration `json:"sync_token_ttl"`
	S3AccessKeyID         *string         `json:"s3_access_key_id"`
	S3SecretAccessKey     *string         `json:"s3_secret_access_key"`
	S3Bucket              *string         `json:"s3_bucket"`
	S3Region              *string         `json:"s3_region"`
	S3BaseEndpoint        *string         `json:"s3_base_endpoint"`
	MediaURLTTL           *timex.Duration `json:"media_url_ttl"`
	RateLimitWindow       *timex.Duration `json:"rate_limit_window"`
	SyncTokenRateLimit    *int            `json:"sync_token_rate_limit"`
	MediaPresignRateLimit *int            `json:"media_presign_rate_limit"`
	UpstreamTimeout       *timex.Duration `json:"upstream_timeout"`
}

// parseJSON loads configuration values from the JSON file named by the
// -c/-config flags into the provided Config. Missing flag means no file is
// loaded. Invalid files panic: a half-applied config is worse than a crash
// at startup.
func parseJSON(config *Config) {
	path := flagx.JSONConfigFlags()
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	c := &jsonConfig{}
	if err := json.Unmarshal(data, c); err != nil {
		panic(err)
	}

	applyString(&config.BindAddr, c.BindAddr)
	applyString(&config.AuthBaseURL, c.AuthBaseURL)
	applyString(&config.AuthPublicKey, c.AuthPublicKey)
	applyString(&config.JWKSURL, c.JWKSURL)
	applyString(&config.JWTIssuer, c.JWTIssuer)
	applyString(&config.JWTAudience, c.JWTAudience)
	applyDuration(&config.JWKSCacheTTL, c.JWKSCacheTTL)
	applyDuration(&config.ClockSkew, c.ClockSkew)
	applyString(&config.ManifestVersion, c.ManifestVersion)
	applyDuration(&config.BootstrapCacheMaxAge, c.BootstrapCacheMaxAge)
	applyString(&config.PublicAPIBaseURL, c.PublicAPIBaseURL)
	applyString(&config.PlatformAPIURL, c.PlatformAPIURL)
	applyString(&config.PlatformOrg, c.PlatformOrg)
	applyString(&config.PlatformDatabase, c.PlatformDatabase)
	applyString(&config.PlatformAPIToken, c.PlatformAPIToken)
	applyString(&config.DatabaseURL, c.DatabaseURL)
	applyDuration(&config.SyncTokenTTL, c.SyncTokenTTL)
	applyString(&config.S3AccessKeyID, c.S3AccessKeyID)
	applyString(&config.S3SecretAccessKey, c.S3SecretAccessKey)
	applyString(&config.S3Bucket, c.S3Bucket)
	applyString(&config.S3Region, c.S3Region)
	applyString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	applyDuration(&config.MediaURLTTL, c.MediaURLTTL)
	applyDuration(&config.RateLimitWindow, c.RateLimitWindow)
	applyInt(&config.SyncTokenRateLimit, c.SyncTokenRateLimit)
	applyInt(&config.MediaPresignRateLimit, c.MediaPresignRateLimit)
	applyDuration(&config.UpstreamTimeout, c.UpstreamTimeout)
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyInt(dst *int, src *int) {
	if src != nil {
		*dst = *src
	}
}

func applyDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
