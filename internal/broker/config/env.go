package config

import (
	"os"
	"strconv"
	"time"
)

// parseEnv overlays configuration from DRIFTSYNC_* environment variables.
// Durations accept Go duration syntax ("45s", "2m"). Unset or unparsable
// variables leave the current value untouched.
func parseEnv(config *Config) {
	envString(&config.BindAddr, "DRIFTSYNC_BIND_ADDR")
	envString(&config.AuthBaseURL, "DRIFTSYNC_AUTH_BASE_URL")
	envString(&config.AuthPublicKey, "DRIFTSYNC_AUTH_PUBLIC_KEY")
	envString(&config.JWKSURL, "DRIFTSYNC_JWKS_URL")
	envString(&config.JWTIssuer, "DRIFTSYNC_JWT_ISSUER")
	envString(&config.JWTAudience, "DRIFTSYNC_JWT_AUDIENCE")
	envDuration(&config.JWKSCacheTTL, "DRIFTSYNC_JWKS_CACHE_TTL")
	envDuration(&config.ClockSkew, "DRIFTSYNC_CLOCK_SKEW")
	envString(&config.ManifestVersion, "DRIFTSYNC_MANIFEST_VERSION")
	envDuration(&config.BootstrapCacheMaxAge, "DRIFTSYNC_BOOTSTRAP_CACHE_MAX_AGE")
	envString(&config.PublicAPIBaseURL, "DRIFTSYNC_PUBLIC_API_BASE_URL")
	envString(&config.PlatformAPIURL, "DRIFTSYNC_PLATFORM_API_URL")
	envString(&config.PlatformOrg, "DRIFTSYNC_PLATFORM_ORG")
	envString(&config.PlatformDatabase, "DRIFTSYNC_PLATFORM_DATABASE")
	envString(&config.PlatformAPIToken, "DRIFTSYNC_PLATFORM_API_TOKEN")
	envString(&config.DatabaseURL, "DRIFTSYNC_DATABASE_URL")
	envDuration(&config.SyncTokenTTL, "DRIFTSYNC_SYNC_TOKEN_TTL")
	envString(&config.S3AccessKeyID, "DRIFTSYNC_S3_ACCESS_KEY_ID")
	envString(&config.S3SecretAccessKey, "DRIFTSYNC_S3_SECRET_ACCESS_KEY")
	envString(&config.S3Bucket, "DRIFTSYNC_S3_BUCKET")
	envString(&config.S3Region, "DRIFTSYNC_S3_REGION")
	envString(&config.S3BaseEndpoint, "DRIFTSYNC_S3_BASE_ENDPOINT")
	envDuration(&config.MediaURLTTL, "DRIFTSYNC_MEDIA_URL_TTL")
	envDuration(&config.RateLimitWindow, "DRIFTSYNC_RATE_LIMIT_WINDOW")
	envInt(&config.SyncTokenRateLimit, "DRIFTSYNC_SYNC_TOKEN_RATE_LIMIT")
	envInt(&config.MediaPresignRateLimit, "DRIFTSYNC_MEDIA_PRESIGN_RATE_LIMIT")
	envDuration(&config.UpstreamTimeout, "DRIFTSYNC_UPSTREAM_TIMEOUT")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envInt(dst *int, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
