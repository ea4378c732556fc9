// Package config handles configuration for the broker, including defaults,
// JSON overlay, environment variables and command-line flags.
package config

import "time"

// Config holds runtime settings for the DriftSync broker.
//
// PlatformAPIToken, S3AccessKeyID and S3SecretAccessKey are server-only
// secrets: they must never appear in a response body or a log line.
type Config struct {
	BindAddr string

	// Identity provider (tokens verified, never issued here).
	AuthBaseURL   string
	AuthPublicKey string
	JWKSURL       string
	JWTIssuer     string
	JWTAudience   string
	JWKSCacheTTL  time.Duration
	ClockSkew     time.Duration

	// Bootstrap manifest.
	ManifestVersion      string
	BootstrapCacheMaxAge time.Duration
	PublicAPIBaseURL     string

	// Database platform (sync credential minting).
	PlatformAPIURL   string
	PlatformOrg      string
	PlatformDatabase string
	PlatformAPIToken string
	DatabaseURL      string
	SyncTokenTTL     time.Duration

	// Object storage (media presigning).
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Bucket          string
	S3Region          string
	S3BaseEndpoint    string
	MediaURLTTL       time.Duration

	// Rate limiting, independent caps per endpoint class.
	RateLimitWindow       time.Duration
	SyncTokenRateLimit    int
	MediaPresignRateLimit int

	// Upper bound for any single upstream call.
	UpstreamTimeout time.Duration
}

// LoadDefaults populates Config with development defaults.
// NOTE: these values are insecure for production and should be overridden.
func (c *Config) LoadDefaults() {
	c.BindAddr = ":8080"
	c.AuthBaseURL = "http://127.0.0.1:9999"
	c.AuthPublicKey = "public-anon"
	c.JWKSURL = "http://127.0.0.1:9999/.well-known/jwks.json"
	c.JWTIssuer = "http://127.0.0.1:9999"
	c.JWTAudience = "authenticated"
	c.JWKSCacheTTL = 5 * time.Minute
	c.ClockSkew = 60 * time.Second
	c.ManifestVersion = "v1"
	c.BootstrapCacheMaxAge = 5 * time.Minute
	c.PublicAPIBaseURL = ""
	c.PlatformAPIURL = "http://127.0.0.1:9898"
	c.PlatformOrg = "dev"
	c.PlatformDatabase = "notes"
	c.PlatformAPIToken = "platform-token"
	c.DatabaseURL = "postgres://127.0.0.1:5432/notes?sslmode=disable"
	c.SyncTokenTTL = 15 * time.Minute
	c.S3AccessKeyID = "admin"
	c.S3SecretAccessKey = "secretpassword"
	c.S3Bucket = "media"
	c.S3Region = "us-east-1"
	c.S3BaseEndpoint = "http://127.0.0.1:9000/"
	c.MediaURLTTL = 10 * time.Minute
	c.RateLimitWindow = 60 * time.Second
	c.SyncTokenRateLimit = 20
	c.MediaPresignRateLimit = 120
	c.UpstreamTimeout = 10 * time.Second
}

// LoadConfig builds a Config by applying defaults, then overlaying values
// from an optional JSON file, environment variables and finally
// command-line flags.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
