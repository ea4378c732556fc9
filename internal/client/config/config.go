// Package config handles configuration for the sync client.
package config

import "time"

// Config holds runtime settings for the DriftSync client.
//
// IdentityToken is the caller's own bearer token; it is held in memory only
// and never written to logs or the local database.
type Config struct {
	// DatabaseDSN locates the local SQLite file.
	DatabaseDSN string

	// BrokerBaseURL is where the bootstrap manifest is fetched from.
	BrokerBaseURL string

	// IdentityToken authenticates against the broker.
	IdentityToken string

	// SyncInterval is the periodic cycle cadence.
	SyncInterval time.Duration

	// CredentialSafetyMargin refreshes a sync credential this long before
	// its published expiry.
	CredentialSafetyMargin time.Duration

	// HTTPTimeout bounds every broker call.
	HTTPTimeout time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.DatabaseDSN = "driftsync.db"
	c.BrokerBaseURL = "http://127.0.0.1:8080"
	c.SyncInterval = 30 * time.Second
	c.CredentialSafetyMargin = 60 * time.Second
	c.HTTPTimeout = 10 * time.Second
}

// LoadConfig constructs a Config, applies defaults, then overlays values
// from JSON (if present), environment variables and command-line flags.
// Later sources take precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJSON(cfg)
	parseEnv(cfg)
	parseFlags(cfg)
	return cfg
}
