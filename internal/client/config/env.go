package config

import (
	"os"
	"time"
)

// parseEnv overlays configuration from DRIFTSYNC_* environment variables.
// The identity token is env-only: it never appears in files or flags, so it
// cannot leak through shell history or a committed config.
func parseEnv(config *Config) {
	envString(&config.DatabaseDSN, "DRIFTSYNC_DB")
	envString(&config.BrokerBaseURL, "DRIFTSYNC_BROKER_URL")
	envString(&config.IdentityToken, "DRIFTSYNC_IDENTITY_TOKEN")
	envDuration(&config.SyncInterval, "DRIFTSYNC_SYNC_INTERVAL")
	envDuration(&config.CredentialSafetyMargin, "DRIFTSYNC_CREDENTIAL_SAFETY_MARGIN")
	envDuration(&config.HTTPTimeout, "DRIFTSYNC_HTTP_TIMEOUT")
}

func envString(dst *string, key string) {
	if v, ok := os.LookupEnv(key); ok {
		*dst = v
	}
}

func envDuration(dst *time.Duration, key string) {
	if v, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
