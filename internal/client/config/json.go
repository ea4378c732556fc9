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
// The identity token has no JSON field on purpose: it must not live in a
// config file on disk.
type jsonConfig struct {
	DatabaseDSN            *string         `json:"database_dsn"`
	BrokerBaseURL          *string         `json:"broker_base_url"`
	SyncInterval           *timex.Duration `json:"sync_interval"`
	CredentialSafetyMargin *timex.Duration `json:"credential_safety_margin"`
	HTTPTimeout            *timex.Duration `json:"http_timeout"`
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

	applyString(&config.DatabaseDSN, c.DatabaseDSN)
	applyString(&config.BrokerBaseURL, c.BrokerBaseURL)
	applyDuration(&config.SyncInterval, c.SyncInterval)
	applyDuration(&config.CredentialSafetyMargin, c.CredentialSafetyMargin)
	applyDuration(&config.HTTPTimeout, c.HTTPTimeout)
}

func applyString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func applyDuration(dst *time.Duration, src *timex.Duration) {
	if src != nil {
		*dst = src.Duration
	}
}
