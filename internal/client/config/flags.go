package config

import (
	"flag"
	"os"

	"github.com/driftnotes/driftsync/internal/flagx"
)

// parseFlags populates selected client Config fields from command-line
// flags. Flags override the JSON and environment overlays.
//
//	-f string   local database file
//	-u string   broker base URL
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-f", "-u"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.DatabaseDSN, "f", config.DatabaseDSN, "local database file")
	fs.StringVar(&config.BrokerBaseURL, "u", config.BrokerBaseURL, "broker base URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
