package config

import (
	"flag"
	"os"

	"github.com/driftnotes/driftsync/internal/flagx"
)

// parseFlags populates selected broker Config fields from command-line
// flags. Flags override the JSON and environment overlays. Only a handful of
// operationally useful knobs get flags; everything else is env/JSON only.
//
//	-a string   HTTP bind address (e.g. ":8080")
//	-j string   JWKS URL of the identity provider
//	-p string   database platform API URL
//	-d string   database URL handed to clients with minted tokens
//	-b string   public API base URL advertised in the bootstrap manifest
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-j", "-p", "-d", "-b"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.BindAddr, "a", config.BindAddr, "address and port to run broker")
	fs.StringVar(&config.JWKSURL, "j", config.JWKSURL, "identity provider JWKS URL")
	fs.StringVar(&config.PlatformAPIURL, "p", config.PlatformAPIURL, "database platform API URL")
	fs.StringVar(&config.DatabaseURL, "d", config.DatabaseURL, "database URL for minted credentials")
	fs.StringVar(&config.PublicAPIBaseURL, "b", config.PublicAPIBaseURL, "public API base URL")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
