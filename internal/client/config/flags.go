package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   address and port of the backend server
//	-m string   admin endpoint base URL
//	-d string   download directory
//	-i int      session idle timeout (in seconds)
//
// Note: The function filters os.Args to only include the flags it knows about,
// using flagx.FilterArgs, to avoid interference with other components.
func parseFlags(cfg *Config) {
	// Filter args to include only those handled here.
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-m", "-d", "-i"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&cfg.ServerEndpointAddr, "a", cfg.ServerEndpointAddr, "address and port to access server")
	fs.StringVar(&cfg.AdminURL, "m", cfg.AdminURL, "admin endpoint base URL")
	fs.StringVar(&cfg.DownloadDir, "d", cfg.DownloadDir, "download directory")
	idleTimeout := fs.Int("i", int(cfg.IdleTimeout.Seconds()), "session idle timeout (in seconds)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	cfg.IdleTimeout = time.Duration(*idleTimeout) * time.Second
}
