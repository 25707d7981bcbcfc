package config

import "time"

// Config holds runtime settings for the cipherbox CLI.
//
// Fields:
//   - ServerEndpointAddr: host:port of the backend gRPC endpoint.
//   - AdminURL: base URL of the server's admin HTTP router.
//   - DownloadDir: where decrypted downloads land; relative to the working directory unless absolute.
//   - IdleTimeout: how long the session key survives without use.
type Config struct {
	ServerEndpointAddr string
	AdminURL           string
	DownloadDir        string
	IdleTimeout        time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.ServerEndpointAddr = "127.0.0.1:50051"
	c.AdminURL = "http://127.0.0.1:8081"
	c.DownloadDir = "downloads"
	c.IdleTimeout = 15 * time.Minute
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
