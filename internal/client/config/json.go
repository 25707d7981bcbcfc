package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/flagx"
	"github.com/dmitrijs2005/cipherbox/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. After
// parsing, set values are copied into the runtime Config.
type JsonConfig struct {
	ServerEndpointAddr string         `json:"server_endpoint_addr"`
	AdminURL           string         `json:"admin_url"`
	DownloadDir        string         `json:"download_dir"`
	IdleTimeout        timex.Duration `json:"idle_timeout"`
}

// parseJson overlays Config with values loaded from the JSON file named by
// -c or -config. Fields absent from the file keep their current value.
// Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	// Resolve file path from flags.
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.ServerEndpointAddr != "" {
		cfg.ServerEndpointAddr = jc.ServerEndpointAddr
	}
	if jc.AdminURL != "" {
		cfg.AdminURL = jc.AdminURL
	}
	if jc.DownloadDir != "" {
		cfg.DownloadDir = jc.DownloadDir
	}
	if jc.IdleTimeout.Duration > 0 {
		cfg.IdleTimeout = time.Duration(jc.IdleTimeout.Duration)
	}
}
