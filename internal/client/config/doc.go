// Package config loads runtime configuration for the cipherbox CLI.
//
// Sources & precedence
//
//  1. Built-in defaults (see (*Config).LoadDefaults).
//  2. Optional JSON file (see parseJson) selected via flags: -c or -config.
//  3. Command-line flags (see parseFlags), which override earlier values.
//
// Supported flags
//
//	-a string   address:port of the backend gRPC endpoint
//	-m string   base URL of the admin HTTP endpoint (sweep trigger)
//	-d string   directory downloads are written to
//	-i int      session idle timeout (seconds); the key is dropped after it
//
// # JSON schema
//
// Durations use timex.Duration, so they can be strings like "15m" or
// integer nanoseconds:
//
//	{
//	  "server_endpoint_addr": "127.0.0.1:50051",
//	  "admin_url": "http://127.0.0.1:8081",
//	  "download_dir": "downloads",
//	  "idle_timeout": "15m"
//	}
package config
