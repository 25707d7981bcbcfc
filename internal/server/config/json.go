package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/cipherbox/internal/flagx"
	"github.com/dmitrijs2005/cipherbox/internal/timex"
)

// JsonConfig is the on-disk shape of the JSON config file. Durations use
// timex.Duration so both "30s" strings and integer nanoseconds parse.
// Absent fields leave the current value untouched.
type JsonConfig struct {
	EndpointAddrGRPC             string         `json:"endpoint_addr_grpc"`
	EndpointAddrAdmin            string         `json:"endpoint_addr_admin"`
	DatabaseDSN                  string         `json:"database_dsn"`
	SecretKey                    string         `json:"secret_key"`
	AccessTokenValidityDuration  timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration timex.Duration `json:"refresh_token_validity_duration"`
	StorageBackend               string         `json:"storage_backend"`
	S3RootUser                   string         `json:"s3_root_user"`
	S3RootPassword               string         `json:"s3_root_password"`
	S3Bucket                     string         `json:"s3_bucket"`
	S3Region                     string         `json:"s3_region"`
	S3BaseEndpoint               string         `json:"s3_base_endpoint"`
	MinioUseSSL                  *bool          `json:"minio_use_ssl"`
	CronSecret                   string         `json:"cron_secret"`
	RetentionWindow              timex.Duration `json:"retention_window"`
	SweepInterval                timex.Duration `json:"sweep_interval"`
	SweepConcurrency             int            `json:"sweep_concurrency"`
	LogLevel                     string         `json:"log_level"`
}

// parseJson overlays the JSON file named by -c / -config onto config.
// Without the flag nothing is loaded. An unreadable file or invalid JSON
// panics.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrGRPC, c.EndpointAddrGRPC)
	setString(&config.EndpointAddrAdmin, c.EndpointAddrAdmin)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)
	setString(&config.CronSecret, c.CronSecret)
	setString(&config.LogLevel, c.LogLevel)

	if c.AccessTokenValidityDuration.Duration != 0 {
		config.AccessTokenValidityDuration = c.AccessTokenValidityDuration.Duration
	}
	if c.RefreshTokenValidityDuration.Duration != 0 {
		config.RefreshTokenValidityDuration = c.RefreshTokenValidityDuration.Duration
	}
	if c.RetentionWindow.Duration != 0 {
		config.RetentionWindow = c.RetentionWindow.Duration
	}
	if c.SweepInterval.Duration != 0 {
		config.SweepInterval = c.SweepInterval.Duration
	}
	if c.SweepConcurrency != 0 {
		config.SweepConcurrency = c.SweepConcurrency
	}
	if c.MinioUseSSL != nil {
		config.MinioUseSSL = *c.MinioUseSSL
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
