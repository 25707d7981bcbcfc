package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/flagx"
	"github.com/joho/godotenv"
)

// EnvPrefix prefixes every environment variable the server reads.
const EnvPrefix = "CIPHERBOX_"

type envBinding struct {
	key   string
	apply func(c *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*dst(c) = v
		return nil
	}
}

func dur(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst(c) = d
		return nil
	}
}

var envBindings = []envBinding{
	{"GRPC_ADDR", str(func(c *Config) *string { return &c.EndpointAddrGRPC })},
	{"ADMIN_ADDR", str(func(c *Config) *string { return &c.EndpointAddrAdmin })},
	{"DATABASE_DSN", str(func(c *Config) *string { return &c.DatabaseDSN })},
	{"SECRET_KEY", str(func(c *Config) *string { return &c.SecretKey })},
	{"ACCESS_TOKEN_TTL", dur(func(c *Config) *time.Duration { return &c.AccessTokenValidityDuration })},
	{"REFRESH_TOKEN_TTL", dur(func(c *Config) *time.Duration { return &c.RefreshTokenValidityDuration })},
	{"STORAGE_BACKEND", str(func(c *Config) *string { return &c.StorageBackend })},
	{"S3_USER", str(func(c *Config) *string { return &c.S3RootUser })},
	{"S3_PASSWORD", str(func(c *Config) *string { return &c.S3RootPassword })},
	{"S3_BUCKET", str(func(c *Config) *string { return &c.S3Bucket })},
	{"S3_REGION", str(func(c *Config) *string { return &c.S3Region })},
	{"S3_ENDPOINT", str(func(c *Config) *string { return &c.S3BaseEndpoint })},
	{"MINIO_SSL", func(c *Config, v string) (err error) {
		c.MinioUseSSL, err = strconv.ParseBool(v)
		return err
	}},
	{"CRON_SECRET", str(func(c *Config) *string { return &c.CronSecret })},
	{"RETENTION", dur(func(c *Config) *time.Duration { return &c.RetentionWindow })},
	{"SWEEP_INTERVAL", dur(func(c *Config) *time.Duration { return &c.SweepInterval })},
	{"SWEEP_CONCURRENCY", func(c *Config, v string) (err error) {
		c.SweepConcurrency, err = strconv.Atoi(v)
		return err
	}},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.LogLevel })},
}

// parseEnv loads the dotenv file named by -env (default ".env") into the
// process environment, without overriding variables already set, and then
// applies every CIPHERBOX_* variable to config. A missing dotenv file is
// not an error; a malformed one or an unparsable value panics.
func parseEnv(config *Config) {
	path := flagx.EnvFile(os.Args[1:], ".env")
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		panic(err)
	}

	if err := applyEnv(config, os.LookupEnv); err != nil {
		panic(err)
	}
}

func applyEnv(config *Config, lookup func(string) (string, bool)) error {
	for _, b := range envBindings {
		v, ok := lookup(EnvPrefix + b.key)
		if !ok || v == "" {
			continue
		}
		if err := b.apply(config, v); err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, b.key, err)
		}
	}
	return nil
}
