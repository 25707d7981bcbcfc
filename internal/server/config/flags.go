package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/flagx"
)

// parseFlags populates server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string     gRPC bind address (e.g., ":50051")
//	-m string     admin HTTP bind address (e.g., ":8081")
//	-d string     PostgreSQL DSN
//	-s string     JWT HMAC secret key
//	-t int        access token validity, minutes
//	-r int        refresh token validity, minutes
//	-o string     storage backend: s3, minio or memory
//	-u string     S3 root user
//	-p string     S3 root password
//	-b string     S3 bucket name
//	-g string     S3 region
//	-e string     S3 base endpoint (e.g., "http://127.0.0.1:9000/")
//	-x string     cron secret for the sweep endpoint
//	-k duration   retention window (e.g., "720h")
//	-i duration   in-process sweep interval, 0 disables
//	-w int        sweep concurrency
//	-l string     log level
//
// os.Args is filtered with flagx.FilterArgs first so -c / -env and other
// components' flags do not trip the parser.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{
		"-a", "-m", "-d", "-s", "-t", "-r", "-o", "-u", "-p", "-b", "-g", "-e", "-x", "-k", "-i", "-w", "-l",
	})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrGRPC, "a", config.EndpointAddrGRPC, "address and port to run server")
	fs.StringVar(&config.EndpointAddrAdmin, "m", config.EndpointAddrAdmin, "address and port of the admin endpoint")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	accessTokenValidityDuration := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access_token_validity_duration (in minutes)")
	refreshTokenValidityDuration := fs.Int("r", int(config.RefreshTokenValidityDuration.Minutes()), "refresh_token_validity_duration (in minutes)")

	fs.StringVar(&config.StorageBackend, "o", config.StorageBackend, "storage backend (s3, minio, memory)")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "p", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Bucket, "b", config.S3Bucket, "S3 root bucket")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 root region")
	fs.StringVar(&config.S3BaseEndpoint, "e", config.S3BaseEndpoint, "S3 base endpoint")
	fs.StringVar(&config.CronSecret, "x", config.CronSecret, "cron secret")
	fs.DurationVar(&config.RetentionWindow, "k", config.RetentionWindow, "retention window for trashed files")
	fs.DurationVar(&config.SweepInterval, "i", config.SweepInterval, "in-process sweep interval (0 disables)")
	fs.IntVar(&config.SweepConcurrency, "w", config.SweepConcurrency, "sweep concurrency")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessTokenValidityDuration) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshTokenValidityDuration) * time.Minute
}
