package common

import "time"

// AccessTokenHeaderName is the gRPC/HTTP metadata key used to carry the
// access token on outbound requests.
const AccessTokenHeaderName = "access_token"

// CronSecretHeaderName authorizes calls to the privileged sweep endpoint.
const CronSecretHeaderName = "x-cron-secret"

const (
	// ChunkSize is the plaintext block size of the chunked cipher pipeline.
	ChunkSize = 5 * 1024 * 1024

	// RetentionWindow is how long a trashed file is kept before the sweep purges it.
	RetentionWindow = 30 * 24 * time.Hour

	// LargeFileThreshold marks files reported by the large-files view.
	LargeFileThreshold = 10 * 1024 * 1024

	// ColdAfter is the inactivity period after which a file is considered cold.
	ColdAfter = 90 * 24 * time.Hour
)
