// Package client talks to the cipherbox FileVault service.
//
// GRPCClient manages the connection, injects the access token into every
// call, refreshes an expired token once (unary calls) or ahead of time
// (streams, whose bodies cannot be replayed), and maps gRPC status codes
// back to the sentinel errors of internal/common so callers can match them
// with errors.Is.
package client
