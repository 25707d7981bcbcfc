// Package common defines shared constants and sentinel errors used across
// client and server layers of cipherbox. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Input that can never succeed (empty secret, malformed key length, bad metadata).
	ErrInvalidInput = errors.New("invalid input")

	// AEAD tag mismatch: wrong key, wrong IV or tampered ciphertext. Never retried.
	ErrAuthenticationFailure = errors.New("authentication failure")

	// Lifecycle transition requested from a state that does not allow it.
	ErrInvalidState = errors.New("invalid state")

	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Object store failed or was unreachable; the operation may be retried.
	ErrStoreUnavailable = errors.New("store unavailable")

	// Blob removed but the metadata row was not; a later purge or sweep finishes it.
	ErrPartialPurge = errors.New("partial purge")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")

	// Token lifecycle errors.
	ErrTokenExpired        = errors.New("token expired")
	ErrRefreshTokenExpired = errors.New("refresh token expired")
)
