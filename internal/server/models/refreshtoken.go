package models

import "time"

// RefreshToken is the opaque long-lived token a client trades for a new
// access token. It is single use: refreshing deletes it.
type RefreshToken struct {
	ID        string
	UserID    string
	Token     string
	Expires   time.Time
	CreatedAt time.Time
}

// Expired reports whether the token can no longer be used at now.
func (t *RefreshToken) Expired(now time.Time) bool {
	return !t.Expires.After(now)
}
