package models

import "time"

// User is an account. Verifier is derived client-side from the session key;
// the server never sees the key itself.
type User struct {
	ID        string
	UserName  string
	Verifier  []byte
	CreatedAt time.Time
}
