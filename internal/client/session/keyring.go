// Package session keeps the logged-in user's session key in memory and
// drops it on logout or after a period of inactivity.
package session

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/cryptox"
)

// Keyring holds at most one session key. Every successful Key call counts
// as activity and restarts the idle timer.
type Keyring struct {
	mu      sync.Mutex
	key     *cryptox.SessionKey
	account string
	idle    time.Duration
	timer   *time.Timer

	onExpire func(account string)
}

// NewKeyring returns an empty keyring. idle <= 0 disables the idle timeout.
// onExpire, if set, runs after an idle release.
func NewKeyring(idle time.Duration, onExpire func(account string)) *Keyring {
	return &Keyring{idle: idle, onExpire: onExpire}
}

// Acquire derives the session key for account and returns the login
// verifier. A previously held key is wiped first.
func (k *Keyring) Acquire(secret, account string) ([]byte, error) {
	key, err := cryptox.DeriveKey(secret, account)
	if err != nil {
		return nil, err
	}
	verifier, err := key.AuthVerifier()
	if err != nil {
		key.Wipe()
		return nil, err
	}

	k.mu.Lock()
	defer k.mu.Unlock()

	k.releaseLocked()
	k.key = key
	k.account = account
	k.touchLocked()
	return verifier, nil
}

// Release wipes the held key. Safe to call when nothing is held.
func (k *Keyring) Release() {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.releaseLocked()
}

// Key returns an independent copy of the session key. The caller wipes it
// after use.
func (k *Keyring) Key() (*cryptox.SessionKey, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.key == nil {
		return nil, common.ErrorUnauthorized
	}
	raw, err := k.key.Export()
	if err != nil {
		return nil, common.ErrorUnauthorized
	}
	defer common.WipeByteArray(raw)

	k.touchLocked()
	return cryptox.ImportSessionKey(raw)
}

// Account is the account the held key belongs to, or "".
func (k *Keyring) Account() string {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.account
}

func (k *Keyring) Active() bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.key != nil
}

func (k *Keyring) releaseLocked() {
	if k.timer != nil {
		k.timer.Stop()
		k.timer = nil
	}
	if k.key != nil {
		k.key.Wipe()
		k.key = nil
	}
	k.account = ""
}

func (k *Keyring) touchLocked() {
	if k.idle <= 0 {
		return
	}
	if k.timer != nil {
		k.timer.Stop()
	}
	held := k.key
	k.timer = time.AfterFunc(k.idle, func() { k.expire(held) })
}

// expire releases held only if it is still the current key, so a timer
// that fires after a re-login does nothing.
func (k *Keyring) expire(held *cryptox.SessionKey) {
	k.mu.Lock()
	if k.key != held || held == nil {
		k.mu.Unlock()
		return
	}
	account := k.account
	k.releaseLocked()
	k.mu.Unlock()

	if k.onExpire != nil {
		k.onExpire(account)
	}
}
