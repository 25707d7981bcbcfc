// Package cryptox holds the client-side cryptography: key derivation from
// the user secret, the session key lifetime, and AES-256-GCM encryption of
// file content in whole-buffer and chunked form.
package cryptox

import (
	"crypto/sha256"
	"fmt"
	"io"
	"sync"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32

	// KDFIterations is the PBKDF2-HMAC-SHA256 work factor. Changing it
	// makes every existing file undecryptable.
	KDFIterations = 100_000

	// SaltSize is the length of the per-file salt stored with each file.
	SaltSize = 16

	fileKeyInfo = "cipherbox-file-content"
	authKeyInfo = "cipherbox-auth"
)

// SessionKey is the derived master key for one logged-in session. It lives
// only in memory and is wiped on logout or idle timeout.
type SessionKey struct {
	mu  sync.RWMutex
	key []byte
}

// DeriveKey stretches secret into a session key. context is the account
// identifier and acts as the salt, so it must never change for an account.
// An empty secret or an empty context fails with ErrInvalidInput; with no
// salt every account using the same secret would share one key.
func DeriveKey(secret, context string) (*SessionKey, error) {
	if secret == "" {
		return nil, fmt.Errorf("%w: empty secret", common.ErrInvalidInput)
	}
	if context == "" {
		return nil, fmt.Errorf("%w: empty derivation context", common.ErrInvalidInput)
	}
	key := pbkdf2.Key([]byte(secret), []byte(context), KDFIterations, KeySize, sha256.New)
	return &SessionKey{key: key}, nil
}

// ImportSessionKey rebuilds a session key from bytes produced by Export.
func ImportSessionKey(raw []byte) (*SessionKey, error) {
	if len(raw) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrInvalidInput, KeySize, len(raw))
	}
	key := make([]byte, KeySize)
	copy(key, raw)
	return &SessionKey{key: key}, nil
}

// Export returns a copy of the key bytes for re-import within the same session.
func (k *SessionKey) Export() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.key == nil {
		return nil, fmt.Errorf("%w: session key wiped", common.ErrInvalidInput)
	}
	out := make([]byte, len(k.key))
	copy(out, k.key)
	return out, nil
}

// Wipe zeroes the key. Further use fails with ErrInvalidInput.
func (k *SessionKey) Wipe() {
	k.mu.Lock()
	defer k.mu.Unlock()

	common.WipeByteArray(k.key)
	k.key = nil
}

func (k *SessionKey) Wiped() bool {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return k.key == nil
}

// FileKey derives the content key for one file from the session key and
// the file's random salt.
func (k *SessionKey) FileKey(salt []byte) ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.key == nil {
		return nil, fmt.Errorf("%w: session key wiped", common.ErrInvalidInput)
	}
	return DeriveFileKey(k.key, salt)
}

// AuthVerifier derives the value sent to the server at login. The content
// key itself never leaves the client.
func (k *SessionKey) AuthVerifier() ([]byte, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()

	if k.key == nil {
		return nil, fmt.Errorf("%w: session key wiped", common.ErrInvalidInput)
	}
	sub, err := expand(k.key, nil, authKeyInfo)
	if err != nil {
		return nil, err
	}
	sum := sha256.Sum256(sub)
	common.WipeByteArray(sub)
	return sum[:], nil
}

// DeriveFileKey is HKDF-SHA256(master, salt, "cipherbox-file-content").
func DeriveFileKey(master, salt []byte) ([]byte, error) {
	if len(master) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes", common.ErrInvalidInput, KeySize)
	}
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: salt must be %d bytes", common.ErrInvalidInput, SaltSize)
	}
	return expand(master, salt, fileKeyInfo)
}

// NewSalt returns a fresh per-file salt.
func NewSalt() []byte {
	return common.GenerateRandByteArray(SaltSize)
}

func expand(secret, salt []byte, info string) ([]byte, error) {
	out := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, salt, []byte(info)), out); err != nil {
		return nil, fmt.Errorf("hkdf: %w", err)
	}
	return out, nil
}
