package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"github.com/dmitrijs2005/cipherbox/internal/common"
)

// IVSize is the AES-GCM nonce length.
const IVSize = 12

// Encrypt seals plaintext under key with a freshly generated IV. There is
// no way to pass an IV in: reusing one under the same key breaks GCM.
func Encrypt(plaintext, key []byte) (ciphertext, iv []byte, err error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, nil, err
	}

	iv = common.GenerateRandByteArray(IVSize)
	ciphertext = aead.Seal(nil, iv, plaintext, nil)

	return ciphertext, iv, nil
}

// Decrypt opens ciphertext produced by Encrypt. Any tag mismatch (wrong
// key, wrong IV, modified bytes) is reported as ErrAuthenticationFailure.
func Decrypt(ciphertext, key, iv []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}
	if len(iv) != IVSize {
		return nil, fmt.Errorf("%w: iv must be %d bytes", common.ErrAuthenticationFailure, IVSize)
	}

	plaintext, err := aead.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, common.ErrAuthenticationFailure
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: key must be %d bytes, got %d", common.ErrInvalidInput, KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}
	return cipher.NewGCM(block)
}
