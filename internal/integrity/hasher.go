// Package integrity computes content fingerprints over plaintext.
//
// A fingerprint is SHA-256 of the plaintext bytes. It is fed chunk by chunk
// by the cipher pipeline and must equal the fingerprint of the whole buffer
// no matter where the chunk boundaries fall. Fingerprints drive duplicate
// detection only; they are not a security boundary.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"

	"github.com/dmitrijs2005/cipherbox/internal/common"
)

// Size is the fingerprint length in bytes.
const Size = sha256.Size

type Fingerprint [Size]byte

func (f Fingerprint) String() string {
	return hex.EncodeToString(f[:])
}

func (f Fingerprint) IsZero() bool {
	return f == Fingerprint{}
}

// ParseFingerprint decodes the hex form produced by String.
func ParseFingerprint(s string) (Fingerprint, error) {
	var f Fingerprint
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != Size {
		return f, fmt.Errorf("%w: fingerprint %q", common.ErrInvalidInput, s)
	}
	copy(f[:], b)
	return f, nil
}

// Hasher accumulates a fingerprint incrementally. It is not safe for
// concurrent use; each file pipeline owns its own Hasher.
type Hasher struct {
	h hash.Hash
	n int64
}

func New() *Hasher {
	return &Hasher{h: sha256.New()}
}

// Write never returns an error.
func (h *Hasher) Write(p []byte) (int, error) {
	h.n += int64(len(p))
	return h.h.Write(p)
}

// Len reports how many bytes have been fed so far.
func (h *Hasher) Len() int64 {
	return h.n
}

// Sum finalizes the fingerprint. The Hasher can keep accepting writes.
func (h *Hasher) Sum() Fingerprint {
	var f Fingerprint
	copy(f[:], h.h.Sum(nil))
	return f
}

// Of fingerprints a whole buffer.
func Of(p []byte) Fingerprint {
	return sha256.Sum256(p)
}

// OfChunks fingerprints p by feeding it in chunkSize pieces.
func OfChunks(p []byte, chunkSize int) Fingerprint {
	if chunkSize <= 0 {
		chunkSize = len(p) + 1
	}
	h := New()
	for start := 0; start < len(p); start += chunkSize {
		end := min(start+chunkSize, len(p))
		h.Write(p[start:end])
	}
	return h.Sum()
}

// OfReader fingerprints everything r yields and returns the byte count.
func OfReader(r io.Reader) (Fingerprint, int64, error) {
	h := New()
	if _, err := io.Copy(h, r); err != nil {
		return Fingerprint{}, 0, err
	}
	return h.Sum(), h.Len(), nil
}
