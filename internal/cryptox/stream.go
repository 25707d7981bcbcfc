package cryptox

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/integrity"
)

// Chunked format
//
// The plaintext is cut into common.ChunkSize blocks. Block i is sealed with
// nonce = iv XOR bigEndian64(i) (in the last 8 bytes) and additional data
// = bigEndian64(i) || final, where final is 1 only for the last block. Each
// sealed block is written as a 4-byte big-endian length followed by the
// sealed bytes. Empty input still produces one (empty, final) block.
//
// Binding the index and the final flag into every block makes reordered,
// replayed, truncated or extended streams fail authentication.

const (
	frameHeaderSize = 4
	tagSize         = 16
)

// ProgressFunc receives a percentage in [0, 100]. Calls are monotonic.
type ProgressFunc func(percent int)

// EncryptStream encrypts r into w in chunks under a fresh IV. size is the
// expected plaintext length and only drives progress reporting. The
// returned fingerprint covers the plaintext exactly as read.
func EncryptStream(ctx context.Context, r io.Reader, w io.Writer, key []byte, size int64, progress ProgressFunc) ([]byte, integrity.Fingerprint, error) {
	return encryptStream(ctx, r, w, key, size, common.ChunkSize, progress)
}

// SealStream is EncryptStream under a caller-chosen IV, for transports
// that must announce the IV before the first ciphertext byte. iv must come
// from NewIV and never be reused with the same key.
func SealStream(ctx context.Context, r io.Reader, w io.Writer, key, iv []byte, size int64, progress ProgressFunc) (integrity.Fingerprint, error) {
	return sealStream(ctx, r, w, key, iv, size, common.ChunkSize, progress)
}

// NewIV returns a fresh random IV.
func NewIV() []byte {
	return common.GenerateRandByteArray(IVSize)
}

// DecryptStream reverses EncryptStream and returns the plaintext fingerprint.
// Plaintext of a block is written to w only after that block authenticates,
// but earlier blocks may already have been written when a later one fails.
func DecryptStream(ctx context.Context, r io.Reader, w io.Writer, key, iv []byte, size int64, progress ProgressFunc) (integrity.Fingerprint, error) {
	return decryptStream(ctx, r, w, key, iv, size, common.ChunkSize, progress)
}

// EncryptChunked is EncryptStream over an in-memory buffer.
func EncryptChunked(plaintext, key []byte) (ciphertext, iv []byte, err error) {
	var buf bytes.Buffer
	iv, _, err = EncryptStream(context.Background(), bytes.NewReader(plaintext), &buf, key, int64(len(plaintext)), nil)
	if err != nil {
		return nil, nil, err
	}
	return buf.Bytes(), iv, nil
}

// DecryptChunked is DecryptStream over an in-memory buffer.
func DecryptChunked(ciphertext, key, iv []byte) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := DecryptStream(context.Background(), bytes.NewReader(ciphertext), &buf, key, iv, 0, nil); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// CiphertextSize is the length EncryptStream produces for n plaintext bytes.
func CiphertextSize(n int64) int64 {
	return ciphertextSize(n, common.ChunkSize)
}

func ciphertextSize(n int64, chunkSize int) int64 {
	frames := (n + int64(chunkSize) - 1) / int64(chunkSize)
	if frames == 0 {
		frames = 1
	}
	return n + frames*(frameHeaderSize+tagSize)
}

func encryptStream(ctx context.Context, r io.Reader, w io.Writer, key []byte, size int64, chunkSize int, progress ProgressFunc) ([]byte, integrity.Fingerprint, error) {
	iv := NewIV()
	fp, err := sealStream(ctx, r, w, key, iv, size, chunkSize, progress)
	if err != nil {
		return nil, integrity.Fingerprint{}, err
	}
	return iv, fp, nil
}

func sealStream(ctx context.Context, r io.Reader, w io.Writer, key, iv []byte, size int64, chunkSize int, progress ProgressFunc) (integrity.Fingerprint, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return integrity.Fingerprint{}, err
	}
	if len(iv) != IVSize {
		return integrity.Fingerprint{}, fmt.Errorf("%w: iv must be %d bytes", common.ErrInvalidInput, IVSize)
	}

	hasher := integrity.New()
	br := bufio.NewReader(r)
	buf := make([]byte, chunkSize)
	sealed := make([]byte, 0, chunkSize+tagSize)
	header := make([]byte, frameHeaderSize)
	report := newReporter(size, progress)

	for index := uint64(0); ; index++ {
		if err := ctx.Err(); err != nil {
			return integrity.Fingerprint{}, err
		}

		n, err := io.ReadFull(br, buf)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return integrity.Fingerprint{}, fmt.Errorf("read plaintext: %w", err)
		}
		final := n < chunkSize
		if !final {
			_, peekErr := br.Peek(1)
			switch {
			case errors.Is(peekErr, io.EOF):
				final = true
			case peekErr != nil:
				return integrity.Fingerprint{}, fmt.Errorf("read plaintext: %w", peekErr)
			}
		}

		block := buf[:n]
		hasher.Write(block)

		sealed = aead.Seal(sealed[:0], chunkNonce(iv, index), block, chunkAAD(index, final))
		binary.BigEndian.PutUint32(header, uint32(len(sealed)))
		if _, err := w.Write(header); err != nil {
			return integrity.Fingerprint{}, fmt.Errorf("write ciphertext: %w", err)
		}
		if _, err := w.Write(sealed); err != nil {
			return integrity.Fingerprint{}, fmt.Errorf("write ciphertext: %w", err)
		}

		report.add(n)
		if final {
			break
		}
	}

	report.done()
	return hasher.Sum(), nil
}

func decryptStream(ctx context.Context, r io.Reader, w io.Writer, key, iv []byte, size int64, chunkSize int, progress ProgressFunc) (integrity.Fingerprint, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return integrity.Fingerprint{}, err
	}
	if len(iv) != IVSize {
		return integrity.Fingerprint{}, fmt.Errorf("%w: iv must be %d bytes", common.ErrAuthenticationFailure, IVSize)
	}

	hasher := integrity.New()
	br := bufio.NewReader(r)
	header := make([]byte, frameHeaderSize)
	sealed := make([]byte, chunkSize+tagSize)
	plain := make([]byte, 0, chunkSize)
	report := newReporter(size, progress)

	for index := uint64(0); ; index++ {
		if err := ctx.Err(); err != nil {
			return integrity.Fingerprint{}, err
		}

		if _, err := io.ReadFull(br, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return integrity.Fingerprint{}, fmt.Errorf("%w: stream truncated", common.ErrAuthenticationFailure)
			}
			return integrity.Fingerprint{}, fmt.Errorf("read ciphertext: %w", err)
		}
		frameLen := int(binary.BigEndian.Uint32(header))
		if frameLen < tagSize || frameLen > chunkSize+tagSize {
			return integrity.Fingerprint{}, fmt.Errorf("%w: bad frame length %d", common.ErrAuthenticationFailure, frameLen)
		}
		if _, err := io.ReadFull(br, sealed[:frameLen]); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return integrity.Fingerprint{}, fmt.Errorf("%w: stream truncated", common.ErrAuthenticationFailure)
			}
			return integrity.Fingerprint{}, fmt.Errorf("read ciphertext: %w", err)
		}

		_, peekErr := br.Peek(1)
		final := errors.Is(peekErr, io.EOF)
		if peekErr != nil && !final {
			return integrity.Fingerprint{}, fmt.Errorf("read ciphertext: %w", peekErr)
		}

		plain, err = aead.Open(plain[:0], chunkNonce(iv, index), sealed[:frameLen], chunkAAD(index, final))
		if err != nil {
			return integrity.Fingerprint{}, common.ErrAuthenticationFailure
		}

		hasher.Write(plain)
		if _, err := w.Write(plain); err != nil {
			return integrity.Fingerprint{}, fmt.Errorf("write plaintext: %w", err)
		}

		report.add(len(plain))
		if final {
			break
		}
	}

	report.done()
	return hasher.Sum(), nil
}

func chunkNonce(iv []byte, index uint64) []byte {
	nonce := make([]byte, IVSize)
	copy(nonce, iv)
	var ctr [8]byte
	binary.BigEndian.PutUint64(ctr[:], index)
	for i := 0; i < 8; i++ {
		nonce[IVSize-8+i] ^= ctr[i]
	}
	return nonce
}

func chunkAAD(index uint64, final bool) []byte {
	aad := make([]byte, 9)
	binary.BigEndian.PutUint64(aad, index)
	if final {
		aad[8] = 1
	}
	return aad
}

type reporter struct {
	total int64
	seen  int64
	last  int
	fn    ProgressFunc
}

func newReporter(total int64, fn ProgressFunc) *reporter {
	return &reporter{total: total, last: -1, fn: fn}
}

func (p *reporter) add(n int) {
	p.seen += int64(n)
	if p.total <= 0 {
		return
	}
	p.emit(int(min(p.seen*100/p.total, 100)))
}

func (p *reporter) done() {
	p.emit(100)
}

func (p *reporter) emit(pct int) {
	if p.fn == nil || pct <= p.last {
		return
	}
	p.last = pct
	p.fn(pct)
}
