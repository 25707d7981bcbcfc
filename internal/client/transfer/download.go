package transfer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/dmitrijs2005/cipherbox/internal/api"
	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/cryptox"
	"github.com/dmitrijs2005/cipherbox/internal/filex"
)

// MaxPreviewSize bounds how much plaintext Preview buffers in memory.
const MaxPreviewSize = 1 << 20

type Downloader struct {
	client FileDownloader
	keys   KeySource
	dir    string
}

func NewDownloader(c FileDownloader, keys KeySource, dir string) *Downloader {
	return &Downloader{client: c, keys: keys, dir: dir}
}

// Download decrypts file id into the download directory and returns the
// final path. Plaintext goes to a temp file first and is renamed only
// after every chunk authenticated and the fingerprint matched.
func (d *Downloader) Download(ctx context.Context, id string, progress cryptox.ProgressFunc) (string, error) {
	dir, err := filex.EnsureSubdDir(d.dir)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(dir, ".cipherbox-*.part")
	if err != nil {
		return "", err
	}

	h, err := d.fetch(ctx, id, false, tmp, progress)
	closeErr := tmp.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}

	dest, err := filex.UniquePath(dir, filex.SafeName(h.Filename))
	if err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	if err := os.Rename(tmp.Name(), dest); err != nil {
		os.Remove(tmp.Name())
		return "", err
	}
	return dest, nil
}

// Preview decrypts a small file in memory and writes it to w once it
// verified. The server records a view rather than a download.
func (d *Downloader) Preview(ctx context.Context, id string, w io.Writer) (api.FileHeader, error) {
	var buf bytes.Buffer
	h, err := d.fetch(ctx, id, true, &limitedWriter{w: &buf, n: MaxPreviewSize}, nil)
	if err != nil {
		return h, err
	}
	_, err = buf.WriteTo(w)
	return h, err
}

func (d *Downloader) fetch(ctx context.Context, id string, view bool, w io.Writer, progress cryptox.ProgressFunc) (api.FileHeader, error) {
	key, err := d.keys.Key()
	if err != nil {
		return api.FileHeader{}, err
	}
	defer key.Wipe()

	h, body, err := d.client.Download(ctx, id, view)
	if err != nil {
		return h, err
	}
	defer body.Close()

	if view && h.Size > MaxPreviewSize {
		return h, fmt.Errorf("%w: %d bytes is too large to preview", common.ErrInvalidInput, h.Size)
	}

	fileKey, err := key.FileKey(h.Salt)
	if err != nil {
		return h, fmt.Errorf("%w: %v", common.ErrAuthenticationFailure, err)
	}
	defer common.WipeByteArray(fileKey)

	fp, err := cryptox.DecryptStream(ctx, body, w, fileKey, h.IV, h.Size, progress)
	if err != nil {
		return h, err
	}
	if !bytes.Equal(fp[:], h.ContentHash) {
		return h, fmt.Errorf("%w: content hash mismatch", common.ErrAuthenticationFailure)
	}
	return h, nil
}

type limitedWriter struct {
	w io.Writer
	n int64
}

func (l *limitedWriter) Write(p []byte) (int, error) {
	if int64(len(p)) > l.n {
		return 0, fmt.Errorf("%w: preview limit exceeded", common.ErrInvalidInput)
	}
	l.n -= int64(len(p))
	return l.w.Write(p)
}
