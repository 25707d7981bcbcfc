package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dmitrijs2005/cipherbox/internal/api"
	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/cryptox"
	"github.com/dmitrijs2005/cipherbox/internal/integrity"
	"github.com/gabriel-vasile/mimetype"
)

// ErrFileChanged means the file read during encryption differs from the
// one that was hashed, so the upload was abandoned.
var ErrFileChanged = errors.New("file changed during upload")

type FileUploader interface {
	Upload(ctx context.Context, h api.FileHeader, body io.Reader) (*api.FileInfo, error)
}

type FileDownloader interface {
	Download(ctx context.Context, id string, view bool) (api.FileHeader, io.ReadCloser, error)
}

// KeySource hands out a copy of the session key; callers wipe it.
type KeySource interface {
	Key() (*cryptox.SessionKey, error)
}

type Uploader struct {
	client FileUploader
	keys   KeySource
}

func NewUploader(c FileUploader, keys KeySource) *Uploader {
	return &Uploader{client: c, keys: keys}
}

// Upload encrypts the file at path under a fresh per-file key and streams
// it to the server. The file is read twice: once for the fingerprint and
// size that travel in the headers, once for encryption.
func (u *Uploader) Upload(ctx context.Context, path string, progress cryptox.ProgressFunc) (*api.FileInfo, error) {
	key, err := u.keys.Key()
	if err != nil {
		return nil, err
	}
	defer key.Wipe()

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if st.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", common.ErrInvalidInput, path)
	}

	mimeType := "application/octet-stream"
	if mt, err := mimetype.DetectReader(f); err == nil {
		mimeType = mt.String()
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	fp, size, err := integrity.OfReader(f)
	if err != nil {
		return nil, fmt.Errorf("hash %s: %w", path, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	salt := cryptox.NewSalt()
	fileKey, err := key.FileKey(salt)
	if err != nil {
		return nil, err
	}
	defer common.WipeByteArray(fileKey)

	h := api.FileHeader{
		Filename:    filepath.Base(path),
		MimeType:    mimeType,
		IV:          cryptox.NewIV(),
		Salt:        salt,
		ContentHash: fp[:],
		Size:        size,
	}

	pr, pw := io.Pipe()
	done := make(chan error, 1)
	go func() {
		sealed, err := cryptox.SealStream(ctx, f, pw, fileKey, h.IV, size, progress)
		if err == nil && sealed != fp {
			err = ErrFileChanged
		}
		// nil closes the pipe with io.EOF, which lets the stream complete
		pw.CloseWithError(err)
		done <- err
	}()

	info, upErr := u.client.Upload(ctx, h, pr)
	pr.Close()
	sealErr := <-done

	if upErr != nil {
		if sealErr != nil && !errors.Is(sealErr, io.ErrClosedPipe) {
			return nil, sealErr
		}
		return nil, upErr
	}
	return info, nil
}
