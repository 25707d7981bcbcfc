// Package objectstore keeps encrypted blobs in an S3-compatible bucket.
//
// Every backend reports a definitive absence as ErrObjectNotFound and
// everything else (network, auth, 5xx) wrapped in common.ErrStoreUnavailable.
package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/dmitrijs2005/cipherbox/internal/common"
)

var ErrObjectNotFound = errors.New("object not found")

// Store is the blob store used by the file and lifecycle services.
type Store interface {
	Put(ctx context.Context, locator string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, locator string) (io.ReadCloser, error)
	Delete(ctx context.Context, locator string) error
}

// BlobContentType is stored on every object; blobs are ciphertext.
const BlobContentType = "application/octet-stream"

func unavailable(op, locator string, err error) error {
	return fmt.Errorf("%w: %s %s: %v", common.ErrStoreUnavailable, op, locator, err)
}
