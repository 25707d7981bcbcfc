package objectstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_PutGetDelete(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "a/b", strings.NewReader("cipher"), 6, BlobContentType))
	assert.True(t, s.Has("a/b"))
	assert.Equal(t, 1, s.Len())

	rc, err := s.Get(ctx, "a/b")
	require.NoError(t, err)
	b, _ := io.ReadAll(rc)
	assert.Equal(t, "cipher", string(b))

	require.NoError(t, s.Delete(ctx, "a/b"))
	assert.False(t, s.Has("a/b"))

	_, err = s.Get(ctx, "a/b")
	assert.ErrorIs(t, err, ErrObjectNotFound)
	assert.ErrorIs(t, s.Delete(ctx, "a/b"), ErrObjectNotFound)
}

func TestMemoryStore_FailureHooks(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	boom := unavailable("delete", "x", errors.New("503"))
	s.FailDelete = func(locator string) error {
		if locator == "x" {
			return boom
		}
		return nil
	}
	s.FailPut = func(string) error { return nil }

	require.NoError(t, s.Put(ctx, "x", bytes.NewReader(nil), 0, BlobContentType))
	require.NoError(t, s.Put(ctx, "y", bytes.NewReader(nil), 0, BlobContentType))

	err := s.Delete(ctx, "x")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.True(t, s.Has("x"))
	assert.NoError(t, s.Delete(ctx, "y"))

	s.FailGet = func(string) error { return boom }
	_, err = s.Get(ctx, "x")
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}
