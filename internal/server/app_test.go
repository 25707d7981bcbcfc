package server

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/dmitrijs2005/cipherbox/internal/server/config"
	"github.com/dmitrijs2005/cipherbox/internal/server/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMinioEndpoint(t *testing.T) {
	tests := map[string]string{
		"http://127.0.0.1:9000/":    "127.0.0.1:9000",
		"https://minio.example.com": "minio.example.com",
		"minio:9000":                "minio:9000",
		"storage.internal:9000/":    "storage.internal:9000",
	}
	for in, want := range tests {
		assert.Equal(t, want, minioEndpoint(in), in)
	}
}

func TestNewObjectStore_Memory(t *testing.T) {
	c := &config.Config{}
	c.LoadDefaults()
	c.StorageBackend = "memory"

	st, err := newObjectStore(context.Background(), c)
	require.NoError(t, err)
	assert.IsType(t, &objectstore.MemoryStore{}, st)
}

func TestNewApp_DBFailure(t *testing.T) {
	orig := openPostgres
	t.Cleanup(func() { openPostgres = orig })

	boom := errors.New("connection refused")
	openPostgres = func(ctx context.Context, dsn string) (*sql.DB, error) { return nil, boom }

	c := &config.Config{}
	c.LoadDefaults()
	_, err := NewApp(context.Background(), c)
	assert.ErrorIs(t, err, boom)
}
