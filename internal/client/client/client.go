package client

import (
	"context"
	"io"

	"github.com/dmitrijs2005/cipherbox/internal/api"
)

type Client interface {
	Close() error
	Register(ctx context.Context, username string, verifier []byte) error
	Login(ctx context.Context, username string, verifier []byte) error
	Logout()
	Ping(ctx context.Context) error

	ListFiles(ctx context.Context, state string) ([]api.FileInfo, error)
	Trash(ctx context.Context, id string) (*api.FileInfo, error)
	Restore(ctx context.Context, id string) (*api.FileInfo, error)
	Purge(ctx context.Context, id string) error
	Duplicates(ctx context.Context) (*api.DuplicatesResponse, error)
	Stats(ctx context.Context) (*api.StatsResponse, error)
	AuditLog(ctx context.Context, req api.AuditLogRequest) (*api.AuditLogResponse, error)

	// Upload streams body as the ciphertext of the file described by h.
	// A read error from body aborts the stream so the server keeps nothing.
	Upload(ctx context.Context, h api.FileHeader, body io.Reader) (*api.FileInfo, error)
	// Download opens a file's ciphertext. The caller must close the reader.
	Download(ctx context.Context, id string, view bool) (api.FileHeader, io.ReadCloser, error)
}
