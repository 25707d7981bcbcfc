package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/cryptox"
	"github.com/dmitrijs2005/cipherbox/internal/logging"
	"github.com/dmitrijs2005/cipherbox/internal/server/metrics"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/dmitrijs2005/cipherbox/internal/server/objectstore"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/repomanager"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// UploadMeta is what the client sends next to the ciphertext. Size is the
// plaintext length; the body must be exactly cryptox.CiphertextSize(Size)
// bytes.
type UploadMeta struct {
	Filename    string `validate:"required,max=255"`
	IV          []byte `validate:"len=12"`
	Salt        []byte `validate:"len=16"`
	ContentHash []byte `validate:"len=32"`
	Size        int64  `validate:"gte=0"`
	MimeType    string `validate:"required,max=255"`
}

// FileService stores and serves encrypted files. It never sees plaintext
// or keys.
type FileService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       objectstore.Store
	audit       Auditor
	logger      logging.Logger
	metrics     *metrics.Registry
	validate    *validator.Validate
	now         func() time.Time
}

func NewFileService(db *sql.DB, m repomanager.RepositoryManager, store objectstore.Store, audit Auditor,
	logger logging.Logger, reg *metrics.Registry) *FileService {
	return &FileService{
		db:          db,
		repomanager: m,
		store:       store,
		audit:       audit,
		logger:      logger.With("module", "files"),
		metrics:     reg,
		validate:    validator.New(),
		now:         time.Now,
	}
}

func blobLocator(owner string, at time.Time) string {
	return fmt.Sprintf("users/%s/%s/%s", owner, at.UTC().Format("2006/01/02"), uuid.NewString())
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Upload writes body to the object store and then records the file as
// active. The record is only created after the whole blob is stored; if
// the insert fails or ctx ends first, the blob is removed again.
func (s *FileService) Upload(ctx context.Context, owner string, meta UploadMeta, body io.Reader) (*models.StoredFile, error) {
	f, err := s.upload(ctx, owner, meta, body)

	s.audit.Record(ctx, models.AuditRecord{
		Owner:    owner,
		Action:   models.ActionUpload,
		Filename: meta.Filename,
		Outcome:  models.OutcomeOf(err),
	})
	if err != nil {
		s.logger.Info(ctx, "upload failed", "owner", owner, "filename", meta.Filename, "error", err)
	}
	return f, err
}

func (s *FileService) upload(ctx context.Context, owner string, meta UploadMeta, body io.Reader) (*models.StoredFile, error) {
	if owner == "" {
		return nil, common.ErrorUnauthorized
	}
	if err := s.validate.Struct(meta); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidInput, err)
	}

	locator := blobLocator(owner, s.now())
	expected := cryptox.CiphertextSize(meta.Size)

	cr := &countingReader{r: body}
	if err := s.store.Put(ctx, locator, cr, expected, objectstore.BlobContentType); err != nil {
		if ctx.Err() != nil {
			s.discard(ctx, locator)
			return nil, ctx.Err()
		}
		return nil, storeErr("put blob", err)
	}
	if cr.n != expected {
		s.discard(ctx, locator)
		return nil, fmt.Errorf("%w: body is %d bytes, expected %d", common.ErrInvalidInput, cr.n, expected)
	}
	if err := ctx.Err(); err != nil {
		s.discard(ctx, locator)
		return nil, err
	}
	s.metrics.RecordUpload(cr.n)

	f := &models.StoredFile{
		Owner:       owner,
		DisplayName: meta.Filename,
		BlobLocator: locator,
		Cipher:      models.CipherParams{IV: meta.IV, Salt: meta.Salt},
		ContentHash: meta.ContentHash,
		Size:        meta.Size,
		MimeType:    meta.MimeType,
	}
	created, err := s.repomanager.Files(s.db).Create(ctx, f)
	if err != nil {
		s.discard(ctx, locator)
		return nil, storeErr("create file", err)
	}
	return created, nil
}

func (s *FileService) discard(ctx context.Context, locator string) {
	if err := s.store.Delete(context.WithoutCancel(ctx), locator); err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
		s.logger.Error(ctx, "orphan blob left behind", "locator", locator, "error", err)
	}
}

// List returns the owner's files in state: active ones newest first,
// trashed ones most recently trashed first.
func (s *FileService) List(ctx context.Context, owner string, state models.LifecycleState) ([]models.StoredFile, error) {
	switch state {
	case models.StateActive, models.StateTrashed:
	default:
		return nil, fmt.Errorf("%w: cannot list %q files", common.ErrInvalidInput, state)
	}
	list, err := s.repomanager.Files(s.db).ListByOwner(ctx, owner, state)
	if err != nil {
		return nil, storeErr("list files", err)
	}
	return list, nil
}

// Open returns an active file's metadata and a reader over its ciphertext.
// view marks a preview rather than a download in the audit trail. The
// caller must close the reader.
func (s *FileService) Open(ctx context.Context, owner, id string, view bool) (*models.StoredFile, io.ReadCloser, error) {
	f, rc, err := s.open(ctx, owner, id)

	action := models.ActionDownload
	if view {
		action = models.ActionView
	}
	name := id
	if f != nil {
		name = f.DisplayName
	}
	s.audit.Record(ctx, models.AuditRecord{
		Owner:    owner,
		Action:   action,
		Filename: name,
		Outcome:  models.OutcomeOf(err),
	})
	return f, rc, err
}

func (s *FileService) open(ctx context.Context, owner, id string) (*models.StoredFile, io.ReadCloser, error) {
	if !validID(id) {
		return nil, nil, common.ErrorNotFound
	}
	repo := s.repomanager.Files(s.db)

	f, err := repo.GetForOwner(ctx, owner, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, nil, err
		}
		return nil, nil, storeErr("get file", err)
	}

	switch f.State {
	case models.StateActive:
	case models.StateTrashed:
		return f, nil, fmt.Errorf("%w: file is %s", common.ErrInvalidState, f.State)
	case models.StatePurged:
		return nil, nil, common.ErrorNotFound
	default:
		return nil, nil, fmt.Errorf("%w: unknown state %q", common.ErrorInternal, f.State)
	}

	rc, err := s.store.Get(ctx, f.BlobLocator)
	if err != nil {
		if errors.Is(err, objectstore.ErrObjectNotFound) {
			s.logger.Error(ctx, "blob missing for active file", "id", f.ID, "locator", f.BlobLocator)
			return f, nil, fmt.Errorf("%w: blob missing", common.ErrorInternal)
		}
		return f, nil, storeErr("get blob", err)
	}

	now := s.now().UTC()
	if err := repo.TouchAccessed(ctx, owner, id, now); err != nil {
		s.logger.Warn(ctx, "touch accessed failed", "id", id, "error", err)
	} else {
		f.LastAccessedAt = now
	}
	return f, rc, nil
}
