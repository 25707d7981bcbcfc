package files

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/dbx"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
)

const fileColumns = `id, owner_id, display_name, blob_locator, iv, salt, content_hash, size, mimetype, state, uploaded_at, last_accessed_at, trashed_at`

// PostgresRepository implements Repository over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

// NewPostgresRepository constructs a repository bound to the given DBTX.
func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Create inserts an active file and fills in the generated id and timestamps.
func (r *PostgresRepository) Create(ctx context.Context, f *models.StoredFile) (*models.StoredFile, error) {
	query := `
		INSERT INTO files (owner_id, display_name, blob_locator, iv, salt, content_hash, size, mimetype, state)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, uploaded_at, last_accessed_at
	`
	err := r.db.QueryRowContext(ctx, query,
		f.Owner, f.DisplayName, f.BlobLocator, f.Cipher.IV, f.Cipher.Salt, f.ContentHash, f.Size, f.MimeType, models.StateActive,
	).Scan(&f.ID, &f.UploadedAt, &f.LastAccessedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	f.State = models.StateActive
	f.TrashedAt = nil
	return f, nil
}

func (r *PostgresRepository) GetForOwner(ctx context.Context, owner, id string) (*models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE id = $1 AND owner_id = $2`

	f, err := scanFile(r.db.QueryRowContext(ctx, query, id, owner))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return f, nil
}

// ListByOwner returns files in state; active files newest upload first,
// trashed files most recently trashed first.
func (r *PostgresRepository) ListByOwner(ctx context.Context, owner string, state models.LifecycleState) ([]models.StoredFile, error) {
	order := "uploaded_at DESC"
	if state == models.StateTrashed {
		order = "trashed_at DESC"
	}
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 AND state = $2 ORDER BY ` + order
	return r.list(ctx, query, owner, state)
}

func (r *PostgresRepository) ListNonPurged(ctx context.Context, owner string) ([]models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 AND state <> $2 ORDER BY uploaded_at, id`
	return r.list(ctx, query, owner, models.StatePurged)
}

// Transition moves the row from -> to and sets trashed_at, but only if the
// row is owned by owner and still in from.
func (r *PostgresRepository) Transition(ctx context.Context, owner, id string, from, to models.LifecycleState, trashedAt *time.Time) (bool, error) {
	query := `
		UPDATE files SET state = $1, trashed_at = $2
		WHERE id = $3 AND owner_id = $4 AND state = $5
	`
	n, err := dbx.ExecAffected(ctx, r.db, query, to, nullTime(trashedAt), id, owner, from)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

// Delete removes the row only while it is still in state.
func (r *PostgresRepository) Delete(ctx context.Context, id string, state models.LifecycleState) (bool, error) {
	query := `DELETE FROM files WHERE id = $1 AND state = $2`
	n, err := dbx.ExecAffected(ctx, r.db, query, id, state)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) SelectExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE state = $1 AND trashed_at <= $2 ORDER BY trashed_at LIMIT $3`
	return r.list(ctx, query, models.StateTrashed, cutoff, limit)
}

func (r *PostgresRepository) SelectPurged(ctx context.Context, limit int) ([]models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE state = $1 ORDER BY uploaded_at LIMIT $2`
	return r.list(ctx, query, models.StatePurged, limit)
}

func (r *PostgresRepository) TouchAccessed(ctx context.Context, owner, id string, at time.Time) error {
	query := `UPDATE files SET last_accessed_at = $1 WHERE id = $2 AND owner_id = $3`
	if _, err := r.db.ExecContext(ctx, query, at, id, owner); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Summary(ctx context.Context, owner string) (models.StorageSummary, error) {
	query := `SELECT COUNT(*), COALESCE(SUM(size), 0) FROM files WHERE owner_id = $1 AND state = $2`

	var s models.StorageSummary
	if err := r.db.QueryRowContext(ctx, query, owner, models.StateActive).Scan(&s.Files, &s.TotalBytes); err != nil {
		return s, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// UsageByMimeType groups active files by raw MIME type; Category holds the type.
func (r *PostgresRepository) UsageByMimeType(ctx context.Context, owner string) ([]models.CategoryUsage, error) {
	query := `
		SELECT mimetype, COUNT(*), COALESCE(SUM(size), 0)
		FROM files WHERE owner_id = $1 AND state = $2
		GROUP BY mimetype
		ORDER BY mimetype
	`
	rows, err := r.db.QueryContext(ctx, query, owner, models.StateActive)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []models.CategoryUsage
	for rows.Next() {
		var u models.CategoryUsage
		if err := rows.Scan(&u.Category, &u.Files, &u.TotalBytes); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *PostgresRepository) LargeFiles(ctx context.Context, owner string, minSize int64, limit int) ([]models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 AND state = $2 AND size > $3 ORDER BY size DESC LIMIT $4`
	return r.list(ctx, query, owner, models.StateActive, minSize, limit)
}

func (r *PostgresRepository) Hottest(ctx context.Context, owner string, limit int) ([]models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 AND state = $2 ORDER BY last_accessed_at DESC LIMIT $3`
	return r.list(ctx, query, owner, models.StateActive, limit)
}

func (r *PostgresRepository) Coldest(ctx context.Context, owner string, before time.Time, limit int) ([]models.StoredFile, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE owner_id = $1 AND state = $2 AND last_accessed_at < $3 ORDER BY last_accessed_at LIMIT $4`
	return r.list(ctx, query, owner, models.StateActive, before, limit)
}

func (r *PostgresRepository) list(ctx context.Context, query string, args ...any) ([]models.StoredFile, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select files: %w", err)
	}
	defer rows.Close()

	var result []models.StoredFile
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanFile(s scanner) (*models.StoredFile, error) {
	var (
		f         models.StoredFile
		state     string
		trashedAt sql.NullTime
	)
	err := s.Scan(&f.ID, &f.Owner, &f.DisplayName, &f.BlobLocator, &f.Cipher.IV, &f.Cipher.Salt,
		&f.ContentHash, &f.Size, &f.MimeType, &state, &f.UploadedAt, &f.LastAccessedAt, &trashedAt)
	if err != nil {
		return nil, err
	}

	f.State, err = models.ParseLifecycleState(state)
	if err != nil {
		return nil, err
	}
	if trashedAt.Valid {
		t := trashedAt.Time
		f.TrashedAt = &t
	}
	return &f, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
