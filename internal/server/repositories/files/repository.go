// Package files declares the metadata store for encrypted files and its
// PostgreSQL implementation.
package files

import (
	"context"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/server/models"
)

// Repository persists StoredFile rows. Lifecycle changes go through
// Transition and Delete, which only apply when the row is still in the
// expected state and report whether they did.
type Repository interface {
	Create(ctx context.Context, f *models.StoredFile) (*models.StoredFile, error)

	// GetForOwner returns the row in any state, or common.ErrorNotFound when
	// it does not exist or belongs to someone else.
	GetForOwner(ctx context.Context, owner, id string) (*models.StoredFile, error)

	ListByOwner(ctx context.Context, owner string, state models.LifecycleState) ([]models.StoredFile, error)
	ListNonPurged(ctx context.Context, owner string) ([]models.StoredFile, error)

	Transition(ctx context.Context, owner, id string, from, to models.LifecycleState, trashedAt *time.Time) (bool, error)
	Delete(ctx context.Context, id string, state models.LifecycleState) (bool, error)

	// SelectExpired returns trashed rows with trashed_at <= cutoff, oldest first.
	SelectExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.StoredFile, error)
	// SelectPurged returns rows left in the purged state by an interrupted purge.
	SelectPurged(ctx context.Context, limit int) ([]models.StoredFile, error)

	TouchAccessed(ctx context.Context, owner, id string, at time.Time) error

	Summary(ctx context.Context, owner string) (models.StorageSummary, error)
	UsageByMimeType(ctx context.Context, owner string) ([]models.CategoryUsage, error)
	LargeFiles(ctx context.Context, owner string, minSize int64, limit int) ([]models.StoredFile, error)
	Hottest(ctx context.Context, owner string, limit int) ([]models.StoredFile, error)
	Coldest(ctx context.Context, owner string, before time.Time, limit int) ([]models.StoredFile, error)
}
