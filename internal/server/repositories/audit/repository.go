// Package audit stores the append-only audit trail.
package audit

import (
	"context"

	"github.com/dmitrijs2005/cipherbox/internal/server/models"
)

type Repository interface {
	Insert(ctx context.Context, rec *models.AuditRecord) error
	// List returns records matching filter, newest first, honoring Page/Limit.
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditRecord, error)
	Count(ctx context.Context, filter models.AuditFilter) (int, error)
}
