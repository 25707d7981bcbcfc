package services

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/logging"
	"github.com/dmitrijs2005/cipherbox/internal/server/metrics"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/repomanager"
)

const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 200
	auditWriteTimeout    = 5 * time.Second
)

// Auditor records the outcome of an operation. Implementations must never
// block or fail the operation being audited.
type Auditor interface {
	Record(ctx context.Context, rec models.AuditRecord)
}

type originKey struct{}

// WithOrigin attaches the caller's origin to ctx so audit records can pick
// it up without every service signature carrying it.
func WithOrigin(ctx context.Context, o models.Origin) context.Context {
	return context.WithValue(ctx, originKey{}, o)
}

func OriginFromContext(ctx context.Context) models.Origin {
	o, _ := ctx.Value(originKey{}).(models.Origin)
	return o
}

// AuditService is the append-only audit trail.
type AuditService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	metrics     *metrics.Registry
	now         func() time.Time

	pending sync.WaitGroup
}

func NewAuditService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger, reg *metrics.Registry) *AuditService {
	return &AuditService{
		db:          db,
		repomanager: m,
		logger:      logger.With("module", "audit"),
		metrics:     reg,
		now:         time.Now,
	}
}

// Record stores rec after the operation's outcome is known. A record
// without an owner is dropped. The timestamp and origin are captured
// before Record returns; the write itself runs in the background on a
// context detached from the request, so neither a slow store nor a
// cancelled call holds up the caller. A failed write is logged and
// counted, never returned. Wait drains pending writes.
func (s *AuditService) Record(ctx context.Context, rec models.AuditRecord) {
	if rec.Owner == "" {
		return
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = s.now().UTC()
	}
	if rec.Origin == (models.Origin{}) {
		rec.Origin = OriginFromContext(ctx)
	}

	wctx := context.WithoutCancel(ctx)
	s.pending.Add(1)
	go func() {
		defer s.pending.Done()
		s.write(wctx, rec)
	}()
}

func (s *AuditService) write(ctx context.Context, rec models.AuditRecord) {
	wctx, cancel := context.WithTimeout(ctx, auditWriteTimeout)
	defer cancel()

	if err := s.repomanager.Audit(s.db).Insert(wctx, &rec); err != nil {
		s.metrics.RecordAuditFailure()
		s.logger.Warn(ctx, "audit write failed",
			"owner", rec.Owner, "action", string(rec.Action), "filename", rec.Filename, "error", err)
	}
}

// Wait blocks until every record handed to Record has been written or
// has failed.
func (s *AuditService) Wait() {
	s.pending.Wait()
}

// List returns one page of owner's audit records, newest first. The
// filter's owner is always replaced by owner.
func (s *AuditService) List(ctx context.Context, owner string, filter models.AuditFilter) (*models.AuditPage, error) {
	if filter.Action != "" && !filter.Action.Valid() {
		return nil, common.ErrInvalidInput
	}
	filter.Owner = owner
	if filter.Page < 1 {
		filter.Page = 1
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultAuditPageSize
	case filter.Limit > maxAuditPageSize:
		filter.Limit = maxAuditPageSize
	}

	repo := s.repomanager.Audit(s.db)

	total, err := repo.Count(ctx, filter)
	if err != nil {
		return nil, storeErr("count audit records", err)
	}
	records, err := repo.List(ctx, filter)
	if err != nil {
		return nil, storeErr("list audit records", err)
	}

	return &models.AuditPage{
		Records: records,
		Total:   total,
		Page:    filter.Page,
		Pages:   (total + filter.Limit - 1) / filter.Limit,
	}, nil
}
