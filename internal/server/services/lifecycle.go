package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/logging"
	"github.com/dmitrijs2005/cipherbox/internal/server/config"
	"github.com/dmitrijs2005/cipherbox/internal/server/metrics"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/dmitrijs2005/cipherbox/internal/server/objectstore"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/files"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/repomanager"
	"golang.org/x/sync/errgroup"
)

const sweepBatchSize = 1000

// SweepReport summarizes one retention sweep.
type SweepReport struct {
	Cutoff     time.Time `json:"cutoff"`
	Candidates int       `json:"candidates"`
	Purged     int       `json:"purged"`
	// Skipped files changed state underneath the sweep (restored, or
	// finished by a concurrent purge).
	Skipped int `json:"skipped"`
	// Incomplete purges are left for the next run.
	Incomplete int `json:"incomplete"`
}

// LifecycleService moves files between active, trashed and purged.
//
// Every transition is a conditional update against the state the caller
// expects, so two concurrent requests cannot both win. A permanent delete
// first claims the row by moving it to purged; from then on a restore
// fails with InvalidState and the blob can be destroyed safely.
type LifecycleService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       objectstore.Store
	audit       Auditor
	logger      logging.Logger
	metrics     *metrics.Registry
	retention   time.Duration
	concurrency int
	now         func() time.Time
}

func NewLifecycleService(db *sql.DB, m repomanager.RepositoryManager, store objectstore.Store, audit Auditor,
	logger logging.Logger, reg *metrics.Registry, cfg *config.Config) *LifecycleService {
	concurrency := cfg.SweepConcurrency
	if concurrency < 1 {
		concurrency = 1
	}
	retention := cfg.RetentionWindow
	if retention <= 0 {
		retention = common.RetentionWindow
	}
	return &LifecycleService{
		db:          db,
		repomanager: m,
		store:       store,
		audit:       audit,
		logger:      logger.With("module", "lifecycle"),
		metrics:     reg,
		retention:   retention,
		concurrency: concurrency,
		now:         time.Now,
	}
}

// SoftDelete moves an active file to the trash and starts its retention
// clock.
func (s *LifecycleService) SoftDelete(ctx context.Context, owner, id string) (*models.StoredFile, error) {
	now := s.now().UTC()
	f, err := s.transition(ctx, owner, id, models.StateActive, models.StateTrashed, &now)
	s.finish(ctx, "soft_delete", models.ActionDelete, owner, id, f, err)
	return f, err
}

// Restore returns a trashed file to active and clears its trash time.
func (s *LifecycleService) Restore(ctx context.Context, owner, id string) (*models.StoredFile, error) {
	f, err := s.transition(ctx, owner, id, models.StateTrashed, models.StateActive, nil)
	s.finish(ctx, "restore", models.ActionRestore, owner, id, f, err)
	return f, err
}

// Purge permanently deletes a file from active or trashed. An active file
// passes through trashed first so the state machine never jumps from
// active to removed. A row left purged by an interrupted purge is resumed.
//
// If the blob cannot be deleted the row is handed back in the state the
// purge found it in and ErrStoreUnavailable is returned. If the blob is
// gone but the row survives, ErrPartialPurge is returned and the row stays
// purged.
func (s *LifecycleService) Purge(ctx context.Context, owner, id string) error {
	f, err := s.purge(ctx, owner, id)
	s.finish(ctx, "purge", models.ActionPermanentDelete, owner, id, f, err)
	return err
}

// purgeStart is where a purge found a row, so a failed purge can put it back.
type purgeStart struct {
	state     models.LifecycleState
	trashedAt *time.Time
}

func (s *LifecycleService) purge(ctx context.Context, owner, id string) (*models.StoredFile, error) {
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	repo := s.repomanager.Files(s.db)

	f, err := repo.GetForOwner(ctx, owner, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, err
		}
		return nil, storeErr("get file", err)
	}
	back := &purgeStart{state: f.State, trashedAt: f.TrashedAt}

	switch f.State {
	case models.StateActive:
		now := s.now().UTC()
		ok, err := repo.Transition(ctx, owner, id, models.StateActive, models.StateTrashed, &now)
		if err != nil {
			return f, storeErr("trash file", err)
		}
		if !ok {
			return f, s.classify(ctx, repo, owner, id)
		}
		f.State, f.TrashedAt = models.StateTrashed, &now
		fallthrough
	case models.StateTrashed:
		ok, err := repo.Transition(ctx, owner, id, models.StateTrashed, models.StatePurged, f.TrashedAt)
		if err != nil {
			s.handBack(ctx, repo, f, models.StateTrashed, back)
			return f, storeErr("claim file", err)
		}
		if !ok {
			return f, s.classify(ctx, repo, owner, id)
		}
		f.State = models.StatePurged
		return f, s.destroy(ctx, repo, f, back)
	case models.StatePurged:
		return f, s.destroy(ctx, repo, f, nil)
	default:
		return f, fmt.Errorf("%w: unknown state %q", common.ErrorInternal, f.State)
	}
}

// destroy deletes the blob and then the purged row. back is where the row
// came from when this call claimed it; the row returns there if the blob
// survives. A row without a locator is never removed.
func (s *LifecycleService) destroy(ctx context.Context, repo files.Repository, f *models.StoredFile, back *purgeStart) error {
	if f.BlobLocator == "" {
		s.handBack(ctx, repo, f, models.StatePurged, back)
		return fmt.Errorf("%w: %s has no blob locator", common.ErrorInternal, f.ID)
	}
	if err := s.store.Delete(ctx, f.BlobLocator); err != nil && !errors.Is(err, objectstore.ErrObjectNotFound) {
		s.handBack(ctx, repo, f, models.StatePurged, back)
		return storeErr("delete blob", err)
	}

	if _, err := repo.Delete(ctx, f.ID, models.StatePurged); err != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrPartialPurge, f.ID, err)
	}
	f.State = models.StatePurged
	return nil
}

// handBack undoes a purge's own transitions, moving the row from its
// current state back to where the purge found it.
func (s *LifecycleService) handBack(ctx context.Context, repo files.Repository, f *models.StoredFile, current models.LifecycleState, back *purgeStart) {
	if back == nil || back.state == current {
		return
	}
	ok, err := repo.Transition(context.WithoutCancel(ctx), f.Owner, f.ID, current, back.state, back.trashedAt)
	if err != nil || !ok {
		s.logger.Error(ctx, "could not revert purge", "id", f.ID, "to", string(back.state), "ok", ok, "error", err)
		return
	}
	f.State, f.TrashedAt = back.state, back.trashedAt
}

// transition applies from -> to and returns the row as it is afterwards.
func (s *LifecycleService) transition(ctx context.Context, owner, id string, from, to models.LifecycleState, trashedAt *time.Time) (*models.StoredFile, error) {
	if !from.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", common.ErrInvalidState, from, to)
	}
	if !validID(id) {
		return nil, common.ErrorNotFound
	}
	repo := s.repomanager.Files(s.db)

	ok, err := repo.Transition(ctx, owner, id, from, to, trashedAt)
	if err != nil {
		return nil, storeErr("transition", err)
	}
	if !ok {
		return nil, s.classify(ctx, repo, owner, id)
	}

	f, err := repo.GetForOwner(ctx, owner, id)
	if err != nil {
		return nil, storeErr("re-read file", err)
	}
	return f, nil
}

// classify explains why a conditional update matched no row. A row being
// purged still exists, so racing a purge yields InvalidState.
func (s *LifecycleService) classify(ctx context.Context, repo files.Repository, owner, id string) error {
	f, err := repo.GetForOwner(ctx, owner, id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return common.ErrorNotFound
		}
		return storeErr("get file", err)
	}
	return fmt.Errorf("%w: file is %s", common.ErrInvalidState, f.State)
}

func (s *LifecycleService) finish(ctx context.Context, transition string, action models.ActionKind, owner, id string, f *models.StoredFile, err error) {
	s.metrics.RecordTransition(transition, err)

	name := id
	if f != nil && f.DisplayName != "" {
		name = f.DisplayName
	}
	s.audit.Record(ctx, models.AuditRecord{
		Owner:    owner,
		Action:   action,
		Filename: name,
		Outcome:  models.OutcomeOf(err),
	})

	if err != nil {
		s.logger.Info(ctx, transition+" failed", "owner", owner, "id", id, "error", err)
	}
}

// Sweep purges every trashed file whose retention window ended at or
// before now, and finishes rows an interrupted purge left behind. Files are
// handled independently; a failure on one is counted and logged and does
// not stop the others. Only failing to list candidates fails the sweep.
func (s *LifecycleService) Sweep(ctx context.Context, now time.Time) (SweepReport, error) {
	started := time.Now()
	report := SweepReport{Cutoff: now.Add(-s.retention).UTC()}

	repo := s.repomanager.Files(s.db)

	expired, err := repo.SelectExpired(ctx, report.Cutoff, sweepBatchSize)
	if err != nil {
		err = storeErr("select expired", err)
		s.metrics.RecordSweep(0, 0, err, time.Since(started))
		return report, err
	}
	stragglers, err := repo.SelectPurged(ctx, sweepBatchSize)
	if err != nil {
		err = storeErr("select purged", err)
		s.metrics.RecordSweep(0, 0, err, time.Since(started))
		return report, err
	}

	candidates := append(expired, stragglers...)
	report.Candidates = len(candidates)

	var mu sync.Mutex
	g := new(errgroup.Group)
	g.SetLimit(s.concurrency)

	for i := range candidates {
		f := &candidates[i]
		g.Go(func() error {
			err := s.expire(ctx, repo, f)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Purged++
			case errors.Is(err, common.ErrInvalidState), errors.Is(err, common.ErrorNotFound):
				report.Skipped++
			default:
				report.Incomplete++
				s.logger.Warn(ctx, "sweep purge incomplete", "id", f.ID, "owner", f.Owner, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.RecordSweep(report.Purged, report.Incomplete, nil, time.Since(started))
	s.logger.Info(ctx, "sweep finished",
		"cutoff", report.Cutoff, "candidates", report.Candidates, "purged", report.Purged,
		"skipped", report.Skipped, "incomplete", report.Incomplete)

	return report, nil
}

func (s *LifecycleService) expire(ctx context.Context, repo files.Repository, f *models.StoredFile) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	defer func() {
		if errors.Is(err, common.ErrInvalidState) || errors.Is(err, common.ErrorNotFound) {
			return
		}
		s.audit.Record(ctx, models.AuditRecord{
			Owner:    f.Owner,
			Action:   models.ActionExpire,
			Filename: f.DisplayName,
			Outcome:  models.OutcomeOf(err),
		})
	}()

	if f.State == models.StatePurged {
		return s.destroy(ctx, repo, f, nil)
	}

	ok, err := repo.Transition(ctx, f.Owner, f.ID, models.StateTrashed, models.StatePurged, f.TrashedAt)
	if err != nil {
		return storeErr("claim file", err)
	}
	if !ok {
		return s.classify(ctx, repo, f.Owner, f.ID)
	}
	return s.destroy(ctx, repo, f, &purgeStart{state: models.StateTrashed, trashedAt: f.TrashedAt})
}
