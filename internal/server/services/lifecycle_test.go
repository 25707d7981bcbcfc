package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/cryptox"
	"github.com/dmitrijs2005/cipherbox/internal/logging"
	"github.com/dmitrijs2005/cipherbox/internal/server/config"
	"github.com/dmitrijs2005/cipherbox/internal/server/metrics"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/dmitrijs2005/cipherbox/internal/server/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const day = 24 * time.Hour

type lifecycleFixture struct {
	repo  *memFilesRepo
	audit *memAuditRepo
	store *objectstore.MemoryStore
	svc   *LifecycleService
	files *FileService
	now   time.Time
}

func newLifecycleFixture(t *testing.T) *lifecycleFixture {
	t.Helper()
	db, _ := newSQLMockDB(t)

	fx := &lifecycleFixture{
		repo:  newMemFilesRepo(),
		audit: &memAuditRepo{},
		store: objectstore.NewMemoryStore(),
		now:   time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	fx.repo.clock = func() time.Time { return fx.now }

	rm := &fakeRepoManager{f: fx.repo, a: fx.audit}
	reg := metrics.NewRegistry()
	auditSvc := NewAuditService(db, rm, logging.Nop(), reg)
	fx.audit.flush = auditSvc.Wait
	cfg := &config.Config{RetentionWindow: common.RetentionWindow, SweepConcurrency: 4}

	fx.svc = NewLifecycleService(db, rm, fx.store, auditSvc, logging.Nop(), reg, cfg)
	fx.svc.now = func() time.Time { return fx.now }
	fx.files = NewFileService(db, rm, fx.store, auditSvc, logging.Nop(), reg)
	fx.files.now = func() time.Time { return fx.now }
	return fx
}

// seed stores a file row and its blob directly.
func (fx *lifecycleFixture) seed(t *testing.T, owner, name string, state models.LifecycleState, trashedAt *time.Time) models.StoredFile {
	t.Helper()
	f := fx.repo.put(models.StoredFile{
		Owner:       owner,
		DisplayName: name,
		BlobLocator: blobLocator(owner, fx.now),
		ContentHash: []byte(strings.Repeat("h", 32)),
		Size:        10,
		State:       state,
		UploadedAt:  fx.now,
		TrashedAt:   trashedAt,
	})
	require.NoError(t, fx.store.Put(context.Background(), f.BlobLocator, strings.NewReader("ciphertext"), 10, objectstore.BlobContentType))
	return f
}

func ago(now time.Time, d time.Duration) *time.Time {
	t := now.Add(-d)
	return &t
}

func TestSoftDeleteThenRestore(t *testing.T) {
	fx := newLifecycleFixture(t)
	f := fx.seed(t, "alice", "notes.txt", models.StateActive, nil)
	ctx := context.Background()

	trashed, err := fx.svc.SoftDelete(ctx, "alice", f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateTrashed, trashed.State)
	require.NotNil(t, trashed.TrashedAt)
	assert.True(t, trashed.TrashedAt.Equal(fx.now))

	restored, err := fx.svc.Restore(ctx, "alice", f.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, restored.State)
	assert.Nil(t, restored.TrashedAt)

	row, _ := fx.repo.row(f.ID)
	assert.Equal(t, f.BlobLocator, row.BlobLocator)
	assert.True(t, fx.store.Has(f.BlobLocator))

	recs := fx.audit.all()
	require.Len(t, recs, 2)
	assert.Equal(t, models.ActionDelete, recs[0].Action)
	assert.Equal(t, models.ActionRestore, recs[1].Action)
	for _, r := range recs {
		assert.Equal(t, "notes.txt", r.Filename)
		assert.Equal(t, models.OutcomeSuccess, r.Outcome)
		assert.Equal(t, "alice", r.Owner)
	}
}

func TestTransitionsFromWrongState(t *testing.T) {
	fx := newLifecycleFixture(t)
	ctx := context.Background()
	active := fx.seed(t, "alice", "a", models.StateActive, nil)
	trashed := fx.seed(t, "alice", "b", models.StateTrashed, ago(fx.now, day))

	_, err := fx.svc.SoftDelete(ctx, "alice", trashed.ID)
	assert.ErrorIs(t, err, common.ErrInvalidState)

	_, err = fx.svc.Restore(ctx, "alice", active.ID)
	assert.ErrorIs(t, err, common.ErrInvalidState)

	row, _ := fx.repo.row(trashed.ID)
	assert.Equal(t, models.StateTrashed, row.State, "failed transition leaves the row untouched")

	failures := 0
	for _, r := range fx.audit.all() {
		if r.Outcome == models.OutcomeFailure {
			failures++
		}
	}
	assert.Equal(t, 2, failures)
}

func TestTransitionsNotFound(t *testing.T) {
	fx := newLifecycleFixture(t)
	ctx := context.Background()
	f := fx.seed(t, "alice", "a", models.StateActive, nil)

	tests := []struct {
		name  string
		owner string
		id    string
	}{
		{name: "other owner", owner: "mallory", id: f.ID},
		{name: "missing id", owner: "alice", id: "5b0f3c9e-8d55-4c44-9c1b-0d7d0a3a7c11"},
		{name: "malformed id", owner: "alice", id: "../../etc/passwd"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := fx.svc.SoftDelete(ctx, tt.owner, tt.id)
			assert.ErrorIs(t, err, common.ErrorNotFound)
			_, err = fx.svc.Restore(ctx, tt.owner, tt.id)
			assert.ErrorIs(t, err, common.ErrorNotFound)
			assert.ErrorIs(t, fx.svc.Purge(ctx, tt.owner, tt.id), common.ErrorNotFound)
		})
	}

	row, _ := fx.repo.row(f.ID)
	assert.Equal(t, models.StateActive, row.State)
}

func TestTransition_NoOwnerNoAudit(t *testing.T) {
	fx := newLifecycleFixture(t)
	f := fx.seed(t, "alice", "a", models.StateActive, nil)

	_, err := fx.svc.SoftDelete(context.Background(), "", f.ID)
	assert.ErrorIs(t, err, common.ErrorNotFound)
	assert.Empty(t, fx.audit.all())
}

func TestTransition_StoreFailure(t *testing.T) {
	fx := newLifecycleFixture(t)
	f := fx.seed(t, "alice", "a", models.StateActive, nil)
	fx.repo.transitionErr = errBoom{}

	_, err := fx.svc.SoftDelete(context.Background(), "alice", f.ID)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestPurge(t *testing.T) {
	for _, start := range []models.LifecycleState{models.StateActive, models.StateTrashed} {
		t.Run(string(start), func(t *testing.T) {
			fx := newLifecycleFixture(t)
			var trashedAt *time.Time
			if start == models.StateTrashed {
				trashedAt = ago(fx.now, day)
			}
			f := fx.seed(t, "alice", "secret.pdf", start, trashedAt)

			require.NoError(t, fx.svc.Purge(context.Background(), "alice", f.ID))

			_, ok := fx.repo.row(f.ID)
			assert.False(t, ok)
			assert.False(t, fx.store.Has(f.BlobLocator))

			recs := fx.audit.byAction(models.ActionPermanentDelete)
			require.Len(t, recs, 1)
			assert.Equal(t, models.OutcomeSuccess, recs[0].Outcome)
			assert.Equal(t, "secret.pdf", recs[0].Filename)
		})
	}
}

func TestPurge_BlobAlreadyGone(t *testing.T) {
	fx := newLifecycleFixture(t)
	f := fx.seed(t, "alice", "a", models.StateTrashed, ago(fx.now, day))
	require.NoError(t, fx.store.Delete(context.Background(), f.BlobLocator))

	require.NoError(t, fx.svc.Purge(context.Background(), "alice", f.ID))
	_, ok := fx.repo.row(f.ID)
	assert.False(t, ok)
}

func TestPurge_BlobDeleteFailsKeepsMetadata(t *testing.T) {
	tests := []struct {
		name      string
		state     models.LifecycleState
		trashedAt func(now time.Time) *time.Time
	}{
		{"active", models.StateActive, func(time.Time) *time.Time { return nil }},
		{"trashed", models.StateTrashed, func(now time.Time) *time.Time { return ago(now, 3*day) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newLifecycleFixture(t)
			trashedAt := tt.trashedAt(fx.now)
			f := fx.seed(t, "alice", "a", tt.state, trashedAt)
			fx.store.FailDelete = func(string) error { return errors.New("503 slow down") }

			err := fx.svc.Purge(context.Background(), "alice", f.ID)
			assert.ErrorIs(t, err, common.ErrStoreUnavailable)

			row, ok := fx.repo.row(f.ID)
			require.True(t, ok)
			assert.Equal(t, tt.state, row.State, "row is handed back where it started")
			assert.Equal(t, trashedAt, row.TrashedAt)
			assert.True(t, fx.store.Has(f.BlobLocator))

			// retry once the store recovers
			fx.store.FailDelete = nil
			require.NoError(t, fx.svc.Purge(context.Background(), "alice", f.ID))
			_, ok = fx.repo.row(f.ID)
			assert.False(t, ok)
			assert.False(t, fx.store.Has(f.BlobLocator))
		})
	}
}

func TestPurge_ActiveWithFailingReads(t *testing.T) {
	fx := newLifecycleFixture(t)
	f := fx.seed(t, "alice", "report.pdf", models.StateActive, nil)
	fx.repo.getOK = 1

	err := fx.svc.Purge(context.Background(), "alice", f.ID)

	_, rowExists := fx.repo.row(f.ID)
	blobExists := fx.store.Has(f.BlobLocator)
	assert.False(t, !rowExists && blobExists, "row removed while its blob survives")
	require.NoError(t, err)
	assert.False(t, rowExists)
	assert.False(t, blobExists)
}

func TestPurge_RowWithoutLocatorIsKept(t *testing.T) {
	fx := newLifecycleFixture(t)
	f := fx.repo.put(models.StoredFile{Owner: "alice", DisplayName: "a", State: models.StateTrashed, TrashedAt: ago(fx.now, day)})

	err := fx.svc.Purge(context.Background(), "alice", f.ID)
	assert.ErrorIs(t, err, common.ErrorInternal)

	row, ok := fx.repo.row(f.ID)
	require.True(t, ok)
	assert.Equal(t, models.StateTrashed, row.State)
}

func TestSoftDelete_RereadFailure(t *testing.T) {
	fx := newLifecycleFixture(t)
	f := fx.seed(t, "alice", "a", models.StateActive, nil)
	fx.repo.getErr = errBoom{}

	got, err := fx.svc.SoftDelete(context.Background(), "alice", f.ID)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
	assert.Nil(t, got)
}

func TestPurge_PartialThenResume(t *testing.T) {
	fx := newLifecycleFixture(t)
	f := fx.seed(t, "alice", "a", models.StateTrashed, ago(fx.now, day))
	fx.repo.deleteErr = errBoom{}

	err := fx.svc.Purge(context.Background(), "alice", f.ID)
	assert.ErrorIs(t, err, common.ErrPartialPurge)

	row, ok := fx.repo.row(f.ID)
	require.True(t, ok)
	assert.Equal(t, models.StatePurged, row.State)
	assert.False(t, fx.store.Has(f.BlobLocator))

	// the purged row blocks a restore
	_, err = fx.svc.Restore(context.Background(), "alice", f.ID)
	assert.ErrorIs(t, err, common.ErrInvalidState)

	fx.repo.deleteErr = nil
	require.NoError(t, fx.svc.Purge(context.Background(), "alice", f.ID))
	_, ok = fx.repo.row(f.ID)
	assert.False(t, ok)
}

func TestPurge_LosesRaceToRestore(t *testing.T) {
	fx := newLifecycleFixture(t)
	f := fx.seed(t, "alice", "a", models.StateTrashed, ago(fx.now, day))
	fx.repo.onTransition = func(id string, from, to models.LifecycleState) {
		if to == models.StatePurged {
			fx.repo.setState(id, models.StateActive, nil)
		}
	}

	err := fx.svc.Purge(context.Background(), "alice", f.ID)
	assert.ErrorIs(t, err, common.ErrInvalidState)
	assert.True(t, fx.store.Has(f.BlobLocator))
	row, _ := fx.repo.row(f.ID)
	assert.Equal(t, models.StateActive, row.State)
}

func TestSweep_RetentionWindow(t *testing.T) {
	fx := newLifecycleFixture(t)
	old := fx.seed(t, "alice", "old", models.StateTrashed, ago(fx.now, 31*day))
	edge := fx.seed(t, "alice", "edge", models.StateTrashed, ago(fx.now, 30*day))
	fresh := fx.seed(t, "alice", "fresh", models.StateTrashed, ago(fx.now, 29*day))
	active := fx.seed(t, "alice", "active", models.StateActive, nil)

	report, err := fx.svc.Sweep(context.Background(), fx.now)
	require.NoError(t, err)

	assert.Equal(t, SweepReport{Cutoff: fx.now.Add(-30 * day), Candidates: 2, Purged: 2}, report)
	for _, gone := range []models.StoredFile{old, edge} {
		_, ok := fx.repo.row(gone.ID)
		assert.False(t, ok)
		assert.False(t, fx.store.Has(gone.BlobLocator))
	}
	for _, kept := range []models.StoredFile{fresh, active} {
		_, ok := fx.repo.row(kept.ID)
		assert.True(t, ok)
		assert.True(t, fx.store.Has(kept.BlobLocator))
	}

	expired := fx.audit.byAction(models.ActionExpire)
	assert.Len(t, expired, 2)
}

func TestSweep_OneBlobFailureDoesNotAbort(t *testing.T) {
	fx := newLifecycleFixture(t)
	var eligible []models.StoredFile
	for i := range 5 {
		eligible = append(eligible, fx.seed(t, "alice", fmt.Sprintf("f%d", i), models.StateTrashed, ago(fx.now, 31*day)))
	}
	bad := eligible[2]
	fx.store.FailDelete = func(locator string) error {
		if locator == bad.BlobLocator {
			return errors.New("connection reset")
		}
		return nil
	}

	report, err := fx.svc.Sweep(context.Background(), fx.now)
	require.NoError(t, err)
	assert.Equal(t, 5, report.Candidates)
	assert.Equal(t, 4, report.Purged)
	assert.Equal(t, 1, report.Incomplete)

	row, ok := fx.repo.row(bad.ID)
	require.True(t, ok)
	assert.Equal(t, models.StateTrashed, row.State)

	failures := 0
	for _, r := range fx.audit.byAction(models.ActionExpire) {
		if r.Outcome == models.OutcomeFailure {
			failures++
			assert.Equal(t, "f2", r.Filename)
		}
	}
	assert.Equal(t, 1, failures)

	// the next run finishes it
	fx.store.FailDelete = nil
	report, err = fx.svc.Sweep(context.Background(), fx.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Purged)
}

func TestSweep_PartialPurgeAndStragglers(t *testing.T) {
	fx := newLifecycleFixture(t)
	straggler := fx.seed(t, "bob", "left-behind", models.StatePurged, ago(fx.now, 40*day))
	require.NoError(t, fx.store.Delete(context.Background(), straggler.BlobLocator))
	fx.seed(t, "alice", "old", models.StateTrashed, ago(fx.now, 31*day))
	fx.repo.deleteErr = errBoom{}

	report, err := fx.svc.Sweep(context.Background(), fx.now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Incomplete)

	fx.repo.deleteErr = nil
	report, err = fx.svc.Sweep(context.Background(), fx.now)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Candidates)
	assert.Equal(t, 2, report.Purged)
	assert.Equal(t, 0, fx.store.Len())
}

func TestSweep_RestoredUnderneathIsSkipped(t *testing.T) {
	fx := newLifecycleFixture(t)
	f := fx.seed(t, "alice", "a", models.StateTrashed, ago(fx.now, 31*day))
	fx.repo.onTransition = func(id string, from, to models.LifecycleState) {
		if id == f.ID && to == models.StatePurged {
			fx.repo.setState(id, models.StateActive, nil)
		}
	}

	report, err := fx.svc.Sweep(context.Background(), fx.now)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Skipped)
	assert.True(t, fx.store.Has(f.BlobLocator))
	assert.Empty(t, fx.audit.byAction(models.ActionExpire))
}

func TestSweep_ListFailure(t *testing.T) {
	fx := newLifecycleFixture(t)
	fx.repo.selectErr = errBoom{}

	_, err := fx.svc.Sweep(context.Background(), fx.now)
	assert.ErrorIs(t, err, common.ErrStoreUnavailable)
}

func TestReportPDFScenario(t *testing.T) {
	fx := newLifecycleFixture(t)
	ctx := context.Background()

	const size = 1 << 20
	meta := UploadMeta{
		Filename:    "report.pdf",
		IV:          make([]byte, 12),
		Salt:        make([]byte, 16),
		ContentHash: make([]byte, 32),
		Size:        size,
		MimeType:    "application/pdf",
	}
	body := strings.NewReader(strings.Repeat("c", int(cryptox.CiphertextSize(size))))

	f, err := fx.files.Upload(ctx, "alice", meta, body)
	require.NoError(t, err)
	assert.Equal(t, models.StateActive, f.State)
	assert.True(t, fx.store.Has(f.BlobLocator))

	trashed, err := fx.svc.SoftDelete(ctx, "alice", f.ID)
	require.NoError(t, err)
	require.NotNil(t, trashed.TrashedAt)

	report, err := fx.svc.Sweep(ctx, trashed.TrashedAt.Add(31*day))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Purged)

	assert.False(t, fx.store.Has(f.BlobLocator))
	_, ok := fx.repo.row(f.ID)
	assert.False(t, ok)
}
