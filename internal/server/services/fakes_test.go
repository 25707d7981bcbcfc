package services

import (
	"cmp"
	"context"
	"database/sql"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/dbx"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	auditrepo "github.com/dmitrijs2005/cipherbox/internal/server/repositories/audit"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/files"
	refreshtokensrepo "github.com/dmitrijs2005/cipherbox/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/cipherbox/internal/server/repositories/users"
	"github.com/google/uuid"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

type fakeRepoManager struct {
	u *fakeUsersRepo
	r *fakeRefreshRepo
	f files.Repository
	a *memAuditRepo
}

func (m *fakeRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *fakeRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *fakeRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }
func (m *fakeRepoManager) Files(db dbx.DBTX) files.Repository                     { return m.f }
func (m *fakeRepoManager) Audit(db dbx.DBTX) auditrepo.Repository                 { return m.a }

type fakeUsersRepo struct {
	createOut *models.User
	createErr error

	getOut *models.User
	getErr error
}

func (f *fakeUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	return f.createOut, nil
}

func (f *fakeUsersRepo) GetUserByLogin(ctx context.Context, userName string) (*models.User, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.getOut, nil
}

type fakeRefreshRepo struct {
	findOut *models.RefreshToken
	findErr error

	delErr    error
	createErr error

	pruned int64
}

func (f *fakeRefreshRepo) Create(ctx context.Context, userID string, token string, validity time.Duration) error {
	return f.createErr
}

func (f *fakeRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.findOut, nil
}

func (f *fakeRefreshRepo) Delete(ctx context.Context, token string) error {
	return f.delErr
}

func (f *fakeRefreshRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	return f.pruned, nil
}

// memFilesRepo is an in-memory files.Repository with the same conditional
// semantics as the Postgres one. The *Err fields make single calls fail.
type memFilesRepo struct {
	files.Repository

	mu    sync.Mutex
	rows  map[string]models.StoredFile
	clock func() time.Time

	createErr     error
	transitionErr error
	deleteErr     error
	getErr        error
	selectErr     error
	// getOK, when positive, is how many GetForOwner calls succeed before
	// the rest fail.
	getOK    int
	getCalls int

	// onTransition runs before a transition is applied, with the lock released.
	onTransition func(id string, from, to models.LifecycleState)
}

func newMemFilesRepo() *memFilesRepo {
	return &memFilesRepo{rows: make(map[string]models.StoredFile), clock: time.Now}
}

func (r *memFilesRepo) put(f models.StoredFile) models.StoredFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f.ID == "" {
		f.ID = uuid.NewString()
	}
	if f.State == "" {
		f.State = models.StateActive
	}
	r.rows[f.ID] = f
	return f
}

func (r *memFilesRepo) row(id string) (models.StoredFile, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[id]
	return f, ok
}

func (r *memFilesRepo) Create(ctx context.Context, f *models.StoredFile) (*models.StoredFile, error) {
	if r.createErr != nil {
		return nil, r.createErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.rows {
		if string(existing.Cipher.IV) == string(f.Cipher.IV) {
			return nil, errors.New("duplicate key value violates unique constraint \"files_iv_key\"")
		}
	}
	f.ID = uuid.NewString()
	f.State = models.StateActive
	f.UploadedAt = r.clock()
	f.LastAccessedAt = f.UploadedAt
	f.TrashedAt = nil
	r.rows[f.ID] = *f
	return f, nil
}

func (r *memFilesRepo) GetForOwner(ctx context.Context, owner, id string) (*models.StoredFile, error) {
	if r.getErr != nil {
		return nil, r.getErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.getCalls++
	if r.getOK > 0 && r.getCalls > r.getOK {
		return nil, errBoom{}
	}
	f, ok := r.rows[id]
	if !ok || f.Owner != owner {
		return nil, common.ErrorNotFound
	}
	return &f, nil
}

func (r *memFilesRepo) filter(keep func(models.StoredFile) bool, less func(a, b models.StoredFile) int) []models.StoredFile {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.StoredFile
	for _, f := range r.rows {
		if keep(f) {
			out = append(out, f)
		}
	}
	slices.SortFunc(out, less)
	return out
}

func byUpload(a, b models.StoredFile) int {
	if c := a.UploadedAt.Compare(b.UploadedAt); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

func (r *memFilesRepo) ListByOwner(ctx context.Context, owner string, state models.LifecycleState) ([]models.StoredFile, error) {
	if r.selectErr != nil {
		return nil, r.selectErr
	}
	return r.filter(
		func(f models.StoredFile) bool { return f.Owner == owner && f.State == state },
		func(a, b models.StoredFile) int { return -byUpload(a, b) },
	), nil
}

func (r *memFilesRepo) ListNonPurged(ctx context.Context, owner string) ([]models.StoredFile, error) {
	if r.selectErr != nil {
		return nil, r.selectErr
	}
	return r.filter(
		func(f models.StoredFile) bool { return f.Owner == owner && f.State != models.StatePurged },
		byUpload,
	), nil
}

func (r *memFilesRepo) Transition(ctx context.Context, owner, id string, from, to models.LifecycleState, trashedAt *time.Time) (bool, error) {
	if r.onTransition != nil {
		r.onTransition(id, from, to)
	}
	if r.transitionErr != nil {
		return false, r.transitionErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[id]
	if !ok || f.Owner != owner || f.State != from {
		return false, nil
	}
	f.State = to
	if trashedAt != nil {
		t := *trashedAt
		f.TrashedAt = &t
	} else {
		f.TrashedAt = nil
	}
	r.rows[id] = f
	return true, nil
}

func (r *memFilesRepo) Delete(ctx context.Context, id string, state models.LifecycleState) (bool, error) {
	if r.deleteErr != nil {
		return false, r.deleteErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	f, ok := r.rows[id]
	if !ok || f.State != state {
		return false, nil
	}
	delete(r.rows, id)
	return true, nil
}

func (r *memFilesRepo) SelectExpired(ctx context.Context, cutoff time.Time, limit int) ([]models.StoredFile, error) {
	if r.selectErr != nil {
		return nil, r.selectErr
	}
	out := r.filter(
		func(f models.StoredFile) bool {
			return f.State == models.StateTrashed && f.TrashedAt != nil && !f.TrashedAt.After(cutoff)
		},
		func(a, b models.StoredFile) int { return a.TrashedAt.Compare(*b.TrashedAt) },
	)
	return out[:min(limit, len(out))], nil
}

func (r *memFilesRepo) SelectPurged(ctx context.Context, limit int) ([]models.StoredFile, error) {
	if r.selectErr != nil {
		return nil, r.selectErr
	}
	out := r.filter(func(f models.StoredFile) bool { return f.State == models.StatePurged }, byUpload)
	return out[:min(limit, len(out))], nil
}

func (r *memFilesRepo) TouchAccessed(ctx context.Context, owner, id string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if f, ok := r.rows[id]; ok && f.Owner == owner {
		f.LastAccessedAt = at
		r.rows[id] = f
	}
	return nil
}

// memAuditRepo keeps audit records in insertion order.
type memAuditRepo struct {
	auditrepo.Repository

	mu        sync.Mutex
	records   []models.AuditRecord
	insertErr error
	// release, when set, holds every Insert until it is closed.
	release chan struct{}
	// flush drains the service's background writes before records are read.
	flush func()

	listOut  []models.AuditRecord
	countOut int
	lastList models.AuditFilter
}

func (r *memAuditRepo) Insert(ctx context.Context, rec *models.AuditRecord) error {
	if r.release != nil {
		<-r.release
	}
	if r.insertErr != nil {
		return r.insertErr
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.ID = int64(len(r.records) + 1)
	r.records = append(r.records, *rec)
	return nil
}

func (r *memAuditRepo) List(ctx context.Context, f models.AuditFilter) ([]models.AuditRecord, error) {
	r.lastList = f
	return r.listOut, nil
}

func (r *memAuditRepo) Count(ctx context.Context, f models.AuditFilter) (int, error) {
	return r.countOut, nil
}

func (r *memAuditRepo) all() []models.AuditRecord {
	if r.flush != nil {
		r.flush()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.records)
}

func (r *memAuditRepo) byAction(a models.ActionKind) []models.AuditRecord {
	var out []models.AuditRecord
	for _, rec := range r.all() {
		if rec.Action == a {
			out = append(out, rec)
		}
	}
	return out
}

func (r *memFilesRepo) setState(id string, st models.LifecycleState, trashedAt *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	f := r.rows[id]
	f.State = st
	f.TrashedAt = trashedAt
	r.rows[id] = f
}
