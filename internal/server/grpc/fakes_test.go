package grpc

import (
	"bytes"
	"context"
	"errors"
	"io"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/logging"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/dmitrijs2005/cipherbox/internal/server/services"
)

var errBoom = errors.New("boom")

type fakeUsers struct {
	Users
	user   *models.User
	tokens *services.TokenPair
	err    error
}

func (f *fakeUsers) Register(ctx context.Context, username string, verifier []byte) (*models.User, error) {
	return f.user, f.err
}

func (f *fakeUsers) Login(ctx context.Context, username string, verifierCandidate []byte) (*services.TokenPair, error) {
	return f.tokens, f.err
}

func (f *fakeUsers) RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error) {
	return f.tokens, f.err
}

type fakeFiles struct {
	Files

	owner    string
	meta     services.UploadMeta
	received []byte
	origin   models.Origin
	upErr    error

	list      []models.StoredFile
	listState models.LifecycleState
	listErr   error

	file    *models.StoredFile
	body    []byte
	openErr error
	view    bool
}

func (f *fakeFiles) Upload(ctx context.Context, owner string, meta services.UploadMeta, body io.Reader) (*models.StoredFile, error) {
	f.owner, f.meta = owner, meta
	f.origin = services.OriginFromContext(ctx)
	b, err := io.ReadAll(body)
	if err != nil {
		return nil, err
	}
	f.received = b
	if f.upErr != nil {
		return nil, f.upErr
	}
	return &models.StoredFile{
		ID:          "f-1",
		Owner:       owner,
		DisplayName: meta.Filename,
		Size:        meta.Size,
		MimeType:    meta.MimeType,
		ContentHash: meta.ContentHash,
		State:       models.StateActive,
	}, nil
}

func (f *fakeFiles) List(ctx context.Context, owner string, state models.LifecycleState) ([]models.StoredFile, error) {
	f.owner, f.listState = owner, state
	return f.list, f.listErr
}

func (f *fakeFiles) Open(ctx context.Context, owner, id string, view bool) (*models.StoredFile, io.ReadCloser, error) {
	f.owner, f.view = owner, view
	if f.openErr != nil {
		return nil, nil, f.openErr
	}
	return f.file, io.NopCloser(bytes.NewReader(f.body)), nil
}

type fakeLifecycle struct {
	Lifecycle
	file  *models.StoredFile
	err   error
	calls []string
}

func (f *fakeLifecycle) SoftDelete(ctx context.Context, owner, id string) (*models.StoredFile, error) {
	f.calls = append(f.calls, "trash:"+id)
	return f.file, f.err
}

func (f *fakeLifecycle) Restore(ctx context.Context, owner, id string) (*models.StoredFile, error) {
	f.calls = append(f.calls, "restore:"+id)
	return f.file, f.err
}

func (f *fakeLifecycle) Purge(ctx context.Context, owner, id string) error {
	f.calls = append(f.calls, "purge:"+id)
	return f.err
}

type fakeDedup struct {
	Dedup
	groups []models.DuplicateGroup
	err    error
}

func (f *fakeDedup) FindDuplicateGroups(ctx context.Context, owner string) ([]models.DuplicateGroup, error) {
	return f.groups, f.err
}

func (f *fakeDedup) WastedBytes(ctx context.Context, owner string) (int64, error) {
	var total int64
	for _, g := range f.groups {
		total += g.WastedBytes()
	}
	return total, f.err
}

type fakeAnalytics struct {
	Analytics
	summary    models.StorageSummary
	categories []models.CategoryUsage
	large      []models.StoredFile
	usage      *services.Usage
	usageErr   error
	now        time.Time
}

func (f *fakeAnalytics) StorageSummary(ctx context.Context, owner string) (models.StorageSummary, error) {
	return f.summary, nil
}

func (f *fakeAnalytics) Categories(ctx context.Context, owner string) ([]models.CategoryUsage, error) {
	return f.categories, nil
}

func (f *fakeAnalytics) LargeFiles(ctx context.Context, owner string) ([]models.StoredFile, error) {
	return f.large, nil
}

func (f *fakeAnalytics) Usage(ctx context.Context, owner string, now time.Time) (*services.Usage, error) {
	f.now = now
	return f.usage, f.usageErr
}

type fakeAudit struct {
	AuditLog
	filter models.AuditFilter
	page   *models.AuditPage
	err    error
}

func (f *fakeAudit) List(ctx context.Context, owner string, filter models.AuditFilter) (*models.AuditPage, error) {
	filter.Owner = owner
	f.filter = filter
	return f.page, f.err
}

type fixture struct {
	users     *fakeUsers
	files     *fakeFiles
	lifecycle *fakeLifecycle
	dedup     *fakeDedup
	analytics *fakeAnalytics
	audit     *fakeAudit
	srv       *GRPCServer
}

const testSecret = "test-secret"

func newFixture() *fixture {
	f := &fixture{
		users:     &fakeUsers{},
		files:     &fakeFiles{},
		lifecycle: &fakeLifecycle{},
		dedup:     &fakeDedup{},
		analytics: &fakeAnalytics{},
		audit:     &fakeAudit{},
	}
	f.srv, _ = NewGRPCServer("127.0.0.1:0", logging.Nop(), nil, testSecret, Services{
		Users:     f.users,
		Files:     f.files,
		Lifecycle: f.lifecycle,
		Dedup:     f.dedup,
		Analytics: f.analytics,
		Audit:     f.audit,
	})
	return f
}

func authed(userID string) context.Context {
	return context.WithValue(context.Background(), userIDKey, userID)
}
