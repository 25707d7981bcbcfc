package cli

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/dmitrijs2005/cipherbox/internal/api"
	"github.com/dmitrijs2005/cipherbox/internal/client/client"
	"github.com/dmitrijs2005/cipherbox/internal/client/config"
	"github.com/dmitrijs2005/cipherbox/internal/client/session"
	"github.com/dmitrijs2005/cipherbox/internal/cryptox"
)

type fakeClient struct {
	client.Client

	regUser     string
	regVerifier []byte
	regErr      error

	loginUser     string
	loginVerifier []byte
	loginErr      error
	loggedOut     bool

	pingErr error

	listState string
	files     []api.FileInfo
	listErr   error

	lastID   string
	file     *api.FileInfo
	fileErr  error
	purged   bool
	purgeErr error

	dups      *api.DuplicatesResponse
	stats     *api.StatsResponse
	auditReq  api.AuditLogRequest
	auditResp *api.AuditLogResponse
}

func (f *fakeClient) Close() error { return nil }
func (f *fakeClient) Register(_ context.Context, user string, verifier []byte) error {
	f.regUser, f.regVerifier = user, verifier
	return f.regErr
}
func (f *fakeClient) Login(_ context.Context, user string, verifier []byte) error {
	f.loginUser, f.loginVerifier = user, verifier
	return f.loginErr
}
func (f *fakeClient) Logout()                    { f.loggedOut = true }
func (f *fakeClient) Ping(context.Context) error { return f.pingErr }
func (f *fakeClient) ListFiles(_ context.Context, state string) ([]api.FileInfo, error) {
	f.listState = state
	return f.files, f.listErr
}
func (f *fakeClient) Trash(_ context.Context, id string) (*api.FileInfo, error) {
	f.lastID = id
	return f.file, f.fileErr
}
func (f *fakeClient) Restore(_ context.Context, id string) (*api.FileInfo, error) {
	f.lastID = id
	return f.file, f.fileErr
}
func (f *fakeClient) Purge(_ context.Context, id string) error {
	f.lastID = id
	f.purged = f.purgeErr == nil
	return f.purgeErr
}
func (f *fakeClient) Duplicates(context.Context) (*api.DuplicatesResponse, error) {
	return f.dups, nil
}
func (f *fakeClient) Stats(context.Context) (*api.StatsResponse, error) {
	return f.stats, nil
}
func (f *fakeClient) AuditLog(_ context.Context, req api.AuditLogRequest) (*api.AuditLogResponse, error) {
	f.auditReq = req
	return f.auditResp, nil
}

type fakeTransfer struct {
	path     string
	uploaded *api.FileInfo
	err      error

	id      string
	saved   string
	header  api.FileHeader
	preview string
}

func (f *fakeTransfer) Upload(_ context.Context, path string, progress cryptox.ProgressFunc) (*api.FileInfo, error) {
	f.path = path
	if f.err != nil {
		return nil, f.err
	}
	progress(100)
	return f.uploaded, nil
}

func (f *fakeTransfer) Download(_ context.Context, id string, progress cryptox.ProgressFunc) (string, error) {
	f.id = id
	if f.err != nil {
		return "", f.err
	}
	progress(100)
	return f.saved, nil
}

func (f *fakeTransfer) Preview(_ context.Context, id string, w io.Writer) (api.FileHeader, error) {
	f.id = id
	if f.err != nil {
		return f.header, f.err
	}
	_, err := io.WriteString(w, f.preview)
	return f.header, err
}

type testApp struct {
	*App
	client   *fakeClient
	transfer *fakeTransfer
	out      *bytes.Buffer
}

func newTestApp(t *testing.T, input string) *testApp {
	t.Helper()
	fc := &fakeClient{}
	ft := &fakeTransfer{}
	out := &bytes.Buffer{}
	cfg := &config.Config{}
	cfg.LoadDefaults()

	a := &App{
		config:     cfg,
		client:     fc,
		keys:       session.NewKeyring(0, nil),
		uploader:   ft,
		downloader: ft,
		reader:     bufio.NewReader(strings.NewReader(input)),
		out:        out,
	}
	t.Cleanup(a.keys.Release)
	return &testApp{App: a, client: fc, transfer: ft, out: out}
}

func stubInputs(t *testing.T, username string, password []byte) {
	t.Helper()
	origST, origGP := getSimpleText, getPassword
	getSimpleText = func(_ *bufio.Reader, _ string, _ io.Writer) (string, error) { return username, nil }
	getPassword = func(_ io.Writer) ([]byte, error) { return bytes.Clone(password), nil }
	t.Cleanup(func() {
		getSimpleText = origST
		getPassword = origGP
	})
}
