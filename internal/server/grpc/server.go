// Package grpc exposes the cipherbox services over the FileVault gRPC API.
package grpc

import (
	"context"
	"io"
	"net"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/api"
	"github.com/dmitrijs2005/cipherbox/internal/logging"
	"github.com/dmitrijs2005/cipherbox/internal/server/metrics"
	"github.com/dmitrijs2005/cipherbox/internal/server/models"
	"github.com/dmitrijs2005/cipherbox/internal/server/services"
	"google.golang.org/grpc"
)

type Users interface {
	Register(ctx context.Context, username string, verifier []byte) (*models.User, error)
	Login(ctx context.Context, username string, verifierCandidate []byte) (*services.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string) (*services.TokenPair, error)
}

type Files interface {
	Upload(ctx context.Context, owner string, meta services.UploadMeta, body io.Reader) (*models.StoredFile, error)
	List(ctx context.Context, owner string, state models.LifecycleState) ([]models.StoredFile, error)
	Open(ctx context.Context, owner, id string, view bool) (*models.StoredFile, io.ReadCloser, error)
}

type Lifecycle interface {
	SoftDelete(ctx context.Context, owner, id string) (*models.StoredFile, error)
	Restore(ctx context.Context, owner, id string) (*models.StoredFile, error)
	Purge(ctx context.Context, owner, id string) error
}

type Dedup interface {
	FindDuplicateGroups(ctx context.Context, owner string) ([]models.DuplicateGroup, error)
	WastedBytes(ctx context.Context, owner string) (int64, error)
}

type Analytics interface {
	StorageSummary(ctx context.Context, owner string) (models.StorageSummary, error)
	Categories(ctx context.Context, owner string) ([]models.CategoryUsage, error)
	LargeFiles(ctx context.Context, owner string) ([]models.StoredFile, error)
	Usage(ctx context.Context, owner string, now time.Time) (*services.Usage, error)
}

type AuditLog interface {
	List(ctx context.Context, owner string, filter models.AuditFilter) (*models.AuditPage, error)
}

// Services are the handlers' dependencies.
type Services struct {
	Users     Users
	Files     Files
	Lifecycle Lifecycle
	Dedup     Dedup
	Analytics Analytics
	Audit     AuditLog
}

type GRPCServer struct {
	address   string
	users     Users
	files     Files
	lifecycle Lifecycle
	dedup     Dedup
	analytics Analytics
	audit     AuditLog
	logger    logging.Logger
	metrics   *metrics.Registry
	jwtSecret []byte
	now       func() time.Time
}

var _ api.FileVaultServer = (*GRPCServer)(nil)

func NewGRPCServer(a string, l logging.Logger, reg *metrics.Registry, secretKey string, svc Services) (*GRPCServer, error) {
	return &GRPCServer{
		address:   a,
		logger:    l.With("module", "grpc_server"),
		metrics:   reg,
		users:     svc.Users,
		files:     svc.Files,
		lifecycle: svc.Lifecycle,
		dedup:     svc.Dedup,
		analytics: svc.Analytics,
		audit:     svc.Audit,
		jwtSecret: []byte(secretKey),
		now:       time.Now,
	}, nil
}

func (s *GRPCServer) newServer() *grpc.Server {
	srv := grpc.NewServer(
		grpc.ChainUnaryInterceptor(s.metricsInterceptor, s.accessTokenInterceptor),
		grpc.ChainStreamInterceptor(s.streamMetricsInterceptor, s.streamAccessTokenInterceptor),
	)
	api.RegisterFileVaultServer(srv, s)
	return srv
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx ends, then stops gracefully.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := s.newServer()

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}
	<-stopped

	return nil
}
