// Package server wires the cipherbox server together: configuration,
// logging, the metadata database, the object store, the services and the
// gRPC and admin endpoints, and shuts them down on SIGINT/SIGTERM.
package server

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/cipherbox/internal/logging"
	"github.com/dmitrijs2005/cipherbox/internal/server/admin"
	"github.com/dmitrijs2005/cipherbox/internal/server/config"
	"github.com/dmitrijs2005/cipherbox/internal/server/metrics"
	"github.com/dmitrijs2005/cipherbox/internal/server/objectstore"
	"github.com/dmitrijs2005/cipherbox/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/cipherbox/internal/server/services"

	gs "github.com/dmitrijs2005/cipherbox/internal/server/grpc"
)

type App struct {
	config    *config.Config
	logger    logging.Logger
	db        *sql.DB
	metrics   *metrics.Registry
	users     *services.UserService
	files     *services.FileService
	lifecycle *services.LifecycleService
	dedup     *services.DedupService
	analytics *services.AnalyticsService
	audit     *services.AuditService
}

// openPostgres is a seam for tests.
var openPostgres = repomanager.OpenPostgres

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger := logging.NewJSONLogger(os.Stdout, c.LogLevel)

	db, err := openPostgres(ctx, c.DatabaseDSN)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	rm := repomanager.NewPostgresRepositoryManager()
	if err := rm.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db migration error: %w", err)
	}

	store, err := newObjectStore(ctx, c)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("object store init error: %w", err)
	}

	reg := metrics.NewRegistry()
	auditor := services.NewAuditService(db, rm, logger, reg)

	return &App{
		config:    c,
		logger:    logger,
		db:        db,
		metrics:   reg,
		users:     services.NewUserService(db, rm, c),
		files:     services.NewFileService(db, rm, store, auditor, logger, reg),
		lifecycle: services.NewLifecycleService(db, rm, store, auditor, logger, reg, c),
		dedup:     services.NewDedupService(db, rm),
		analytics: services.NewAnalyticsService(db, rm),
		audit:     auditor,
	}, nil
}

// minioEndpoint turns a base URL into the host:port minio-go expects.
func minioEndpoint(base string) string {
	if u, err := url.Parse(base); err == nil && u.Host != "" {
		return u.Host
	}
	return strings.TrimSuffix(base, "/")
}

func newObjectStore(ctx context.Context, c *config.Config) (objectstore.Store, error) {
	switch c.StorageBackend {
	case "memory":
		return objectstore.NewMemoryStore(), nil

	case "minio":
		st, err := objectstore.NewMinioStore(objectstore.MinioConfig{
			Endpoint:  minioEndpoint(c.S3BaseEndpoint),
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			UseSSL:    c.MinioUseSSL,
		})
		if err != nil {
			return nil, err
		}
		if err := st.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return st, nil

	default:
		st, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			AccessKey: c.S3RootUser,
			SecretKey: c.S3RootPassword,
			Bucket:    c.S3Bucket,
			Region:    c.S3Region,
			Endpoint:  c.S3BaseEndpoint,
		})
		if err != nil {
			return nil, err
		}
		if err := st.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return st, nil
	}
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s, err := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.metrics, app.config.SecretKey, gs.Services{
		Users:     app.users,
		Files:     app.files,
		Lifecycle: app.lifecycle,
		Dedup:     app.dedup,
		Analytics: app.analytics,
		Audit:     app.audit,
	})

	if err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	} else {

		if err := s.Run(ctx); err != nil {
			app.logger.Error(ctx, err.Error())
			cancelFunc()
		}
	}
}

func (app *App) startAdminServer(ctx context.Context, cancelFunc context.CancelFunc) {

	s := admin.NewServer(app.config.EndpointAddrAdmin, app.config.CronSecret, app.config.SweepInterval,
		app.lifecycle, app.users, app.metrics, app.logger)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "storage", app.config.StorageBackend, "retention", app.config.RetentionWindow)

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(2)
	go func() {
		defer wg.Done()
		app.startGRPCServer(ctx, cancelFunc)
	}()
	go func() {
		defer wg.Done()
		app.startAdminServer(ctx, cancelFunc)
	}()

	wg.Wait()

	app.audit.Wait()
	if err := app.db.Close(); err != nil {
		app.logger.Error(ctx, "closing db", "error", err)
	}
	app.logger.Info(ctx, "Stopped")
}
