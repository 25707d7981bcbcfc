// Package admin serves the privileged HTTP surface of the server: the
// retention sweep trigger for an external scheduler, Prometheus metrics and
// a health probe.
package admin

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/cipherbox/internal/common"
	"github.com/dmitrijs2005/cipherbox/internal/logging"
	"github.com/dmitrijs2005/cipherbox/internal/server/metrics"
	"github.com/dmitrijs2005/cipherbox/internal/server/services"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	readTimeout     = 10 * time.Second
	writeTimeout    = 10 * time.Minute
	idleTimeout     = 30 * time.Second
	sweepTimeout    = 10 * time.Minute
	shutdownTimeout = 5 * time.Second
)

type Sweeper interface {
	Sweep(ctx context.Context, now time.Time) (services.SweepReport, error)
}

type TokenPruner interface {
	PruneRefreshTokens(ctx context.Context, now time.Time) (int64, error)
}

type Server struct {
	address  string
	secret   []byte
	interval time.Duration
	sweeper  Sweeper
	pruner   TokenPruner
	metrics  *metrics.Registry
	logger   logging.Logger
	now      func() time.Time
}

// NewServer builds the admin server. A positive interval also runs the
// sweep in-process on a ticker.
func NewServer(address, cronSecret string, interval time.Duration, sw Sweeper, pr TokenPruner,
	reg *metrics.Registry, l logging.Logger) *Server {
	return &Server{
		address:  address,
		secret:   []byte(cronSecret),
		interval: interval,
		sweeper:  sw,
		pruner:   pr,
		metrics:  reg,
		logger:   l.With("module", "admin"),
		now:      time.Now,
	}
}

type message struct {
	Msg string `json:"msg"`
}

type pruneResult struct {
	Removed int64 `json:"removed"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// cronAuth admits requests carrying the cron secret.
func (s *Server) cronAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		provided := []byte(r.Header.Get(common.CronSecretHeaderName))
		if len(provided) == 0 || subtle.ConstantTimeCompare(provided, s.secret) != 1 {
			s.logger.Warn(r.Context(), "rejected cron request", "remote", r.RemoteAddr)
			writeJSON(w, http.StatusUnauthorized, message{Msg: "Unauthorized: Invalid or missing secret key"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok\n"))
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(s.cronAuth)
		r.Delete("/files/cleanup/expired", s.handleSweep)
		r.Delete("/auth/tokens/expired", s.handlePrune)
	})
	return r
}

// The sweep outlives a dropped scheduler connection.
func (s *Server) handleSweep(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), sweepTimeout)
	defer cancel()

	report, err := s.sweeper.Sweep(ctx, s.now())
	if err != nil {
		s.logger.Error(ctx, "sweep failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, message{Msg: "Server Error during cron cleanup"})
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	if s.pruner == nil {
		writeJSON(w, http.StatusNotFound, message{Msg: "not configured"})
		return
	}
	n, err := s.pruner.PruneRefreshTokens(r.Context(), s.now())
	if err != nil {
		s.logger.Error(r.Context(), "prune refresh tokens failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, message{Msg: "Server Error during token cleanup"})
		return
	}
	writeJSON(w, http.StatusOK, pruneResult{Removed: n})
}

// schedule runs the sweep every interval until ctx ends.
func (s *Server) schedule(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			sctx, cancel := context.WithTimeout(ctx, sweepTimeout)
			if _, err := s.sweeper.Sweep(sctx, s.now()); err != nil {
				s.logger.Error(ctx, "scheduled sweep failed", "error", err)
			}
			if s.pruner != nil {
				if _, err := s.pruner.PruneRefreshTokens(sctx, s.now()); err != nil {
					s.logger.Warn(ctx, "scheduled token prune failed", "error", err)
				}
			}
			cancel()
		}
	}
}

func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

// Serve handles requests on lis until ctx ends.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		IdleTimeout:  idleTimeout,
	}

	if s.interval > 0 {
		go s.schedule(ctx)
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping admin server...")
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	s.logger.Info(ctx, "Starting admin server", "address", lis.Addr().String(), "sweep_interval", s.interval)

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-stopped
	return nil
}
