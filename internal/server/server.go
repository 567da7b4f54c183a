// Package server serves stored river profiles and run diagnostics over HTTP, with a gRPC health
// service sharing the same port.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/chrissnell/riverprofile/internal/network"
	"github.com/chrissnell/riverprofile/internal/profile"
	"github.com/chrissnell/riverprofile/internal/sink/sqlitestore"
	"github.com/chrissnell/riverprofile/internal/types"
	"github.com/chrissnell/riverprofile/pkg/responseformat"
	"github.com/gorilla/mux"
	"github.com/soheilhy/cmux"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// ProfileReader is the read side of the profile store
type ProfileReader interface {
	LatestRun(ctx context.Context) (*types.Diagnostics, error)
	Rivers(ctx context.Context, runID string) ([]sqlitestore.River, error)
	Profile(ctx context.Context, runID string, head network.SegmentID) (*profile.Profile, error)
	Ping(ctx context.Context) error
}

// Server holds the HTTP and gRPC servers
type Server struct {
	reader    ProfileReader
	formatter *responseformat.Formatter
	logger    *zap.SugaredLogger
	router    *mux.Router
	http      *http.Server
	grpc      *grpc.Server
	health    *health.Server
}

// New creates a server. metrics is mounted at /metrics when non-nil.
func New(reader ProfileReader, metrics http.Handler, logger *zap.SugaredLogger) *Server {
	s := &Server{
		reader:    reader,
		formatter: responseformat.NewFormatter(),
		logger:    logger,
		grpc:      grpc.NewServer(),
		health:    health.NewServer(),
	}
	healthpb.RegisterHealthServer(s.grpc, s.health)

	s.router = s.setupRouter(metrics)
	s.http = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP router
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupRouter(metrics http.Handler) *mux.Router {
	router := mux.NewRouter()
	router.Use(s.accessLog)

	router.HandleFunc("/healthz", s.healthz).Methods(http.MethodGet)
	router.HandleFunc("/rivers", s.listRivers).Methods(http.MethodGet)
	router.HandleFunc("/rivers/{head:-?[0-9]+}", s.getRiver).Methods(http.MethodGet)
	router.HandleFunc("/diagnostics/latest", s.latestDiagnostics).Methods(http.MethodGet)
	if metrics != nil {
		router.Handle("/metrics", metrics)
	}
	return router
}

// ListenAndServe listens on addr and serves until ctx is done
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, lis)
}

// Serve splits lis between gRPC and HTTP and serves both until ctx is done
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	m := cmux.New(lis)
	grpcL := m.MatchWithWriters(cmux.HTTP2MatchHeaderFieldSendSettings("content-type", "application/grpc"))
	httpL := m.Match(cmux.Any())

	s.health.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	s.logger.Infof("serving profiles on %s", lis.Addr())

	var wg sync.WaitGroup
	errs := make(chan error, 3)
	serve := func(name string, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := fn(); err != nil && !isClosed(err) {
				errs <- fmt.Errorf("%s: %w", name, err)
			}
		}()
	}
	serve("grpc", func() error { return s.grpc.Serve(grpcL) })
	serve("http", func() error { return s.http.Serve(httpL) })
	serve("cmux", m.Serve)

	var err error
	select {
	case <-ctx.Done():
	case err = <-errs:
	}

	s.logger.Info("shutting down the profile server...")
	s.health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.http.Shutdown(shutdownCtx)
	s.grpc.Stop()
	m.Close()
	lis.Close()
	wg.Wait()
	return err
}

func isClosed(err error) bool {
	return errors.Is(err, http.ErrServerClosed) ||
		errors.Is(err, cmux.ErrListenerClosed) ||
		errors.Is(err, cmux.ErrServerClosed) ||
		errors.Is(err, grpc.ErrServerStopped) ||
		errors.Is(err, net.ErrClosed) ||
		strings.Contains(err.Error(), "use of closed network connection")
}

// accessLog logs every request after it completes
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		s.logger.Debugw("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"size", rw.size,
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}
