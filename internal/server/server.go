// Package server exposes the scan scheduler and corpus cache over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/Sumatoshi-tech/gocorpus/internal/observability"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpus"
	"github.com/Sumatoshi-tech/gocorpus/pkg/corpuscache"
	"github.com/Sumatoshi-tech/gocorpus/pkg/scan"
)

const (
	serverReadHeaderTimeout = 10 * time.Second
	serverIdleTimeout       = 120 * time.Second
	shutdownGrace           = 10 * time.Second
)

// ErrNoCorpus is returned by the readiness check before metadata is available.
var ErrNoCorpus = errors.New("corpus metadata has no repositories")

// Server owns the background scan goroutine and the last finished result.
type Server struct {
	meta    *corpus.Meta
	cache   *corpuscache.Cache
	sched   *scan.Scheduler
	logger  *slog.Logger
	tracer  trace.Tracer
	red     *observability.REDMetrics
	metrics http.Handler

	mu      sync.Mutex
	last    *scan.Result
	loading bool
	wg      sync.WaitGroup
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithTracer sets the tracer used by the request middleware.
func WithTracer(t trace.Tracer) Option {
	return func(s *Server) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithREDMetrics records request metrics.
func WithREDMetrics(red *observability.REDMetrics) Option {
	return func(s *Server) {
		s.red = red
	}
}

// WithMetricsHandler mounts h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) {
		s.metrics = h
	}
}

// New creates a server over meta. The cache must be the one sched scans from.
func New(meta *corpus.Meta, cache *corpuscache.Cache, sched *scan.Scheduler, opts ...Option) *Server {
	s := &Server{
		meta:   meta,
		cache:  cache,
		sched:  sched,
		logger: observability.DiscardLogger(),
		tracer: otel.Tracer("gocorpus/server"),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Handler returns the routed, traced handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/scans", s.handleStartScan)
	mux.HandleFunc("GET /api/v1/scans/current", s.handleCurrentScan)
	mux.HandleFunc("DELETE /api/v1/scans/current", s.handleStopScan)
	mux.HandleFunc("GET /api/v1/repositories", s.handleRepositories)
	mux.HandleFunc("POST /api/v1/repositories/load", s.handleLoad)
	mux.Handle("GET /healthz", observability.HealthHandler())
	mux.Handle("GET /readyz", observability.ReadyHandler(s.ready))

	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return observability.HTTPMiddleware(s.tracer, s.red, mux)
}

// ListenAndServe serves on addr until ctx is canceled, then stops any running
// scan and shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: serverReadHeaderTimeout,
		IdleTimeout:       serverIdleTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)

	go func() {
		s.logger.InfoContext(ctx, "server: listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	s.sched.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	s.Wait()

	if shutdownErr != nil {
		return fmt.Errorf("shutdown: %w", shutdownErr)
	}

	return nil
}

// Wait blocks until the background scan, if any, has recorded its result.
func (s *Server) Wait() {
	s.wg.Wait()
}

// Last returns the most recent finished run, or nil.
func (s *Server) Last() *scan.Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.last
}

func (s *Server) ready(context.Context) error {
	if s.meta == nil || len(s.meta.Repositories) == 0 {
		return ErrNoCorpus
	}

	return nil
}

// collect waits for a background run and keeps its result.
func (s *Server) collect(ctx context.Context, runID string, done <-chan scan.Result) {
	defer s.wg.Done()

	res := <-done

	s.mu.Lock()
	s.last = &res
	s.mu.Unlock()

	if res.Err != nil {
		s.logger.WarnContext(ctx, "server: scan ended with error", "run_id", runID, "error", res.Err)
	}
}

// beginLoad claims the loader unless a load or a scan is in progress.
func (s *Server) beginLoad() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.loading || s.sched.State().Busy() {
		return false
	}

	s.loading = true

	return true
}

func (s *Server) endLoad() {
	s.mu.Lock()
	s.loading = false
	s.mu.Unlock()
}
