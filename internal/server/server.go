package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/infracollect/imgbundle/internal/engine"
	"github.com/infracollect/imgbundle/internal/engine/progress"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const (
	DefaultShutdownTimeout = 30 * time.Second

	skippedTrailer = "X-Skipped-Objects"
)

// PipelineBuilder creates the pipeline that serves every download. The
// server passes its own reporters as options.
type PipelineBuilder func(opts ...engine.PipelineOption) (*engine.Pipeline, error)

type Option func(*Server)

func WithShutdownTimeout(d time.Duration) Option {
	return func(s *Server) {
		s.shutdownTimeout = d
	}
}

// WithClock replaces time.Now when naming downloads.
func WithClock(now func() time.Time) Option {
	return func(s *Server) {
		s.now = now
	}
}

// Server streams the catalog as a ZIP download over HTTP.
type Server struct {
	logger          *zap.Logger
	pipeline        *engine.Pipeline
	registry        *prometheus.Registry
	router          *mux.Router
	shutdownTimeout time.Duration
	now             func() time.Time
}

func New(logger *zap.Logger, build PipelineBuilder, opts ...Option) (*Server, error) {
	s := &Server{
		logger:          logger,
		registry:        prometheus.NewRegistry(),
		shutdownTimeout: DefaultShutdownTimeout,
		now:             time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.registry.Register(collectors.NewGoCollector()); err != nil {
		return nil, fmt.Errorf("failed to register go collector: %w", err)
	}
	metrics, err := progress.NewMetrics(s.registry)
	if err != nil {
		return nil, err
	}

	reporter := progress.Multi{progress.NewLogger(logger.Named("progress")), metrics}
	pipeline, err := build(engine.WithReporter(reporter))
	if err != nil {
		return nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	s.pipeline = pipeline

	s.router = s.routes()
	return s, nil
}

func (s *Server) routes() *mux.Router {
	r := mux.NewRouter()
	r.Use(s.logRequests, cors)

	r.HandleFunc("/download", s.handleDownload)
	r.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})
	// mux only runs middleware on matched routes
	r.PathPrefix("/").HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("hey there"))
	})

	return r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          zap.NewStdLog(s.logger.Named("http")),
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info("server is up", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server", zap.Duration("timeout", s.shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	<-errCh
	return nil
}

func (s *Server) handleDownload(w http.ResponseWriter, r *http.Request) {
	out := newResponseOutput(w, fmt.Sprintf("%x.zip", s.now().UnixMilli()))

	result, err := s.pipeline.Run(r.Context(), out)
	if err == nil {
		w.Header().Set(skippedTrailer, strconv.Itoa(len(result.Failed())))
		return
	}

	logger := s.logger.With(zap.String("run_id", result.RunID))
	if out.started {
		// headers are already sent, so the client only sees a broken connection
		logger.Warn("aborting download", zap.Error(err))
		panic(http.ErrAbortHandler)
	}

	status := statusFor(err)
	logger.Error("download failed", zap.Int("status", status), zap.Error(err))
	writeJSONError(w, status, err, result)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, engine.ErrCatalogUnavailable),
		errors.Is(err, engine.ErrCatalogAuth),
		errors.Is(err, engine.ErrCatalogMalformedResponse):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrDuplicateEntryName):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

type errorResponse struct {
	Error string       `json:"error"`
	RunID string       `json:"run_id,omitempty"`
	State engine.State `json:"state"`
}

func writeJSONError(w http.ResponseWriter, status int, err error, result *engine.Result) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorResponse{
		Error: err.Error(),
		RunID: result.RunID,
		State: result.State,
	})
}

func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "*")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		defer func() {
			s.logger.Debug("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Duration("duration", time.Since(start)),
			)
		}()

		next.ServeHTTP(rec, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// Unwrap lets http.ResponseController reach the underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}
