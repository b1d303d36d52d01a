// Package server exposes the prompt registry and telemetry over HTTP. The
// surface is thin: handlers translate between JSON and the domain packages
// and map domain errors onto status codes, nothing more.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/promptledger/promptledger"
	"github.com/promptledger/promptledger/registry"
	"github.com/promptledger/promptledger/telemetry"
)

const shutdownTimeout = 5 * time.Second

// Server serves the registry API.
type Server struct {
	addr     string
	store    *registry.Store
	recorder *telemetry.Recorder
	logger   *slog.Logger
	tokens   promptledger.TokenCounter
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithTokenCounter replaces the rune-based fallback used for the
// token_estimate field of render responses with an exact tokenizer.
func WithTokenCounter(tc promptledger.TokenCounter) Option {
	return func(s *Server) {
		if tc != nil {
			s.tokens = tc
		}
	}
}

// New creates a Server over the given store and recorder.
func New(addr string, store *registry.Store, recorder *telemetry.Recorder, opts ...Option) *Server {
	s := &Server{
		addr:     addr,
		store:    store,
		recorder: recorder,
		logger:   slog.Default(),
		tokens:   &promptledger.CharFallbackCounter{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the route table. Exposed so tests can drive the API with
// httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /prompt/{id}", s.handleGetPrompt)
	mux.HandleFunc("POST /prompt/{id}/render", s.handleRender)
	mux.HandleFunc("POST /prompt/{id}/validate", s.handleValidate)
	mux.HandleFunc("POST /prompt/{id}/log", s.handleLog)
	mux.HandleFunc("GET /metrics", s.handleMetrics)
	mux.HandleFunc("GET /last-usage", s.handleLastUsage)
	return s.withRequestLog(mux)
}

// Start serves until ctx is cancelled, then shuts down gracefully, letting
// in-flight requests finish within shutdownTimeout.
func (s *Server) Start(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.logger.Info("http server started", "addr", s.addr)
	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	s.logger.Info("http server stopped")
	return nil
}

// withRequestLog logs one line per request with a correlation id. An
// incoming X-Request-ID is honored; otherwise one is generated and echoed
// back in the response.
func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", reqID)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Info("request",
			"req_id", reqID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"dur_ms", float64(time.Since(start).Microseconds())/1000.0,
		)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}
