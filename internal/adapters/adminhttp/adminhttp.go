// Package adminhttp exposes the operator-facing HTTP surface: liveness,
// readiness, and metrics. It never handles domain traffic; that stays
// out of scope for the kernel per host-side integration rules.
package adminhttp

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/rustyonions/kernel/internal/adapters/uuidcorr"
	apierrors "github.com/rustyonions/kernel/pkg/errors"
	"github.com/rustyonions/kernel/pkg/health"
	"github.com/rustyonions/kernel/pkg/ready"
	"github.com/rustyonions/kernel/pkg/telemetry"
)

// HealthSource supplies the operator health snapshot at request time.
// cmd/kernelnode implements this by closing over its own component
// checks and pkg/health.New.
type HealthSource func(now time.Time) (health.Snapshot, error)

// MetricsHandler is mounted directly at /metrics; it is typically
// internal/adapters/promsink.Sink.Handler().
type MetricsHandler = http.Handler

// Server is the admin HTTP surface: /healthz, /readyz, /metrics.
type Server struct {
	gate    *ready.Gate
	health  HealthSource
	metrics MetricsHandler
	log     *telemetry.Logger
	srv     *http.Server
}

// Options configures a Server.
type Options struct {
	Addr           string
	Gate           *ready.Gate
	HealthSource   HealthSource
	MetricsHandler MetricsHandler
	Logger         *telemetry.Logger
}

// New builds a Server. A nil Logger falls back to telemetry.Nop.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = telemetry.Nop
	}
	s := &Server{
		gate:    opts.Gate,
		health:  opts.HealthSource,
		metrics: opts.MetricsHandler,
		log:     logger,
	}
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", s.handleReadyz).Methods(http.MethodGet)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics).Methods(http.MethodGet)
	}
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	s.srv = &http.Server{
		Addr:              opts.Addr,
		Handler:           requestLogger(logger, r),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// ListenAndServe runs the admin server until it errors or is shut down.
// Callers typically run this in its own goroutine.
func (s *Server) ListenAndServe() error {
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown gracefully stops the admin server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	snap, err := s.health(time.Now())
	if err != nil {
		s.writeError(w, r, apierrors.KernelUnavailable, err)
		return
	}
	status := http.StatusOK
	if snap.Overall == health.StatusFatal {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, snap)
}

// handleNotFound gives unmatched admin routes the same error envelope
// shape as a dependency failure, rather than mux's bare 404 body.
func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	env := apierrors.NewEnvelope(apierrors.KernelNotFound, "route not found", uuidcorr.NewRequestID(), "", map[string]any{
		"path": r.URL.Path,
	})
	apierrors.WriteHTTP(w, apierrors.HTTPStatusFor(apierrors.KernelNotFound), env)
}

// writeError converts err into pkg/errors' bounded JSON envelope,
// minting a fresh request ID for correlation since adminhttp has no
// inbound request-ID header convention of its own.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, fallback apierrors.Code, err error) {
	env := apierrors.FromError(err, fallback, uuidcorr.NewRequestID(), "")
	apierrors.WriteHTTP(w, apierrors.HTTPStatusFor(env.Error.Code), env)
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.gate == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"ready": true})
		return
	}
	flags := s.gate.Snapshot()
	if s.gate.Ready() {
		writeJSON(w, http.StatusOK, map[string]any{"ready": true, "flags": flags})
		return
	}
	writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ready": false, "flags": flags})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("content-type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func requestLogger(logger *telemetry.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rec, r)
		logger.Info(r.Context(), "admin_request", map[string]any{
			"path":        r.URL.Path,
			"method":      r.Method,
			"status":      rec.status,
			"duration_ms": time.Since(start).Milliseconds(),
		})
	})
}
