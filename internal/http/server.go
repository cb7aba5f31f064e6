// Package http serves the operations endpoint: liveness and readiness
// probes, Prometheus metrics and read-only JSON views of the protection
// dashboard and the reports.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"watchbook/internal/health"
	"watchbook/internal/log"
	"watchbook/internal/middleware/ratelimit"
	"watchbook/internal/middleware/security"
	"watchbook/internal/middleware/trace"
	"watchbook/internal/reports"
	"watchbook/internal/store"
)

// Deps are the components the endpoint reads from.
type Deps struct {
	Registry *prometheus.Registry
	Monitor  *health.Monitor
	Store    *store.Store
	Reports  *reports.Engine
	Logger   *log.Logger

	// RequestsPerMinute limits the /api routes per client (default 60).
	RequestsPerMinute int
}

type Server struct {
	http.Server
	deps    Deps
	logger  *log.Logger
	limiter *ratelimit.Limiter

	shutdownOnce sync.Once
}

// NewServer configures routes and middleware, returning a ready-to-run
// server. Request metrics are registered on d.Registry.
func NewServer(addr string, d Deps) (*Server, error) {
	if d.Logger == nil {
		d.Logger = log.Default()
	}
	if d.Registry == nil {
		d.Registry = prometheus.NewRegistry()
	}

	resolver, err := security.NewIPResolver()
	if err != nil {
		return nil, err
	}
	tracer, err := trace.NewMiddleware(d.Logger, d.Registry, resolver.ClientIP)
	if err != nil {
		return nil, err
	}

	s := &Server{
		deps:    d,
		logger:  d.Logger.WithComponent(log.ComponentHTTP),
		limiter: ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: d.RequestsPerMinute}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.Handle("GET /metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))

	limited := s.limiter.Middleware(resolver.ClientIP)
	mux.Handle("GET /api/dashboard", limited(http.HandlerFunc(s.handleDashboard)))
	mux.Handle("GET /api/stats", limited(http.HandlerFunc(s.handleStats)))

	headers := security.NewHeadersMiddleware(security.DefaultHeadersConfig())

	s.Addr = addr
	s.Handler = tracer.Middleware(headers.Middleware(mux))
	s.ReadTimeout = 10 * time.Second
	s.WriteTimeout = 10 * time.Second
	s.IdleTimeout = 60 * time.Second
	s.MaxHeaderBytes = 1 << 16
	return s, nil
}

// Shutdown stops the limiter and the server. Only the first call has
// effect.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.limiter.Stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleReady fails while the storage medium is in error state.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	if s.deps.Store != nil {
		if h := s.deps.Store.Health(r.Context()); h.Status == store.StatusError {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("storage " + string(h.Status)))
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if s.deps.Monitor == nil {
		writeError(w, http.StatusNotFound, "dashboard not available")
		return
	}
	d, err := s.deps.Monitor.Dashboard(r.Context())
	if err != nil {
		s.logger.ErrorContext(r.Context(), "Failed to build dashboard",
			"request_id", trace.GetRequestID(r.Context()),
			log.FieldError, err)
		writeError(w, http.StatusInternalServerError, "dashboard unavailable")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

type statsResponse struct {
	Month   reports.MonthlyStats `json:"month"`
	AllTime reports.AllTimeStats `json:"allTime"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.deps.Reports == nil {
		writeError(w, http.StatusNotFound, "reports not available")
		return
	}
	month, err := parseMonth(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, statsResponse{
		Month:   s.deps.Reports.MonthlyStats(month),
		AllTime: s.deps.Reports.AllTimeStatsWithTrends(),
	})
}
