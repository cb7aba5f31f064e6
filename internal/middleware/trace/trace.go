// Package trace tags every request with an id, logs it and records
// Prometheus request metrics.
package trace

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"watchbook/internal/log"
)

type contextKey string

// RequestIDKey is the context key of the request id.
const RequestIDKey contextKey = "request_id"

// HeaderRequestID carries the request id in both directions.
const HeaderRequestID = "X-Request-ID"

// Middleware handles request tracing and logging.
type Middleware struct {
	logger    *log.Logger
	extractIP func(*http.Request) string
	requests  *prometheus.CounterVec
	duration  *prometheus.HistogramVec
}

// NewMiddleware registers the request metrics on reg.
func NewMiddleware(logger *log.Logger, reg prometheus.Registerer, extractIP func(*http.Request) string) (*Middleware, error) {
	if logger == nil {
		logger = log.Default()
	}
	m := &Middleware{
		logger:    logger.WithComponent(log.ComponentHTTP),
		extractIP: extractIP,
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "watchbook",
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the operations endpoint.",
		}, []string{"path", "code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "watchbook",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency of the operations endpoint.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"path"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.requests, m.duration} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// Middleware returns HTTP middleware for request tracing.
func (m *Middleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := ""
		if m.extractIP != nil {
			clientIP = m.extractIP(r)
		}

		// Reuse a well-formed id set by a proxy.
		requestID := r.Header.Get(HeaderRequestID)
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, requestID)

		ctx := context.WithValue(r.Context(), RequestIDKey, requestID)
		r = r.WithContext(ctx)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r)

		duration := time.Since(start)
		m.requests.WithLabelValues(r.URL.Path, strconv.Itoa(rw.statusCode)).Inc()
		m.duration.WithLabelValues(r.URL.Path).Observe(duration.Seconds())

		args := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status_code", rw.statusCode,
			log.FieldDuration, duration.Milliseconds(),
			"client_ip", clientIP,
		}
		switch {
		case rw.statusCode >= 500:
			m.logger.ErrorContext(ctx, "HTTP request failed", args...)
		case rw.statusCode >= 400:
			m.logger.WarnContext(ctx, "HTTP request rejected", args...)
		default:
			m.logger.DebugContext(ctx, "HTTP request completed", args...)
		}
	})
}

// responseWriter captures the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// GetRequestID extracts the request id from ctx.
func GetRequestID(ctx context.Context) string {
	if id, ok := ctx.Value(RequestIDKey).(string); ok {
		return id
	}
	return ""
}
