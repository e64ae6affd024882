package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/time/rate"

	"github.com/orsela/stock-alerts-agent/internal/auth"
	"github.com/orsela/stock-alerts-agent/pkg/logger"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests, by method, path and status",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)
)

type contextKey string

const ownerContextKey contextKey = "owner"

// ownerFromContext returns the authenticated owner set by authMiddleware
func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerContextKey).(string)
	return owner
}

// statusRecorder captures the response status for logging and metrics
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// routeTemplate returns the matched route pattern (e.g. /api/v1/rules/{symbol})
// so metric labels stay bounded regardless of path parameters
func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return "unmatched"
}

// loggingMiddleware logs each request with its status and duration
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(recorder, r)

		duration := time.Since(start)
		template := routeTemplate(r)
		httpRequestsTotal.WithLabelValues(r.Method, template, strconv.Itoa(recorder.status)).Inc()
		httpRequestDuration.WithLabelValues(r.Method, template).Observe(duration.Seconds())

		logger.Debug("HTTP request",
			logger.String("method", r.Method),
			logger.String("path", r.URL.Path),
			logger.Int("status", recorder.status),
			logger.Duration("duration", duration),
			logger.String("remote", r.RemoteAddr),
		)
	})
}

// recoveryMiddleware converts handler panics into 500 responses
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("Recovered from handler panic",
					logger.String("path", r.URL.Path),
					logger.String("panic", strings.TrimSpace(strings.SplitN(toString(rec), "\n", 2)[0])),
				)
				respondWithError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func toString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return "unknown panic"
}

// corsMiddleware adds permissive CORS headers
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// ipLimiters tracks a token-bucket limiter per client IP
type ipLimiters struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	rps      rate.Limit
	burst    int
}

func (l *ipLimiters) get(ip string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	limiter, ok := l.limiters[ip]
	if !ok {
		limiter = rate.NewLimiter(l.rps, l.burst)
		l.limiters[ip] = limiter
	}
	return limiter
}

// newRateLimitMiddleware enforces a per-IP request rate. A non-positive
// limit disables rate limiting.
func newRateLimitMiddleware(rps int) mux.MiddlewareFunc {
	if rps <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}

	limiters := &ipLimiters{
		limiters: make(map[string]*rate.Limiter),
		rps:      rate.Limit(rps),
		burst:    rps * 2,
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip, _, err := net.SplitHostPort(r.RemoteAddr)
			if err != nil {
				ip = r.RemoteAddr
			}

			if !limiters.get(ip).Allow() {
				respondWithError(w, http.StatusTooManyRequests, "Rate limit exceeded")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// authMiddleware validates the Bearer token and stores the owner in the
// request context
func authMiddleware(tokens *auth.TokenManager) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			header := r.Header.Get("Authorization")
			if header == "" {
				respondWithError(w, http.StatusUnauthorized, "Missing authorization header")
				return
			}

			parts := strings.SplitN(header, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
				respondWithError(w, http.StatusUnauthorized, "Invalid authorization header")
				return
			}

			owner, err := tokens.Validate(parts[1])
			if err != nil {
				respondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			ctx := context.WithValue(r.Context(), ownerContextKey, owner)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
