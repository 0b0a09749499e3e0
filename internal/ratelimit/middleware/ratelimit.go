// Package middleware throttles issuance requests per client IP with a
// sliding window budget.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"otpgate/internal/ratelimit/models"
	"otpgate/internal/ratelimit/store"
	"otpgate/pkg/platform/httputil"
)

type recorder interface {
	RecordAllowed()
	RecordThrottled()
	RecordStoreFailure()
}

type Middleware struct {
	buckets  store.BucketStore
	limit    int
	window   time.Duration
	logger   *slog.Logger
	metrics  recorder
	disabled bool
}

type Option func(*Middleware)

// WithDisabled turns the limiter off entirely (local development).
func WithDisabled(disabled bool) Option {
	return func(m *Middleware) { m.disabled = disabled }
}

// WithMetrics attaches outcome counters.
func WithMetrics(rec recorder) Option {
	return func(m *Middleware) { m.metrics = rec }
}

func New(buckets store.BucketStore, limit int, window time.Duration, logger *slog.Logger, opts ...Option) *Middleware {
	m := &Middleware{
		buckets: buckets,
		limit:   limit,
		window:  window,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.disabled {
		logger.Info("rate limiting disabled")
	}
	return m
}

// Throttle wraps a handler with the per-IP sliding window check. A bucket
// store failure fails open: availability over strict enforcement.
func (m *Middleware) Throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.disabled {
			next.ServeHTTP(w, r)
			return
		}

		ip := clientIP(r)
		result, err := m.buckets.Allow(r.Context(), ip, m.limit, m.window)
		if err != nil {
			m.logger.Error("rate limit check failed", "error", err)
			if m.metrics != nil {
				m.metrics.RecordStoreFailure()
			}
			next.ServeHTTP(w, r)
			return
		}

		addHeaders(w, result)

		if !result.Allowed {
			if m.metrics != nil {
				m.metrics.RecordThrottled()
			}
			writeThrottled(w, result)
			return
		}

		if m.metrics != nil {
			m.metrics.RecordAllowed()
		}
		next.ServeHTTP(w, r)
	})
}

// clientIP prefers the first X-Forwarded-For hop, falling back to the
// connection peer.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if first, _, found := strings.Cut(fwd, ","); found || first != "" {
			return strings.TrimSpace(first)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func addHeaders(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(result.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(result.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))
}

func writeThrottled(w http.ResponseWriter, result *models.Result) {
	w.Header().Set("Retry-After", strconv.Itoa(result.RetryAfter))
	httputil.WriteJSON(w, http.StatusTooManyRequests, map[string]any{
		"error":       "rate_limited",
		"message":     "Too many requests. Please try again later.",
		"retry_after": result.RetryAfter,
	})
}
