package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpgate/internal/ratelimit/store/bucket"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, remoteAddr, forwardedFor string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodPost, "/v1/otp/request", nil)
	r.RemoteAddr = remoteAddr
	if forwardedFor != "" {
		r.Header.Set("X-Forwarded-For", forwardedFor)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func TestThrottle(t *testing.T) {
	t.Run("admits under the budget and sets headers", func(t *testing.T) {
		m := New(bucket.NewMemoryStore(), 3, time.Minute, discardLogger())
		h := m.Throttle(okHandler())

		w := doRequest(h, "10.0.0.1:4000", "")
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "3", w.Header().Get("X-RateLimit-Limit"))
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Remaining"))
		assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
	})

	t.Run("rejects past the budget with a retry hint", func(t *testing.T) {
		m := New(bucket.NewMemoryStore(), 2, time.Minute, discardLogger())
		h := m.Throttle(okHandler())

		doRequest(h, "10.0.0.1:4000", "")
		doRequest(h, "10.0.0.1:4000", "")
		w := doRequest(h, "10.0.0.1:4000", "")

		require.Equal(t, http.StatusTooManyRequests, w.Code)
		assert.NotEmpty(t, w.Header().Get("Retry-After"))

		var body struct {
			Error      string `json:"error"`
			RetryAfter int    `json:"retry_after"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "rate_limited", body.Error)
		assert.Positive(t, body.RetryAfter)
	})

	t.Run("budgets are per client", func(t *testing.T) {
		m := New(bucket.NewMemoryStore(), 1, time.Minute, discardLogger())
		h := m.Throttle(okHandler())

		require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:4000", "").Code)
		require.Equal(t, http.StatusTooManyRequests, doRequest(h, "10.0.0.1:4000", "").Code)
		require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.2:4000", "").Code)
	})

	t.Run("forwarded header identifies the client behind a proxy", func(t *testing.T) {
		m := New(bucket.NewMemoryStore(), 1, time.Minute, discardLogger())
		h := m.Throttle(okHandler())

		require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.9:4000", "203.0.113.7, 10.0.0.9").Code)
		require.Equal(t, http.StatusTooManyRequests, doRequest(h, "10.0.0.9:4000", "203.0.113.7, 10.0.0.9").Code)
		require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.9:4000", "203.0.113.8, 10.0.0.9").Code)
	})

	t.Run("disabled limiter passes everything through", func(t *testing.T) {
		m := New(bucket.NewMemoryStore(), 1, time.Minute, discardLogger(), WithDisabled(true))
		h := m.Throttle(okHandler())

		for i := 0; i < 5; i++ {
			require.Equal(t, http.StatusOK, doRequest(h, "10.0.0.1:4000", "").Code)
		}
	})
}
