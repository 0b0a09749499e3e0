package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpgate/internal/otp/service"
	ratelimitmw "otpgate/internal/ratelimit/middleware"
	"otpgate/internal/ratelimit/store/bucket"
	"otpgate/pkg/domain"
	dErrors "otpgate/pkg/domain-errors"
)

type fakeService struct {
	requestErr error
	verifyErr  error
	masked     string
	receipt    string

	lastNationalID domain.NationalID
	lastCandidate  string
}

func (f *fakeService) RequestOTP(_ context.Context, nationalID domain.NationalID) (string, error) {
	f.lastNationalID = nationalID
	if f.requestErr != nil {
		return "", f.requestErr
	}
	return f.masked, nil
}

func (f *fakeService) VerifyOTP(_ context.Context, nationalID domain.NationalID, candidate string) (*service.VerifyResult, error) {
	f.lastNationalID = nationalID
	f.lastCandidate = candidate
	if f.verifyErr != nil {
		return nil, f.verifyErr
	}
	return &service.VerifyResult{
		Receipt:    f.receipt,
		VerifiedAt: time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC),
	}, nil
}

func newRouter(svc Service, throttle func(http.Handler) http.Handler) http.Handler {
	r := chi.NewRouter()
	New(svc, slog.New(slog.DiscardHandler)).Register(r, throttle)
	return r
}

func post(h http.Handler, path string, body any) *httptest.ResponseRecorder {
	payload, _ := json.Marshal(body)
	r := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(payload))
	r.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body.Error
}

func TestHandleRequest(t *testing.T) {
	t.Run("returns the masked mobile", func(t *testing.T) {
		svc := &fakeService{masked: "*****3210"}
		h := newRouter(svc, nil)

		w := post(h, "/v1/otp/request", map[string]string{"national_id": "111122223333"})
		require.Equal(t, http.StatusOK, w.Code)

		var body map[string]string
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "*****3210", body["masked_mobile"])
		assert.Equal(t, domain.NationalID("111122223333"), svc.lastNationalID)
	})

	t.Run("malformed identifier never reaches the service", func(t *testing.T) {
		svc := &fakeService{masked: "*****3210"}
		h := newRouter(svc, nil)

		for _, id := range []string{"", "12345", "11112222333x", "1111222233334444"} {
			w := post(h, "/v1/otp/request", map[string]string{"national_id": id})
			require.Equal(t, http.StatusBadRequest, w.Code, "id %q", id)
			assert.Equal(t, "invalid_input", errorCode(t, w))
		}
		assert.Empty(t, svc.lastNationalID)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		h := newRouter(&fakeService{}, nil)

		r := httptest.NewRequest(http.MethodPost, "/v1/otp/request", bytes.NewReader([]byte("{not json")))
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		require.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown identity maps to 404", func(t *testing.T) {
		svc := &fakeService{requestErr: dErrors.New(dErrors.CodeNotFound, "unknown identity")}
		h := newRouter(svc, nil)

		w := post(h, "/v1/otp/request", map[string]string{"national_id": "999900001111"})
		require.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", errorCode(t, w))
	})

	t.Run("delivery failure maps to 502", func(t *testing.T) {
		svc := &fakeService{requestErr: dErrors.New(dErrors.CodeDeliveryFailed, "passcode delivery failed")}
		h := newRouter(svc, nil)

		w := post(h, "/v1/otp/request", map[string]string{"national_id": "111122223333"})
		require.Equal(t, http.StatusBadGateway, w.Code)
	})

	t.Run("delivery timeout maps to 504", func(t *testing.T) {
		svc := &fakeService{requestErr: dErrors.New(dErrors.CodeTimeout, "passcode delivery timed out")}
		h := newRouter(svc, nil)

		w := post(h, "/v1/otp/request", map[string]string{"national_id": "111122223333"})
		require.Equal(t, http.StatusGatewayTimeout, w.Code)
	})
}

func TestHandleVerify(t *testing.T) {
	t.Run("successful verification returns the receipt", func(t *testing.T) {
		svc := &fakeService{receipt: "signed-receipt"}
		h := newRouter(svc, nil)

		w := post(h, "/v1/otp/verify", map[string]string{
			"national_id": "111122223333",
			"otp":         "482913",
		})
		require.Equal(t, http.StatusOK, w.Code)

		var body struct {
			Verified bool   `json:"verified"`
			Receipt  string `json:"receipt"`
		}
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.True(t, body.Verified)
		assert.Equal(t, "signed-receipt", body.Receipt)
		assert.Equal(t, "482913", svc.lastCandidate)
	})

	t.Run("non-numeric candidate never reaches the service", func(t *testing.T) {
		svc := &fakeService{}
		h := newRouter(svc, nil)

		for _, otp := range []string{"", "abc123", "12 456", "123", "1234567890"} {
			w := post(h, "/v1/otp/verify", map[string]string{
				"national_id": "111122223333",
				"otp":         otp,
			})
			require.Equal(t, http.StatusBadRequest, w.Code, "otp %q", otp)
		}
		assert.Empty(t, svc.lastCandidate)
	})

	t.Run("protocol rejections keep their coded reasons", func(t *testing.T) {
		cases := []struct {
			code       dErrors.Code
			wantStatus int
		}{
			{dErrors.CodeNoActiveOTP, http.StatusBadRequest},
			{dErrors.CodeNotActive, http.StatusBadRequest},
			{dErrors.CodeExpired, http.StatusBadRequest},
			{dErrors.CodeInvalidCode, http.StatusBadRequest},
			{dErrors.CodeTooManyAttempts, http.StatusTooManyRequests},
			{dErrors.CodeConflict, http.StatusConflict},
		}
		for _, tc := range cases {
			svc := &fakeService{verifyErr: dErrors.New(tc.code, "rejected")}
			h := newRouter(svc, nil)

			w := post(h, "/v1/otp/verify", map[string]string{
				"national_id": "111122223333",
				"otp":         "482913",
			})
			require.Equal(t, tc.wantStatus, w.Code, "code %s", tc.code)
			assert.Equal(t, string(tc.code), errorCode(t, w))
		}
	})

	t.Run("internal errors hide their detail", func(t *testing.T) {
		svc := &fakeService{verifyErr: dErrors.New(dErrors.CodeInternal, "pq: connection refused")}
		h := newRouter(svc, nil)

		w := post(h, "/v1/otp/verify", map[string]string{
			"national_id": "111122223333",
			"otp":         "482913",
		})
		require.Equal(t, http.StatusInternalServerError, w.Code)
		assert.NotContains(t, w.Body.String(), "connection refused")
	})
}

func TestThrottledRoutes(t *testing.T) {
	limiter := ratelimitmw.New(bucket.NewMemoryStore(), 2, time.Minute, slog.New(slog.DiscardHandler))
	svc := &fakeService{masked: "*****3210"}
	h := newRouter(svc, limiter.Throttle)

	body := map[string]string{"national_id": "111122223333"}
	require.Equal(t, http.StatusOK, post(h, "/v1/otp/request", body).Code)
	require.Equal(t, http.StatusOK, post(h, "/v1/otp/request", body).Code)

	w := post(h, "/v1/otp/request", body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limited", errorCode(t, w))
}
