package msg91

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"otpgate/internal/notify"
	"otpgate/pkg/domain"
)

const testMobile = domain.Mobile("9876543210")

func TestSend(t *testing.T) {
	t.Run("accepted delivery returns request id", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/api/v5/flow/", r.URL.Path)
			assert.Equal(t, "authkey-1", r.Header.Get("authkey"))

			var req flowRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
			assert.Equal(t, "flow-1", req.FlowID)
			require.Len(t, req.Recipients, 1)
			assert.Equal(t, "919876543210", req.Recipients[0].Mobiles)
			assert.Equal(t, "hello", req.Recipients[0].Params["OTP"])

			_, _ = w.Write([]byte(`{"type":"success","req_id":"req-42"}`))
		}))
		defer srv.Close()

		g := New("authkey-1", "flow-1", time.Second, WithBaseURL(srv.URL))
		id, err := g.Send(context.Background(), testMobile, "hello")
		require.NoError(t, err)
		assert.Equal(t, notify.DeliveryID("req-42"), id)
	})

	t.Run("error type in body maps to delivery failed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte(`{"type":"error","message":"invalid flow"}`))
		}))
		defer srv.Close()

		g := New("authkey-1", "flow-1", time.Second, WithBaseURL(srv.URL))
		_, err := g.Send(context.Background(), testMobile, "hello")
		require.ErrorIs(t, err, notify.ErrDeliveryFailed)
	})

	t.Run("slow provider maps to timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
		}))
		defer srv.Close()

		g := New("authkey-1", "flow-1", 20*time.Millisecond, WithBaseURL(srv.URL))
		_, err := g.Send(context.Background(), testMobile, "hello")
		require.ErrorIs(t, err, notify.ErrTimeout)
	})
}
