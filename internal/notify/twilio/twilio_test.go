package twilio

import (
	"context"
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
	t.Run("accepted delivery returns provider sid", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/2010-04-01/Accounts/AC123/Messages.json", r.URL.Path)

			user, pass, ok := r.BasicAuth()
			require.True(t, ok)
			assert.Equal(t, "AC123", user)
			assert.Equal(t, "token", pass)

			require.NoError(t, r.ParseForm())
			assert.Equal(t, "+919876543210", r.PostForm.Get("To"))
			assert.Equal(t, "+15550000000", r.PostForm.Get("From"))
			assert.Equal(t, "hello", r.PostForm.Get("Body"))

			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{"sid":"SM123"}`))
		}))
		defer srv.Close()

		g := New("AC123", "token", "+15550000000", time.Second, WithBaseURL(srv.URL))
		id, err := g.Send(context.Background(), testMobile, "hello")
		require.NoError(t, err)
		assert.Equal(t, notify.DeliveryID("SM123"), id)
	})

	t.Run("provider rejection maps to delivery failed without leaking body", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, `{"message":"blocked"}`, http.StatusBadRequest)
		}))
		defer srv.Close()

		g := New("AC123", "token", "+15550000000", time.Second, WithBaseURL(srv.URL))
		_, err := g.Send(context.Background(), testMobile, "secret-passcode")
		require.ErrorIs(t, err, notify.ErrDeliveryFailed)
		assert.NotContains(t, err.Error(), "secret-passcode")
		assert.NotContains(t, err.Error(), testMobile.String())
	})

	t.Run("slow provider maps to timeout", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			time.Sleep(200 * time.Millisecond)
			w.WriteHeader(http.StatusCreated)
		}))
		defer srv.Close()

		g := New("AC123", "token", "+15550000000", 20*time.Millisecond, WithBaseURL(srv.URL))
		_, err := g.Send(context.Background(), testMobile, "hello")
		require.ErrorIs(t, err, notify.ErrTimeout)
	})

	t.Run("malformed response maps to delivery failed", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusCreated)
			_, _ = w.Write([]byte(`{}`))
		}))
		defer srv.Close()

		g := New("AC123", "token", "+15550000000", time.Second, WithBaseURL(srv.URL))
		_, err := g.Send(context.Background(), testMobile, "hello")
		require.ErrorIs(t, err, notify.ErrDeliveryFailed)
	})
}
