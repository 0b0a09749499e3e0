// Package msg91 delivers SMS through the MSG91 Flow API.
package msg91

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"otpgate/internal/notify"
	"otpgate/pkg/domain"
)

const defaultBaseURL = "https://api.msg91.com"

const countryPrefix = "91"

// Gateway is a notify.Gateway backed by MSG91 flows.
type Gateway struct {
	authKey string
	flowID  string
	baseURL string
	client  *http.Client
}

type Option func(*Gateway)

// WithBaseURL overrides the API endpoint (tests point it at a local server).
func WithBaseURL(u string) Option {
	return func(g *Gateway) { g.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.client = c }
}

// New constructs an MSG91 gateway with a bounded request timeout.
func New(authKey, flowID string, timeout time.Duration, opts ...Option) *Gateway {
	g := &Gateway{
		authKey: authKey,
		flowID:  flowID,
		baseURL: defaultBaseURL,
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type flowRequest struct {
	FlowID     string          `json:"flow_id"`
	Recipients []flowRecipient `json:"recipients"`
}

type flowRecipient struct {
	Mobiles string            `json:"mobiles"`
	Params  map[string]string `json:"params"`
}

func (g *Gateway) Send(ctx context.Context, to domain.Mobile, text string) (notify.DeliveryID, error) {
	payload, err := json.Marshal(flowRequest{
		FlowID: g.flowID,
		Recipients: []flowRecipient{{
			Mobiles: countryPrefix + to.String(),
			Params:  map[string]string{"OTP": text},
		}},
	})
	if err != nil {
		return "", fmt.Errorf("build msg91 request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/api/v5/flow/", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build msg91 request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("authkey", g.authKey)

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("msg91 send to %s: %w", to.Masked(), notify.ErrTimeout)
		}
		return "", fmt.Errorf("msg91 send to %s: %w", to.Masked(), notify.ErrDeliveryFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("msg91 send to %s: status %d: %w", to.Masked(), resp.StatusCode, notify.ErrDeliveryFailed)
	}

	var body struct {
		Type  string `json:"type"`
		ReqID string `json:"req_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Type != "success" {
		return "", fmt.Errorf("msg91 send to %s: malformed response: %w", to.Masked(), notify.ErrDeliveryFailed)
	}
	return notify.DeliveryID(body.ReqID), nil
}

func isTimeout(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
