// Package twilio delivers SMS through the Twilio Messages API.
package twilio

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"otpgate/internal/notify"
	"otpgate/pkg/domain"
)

const defaultBaseURL = "https://api.twilio.com"

// Indian numbers; the directory stores mobiles without a prefix.
const countryPrefix = "+91"

// Gateway is a notify.Gateway backed by Twilio.
type Gateway struct {
	accountSID string
	authToken  string
	from       string
	baseURL    string
	client     *http.Client
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

// New constructs a Twilio gateway with a bounded request timeout.
func New(accountSID, authToken, from string, timeout time.Duration, opts ...Option) *Gateway {
	g := &Gateway{
		accountSID: accountSID,
		authToken:  authToken,
		from:       from,
		baseURL:    defaultBaseURL,
		client:     &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *Gateway) Send(ctx context.Context, to domain.Mobile, text string) (notify.DeliveryID, error) {
	form := url.Values{}
	form.Set("To", countryPrefix+to.String())
	form.Set("From", g.from)
	form.Set("Body", text)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", g.baseURL, g.accountSID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build twilio request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(g.accountSID, g.authToken)

	resp, err := g.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return "", fmt.Errorf("twilio send to %s: %w", to.Masked(), notify.ErrTimeout)
		}
		return "", fmt.Errorf("twilio send to %s: %w", to.Masked(), notify.ErrDeliveryFailed)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Provider error bodies can echo the message; report the status only.
		return "", fmt.Errorf("twilio send to %s: status %d: %w", to.Masked(), resp.StatusCode, notify.ErrDeliveryFailed)
	}

	var body struct {
		SID string `json:"sid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.SID == "" {
		return "", fmt.Errorf("twilio send to %s: malformed response: %w", to.Masked(), notify.ErrDeliveryFailed)
	}
	return notify.DeliveryID(body.SID), nil
}

func isTimeout(err error) bool {
	var ue *url.Error
	return errors.As(err, &ue) && ue.Timeout()
}
