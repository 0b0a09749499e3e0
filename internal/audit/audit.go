// Package audit captures structured events for passcode issuance and
// verification. Events carry masked identifiers only.
package audit

import (
	"context"
	"time"
)

// Actions recorded over the passcode lifecycle.
const (
	ActionRequested      = "otp_requested"
	ActionDeliveryFailed = "otp_delivery_failed"
	ActionVerified       = "otp_verified"
	ActionRejected       = "otp_rejected"
	ActionLocked         = "otp_locked"
)

// Event is emitted from domain logic to capture key actions. Subject is the
// masked national identifier; the full value never enters the trail.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Subject   string    `json:"subject"`
	Action    string    `json:"action"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
}

// Store is the append-only persistence contract for the trail.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject string) ([]Event, error)
}

// Sink forwards events to an external system, typically a message broker.
type Sink interface {
	Publish(ctx context.Context, event Event) error
	Close()
}
