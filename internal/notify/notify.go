// Package notify abstracts the outbound SMS channel. One provider is chosen
// at startup from configuration; business logic never branches on vendors.
package notify

import (
	"context"
	"errors"

	"otpgate/pkg/domain"
)

// DeliveryID identifies an accepted delivery at the provider.
type DeliveryID string

// Sentinel delivery failures. Gateways perform a single attempt with a
// bounded timeout; retry policy belongs to the caller.
var (
	ErrDeliveryFailed = errors.New("delivery failed")
	ErrTimeout        = errors.New("delivery timed out")
)

// Gateway sends a text to a registered mobile number. Implementations must
// never write the message body to logs or error messages: the body carries
// the plaintext passcode.
type Gateway interface {
	Send(ctx context.Context, to domain.Mobile, text string) (DeliveryID, error)
}
