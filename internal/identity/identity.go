// Package identity exposes read-only citizen lookups for the OTP core.
package identity

import (
	"context"

	"otpgate/internal/identity/models"
	"otpgate/pkg/domain"
)

// Directory resolves a citizen identifier to its registered identity.
// Implementations return sentinel.ErrNotFound (wrapped) for unknown
// identifiers and wrapped infrastructure errors otherwise.
type Directory interface {
	Lookup(ctx context.Context, nationalID domain.NationalID) (*models.Identity, error)
}
