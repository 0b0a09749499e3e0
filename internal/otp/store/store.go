// Package store defines persistence for passcode records.
//
// Error Contract:
// All store methods follow this error pattern:
// - Return sentinel.ErrNotFound (wrapped) when no record exists
// - Return sentinel.ErrConflict (wrapped) when an optimistic update loses a race
// - Return nil for successful operations
// - Return wrapped errors with context for infrastructure failures
package store

import (
	"context"

	"otpgate/internal/otp/models"
	"otpgate/pkg/domain"
)

// Store persists passcode records. Records are never deleted by the core;
// retention is an external concern.
type Store interface {
	// Create persists a new record. It does not touch prior records for the
	// same identifier: older issuances become non-authoritative by recency.
	Create(ctx context.Context, rec *models.Record) error

	// Latest returns a snapshot of the most recently issued record for the
	// identifier, regardless of its current state.
	Latest(ctx context.Context, nationalID domain.NationalID) (*models.Record, error)

	// Update persists state/attempt changes. The write succeeds only when the
	// persisted version still matches rec.Version; on success both sides are
	// incremented. Two concurrent verifications of the same record can
	// therefore never both win.
	Update(ctx context.Context, rec *models.Record) error
}
