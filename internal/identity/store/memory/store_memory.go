package memory

import (
	"context"
	"fmt"
	"sync"

	"otpgate/internal/identity/models"
	"otpgate/pkg/domain"
	"otpgate/pkg/platform/sentinel"
)

// Directory is an in-memory citizen directory for tests/dev.
type Directory struct {
	mu       sync.RWMutex
	citizens map[domain.NationalID]*models.Identity
}

// New constructs an empty in-memory directory.
func New() *Directory {
	return &Directory{citizens: make(map[domain.NationalID]*models.Identity)}
}

// Seed loads identities, replacing any existing entries with the same key.
func (d *Directory) Seed(identities ...*models.Identity) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, ident := range identities {
		cp := *ident
		d.citizens[ident.NationalID] = &cp
	}
}

func (d *Directory) Lookup(_ context.Context, nationalID domain.NationalID) (*models.Identity, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	ident, ok := d.citizens[nationalID]
	if !ok {
		return nil, fmt.Errorf("identity %s: %w", nationalID.Masked(), sentinel.ErrNotFound)
	}
	cp := *ident
	return &cp, nil
}
