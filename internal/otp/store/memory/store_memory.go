package memory

import (
	"context"
	"fmt"
	"sync"

	"otpgate/internal/otp/models"
	"otpgate/pkg/domain"
	"otpgate/pkg/platform/sentinel"
)

// Store keeps passcode records in memory for tests/dev. It honors the same
// optimistic-versioning contract as the Postgres store so the lifecycle
// manager behaves identically against either.
type Store struct {
	mu      sync.RWMutex
	byID    map[string]*models.Record
	history map[domain.NationalID][]string // record IDs in issuance order
}

// New constructs an empty in-memory record store.
func New() *Store {
	return &Store{
		byID:    make(map[string]*models.Record),
		history: make(map[domain.NationalID][]string),
	}
}

func (s *Store) Create(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.ID.String()
	if _, exists := s.byID[key]; exists {
		return fmt.Errorf("record %s already exists: %w", key, sentinel.ErrConflict)
	}
	s.byID[key] = rec.Clone()
	s.history[rec.NationalID] = append(s.history[rec.NationalID], key)
	return nil
}

func (s *Store) Latest(_ context.Context, nationalID domain.NationalID) (*models.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.history[nationalID]
	if len(ids) == 0 {
		return nil, fmt.Errorf("no passcode record for identifier: %w", sentinel.ErrNotFound)
	}
	return s.byID[ids[len(ids)-1]].Clone(), nil
}

func (s *Store) Update(_ context.Context, rec *models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := rec.ID.String()
	stored, ok := s.byID[key]
	if !ok {
		return fmt.Errorf("record %s: %w", key, sentinel.ErrNotFound)
	}
	if stored.Version != rec.Version {
		return fmt.Errorf("record %s version %d superseded: %w", key, rec.Version, sentinel.ErrConflict)
	}

	rec.Version++
	s.byID[key] = rec.Clone()
	return nil
}
