//go:build integration

package postgres_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"otpgate/internal/otp/models"
	"otpgate/internal/otp/store/postgres"
	"otpgate/pkg/domain"
	"otpgate/pkg/platform/sentinel"
	"otpgate/pkg/testutil/containers"
)

const testNationalID = domain.NationalID("111122223333")

type PostgresStoreSuite struct {
	suite.Suite
	ctx      context.Context
	postgres *containers.PostgresContainer
	store    *postgres.Store
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.ctx = context.Background()
	s.postgres = containers.NewPostgresContainer(s.T(), postgres.Schema)
	s.store = postgres.New(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "otp_records"))
}

func (s *PostgresStoreSuite) newRecord(issuedAt time.Time) *models.Record {
	return models.NewRecord(testNationalID, []byte("digest"), []byte("salt"), issuedAt, 5*time.Minute)
}

func (s *PostgresStoreSuite) TestCreateAndLatest() {
	now := time.Now().UTC().Truncate(time.Microsecond)

	_, err := s.store.Latest(s.ctx, testNationalID)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)

	first := s.newRecord(now)
	s.Require().NoError(s.store.Create(s.ctx, first))

	second := s.newRecord(now.Add(time.Second))
	s.Require().NoError(s.store.Create(s.ctx, second))

	latest, err := s.store.Latest(s.ctx, testNationalID)
	s.Require().NoError(err)
	s.Equal(second.ID, latest.ID)
	s.Equal(models.StatePending, latest.State)
	s.Equal([]byte("digest"), latest.Digest)
	s.True(latest.ExpiresAt.Equal(second.ExpiresAt))
}

func (s *PostgresStoreSuite) TestLatestIgnoresOtherIdentifiers() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	other := models.NewRecord("444455556666", []byte("d"), []byte("s"), now.Add(time.Hour), 5*time.Minute)
	s.Require().NoError(s.store.Create(s.ctx, other))

	mine := s.newRecord(now)
	s.Require().NoError(s.store.Create(s.ctx, mine))

	latest, err := s.store.Latest(s.ctx, testNationalID)
	s.Require().NoError(err)
	s.Equal(mine.ID, latest.ID)
}

func (s *PostgresStoreSuite) TestUpdate() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := s.newRecord(now)
	s.Require().NoError(s.store.Create(s.ctx, rec))

	rec.MarkConsumed()
	s.Require().NoError(s.store.Update(s.ctx, rec))
	s.Equal(int64(2), rec.Version)

	latest, err := s.store.Latest(s.ctx, testNationalID)
	s.Require().NoError(err)
	s.Equal(models.StateConsumed, latest.State)
	s.Equal(int64(2), latest.Version)
}

func (s *PostgresStoreSuite) TestUpdateStaleVersionConflicts() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := s.newRecord(now)
	s.Require().NoError(s.store.Create(s.ctx, rec))

	winner := rec.Clone()
	winner.MarkConsumed()
	s.Require().NoError(s.store.Update(s.ctx, winner))

	loser := rec.Clone()
	loser.RegisterFailure(5)
	err := s.store.Update(s.ctx, loser)
	s.Require().ErrorIs(err, sentinel.ErrConflict)
}

func (s *PostgresStoreSuite) TestUpdateMissingRecord() {
	rec := s.newRecord(time.Now().UTC())
	err := s.store.Update(s.ctx, rec)
	s.Require().ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestConcurrentUpdateSingleWinner() {
	now := time.Now().UTC().Truncate(time.Microsecond)
	rec := s.newRecord(now)
	s.Require().NoError(s.store.Create(s.ctx, rec))

	const goroutines = 20
	var wg sync.WaitGroup
	var wins atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			attempt := rec.Clone()
			attempt.MarkConsumed()
			if err := s.store.Update(s.ctx, attempt); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(1), wins.Load())
}
