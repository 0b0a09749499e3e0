package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"otpgate/internal/otp/models"
	"otpgate/pkg/domain"
	"otpgate/pkg/platform/sentinel"
)

// Store persists passcode records in PostgreSQL. Optimistic versioning via
// the version column gives the per-record atomic update the verification path
// depends on.
type Store struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed record store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Schema is the DDL for the otp_records table. Applied by migrations in
// deployment; exposed here so integration tests can create the table.
const Schema = `
CREATE TABLE IF NOT EXISTS otp_records (
	id          UUID PRIMARY KEY,
	national_id TEXT NOT NULL,
	digest      BYTEA NOT NULL,
	salt        BYTEA NOT NULL,
	issued_at   TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL,
	attempts    INT NOT NULL DEFAULT 0,
	state       TEXT NOT NULL,
	version     BIGINT NOT NULL DEFAULT 1
);
CREATE INDEX IF NOT EXISTS otp_records_latest_idx ON otp_records (national_id, issued_at DESC);
`

func (s *Store) Create(ctx context.Context, rec *models.Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO otp_records (id, national_id, digest, salt, issued_at, expires_at, attempts, state, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.NationalID.String(), rec.Digest, rec.Salt,
		rec.IssuedAt, rec.ExpiresAt, rec.Attempts, string(rec.State), rec.Version,
	)
	if err != nil {
		return fmt.Errorf("create passcode record: %w", err)
	}
	return nil
}

func (s *Store) Latest(ctx context.Context, nationalID domain.NationalID) (*models.Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, national_id, digest, salt, issued_at, expires_at, attempts, state, version
		FROM otp_records
		WHERE national_id = $1
		ORDER BY issued_at DESC, id DESC
		LIMIT 1`,
		nationalID.String(),
	)

	var (
		rec        models.Record
		id         uuid.UUID
		rawID      string
		stateValue string
	)
	err := row.Scan(&id, &rawID, &rec.Digest, &rec.Salt,
		&rec.IssuedAt, &rec.ExpiresAt, &rec.Attempts, &stateValue, &rec.Version)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("no passcode record for identifier: %w", sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("fetch latest passcode record: %w", err)
	}

	rec.ID = id
	rec.NationalID = domain.NationalID(rawID)
	rec.State = models.State(stateValue)
	return &rec, nil
}

func (s *Store) Update(ctx context.Context, rec *models.Record) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE otp_records
		SET attempts = $1, state = $2, version = version + 1
		WHERE id = $3 AND version = $4`,
		rec.Attempts, string(rec.State), rec.ID, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("update passcode record: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update passcode record: %w", err)
	}
	if affected == 0 {
		// Either the record vanished or another writer got there first.
		var exists bool
		if err := s.db.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM otp_records WHERE id = $1)`, rec.ID,
		).Scan(&exists); err != nil {
			return fmt.Errorf("update passcode record: %w", err)
		}
		if !exists {
			return fmt.Errorf("record %s: %w", rec.ID, sentinel.ErrNotFound)
		}
		return fmt.Errorf("record %s version %d superseded: %w", rec.ID, rec.Version, sentinel.ErrConflict)
	}

	rec.Version++
	return nil
}
