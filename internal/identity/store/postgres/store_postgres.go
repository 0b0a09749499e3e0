package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"otpgate/internal/identity/models"
	"otpgate/pkg/domain"
	"otpgate/pkg/platform/sentinel"
)

// Directory reads citizen identities from PostgreSQL. The table belongs to
// the registry; this store never writes to it.
type Directory struct {
	db *sql.DB
}

// New constructs a PostgreSQL-backed directory.
func New(db *sql.DB) *Directory {
	return &Directory{db: db}
}

// Schema mirrors the registry's citizens table for integration tests.
const Schema = `
CREATE TABLE IF NOT EXISTS citizens (
	national_id TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	mobile      TEXT NOT NULL
);
`

func (d *Directory) Lookup(ctx context.Context, nationalID domain.NationalID) (*models.Identity, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT national_id, name, mobile FROM citizens WHERE national_id = $1`,
		nationalID.String(),
	)

	var rawID, name, rawMobile string
	err := row.Scan(&rawID, &name, &rawMobile)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("identity %s: %w", nationalID.Masked(), sentinel.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("lookup identity: %w", err)
	}

	return &models.Identity{
		NationalID: domain.NationalID(rawID),
		Name:       name,
		Mobile:     domain.Mobile(rawMobile),
	}, nil
}
