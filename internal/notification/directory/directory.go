// Package directory resolves recipient codes to contact details.
package directory

import (
	"context"
	"database/sql"
	stderrors "errors"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/models"
)

// Directory looks up contact details. A missing recipient yields a RECIPIENT_NOT_FOUND error.
type Directory interface {
	Lookup(ctx context.Context, kind models.RecipientKind, code string) (*models.Contact, error)
}

var lookupQueries = map[models.RecipientKind]string{
	models.RecipientPatient: `SELECT name, COALESCE(email, ''), COALESCE(phone, '') FROM patients WHERE patient_code = $1`,
	models.RecipientStaff:   `SELECT name, COALESCE(email, ''), COALESCE(phone, '') FROM staff WHERE staff_code = $1`,
}

// PostgresDirectory reads the patients and staff tables owned by the clinic backend.
type PostgresDirectory struct {
	db *sql.DB
}

func NewPostgresDirectory(db *sql.DB) *PostgresDirectory {
	return &PostgresDirectory{db: db}
}

func (d *PostgresDirectory) Lookup(ctx context.Context, kind models.RecipientKind, code string) (*models.Contact, error) {
	query, ok := lookupQueries[kind]
	if !ok {
		return nil, errors.NewValidationError("unknown recipient kind: " + string(kind))
	}

	var c models.Contact
	err := d.db.QueryRowContext(ctx, query, code).Scan(&c.DisplayName, &c.Email, &c.Phone)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewRecipientNotFoundError(string(kind), code)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("directory.lookup", err)
	}
	return &c, nil
}

// StaticDirectory serves contacts from a fixed map keyed by kind and code.
type StaticDirectory map[models.RecipientKind]map[string]models.Contact

func (d StaticDirectory) Lookup(_ context.Context, kind models.RecipientKind, code string) (*models.Contact, error) {
	c, ok := d[kind][code]
	if !ok {
		return nil, errors.NewRecipientNotFoundError(string(kind), code)
	}
	return &c, nil
}
