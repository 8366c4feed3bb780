package directory

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/models"
)

func TestPostgresDirectory_Lookup(t *testing.T) {
	tests := []struct {
		name     string
		kind     models.RecipientKind
		code     string
		mock     func(mock sqlmock.Sqlmock)
		want     *models.Contact
		wantCode errors.ErrorCode
	}{
		{
			name: "patient found",
			kind: models.RecipientPatient,
			code: "P-0001",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM patients WHERE patient_code = \$1`).
					WithArgs("P-0001").
					WillReturnRows(sqlmock.NewRows([]string{"name", "email", "phone"}).AddRow("Nimal", "nimal@example.com", "+94770000000"))
			},
			want: &models.Contact{DisplayName: "Nimal", Email: "nimal@example.com", Phone: "+94770000000"},
		},
		{
			name: "staff without contact details",
			kind: models.RecipientStaff,
			code: "S-01",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM staff WHERE staff_code = \$1`).
					WithArgs("S-01").
					WillReturnRows(sqlmock.NewRows([]string{"name", "email", "phone"}).AddRow("Dr. Perera", "", ""))
			},
			want: &models.Contact{DisplayName: "Dr. Perera"},
		},
		{
			name: "patient missing",
			kind: models.RecipientPatient,
			code: "P-9999",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM patients`).WithArgs("P-9999").WillReturnError(sql.ErrNoRows)
			},
			wantCode: errors.ErrCodeRecipientNotFound,
		},
		{
			name: "query failure",
			kind: models.RecipientPatient,
			code: "P-0001",
			mock: func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(`FROM patients`).WithArgs("P-0001").WillReturnError(sql.ErrConnDone)
			},
			wantCode: errors.ErrCodeQueryExecutionFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			tt.mock(mock)

			got, err := NewPostgresDirectory(db).Lookup(context.Background(), tt.kind, tt.code)
			if tt.wantCode != "" {
				assert.True(t, errors.HasCode(err, tt.wantCode), "got %v", err)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestStaticDirectory(t *testing.T) {
	d := StaticDirectory{
		models.RecipientStaff: {"S-01": {DisplayName: "Dr. Perera"}},
	}

	c, err := d.Lookup(context.Background(), models.RecipientStaff, "S-01")
	require.NoError(t, err)
	assert.Equal(t, "Dr. Perera", c.DisplayName)

	_, err = d.Lookup(context.Background(), models.RecipientPatient, "S-01")
	assert.True(t, errors.HasCode(err, errors.ErrCodeRecipientNotFound))
}
