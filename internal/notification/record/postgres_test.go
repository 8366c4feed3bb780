package record

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/models"
)

var fixedNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func newMockStore(t *testing.T) (*PostgresStore, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	s := NewPostgresStore(db)
	s.now = func() time.Time { return fixedNow }
	return s, mock
}

func recordRow() *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "recipient_kind", "recipient_id", "template_key", "channel", "scheduled_for",
		"status", "sent_at", "meta", "error", "created_at", "updated_at",
	})
}

func TestPostgresStore_Create(t *testing.T) {
	s, mock := newMockStore(t)
	when := fixedNow.Add(24 * time.Hour)

	mock.ExpectExec(`INSERT INTO notification_records`).
		WithArgs(sqlmock.AnyArg(), "Patient", "P-0001", models.TemplateEventReminder24h, "auto",
			when, "queued", []byte(`{"eventCode":"EV-0042"}`), "EV-0042", fixedNow, fixedNow).
		WillReturnResult(sqlmock.NewResult(0, 1))

	rec := &models.NotificationRecord{
		RecipientKind: models.RecipientPatient,
		RecipientID:   "P-0001",
		TemplateKey:   models.TemplateEventReminder24h,
		ScheduledFor:  &when,
		Meta:          map[string]interface{}{"eventCode": "EV-0042"},
	}
	id, err := s.Create(context.Background(), rec)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, id)
	assert.Len(t, id, 36)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Exists(t *testing.T) {
	s, mock := newMockStore(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM notification_records`).
		WithArgs(models.TemplateEventReminder24h, "Patient", "P-0001", "EV-0042").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ok, err := s.Exists(context.Background(), Filter{
		TemplateKey:    models.TemplateEventReminder24h,
		RecipientKind:  models.RecipientPatient,
		RecipientID:    "P-0001",
		CorrelationKey: "EV-0042",
	})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindDue(t *testing.T) {
	s, mock := newMockStore(t)
	due := fixedNow.Add(-time.Minute)

	mock.ExpectQuery(`FROM notification_records WHERE status = \$1 AND scheduled_for IS NOT NULL AND scheduled_for <= \$2 ORDER BY scheduled_for ASC LIMIT \$3`).
		WithArgs("queued", fixedNow, 200).
		WillReturnRows(recordRow().AddRow(
			"0b6f3c1e-8a4e-4c55-9a1d-3f4b0f1b2c3d", "Patient", "P-0001", models.TemplateEventReminder24h, "auto",
			due, "queued", nil, []byte(`{"eventCode":"EV-0042","time":"10:30"}`), nil, fixedNow, fixedNow,
		))

	recs, err := s.FindDue(context.Background(), fixedNow, 200)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.StatusQueued, recs[0].Status)
	assert.Equal(t, due, *recs[0].ScheduledFor)
	assert.Nil(t, recs[0].SentAt)
	assert.Equal(t, "10:30", recs[0].Meta["time"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_FindDueDefaultsLimit(t *testing.T) {
	for _, limit := range []int{0, -1} {
		s, mock := newMockStore(t)
		mock.ExpectQuery(`FROM notification_records WHERE status = \$1 .* LIMIT \$3`).
			WithArgs("queued", fixedNow, DefaultDueLimit).
			WillReturnRows(recordRow())

		recs, err := s.FindDue(context.Background(), fixedNow, limit)
		require.NoError(t, err)
		assert.Empty(t, recs)
		assert.NoError(t, mock.ExpectationsWereMet())
	}
}

func TestPostgresStore_MarkSent(t *testing.T) {
	tests := []struct {
		name     string
		affected int64
		want     bool
	}{
		{name: "non-terminal record transitions", affected: 1, want: true},
		{name: "terminal record is left alone", affected: 0, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, mock := newMockStore(t)
			mock.ExpectExec(`UPDATE notification_records SET status = \$2, channel = \$3, sent_at = \$4, error = NULL, updated_at = \$5 WHERE id = \$1 AND status = \$6`).
				WithArgs("rec-1", "sent", "email", fixedNow, fixedNow, "queued").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			ok, err := s.MarkSent(context.Background(), "rec-1", models.ChannelEmail, fixedNow)
			require.NoError(t, err)
			assert.Equal(t, tt.want, ok)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestPostgresStore_MarkFailed(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectExec(`UPDATE notification_records SET status = \$2, error = \$3`).
		WithArgs("rec-1", "failed", "timeout", fixedNow, "queued").
		WillReturnResult(sqlmock.NewResult(0, 1))

	ok, err := s.MarkFailed(context.Background(), "rec-1", "timeout")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_Get(t *testing.T) {
	s, mock := newMockStore(t)
	sentAt := fixedNow.Add(-time.Hour)

	mock.ExpectQuery(`FROM notification_records WHERE id = \$1`).
		WithArgs("rec-1").
		WillReturnRows(recordRow().AddRow(
			"rec-1", "Staff", "S-01", models.TemplateDailyRundown, "log",
			nil, "sent", sentAt, []byte(`{}`), nil, fixedNow, fixedNow,
		))
	mock.ExpectQuery(`FROM notification_records WHERE id = \$1`).
		WithArgs("missing").
		WillReturnError(sql.ErrNoRows)

	rec, err := s.Get(context.Background(), "rec-1")
	require.NoError(t, err)
	assert.Equal(t, models.RecipientStaff, rec.RecipientKind)
	assert.Equal(t, models.ChannelLog, rec.Channel)
	assert.Nil(t, rec.ScheduledFor)
	assert.Equal(t, sentAt, *rec.SentAt)

	_, err = s.Get(context.Background(), "missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeRecordNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryError(t *testing.T) {
	s, mock := newMockStore(t)
	mock.ExpectQuery(`SELECT EXISTS`).WillReturnError(sql.ErrConnDone)

	_, err := s.Exists(context.Background(), Filter{})
	assert.True(t, errors.HasCode(err, errors.ErrCodeQueryExecutionFailed))
}
