package record

import (
	"context"
	"database/sql"
	"encoding/json"
	stderrors "errors"
	"time"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/models"
)

const recordColumns = `id, recipient_kind, recipient_id, template_key, channel, scheduled_for, status, sent_at, meta, error, created_at, updated_at`

// PostgresStore keeps records in the notification_records table.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, now: func() time.Time { return time.Now().UTC() }}
}

func (s *PostgresStore) Create(ctx context.Context, rec *models.NotificationRecord) (string, error) {
	prepare(rec, s.now())

	meta, err := json.Marshal(rec.Meta)
	if err != nil {
		return "", errors.NewValidationError("meta is not JSON encodable: " + err.Error())
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO notification_records
(id, recipient_kind, recipient_id, template_key, channel, scheduled_for, status, meta, correlation_key, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		rec.ID, string(rec.RecipientKind), rec.RecipientID, rec.TemplateKey, string(rec.Channel),
		nullTime(rec.ScheduledFor), string(rec.Status), meta, rec.CorrelationKey(), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return "", errors.NewQueryExecutionFailedError("record.create", err)
	}
	return rec.ID, nil
}

func (s *PostgresStore) Exists(ctx context.Context, f Filter) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM notification_records
WHERE template_key = $1 AND recipient_kind = $2 AND recipient_id = $3 AND correlation_key = $4)`,
		f.TemplateKey, string(f.RecipientKind), f.RecipientID, f.CorrelationKey,
	).Scan(&exists)
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("record.exists", err)
	}
	return exists, nil
}

func (s *PostgresStore) FindDue(ctx context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM notification_records
WHERE status = $1 AND scheduled_for IS NOT NULL AND scheduled_for <= $2
ORDER BY scheduled_for ASC LIMIT $3`, string(models.StatusQueued), now, dueLimit(limit))
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("record.find_due", err)
	}
	defer rows.Close()

	var due []*models.NotificationRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.NewQueryExecutionFailedError("record.find_due", err)
		}
		due = append(due, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("record.find_due", err)
	}
	return due, nil
}

func (s *PostgresStore) MarkSent(ctx context.Context, id string, channel models.Channel, sentAt time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notification_records
SET status = $2, channel = $3, sent_at = $4, error = NULL, updated_at = $5
WHERE id = $1 AND status = $6`,
		id, string(models.StatusSent), string(channel), sentAt, s.now(), string(models.StatusQueued))
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("record.mark_sent", err)
	}
	return affected(res)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id string, errText string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE notification_records
SET status = $2, error = $3, updated_at = $4
WHERE id = $1 AND status = $5`,
		id, string(models.StatusFailed), errText, s.now(), string(models.StatusQueued))
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("record.mark_failed", err)
	}
	return affected(res)
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*models.NotificationRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM notification_records WHERE id = $1`, id)
	rec, err := scanRecord(row)
	if stderrors.Is(err, sql.ErrNoRows) {
		return nil, errors.NewRecordNotFoundError(id)
	}
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("record.get", err)
	}
	return rec, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*models.NotificationRecord, error) {
	var (
		rec          models.NotificationRecord
		kind         string
		channel      string
		status       string
		scheduledFor sql.NullTime
		sentAt       sql.NullTime
		meta         []byte
		errText      sql.NullString
	)
	if err := row.Scan(&rec.ID, &kind, &rec.RecipientID, &rec.TemplateKey, &channel,
		&scheduledFor, &status, &sentAt, &meta, &errText, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	rec.RecipientKind = models.RecipientKind(kind)
	rec.Channel = models.Channel(channel)
	rec.Status = models.Status(status)
	if scheduledFor.Valid {
		t := scheduledFor.Time
		rec.ScheduledFor = &t
	}
	if sentAt.Valid {
		t := sentAt.Time
		rec.SentAt = &t
	}
	if errText.Valid {
		e := errText.String
		rec.Error = &e
	}
	rec.Meta = map[string]interface{}{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &rec.Meta); err != nil {
			return nil, err
		}
	}
	return &rec, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, errors.NewQueryExecutionFailedError("record.rows_affected", err)
	}
	return n > 0, nil
}
