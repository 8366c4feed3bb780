package scheduler

import (
	"context"
	"database/sql"
	"time"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/models"
)

// EventSource reads confirmed appointments owned by the clinic backend.
type EventSource interface {
	// Upcoming returns confirmed events starting in [from, to], ordered by start.
	Upcoming(ctx context.Context, from, to time.Time) ([]models.ClinicEvent, error)
	// ConfirmedBetween returns confirmed events in [from, to], ordered by staff then start.
	ConfirmedBetween(ctx context.Context, from, to time.Time) ([]models.ClinicEvent, error)
}

type PostgresEventSource struct {
	db *sql.DB
}

func NewPostgresEventSource(db *sql.DB) *PostgresEventSource {
	return &PostgresEventSource{db: db}
}

const eventsQuery = `SELECT event_code, patient_code, staff_code, starts_at, status FROM appointments
WHERE status = $1 AND starts_at >= $2 AND starts_at <= $3`

func (s *PostgresEventSource) Upcoming(ctx context.Context, from, to time.Time) ([]models.ClinicEvent, error) {
	return s.query(ctx, eventsQuery+` ORDER BY starts_at ASC`, from, to)
}

func (s *PostgresEventSource) ConfirmedBetween(ctx context.Context, from, to time.Time) ([]models.ClinicEvent, error) {
	return s.query(ctx, eventsQuery+` ORDER BY staff_code ASC, starts_at ASC`, from, to)
}

func (s *PostgresEventSource) query(ctx context.Context, query string, from, to time.Time) ([]models.ClinicEvent, error) {
	rows, err := s.db.QueryContext(ctx, query, models.EventStatusConfirmed, from, to)
	if err != nil {
		return nil, errors.NewQueryExecutionFailedError("appointments", err)
	}
	defer rows.Close()

	var events []models.ClinicEvent
	for rows.Next() {
		var e models.ClinicEvent
		if err := rows.Scan(&e.Code, &e.PatientCode, &e.StaffCode, &e.StartsAt, &e.Status); err != nil {
			return nil, errors.NewQueryExecutionFailedError("appointments", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewQueryExecutionFailedError("appointments", err)
	}
	return events, nil
}
