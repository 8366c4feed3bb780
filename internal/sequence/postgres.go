package sequence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore keeps counters in the sequence_counters table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const incrementQuery = `INSERT INTO sequence_counters (scope, value) VALUES ($1, 1)
ON CONFLICT (scope) DO UPDATE SET value = sequence_counters.value + 1, updated_at = NOW()
RETURNING value`

func (s *PostgresStore) Increment(ctx context.Context, scope string) (int64, error) {
	var value int64
	if err := s.db.QueryRowContext(ctx, incrementQuery, scope).Scan(&value); err != nil {
		return 0, fmt.Errorf("increment %s: %w", scope, err)
	}
	return value, nil
}

func (s *PostgresStore) Current(ctx context.Context, scope string) (int64, error) {
	var value int64
	err := s.db.QueryRowContext(ctx, `SELECT value FROM sequence_counters WHERE scope = $1`, scope).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", scope, err)
	}
	return value, nil
}

func (s *PostgresStore) Set(ctx context.Context, scope string, value int64) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO sequence_counters (scope, value) VALUES ($1, $2)
ON CONFLICT (scope) DO UPDATE SET value = EXCLUDED.value, updated_at = NOW()`, scope, value)
	if err != nil {
		return fmt.Errorf("set %s: %w", scope, err)
	}
	return nil
}

// CodeSource names the table and columns that hold codes of one kind.
type CodeSource struct {
	Table       string
	CodeColumn  string
	OwnerColumn string
}

var DefaultCodeSources = map[string]CodeSource{
	KindPatient.Name:       {Table: "patients", CodeColumn: "patient_code"},
	KindTreatmentPlan.Name: {Table: "treatment_plans", CodeColumn: "plan_code", OwnerColumn: "patient_code"},
	KindClinicEvent.Name:   {Table: "clinic_events", CodeColumn: "event_code"},
	KindInquiry.Name:       {Table: "inquiries", CodeColumn: "inquiry_code"},
}

// PostgresMaxObserver scans domain tables for the largest numeric suffix of a kind's codes.
type PostgresMaxObserver struct {
	db      *sql.DB
	sources map[string]CodeSource
}

func NewPostgresMaxObserver(db *sql.DB, sources map[string]CodeSource) *PostgresMaxObserver {
	if sources == nil {
		sources = DefaultCodeSources
	}
	return &PostgresMaxObserver{db: db, sources: sources}
}

func (o *PostgresMaxObserver) MaxObserved(ctx context.Context, scope string) (int64, error) {
	kind, owner, ok := ParseScope(scope)
	if !ok {
		return 0, fmt.Errorf("scope %q has no known code kind", scope)
	}
	src, ok := o.sources[kind.Name]
	if !ok {
		return 0, fmt.Errorf("no code source for kind %s", kind.Name)
	}

	// identifiers come from the static source table, never from input
	query := fmt.Sprintf(
		`SELECT COALESCE(MAX(CAST(SPLIT_PART(%[2]s, '-', 2) AS BIGINT)), 0) FROM %[1]s WHERE %[2]s ~ '^[A-Z]+-[0-9]+$'`,
		src.Table, src.CodeColumn,
	)
	args := []interface{}{}
	if kind.Owned {
		query += fmt.Sprintf(" AND %s = $1", src.OwnerColumn)
		args = append(args, owner)
	}

	var maxN int64
	if err := o.db.QueryRowContext(ctx, query, args...).Scan(&maxN); err != nil {
		return 0, fmt.Errorf("max observed for %s: %w", scope, err)
	}
	return maxN, nil
}
