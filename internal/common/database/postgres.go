package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"clinic-workers/internal/common/config"
	"clinic-workers/internal/common/errors"

	_ "github.com/lib/pq"
)

// PostgresClient owns the shared *sql.DB used by the Postgres-backed stores.
type PostgresClient struct {
	DB *sql.DB
}

func NewPostgres(cfg config.PostgresConfig) (*PostgresClient, error) {
	db, err := sql.Open("postgres", cfg.GetDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdle)
	db.SetConnMaxLifetime(5 * time.Minute)
	db.SetConnMaxIdleTime(5 * time.Minute)

	return &PostgresClient{DB: db}, nil
}

func (c *PostgresClient) Ping(ctx context.Context) error {
	if err := c.DB.PingContext(ctx); err != nil {
		return errors.NewDatabaseConnectionFailedError(fmt.Errorf("postgres ping failed: %w", err))
	}
	return nil
}

func (c *PostgresClient) Close() error {
	if c.DB != nil {
		return c.DB.Close()
	}
	return nil
}

// Schema is applied at startup. Every statement is idempotent.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS sequence_counters (
		scope      TEXT PRIMARY KEY,
		value      BIGINT NOT NULL DEFAULT 0 CHECK (value >= 0),
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS notification_records (
		id              UUID PRIMARY KEY,
		recipient_kind  TEXT NOT NULL,
		recipient_id    TEXT NOT NULL,
		template_key    TEXT NOT NULL,
		channel         TEXT NOT NULL,
		scheduled_for   TIMESTAMPTZ,
		status          TEXT NOT NULL,
		sent_at         TIMESTAMPTZ,
		meta            JSONB NOT NULL DEFAULT '{}'::jsonb,
		correlation_key TEXT NOT NULL DEFAULT '',
		error           TEXT,
		created_at      TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at      TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_records_due
		ON notification_records (status, scheduled_for)`,
	`CREATE INDEX IF NOT EXISTS idx_notification_records_dedup
		ON notification_records (template_key, recipient_kind, recipient_id, correlation_key)`,
}

// Migrate applies Schema.
func (c *PostgresClient) Migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := c.DB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}
