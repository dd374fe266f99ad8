package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// DB wraps sql.DB for Postgres using pgx.
type DB struct {
	Client *sql.DB
}

// NewDB creates a Postgres connection with sane defaults.
func NewDB(connString string) (*DB, error) {
	db, err := sql.Open("pgx", connString)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)
	return &DB{Client: db}, db.PingContext(context.Background())
}

// Migrate creates the tables the queue service needs. It is idempotent.
func (d *DB) Migrate(ctx context.Context) error {
	for i, stmt := range schema {
		if _, err := d.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate step %d: %w", i, err)
		}
	}
	return nil
}

// Healthy verifies database connectivity.
func (d *DB) Healthy(ctx context.Context) bool {
	if d == nil || d.Client == nil {
		return false
	}
	return d.Client.PingContext(ctx) == nil
}

// Close closes the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.Client == nil {
		return nil
	}
	return d.Client.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS activities (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL,
		type                TEXT NOT NULL DEFAULT 'queue',
		courses             TEXT[] NOT NULL DEFAULT '{}',
		last_channel_number INTEGER NOT NULL DEFAULT 0,
		created_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS registrations (
		id                   TEXT PRIMARY KEY,
		activity_id          TEXT NOT NULL REFERENCES activities(id),
		full_name            TEXT NOT NULL,
		student_id           TEXT NOT NULL DEFAULT '',
		national_id          TEXT NOT NULL,
		course               TEXT,
		status               TEXT NOT NULL DEFAULT 'registered',
		queue_number         INTEGER,
		display_queue_number TEXT NOT NULL DEFAULT '',
		called_at            TIMESTAMPTZ,
		line_user_id         TEXT,
		created_at           TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_activity_national ON registrations(activity_id, national_id)`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_waiting ON registrations(activity_id, course, status, queue_number)`,
	`CREATE INDEX IF NOT EXISTS idx_registrations_display ON registrations(activity_id, display_queue_number)`,
	`CREATE TABLE IF NOT EXISTS queue_channels (
		id                           TEXT PRIMARY KEY,
		activity_id                  TEXT NOT NULL REFERENCES activities(id),
		channel_number               INTEGER NOT NULL,
		channel_name                 TEXT NOT NULL,
		serving_course               TEXT,
		current_queue_number         INTEGER,
		current_display_queue_number TEXT,
		current_student_name         TEXT,
		updated_at                   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		UNIQUE (activity_id, channel_number)
	)`,
	`CREATE TABLE IF NOT EXISTS student_profiles (
		national_id  TEXT PRIMARY KEY,
		line_user_id TEXT NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS settings (
		id             TEXT PRIMARY KEY,
		on_queue_call  BOOLEAN NOT NULL DEFAULT TRUE,
		updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
}
