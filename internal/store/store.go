// Package store owns all row storage. It exposes the five sheets — events,
// shortlinks, analytics, sponsors, diagnostics — as typed operations over
// Postgres. Services never touch *sql.DB directly.
package store

import (
	"context"
	"database/sql"
	"time"
)

// Store provides database operations for all sheets.
type Store struct {
	db *sql.DB
}

// New creates a store over an open database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Ping verifies database connectivity for the status endpoint.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return s.db.PingContext(ctx)
}

// DB exposes the raw handle for the advisory-lock fallback only.
func (s *Store) DB() *sql.DB { return s.db }

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id          TEXT NOT NULL,
	tenant_id   TEXT NOT NULL,
	template_id TEXT NOT NULL,
	data_json   TEXT NOT NULL,
	created_at  TIMESTAMPTZ NOT NULL,
	slug        TEXT NOT NULL,
	PRIMARY KEY (tenant_id, id)
);
CREATE UNIQUE INDEX IF NOT EXISTS events_tenant_slug ON events (tenant_id, slug);

CREATE TABLE IF NOT EXISTS shortlinks (
	token      TEXT PRIMARY KEY,
	target_url TEXT NOT NULL,
	event_id   TEXT NOT NULL DEFAULT '',
	sponsor_id TEXT NOT NULL DEFAULT '',
	surface    TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	tenant_id  TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS analytics (
	ts                  TIMESTAMPTZ NOT NULL,
	event_id            TEXT NOT NULL,
	surface             TEXT NOT NULL DEFAULT '',
	metric              TEXT NOT NULL,
	sponsor_id          TEXT NOT NULL DEFAULT '',
	value               DOUBLE PRECISION NOT NULL DEFAULT 0,
	token               TEXT NOT NULL DEFAULT '',
	user_agent          TEXT NOT NULL DEFAULT '',
	session_id          TEXT NOT NULL DEFAULT '',
	visible_sponsor_ids TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS analytics_event ON analytics (event_id);

CREATE TABLE IF NOT EXISTS sponsors (
	id        TEXT NOT NULL,
	tenant_id TEXT NOT NULL,
	name      TEXT NOT NULL,
	tier      TEXT NOT NULL DEFAULT '',
	logo_url  TEXT NOT NULL DEFAULT '',
	link_url  TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS diag (
	seq      BIGSERIAL PRIMARY KEY,
	ts       TIMESTAMPTZ NOT NULL,
	level    TEXT NOT NULL,
	where_at TEXT NOT NULL,
	msg      TEXT NOT NULL,
	meta     TEXT NOT NULL DEFAULT ''
);
`

// EnsureSchema creates the sheet tables if they do not exist.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}
