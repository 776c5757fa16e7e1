package store

import (
	"context"
	"fmt"
	"strings"
)

const schema = `
CREATE TABLE IF NOT EXISTS members (
	tenant_id       TEXT NOT NULL,
	id              TEXT NOT NULL,
	name            TEXT NOT NULL,
	group_id        TEXT NOT NULL DEFAULT '',
	division_id     TEXT NOT NULL DEFAULT '',
	organization_id TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (tenant_id, id)
);

CREATE TABLE IF NOT EXISTS events (
	tenant_id              TEXT NOT NULL,
	id                     TEXT NOT NULL,
	name                   TEXT NOT NULL,
	starts_at              {{ts}} NOT NULL,
	sessions               {{json}} NOT NULL DEFAULT '[]',
	late_tolerance_minutes INTEGER,
	status                 TEXT NOT NULL DEFAULT 'upcoming',
	actual_start_at        {{ts}},
	PRIMARY KEY (tenant_id, id)
);

CREATE INDEX IF NOT EXISTS idx_events_starts_at ON events (tenant_id, starts_at);

CREATE TABLE IF NOT EXISTS attendance (
	tenant_id    TEXT NOT NULL,
	event_id     TEXT NOT NULL,
	member_id    TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'absent',
	check_in_at  {{ts}},
	leave_reason TEXT NOT NULL DEFAULT '',
	logs         {{json}} NOT NULL DEFAULT '{}',
	updated_at   {{ts}} NOT NULL,
	PRIMARY KEY (tenant_id, event_id, member_id),
	FOREIGN KEY (tenant_id, event_id) REFERENCES events (tenant_id, id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_attendance_member ON attendance (tenant_id, member_id);

CREATE TABLE IF NOT EXISTS scan_events (
	id         TEXT PRIMARY KEY,
	tenant_id  TEXT NOT NULL,
	event_id   TEXT NOT NULL,
	member_id  TEXT NOT NULL,
	session_id TEXT NOT NULL,
	status     TEXT NOT NULL,
	source     TEXT NOT NULL DEFAULT '',
	scanned_at {{ts}} NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_scan_events_event ON scan_events (tenant_id, event_id, scanned_at);

CREATE TABLE IF NOT EXISTS devices (
	tenant_id  TEXT NOT NULL,
	device_id  TEXT NOT NULL,
	created_at {{ts}} NOT NULL,
	PRIMARY KEY (tenant_id, device_id)
);

CREATE TABLE IF NOT EXISTS refresh_tokens (
	device_id  TEXT NOT NULL,
	token      TEXT PRIMARY KEY,
	expires_at {{ts}} NOT NULL,
	revoked    BOOLEAN NOT NULL DEFAULT FALSE
);
`

// Migrate creates the tables used by the repository if they are missing.
func Migrate(ctx context.Context, db *DB) error {
	ts, js := "TIMESTAMPTZ", "JSONB"
	if db.Driver == DriverSQLite {
		ts, js = "DATETIME", "TEXT"
	}
	ddl := strings.NewReplacer("{{ts}}", ts, "{{json}}", js).Replace(schema)
	for _, stmt := range strings.Split(ddl, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.Client.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migrate: %w", err)
		}
	}
	return nil
}
