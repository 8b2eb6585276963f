// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
)

// schema is the one-shot migration applied at startup. All timestamps are
// RFC 3339 UTC TEXT.
const schema = `
CREATE TABLE IF NOT EXISTS locations (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    gym_name            TEXT NOT NULL,
    timezone            TEXT NOT NULL,
    business_hours_json TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS leads (
    id                    INTEGER PRIMARY KEY AUTOINCREMENT,
    phone_e164            TEXT NOT NULL,
    first_name            TEXT,
    last_name             TEXT,
    consent               INTEGER NOT NULL DEFAULT 0,
    consent_at            TEXT,
    consent_source        TEXT,
    status                TEXT,
    opted_out             INTEGER NOT NULL DEFAULT 0,
    needs_staff_attention INTEGER NOT NULL DEFAULT 0,
    last_contact_at       TEXT,
    next_action_at        TEXT,
    created_at            TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_leads_phone ON leads(phone_e164);
CREATE INDEX IF NOT EXISTS idx_leads_next_action ON leads(next_action_at);

CREATE TABLE IF NOT EXISTS conversations (
    id               INTEGER PRIMARY KEY AUTOINCREMENT,
    lead_id          INTEGER NOT NULL UNIQUE REFERENCES leads(id),
    state            TEXT NOT NULL,
    state_json       TEXT NOT NULL,
    last_inbound_at  TEXT,
    last_outbound_at TEXT,
    repair_attempts  INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS messages (
    id              INTEGER PRIMARY KEY AUTOINCREMENT,
    conversation_id INTEGER NOT NULL REFERENCES conversations(id),
    direction       TEXT NOT NULL,
    body            TEXT NOT NULL,
    status          TEXT NOT NULL,
    created_at      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_direction_created ON messages(direction, created_at);

CREATE TABLE IF NOT EXISTS appointments (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    lead_id    INTEGER NOT NULL REFERENCES leads(id),
    start_at   TEXT NOT NULL,
    end_at     TEXT NOT NULL,
    status     TEXT NOT NULL,
    created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_appointments_status_start ON appointments(status, start_at);

CREATE TABLE IF NOT EXISTS scheduled_jobs (
    id           INTEGER PRIMARY KEY AUTOINCREMENT,
    job_type     TEXT NOT NULL,
    target_id    INTEGER,
    execute_at   TEXT NOT NULL,
    status       TEXT NOT NULL,
    payload_json TEXT NOT NULL,
    created_at   TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_jobs_status_execute ON scheduled_jobs(status, execute_at);

CREATE TABLE IF NOT EXISTS settings (
    key        TEXT PRIMARY KEY,
    value      TEXT NOT NULL,
    updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
    id            INTEGER PRIMARY KEY AUTOINCREMENT,
    action_type   TEXT NOT NULL,
    target_type   TEXT NOT NULL,
    target_id     TEXT,
    request_json  TEXT NOT NULL,
    response_json TEXT,
    success       INTEGER NOT NULL,
    error_message TEXT,
    created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_action_created ON audit_log(action_type, created_at);
`

// DefaultGymName and friends seed the demo location when no row exists.
const (
	DefaultGymName  = "Demo Gym Downtown"
	DefaultTimezone = "America/New_York"
)

// DefaultBusinessHoursJSON is Mon-Fri 09:00-17:00, Sat 10:00-14:00, Sun
// closed.
const DefaultBusinessHoursJSON = `{"mon":[["09:00","17:00"]],"tue":[["09:00","17:00"]],"wed":[["09:00","17:00"]],"thu":[["09:00","17:00"]],"fri":[["09:00","17:00"]],"sat":[["10:00","14:00"]],"sun":[]}`

// Seed describes the location row inserted on first start.
type Seed struct {
	GymName           string
	Timezone          string
	BusinessHoursJSON string
}

// DefaultSeed returns the demo location seed.
func DefaultSeed() Seed {
	return Seed{
		GymName:           DefaultGymName,
		Timezone:          DefaultTimezone,
		BusinessHoursJSON: DefaultBusinessHoursJSON,
	}
}

// Migrate applies the schema and seeds the location and kill switch setting
// if missing. It is safe to run on every start.
func (s *Store) Migrate(ctx context.Context, seed Seed, now string) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}

	var locations int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM locations`).Scan(&locations); err != nil {
		return fmt.Errorf("store: count locations: %w", err)
	}
	if locations == 0 {
		if _, err := s.db.ExecContext(ctx,
			`INSERT INTO locations (gym_name, timezone, business_hours_json) VALUES (?, ?, ?)`,
			seed.GymName, seed.Timezone, seed.BusinessHoursJSON,
		); err != nil {
			return fmt.Errorf("store: seed location: %w", err)
		}
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES ('kill_switch', 'false', ?)
		 ON CONFLICT(key) DO NOTHING`, now,
	); err != nil {
		return fmt.Errorf("store: seed kill switch: %w", err)
	}

	return nil
}
