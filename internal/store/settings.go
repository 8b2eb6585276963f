// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// KillSwitchKey is the only recognized settings key.
const KillSwitchKey = "kill_switch"

// Setting returns the value for key, or "" if absent.
func (q *Queries) Setting(ctx context.Context, key string) (string, error) {
	var value string
	err := q.db.QueryRowContext(ctx,
		`SELECT value FROM settings WHERE key=? LIMIT 1`, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: load setting %s: %w", key, err)
	}
	return value, nil
}

// UpsertSetting writes key=value with an updated_at stamp.
func (q *Queries) UpsertSetting(ctx context.Context, key, value, now string) error {
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value=excluded.value, updated_at=excluded.updated_at`,
		key, value, now,
	); err != nil {
		return fmt.Errorf("store: upsert setting %s: %w", key, err)
	}
	return nil
}

// KillSwitchEnabled reports whether the durable kill switch is on.
func (q *Queries) KillSwitchEnabled(ctx context.Context) (bool, error) {
	value, err := q.Setting(ctx, KillSwitchKey)
	if err != nil {
		return false, err
	}
	return value == "true" || value == "1", nil
}
