// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gymops/leadpilot/internal/validate"
)

// Location returns the single configured location.
func (q *Queries) Location(ctx context.Context) (Location, error) {
	var loc Location
	err := q.db.QueryRowContext(ctx,
		`SELECT id, gym_name, timezone, business_hours_json FROM locations ORDER BY id LIMIT 1`,
	).Scan(&loc.ID, &loc.GymName, &loc.Timezone, &loc.BusinessHoursJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return Location{}, validate.New("no location configured")
	}
	if err != nil {
		return Location{}, fmt.Errorf("store: load location: %w", err)
	}
	return loc, nil
}

// UpdateLocation overwrites the seeded location row. Used by the config
// file override at startup (and by tests to pin business hours).
func (q *Queries) UpdateLocation(ctx context.Context, id int64, gymName, timezone, businessHoursJSON string) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE locations SET gym_name=?, timezone=?, business_hours_json=? WHERE id=?`,
		gymName, timezone, businessHoursJSON, id,
	); err != nil {
		return fmt.Errorf("store: update location: %w", err)
	}
	return nil
}
