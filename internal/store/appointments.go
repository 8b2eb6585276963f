// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
)

// InsertAppointment appends an appointment row and returns its id.
func (q *Queries) InsertAppointment(ctx context.Context, leadID int64, startAt, endAt, status, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO appointments (lead_id, start_at, end_at, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		leadID, startAt, endAt, status, now,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert appointment: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: appointment id: %w", err)
	}
	return id, nil
}

// ListAppointmentsByLead returns the lead's appointments ordered by start.
func (q *Queries) ListAppointmentsByLead(ctx context.Context, leadID int64) ([]Appointment, error) {
	return q.queryAppointments(ctx,
		`SELECT id, lead_id, start_at, end_at, status, created_at
		 FROM appointments WHERE lead_id=? ORDER BY start_at ASC, id ASC`, leadID)
}

// ListBookedAppointmentsFrom returns booked appointments starting at or
// after from. Feeds the slot generator's conflict set.
func (q *Queries) ListBookedAppointmentsFrom(ctx context.Context, from string) ([]Appointment, error) {
	return q.queryAppointments(ctx,
		`SELECT id, lead_id, start_at, end_at, status, created_at
		 FROM appointments WHERE status='booked' AND start_at >= ? ORDER BY start_at ASC`, from)
}

// CountBookedConflicts counts booked appointments that conflict with the
// candidate window under the symmetric 10-minute trailing buffer:
// existing.start < candidate.end+10m AND existing.end+10m > candidate.start.
// Callers pass both buffer shifts precomputed (candidate.end+10m and
// candidate.start-10m) so the comparison stays a plain string compare.
func (q *Queries) CountBookedConflicts(ctx context.Context, candidateEndPlusBuffer, candidateStartMinusBuffer string) (int64, error) {
	return q.countRow(ctx,
		`SELECT COUNT(*) FROM appointments
		 WHERE status='booked'
		   AND start_at < ?
		   AND end_at > ?`,
		candidateEndPlusBuffer, candidateStartMinusBuffer)
}

// CountBookedCreatedBetween counts booked appointments created in [from, to).
func (q *Queries) CountBookedCreatedBetween(ctx context.Context, from, to string) (int64, error) {
	return q.countRow(ctx,
		`SELECT COUNT(*) FROM appointments
		 WHERE status='booked' AND created_at >= ? AND created_at < ?`, from, to)
}

func (q *Queries) queryAppointments(ctx context.Context, query string, args ...any) ([]Appointment, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query appointments: %w", err)
	}
	defer rows.Close()

	var appts []Appointment
	for rows.Next() {
		var a Appointment
		if err := rows.Scan(&a.ID, &a.LeadID, &a.StartAt, &a.EndAt, &a.Status, &a.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan appointment: %w", err)
		}
		appts = append(appts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate appointments: %w", err)
	}
	return appts, nil
}
