// SPDX-License-Identifier: MIT

// Package slots proposes appointment windows: 30-minute slots on a
// 40-minute stride inside business hours, so back-to-back proposals carry
// the same 10-minute gap the booking buffer enforces.
package slots

import (
	"context"
	"time"

	"github.com/gymops/leadpilot/internal/hours"
	"github.com/gymops/leadpilot/internal/store"
)

const (
	slotLength = 30 * time.Minute
	stride     = 40 * time.Minute
	buffer     = 10 * time.Minute

	maxBusinessDays = 3
	maxCalendarDays = 14
)

// Window is one candidate or existing appointment interval in UTC.
type Window struct {
	Start time.Time
	End   time.Time
}

// Generator proposes up to two conflict-free future slots.
type Generator struct {
	queries *store.Queries
	oracle  *hours.Oracle
}

// New builds a Generator over the given queries and oracle.
func New(q *store.Queries, oracle *hours.Oracle) *Generator {
	return &Generator{queries: q, oracle: oracle}
}

// Choices walks forward from fromUTC, day by day, over at most 3 business
// days within 14 calendar days, and returns the first two candidates that
// start strictly after fromUTC and clear the conflict buffer against
// existing bookings. Fewer than two may be returned.
func (g *Generator) Choices(ctx context.Context, fromUTC time.Time) ([]store.SlotChoice, error) {
	existing, err := g.existingBookings(ctx, fromUTC)
	if err != nil {
		return nil, err
	}

	schedule := g.oracle.Schedule()
	localStart := fromUTC.In(g.oracle.Location())

	var choices []store.SlotChoice
	businessDaysSeen := 0
	for dayOffset := 0; businessDaysSeen < maxBusinessDays && dayOffset < maxCalendarDays; dayOffset++ {
		day := localStart.AddDate(0, 0, dayOffset)
		intervals := schedule[day.Weekday()]
		if len(intervals) == 0 {
			continue
		}
		businessDaysSeen++

		for _, iv := range intervals {
			for cursor := iv.Open; cursor+int(slotLength.Minutes()) <= iv.Close; cursor += int(stride.Minutes()) {
				local, ok := g.oracle.LocalAt(day, cursor)
				if !ok {
					// DST gap; the wall time does not exist.
					continue
				}
				start := local.UTC()
				end := start.Add(slotLength)

				if !start.After(fromUTC) {
					continue
				}
				if Conflicts(Window{Start: start, End: end}, existing) {
					continue
				}

				choices = append(choices, store.SlotChoice{
					StartAt: store.FormatTime(start),
					EndAt:   store.FormatTime(end),
				})
				if len(choices) == 2 {
					return choices, nil
				}
			}
		}
	}

	return choices, nil
}

// Conflicts applies the symmetric trailing buffer: two intervals conflict
// iff candidate.start < existing.end+10m and existing.start <
// candidate.end+10m.
func Conflicts(candidate Window, existing []Window) bool {
	candidateEndBuffered := candidate.End.Add(buffer)
	for _, w := range existing {
		if candidate.Start.Before(w.End.Add(buffer)) && w.Start.Before(candidateEndBuffered) {
			return true
		}
	}
	return false
}

func (g *Generator) existingBookings(ctx context.Context, fromUTC time.Time) ([]Window, error) {
	rows, err := g.queries.ListBookedAppointmentsFrom(ctx, store.FormatTime(fromUTC.Add(-24*time.Hour)))
	if err != nil {
		return nil, err
	}
	windows := make([]Window, 0, len(rows))
	for _, a := range rows {
		start, err := store.ParseTime(a.StartAt)
		if err != nil {
			return nil, err
		}
		end, err := store.ParseTime(a.EndAt)
		if err != nil {
			return nil, err
		}
		windows = append(windows, Window{Start: start, End: end})
	}
	return windows, nil
}
