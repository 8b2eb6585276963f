// SPDX-License-Identifier: MIT

// Package hours is the clock and business-hours oracle. It converts UTC
// instants to the location's wall clock and answers open/next-open
// questions against the weekly schedule.
package hours

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/gymops/leadpilot/internal/validate"
)

// Interval is one half-open [Open, Close) range in minutes since local
// midnight.
type Interval struct {
	Open  int
	Close int
}

// Schedule maps weekdays to ordered open intervals.
type Schedule map[time.Weekday][]Interval

var weekdayKeys = map[string]time.Weekday{
	"mon": time.Monday,
	"tue": time.Tuesday,
	"wed": time.Wednesday,
	"thu": time.Thursday,
	"fri": time.Friday,
	"sat": time.Saturday,
	"sun": time.Sunday,
}

// ParseSchedule decodes the business_hours JSON: weekday keys mon..sun
// mapping to [["HH:MM","HH:MM"], ...]. Unknown keys are ignored.
func ParseSchedule(raw string) (Schedule, error) {
	var decoded map[string][][2]string
	if err := json.Unmarshal([]byte(raw), &decoded); err != nil {
		return nil, validate.Errorf("invalid business hours json: %v", err)
	}

	schedule := make(Schedule, len(decoded))
	for key, ranges := range decoded {
		weekday, ok := weekdayKeys[key]
		if !ok {
			continue
		}
		intervals := make([]Interval, 0, len(ranges))
		for _, r := range ranges {
			open, err := parseClock(r[0])
			if err != nil {
				return nil, err
			}
			closeAt, err := parseClock(r[1])
			if err != nil {
				return nil, err
			}
			intervals = append(intervals, Interval{Open: open, Close: closeAt})
		}
		schedule[weekday] = intervals
	}
	return schedule, nil
}

func parseClock(s string) (int, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil || h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, validate.Errorf("invalid business hours time %q: want HH:MM", s)
	}
	return h*60 + m, nil
}

// HasAnyOpenInterval reports whether any weekday has at least one interval.
// An all-closed schedule makes next-open fall back to +24h forever; the
// daemon warns loudly on this configuration at startup.
func (s Schedule) HasAnyOpenInterval() bool {
	for _, intervals := range s {
		if len(intervals) > 0 {
			return true
		}
	}
	return false
}

// Oracle answers time questions for one location.
type Oracle struct {
	loc      *time.Location
	schedule Schedule
}

// New builds an Oracle for the IANA timezone name and schedule.
func New(timezone string, schedule Schedule) (*Oracle, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, validate.Errorf("invalid timezone: %s", timezone)
	}
	return &Oracle{loc: loc, schedule: schedule}, nil
}

// Location exposes the resolved zone for local-day window math.
func (o *Oracle) Location() *time.Location {
	return o.loc
}

// Schedule exposes the parsed weekly schedule.
func (o *Oracle) Schedule() Schedule {
	return o.schedule
}

// IsOpen reports whether the location is open at the UTC instant: some
// interval for the local weekday contains the local time, half-open.
func (o *Oracle) IsOpen(whenUTC time.Time) bool {
	local := whenUTC.In(o.loc)
	minutes := local.Hour()*60 + local.Minute()
	for _, iv := range o.schedule[local.Weekday()] {
		if minutes >= iv.Open && minutes < iv.Close {
			return true
		}
	}
	return false
}

// NextOpen scans forward up to 21 days for the earliest opening strictly
// after fromUTC in local time. If none is found it falls back to
// fromUTC + 24h.
func (o *Oracle) NextOpen(fromUTC time.Time) time.Time {
	local := fromUTC.In(o.loc)
	localMinutes := local.Hour()*60 + local.Minute()

	for dayOffset := 0; dayOffset < 21; dayOffset++ {
		day := local.AddDate(0, 0, dayOffset)
		for _, iv := range o.schedule[day.Weekday()] {
			if dayOffset == 0 && iv.Open <= localMinutes {
				continue
			}
			if at, ok := o.LocalAt(day, iv.Open); ok {
				return at.UTC()
			}
		}
	}
	return fromUTC.Add(24 * time.Hour)
}

// LocalAt resolves the wall-clock time at minutes-past-midnight on the
// local day containing day. The second result is false when the wall time
// does not exist (DST spring-forward) or occurs twice (DST fall-back);
// callers skip such candidates.
func (o *Oracle) LocalAt(day time.Time, minutes int) (time.Time, bool) {
	local := day.In(o.loc)
	at := time.Date(local.Year(), local.Month(), local.Day(), minutes/60, minutes%60, 0, 0, o.loc)
	if at.Hour()*60+at.Minute() != minutes {
		return time.Time{}, false
	}
	// A fall-back transition repeats the wall clock an hour apart; the
	// instant time.Date picked is then one of two valid readings.
	if o.sameWallClock(at, at.Add(-time.Hour)) || o.sameWallClock(at, at.Add(time.Hour)) {
		return time.Time{}, false
	}
	return at, true
}

func (o *Oracle) sameWallClock(a, b time.Time) bool {
	al, bl := a.In(o.loc), b.In(o.loc)
	return al.Year() == bl.Year() && al.YearDay() == bl.YearDay() &&
		al.Hour() == bl.Hour() && al.Minute() == bl.Minute()
}

// LocalDisplay formats a UTC instant for humans in local time, e.g.
// "Wed Jan 9 at 2:00 PM".
func (o *Oracle) LocalDisplay(t time.Time) string {
	return t.In(o.loc).Format("Mon Jan 2 at 3:04 PM")
}

// LocalDayBounds returns the UTC instants of local midnight on the day
// containing t and local midnight of the following day. Rate limits and
// the today report count within these bounds.
func (o *Oracle) LocalDayBounds(t time.Time) (time.Time, time.Time) {
	local := t.In(o.loc)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, o.loc)
	return start.UTC(), start.AddDate(0, 0, 1).UTC()
}
