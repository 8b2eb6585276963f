// SPDX-License-Identifier: MIT

package hours

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const demoHoursJSON = `{"mon":[["09:00","17:00"]],"tue":[["09:00","17:00"]],"wed":[["09:00","17:00"]],"thu":[["09:00","17:00"]],"fri":[["09:00","17:00"]],"sat":[["10:00","14:00"]],"sun":[]}`

func demoOracle(t *testing.T, timezone string) *Oracle {
	t.Helper()
	schedule, err := ParseSchedule(demoHoursJSON)
	require.NoError(t, err)
	oracle, err := New(timezone, schedule)
	require.NoError(t, err)
	return oracle
}

func TestParseSchedule(t *testing.T) {
	schedule, err := ParseSchedule(demoHoursJSON)
	require.NoError(t, err)

	assert.Equal(t, []Interval{{Open: 9 * 60, Close: 17 * 60}}, schedule[time.Monday])
	assert.Equal(t, []Interval{{Open: 10 * 60, Close: 14 * 60}}, schedule[time.Saturday])
	assert.Empty(t, schedule[time.Sunday])
	assert.True(t, schedule.HasAnyOpenInterval())
}

func TestParseScheduleRejectsMalformed(t *testing.T) {
	_, err := ParseSchedule(`{"mon":[["9am","5pm"]]}`)
	assert.Error(t, err)

	_, err = ParseSchedule(`not json`)
	assert.Error(t, err)
}

func TestParseScheduleIgnoresUnknownKeys(t *testing.T) {
	schedule, err := ParseSchedule(`{"mon":[["09:00","17:00"]],"holiday":[["09:00","17:00"]]}`)
	require.NoError(t, err)
	assert.Len(t, schedule, 1)
}

func TestHasAnyOpenIntervalAllClosed(t *testing.T) {
	schedule, err := ParseSchedule(`{"mon":[],"tue":[],"sun":[]}`)
	require.NoError(t, err)
	assert.False(t, schedule.HasAnyOpenInterval())
}

func TestIsOpenHalfOpenBounds(t *testing.T) {
	oracle := demoOracle(t, "UTC")

	monday := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	require.Equal(t, time.Monday, monday.Weekday())

	assert.False(t, oracle.IsOpen(monday.Add(8*time.Hour+59*time.Minute)))
	assert.True(t, oracle.IsOpen(monday.Add(9*time.Hour)))
	assert.True(t, oracle.IsOpen(monday.Add(16*time.Hour+59*time.Minute)))
	// 17:00 is the close boundary and already outside.
	assert.False(t, oracle.IsOpen(monday.Add(17*time.Hour)))
}

func TestIsOpenUsesLocationTimezone(t *testing.T) {
	oracle := demoOracle(t, "America/New_York")

	// 14:00 UTC on a January Monday is 09:00 in New York.
	monday := time.Date(2026, 1, 5, 14, 0, 0, 0, time.UTC)
	assert.True(t, oracle.IsOpen(monday))
	assert.False(t, oracle.IsOpen(monday.Add(-time.Minute)))
}

func TestNextOpenSameDay(t *testing.T) {
	oracle := demoOracle(t, "UTC")

	monday := time.Date(2026, 1, 5, 7, 30, 0, 0, time.UTC)
	next := oracle.NextOpen(monday)
	assert.Equal(t, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOpenSkipsToNextDayOnceOpenPassed(t *testing.T) {
	oracle := demoOracle(t, "UTC")

	// Mid-Monday: the 09:00 opening has passed, next opening is Tuesday.
	monday := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	next := oracle.NextOpen(monday)
	assert.Equal(t, time.Date(2026, 1, 6, 9, 0, 0, 0, time.UTC), next)
}

func TestNextOpenSkipsClosedSunday(t *testing.T) {
	oracle := demoOracle(t, "UTC")

	saturday := time.Date(2026, 1, 10, 15, 0, 0, 0, time.UTC)
	require.Equal(t, time.Saturday, saturday.Weekday())

	next := oracle.NextOpen(saturday)
	assert.Equal(t, time.Date(2026, 1, 12, 9, 0, 0, 0, time.UTC), next)
	assert.Equal(t, time.Monday, next.Weekday())
}

func TestNextOpenAllClosedFallsBack24h(t *testing.T) {
	schedule, err := ParseSchedule(`{"mon":[],"tue":[],"wed":[],"thu":[],"fri":[],"sat":[],"sun":[]}`)
	require.NoError(t, err)
	oracle, err := New("UTC", schedule)
	require.NoError(t, err)

	from := time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)
	assert.Equal(t, from.Add(24*time.Hour), oracle.NextOpen(from))
}

func TestLocalAtReportsSpringForwardGap(t *testing.T) {
	oracle := demoOracle(t, "America/New_York")

	// 2026-03-08 02:30 does not exist in New York.
	day := time.Date(2026, 3, 8, 12, 0, 0, 0, time.UTC)
	_, ok := oracle.LocalAt(day, 2*60+30)
	assert.False(t, ok)

	at, ok := oracle.LocalAt(day, 10*60)
	require.True(t, ok)
	assert.Equal(t, 10, at.Hour())
}

func TestLocalAtReportsFallBackAmbiguity(t *testing.T) {
	oracle := demoOracle(t, "America/New_York")

	// 2026-11-01 01:30 occurs twice in New York (EDT and EST).
	day := time.Date(2026, 11, 1, 12, 0, 0, 0, time.UTC)
	_, ok := oracle.LocalAt(day, 1*60+30)
	assert.False(t, ok)

	at, ok := oracle.LocalAt(day, 10*60)
	require.True(t, ok)
	assert.Equal(t, 10, at.Hour())
}

func TestLocalDisplay(t *testing.T) {
	oracle := demoOracle(t, "America/New_York")

	// 19:00 UTC in January is 2:00 PM in New York.
	at := time.Date(2026, 1, 7, 19, 0, 0, 0, time.UTC)
	assert.Equal(t, "Wed Jan 7 at 2:00 PM", oracle.LocalDisplay(at))
}

func TestLocalDayBounds(t *testing.T) {
	oracle := demoOracle(t, "America/New_York")

	at := time.Date(2026, 1, 7, 3, 0, 0, 0, time.UTC) // Jan 6 22:00 local
	start, end := oracle.LocalDayBounds(at)

	assert.Equal(t, time.Date(2026, 1, 6, 5, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 7, 5, 0, 0, 0, time.UTC), end)
}
