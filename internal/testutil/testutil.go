// SPDX-License-Identifier: MIT

// Package testutil provides the seeded store, oracle and deterministic
// clock shared by the package test suites.
package testutil

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/gymops/leadpilot/internal/hours"
	"github.com/gymops/leadpilot/internal/store"
)

// AlwaysOpenHoursJSON keeps the location open all week so time-of-day never
// interferes with a scenario. The last minute of each day stays closed
// because the schedule parser caps closes at 23:59.
const AlwaysOpenHoursJSON = `{"mon":[["00:00","23:59"]],"tue":[["00:00","23:59"]],"wed":[["00:00","23:59"]],"thu":[["00:00","23:59"]],"fri":[["00:00","23:59"]],"sat":[["00:00","23:59"]],"sun":[["00:00","23:59"]]}`

// Clock is a deterministic time source for injection.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock pins the clock at the given instant.
func NewClock(at time.Time) *Clock {
	return &Clock{now: at}
}

// Now returns the pinned instant.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Set pins the clock at a new instant.
func (c *Clock) Set(at time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = at
}

// OpenStore opens a migrated temp-file store seeded with the demo location.
func OpenStore(t *testing.T, clock *Clock) *store.Store {
	t.Helper()
	return openStore(t, clock, store.DefaultSeed())
}

// OpenStoreAlwaysOpen opens a migrated temp-file store whose location is
// open around the clock in UTC.
func OpenStoreAlwaysOpen(t *testing.T, clock *Clock) *store.Store {
	t.Helper()
	return openStore(t, clock, store.Seed{
		GymName:           store.DefaultGymName,
		Timezone:          "UTC",
		BusinessHoursJSON: AlwaysOpenHoursJSON,
	})
}

// OpenStoreWithHours opens a migrated temp-file store with a custom weekly
// schedule in the given timezone.
func OpenStoreWithHours(t *testing.T, clock *Clock, timezone, hoursJSON string) *store.Store {
	t.Helper()
	return openStore(t, clock, store.Seed{
		GymName:           store.DefaultGymName,
		Timezone:          timezone,
		BusinessHoursJSON: hoursJSON,
	})
}

func openStore(t *testing.T, clock *Clock, seed store.Seed) *store.Store {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "leadpilot.sqlite")
	st, err := store.Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	require.NoError(t, st.Migrate(context.Background(), seed, store.FormatTime(clock.Now())))
	return st
}

// Oracle builds the business-hours oracle for the store's seeded location.
func Oracle(t *testing.T, st *store.Store) *hours.Oracle {
	t.Helper()

	location, err := st.Location(context.Background())
	require.NoError(t, err)
	schedule, err := hours.ParseSchedule(location.BusinessHoursJSON)
	require.NoError(t, err)
	oracle, err := hours.New(location.Timezone, schedule)
	require.NoError(t, err)
	return oracle
}

// CreateLead inserts a lead with its conversation and returns the id.
func CreateLead(t *testing.T, st *store.Store, clock *Clock, phone string, consent bool) int64 {
	t.Helper()

	first := "Jamie"
	id, err := st.InsertLead(context.Background(), store.NewLead{
		PhoneE164: phone,
		FirstName: &first,
		Consent:   consent,
	}, store.FormatTime(clock.Now()))
	require.NoError(t, err)
	return id
}
