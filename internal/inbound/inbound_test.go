// SPDX-License-Identifier: MIT

package inbound

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymops/leadpilot/internal/audit"
	"github.com/gymops/leadpilot/internal/gateway"
	"github.com/gymops/leadpilot/internal/slots"
	"github.com/gymops/leadpilot/internal/store"
	"github.com/gymops/leadpilot/internal/testutil"
	"github.com/gymops/leadpilot/internal/validate"
)

var testStart = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC)

type fixture struct {
	processor      *Processor
	store          *store.Store
	clock          *testutil.Clock
	leadID         int64
	conversationID int64
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewClock(testStart)
	return buildFixture(t, clock, testutil.OpenStoreAlwaysOpen(t, clock))
}

// newNextDayFixture is only open Tuesdays, so slots offered on Monday land
// far enough out for reminder scheduling.
func newNextDayFixture(t *testing.T) *fixture {
	t.Helper()
	clock := testutil.NewClock(testStart)
	st := testutil.OpenStoreWithHours(t, clock, "UTC",
		`{"mon":[],"tue":[["09:00","17:00"]],"wed":[],"thu":[],"fri":[],"sat":[],"sun":[]}`)
	return buildFixture(t, clock, st)
}

func buildFixture(t *testing.T, clock *testutil.Clock, st *store.Store) *fixture {
	t.Helper()

	oracle := testutil.Oracle(t, st)
	recorder := audit.New(st.Queries, clock.Now)
	gw := gateway.New(st, oracle, recorder, clock.Now)
	generator := slots.New(st.Queries, oracle)

	leadID := testutil.CreateLead(t, st, clock, "+15550001111", true)
	conversation, err := st.ConversationByLeadID(context.Background(), leadID)
	require.NoError(t, err)

	return &fixture{
		processor:      New(st, gw, generator, clock.Now),
		store:          st,
		clock:          clock,
		leadID:         leadID,
		conversationID: conversation.ID,
	}
}

func (f *fixture) messages(t *testing.T) []store.Message {
	t.Helper()
	messages, err := f.store.ListMessagesByConversation(context.Background(), f.conversationID)
	require.NoError(t, err)
	return messages
}

func (f *fixture) lastOutbound(t *testing.T) store.Message {
	t.Helper()
	messages := f.messages(t)
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Direction == store.DirectionOutbound {
			return messages[i]
		}
	}
	t.Fatal("no outbound message")
	return store.Message{}
}

func (f *fixture) conversation(t *testing.T) store.Conversation {
	t.Helper()
	conversation, err := f.store.ConversationByLeadID(context.Background(), f.leadID)
	require.NoError(t, err)
	return conversation
}

// inbound processes one message, spacing the clock so the cool-down never
// interferes with reply-driven sends.
func (f *fixture) inbound(t *testing.T, body string) {
	t.Helper()
	f.clock.Advance(time.Minute)
	require.NoError(t, f.processor.Process(context.Background(), f.leadID, body))
}

func TestProcessRejectsEmptyBody(t *testing.T) {
	f := newFixture(t)

	err := f.processor.Process(context.Background(), f.leadID, "   ")
	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "inbound body cannot be empty", verr.Reason)
}

func TestProcessRecordsInbound(t *testing.T) {
	f := newFixture(t)

	f.inbound(t, "hello?")

	messages := f.messages(t)
	require.NotEmpty(t, messages)
	assert.Equal(t, store.DirectionInbound, messages[0].Direction)
	assert.Equal(t, "hello?", messages[0].Body)
	assert.Equal(t, store.MessageReceived, messages[0].Status)

	conversation := f.conversation(t)
	require.NotNil(t, conversation.LastInboundAt)
}

func TestAwaitingYesNudgesOnOtherInput(t *testing.T) {
	f := newFixture(t)

	f.inbound(t, "hello?")

	assert.Equal(t, yesPrompt, f.lastOutbound(t).Body)
	assert.Equal(t, store.StatusAwaitingYes, f.conversation(t).State)
}

func TestYesOffersTwoSlots(t *testing.T) {
	f := newFixture(t)

	f.inbound(t, "yes")

	conversation := f.conversation(t)
	assert.Equal(t, store.StatusAwaitingTimeChoice, conversation.State)
	offered := conversation.DecodeState().OfferedSlots
	require.Len(t, offered, 2)

	offer := f.lastOutbound(t).Body
	assert.True(t, strings.HasPrefix(offer, "Choose a time:\n1) "))
	assert.Contains(t, offer, "\n2) ")
	assert.True(t, strings.HasSuffix(offer, "Reply 1 or 2."))

	lead, err := f.store.Lead(context.Background(), f.leadID)
	require.NoError(t, err)
	require.NotNil(t, lead.Status)
	assert.Equal(t, store.StatusAwaitingTimeChoice, *lead.Status)
}

func TestChoiceBooksAppointment(t *testing.T) {
	f := newNextDayFixture(t)
	ctx := context.Background()

	f.inbound(t, "YES")
	offered := f.conversation(t).DecodeState().OfferedSlots
	require.Len(t, offered, 2)
	assert.Equal(t, "2026-01-06T09:00:00Z", offered[0].StartAt)

	f.inbound(t, "1")

	conversation := f.conversation(t)
	assert.Equal(t, store.StatusBooked, conversation.State)
	assert.Empty(t, conversation.DecodeState().OfferedSlots)

	appointments, err := f.store.ListAppointmentsByLead(ctx, f.leadID)
	require.NoError(t, err)
	require.Len(t, appointments, 1)
	assert.Equal(t, offered[0].StartAt, appointments[0].StartAt)
	assert.Equal(t, store.AppointmentBooked, appointments[0].Status)

	confirmation := f.lastOutbound(t).Body
	assert.True(t, strings.HasPrefix(confirmation, "Booked. Your intro session is confirmed for "))
	assert.Contains(t, confirmation, "reminder 2 hours before")

	// The slot starts more than 2h out, so a reminder job exists.
	jobs, err := f.store.DueJobs(ctx, offered[0].StartAt)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, store.JobAppointmentReminder, jobs[0].JobType)
}

func TestSecondChoiceBooksSecondSlot(t *testing.T) {
	f := newFixture(t)

	f.inbound(t, "yes")
	offered := f.conversation(t).DecodeState().OfferedSlots
	require.Len(t, offered, 2)

	f.inbound(t, "2")

	appointments, err := f.store.ListAppointmentsByLead(context.Background(), f.leadID)
	require.NoError(t, err)
	require.Len(t, appointments, 1)
	assert.Equal(t, offered[1].StartAt, appointments[0].StartAt)
}

func TestInvalidChoiceRepairsWithFreshSlots(t *testing.T) {
	f := newFixture(t)

	f.inbound(t, "yes")
	f.inbound(t, "maybe tuesday?")

	conversation := f.conversation(t)
	assert.Equal(t, store.StatusAwaitingTimeChoice, conversation.State)
	assert.EqualValues(t, 1, conversation.RepairAttempts)
	require.Len(t, conversation.DecodeState().OfferedSlots, 2)

	body := f.lastOutbound(t).Body
	assert.True(t, strings.HasPrefix(body, "Please reply with 1 or 2 so I can book your session."))
	assert.NotContains(t, body, "flagged this conversation")
}

func TestSecondInvalidChoiceFlagsStaff(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.inbound(t, "yes")
	f.inbound(t, "huh")
	f.inbound(t, "what")

	conversation := f.conversation(t)
	assert.EqualValues(t, 2, conversation.RepairAttempts)

	lead, err := f.store.Lead(ctx, f.leadID)
	require.NoError(t, err)
	assert.True(t, lead.NeedsStaffAttention)

	assert.Contains(t, f.lastOutbound(t).Body, "I also flagged this conversation for staff follow-up.")

	// A valid choice still books after repair.
	f.inbound(t, "1")
	assert.Equal(t, store.StatusBooked, f.conversation(t).State)
}

func TestStopOptsOutAndConfirmsOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.inbound(t, "stop")

	lead, err := f.store.Lead(ctx, f.leadID)
	require.NoError(t, err)
	assert.True(t, lead.OptedOut)
	require.NotNil(t, lead.Status)
	assert.Equal(t, store.StatusOptedOut, *lead.Status)

	assert.Equal(t, stopConfirmation, f.lastOutbound(t).Body)
	before := len(f.messages(t))

	// Everything after STOP is absorbed silently.
	f.inbound(t, "yes")
	f.inbound(t, "hello?")

	messages := f.messages(t)
	assert.Len(t, messages, before+2)
	assert.Equal(t, stopConfirmation, f.lastOutbound(t).Body)
}

func TestUnsubscribeKeywordAlsoOptsOut(t *testing.T) {
	f := newFixture(t)

	f.inbound(t, "UNSUBSCRIBE")

	lead, err := f.store.Lead(context.Background(), f.leadID)
	require.NoError(t, err)
	assert.True(t, lead.OptedOut)
}

func TestStaleConversationResets(t *testing.T) {
	f := newFixture(t)

	f.inbound(t, "yes")
	require.Equal(t, store.StatusAwaitingTimeChoice, f.conversation(t).State)

	f.clock.Advance(25 * time.Hour)
	f.inbound(t, "1")

	conversation := f.conversation(t)
	assert.Equal(t, store.StatusAwaitingYes, conversation.State)
	assert.Empty(t, conversation.DecodeState().OfferedSlots)
	assert.Equal(t, yesPrompt, f.lastOutbound(t).Body)

	lead, err := f.store.Lead(context.Background(), f.leadID)
	require.NoError(t, err)
	require.NotNil(t, lead.Status)
	assert.Equal(t, store.StatusAwaitingYes, *lead.Status)
}

func TestBookedStatePointsToStaff(t *testing.T) {
	f := newFixture(t)

	f.inbound(t, "yes")
	f.inbound(t, "1")
	f.inbound(t, "can I change it?")

	assert.Equal(t, alreadyBooked, f.lastOutbound(t).Body)
	assert.Equal(t, store.StatusBooked, f.conversation(t).State)
}
