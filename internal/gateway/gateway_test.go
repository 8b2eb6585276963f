// SPDX-License-Identifier: MIT

package gateway

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gymops/leadpilot/internal/audit"
	"github.com/gymops/leadpilot/internal/store"
	"github.com/gymops/leadpilot/internal/testutil"
	"github.com/gymops/leadpilot/internal/validate"
)

var testStart = time.Date(2026, 1, 5, 12, 0, 0, 0, time.UTC) // Monday noon

type fixture struct {
	gateway *Gateway
	store   *store.Store
	clock   *testutil.Clock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := testutil.NewClock(testStart)
	st := testutil.OpenStoreAlwaysOpen(t, clock)
	recorder := audit.New(st.Queries, clock.Now)
	return &fixture{
		gateway: New(st, testutil.Oracle(t, st), recorder, clock.Now),
		store:   st,
		clock:   clock,
	}
}

func (f *fixture) lead(t *testing.T, consent bool) (int64, int64) {
	t.Helper()
	leadID := testutil.CreateLead(t, f.store, f.clock, "+15550001111", consent)
	conversation, err := f.store.ConversationByLeadID(context.Background(), leadID)
	require.NoError(t, err)
	return leadID, conversation.ID
}

func (f *fixture) outbound(leadID, conversationID int64, body string) OutboundRequest {
	return OutboundRequest{LeadID: leadID, ConversationID: conversationID, Body: body}
}

func requireValidation(t *testing.T, err error, reason string) {
	t.Helper()
	var verr *validate.Error
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, reason, verr.Reason)
}

func TestCreateOutboundHappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, conversationID := f.lead(t, true)

	messageID, err := f.gateway.CreateOutboundMessage(ctx, f.outbound(leadID, conversationID, "hello"))
	require.NoError(t, err)
	assert.NotZero(t, messageID)

	conversation, err := f.store.ConversationByLeadID(ctx, leadID)
	require.NoError(t, err)
	require.NotNil(t, conversation.LastOutboundAt)
	assert.Equal(t, store.FormatTime(f.clock.Now()), *conversation.LastOutboundAt)

	lead, err := f.store.Lead(ctx, leadID)
	require.NoError(t, err)
	require.NotNil(t, lead.LastContactAt)

	entries, err := f.store.AuditEntries(ctx, "create_outbound_message")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
}

func TestOutboundConsentGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, conversationID := f.lead(t, false)

	_, err := f.gateway.CreateOutboundMessage(ctx, f.outbound(leadID, conversationID, "hello"))
	requireValidation(t, err, "consent required before outbound")

	// The single failure is audited too.
	entries, auditErr := f.store.AuditEntries(ctx, "create_outbound_message")
	require.NoError(t, auditErr)
	require.Len(t, entries, 1)
	assert.False(t, entries[0].Success)

	req := f.outbound(leadID, conversationID, "hello")
	req.AllowWithoutConsent = true
	_, err = f.gateway.CreateOutboundMessage(ctx, req)
	require.NoError(t, err)
}

func TestOutboundOptOutGate(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, conversationID := f.lead(t, true)
	require.NoError(t, f.store.MarkOptedOut(ctx, leadID))

	_, err := f.gateway.CreateOutboundMessage(ctx, f.outbound(leadID, conversationID, "hello"))
	requireValidation(t, err, "lead is opted out; outbound blocked")

	req := f.outbound(leadID, conversationID, "you are unsubscribed")
	req.AllowOptedOutOnce = true
	_, err = f.gateway.CreateOutboundMessage(ctx, req)
	require.NoError(t, err)
}

func TestOutboundKillSwitchBlocksAutomatedOnly(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, conversationID := f.lead(t, true)
	require.NoError(t, f.store.UpsertSetting(ctx, store.KillSwitchKey, "true", store.FormatTime(f.clock.Now())))

	req := f.outbound(leadID, conversationID, "hello")
	req.Automated = true
	_, err := f.gateway.CreateOutboundMessage(ctx, req)
	requireValidation(t, err, "kill switch is enabled; automated outbound blocked")

	// Manual sends are unaffected by the switch.
	_, err = f.gateway.CreateOutboundMessage(ctx, f.outbound(leadID, conversationID, "hello"))
	require.NoError(t, err)
}

func TestOutboundConversationMismatch(t *testing.T) {
	f := newFixture(t)
	leadID, conversationID := f.lead(t, true)

	_, err := f.gateway.CreateOutboundMessage(context.Background(),
		f.outbound(leadID, conversationID+100, "hello"))
	requireValidation(t, err, "conversation_id does not match lead")
}

func TestOutboundPerLeadDailyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, conversationID := f.lead(t, true)

	for i := 0; i < 4; i++ {
		req := f.outbound(leadID, conversationID, "hello")
		req.AllowAfterReply = true
		_, err := f.gateway.CreateOutboundMessage(ctx, req)
		require.NoError(t, err)

		// A reply between sends defeats the cool-down but not the cap.
		f.clock.Advance(time.Minute)
		_, err = f.store.InsertMessage(ctx, conversationID, store.DirectionInbound, "ok",
			store.MessageReceived, store.FormatTime(f.clock.Now()))
		require.NoError(t, err)
		require.NoError(t, f.store.SetConversationLastInbound(ctx, conversationID, store.FormatTime(f.clock.Now())))
		f.clock.Advance(time.Minute)
	}

	req := f.outbound(leadID, conversationID, "hello")
	req.AllowAfterReply = true
	_, err := f.gateway.CreateOutboundMessage(ctx, req)
	requireValidation(t, err, "rate limit: max 4 outbound per lead/day")
}

func TestOutboundPerLocationHourlyLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, conversationID := f.lead(t, true)

	// The hourly cap counts across all leads; park the filler traffic on a
	// second conversation so the target lead's daily cap stays untouched.
	otherLeadID := testutil.CreateLead(t, f.store, f.clock, "+15550002222", true)
	other, err := f.store.ConversationByLeadID(ctx, otherLeadID)
	require.NoError(t, err)

	recent := store.FormatTime(f.clock.Now().Add(-30 * time.Minute))
	for i := 0; i < 99; i++ {
		_, err := f.store.InsertMessage(ctx, other.ID, store.DirectionOutbound, "blast",
			store.MessageSent, recent)
		require.NoError(t, err)
	}

	// A send older than the rolling hour does not count.
	stale := store.FormatTime(f.clock.Now().Add(-61 * time.Minute))
	_, err = f.store.InsertMessage(ctx, other.ID, store.DirectionOutbound, "blast",
		store.MessageSent, stale)
	require.NoError(t, err)

	require.NoError(t, f.gateway.ValidateOutbound(ctx, f.outbound(leadID, conversationID, "hello")))

	_, err = f.store.InsertMessage(ctx, other.ID, store.DirectionOutbound, "blast",
		store.MessageSent, recent)
	require.NoError(t, err)

	_, err = f.gateway.CreateOutboundMessage(ctx, f.outbound(leadID, conversationID, "hello"))
	requireValidation(t, err, "rate limit: max 100 outbound per location/hour")
}

func TestOutboundCooldown(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, conversationID := f.lead(t, true)

	_, err := f.gateway.CreateOutboundMessage(ctx, f.outbound(leadID, conversationID, "first"))
	require.NoError(t, err)

	f.clock.Advance(30 * time.Minute)
	_, err = f.gateway.CreateOutboundMessage(ctx, f.outbound(leadID, conversationID, "second"))
	requireValidation(t, err, "rate limit: minimum 2 hours between outbound unless lead just replied")

	// allow_after_reply alone is not enough without a newer inbound.
	req := f.outbound(leadID, conversationID, "second")
	req.AllowAfterReply = true
	_, err = f.gateway.CreateOutboundMessage(ctx, req)
	requireValidation(t, err, "rate limit: minimum 2 hours between outbound unless lead just replied")

	require.NoError(t, f.store.SetConversationLastInbound(ctx, conversationID, store.FormatTime(f.clock.Now())))
	_, err = f.gateway.CreateOutboundMessage(ctx, req)
	require.NoError(t, err)

	// After the full cool-down no reply is needed.
	f.clock.Advance(2 * time.Hour)
	_, err = f.gateway.CreateOutboundMessage(ctx, f.outbound(leadID, conversationID, "third"))
	require.NoError(t, err)
}

func TestAgentOutboundRejectsBypassFlags(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, conversationID := f.lead(t, true)

	req := f.outbound(leadID, conversationID, "hello")
	req.AllowWithoutConsent = true
	_, err := f.gateway.CreateOutboundMessageForAgent(ctx, req)
	requireValidation(t, err, "agent outbound cannot bypass consent")

	req = f.outbound(leadID, conversationID, "hello")
	req.AllowOptedOutOnce = true
	_, err = f.gateway.CreateOutboundMessageForAgent(ctx, req)
	requireValidation(t, err, "agent outbound cannot bypass opt-out suppression")

	req = f.outbound(leadID, conversationID, "hello")
	req.IgnoreBusinessHours = true
	_, err = f.gateway.CreateOutboundMessageForAgent(ctx, req)
	requireValidation(t, err, "agent outbound cannot ignore business hours")
}

func TestAgentOutboundIdempotencyWindow(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, conversationID := f.lead(t, true)

	req := f.outbound(leadID, conversationID, "same body")
	req.AllowAfterReply = true
	_, err := f.gateway.CreateOutboundMessageForAgent(ctx, req)
	require.NoError(t, err)

	// Retry with the identical body inside 10 minutes is dropped.
	f.clock.Advance(time.Minute)
	require.NoError(t, f.store.SetConversationLastInbound(ctx, conversationID, store.FormatTime(f.clock.Now())))
	_, err = f.gateway.CreateOutboundMessageForAgent(ctx, req)
	requireValidation(t, err, "idempotency block: duplicate outbound body for conversation within 10 minutes")

	messages, err := f.store.ListMessagesByConversation(ctx, conversationID)
	require.NoError(t, err)
	outbound := 0
	for _, m := range messages {
		if m.Direction == store.DirectionOutbound {
			outbound++
		}
	}
	assert.Equal(t, 1, outbound)

	// A different body goes through.
	other := f.outbound(leadID, conversationID, "different body")
	other.AllowAfterReply = true
	_, err = f.gateway.CreateOutboundMessageForAgent(ctx, other)
	require.NoError(t, err)
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, _ := f.lead(t, true)

	appointmentID, err := f.gateway.CreateAppointment(ctx, AppointmentRequest{
		LeadID:  leadID,
		StartAt: "2026-01-06T14:00:00Z",
		EndAt:   "2026-01-06T14:30:00Z",
		Status:  store.AppointmentBooked,
	})
	require.NoError(t, err)
	assert.NotZero(t, appointmentID)

	lead, err := f.store.Lead(ctx, leadID)
	require.NoError(t, err)
	require.NotNil(t, lead.Status)
	assert.Equal(t, store.StatusBooked, *lead.Status)
	assert.Nil(t, lead.NextActionAt)
}

func TestCreateAppointmentRejectsBufferedOverlap(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, _ := f.lead(t, true)
	otherID := testutil.CreateLead(t, f.store, f.clock, "+15550002222", true)

	_, err := f.gateway.CreateAppointment(ctx, AppointmentRequest{
		LeadID:  leadID,
		StartAt: "2026-01-06T14:00:00Z",
		EndAt:   "2026-01-06T14:30:00Z",
		Status:  store.AppointmentBooked,
	})
	require.NoError(t, err)

	// Five minutes after the end is still inside the 10-minute buffer.
	_, err = f.gateway.CreateAppointment(ctx, AppointmentRequest{
		LeadID:  otherID,
		StartAt: "2026-01-06T14:35:00Z",
		EndAt:   "2026-01-06T15:05:00Z",
		Status:  store.AppointmentBooked,
	})
	requireValidation(t, err, "selected appointment slot is no longer available")

	// Exactly ten minutes after the end is allowed.
	_, err = f.gateway.CreateAppointment(ctx, AppointmentRequest{
		LeadID:  otherID,
		StartAt: "2026-01-06T14:40:00Z",
		EndAt:   "2026-01-06T15:10:00Z",
		Status:  store.AppointmentBooked,
	})
	require.NoError(t, err)
}

func TestCreateAppointmentRejectsInvertedInterval(t *testing.T) {
	f := newFixture(t)
	leadID, _ := f.lead(t, true)

	_, err := f.gateway.CreateAppointment(context.Background(), AppointmentRequest{
		LeadID:  leadID,
		StartAt: "2026-01-06T14:30:00Z",
		EndAt:   "2026-01-06T14:30:00Z",
		Status:  store.AppointmentBooked,
	})
	requireValidation(t, err, "appointment end must be after start")
}

func TestCreateAppointmentRejectsOptedOutLead(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, _ := f.lead(t, true)
	require.NoError(t, f.store.MarkOptedOut(ctx, leadID))

	_, err := f.gateway.CreateAppointment(ctx, AppointmentRequest{
		LeadID:  leadID,
		StartAt: "2026-01-06T14:00:00Z",
		EndAt:   "2026-01-06T14:30:00Z",
		Status:  store.AppointmentBooked,
	})
	requireValidation(t, err, "cannot book appointment for opted-out lead")
}

func TestSetOptOut(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, _ := f.lead(t, true)

	require.NoError(t, f.gateway.SetOptOut(ctx, OptOutRequest{LeadID: leadID, Reason: "lead sent stop keyword"}))

	lead, err := f.store.Lead(ctx, leadID)
	require.NoError(t, err)
	assert.True(t, lead.OptedOut)

	entries, err := f.store.AuditEntries(ctx, "set_opt_out")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.True(t, entries[0].Success)
}

func TestScheduleJobBlockedByKillSwitch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	require.NoError(t, f.store.UpsertSetting(ctx, store.KillSwitchKey, "true", store.FormatTime(f.clock.Now())))

	_, err := f.gateway.ScheduleJob(ctx, ScheduleJobRequest{
		JobType:     store.JobInitialFollowUp,
		ExecuteAt:   "2026-01-05T12:30:00Z",
		PayloadJSON: "{}",
	})
	requireValidation(t, err, "kill switch is enabled; job scheduling blocked")

	requireValidation(t, f.gateway.ValidateScheduleJob(ctx, ScheduleJobRequest{}),
		"kill switch is enabled; job scheduling blocked")
}

func TestCancelAllPendingJobs(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := f.gateway.ScheduleJob(ctx, ScheduleJobRequest{
			JobType:     store.JobInitialFollowUp,
			ExecuteAt:   "2026-01-05T12:30:00Z",
			PayloadJSON: "{}",
		})
		require.NoError(t, err)
	}

	cancelled, err := f.gateway.CancelAllPendingJobs(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, cancelled)

	entries, err := f.store.AuditEntries(ctx, "cancel_jobs_on_kill_switch")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestFlagNeedsStaffAttention(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	leadID, _ := f.lead(t, true)

	require.NoError(t, f.gateway.FlagNeedsStaffAttention(ctx, leadID, "no_slots_available"))

	lead, err := f.store.Lead(ctx, leadID)
	require.NoError(t, err)
	assert.True(t, lead.NeedsStaffAttention)
}
