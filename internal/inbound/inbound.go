// SPDX-License-Identifier: MIT

// Package inbound interprets each lead reply and drives the conversation
// through awaiting_yes -> awaiting_time_choice -> booked, with a repair
// branch for invalid time choices and an absorbing STOP branch. All sends
// go through the gateway.
package inbound

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gymops/leadpilot/internal/gateway"
	"github.com/gymops/leadpilot/internal/log"
	"github.com/gymops/leadpilot/internal/metrics"
	"github.com/gymops/leadpilot/internal/slots"
	"github.com/gymops/leadpilot/internal/store"
	"github.com/gymops/leadpilot/internal/validate"
)

const (
	staleConversationAfter = 24 * time.Hour
	reminderLeadTime       = 2 * time.Hour
)

const (
	yesPrompt        = "Reply YES to get the next two available intro session times."
	stopConfirmation = "You are unsubscribed and will receive no more automated messages."
	noSlotsApology   = "I couldn't find two matching slots right now. A staff member will follow up shortly."
	repairNoSlots    = "I couldn't match that response to a slot. A staff member has been flagged to help."
	alreadyBooked    = "You're already booked. Reply if you need staff help rescheduling."
)

// Processor runs the inbound state machine.
type Processor struct {
	store     *store.Store
	gateway   *gateway.Gateway
	generator *slots.Generator
	clock     func() time.Time
	logger    zerolog.Logger
}

// New wires a Processor.
func New(s *store.Store, gw *gateway.Gateway, gen *slots.Generator, clock func() time.Time) *Processor {
	return &Processor{
		store:     s,
		gateway:   gw,
		generator: gen,
		clock:     clock,
		logger:    log.WithComponent("inbound"),
	}
}

// Process records the inbound message and dispatches on the conversation
// state. body must be non-empty after trimming.
func (p *Processor) Process(ctx context.Context, leadID int64, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return validate.New("inbound body cannot be empty")
	}

	conversation, err := p.store.ConversationByLeadID(ctx, leadID)
	if err != nil {
		return err
	}

	now := store.FormatTime(p.clock())
	if _, err := p.store.InsertMessage(ctx, conversation.ID, store.DirectionInbound, body, store.MessageReceived, now); err != nil {
		return err
	}
	if err := p.store.SetConversationLastInbound(ctx, conversation.ID, now); err != nil {
		return err
	}
	if err := p.store.SetLeadLastContact(ctx, leadID, now); err != nil {
		return err
	}
	metrics.IncInbound()

	// Re-read so the machine sees the stamped last_inbound_at.
	lead, err := p.store.Lead(ctx, leadID)
	if err != nil {
		return err
	}
	conversation, err = p.store.ConversationByLeadID(ctx, leadID)
	if err != nil {
		return err
	}

	return p.dispatch(ctx, lead, conversation, body)
}

func (p *Processor) dispatch(ctx context.Context, lead store.Lead, conversation store.Conversation, body string) error {
	normalized := strings.ToUpper(strings.TrimSpace(body))
	now := p.clock()

	if normalized == "STOP" || normalized == "UNSUBSCRIBE" {
		if err := p.gateway.SetOptOut(ctx, gateway.OptOutRequest{
			LeadID: lead.ID,
			Reason: "lead sent stop keyword",
		}); err != nil {
			return err
		}
		// The single permitted post-opt-out message.
		_, err := p.gateway.CreateOutboundMessage(ctx, gateway.OutboundRequest{
			LeadID:              lead.ID,
			ConversationID:      conversation.ID,
			Body:                stopConfirmation,
			AllowWithoutConsent: true,
			AllowOptedOutOnce:   true,
			AllowAfterReply:     true,
			IgnoreBusinessHours: true,
		})
		return err
	}

	if lead.OptedOut {
		return nil
	}

	if conversation.LastOutboundAt != nil {
		lastOutbound, err := store.ParseTime(*conversation.LastOutboundAt)
		if err != nil {
			return err
		}
		if now.Sub(lastOutbound) >= staleConversationAfter {
			return p.resetToAwaitingYes(ctx, lead, conversation, true)
		}
	}

	switch conversation.State {
	case store.StatusAwaitingYes:
		if normalized == "YES" || normalized == "Y" {
			return p.offerSlots(ctx, lead, conversation)
		}
		return p.sendReply(ctx, lead.ID, conversation.ID, yesPrompt)

	case store.StatusAwaitingTimeChoice:
		state := conversation.DecodeState()
		index := -1
		switch normalized {
		case "1":
			index = 0
		case "2":
			index = 1
		}
		if index >= 0 && index < len(state.OfferedSlots) {
			return p.book(ctx, lead, conversation, state.OfferedSlots[index])
		}
		return p.repair(ctx, lead, conversation)

	case store.StatusBooked:
		return p.sendReply(ctx, lead.ID, conversation.ID, alreadyBooked)

	default:
		p.logger.Warn().Str("state", conversation.State).Int64("lead_id", lead.ID).
			Msg("unknown conversation state; resetting")
		return p.resetToAwaitingYes(ctx, lead, conversation, false)
	}
}

// resetToAwaitingYes re-engages a stale or broken conversation.
func (p *Processor) resetToAwaitingYes(ctx context.Context, lead store.Lead, conversation store.Conversation, updateLeadStatus bool) error {
	if err := p.sendReply(ctx, lead.ID, conversation.ID, yesPrompt); err != nil {
		return err
	}
	if err := p.store.SetConversationState(ctx, conversation.ID, store.StatusAwaitingYes, store.ConversationState{}, 0); err != nil {
		return err
	}
	if updateLeadStatus {
		return p.store.SetLeadStatus(ctx, lead.ID, store.StatusAwaitingYes)
	}
	return nil
}

func (p *Processor) offerSlots(ctx context.Context, lead store.Lead, conversation store.Conversation) error {
	offered, err := p.generator.Choices(ctx, p.clock())
	if err != nil {
		return err
	}
	if len(offered) < 2 {
		if err := p.gateway.FlagNeedsStaffAttention(ctx, lead.ID, "no_slots_available"); err != nil {
			return err
		}
		return p.sendReply(ctx, lead.ID, conversation.ID, noSlotsApology)
	}

	if err := p.store.SetConversationState(ctx, conversation.ID, store.StatusAwaitingTimeChoice,
		store.ConversationState{OfferedSlots: offered}, 0); err != nil {
		return err
	}
	if err := p.store.SetLeadStatus(ctx, lead.ID, store.StatusAwaitingTimeChoice); err != nil {
		return err
	}

	offer, err := p.formatSlotOffer(offered)
	if err != nil {
		return err
	}
	return p.sendReply(ctx, lead.ID, conversation.ID, offer)
}

func (p *Processor) book(ctx context.Context, lead store.Lead, conversation store.Conversation, slot store.SlotChoice) error {
	appointmentID, err := p.gateway.CreateAppointment(ctx, gateway.AppointmentRequest{
		LeadID:  lead.ID,
		StartAt: slot.StartAt,
		EndAt:   slot.EndAt,
		Status:  store.AppointmentBooked,
	})
	if err != nil {
		return err
	}

	if err := p.store.SetConversationState(ctx, conversation.ID, store.StatusBooked, store.ConversationState{}, 0); err != nil {
		return err
	}

	start, err := store.ParseTime(slot.StartAt)
	if err != nil {
		return err
	}
	confirmation := fmt.Sprintf(
		"Booked. Your intro session is confirmed for %s. We will send a reminder 2 hours before.",
		p.gateway.Oracle().LocalDisplay(start))
	if err := p.sendReply(ctx, lead.ID, conversation.ID, confirmation); err != nil {
		return err
	}

	reminderAt := start.Add(-reminderLeadTime)
	if reminderAt.After(p.clock()) {
		payload := fmt.Sprintf(`{"lead_id":%d,"appointment_id":%d,"start_at":%q}`,
			lead.ID, appointmentID, slot.StartAt)
		if _, err := p.gateway.ScheduleJob(ctx, gateway.ScheduleJobRequest{
			JobType:     store.JobAppointmentReminder,
			TargetID:    &appointmentID,
			ExecuteAt:   store.FormatTime(reminderAt),
			PayloadJSON: payload,
		}); err != nil {
			// Booking stands even when the reminder cannot be scheduled.
			p.logger.Warn().Err(err).Int64("lead_id", lead.ID).
				Msg("reminder not scheduled")
		}
	}
	return nil
}

// repair handles an invalid reply while awaiting a time choice: fresh
// slots, a corrective prompt, and staff escalation after repeated misses.
func (p *Processor) repair(ctx context.Context, lead store.Lead, conversation store.Conversation) error {
	attempts := conversation.RepairAttempts + 1

	offered, err := p.generator.Choices(ctx, p.clock())
	if err != nil {
		return err
	}
	if len(offered) < 2 {
		if err := p.gateway.FlagNeedsStaffAttention(ctx, lead.ID, "repair_no_slots"); err != nil {
			return err
		}
		return p.sendReply(ctx, lead.ID, conversation.ID, repairNoSlots)
	}

	offer, err := p.formatSlotOffer(offered)
	if err != nil {
		return err
	}
	body := "Please reply with 1 or 2 so I can book your session.\n\n" + offer

	if attempts >= 2 {
		if err := p.gateway.FlagNeedsStaffAttention(ctx, lead.ID, "repair_attempts_exceeded"); err != nil {
			return err
		}
		body += "\n\nI also flagged this conversation for staff follow-up."
	}

	if err := p.store.SetConversationState(ctx, conversation.ID, store.StatusAwaitingTimeChoice,
		store.ConversationState{OfferedSlots: offered}, attempts); err != nil {
		return err
	}
	return p.sendReply(ctx, lead.ID, conversation.ID, body)
}

// sendReply is the common shape for direct responses to an inbound: not
// automated, allowed right after a reply, and exempt from business hours.
func (p *Processor) sendReply(ctx context.Context, leadID, conversationID int64, body string) error {
	_, err := p.gateway.CreateOutboundMessage(ctx, gateway.OutboundRequest{
		LeadID:              leadID,
		ConversationID:      conversationID,
		Body:                body,
		AllowAfterReply:     true,
		IgnoreBusinessHours: true,
	})
	return err
}

func (p *Processor) formatSlotOffer(offered []store.SlotChoice) (string, error) {
	if len(offered) < 2 {
		return "", validate.New("expected at least 2 slots for offer")
	}
	first, err := store.ParseTime(offered[0].StartAt)
	if err != nil {
		return "", err
	}
	second, err := store.ParseTime(offered[1].StartAt)
	if err != nil {
		return "", err
	}
	oracle := p.gateway.Oracle()
	return fmt.Sprintf("Choose a time:\n1) %s\n2) %s\n\nReply 1 or 2.",
		oracle.LocalDisplay(first), oracle.LocalDisplay(second)), nil
}
