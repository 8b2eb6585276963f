// SPDX-License-Identifier: MIT

// Package gateway is the sole path to state-changing side effects:
// outbound messages, appointments, opt-outs and scheduled jobs. Every
// operation validates policy first, performs its writes inside one store
// transaction, and appends an audit entry whether it succeeded or not.
// Higher layers expose no other write path to the store.
package gateway

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/gymops/leadpilot/internal/audit"
	"github.com/gymops/leadpilot/internal/hours"
	"github.com/gymops/leadpilot/internal/log"
	"github.com/gymops/leadpilot/internal/metrics"
	"github.com/gymops/leadpilot/internal/store"
	"github.com/gymops/leadpilot/internal/validate"
)

// Policy constants.
const (
	maxOutboundPerLeadPerDay   = 4
	maxOutboundPerLocationHour = 100
	outboundCooldown           = 2 * time.Hour
	duplicateOutboundWindow    = 10 * time.Minute
	conflictBuffer             = 10 * time.Minute
)

// Gateway enforces every policy gate for one location.
type Gateway struct {
	store  *store.Store
	oracle *hours.Oracle
	audit  *audit.Recorder
	clock  func() time.Time
	logger zerolog.Logger
}

// New wires a Gateway. clock is the only source of current time.
func New(s *store.Store, oracle *hours.Oracle, recorder *audit.Recorder, clock func() time.Time) *Gateway {
	return &Gateway{
		store:  s,
		oracle: oracle,
		audit:  recorder,
		clock:  clock,
		logger: log.WithComponent("gateway"),
	}
}

// OutboundRequest asks for one outbound message. The allow_* flags are
// policy overrides reserved for specific paths; agent requests may not set
// any of them.
type OutboundRequest struct {
	LeadID              int64  `json:"lead_id"`
	ConversationID      int64  `json:"conversation_id"`
	Body                string `json:"body"`
	Automated           bool   `json:"automated"`
	AllowWithoutConsent bool   `json:"allow_without_consent"`
	AllowOptedOutOnce   bool   `json:"allow_opted_out_once"`
	AllowAfterReply     bool   `json:"allow_after_reply"`
	IgnoreBusinessHours bool   `json:"ignore_business_hours"`
}

// AppointmentRequest asks for one appointment row.
type AppointmentRequest struct {
	LeadID  int64  `json:"lead_id"`
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Status  string `json:"status"`
}

// OptOutRequest marks a lead opted out. The reason lands in the audit log.
type OptOutRequest struct {
	LeadID int64  `json:"lead_id"`
	Reason string `json:"reason"`
}

// ScheduleJobRequest asks for one pending scheduled job.
type ScheduleJobRequest struct {
	JobType     string `json:"job_type"`
	TargetID    *int64 `json:"target_id"`
	ExecuteAt   string `json:"execute_at"`
	PayloadJSON string `json:"payload_json"`
}

// ValidateOutbound runs the common outbound gates without side effects.
// First failure wins, in policy order: kill switch, lead/conversation,
// consent, opt-out, business hours, rate limits.
func (g *Gateway) ValidateOutbound(ctx context.Context, req OutboundRequest) error {
	return g.validateOutbound(ctx, g.store.Queries, req)
}

func (g *Gateway) validateOutbound(ctx context.Context, q *store.Queries, req OutboundRequest) error {
	if req.Automated {
		enabled, err := q.KillSwitchEnabled(ctx)
		if err != nil {
			return err
		}
		if enabled {
			metrics.IncOutboundBlocked("kill_switch")
			return validate.New("kill switch is enabled; automated outbound blocked")
		}
	}

	lead, err := q.Lead(ctx, req.LeadID)
	if err != nil {
		return err
	}
	convo, err := q.ConversationByLeadID(ctx, req.LeadID)
	if err != nil {
		return err
	}
	if convo.ID != req.ConversationID {
		return validate.New("conversation_id does not match lead")
	}

	if !lead.Consent && !req.AllowWithoutConsent {
		metrics.IncOutboundBlocked("consent")
		return validate.New("consent required before outbound")
	}

	if lead.OptedOut && !req.AllowOptedOutOnce {
		metrics.IncOutboundBlocked("opt_out")
		return validate.New("lead is opted out; outbound blocked")
	}

	if !req.IgnoreBusinessHours && !g.oracle.IsOpen(g.clock()) {
		metrics.IncOutboundBlocked("business_hours")
		return validate.New("outside business hours; outbound blocked")
	}

	return g.checkRateLimits(ctx, q, req.LeadID, convo, req.AllowAfterReply)
}

func (g *Gateway) checkRateLimits(ctx context.Context, q *store.Queries, leadID int64, convo store.Conversation, allowAfterReply bool) error {
	now := g.clock()

	dayStart, dayEnd := g.oracle.LocalDayBounds(now)
	perLeadToday, err := q.CountOutboundForLeadBetween(ctx, leadID,
		store.FormatTime(dayStart), store.FormatTime(dayEnd))
	if err != nil {
		return err
	}
	if perLeadToday >= maxOutboundPerLeadPerDay {
		metrics.IncOutboundBlocked("rate_limit")
		return validate.New("rate limit: max 4 outbound per lead/day")
	}

	perLocationHour, err := q.CountOutboundSince(ctx, store.FormatTime(now.Add(-time.Hour)))
	if err != nil {
		return err
	}
	if perLocationHour >= maxOutboundPerLocationHour {
		metrics.IncOutboundBlocked("rate_limit")
		return validate.New("rate limit: max 100 outbound per location/hour")
	}

	if convo.LastOutboundAt != nil {
		lastOutbound, err := store.ParseTime(*convo.LastOutboundAt)
		if err != nil {
			return err
		}
		if now.Sub(lastOutbound) < outboundCooldown {
			repliedSince := false
			if allowAfterReply && convo.LastInboundAt != nil {
				if lastInbound, err := store.ParseTime(*convo.LastInboundAt); err == nil {
					repliedSince = lastInbound.After(lastOutbound)
				}
			}
			if !repliedSince {
				metrics.IncOutboundBlocked("rate_limit")
				return validate.New("rate limit: minimum 2 hours between outbound unless lead just replied")
			}
		}
	}

	return nil
}

// ValidateAgentOutbound applies the stricter agent gates: no policy
// bypass flags, plus the 10-minute duplicate-body idempotency guard.
func (g *Gateway) ValidateAgentOutbound(ctx context.Context, req OutboundRequest) error {
	return g.validateAgentOutbound(ctx, g.store.Queries, req)
}

func (g *Gateway) validateAgentOutbound(ctx context.Context, q *store.Queries, req OutboundRequest) error {
	if req.AllowWithoutConsent {
		return validate.New("agent outbound cannot bypass consent")
	}
	if req.AllowOptedOutOnce {
		return validate.New("agent outbound cannot bypass opt-out suppression")
	}
	if req.IgnoreBusinessHours {
		return validate.New("agent outbound cannot ignore business hours")
	}

	if err := g.validateOutbound(ctx, q, req); err != nil {
		return err
	}

	since := store.FormatTime(g.clock().Add(-duplicateOutboundWindow))
	duplicates, err := q.CountDuplicateOutbound(ctx, req.ConversationID, req.Body, since)
	if err != nil {
		return err
	}
	if duplicates > 0 {
		metrics.IncOutboundBlocked("idempotency")
		return validate.New("idempotency block: duplicate outbound body for conversation within 10 minutes")
	}
	return nil
}

// CreateOutboundMessage validates and records one outbound message. The
// validation re-runs inside the write transaction so concurrent sends
// cannot slip past the rate limits.
func (g *Gateway) CreateOutboundMessage(ctx context.Context, req OutboundRequest) (int64, error) {
	return g.createOutbound(ctx, req, false)
}

// CreateOutboundMessageForAgent is the agent channel variant with the
// stricter validation.
func (g *Gateway) CreateOutboundMessageForAgent(ctx context.Context, req OutboundRequest) (int64, error) {
	return g.createOutbound(ctx, req, true)
}

func (g *Gateway) createOutbound(ctx context.Context, req OutboundRequest, agent bool) (int64, error) {
	var messageID int64
	err := g.store.WithTx(ctx, func(q *store.Queries) error {
		if agent {
			if err := g.validateAgentOutbound(ctx, q, req); err != nil {
				return err
			}
		} else {
			if err := g.validateOutbound(ctx, q, req); err != nil {
				return err
			}
		}

		now := store.FormatTime(g.clock())
		id, err := q.InsertMessage(ctx, req.ConversationID, store.DirectionOutbound, req.Body, store.MessageSent, now)
		if err != nil {
			return err
		}
		messageID = id

		if err := q.SetConversationLastOutbound(ctx, req.ConversationID, now); err != nil {
			return err
		}
		return q.TouchLeadContact(ctx, req.LeadID, now)
	})

	targetID := audit.TargetID(req.ConversationID)
	if err != nil {
		g.audit.Record(ctx, audit.Entry{
			ActionType: "create_outbound_message",
			TargetType: "conversation",
			TargetID:   targetID,
			Request:    req,
			Success:    false,
			Err:        err,
		})
		return 0, err
	}

	metrics.IncOutboundSent()
	g.audit.Record(ctx, audit.Entry{
		ActionType: "create_outbound_message",
		TargetType: "conversation",
		TargetID:   targetID,
		Request:    req,
		Response:   map[string]int64{"message_id": messageID},
		Success:    true,
	})
	return messageID, nil
}

// ValidateAppointment checks the booking gates without side effects.
func (g *Gateway) ValidateAppointment(ctx context.Context, req AppointmentRequest) error {
	return g.validateAppointment(ctx, g.store.Queries, req)
}

func (g *Gateway) validateAppointment(ctx context.Context, q *store.Queries, req AppointmentRequest) error {
	lead, err := q.Lead(ctx, req.LeadID)
	if err != nil {
		return err
	}
	if lead.OptedOut {
		return validate.New("cannot book appointment for opted-out lead")
	}

	start, err := store.ParseTime(req.StartAt)
	if err != nil {
		return err
	}
	end, err := store.ParseTime(req.EndAt)
	if err != nil {
		return err
	}
	if !end.After(start) {
		return validate.New("appointment end must be after start")
	}

	conflicts, err := q.CountBookedConflicts(ctx,
		store.FormatTime(end.Add(conflictBuffer)),
		store.FormatTime(start.Add(-conflictBuffer)))
	if err != nil {
		return err
	}
	if conflicts > 0 {
		return validate.New("selected appointment slot is no longer available")
	}
	return nil
}

// CreateAppointment validates and books. The conflict scan re-runs inside
// the write transaction, which is what keeps bookings overlap-free.
func (g *Gateway) CreateAppointment(ctx context.Context, req AppointmentRequest) (int64, error) {
	var appointmentID int64
	err := g.store.WithTx(ctx, func(q *store.Queries) error {
		if err := g.validateAppointment(ctx, q, req); err != nil {
			return err
		}
		start, err := store.ParseTime(req.StartAt)
		if err != nil {
			return err
		}
		end, err := store.ParseTime(req.EndAt)
		if err != nil {
			return err
		}
		id, err := q.InsertAppointment(ctx, req.LeadID,
			store.FormatTime(start), store.FormatTime(end), req.Status, store.FormatTime(g.clock()))
		if err != nil {
			return err
		}
		appointmentID = id
		return q.MarkLeadBooked(ctx, req.LeadID)
	})

	targetID := audit.TargetID(req.LeadID)
	if err != nil {
		g.audit.Record(ctx, audit.Entry{
			ActionType: "create_appointment",
			TargetType: "lead",
			TargetID:   targetID,
			Request:    req,
			Success:    false,
			Err:        err,
		})
		return 0, err
	}

	metrics.IncBooking()
	g.audit.Record(ctx, audit.Entry{
		ActionType: "create_appointment",
		TargetType: "lead",
		TargetID:   targetID,
		Request:    req,
		Response:   map[string]int64{"appointment_id": appointmentID},
		Success:    true,
	})
	return appointmentID, nil
}

// ValidateOptOut only requires the lead to exist.
func (g *Gateway) ValidateOptOut(ctx context.Context, req OptOutRequest) error {
	_, err := g.store.Lead(ctx, req.LeadID)
	return err
}

// SetOptOut marks the lead opted out. Irreversible.
func (g *Gateway) SetOptOut(ctx context.Context, req OptOutRequest) error {
	err := g.store.WithTx(ctx, func(q *store.Queries) error {
		if _, err := q.Lead(ctx, req.LeadID); err != nil {
			return err
		}
		return q.MarkOptedOut(ctx, req.LeadID)
	})

	targetID := audit.TargetID(req.LeadID)
	if err != nil {
		g.audit.Record(ctx, audit.Entry{
			ActionType: "set_opt_out",
			TargetType: "lead",
			TargetID:   targetID,
			Request:    req,
			Success:    false,
			Err:        err,
		})
		return err
	}

	metrics.IncOptOut()
	g.audit.Record(ctx, audit.Entry{
		ActionType: "set_opt_out",
		TargetType: "lead",
		TargetID:   targetID,
		Request:    req,
		Response:   map[string]string{"result": "opted_out"},
		Success:    true,
	})
	return nil
}

// ValidateScheduleJob rejects scheduling while the kill switch is on.
func (g *Gateway) ValidateScheduleJob(ctx context.Context, _ ScheduleJobRequest) error {
	enabled, err := g.store.KillSwitchEnabled(ctx)
	if err != nil {
		return err
	}
	if enabled {
		return validate.New("kill switch is enabled; job scheduling blocked")
	}
	return nil
}

// ScheduleJob inserts a pending job.
func (g *Gateway) ScheduleJob(ctx context.Context, req ScheduleJobRequest) (int64, error) {
	var jobID int64
	err := g.store.WithTx(ctx, func(q *store.Queries) error {
		enabled, err := q.KillSwitchEnabled(ctx)
		if err != nil {
			return err
		}
		if enabled {
			return validate.New("kill switch is enabled; job scheduling blocked")
		}
		id, err := q.InsertScheduledJob(ctx, req.JobType, req.TargetID, req.ExecuteAt, req.PayloadJSON, store.FormatTime(g.clock()))
		if err != nil {
			return err
		}
		jobID = id
		return nil
	})

	if err != nil {
		g.audit.Record(ctx, audit.Entry{
			ActionType: "schedule_job",
			TargetType: "scheduled_job",
			Request:    req,
			Success:    false,
			Err:        err,
		})
		return 0, err
	}

	g.audit.Record(ctx, audit.Entry{
		ActionType: "schedule_job",
		TargetType: "scheduled_job",
		TargetID:   audit.TargetID(jobID),
		Request:    req,
		Response:   map[string]int64{"job_id": jobID},
		Success:    true,
	})
	return jobID, nil
}

// CancelAllPendingJobs moves every pending job to cancelled; one audit
// entry carries the count. Called when the kill switch turns on.
func (g *Gateway) CancelAllPendingJobs(ctx context.Context) (int64, error) {
	cancelled, err := g.store.CancelAllPending(ctx)
	request := map[string]string{"scope": "all_pending"}
	if err != nil {
		g.audit.Record(ctx, audit.Entry{
			ActionType: "cancel_jobs_on_kill_switch",
			TargetType: "scheduled_job",
			Request:    request,
			Success:    false,
			Err:        err,
		})
		return 0, err
	}
	g.audit.Record(ctx, audit.Entry{
		ActionType: "cancel_jobs_on_kill_switch",
		TargetType: "scheduled_job",
		Request:    request,
		Response:   map[string]int64{"cancelled": cancelled},
		Success:    true,
	})
	return cancelled, nil
}

// FlagNeedsStaffAttention marks a lead for human follow-up and audits the
// reason.
func (g *Gateway) FlagNeedsStaffAttention(ctx context.Context, leadID int64, reason string) error {
	if err := g.store.FlagNeedsStaffAttention(ctx, leadID); err != nil {
		return err
	}
	metrics.IncStaffFlag(reason)
	g.audit.Record(ctx, audit.Entry{
		ActionType: "flag_needs_staff_attention",
		TargetType: "lead",
		TargetID:   audit.TargetID(leadID),
		Request:    map[string]string{"reason": reason},
		Response:   map[string]bool{"needs_staff_attention": true},
		Success:    true,
	})
	return nil
}

// Oracle exposes the business-hours oracle for collaborating components.
func (g *Gateway) Oracle() *hours.Oracle {
	return g.oracle
}

// Clock exposes the injected time source.
func (g *Gateway) Clock() func() time.Time {
	return g.clock
}
