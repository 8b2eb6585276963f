// SPDX-License-Identifier: MIT

// Package commands is the external surface of the core: thin wrappers that
// compose the store, gateway, state machine, job runner and agent channel.
// Every command retries transient store contention, audits its failures,
// and converts errors to a user-visible Alert message.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/gymops/leadpilot/internal/agent"
	"github.com/gymops/leadpilot/internal/audit"
	"github.com/gymops/leadpilot/internal/gateway"
	"github.com/gymops/leadpilot/internal/hours"
	"github.com/gymops/leadpilot/internal/inbound"
	"github.com/gymops/leadpilot/internal/jobs"
	"github.com/gymops/leadpilot/internal/log"
	"github.com/gymops/leadpilot/internal/store"
	"github.com/gymops/leadpilot/internal/validate"
)

const (
	duplicateLeadWindow = 30 * 24 * time.Hour
	followUpDelay       = 30 * time.Second

	duplicateLeadNote = "Duplicate lead in last 30 days; automation not restarted. Note added to audit log."
)

// AlertError is the user-visible failure shape every command returns. It
// wraps the underlying error so callers can still classify it.
type AlertError struct {
	Err error
}

func (e *AlertError) Error() string { return "Alert: " + e.Err.Error() }

func (e *AlertError) Unwrap() error { return e.Err }

// Service exposes the command surface over one wired core.
type Service struct {
	store          *store.Store
	gateway        *gateway.Gateway
	inbound        *inbound.Processor
	runner         *jobs.Runner
	agent          *agent.Channel
	audit          *audit.Recorder
	oracle         *hours.Oracle
	clock          func() time.Time
	clientErrorLog string
	logger         zerolog.Logger
}

// New wires a Service. clientErrorLog is the append-only file for
// log_client_error.
func New(s *store.Store, gw *gateway.Gateway, proc *inbound.Processor, runner *jobs.Runner,
	channel *agent.Channel, recorder *audit.Recorder, oracle *hours.Oracle,
	clock func() time.Time, clientErrorLog string) *Service {
	return &Service{
		store:          s,
		gateway:        gw,
		inbound:        proc,
		runner:         runner,
		agent:          channel,
		audit:          recorder,
		oracle:         oracle,
		clock:          clock,
		clientErrorLog: clientErrorLog,
		logger:         log.WithComponent("commands"),
	}
}

// run wraps a command body with the busy retry and the Alert mapping. The
// failure lands in the audit log under the command name.
func (s *Service) run(ctx context.Context, name string, fn func() error) error {
	err := store.RetryBusy(fn)
	if err == nil {
		return nil
	}

	alert := &AlertError{Err: err}
	s.audit.Record(ctx, audit.Entry{
		ActionType: name,
		TargetType: "command",
		Request:    map[string]string{"action": name},
		Success:    false,
		Err:        alert,
	})
	s.logger.Warn().Err(err).Str("command", name).Msg("command failed")
	return alert
}

// CreateLead validates the phone, suppresses 30-day duplicates, inserts
// the lead with its conversation, and schedules the initial follow-up when
// consent is present.
func (s *Service) CreateLead(ctx context.Context, input LeadCreateInput) (LeadCreateResult, error) {
	var result LeadCreateResult
	err := s.run(ctx, "create_lead", func() error {
		now := s.clock()
		nowStr := store.FormatTime(now)

		phone := strings.TrimSpace(input.PhoneE164)
		if phone == "" || !strings.HasPrefix(phone, "+") {
			return validate.New("phone_e164 must be non-empty and start with '+'")
		}

		since := store.FormatTime(now.Add(-duplicateLeadWindow))
		existing, err := s.store.RecentLeadIDByPhone(ctx, phone, since)
		if err != nil {
			return err
		}
		if existing != 0 {
			note := duplicateLeadNote
			s.audit.Record(ctx, audit.Entry{
				ActionType: "duplicate_lead_detected",
				TargetType: "lead",
				TargetID:   audit.TargetID(existing),
				Request: map[string]any{
					"phone_e164":   phone,
					"source":       input.Source,
					"attempted_at": nowStr,
				},
				Response: map[string]string{"note": note},
				Success:  true,
			})
			result = LeadCreateResult{LeadID: existing, DuplicateOf: &existing, Note: &note}
			return nil
		}

		leadID, err := s.store.InsertLead(ctx, store.NewLead{
			PhoneE164:     phone,
			FirstName:     nullIfEmpty(input.FirstName),
			LastName:      nullIfEmpty(input.LastName),
			Consent:       input.Consent,
			ConsentAt:     input.ConsentAt,
			ConsentSource: nullIfEmpty(input.Source),
		}, nowStr)
		if err != nil {
			return err
		}

		var note *string
		if input.Consent {
			executeAt := now.Add(followUpDelay)
			if !s.oracle.IsOpen(now) {
				executeAt = s.oracle.NextOpen(now)
			}
			executeAtStr := store.FormatTime(executeAt)

			payload, err := json.Marshal(jobs.InitialFollowUpPayload{LeadID: leadID})
			if err != nil {
				return err
			}
			if _, err := s.gateway.ScheduleJob(ctx, gateway.ScheduleJobRequest{
				JobType:     store.JobInitialFollowUp,
				TargetID:    &leadID,
				ExecuteAt:   executeAtStr,
				PayloadJSON: string(payload),
			}); err != nil {
				// The lead stands; automation just did not start.
				msg := fmt.Sprintf("Lead created, but auto-follow-up not scheduled: %v", err)
				note = &msg
			} else if err := s.store.SetNextAction(ctx, leadID, &executeAtStr); err != nil {
				return err
			}
		}

		result = LeadCreateResult{Created: true, LeadID: leadID, Note: note}
		return nil
	})
	return result, err
}

// ListLeads returns every lead, newest first.
func (s *Service) ListLeads(ctx context.Context) ([]LeadSummary, error) {
	var out []LeadSummary
	err := s.run(ctx, "list_leads", func() error {
		leads, err := s.store.ListLeads(ctx)
		if err != nil {
			return err
		}
		out = summarize(leads)
		return nil
	})
	return out, err
}

// SearchLeads matches phone or name, case-insensitive substring.
func (s *Service) SearchLeads(ctx context.Context, query string) ([]LeadSummary, error) {
	var out []LeadSummary
	err := s.run(ctx, "search_leads", func() error {
		leads, err := s.store.SearchLeads(ctx, strings.TrimSpace(query))
		if err != nil {
			return err
		}
		out = summarize(leads)
		return nil
	})
	return out, err
}

// ListAgentQueue returns leads the agent can act on right now.
func (s *Service) ListAgentQueue(ctx context.Context) ([]LeadSummary, error) {
	var out []LeadSummary
	err := s.run(ctx, "list_agent_queue", func() error {
		now := s.clock()
		leads, err := s.store.AgentQueue(ctx,
			store.FormatTime(now), store.FormatTime(now.Add(-3*24*time.Hour)))
		if err != nil {
			return err
		}
		out = summarize(leads)
		return nil
	})
	return out, err
}

// GetLeadDetail returns the lead with its conversation, messages and
// appointments.
func (s *Service) GetLeadDetail(ctx context.Context, leadID int64) (LeadDetail, error) {
	var detail LeadDetail
	err := s.run(ctx, "get_lead_detail", func() error {
		lead, err := s.store.Lead(ctx, leadID)
		if err != nil {
			return err
		}
		conversation, err := s.store.ConversationByLeadID(ctx, leadID)
		if err != nil {
			return err
		}
		messages, err := s.store.ListMessagesByConversation(ctx, conversation.ID)
		if err != nil {
			return err
		}
		appointments, err := s.store.ListAppointmentsByLead(ctx, leadID)
		if err != nil {
			return err
		}

		detail = LeadDetail{
			Lead: LeadView{
				ID:                  lead.ID,
				PhoneE164:           lead.PhoneE164,
				FirstName:           lead.FirstName,
				LastName:            lead.LastName,
				Status:              lead.Status,
				Consent:             lead.Consent,
				ConsentAt:           lead.ConsentAt,
				ConsentSource:       lead.ConsentSource,
				OptedOut:            lead.OptedOut,
				NeedsStaffAttention: lead.NeedsStaffAttention,
				LastContactAt:       lead.LastContactAt,
				NextActionAt:        lead.NextActionAt,
				CreatedAt:           lead.CreatedAt,
			},
			Conversation: ConversationView{
				ID:             conversation.ID,
				State:          conversation.State,
				StateJSON:      conversation.StateJSON,
				LastInboundAt:  conversation.LastInboundAt,
				LastOutboundAt: conversation.LastOutboundAt,
				RepairAttempts: conversation.RepairAttempts,
			},
			Messages:     make([]MessageView, 0, len(messages)),
			Appointments: make([]AppointmentView, 0, len(appointments)),
		}
		for _, m := range messages {
			detail.Messages = append(detail.Messages, MessageView{
				ID:        m.ID,
				Direction: m.Direction,
				Body:      m.Body,
				Status:    m.Status,
				CreatedAt: m.CreatedAt,
			})
		}
		for _, a := range appointments {
			detail.Appointments = append(detail.Appointments, AppointmentView{
				ID:      a.ID,
				StartAt: a.StartAt,
				EndAt:   a.EndAt,
				Status:  a.Status,
			})
		}
		return nil
	})
	return detail, err
}

// SimulateInboundSMS feeds one inbound message through the state machine.
func (s *Service) SimulateInboundSMS(ctx context.Context, leadID int64, body string) error {
	return s.run(ctx, "simulate_inbound_sms", func() error {
		return s.inbound.Process(ctx, leadID, body)
	})
}

// GetTodayReport aggregates today's activity in the location's timezone.
func (s *Service) GetTodayReport(ctx context.Context) (TodayReport, error) {
	var report TodayReport
	err := s.run(ctx, "get_today_report", func() error {
		dayStart, dayEnd := s.oracle.LocalDayBounds(s.clock())
		from, to := store.FormatTime(dayStart), store.FormatTime(dayEnd)

		var err error
		if report.LeadsCreated, err = s.store.CountLeadsCreatedBetween(ctx, from, to); err != nil {
			return err
		}
		if report.Contacted, err = s.store.CountDistinctLeadsContactedBetween(ctx, from, to); err != nil {
			return err
		}
		if report.Booked, err = s.store.CountBookedCreatedBetween(ctx, from, to); err != nil {
			return err
		}
		if report.OptOuts, err = s.store.CountAuditSuccessBetween(ctx, "set_opt_out", from, to); err != nil {
			return err
		}
		report.NeedsAttention, err = s.store.CountNeedsStaffAttention(ctx)
		return err
	})
	return report, err
}

// GetKillSwitch reads the durable kill switch setting.
func (s *Service) GetKillSwitch(ctx context.Context) (bool, error) {
	var enabled bool
	err := s.run(ctx, "get_kill_switch", func() error {
		var err error
		enabled, err = s.store.KillSwitchEnabled(ctx)
		return err
	})
	return enabled, err
}

// SetKillSwitch upserts the setting; turning it on cancels every pending
// scheduled job.
func (s *Service) SetKillSwitch(ctx context.Context, enabled bool) error {
	return s.run(ctx, "set_kill_switch", func() error {
		now := store.FormatTime(s.clock())
		value := "false"
		if enabled {
			value = "true"
		}
		if err := s.store.UpsertSetting(ctx, store.KillSwitchKey, value, now); err != nil {
			return err
		}

		s.audit.Record(ctx, audit.Entry{
			ActionType: "set_kill_switch",
			TargetType: "settings",
			TargetID:   audit.TargetName(store.KillSwitchKey),
			Request:    map[string]bool{"enabled": enabled},
			Response:   map[string]string{"updated_at": now},
			Success:    true,
		})

		if enabled {
			_, err := s.gateway.CancelAllPendingJobs(ctx)
			return err
		}
		return nil
	})
}

// RunDueJobs executes all due pending jobs.
func (s *Service) RunDueJobs(ctx context.Context) (jobs.Result, error) {
	var result jobs.Result
	err := s.run(ctx, "run_due_jobs", func() error {
		var err error
		result, err = s.runner.RunDue(ctx)
		return err
	})
	return result, err
}

// AgentDryRun validates an agent action without side effects.
func (s *Service) AgentDryRun(ctx context.Context, action agent.Action) (agent.DryRunResult, error) {
	var result agent.DryRunResult
	err := s.run(ctx, "agent_dry_run", func() error {
		var err error
		result, err = s.agent.DryRun(ctx, action)
		return err
	})
	return result, err
}

// AgentExecute performs an agent action. Failures come back inside the
// result, never as an error.
func (s *Service) AgentExecute(ctx context.Context, action agent.Action) agent.ExecuteResult {
	return s.agent.Execute(ctx, action)
}

// LogClientError appends one block to the client error log file.
func (s *Service) LogClientError(ctx context.Context, source, message string, stack *string) error {
	return s.run(ctx, "log_client_error", func() error {
		f, err := os.OpenFile(s.clientErrorLog, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open %s: %w", s.clientErrorLog, err)
		}
		defer f.Close()

		var b strings.Builder
		fmt.Fprintf(&b, "timestamp: %s\n", store.FormatTime(s.clock()))
		fmt.Fprintf(&b, "source: %s\n", source)
		fmt.Fprintf(&b, "message: %s\n", message)
		if stack != nil && strings.TrimSpace(*stack) != "" {
			fmt.Fprintf(&b, "stack:\n%s\n", *stack)
		}
		b.WriteString("\n")

		if _, err := f.WriteString(b.String()); err != nil {
			return fmt.Errorf("write client error log: %w", err)
		}
		return nil
	})
}

func nullIfEmpty(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
