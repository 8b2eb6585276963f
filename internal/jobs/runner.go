// SPDX-License-Identifier: MIT

// Package jobs executes due scheduled jobs. The runner is invoked on
// demand by the host (tick-driven); there is no background goroutine, so
// all state stays durable and inspectable in the store.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/gymops/leadpilot/internal/audit"
	"github.com/gymops/leadpilot/internal/gateway"
	"github.com/gymops/leadpilot/internal/log"
	"github.com/gymops/leadpilot/internal/metrics"
	"github.com/gymops/leadpilot/internal/store"
	"github.com/gymops/leadpilot/internal/validate"
)

// InitialFollowUpPayload is the payload_blob of an initial_follow_up job.
type InitialFollowUpPayload struct {
	LeadID int64 `json:"lead_id"`
}

// ReminderPayload is the payload_blob of an appointment_reminder job.
type ReminderPayload struct {
	LeadID        int64  `json:"lead_id"`
	AppointmentID int64  `json:"appointment_id"`
	StartAt       string `json:"start_at"`
}

// Result summarizes one runner pass.
type Result struct {
	Processed int64 `json:"processed"`
	Skipped   int64 `json:"skipped"`
	Errors    int64 `json:"errors"`
}

// Runner scans due jobs and dispatches them through the gateway.
type Runner struct {
	store   *store.Store
	gateway *gateway.Gateway
	audit   *audit.Recorder
	clock   func() time.Time
	logger  zerolog.Logger
}

// New wires a Runner.
func New(s *store.Store, gw *gateway.Gateway, recorder *audit.Recorder, clock func() time.Time) *Runner {
	return &Runner{
		store:   s,
		gateway: gw,
		audit:   recorder,
		clock:   clock,
		logger:  log.WithComponent("jobs"),
	}
}

// RunDue executes all pending jobs due at or before now. With the kill
// switch on, nothing executes and due jobs are reported as skipped; the
// switch is re-checked before each job in case it flips mid-run.
func (r *Runner) RunDue(ctx context.Context) (Result, error) {
	now := store.FormatTime(r.clock())

	enabled, err := r.store.KillSwitchEnabled(ctx)
	if err != nil {
		return Result{}, err
	}
	if enabled {
		skipped, err := r.store.CountDuePending(ctx, now)
		if err != nil {
			return Result{}, err
		}
		return Result{Skipped: skipped}, nil
	}

	due, err := r.store.DueJobs(ctx, now)
	if err != nil {
		return Result{}, err
	}

	var result Result
	for _, job := range due {
		enabled, err := r.store.KillSwitchEnabled(ctx)
		if err != nil {
			return result, err
		}
		if enabled {
			result.Skipped++
			metrics.IncJob("skipped")
			continue
		}

		if runErr := r.execute(ctx, job); runErr != nil {
			result.Errors++
			metrics.IncJob("failed")
			if err := r.store.SetJobStatus(ctx, job.ID, store.JobFailed); err != nil {
				return result, err
			}
			r.audit.Record(ctx, audit.Entry{
				ActionType: "run_scheduled_job",
				TargetType: "scheduled_job",
				TargetID:   audit.TargetID(job.ID),
				Request: map[string]any{
					"job_type":     job.JobType,
					"target_id":    job.TargetID,
					"payload_json": job.PayloadJSON,
				},
				Success: false,
				Err:     runErr,
			})
			r.logger.Warn().Err(runErr).Int64("job_id", job.ID).
				Str("job_type", job.JobType).Msg("job failed")
			continue
		}

		result.Processed++
		metrics.IncJob("completed")
		if err := r.store.SetJobStatus(ctx, job.ID, store.JobCompleted); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (r *Runner) execute(ctx context.Context, job store.ScheduledJob) error {
	switch job.JobType {
	case store.JobInitialFollowUp:
		var payload InitialFollowUpPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return validate.Errorf("invalid %s payload: %v", job.JobType, err)
		}
		return r.runInitialFollowUp(ctx, payload.LeadID)

	case store.JobAppointmentReminder:
		var payload ReminderPayload
		if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
			return validate.Errorf("invalid %s payload: %v", job.JobType, err)
		}
		return r.runAppointmentReminder(ctx, payload)

	default:
		return validate.Errorf("unknown job_type: %s", job.JobType)
	}
}

func (r *Runner) runInitialFollowUp(ctx context.Context, leadID int64) error {
	lead, err := r.store.Lead(ctx, leadID)
	if err != nil {
		return err
	}
	conversation, err := r.store.ConversationByLeadID(ctx, leadID)
	if err != nil {
		return err
	}
	location, err := r.store.Location(ctx)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Hi %s, this is %s. Reply YES to see two available intro session times.",
		lead.DisplayName(), location.GymName)

	if _, err := r.gateway.CreateOutboundMessage(ctx, gateway.OutboundRequest{
		LeadID:         leadID,
		ConversationID: conversation.ID,
		Body:           body,
		Automated:      true,
	}); err != nil {
		return err
	}

	return r.store.SetNextAction(ctx, leadID, nil)
}

func (r *Runner) runAppointmentReminder(ctx context.Context, payload ReminderPayload) error {
	lead, err := r.store.Lead(ctx, payload.LeadID)
	if err != nil {
		return err
	}
	conversation, err := r.store.ConversationByLeadID(ctx, payload.LeadID)
	if err != nil {
		return err
	}
	start, err := store.ParseTime(payload.StartAt)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("Reminder %s: your gym appointment is at %s. Reply STOP to opt out.",
		lead.DisplayName(), r.gateway.Oracle().LocalDisplay(start))

	_, err = r.gateway.CreateOutboundMessage(ctx, gateway.OutboundRequest{
		LeadID:         payload.LeadID,
		ConversationID: conversation.ID,
		Body:           body,
		Automated:      true,
	})
	return err
}
