// SPDX-License-Identifier: MIT

// Package agent adapts structured actions from an external decision-maker
// into gateway calls. Actions arrive as JSON tagged by action_type;
// dry-run validates without side effects, execute performs the operation
// and never lets an error cross the boundary.
package agent

import (
	"context"
	"encoding/json"

	"github.com/gymops/leadpilot/internal/audit"
	"github.com/gymops/leadpilot/internal/gateway"
	"github.com/gymops/leadpilot/internal/validate"
)

// Action kinds.
const (
	TypeSendOutbound    = "send_outbound"
	TypeBookAppointment = "book_appointment"
	TypeSetOptOut       = "set_opt_out"
	TypeScheduleJob     = "schedule_job"
)

// Action is the tagged sum of agent action kinds. Exactly one of the
// request fields is set, matching Type.
type Action struct {
	Type string

	SendOutbound    *gateway.OutboundRequest
	BookAppointment *gateway.AppointmentRequest
	SetOptOut       *gateway.OptOutRequest
	ScheduleJob     *gateway.ScheduleJobRequest
}

// UnmarshalJSON dispatches on the action_type discriminator; the variant
// fields sit flattened beside it.
func (a *Action) UnmarshalJSON(data []byte) error {
	var tag struct {
		ActionType string `json:"action_type"`
	}
	if err := json.Unmarshal(data, &tag); err != nil {
		return err
	}

	*a = Action{Type: tag.ActionType}
	switch tag.ActionType {
	case TypeSendOutbound:
		a.SendOutbound = &gateway.OutboundRequest{}
		return json.Unmarshal(data, a.SendOutbound)
	case TypeBookAppointment:
		a.BookAppointment = &gateway.AppointmentRequest{}
		return json.Unmarshal(data, a.BookAppointment)
	case TypeSetOptOut:
		a.SetOptOut = &gateway.OptOutRequest{}
		return json.Unmarshal(data, a.SetOptOut)
	case TypeScheduleJob:
		a.ScheduleJob = &gateway.ScheduleJobRequest{}
		return json.Unmarshal(data, a.ScheduleJob)
	default:
		return validate.Errorf("unknown action_type: %s", tag.ActionType)
	}
}

// MarshalJSON emits the same flattened shape UnmarshalJSON accepts.
func (a Action) MarshalJSON() ([]byte, error) {
	switch a.Type {
	case TypeSendOutbound:
		return json.Marshal(struct {
			ActionType string `json:"action_type"`
			gateway.OutboundRequest
		}{a.Type, *a.SendOutbound})
	case TypeBookAppointment:
		return json.Marshal(struct {
			ActionType string `json:"action_type"`
			gateway.AppointmentRequest
		}{a.Type, *a.BookAppointment})
	case TypeSetOptOut:
		return json.Marshal(struct {
			ActionType string `json:"action_type"`
			gateway.OptOutRequest
		}{a.Type, *a.SetOptOut})
	case TypeScheduleJob:
		return json.Marshal(struct {
			ActionType string `json:"action_type"`
			gateway.ScheduleJobRequest
		}{a.Type, *a.ScheduleJob})
	default:
		return nil, validate.Errorf("unknown action_type: %s", a.Type)
	}
}

// DryRunResult reports what execute would do, without doing it.
type DryRunResult struct {
	Allowed       bool            `json:"allowed"`
	BlockedReason *string         `json:"blocked_reason"`
	Warnings      []string        `json:"warnings"`
	Normalized    json.RawMessage `json:"normalized"`
}

// ExecuteResult wraps the gateway outcome; errors live inside it.
type ExecuteResult struct {
	Success    bool            `json:"success"`
	ResultJSON json.RawMessage `json:"result_json"`
	Error      *string         `json:"error"`
}

// Channel runs agent actions against the gateway.
type Channel struct {
	gateway *gateway.Gateway
	audit   *audit.Recorder
}

// New wires a Channel.
func New(gw *gateway.Gateway, recorder *audit.Recorder) *Channel {
	return &Channel{gateway: gw, audit: recorder}
}

// DryRun runs only the validators for the action and reports the verdict.
// Every dry-run is audited, allowed or not.
func (c *Channel) DryRun(ctx context.Context, action Action) (DryRunResult, error) {
	var verdict error
	switch action.Type {
	case TypeSendOutbound:
		verdict = c.gateway.ValidateAgentOutbound(ctx, *action.SendOutbound)
	case TypeBookAppointment:
		verdict = c.gateway.ValidateAppointment(ctx, *action.BookAppointment)
	case TypeSetOptOut:
		verdict = c.gateway.ValidateOptOut(ctx, *action.SetOptOut)
	case TypeScheduleJob:
		verdict = c.gateway.ValidateScheduleJob(ctx, *action.ScheduleJob)
	default:
		return DryRunResult{}, validate.Errorf("unknown action_type: %s", action.Type)
	}

	normalized, err := json.Marshal(action)
	if err != nil {
		return DryRunResult{}, err
	}

	result := DryRunResult{
		Allowed:    verdict == nil,
		Warnings:   []string{},
		Normalized: normalized,
	}
	if verdict != nil {
		reason := verdict.Error()
		result.BlockedReason = &reason
	}

	c.audit.Record(ctx, audit.Entry{
		ActionType: "agent_dry_run",
		TargetType: "agent_action",
		TargetID:   audit.TargetName(action.Type),
		Request:    map[string]any{"action": action},
		Response: map[string]any{
			"allowed":        result.Allowed,
			"blocked_reason": result.BlockedReason,
			"warnings":       result.Warnings,
		},
		Success: result.Allowed,
		Err:     verdict,
	})

	return result, nil
}

// Execute performs the action through the gateway. Any failure, policy or
// store, comes back inside the result; Execute itself does not fail.
func (c *Channel) Execute(ctx context.Context, action Action) ExecuteResult {
	var (
		response any
		err      error
	)
	switch action.Type {
	case TypeSendOutbound:
		var messageID int64
		messageID, err = c.gateway.CreateOutboundMessageForAgent(ctx, *action.SendOutbound)
		response = map[string]int64{"message_id": messageID}
	case TypeBookAppointment:
		var appointmentID int64
		appointmentID, err = c.gateway.CreateAppointment(ctx, *action.BookAppointment)
		response = map[string]int64{"appointment_id": appointmentID}
	case TypeSetOptOut:
		err = c.gateway.SetOptOut(ctx, *action.SetOptOut)
		response = map[string]string{"result": "opted_out"}
	case TypeScheduleJob:
		var jobID int64
		jobID, err = c.gateway.ScheduleJob(ctx, *action.ScheduleJob)
		response = map[string]int64{"job_id": jobID}
	default:
		err = validate.Errorf("unknown action_type: %s", action.Type)
	}

	if err != nil {
		msg := err.Error()
		return ExecuteResult{Error: &msg}
	}

	raw, err := json.Marshal(response)
	if err != nil {
		msg := err.Error()
		return ExecuteResult{Error: &msg}
	}
	return ExecuteResult{Success: true, ResultJSON: raw}
}
