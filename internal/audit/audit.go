// SPDX-License-Identifier: MIT

// Package audit appends one row to the audit_log table for every gateway
// attempt, job execution, dry-run and externally-invoked command, success
// or failure. Writes are best-effort: an audit failure never masks the
// primary result, it is logged and dropped.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"

	"github.com/gymops/leadpilot/internal/log"
	"github.com/gymops/leadpilot/internal/store"
)

// Recorder writes audit entries through the store and mirrors them to a
// dedicated component logger.
type Recorder struct {
	queries *store.Queries
	clock   func() time.Time
	logger  zerolog.Logger
}

// New builds a Recorder over the given queries handle.
func New(q *store.Queries, clock func() time.Time) *Recorder {
	return &Recorder{
		queries: q,
		clock:   clock,
		logger:  log.WithComponent("audit"),
	}
}

// Entry is one audit attempt before serialization.
type Entry struct {
	ActionType string
	TargetType string
	TargetID   *string
	Request    any
	Response   any
	Success    bool
	Err        error
}

// Record serializes and appends the entry. Failures are logged, never
// returned.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	row := store.AuditEntry{
		ActionType:  e.ActionType,
		TargetType:  e.TargetType,
		TargetID:    e.TargetID,
		RequestJSON: marshal(e.Request),
		Success:     e.Success,
		CreatedAt:   store.FormatTime(r.clock()),
	}
	if e.Response != nil {
		response := marshal(e.Response)
		row.ResponseJSON = &response
	}
	if e.Err != nil {
		msg := e.Err.Error()
		row.ErrorMessage = &msg
	}

	if err := r.queries.InsertAuditEntry(ctx, row); err != nil {
		r.logger.Error().Err(err).
			Str("action_type", e.ActionType).
			Msg("audit write failed")
		return
	}

	event := r.logger.Info()
	if !e.Success {
		event = r.logger.Warn()
	}
	event.Str("action_type", e.ActionType).
		Str("target_type", e.TargetType).
		Bool("success", e.Success).
		Msg("audit entry")
}

// TargetID renders an integer id as the audit target.
func TargetID(id int64) *string {
	s := jsonNumber(id)
	return &s
}

// TargetName wraps a string target.
func TargetName(name string) *string {
	return &name
}

func jsonNumber(id int64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}

func marshal(v any) string {
	if v == nil {
		return "{}"
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return `{"marshal_error":true}`
	}
	return string(raw)
}
