// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
)

// InsertAuditEntry appends one audit row.
func (q *Queries) InsertAuditEntry(ctx context.Context, e AuditEntry) error {
	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO audit_log (action_type, target_type, target_id, request_json, response_json, success, error_message, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ActionType, e.TargetType, e.TargetID, e.RequestJSON, e.ResponseJSON,
		boolInt(e.Success), e.ErrorMessage, e.CreatedAt,
	); err != nil {
		return fmt.Errorf("store: insert audit entry: %w", err)
	}
	return nil
}

// CountAuditSuccessBetween counts successful entries of the given action
// type with created_at in [from, to). Feeds the today report's opt-out count.
func (q *Queries) CountAuditSuccessBetween(ctx context.Context, actionType, from, to string) (int64, error) {
	return q.countRow(ctx,
		`SELECT COUNT(*) FROM audit_log
		 WHERE action_type=? AND success=1 AND created_at >= ? AND created_at < ?`,
		actionType, from, to)
}

// AuditEntries returns entries of the given action type, newest first.
// Primarily a test and diagnostics hook.
func (q *Queries) AuditEntries(ctx context.Context, actionType string) ([]AuditEntry, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, action_type, target_type, target_id, request_json, response_json, success, error_message, created_at
		 FROM audit_log WHERE action_type=? ORDER BY id DESC`, actionType,
	)
	if err != nil {
		return nil, fmt.Errorf("store: query audit log: %w", err)
	}
	defer rows.Close()

	var entries []AuditEntry
	for rows.Next() {
		var e AuditEntry
		var success int64
		if err := rows.Scan(&e.ID, &e.ActionType, &e.TargetType, &e.TargetID, &e.RequestJSON,
			&e.ResponseJSON, &success, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		e.Success = success != 0
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate audit log: %w", err)
	}
	return entries, nil
}
