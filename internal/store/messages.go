// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"fmt"
)

// InsertMessage appends a message row and returns its id.
func (q *Queries) InsertMessage(ctx context.Context, conversationID int64, direction, body, status, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, direction, body, status, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		conversationID, direction, body, status, now,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: message id: %w", err)
	}
	return id, nil
}

// ListMessagesByConversation returns the thread oldest first.
func (q *Queries) ListMessagesByConversation(ctx context.Context, conversationID int64) ([]Message, error) {
	rows, err := q.db.QueryContext(ctx,
		`SELECT id, conversation_id, direction, body, status, created_at
		 FROM messages WHERE conversation_id=? ORDER BY created_at ASC, id ASC`, conversationID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: list messages: %w", err)
	}
	defer rows.Close()

	var messages []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Direction, &m.Body, &m.Status, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate messages: %w", err)
	}
	return messages, nil
}

// CountOutboundForLeadBetween counts the lead's outbound messages with
// created_at in [from, to). Drives the per-lead daily rate limit.
func (q *Queries) CountOutboundForLeadBetween(ctx context.Context, leadID int64, from, to string) (int64, error) {
	return q.countRow(ctx,
		`SELECT COUNT(*) FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE c.lead_id = ? AND m.direction = 'OUTBOUND' AND m.created_at >= ? AND m.created_at < ?`,
		leadID, from, to)
}

// CountOutboundSince counts all outbound messages at or after since.
// Drives the per-location rolling-hour rate limit.
func (q *Queries) CountOutboundSince(ctx context.Context, since string) (int64, error) {
	return q.countRow(ctx,
		`SELECT COUNT(*) FROM messages WHERE direction = 'OUTBOUND' AND created_at >= ?`, since)
}

// CountDuplicateOutbound counts outbound messages on the conversation with
// the identical body at or after since. Drives the agent idempotency guard.
func (q *Queries) CountDuplicateOutbound(ctx context.Context, conversationID int64, body, since string) (int64, error) {
	return q.countRow(ctx,
		`SELECT COUNT(*) FROM messages
		 WHERE conversation_id = ? AND direction = 'OUTBOUND' AND body = ? AND created_at >= ?`,
		conversationID, body, since)
}

// CountDistinctLeadsContactedBetween counts distinct leads with an outbound
// in [from, to). Feeds the today report.
func (q *Queries) CountDistinctLeadsContactedBetween(ctx context.Context, from, to string) (int64, error) {
	return q.countRow(ctx,
		`SELECT COUNT(DISTINCT c.lead_id) FROM messages m
		 JOIN conversations c ON c.id = m.conversation_id
		 WHERE m.direction = 'OUTBOUND' AND m.created_at >= ? AND m.created_at < ?`,
		from, to)
}
