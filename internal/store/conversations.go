// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gymops/leadpilot/internal/validate"
)

// ConversationByLeadID loads the lead's 1:1 conversation.
func (q *Queries) ConversationByLeadID(ctx context.Context, leadID int64) (Conversation, error) {
	var c Conversation
	err := q.db.QueryRowContext(ctx,
		`SELECT id, lead_id, state, state_json, last_inbound_at, last_outbound_at, repair_attempts
		 FROM conversations WHERE lead_id=?`, leadID,
	).Scan(&c.ID, &c.LeadID, &c.State, &c.StateJSON, &c.LastInboundAt, &c.LastOutboundAt, &c.RepairAttempts)
	if errors.Is(err, sql.ErrNoRows) {
		return Conversation{}, validate.New("conversation not found for lead")
	}
	if err != nil {
		return Conversation{}, fmt.Errorf("store: load conversation for lead %d: %w", leadID, err)
	}
	return c, nil
}

// DecodeState parses the state blob; a malformed blob yields the empty
// state, matching the forgiving read path of the original data.
func (c Conversation) DecodeState() ConversationState {
	var st ConversationState
	if err := json.Unmarshal([]byte(c.StateJSON), &st); err != nil {
		return ConversationState{}
	}
	return st
}

// EncodeState serializes a state blob.
func EncodeState(st ConversationState) (string, error) {
	if st.OfferedSlots == nil {
		st.OfferedSlots = []SlotChoice{}
	}
	raw, err := json.Marshal(st)
	if err != nil {
		return "", fmt.Errorf("store: encode conversation state: %w", err)
	}
	return string(raw), nil
}

// SetConversationState rewrites state, blob and repair counter atomically.
func (q *Queries) SetConversationState(ctx context.Context, id int64, state string, st ConversationState, repairAttempts int64) error {
	blob, err := EncodeState(st)
	if err != nil {
		return err
	}
	if _, err := q.db.ExecContext(ctx,
		`UPDATE conversations SET state=?, state_json=?, repair_attempts=? WHERE id=?`,
		state, blob, repairAttempts, id,
	); err != nil {
		return fmt.Errorf("store: update conversation state: %w", err)
	}
	return nil
}

// SetConversationLastInbound stamps the inbound side.
func (q *Queries) SetConversationLastInbound(ctx context.Context, id int64, now string) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE conversations SET last_inbound_at=? WHERE id=?`, now, id,
	); err != nil {
		return fmt.Errorf("store: update last_inbound_at: %w", err)
	}
	return nil
}

// SetConversationLastOutbound stamps the outbound side.
func (q *Queries) SetConversationLastOutbound(ctx context.Context, id int64, now string) error {
	if _, err := q.db.ExecContext(ctx,
		`UPDATE conversations SET last_outbound_at=? WHERE id=?`, now, id,
	); err != nil {
		return fmt.Errorf("store: update last_outbound_at: %w", err)
	}
	return nil
}
