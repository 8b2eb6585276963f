// SPDX-License-Identifier: MIT

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/gymops/leadpilot/internal/validate"
)

const leadColumns = `id, phone_e164, first_name, last_name, consent, consent_at, consent_source,
	status, opted_out, needs_staff_attention, last_contact_at, next_action_at, created_at`

func scanLead(row interface{ Scan(...any) error }) (Lead, error) {
	var l Lead
	var consent, optedOut, needsAttention int64
	err := row.Scan(&l.ID, &l.PhoneE164, &l.FirstName, &l.LastName, &consent, &l.ConsentAt,
		&l.ConsentSource, &l.Status, &optedOut, &needsAttention, &l.LastContactAt,
		&l.NextActionAt, &l.CreatedAt)
	if err != nil {
		return Lead{}, err
	}
	l.Consent = consent != 0
	l.OptedOut = optedOut != 0
	l.NeedsStaffAttention = needsAttention != 0
	return l, nil
}

// NewLead carries the fields for an insert.
type NewLead struct {
	PhoneE164     string
	FirstName     *string
	LastName      *string
	Consent       bool
	ConsentAt     *string
	ConsentSource *string
}

// InsertLead creates the lead and its 1:1 conversation, both in state
// awaiting_yes.
func (q *Queries) InsertLead(ctx context.Context, n NewLead, now string) (int64, error) {
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO leads (phone_e164, first_name, last_name, consent, consent_at, consent_source,
			status, opted_out, needs_staff_attention, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, 'awaiting_yes', 0, 0, ?)`,
		n.PhoneE164, n.FirstName, n.LastName, boolInt(n.Consent), n.ConsentAt, n.ConsentSource, now,
	)
	if err != nil {
		return 0, fmt.Errorf("store: insert lead: %w", err)
	}
	leadID, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("store: lead id: %w", err)
	}

	if _, err := q.db.ExecContext(ctx,
		`INSERT INTO conversations (lead_id, state, state_json, repair_attempts)
		 VALUES (?, 'awaiting_yes', '{"offered_slots":[]}', 0)`, leadID,
	); err != nil {
		return 0, fmt.Errorf("store: insert conversation: %w", err)
	}
	return leadID, nil
}

// Lead loads a lead by id. A missing lead is a validation error.
func (q *Queries) Lead(ctx context.Context, id int64) (Lead, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id=?`, id)
	l, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Lead{}, validate.New("lead not found")
	}
	if err != nil {
		return Lead{}, fmt.Errorf("store: load lead %d: %w", id, err)
	}
	return l, nil
}

// RecentLeadIDByPhone returns the newest lead id with the given phone
// created at or after since, or 0 if none.
func (q *Queries) RecentLeadIDByPhone(ctx context.Context, phone, since string) (int64, error) {
	var id int64
	err := q.db.QueryRowContext(ctx,
		`SELECT id FROM leads WHERE phone_e164=? AND created_at >= ? ORDER BY created_at DESC, id DESC LIMIT 1`,
		phone, since,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: duplicate lookup: %w", err)
	}
	return id, nil
}

// ListLeads returns all leads, newest first.
func (q *Queries) ListLeads(ctx context.Context) ([]Lead, error) {
	return q.queryLeads(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC, id DESC`)
}

// SearchLeads matches phone or name, case-insensitive substring.
func (q *Queries) SearchLeads(ctx context.Context, query string) ([]Lead, error) {
	wildcard := "%" + query + "%"
	return q.queryLeads(ctx,
		`SELECT `+leadColumns+` FROM leads
		 WHERE LOWER(phone_e164) LIKE LOWER(?1)
		    OR LOWER(COALESCE(first_name, '')) LIKE LOWER(?1)
		    OR LOWER(COALESCE(last_name, '')) LIKE LOWER(?1)
		 ORDER BY created_at DESC, id DESC`, wildcard)
}

// AgentQueue returns actionable leads: consented, not opted out, not
// flagged, and either due by next_action_at or replied within threeDaysAgo
// with no newer outbound.
func (q *Queries) AgentQueue(ctx context.Context, now, threeDaysAgo string) ([]Lead, error) {
	return q.queryLeads(ctx,
		`SELECT `+leadPrefixed("l")+`
		 FROM leads l
		 JOIN conversations c ON c.lead_id = l.id
		 WHERE l.opted_out = 0
		   AND l.needs_staff_attention = 0
		   AND l.consent = 1
		   AND (
		        (l.next_action_at IS NOT NULL AND l.next_action_at <= ?1)
		        OR (
		            c.last_inbound_at IS NOT NULL
		            AND c.last_inbound_at >= ?2
		            AND (c.last_outbound_at IS NULL OR c.last_inbound_at > c.last_outbound_at)
		        )
		   )
		 ORDER BY COALESCE(l.next_action_at, c.last_inbound_at, l.created_at) ASC`,
		now, threeDaysAgo)
}

func leadPrefixed(alias string) string {
	return alias + `.id, ` + alias + `.phone_e164, ` + alias + `.first_name, ` + alias + `.last_name, ` +
		alias + `.consent, ` + alias + `.consent_at, ` + alias + `.consent_source, ` + alias + `.status, ` +
		alias + `.opted_out, ` + alias + `.needs_staff_attention, ` + alias + `.last_contact_at, ` +
		alias + `.next_action_at, ` + alias + `.created_at`
}

func (q *Queries) queryLeads(ctx context.Context, query string, args ...any) ([]Lead, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query leads: %w", err)
	}
	defer rows.Close()

	var leads []Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate leads: %w", err)
	}
	return leads, nil
}

// SetLeadStatus updates the conversational status field.
func (q *Queries) SetLeadStatus(ctx context.Context, leadID int64, status string) error {
	return q.execLead(ctx, `UPDATE leads SET status=? WHERE id=?`, status, leadID)
}

// MarkLeadBooked sets status=booked and clears next_action_at.
func (q *Queries) MarkLeadBooked(ctx context.Context, leadID int64) error {
	return q.execLead(ctx, `UPDATE leads SET status='booked', next_action_at=NULL WHERE id=?`, leadID)
}

// MarkOptedOut flips the opted_out flag and status together. Irreversible
// by design; nothing in the system writes opted_out=0.
func (q *Queries) MarkOptedOut(ctx context.Context, leadID int64) error {
	return q.execLead(ctx, `UPDATE leads SET opted_out=1, status='opted_out', next_action_at=NULL WHERE id=?`, leadID)
}

// TouchLeadContact records an outbound or inbound contact and backfills a
// missing status.
func (q *Queries) TouchLeadContact(ctx context.Context, leadID int64, now string) error {
	return q.execLead(ctx,
		`UPDATE leads SET last_contact_at=?, status=COALESCE(status, 'awaiting_yes') WHERE id=?`, now, leadID)
}

// SetLeadLastContact updates only last_contact_at.
func (q *Queries) SetLeadLastContact(ctx context.Context, leadID int64, now string) error {
	return q.execLead(ctx, `UPDATE leads SET last_contact_at=? WHERE id=?`, now, leadID)
}

// SetNextAction sets next_action_at; pass nil to clear.
func (q *Queries) SetNextAction(ctx context.Context, leadID int64, at *string) error {
	return q.execLead(ctx, `UPDATE leads SET next_action_at=? WHERE id=?`, at, leadID)
}

// FlagNeedsStaffAttention marks the lead for human follow-up.
func (q *Queries) FlagNeedsStaffAttention(ctx context.Context, leadID int64) error {
	return q.execLead(ctx, `UPDATE leads SET needs_staff_attention=1 WHERE id=?`, leadID)
}

// CountLeadsCreatedBetween counts leads with created_at in [from, to).
func (q *Queries) CountLeadsCreatedBetween(ctx context.Context, from, to string) (int64, error) {
	return q.countRow(ctx, `SELECT COUNT(*) FROM leads WHERE created_at >= ? AND created_at < ?`, from, to)
}

// CountNeedsStaffAttention counts currently flagged leads.
func (q *Queries) CountNeedsStaffAttention(ctx context.Context) (int64, error) {
	return q.countRow(ctx, `SELECT COUNT(*) FROM leads WHERE needs_staff_attention=1`)
}

func (q *Queries) execLead(ctx context.Context, query string, args ...any) error {
	if _, err := q.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: update lead: %w", err)
	}
	return nil
}

func (q *Queries) countRow(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := q.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count: %w", err)
	}
	return n, nil
}

func boolInt(v bool) int64 {
	if v {
		return 1
	}
	return 0
}
