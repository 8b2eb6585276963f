// SPDX-License-Identifier: MIT

package commands

import "github.com/gymops/leadpilot/internal/store"

// LeadCreateInput is the create_lead request.
type LeadCreateInput struct {
	PhoneE164 string  `json:"phone_e164"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Consent   bool    `json:"consent"`
	ConsentAt *string `json:"consent_at"`
	Source    string  `json:"source"`
}

// LeadCreateResult reports the outcome; a 30-day duplicate comes back with
// created=false and the existing id.
type LeadCreateResult struct {
	Created     bool    `json:"created"`
	LeadID      int64   `json:"lead_id"`
	DuplicateOf *int64  `json:"duplicate_of"`
	Note        *string `json:"note"`
}

// LeadSummary is the list row shape.
type LeadSummary struct {
	ID                  int64   `json:"id"`
	PhoneE164           string  `json:"phone_e164"`
	FirstName           *string `json:"first_name"`
	LastName            *string `json:"last_name"`
	Status              *string `json:"status"`
	Consent             bool    `json:"consent"`
	OptedOut            bool    `json:"opted_out"`
	NeedsStaffAttention bool    `json:"needs_staff_attention"`
	CreatedAt           string  `json:"created_at"`
}

func summarize(leads []store.Lead) []LeadSummary {
	out := make([]LeadSummary, 0, len(leads))
	for _, l := range leads {
		out = append(out, LeadSummary{
			ID:                  l.ID,
			PhoneE164:           l.PhoneE164,
			FirstName:           l.FirstName,
			LastName:            l.LastName,
			Status:              l.Status,
			Consent:             l.Consent,
			OptedOut:            l.OptedOut,
			NeedsStaffAttention: l.NeedsStaffAttention,
			CreatedAt:           l.CreatedAt,
		})
	}
	return out
}

// LeadView is the full lead shape inside a detail response.
type LeadView struct {
	ID                  int64   `json:"id"`
	PhoneE164           string  `json:"phone_e164"`
	FirstName           *string `json:"first_name"`
	LastName            *string `json:"last_name"`
	Status              *string `json:"status"`
	Consent             bool    `json:"consent"`
	ConsentAt           *string `json:"consent_at"`
	ConsentSource       *string `json:"consent_source"`
	OptedOut            bool    `json:"opted_out"`
	NeedsStaffAttention bool    `json:"needs_staff_attention"`
	LastContactAt       *string `json:"last_contact_at"`
	NextActionAt        *string `json:"next_action_at"`
	CreatedAt           string  `json:"created_at"`
}

// ConversationView is the thread shape inside a detail response.
type ConversationView struct {
	ID             int64   `json:"id"`
	State          string  `json:"state"`
	StateJSON      string  `json:"state_json"`
	LastInboundAt  *string `json:"last_inbound_at"`
	LastOutboundAt *string `json:"last_outbound_at"`
	RepairAttempts int64   `json:"repair_attempts"`
}

// MessageView is one message row inside a detail response.
type MessageView struct {
	ID        int64  `json:"id"`
	Direction string `json:"direction"`
	Body      string `json:"body"`
	Status    string `json:"status"`
	CreatedAt string `json:"created_at"`
}

// AppointmentView is one appointment row inside a detail response.
type AppointmentView struct {
	ID      int64  `json:"id"`
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
	Status  string `json:"status"`
}

// LeadDetail is the get_lead_detail response: the lead, its conversation,
// and full message and appointment history.
type LeadDetail struct {
	Lead         LeadView          `json:"lead"`
	Conversation ConversationView  `json:"conversation"`
	Messages     []MessageView     `json:"messages"`
	Appointments []AppointmentView `json:"appointments"`
}

// TodayReport aggregates activity over the location's local calendar day.
type TodayReport struct {
	LeadsCreated   int64 `json:"leads_created"`
	Contacted      int64 `json:"contacted"`
	Booked         int64 `json:"booked"`
	OptOuts        int64 `json:"opt_outs"`
	NeedsAttention int64 `json:"needs_attention"`
}
