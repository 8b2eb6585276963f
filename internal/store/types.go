// SPDX-License-Identifier: MIT

package store

import (
	"time"

	"github.com/gymops/leadpilot/internal/validate"
)

// Lead statuses.
const (
	StatusAwaitingYes        = "awaiting_yes"
	StatusAwaitingTimeChoice = "awaiting_time_choice"
	StatusBooked             = "booked"
	StatusOptedOut           = "opted_out"
)

// Message directions and statuses.
const (
	DirectionInbound  = "INBOUND"
	DirectionOutbound = "OUTBOUND"

	MessageSent     = "sent"
	MessageReceived = "received"
)

// Appointment statuses.
const (
	AppointmentBooked    = "booked"
	AppointmentCancelled = "cancelled"
)

// Scheduled job types and statuses.
const (
	JobInitialFollowUp     = "initial_follow_up"
	JobAppointmentReminder = "appointment_reminder"

	JobPending   = "pending"
	JobCompleted = "completed"
	JobFailed    = "failed"
	JobCancelled = "cancelled"
)

// Location is the single configured gym location.
type Location struct {
	ID                int64
	GymName           string
	Timezone          string
	BusinessHoursJSON string
}

// Lead is one prospective member.
type Lead struct {
	ID                  int64
	PhoneE164           string
	FirstName           *string
	LastName            *string
	Consent             bool
	ConsentAt           *string
	ConsentSource       *string
	Status              *string
	OptedOut            bool
	NeedsStaffAttention bool
	LastContactAt       *string
	NextActionAt        *string
	CreatedAt           string
}

// DisplayName returns the first name or "there" for message templates.
func (l Lead) DisplayName() string {
	if l.FirstName != nil && *l.FirstName != "" {
		return *l.FirstName
	}
	return "there"
}

// Conversation is the 1:1 thread attached to a lead.
type Conversation struct {
	ID             int64
	LeadID         int64
	State          string
	StateJSON      string
	LastInboundAt  *string
	LastOutboundAt *string
	RepairAttempts int64
}

// SlotChoice is one offered appointment window, persisted inside the
// conversation state blob.
type SlotChoice struct {
	StartAt string `json:"start_at"`
	EndAt   string `json:"end_at"`
}

// ConversationState is the serialized state blob.
type ConversationState struct {
	OfferedSlots []SlotChoice `json:"offered_slots"`
}

// Message is one inbound or outbound SMS-style message.
type Message struct {
	ID             int64
	ConversationID int64
	Direction      string
	Body           string
	Status         string
	CreatedAt      string
}

// Appointment is a booked or cancelled intro session.
type Appointment struct {
	ID        int64
	LeadID    int64
	StartAt   string
	EndAt     string
	Status    string
	CreatedAt string
}

// ScheduledJob is one pending or terminal automation job.
type ScheduledJob struct {
	ID          int64
	JobType     string
	TargetID    *int64
	ExecuteAt   string
	Status      string
	PayloadJSON string
	CreatedAt   string
}

// AuditEntry is one append-only gateway attempt record.
type AuditEntry struct {
	ID           int64
	ActionType   string
	TargetType   string
	TargetID     *string
	RequestJSON  string
	ResponseJSON *string
	Success      bool
	ErrorMessage *string
	CreatedAt    string
}

// TimeLayout is the stored timestamp shape: whole-second RFC 3339 UTC, so
// lexicographic comparison equals time comparison.
const TimeLayout = "2006-01-02T15:04:05Z"

// FormatTime normalizes t to the stored timestamp shape.
func FormatTime(t time.Time) string {
	return t.UTC().Truncate(time.Second).Format(TimeLayout)
}

// ParseTime parses a stored or supplied RFC 3339 timestamp into UTC.
// Failures surface as validation errors per the error handling policy.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, validate.Errorf("invalid timestamp %q: must be RFC 3339", s)
	}
	return t.UTC(), nil
}
