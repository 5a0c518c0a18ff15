package audit

import "time"

// Event is an immutable, append-only record of a call-lifecycle action.
//
// Invariants:
// - Events are never updated or deleted.
// - Appending is best-effort; audit failures must not block dispatch or
//   webhook processing.
type Event struct {
	ID string `json:"id" db:"id"`

	// Type indicates the lifecycle action recorded.
	Type EventType `json:"type" db:"type"`

	// Identifiers of the affected call and its origin (optional per type).
	CallSID        string `json:"call_sid,omitempty" db:"call_sid"`
	ConversationID string `json:"conversation_id,omitempty" db:"conversation_id"`
	ScheduleID     string `json:"schedule_id,omitempty" db:"schedule_id"`
	DriverID       string `json:"driver_id,omitempty" db:"driver_id"`

	// Message is a short human-readable description for internal ops.
	Message string `json:"message,omitempty" db:"message"`

	// Metadata is optional JSON for full details.
	Metadata string `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeDispatchSucceeded EventType = "dispatch_succeeded"
	EventTypeDispatchFailed    EventType = "dispatch_failed"
	EventTypeDispatchSkipped   EventType = "dispatch_skipped"
	EventTypeWebhookApplied    EventType = "webhook_applied"
	EventTypeWebhookDuplicate  EventType = "webhook_duplicate"
	EventTypeWebhookIgnored    EventType = "webhook_ignored"
)
