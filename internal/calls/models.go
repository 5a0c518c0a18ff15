package calls

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Call is one outbound dispatch attempt to a driver.
//
// Identity invariants:
// - CallSID is generated locally before the provider is contacted, is
//   globally unique and never changes after the row is created.
// - ConversationID is issued by the provider and stays nil until the
//   provider accepts the call. A row may therefore exist without it.
//
// Exactly one row exists per dispatch attempt. Only the completion webhook
// may move a call into a terminal status, and terminal statuses are
// absorbing.
type Call struct {
	CallSID        string  `json:"call_sid" db:"call_sid"`
	ConversationID *string `json:"conversation_id,omitempty" db:"conversation_id"`

	DriverID   string `json:"driver_id" db:"driver_id"`
	DriverName string `json:"driver_name,omitempty" db:"driver_name"`
	Phone      string `json:"phone" db:"phone"`

	Status CallStatus `json:"status" db:"status"`

	StartedAt *time.Time `json:"started_at,omitempty" db:"started_at"`
	EndedAt   *time.Time `json:"ended_at,omitempty" db:"ended_at"`

	// DurationSeconds is provider-reported call duration.
	DurationSeconds int `json:"duration_seconds" db:"duration_seconds"`

	Summary           string `json:"summary,omitempty" db:"summary"`
	RecordingURL      string `json:"recording_url,omitempty" db:"recording_url"`
	TerminationReason string `json:"termination_reason,omitempty" db:"termination_reason"`

	// Transcript is a denormalized flattened copy of the dialogue for
	// convenience reads; transcriptions rows are the source of truth.
	Transcript string `json:"transcript,omitempty" db:"transcript"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

type CallStatus string

const (
	CallStatusScheduled   CallStatus = "scheduled"
	CallStatusDispatching CallStatus = "dispatching"
	CallStatusInProgress  CallStatus = "in_progress"
	CallStatusCompleted   CallStatus = "completed"
	CallStatusFailed      CallStatus = "failed"
	CallStatusNoAnswer    CallStatus = "no_answer"
)

// IsTerminal reports whether no further transition is expected.
func (s CallStatus) IsTerminal() bool {
	switch s {
	case CallStatusCompleted, CallStatusFailed, CallStatusNoAnswer:
		return true
	default:
		return false
	}
}

// CanTransition encodes the call state machine:
// scheduled -> dispatching -> in_progress -> completed | failed | no_answer.
// Dispatching may also fail directly (provider rejection), and in_progress
// calls the provider never reports back on may be failed by reconciliation.
func (s CallStatus) CanTransition(to CallStatus) bool {
	if s.IsTerminal() {
		return false
	}
	switch s {
	case CallStatusScheduled:
		return to == CallStatusDispatching
	case CallStatusDispatching:
		return to == CallStatusInProgress || to == CallStatusFailed || to == CallStatusNoAnswer || to == CallStatusCompleted
	case CallStatusInProgress:
		return to.IsTerminal()
	default:
		return false
	}
}

const sidPrefix = "EL_"

// DispatchCallSID derives the call_sid for a schedule entry. It is
// deterministic per entry so that two concurrent dispatch attempts for the
// same entry collide on the unique constraint instead of creating two calls.
func DispatchCallSID(scheduleID string) string {
	return sidPrefix + scheduleID
}

// NewCallSID generates a fresh call_sid for ad-hoc calls that do not
// originate from a schedule entry.
func NewCallSID() string {
	return sidPrefix + uuid.NewString()
}

// BackfillCallSID produces the deterministic placeholder assigned to legacy
// rows that predate the call_sid column: EL_{driver_id_or_UNKNOWN}_{created_at_unix}.
func BackfillCallSID(driverID string, createdAt time.Time) string {
	if driverID == "" {
		driverID = "UNKNOWN"
	}
	return fmt.Sprintf("%s%s_%d", sidPrefix, driverID, createdAt.Unix())
}
