package schedule

import "time"

// Entry is one pending outbound-call request.
//
// Invariants:
// - Entries are never physically deleted; they are kept for audit.
// - The dispatcher is the only mutator and only flips Active to false,
//   exactly once per dispatch attempt (success or failure).
type Entry struct {
	ID string `json:"id" db:"id"`

	// GroupID correlates entries submitted in one bulk request.
	GroupID string `json:"group_id" db:"group_id"`

	DriverID   string `json:"driver_id" db:"driver_id"`
	DriverName string `json:"driver_name,omitempty" db:"driver_name"`
	Phone      string `json:"phone" db:"phone"`

	// Details is the free-form reminder/violation payload read out to the
	// driver by the voice agent.
	Details string `json:"details" db:"details"`

	ScheduledAt time.Time `json:"scheduled_at" db:"scheduled_at"`
	Active      bool      `json:"active" db:"active"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// NewEntry is the shape accepted by the bulk intake endpoint.
type NewEntry struct {
	DriverID    string    `json:"driver_id"`
	DriverName  string    `json:"driver_name,omitempty"`
	Phone       string    `json:"phone"`
	Details     string    `json:"details"`
	ScheduledAt time.Time `json:"scheduled_at"`
}
