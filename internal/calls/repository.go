package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// NOTE: This repository assumes the following schema (see migrations/):
// - calls(call_sid UNIQUE NOT NULL, conversation_id NULL, status, ...)
// - compound index on (call_sid, status)

const callColumns = `
call_sid, conversation_id, driver_id, driver_name, phone, status,
started_at, ended_at, duration_seconds, summary, recording_url,
termination_reason, transcript, created_at, updated_at`

func scanCall(row interface{ Scan(...any) error }) (Call, error) {
	var c Call
	var conversationID sql.NullString
	var startedAt, endedAt sql.NullTime
	err := row.Scan(
		&c.CallSID,
		&conversationID,
		&c.DriverID,
		&c.DriverName,
		&c.Phone,
		&c.Status,
		&startedAt,
		&endedAt,
		&c.DurationSeconds,
		&c.Summary,
		&c.RecordingURL,
		&c.TerminationReason,
		&c.Transcript,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		return Call{}, err
	}
	if conversationID.Valid {
		c.ConversationID = &conversationID.String
	}
	if startedAt.Valid {
		t := startedAt.Time
		c.StartedAt = &t
	}
	if endedAt.Valid {
		t := endedAt.Time
		c.EndedAt = &t
	}
	return c, nil
}

func insertCall(ctx context.Context, db *sql.DB, c Call) error {
	const q = `
INSERT INTO calls (
  call_sid, conversation_id, driver_id, driver_name, phone, status,
  duration_seconds, summary, recording_url, termination_reason, transcript,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
`
	_, err := db.ExecContext(ctx, q,
		c.CallSID,
		c.ConversationID,
		c.DriverID,
		c.DriverName,
		c.Phone,
		c.Status,
		c.DurationSeconds,
		c.Summary,
		c.RecordingURL,
		c.TerminationReason,
		c.Transcript,
		c.CreatedAt,
		c.UpdatedAt,
	)
	return err
}

func getCallBySID(ctx context.Context, db *sql.DB, callSID string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE call_sid = $1`
	c, err := scanCall(db.QueryRowContext(ctx, q, callSID))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func getCallByConversationID(ctx context.Context, db *sql.DB, conversationID string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE conversation_id = $1`
	c, err := scanCall(db.QueryRowContext(ctx, q, conversationID))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

// LockBySID locks the call row to serialize concurrent webhook deliveries
// for the same call_sid.
func LockBySID(ctx context.Context, tx *sql.Tx, callSID string) (Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls WHERE call_sid = $1 FOR UPDATE`
	c, err := scanCall(tx.QueryRowContext(ctx, q, callSID))
	if errors.Is(err, sql.ErrNoRows) {
		return Call{}, ErrNotFound
	}
	return c, err
}

func markDispatchOutcome(ctx context.Context, db *sql.DB, callSID string, conversationID *string, status CallStatus, reason string, startedAt *time.Time, now time.Time) error {
	// Conditional update keeps terminal rows immutable even if a stale
	// dispatcher retries after the webhook already landed.
	const q = `
UPDATE calls
SET conversation_id = COALESCE($2, conversation_id),
    status = $3,
    termination_reason = CASE WHEN $4 = '' THEN termination_reason ELSE $4 END,
    started_at = COALESCE($5, started_at),
    updated_at = $6
WHERE call_sid = $1
  AND status IN ('scheduled', 'dispatching')
`
	res, err := db.ExecContext(ctx, q, callSID, conversationID, status, reason, startedAt, now)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrStaleTransition
	}
	return nil
}

// CompletionUpdate carries the terminal fields the webhook applies.
type CompletionUpdate struct {
	CallSID           string
	ConversationID    string
	Status            CallStatus
	StartedAt         *time.Time
	EndedAt           *time.Time
	DurationSeconds   int
	Summary           string
	RecordingURL      string
	TerminationReason string
	Transcript        string
}

// ApplyCompletion moves a locked call into its terminal state. The caller
// must hold the row lock (LockBySID) inside the same transaction.
func ApplyCompletion(ctx context.Context, tx *sql.Tx, u CompletionUpdate, now time.Time) error {
	const q = `
UPDATE calls
SET conversation_id = $2,
    status = $3,
    started_at = $4,
    ended_at = $5,
    duration_seconds = $6,
    summary = $7,
    recording_url = $8,
    termination_reason = $9,
    transcript = $10,
    updated_at = $11
WHERE call_sid = $1
`
	_, err := tx.ExecContext(ctx, q,
		u.CallSID,
		nullIfEmpty(u.ConversationID),
		u.Status,
		u.StartedAt,
		u.EndedAt,
		u.DurationSeconds,
		u.Summary,
		u.RecordingURL,
		u.TerminationReason,
		u.Transcript,
		now,
	)
	return err
}

func listRecentCalls(ctx context.Context, db *sql.DB, limit int) ([]Call, error) {
	const q = `SELECT ` + callColumns + ` FROM calls ORDER BY created_at DESC LIMIT $1`
	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Call
	for rows.Next() {
		c, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func callExists(ctx context.Context, db *sql.DB, id string) (bool, error) {
	const q = `SELECT 1 FROM calls WHERE call_sid = $1 OR conversation_id = $1 LIMIT 1`
	var one int
	err := db.QueryRowContext(ctx, q, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
