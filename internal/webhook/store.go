package webhook

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"fleetvoice-platform/internal/calls"
	"fleetvoice-platform/internal/transcripts"
	"fleetvoice-platform/pkg/utils"
)

// Outcome classifies what a delivery did to stored state.
type Outcome string

const (
	// OutcomeApplied means the call reached its terminal state and the
	// transcript was persisted by this delivery.
	OutcomeApplied Outcome = "applied"
	// OutcomeDuplicate means the call was already terminal; nothing
	// changed.
	OutcomeDuplicate Outcome = "duplicate"
	// OutcomeUnknown means no call row matches the delivery's call_sid.
	OutcomeUnknown Outcome = "unknown"
)

// Completion is a provider delivery reduced to what storage needs.
type Completion struct {
	CallSID        string
	ConversationID string
	Status         calls.CallStatus

	// StartedAt is the provider-reported start time; zero falls back to
	// the dispatch-recorded start.
	StartedAt       time.Time
	DurationSeconds int

	Summary           string
	TerminationReason string

	Turns []transcripts.Transcription
}

// Result reports the stored state after a delivery.
type Result struct {
	Outcome Outcome
	Call    calls.Call

	// Turns are the stored dialogue turns when the outcome is applied.
	Turns []transcripts.Transcription
}

// Store applies completions transactionally.
type Store interface {
	Apply(ctx context.Context, c Completion) (Result, error)
}

// PGStore applies a completion inside one transaction: lock the call row,
// bail out on duplicates, write the transcript, then flip the call
// terminal. Webhook deliveries for the same call serialize on the row
// lock, so redeliveries observe either nothing or everything.
type PGStore struct {
	db    *sql.DB
	clock func() time.Time
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db, clock: time.Now}
}

func (s *PGStore) Apply(ctx context.Context, c Completion) (Result, error) {
	if c.CallSID == "" {
		return Result{}, calls.ErrInvalidArgument
	}

	var res Result
	err := utils.WithTx(ctx, s.db, nil, func(ctx context.Context, tx *sql.Tx) error {
		call, err := calls.LockBySID(ctx, tx, c.CallSID)
		if errors.Is(err, calls.ErrNotFound) {
			res = Result{Outcome: OutcomeUnknown}
			return nil
		}
		if err != nil {
			return fmt.Errorf("lock call: %w", err)
		}

		if call.Status.IsTerminal() {
			res = Result{Outcome: OutcomeDuplicate, Call: call}
			return nil
		}

		now := s.clock().UTC()
		turns := sequenceTurns(c, now)

		if len(turns) > 0 {
			// The unique constraint absorbs any overlap with turns a
			// partially applied earlier delivery already stored.
			turns, err = transcripts.InsertTurns(ctx, tx, turns)
			if err != nil {
				return fmt.Errorf("insert turns: %w", err)
			}
		}

		update := completionUpdate(call, c, turns, now)
		if err := calls.ApplyCompletion(ctx, tx, update, now); err != nil {
			return fmt.Errorf("apply completion: %w", err)
		}

		res = Result{Outcome: OutcomeApplied, Call: updatedCall(call, update), Turns: turns}
		return nil
	})
	if err != nil {
		return Result{}, err
	}
	return res, nil
}

// sequenceTurns assigns dense sequence numbers in provider order,
// starting at 1.
func sequenceTurns(c Completion, now time.Time) []transcripts.Transcription {
	out := make([]transcripts.Transcription, len(c.Turns))
	for i, t := range c.Turns {
		t.ConversationID = c.ConversationID
		t.SequenceNumber = i + 1
		if t.Timestamp.IsZero() {
			t.Timestamp = now
		}
		t.CreatedAt = now
		out[i] = t
	}
	return out
}

func completionUpdate(call calls.Call, c Completion, turns []transcripts.Transcription, now time.Time) calls.CompletionUpdate {
	started := c.StartedAt
	if started.IsZero() {
		if call.StartedAt != nil {
			started = *call.StartedAt
		} else {
			started = now
		}
	}
	started = started.UTC()
	ended := started.Add(time.Duration(c.DurationSeconds) * time.Second)

	conversationID := c.ConversationID
	if conversationID == "" && call.ConversationID != nil {
		conversationID = *call.ConversationID
	}

	return calls.CompletionUpdate{
		CallSID:           c.CallSID,
		ConversationID:    conversationID,
		Status:            c.Status,
		StartedAt:         &started,
		EndedAt:           &ended,
		DurationSeconds:   c.DurationSeconds,
		Summary:           c.Summary,
		RecordingURL:      call.RecordingURL,
		TerminationReason: c.TerminationReason,
		Transcript:        transcripts.Flatten(turns),
	}
}

func updatedCall(call calls.Call, u calls.CompletionUpdate) calls.Call {
	call.Status = u.Status
	if u.ConversationID != "" {
		cid := u.ConversationID
		call.ConversationID = &cid
	}
	call.StartedAt = u.StartedAt
	call.EndedAt = u.EndedAt
	call.DurationSeconds = u.DurationSeconds
	call.Summary = u.Summary
	call.TerminationReason = u.TerminationReason
	call.Transcript = u.Transcript
	return call
}
