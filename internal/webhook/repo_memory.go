package webhook

import (
	"context"
	"sync"
	"time"

	"fleetvoice-platform/internal/calls"
	"fleetvoice-platform/internal/transcripts"
)

// MemoryStore mirrors PGStore semantics over the in-memory calls store,
// for tests and local runs without Postgres.
type MemoryStore struct {
	mu     sync.Mutex
	calls  *calls.MemoryStore
	turns  map[string][]transcripts.Transcription
	nextID int64
	Clock  func() time.Time
}

func NewMemoryStore(cs *calls.MemoryStore) *MemoryStore {
	return &MemoryStore{
		calls: cs,
		turns: make(map[string][]transcripts.Transcription),
		Clock: time.Now,
	}
}

func (m *MemoryStore) Apply(ctx context.Context, c Completion) (Result, error) {
	if c.CallSID == "" {
		return Result{}, calls.ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	call, err := m.calls.GetBySID(ctx, c.CallSID)
	if err != nil {
		return Result{Outcome: OutcomeUnknown}, nil
	}
	if call.Status.IsTerminal() {
		return Result{Outcome: OutcomeDuplicate, Call: call}, nil
	}

	now := m.Clock().UTC()
	turns := sequenceTurns(c, now)
	stored := m.turns[c.ConversationID]
	for i := range turns {
		// Conflict path: a turn at this position keeps its original id.
		if i < len(stored) {
			turns[i].ID = stored[i].ID
			continue
		}
		m.nextID++
		turns[i].ID = m.nextID
	}
	if len(turns) > 0 {
		m.turns[c.ConversationID] = turns
	}

	update := completionUpdate(call, c, turns, now)
	updated := updatedCall(call, update)
	updated.UpdatedAt = now
	m.calls.Apply(updated)

	return Result{Outcome: OutcomeApplied, Call: updated, Turns: turns}, nil
}

// Turns returns the stored dialogue for a conversation.
func (m *MemoryStore) Turns(conversationID string) []transcripts.Transcription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]transcripts.Transcription, len(m.turns[conversationID]))
	copy(out, m.turns[conversationID])
	return out
}
