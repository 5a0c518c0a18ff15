package calls

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-memory call store useful for tests.
// It mirrors Store's semantics including call_sid uniqueness and the
// terminal-status immutability guard. Not intended for production use.
type MemoryStore struct {
	mu    sync.Mutex
	bySID map[string]Call
	Clock func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{bySID: make(map[string]Call), Clock: time.Now}
}

func (m *MemoryStore) Create(ctx context.Context, c Call) (Call, error) {
	if c.DriverID == "" || c.Phone == "" {
		return Call{}, ErrInvalidArgument
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = CallStatusDispatching
	}
	if c.CallSID == "" {
		c.CallSID = BackfillCallSID(c.DriverID, c.CreatedAt)
	}

	if _, exists := m.bySID[c.CallSID]; exists {
		return Call{}, ErrDuplicateCallSID
	}
	m.bySID[c.CallSID] = c
	return c, nil
}

func (m *MemoryStore) GetBySID(ctx context.Context, callSID string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.bySID[callSID]
	if !ok {
		return Call{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) GetByConversationID(ctx context.Context, conversationID string) (Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.bySID {
		if c.ConversationID != nil && *c.ConversationID == conversationID {
			return c, nil
		}
	}
	return Call{}, ErrNotFound
}

func (m *MemoryStore) Resolve(ctx context.Context, id string) (Call, error) {
	if id == "" {
		return Call{}, ErrInvalidArgument
	}
	if c, err := m.GetBySID(ctx, id); err == nil {
		return c, nil
	}
	return m.GetByConversationID(ctx, id)
}

func (m *MemoryStore) ListRecent(ctx context.Context, limit int) ([]Call, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, 0, len(m.bySID))
	for _, c := range m.bySID {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Known(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.bySID[id]; ok {
		return true, nil
	}
	for _, c := range m.bySID {
		if c.ConversationID != nil && *c.ConversationID == id {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) MarkInProgress(ctx context.Context, callSID, conversationID string, startedAt time.Time) error {
	if callSID == "" || conversationID == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.bySID[callSID]
	if !ok {
		return ErrNotFound
	}
	if !c.Status.CanTransition(CallStatusInProgress) {
		return ErrStaleTransition
	}
	sa := startedAt.UTC()
	c.ConversationID = &conversationID
	c.Status = CallStatusInProgress
	c.StartedAt = &sa
	c.UpdatedAt = m.Clock().UTC()
	m.bySID[callSID] = c
	return nil
}

func (m *MemoryStore) MarkFailed(ctx context.Context, callSID, reason string) error {
	if callSID == "" {
		return ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.bySID[callSID]
	if !ok {
		return ErrNotFound
	}
	if !c.Status.CanTransition(CallStatusFailed) {
		return ErrStaleTransition
	}
	c.Status = CallStatusFailed
	c.TerminationReason = reason
	c.UpdatedAt = m.Clock().UTC()
	m.bySID[callSID] = c
	return nil
}

// Apply replaces a stored call; webhook tests use it to emulate the
// transactional completion update.
func (m *MemoryStore) Apply(c Call) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bySID[c.CallSID] = c
}
