package schedule

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory schedule store useful for tests.
// Not intended for production use.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
	Clock   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), Clock: time.Now}
}

func (m *MemoryStore) BulkCreate(ctx context.Context, reqs []NewEntry) ([]Entry, error) {
	if len(reqs) == 0 {
		return nil, ErrInvalidArgument
	}
	for _, r := range reqs {
		if r.DriverID == "" || r.Phone == "" || r.ScheduledAt.IsZero() {
			return nil, ErrInvalidArgument
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.Clock().UTC()
	groupID := uuid.NewString()
	out := make([]Entry, 0, len(reqs))
	for _, r := range reqs {
		e := Entry{
			ID:          uuid.NewString(),
			GroupID:     groupID,
			DriverID:    r.DriverID,
			DriverName:  r.DriverName,
			Phone:       r.Phone,
			Details:     r.Details,
			ScheduledAt: r.ScheduledAt.UTC(),
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		m.entries[e.ID] = e
		out = append(out, e)
	}
	return out, nil
}

func (m *MemoryStore) Due(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []Entry
	for _, e := range m.entries {
		if e.Active && !e.ScheduledAt.After(now) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) Deactivate(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrInvalidArgument
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || !e.Active {
		return false, nil
	}
	e.Active = false
	e.UpdatedAt = m.Clock().UTC()
	m.entries[id] = e
	return true, nil
}

func (m *MemoryStore) GetByGroup(ctx context.Context, groupID string) ([]Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Entry
	for _, e := range m.entries {
		if e.GroupID == groupID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ScheduledAt.Before(out[j].ScheduledAt) })
	return out, nil
}

func (m *MemoryStore) Get(id string) (Entry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	return e, ok
}
