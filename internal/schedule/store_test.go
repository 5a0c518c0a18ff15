package schedule

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMemoryStore_BulkCreate_RejectsBadRows(t *testing.T) {
	m := NewMemoryStore()

	_, err := m.BulkCreate(context.Background(), nil)
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for empty batch, got %v", err)
	}

	_, err = m.BulkCreate(context.Background(), []NewEntry{
		{DriverID: "d1", Phone: "+15550001111", ScheduledAt: time.Now()},
		{DriverID: "", Phone: "+15550002222", ScheduledAt: time.Now()},
	})
	if !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument for bad row, got %v", err)
	}
}

func TestMemoryStore_BulkCreate_SharesGroupID(t *testing.T) {
	m := NewMemoryStore()
	entries, err := m.BulkCreate(context.Background(), []NewEntry{
		{DriverID: "d1", Phone: "+15550001111", Details: "HOS violation", ScheduledAt: time.Now()},
		{DriverID: "d2", Phone: "+15550002222", Details: "delivery reminder", ScheduledAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("bulk create failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].GroupID == "" || entries[0].GroupID != entries[1].GroupID {
		t.Fatalf("expected shared group id, got %q and %q", entries[0].GroupID, entries[1].GroupID)
	}
	for _, e := range entries {
		if !e.Active {
			t.Fatalf("expected new entries active")
		}
	}
}

func TestMemoryStore_Due_FiltersAndOrders(t *testing.T) {
	m := NewMemoryStore()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	entries, err := m.BulkCreate(context.Background(), []NewEntry{
		{DriverID: "late", Phone: "+1", ScheduledAt: now.Add(-2 * time.Hour)},
		{DriverID: "later", Phone: "+1", ScheduledAt: now.Add(-1 * time.Hour)},
		{DriverID: "future", Phone: "+1", ScheduledAt: now.Add(1 * time.Hour)},
	})
	if err != nil {
		t.Fatalf("bulk create failed: %v", err)
	}

	due, err := m.Due(context.Background(), now, 10)
	if err != nil {
		t.Fatalf("due failed: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due entries, got %d", len(due))
	}
	if due[0].DriverID != "late" || due[1].DriverID != "later" {
		t.Fatalf("expected oldest first, got %s then %s", due[0].DriverID, due[1].DriverID)
	}

	// A deactivated entry is never due again.
	if won, err := m.Deactivate(context.Background(), entries[0].ID); err != nil || !won {
		t.Fatalf("deactivate failed: won=%v err=%v", won, err)
	}
	due, _ = m.Due(context.Background(), now, 10)
	if len(due) != 1 {
		t.Fatalf("expected 1 due entry after deactivate, got %d", len(due))
	}
}

func TestMemoryStore_Deactivate_ExactlyOnce(t *testing.T) {
	m := NewMemoryStore()
	entries, err := m.BulkCreate(context.Background(), []NewEntry{
		{DriverID: "d1", Phone: "+1", ScheduledAt: time.Now()},
	})
	if err != nil {
		t.Fatalf("bulk create failed: %v", err)
	}

	won, err := m.Deactivate(context.Background(), entries[0].ID)
	if err != nil || !won {
		t.Fatalf("first deactivate should win: won=%v err=%v", won, err)
	}
	won, err = m.Deactivate(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("second deactivate errored: %v", err)
	}
	if won {
		t.Fatalf("second deactivate must not win")
	}
}
