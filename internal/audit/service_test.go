package audit

import (
	"context"
	"testing"
)

func TestService_AppendRequiresType(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.Append(context.Background(), Event{CallSID: "EL_x"}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestService_AppendsImmutableEvents(t *testing.T) {
	repo := NewMemoryRepo()
	svc := NewService(repo)

	if err := svc.LogDispatch(context.Background(), EventTypeDispatchSucceeded, "EL_x", "sched-1", "driver-9", "dispatched"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}

	evs := repo.Events()
	if len(evs) != 1 {
		t.Fatalf("expected 1 event")
	}
	if evs[0].CallSID != "EL_x" || evs[0].ScheduleID != "sched-1" {
		t.Fatalf("expected identifiers captured")
	}
	if evs[0].Type != EventTypeDispatchSucceeded {
		t.Fatalf("expected dispatch_succeeded")
	}
	if evs[0].ID == "" || evs[0].CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp assigned")
	}
}
