package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"fleetvoice-platform/internal/audit"
	"fleetvoice-platform/internal/calls"
	"fleetvoice-platform/internal/schedule"
	"fleetvoice-platform/internal/telephony"
	"fleetvoice-platform/pkg/utils"
)

type fakeProvider struct {
	mu       sync.Mutex
	requests []telephony.DispatchRequest
	err      error
}

func (p *fakeProvider) Name() string                          { return "fake" }
func (p *fakeProvider) HealthCheck(ctx context.Context) error { return nil }

func (p *fakeProvider) DispatchCall(ctx context.Context, req telephony.DispatchRequest) (telephony.DispatchResult, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if p.err != nil {
		return telephony.DispatchResult{}, p.err
	}
	return telephony.DispatchResult{ConversationID: "conv_" + req.CallSID}, nil
}

func (p *fakeProvider) calls() []telephony.DispatchRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]telephony.DispatchRequest, len(p.requests))
	copy(out, p.requests)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastRetry() utils.RetryPolicy {
	return utils.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func seedEntry(t *testing.T, ss *schedule.MemoryStore, due time.Time) schedule.Entry {
	t.Helper()
	entries, err := ss.BulkCreate(context.Background(), []schedule.NewEntry{{
		DriverID:    "drv_1",
		DriverName:  "Pat",
		Phone:       "+15550001111",
		Details:     "speeding violation follow-up",
		ScheduledAt: due,
	}})
	if err != nil {
		t.Fatalf("seed entry: %v", err)
	}
	return entries[0]
}

func newTestDispatcher(cs CallStore, ss ScheduleStore, p telephony.Provider) *Dispatcher {
	auditor := audit.NewService(audit.NewMemoryRepo())
	return New(cs, ss, p, auditor, testLogger(), Options{
		CallbackURL: "https://api.example.com/webhooks/voice/completed",
		Workers:     2,
		Retry:       fastRetry(),
	})
}

func TestDispatchSuccess(t *testing.T) {
	cs := calls.NewMemoryStore()
	ss := schedule.NewMemoryStore()
	provider := &fakeProvider{}
	now := time.Now()
	entry := seedEntry(t, ss, now.Add(-time.Minute))

	d := newTestDispatcher(cs, ss, provider)
	if err := d.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	sid := calls.DispatchCallSID(entry.ID)
	got, err := cs.GetBySID(context.Background(), sid)
	if err != nil {
		t.Fatalf("GetBySID: %v", err)
	}
	if got.Status != calls.CallStatusInProgress {
		t.Fatalf("status = %s, want in_progress", got.Status)
	}
	if got.ConversationID == nil || *got.ConversationID != "conv_"+sid {
		t.Fatalf("conversation_id = %v", got.ConversationID)
	}
	if got.StartedAt == nil {
		t.Fatal("started_at not set")
	}

	reqs := provider.calls()
	if len(reqs) != 1 {
		t.Fatalf("provider calls = %d, want 1", len(reqs))
	}
	if reqs[0].CallSID != sid || reqs[0].Phone != "+15550001111" {
		t.Fatalf("request = %+v", reqs[0])
	}
	if reqs[0].CallbackURL == "" {
		t.Fatal("callback url not forwarded")
	}

	if e, ok := ss.Get(entry.ID); !ok || e.Active {
		t.Fatalf("entry still active after dispatch: %+v", e)
	}
}

func TestDispatchProviderFailure(t *testing.T) {
	cs := calls.NewMemoryStore()
	ss := schedule.NewMemoryStore()
	provider := &fakeProvider{err: errors.New("provider unavailable")}
	entry := seedEntry(t, ss, time.Now().Add(-time.Minute))

	d := newTestDispatcher(cs, ss, provider)
	if err := d.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	got, err := cs.GetBySID(context.Background(), calls.DispatchCallSID(entry.ID))
	if err != nil {
		t.Fatalf("GetBySID: %v", err)
	}
	if got.Status != calls.CallStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.TerminationReason == "" {
		t.Fatal("failure reason not recorded")
	}

	// Failure still consumes the entry; no automatic reschedule.
	if e, _ := ss.Get(entry.ID); e.Active {
		t.Fatal("entry still active after failed dispatch")
	}
}

func TestDispatchSkipsNotDue(t *testing.T) {
	cs := calls.NewMemoryStore()
	ss := schedule.NewMemoryStore()
	provider := &fakeProvider{}
	seedEntry(t, ss, time.Now().Add(time.Hour))

	d := newTestDispatcher(cs, ss, provider)
	if err := d.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	if n := len(provider.calls()); n != 0 {
		t.Fatalf("provider calls = %d, want 0", n)
	}
}

func TestDispatchDuplicateClaimSkips(t *testing.T) {
	cs := calls.NewMemoryStore()
	ss := schedule.NewMemoryStore()
	provider := &fakeProvider{}
	entry := seedEntry(t, ss, time.Now().Add(-time.Minute))

	// Another instance already created the call row for this entry.
	sid := calls.DispatchCallSID(entry.ID)
	if _, err := cs.Create(context.Background(), calls.Call{
		CallSID:  sid,
		DriverID: entry.DriverID,
		Phone:    entry.Phone,
		Status:   calls.CallStatusDispatching,
	}); err != nil {
		t.Fatalf("pre-claim: %v", err)
	}

	d := newTestDispatcher(cs, ss, provider)
	if err := d.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	if n := len(provider.calls()); n != 0 {
		t.Fatalf("provider contacted despite existing claim: %d calls", n)
	}
	got, err := cs.GetBySID(context.Background(), sid)
	if err != nil {
		t.Fatalf("GetBySID: %v", err)
	}
	if got.Status != calls.CallStatusDispatching {
		t.Fatalf("pre-claimed row mutated: %s", got.Status)
	}

	// The existing call row proves the attempt happened; the entry must
	// not stay due for every following tick.
	if e, _ := ss.Get(entry.ID); e.Active {
		t.Fatal("entry still active after duplicate claim")
	}
}

func TestDispatchManyEntriesOneTick(t *testing.T) {
	cs := calls.NewMemoryStore()
	ss := schedule.NewMemoryStore()
	provider := &fakeProvider{}
	due := time.Now().Add(-time.Minute)

	reqs := make([]schedule.NewEntry, 10)
	for i := range reqs {
		reqs[i] = schedule.NewEntry{
			DriverID:    "drv_many",
			Phone:       "+15550002222",
			Details:     "inspection reminder",
			ScheduledAt: due,
		}
	}
	entries, err := ss.BulkCreate(context.Background(), reqs)
	if err != nil {
		t.Fatalf("BulkCreate: %v", err)
	}

	d := newTestDispatcher(cs, ss, provider)
	if err := d.RunTick(context.Background()); err != nil {
		t.Fatalf("RunTick: %v", err)
	}

	if n := len(provider.calls()); n != len(entries) {
		t.Fatalf("provider calls = %d, want %d", n, len(entries))
	}
	for _, e := range entries {
		if got, _ := ss.Get(e.ID); got.Active {
			t.Fatalf("entry %s still active", e.ID)
		}
	}
}
