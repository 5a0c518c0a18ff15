package webhook

import (
	"context"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"fleetvoice-platform/internal/audit"
	"fleetvoice-platform/internal/calls"
	"fleetvoice-platform/internal/hub"
	"fleetvoice-platform/internal/telephony"
	"fleetvoice-platform/pkg/utils"
)

type capturePublisher struct {
	events []hub.ServerMessage
	keys   [][]string
}

func (p *capturePublisher) Publish(ctx context.Context, msg hub.ServerMessage, keys ...string) {
	p.events = append(p.events, msg)
	p.keys = append(p.keys, keys)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func fastRetry() utils.RetryPolicy {
	return utils.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Millisecond}
}

func completionPayload(callSID, convID string) telephony.CompletionPayload {
	return telephony.CompletionPayload{
		Type: "post_call_transcription",
		Data: &telephony.CompletionData{
			ConversationID: convID,
			Transcript: []telephony.TranscriptTurn{
				{Role: "agent", Message: "Hello, this is your fleet reminder."},
				{Role: "user", Message: "Got it, thanks."},
				{Role: "agent", Message: "Drive safe."},
			},
			Metadata: &telephony.CompletionMetadata{
				CallDurationSecs:  42,
				PhoneCall:         &telephony.PhoneCallMetadata{CallSID: callSID},
				Analysis:          &telephony.CompletionAnalysis{TranscriptSummary: "Reminder acknowledged.", CallSuccessful: "success"},
				StartTimeUnixSecs: 1700000000,
			},
		},
	}
}

func seedInProgress(t *testing.T, cs *calls.MemoryStore, sid, convID string) {
	t.Helper()
	if _, err := cs.Create(context.Background(), calls.Call{
		CallSID:  sid,
		DriverID: "drv_1",
		Phone:    "+15550001111",
		Status:   calls.CallStatusDispatching,
	}); err != nil {
		t.Fatalf("seed call: %v", err)
	}
	if err := cs.MarkInProgress(context.Background(), sid, convID, time.Now()); err != nil {
		t.Fatalf("mark in_progress: %v", err)
	}
}

func newTestReceiver(store Store, pub Publisher) *Receiver {
	auditor := audit.NewService(audit.NewMemoryRepo())
	return NewReceiver(store, pub, auditor, fastRetry(), testLogger())
}

func TestProcessAppliesCompletion(t *testing.T) {
	cs := calls.NewMemoryStore()
	store := NewMemoryStore(cs)
	pub := &capturePublisher{}
	seedInProgress(t, cs, "EL_sched1", "conv_1")

	r := newTestReceiver(store, pub)
	res, err := r.Process(context.Background(), completionPayload("EL_sched1", "conv_1"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != OutcomeApplied {
		t.Fatalf("outcome = %s, want applied", res.Outcome)
	}

	got, err := cs.GetBySID(context.Background(), "EL_sched1")
	if err != nil {
		t.Fatalf("GetBySID: %v", err)
	}
	if got.Status != calls.CallStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.DurationSeconds != 42 {
		t.Fatalf("duration = %d, want 42", got.DurationSeconds)
	}
	if got.Summary != "Reminder acknowledged." {
		t.Fatalf("summary = %q", got.Summary)
	}
	if got.StartedAt == nil || got.StartedAt.Unix() != 1700000000 {
		t.Fatalf("started_at = %v", got.StartedAt)
	}
	if got.EndedAt == nil || got.EndedAt.Sub(*got.StartedAt) != 42*time.Second {
		t.Fatalf("ended_at = %v", got.EndedAt)
	}
	if !strings.Contains(got.Transcript, "agent: Hello") || !strings.Contains(got.Transcript, "driver: Got it") {
		t.Fatalf("flattened transcript = %q", got.Transcript)
	}

	turns := store.Turns("conv_1")
	if len(turns) != 3 {
		t.Fatalf("stored turns = %d, want 3", len(turns))
	}
	for i, turn := range turns {
		if turn.SequenceNumber != i+1 {
			t.Fatalf("turn %d sequence = %d", i, turn.SequenceNumber)
		}
		if turn.ID == 0 {
			t.Fatalf("turn %d has no id", i)
		}
	}
	if turns[1].Speaker != "driver" {
		t.Fatalf("user role mapped to %q, want driver", turns[1].Speaker)
	}
}

func TestProcessRedeliveryIsNoOp(t *testing.T) {
	cs := calls.NewMemoryStore()
	store := NewMemoryStore(cs)
	pub := &capturePublisher{}
	seedInProgress(t, cs, "EL_sched1", "conv_1")

	r := newTestReceiver(store, pub)
	payload := completionPayload("EL_sched1", "conv_1")

	if _, err := r.Process(context.Background(), payload); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	firstEvents := len(pub.events)

	res, err := r.Process(context.Background(), payload)
	if err != nil {
		t.Fatalf("second delivery: %v", err)
	}
	if res.Outcome != OutcomeDuplicate {
		t.Fatalf("outcome = %s, want duplicate", res.Outcome)
	}
	if len(pub.events) != firstEvents {
		t.Fatalf("redelivery published %d extra events", len(pub.events)-firstEvents)
	}
	if n := len(store.Turns("conv_1")); n != 3 {
		t.Fatalf("turns after redelivery = %d, want 3", n)
	}
}

func TestProcessUnknownCallIgnored(t *testing.T) {
	cs := calls.NewMemoryStore()
	store := NewMemoryStore(cs)
	pub := &capturePublisher{}

	r := newTestReceiver(store, pub)
	res, err := r.Process(context.Background(), completionPayload("EL_ghost", "conv_x"))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if res.Outcome != OutcomeUnknown {
		t.Fatalf("outcome = %s, want unknown", res.Outcome)
	}
	if len(pub.events) != 0 {
		t.Fatalf("published %d events for unknown call", len(pub.events))
	}
}

func TestProcessPublishOrdering(t *testing.T) {
	cs := calls.NewMemoryStore()
	store := NewMemoryStore(cs)
	pub := &capturePublisher{}
	seedInProgress(t, cs, "EL_sched1", "conv_1")

	r := newTestReceiver(store, pub)
	if _, err := r.Process(context.Background(), completionPayload("EL_sched1", "conv_1")); err != nil {
		t.Fatalf("Process: %v", err)
	}

	// status, 3 transcriptions in sequence order, then call_completed.
	if len(pub.events) != 5 {
		t.Fatalf("events = %d, want 5", len(pub.events))
	}
	if pub.events[0].Type != hub.MessageTypeCallStatus {
		t.Fatalf("event 0 = %s", pub.events[0].Type)
	}
	seenIDs := map[int64]bool{}
	for i := 1; i <= 3; i++ {
		e := pub.events[i]
		if e.Type != hub.MessageTypeTranscription || e.SequenceNumber != i {
			t.Fatalf("event %d = %+v", i, e)
		}
		if e.TranscriptionID == 0 || seenIDs[e.TranscriptionID] {
			t.Fatalf("event %d transcription_id = %d", i, e.TranscriptionID)
		}
		seenIDs[e.TranscriptionID] = true
	}
	last := pub.events[4]
	if last.Type != hub.MessageTypeCallCompleted || last.Status != "completed" {
		t.Fatalf("last event = %+v", last)
	}
	if last.DurationSeconds != 42 {
		t.Fatalf("completed duration = %d", last.DurationSeconds)
	}

	// Every event is keyed by both the call sid and the conversation id.
	for i, keys := range pub.keys {
		if len(keys) != 2 || keys[0] != "EL_sched1" || keys[1] != "conv_1" {
			t.Fatalf("event %d keys = %v", i, keys)
		}
	}
}

func TestProcessFailureVerdicts(t *testing.T) {
	cases := []struct {
		name       string
		successful string
		reason     string
		want       calls.CallStatus
	}{
		{"provider failure", "failure", "agent_error", calls.CallStatusFailed},
		{"no answer", "failure", "no_answer", calls.CallStatusNoAnswer},
		{"voicemail", "failure", "voicemail", calls.CallStatusNoAnswer},
		{"busy", "failure", "busy", calls.CallStatusNoAnswer},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cs := calls.NewMemoryStore()
			store := NewMemoryStore(cs)
			seedInProgress(t, cs, "EL_x", "conv_x")

			payload := completionPayload("EL_x", "conv_x")
			payload.Data.Metadata.Analysis.CallSuccessful = tc.successful
			payload.Data.Metadata.TerminationReason = tc.reason

			r := newTestReceiver(store, nil)
			if _, err := r.Process(context.Background(), payload); err != nil {
				t.Fatalf("Process: %v", err)
			}
			got, _ := cs.GetBySID(context.Background(), "EL_x")
			if got.Status != tc.want {
				t.Fatalf("status = %s, want %s", got.Status, tc.want)
			}
			if got.TerminationReason != tc.reason {
				t.Fatalf("reason = %q, want %q", got.TerminationReason, tc.reason)
			}
		})
	}
}
