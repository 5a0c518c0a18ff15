package telephony

import (
	"errors"
	"strings"
	"testing"
	"time"
)

const completionBody = `{
  "type": "post_call_transcription",
  "data": {
    "conversation_id": "conv_42",
    "transcript": [
      {"role": "agent", "message": "Hi, reminder about your delivery window."},
      {"role": "user", "message": "Thanks, on my way."}
    ],
    "metadata": {
      "call_duration_secs": 95,
      "phone_call": {"call_sid": "EL_abc"},
      "analysis": {"transcript_summary": "Driver confirmed.", "call_successful": "success"},
      "termination_reason": "agent hangup",
      "start_time_unix_secs": 1700000000
    }
  }
}`

func TestParseCompletionPayload(t *testing.T) {
	p, err := ParseCompletionPayload(strings.NewReader(completionBody))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.CallSID() != "EL_abc" {
		t.Fatalf("unexpected call_sid %q", p.CallSID())
	}
	if p.Data.ConversationID != "conv_42" {
		t.Fatalf("unexpected conversation_id %q", p.Data.ConversationID)
	}
	if len(p.Data.Transcript) != 2 {
		t.Fatalf("expected 2 turns, got %d", len(p.Data.Transcript))
	}
	if !p.Successful() {
		t.Fatalf("expected success verdict")
	}
	if p.Summary() != "Driver confirmed." {
		t.Fatalf("unexpected summary %q", p.Summary())
	}
	if p.TerminationReason() != "agent hangup" {
		t.Fatalf("unexpected termination reason %q", p.TerminationReason())
	}
	if p.DurationSeconds() != 95 {
		t.Fatalf("unexpected duration %d", p.DurationSeconds())
	}
	want := time.Unix(1700000000, 0).UTC()
	if !p.StartTime().Equal(want) {
		t.Fatalf("unexpected start time %v", p.StartTime())
	}
}

func TestParseCompletionPayload_MissingData(t *testing.T) {
	_, err := ParseCompletionPayload(strings.NewReader(`{"type": "post_call_transcription"}`))
	if !errors.Is(err, ErrMissingData) {
		t.Fatalf("expected ErrMissingData, got %v", err)
	}
}

func TestParseCompletionPayload_MissingCallSID(t *testing.T) {
	body := `{"type":"post_call_transcription","data":{"conversation_id":"c1","metadata":{"call_duration_secs":5}}}`
	_, err := ParseCompletionPayload(strings.NewReader(body))
	if !errors.Is(err, ErrMissingCallSID) {
		t.Fatalf("expected ErrMissingCallSID, got %v", err)
	}
}

func TestCompletionPayload_AnalysisAtDataLevel(t *testing.T) {
	body := `{
  "type": "post_call_transcription",
  "data": {
    "conversation_id": "c1",
    "analysis": {"call_successful": "failure", "transcript_summary": "No answer."},
    "termination_reason": "no answer",
    "metadata": {"call_duration_secs": 0, "phone_call": {"call_sid": "EL_x"}, "start_time_unix_secs": 1700000100}
  }
}`
	p, err := ParseCompletionPayload(strings.NewReader(body))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if p.Successful() {
		t.Fatalf("expected failure verdict")
	}
	if p.Summary() != "No answer." {
		t.Fatalf("unexpected summary %q", p.Summary())
	}
	if p.TerminationReason() != "no answer" {
		t.Fatalf("unexpected termination reason %q", p.TerminationReason())
	}
}
