package transcripts

import "testing"

func TestFlatten(t *testing.T) {
	turns := []Transcription{
		{Speaker: SpeakerAgent, Message: "Hello, this is your dispatch reminder."},
		{Speaker: SpeakerDriver, Message: "Got it, thanks."},
	}
	got := Flatten(turns)
	want := "agent: Hello, this is your dispatch reminder.\ndriver: Got it, thanks."
	if got != want {
		t.Fatalf("unexpected flattened transcript:\n%q\nwant:\n%q", got, want)
	}
}

func TestFlatten_Empty(t *testing.T) {
	if got := Flatten(nil); got != "" {
		t.Fatalf("expected empty string, got %q", got)
	}
}
