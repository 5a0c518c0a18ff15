package transcripts

import (
	"strings"
	"time"
)

// Transcription is one dialogue turn of a completed call.
//
// Invariants:
// - Rows are immutable after creation.
// - For a given conversation, sequence numbers form a dense, strictly
//   increasing series; (conversation_id, sequence_number) is unique.
type Transcription struct {
	ID             int64       `json:"transcription_id" db:"id"`
	ConversationID string      `json:"conversation_id" db:"conversation_id"`
	Speaker        SpeakerType `json:"speaker_type" db:"speaker"`
	Message        string      `json:"message_text" db:"message"`

	// Timestamp is the provider-reported event time of the turn.
	Timestamp time.Time `json:"timestamp" db:"event_at"`

	SequenceNumber int `json:"sequence_number" db:"sequence_number"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type SpeakerType string

const (
	SpeakerAgent  SpeakerType = "agent"
	SpeakerDriver SpeakerType = "driver"
)

// Flatten concatenates turns into the denormalized transcript blob stored
// on the call row, preserving the given order.
func Flatten(turns []Transcription) string {
	var b strings.Builder
	for i, t := range turns {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(string(t.Speaker))
		b.WriteString(": ")
		b.WriteString(t.Message)
	}
	return b.String()
}
