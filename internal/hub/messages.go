package hub

import "time"

// MessageType discriminates server-to-client events on the real-time channel.
type MessageType string

const (
	MessageTypeSubscriptionConfirmed MessageType = "subscription_confirmed"
	MessageTypeUnsubscribeConfirmed  MessageType = "unsubscribe_confirmed"
	MessageTypeTranscription         MessageType = "transcription"
	MessageTypeCallStatus            MessageType = "call_status"
	MessageTypeCallCompleted         MessageType = "call_completed"
	MessageTypeError                 MessageType = "error"
)

// Error codes carried on MessageTypeError events.
const (
	CodeCallNotFound     = "CALL_NOT_FOUND"
	CodeSubscribeInvalid = "SUBSCRIBE_INVALID"
)

// ServerMessage is the single wire shape for every server-to-client event.
// Fields are sparse; the Type discriminator decides which ones are set.
type ServerMessage struct {
	Type MessageType `json:"type"`

	// ID echoes the subscribe key on confirmation events.
	ID string `json:"id,omitempty"`

	CallSID        string `json:"call_sid,omitempty"`
	ConversationID string `json:"conversation_id,omitempty"`

	// Transcription events.
	TranscriptionID int64      `json:"transcription_id,omitempty"`
	SequenceNumber  int        `json:"sequence_number,omitempty"`
	SpeakerType     string     `json:"speaker_type,omitempty"`
	MessageText     string     `json:"message_text,omitempty"`
	Timestamp       *time.Time `json:"timestamp,omitempty"`

	// Call status / completion events.
	Status          string `json:"status,omitempty"`
	Summary         string `json:"summary,omitempty"`
	DurationSeconds int    `json:"duration_seconds,omitempty"`

	// Error events.
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

// ClientMessage is what subscribers send: exactly one of the two fields.
// Pointers distinguish an absent field from an explicitly empty id, which
// must be rejected with a validation error.
type ClientMessage struct {
	Subscribe   *string `json:"subscribe,omitempty"`
	Unsubscribe *string `json:"unsubscribe,omitempty"`
}
