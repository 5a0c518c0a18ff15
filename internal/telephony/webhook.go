package telephony

import (
	"encoding/json"
	"errors"
	"io"
	"time"
)

// CompletionPayload is the provider's post-call webhook body.
//
// The shape is validated strictly at this boundary so internal code never
// branches on raw untyped maps: a payload without a data section or
// without a resolvable call_sid is rejected before any processing.
// Analysis and termination_reason have moved between nestings across
// provider versions, so both spots are accepted.
type CompletionPayload struct {
	Type           string          `json:"type"`
	EventTimestamp int64           `json:"event_timestamp,omitempty"`
	Data           *CompletionData `json:"data"`
}

type CompletionData struct {
	ConversationID string           `json:"conversation_id"`
	Status         string           `json:"status,omitempty"`
	Transcript     []TranscriptTurn `json:"transcript"`

	Metadata *CompletionMetadata `json:"metadata"`

	Analysis          *CompletionAnalysis `json:"analysis,omitempty"`
	TerminationReason string              `json:"termination_reason,omitempty"`
}

// TranscriptTurn is one dialogue turn in provider-reported order.
type TranscriptTurn struct {
	Role    string `json:"role"`
	Message string `json:"message"`
}

type CompletionMetadata struct {
	CallDurationSecs  int                 `json:"call_duration_secs"`
	PhoneCall         *PhoneCallMetadata  `json:"phone_call"`
	Analysis          *CompletionAnalysis `json:"analysis,omitempty"`
	TerminationReason string              `json:"termination_reason,omitempty"`
	StartTimeUnixSecs int64               `json:"start_time_unix_secs"`
}

type PhoneCallMetadata struct {
	CallSID string `json:"call_sid"`
}

type CompletionAnalysis struct {
	TranscriptSummary string `json:"transcript_summary,omitempty"`
	// CallSuccessful is the provider verdict: "success" or "failure".
	CallSuccessful string `json:"call_successful,omitempty"`
}

var (
	ErrMissingData    = errors.New("webhook payload missing data section")
	ErrMissingCallSID = errors.New("webhook payload missing call_sid")
)

// ParseCompletionPayload decodes and validates a webhook body.
func ParseCompletionPayload(r io.Reader) (CompletionPayload, error) {
	var p CompletionPayload
	dec := json.NewDecoder(io.LimitReader(r, 4<<20))
	if err := dec.Decode(&p); err != nil {
		return CompletionPayload{}, err
	}
	if err := p.Validate(); err != nil {
		return CompletionPayload{}, err
	}
	return p, nil
}

func (p CompletionPayload) Validate() error {
	if p.Data == nil {
		return ErrMissingData
	}
	if p.CallSID() == "" {
		return ErrMissingCallSID
	}
	return nil
}

// CallSID resolves the dispatcher-generated identifier from the payload.
func (p CompletionPayload) CallSID() string {
	if p.Data == nil || p.Data.Metadata == nil || p.Data.Metadata.PhoneCall == nil {
		return ""
	}
	return p.Data.Metadata.PhoneCall.CallSID
}

// Analysis returns whichever analysis nesting the provider used.
func (p CompletionPayload) Analysis() *CompletionAnalysis {
	if p.Data == nil {
		return nil
	}
	if p.Data.Analysis != nil {
		return p.Data.Analysis
	}
	if p.Data.Metadata != nil {
		return p.Data.Metadata.Analysis
	}
	return nil
}

// Successful reports the provider's call verdict.
func (p CompletionPayload) Successful() bool {
	a := p.Analysis()
	return a != nil && a.CallSuccessful == "success"
}

// Summary returns the provider's transcript summary, if any.
func (p CompletionPayload) Summary() string {
	if a := p.Analysis(); a != nil {
		return a.TranscriptSummary
	}
	return ""
}

// TerminationReason returns whichever termination nesting the provider used.
func (p CompletionPayload) TerminationReason() string {
	if p.Data == nil {
		return ""
	}
	if p.Data.TerminationReason != "" {
		return p.Data.TerminationReason
	}
	if p.Data.Metadata != nil {
		return p.Data.Metadata.TerminationReason
	}
	return ""
}

// StartTime returns the provider-reported call start, zero when absent.
func (p CompletionPayload) StartTime() time.Time {
	if p.Data == nil || p.Data.Metadata == nil || p.Data.Metadata.StartTimeUnixSecs == 0 {
		return time.Time{}
	}
	return time.Unix(p.Data.Metadata.StartTimeUnixSecs, 0).UTC()
}

// DurationSeconds returns the provider-reported call duration.
func (p CompletionPayload) DurationSeconds() int {
	if p.Data == nil || p.Data.Metadata == nil {
		return 0
	}
	return p.Data.Metadata.CallDurationSecs
}
