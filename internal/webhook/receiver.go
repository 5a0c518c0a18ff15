package webhook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"fleetvoice-platform/internal/audit"
	"fleetvoice-platform/internal/calls"
	"fleetvoice-platform/internal/hub"
	"fleetvoice-platform/internal/telephony"
	"fleetvoice-platform/internal/transcripts"
	"fleetvoice-platform/pkg/utils"
)

// Publisher fans call events out to websocket subscribers.
type Publisher interface {
	Publish(ctx context.Context, msg hub.ServerMessage, keys ...string)
}

// Receiver turns provider completion webhooks into stored state and
// subscriber events.
//
// Rules:
//   - The call is matched by call_sid only; conversation_id is recorded
//     but never used for matching.
//   - Deliveries for already-terminal calls are acknowledged no-ops.
//   - Deliveries for unknown call_sids are acknowledged and ignored so the
//     provider stops retrying them.
type Receiver struct {
	store Store
	pub   Publisher
	audit *audit.Service
	retry utils.RetryPolicy
	log   *slog.Logger
	clock func() time.Time
}

func NewReceiver(store Store, pub Publisher, auditor *audit.Service, retry utils.RetryPolicy, log *slog.Logger) *Receiver {
	return &Receiver{
		store: store,
		pub:   pub,
		audit: auditor,
		retry: retry,
		log:   log.With("component", "webhook_receiver"),
		clock: time.Now,
	}
}

// Process applies a validated payload. The returned Result is what the
// HTTP handler translates into a status code; err is non-nil only for
// storage failures, which the provider should retry.
func (r *Receiver) Process(ctx context.Context, p telephony.CompletionPayload) (Result, error) {
	completion := r.toCompletion(p)
	log := r.log.With("call_sid", completion.CallSID, "conversation_id", completion.ConversationID)

	var res Result
	err := utils.RetryTransient(ctx, r.retry, func(ctx context.Context) error {
		var err error
		res, err = r.store.Apply(ctx, completion)
		return err
	})
	if err != nil {
		return Result{}, fmt.Errorf("apply completion: %w", err)
	}

	switch res.Outcome {
	case OutcomeUnknown:
		log.Warn("webhook for unknown call, ignoring")
		r.auditLog(ctx, audit.EventTypeWebhookIgnored, completion, "no call row for call_sid")
	case OutcomeDuplicate:
		log.Info("webhook redelivery for terminal call, no-op")
		r.auditLog(ctx, audit.EventTypeWebhookDuplicate, completion, "")
	case OutcomeApplied:
		log.Info("call completed", "status", res.Call.Status, "turns", len(res.Turns))
		r.auditLog(ctx, audit.EventTypeWebhookApplied, completion, "")
		r.publish(ctx, res)
	}
	return res, nil
}

// toCompletion maps the provider payload onto the storage shape.
// The terminal status is derived from the provider verdict and the
// termination reason; "no answer" style reasons beat the verdict.
func (r *Receiver) toCompletion(p telephony.CompletionPayload) Completion {
	status := calls.CallStatusFailed
	reason := p.TerminationReason()
	switch {
	case isNoAnswer(reason):
		status = calls.CallStatusNoAnswer
	case p.Successful():
		status = calls.CallStatusCompleted
	}

	var turns []transcripts.Transcription
	if p.Data != nil {
		turns = make([]transcripts.Transcription, 0, len(p.Data.Transcript))
		for _, t := range p.Data.Transcript {
			speaker := transcripts.SpeakerDriver
			if t.Role == "agent" {
				speaker = transcripts.SpeakerAgent
			}
			turns = append(turns, transcripts.Transcription{
				Speaker: speaker,
				Message: t.Message,
			})
		}
	}

	var conversationID string
	if p.Data != nil {
		conversationID = p.Data.ConversationID
	}

	return Completion{
		CallSID:           p.CallSID(),
		ConversationID:    conversationID,
		Status:            status,
		StartedAt:         p.StartTime(),
		DurationSeconds:   p.DurationSeconds(),
		Summary:           p.Summary(),
		TerminationReason: reason,
		Turns:             turns,
	}
}

func isNoAnswer(reason string) bool {
	switch reason {
	case "no_answer", "voicemail", "busy", "call_rejected":
		return true
	default:
		return false
	}
}

// publish emits the event sequence subscribers expect: a status update,
// one transcription per stored turn in sequence order, then the terminal
// call_completed. Events are keyed by both the call sid and the
// conversation id so either subscription path receives them.
func (r *Receiver) publish(ctx context.Context, res Result) {
	if r.pub == nil {
		return
	}
	keys := []string{res.Call.CallSID}
	var conversationID string
	if res.Call.ConversationID != nil {
		conversationID = *res.Call.ConversationID
		keys = append(keys, conversationID)
	}

	r.pub.Publish(ctx, hub.ServerMessage{
		Type:           hub.MessageTypeCallStatus,
		CallSID:        res.Call.CallSID,
		ConversationID: conversationID,
		Status:         string(res.Call.Status),
	}, keys...)

	for _, turn := range res.Turns {
		ts := turn.Timestamp
		r.pub.Publish(ctx, hub.ServerMessage{
			Type:            hub.MessageTypeTranscription,
			CallSID:         res.Call.CallSID,
			ConversationID:  turn.ConversationID,
			TranscriptionID: turn.ID,
			SequenceNumber:  turn.SequenceNumber,
			SpeakerType:     string(turn.Speaker),
			MessageText:     turn.Message,
			Timestamp:       &ts,
		}, keys...)
	}

	r.pub.Publish(ctx, hub.ServerMessage{
		Type:            hub.MessageTypeCallCompleted,
		CallSID:         res.Call.CallSID,
		ConversationID:  conversationID,
		Status:          string(res.Call.Status),
		Summary:         res.Call.Summary,
		DurationSeconds: res.Call.DurationSeconds,
	}, keys...)
}

func (r *Receiver) auditLog(ctx context.Context, t audit.EventType, c Completion, msg string) {
	if r.audit == nil {
		return
	}
	if err := r.audit.LogWebhook(ctx, t, c.CallSID, c.ConversationID, msg); err != nil {
		r.log.Warn("audit append failed", "error", err, "type", t)
	}
}
