package telephony

import (
	"context"
)

// Provider defines the provider-agnostic dispatch interface used by
// business logic.
//
// Rules:
// - No provider SDK/HTTP calls outside telephony adapters.
// - The call_sid is generated locally and handed to the provider; the
//   provider echoes it back in the completion webhook.
// - Keep request/response types provider-agnostic; raw payloads belong in
//   metadata if ever needed.
type Provider interface {
	Name() string
	HealthCheck(ctx context.Context) error

	// DispatchCall asks the provider to place one outbound agent call.
	DispatchCall(ctx context.Context, req DispatchRequest) (DispatchResult, error)
}

// DispatchRequest describes one outbound call to place.
type DispatchRequest struct {
	// CallSID is the locally generated identifier for this attempt.
	CallSID string `json:"call_sid"`

	DriverID   string `json:"driver_id"`
	DriverName string `json:"driver_name,omitempty"`

	// Phone is the destination in E.164 where possible.
	Phone string `json:"phone"`

	// Details is the reminder/violation payload the agent reads out.
	Details string `json:"details"`

	// CallbackURL receives the completion webhook for this call.
	CallbackURL string `json:"callback_url"`
}

// DispatchResult carries the provider's acceptance of a dispatch.
type DispatchResult struct {
	// ConversationID is the provider-issued identifier; present only once
	// the provider accepted the call.
	ConversationID string `json:"conversation_id"`
}
