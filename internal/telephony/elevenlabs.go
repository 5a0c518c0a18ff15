package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"fleetvoice-platform/internal/config"
)

// ElevenLabsProvider dispatches outbound calls through the ElevenLabs
// conversational-AI telephony API.
//
// Adapter-only: no business decisions are made here. Network failures and
// provider rejections surface as errors; the dispatcher decides what a
// failure means for the call row.
type ElevenLabsProvider struct {
	baseURL            string
	apiKey             string
	agentID            string
	agentPhoneNumberID string
	client             *http.Client
}

const apiKeyHeader = "xi-api-key"

var ErrProviderRejected = errors.New("provider rejected dispatch")

func NewElevenLabsProvider(cfg config.ProviderConfig) *ElevenLabsProvider {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &ElevenLabsProvider{
		baseURL:            cfg.BaseURL,
		apiKey:             cfg.APIKey,
		agentID:            cfg.AgentID,
		agentPhoneNumberID: cfg.AgentPhoneNumberID,
		client:             &http.Client{Timeout: timeout},
	}
}

func (p *ElevenLabsProvider) Name() string { return "elevenlabs" }

func (p *ElevenLabsProvider) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+"/v1/user", nil)
	if err != nil {
		return err
	}
	req.Header.Set(apiKeyHeader, p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("provider health check status %d", resp.StatusCode)
	}
	return nil
}

type outboundCallRequest struct {
	AgentID            string             `json:"agent_id"`
	AgentPhoneNumberID string             `json:"agent_phone_number_id,omitempty"`
	ToNumber           string             `json:"to_number"`
	ConversationData   conversationConfig `json:"conversation_initiation_client_data"`
}

type conversationConfig struct {
	DynamicVariables map[string]string `json:"dynamic_variables"`
	WebhookURL       string            `json:"webhook_url,omitempty"`
}

type outboundCallResponse struct {
	Success        bool   `json:"success"`
	Message        string `json:"message,omitempty"`
	ConversationID string `json:"conversation_id"`
	CallSID        string `json:"callSid,omitempty"`
}

// DispatchCall places one outbound agent call. The generated call script is
// parameterized through dynamic variables; the agent template at the
// provider interpolates them.
func (p *ElevenLabsProvider) DispatchCall(ctx context.Context, req DispatchRequest) (DispatchResult, error) {
	if req.CallSID == "" || req.Phone == "" {
		return DispatchResult{}, fmt.Errorf("call_sid and phone are required")
	}

	body := outboundCallRequest{
		AgentID:            p.agentID,
		AgentPhoneNumberID: p.agentPhoneNumberID,
		ToNumber:           req.Phone,
		ConversationData: conversationConfig{
			DynamicVariables: map[string]string{
				"call_sid":         req.CallSID,
				"driver_id":        req.DriverID,
				"driver_name":      req.DriverName,
				"reminder_details": req.Details,
			},
			WebhookURL: req.CallbackURL,
		},
	}

	raw, err := json.Marshal(body)
	if err != nil {
		return DispatchResult{}, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/convai/twilio/outbound-call", bytes.NewReader(raw))
	if err != nil {
		return DispatchResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set(apiKeyHeader, p.apiKey)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return DispatchResult{}, fmt.Errorf("provider dispatch: %w", err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return DispatchResult{}, fmt.Errorf("provider dispatch read: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return DispatchResult{}, fmt.Errorf("%w: status %d: %s", ErrProviderRejected, resp.StatusCode, truncate(string(payload), 200))
	}

	var out outboundCallResponse
	if err := json.Unmarshal(payload, &out); err != nil {
		return DispatchResult{}, fmt.Errorf("provider dispatch decode: %w", err)
	}
	if out.ConversationID == "" {
		return DispatchResult{}, fmt.Errorf("%w: %s", ErrProviderRejected, truncate(out.Message, 200))
	}
	return DispatchResult{ConversationID: out.ConversationID}, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
