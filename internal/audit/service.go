package audit

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository is the persistence contract for audit events.
//
// It MUST be append-only.
// No Update/Delete methods are provided by design.

type Repository interface {
	Append(ctx context.Context, e Event) error
}

// Service records call-lifecycle audit information.
//
// IMPORTANT:
// - Callers should treat audit logging as best-effort: log the error and
//   keep going.

type Service struct {
	repo  Repository
	clock func() time.Time
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo, clock: time.Now}
}

var ErrInvalidEvent = errors.New("audit: invalid event")

func (s *Service) Append(ctx context.Context, e Event) error {
	if s == nil || s.repo == nil {
		return errors.New("audit: repository not configured")
	}
	if e.Type == "" {
		return ErrInvalidEvent
	}

	now := s.clock().UTC()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = now
	}
	return s.repo.Append(ctx, e)
}

// LogDispatch records the outcome of one dispatch attempt.
func (s *Service) LogDispatch(ctx context.Context, t EventType, callSID, scheduleID, driverID, message string) error {
	return s.Append(ctx, Event{
		Type:       t,
		CallSID:    callSID,
		ScheduleID: scheduleID,
		DriverID:   driverID,
		Message:    message,
	})
}

// LogWebhook records the outcome of one completion-webhook delivery.
func (s *Service) LogWebhook(ctx context.Context, t EventType, callSID, conversationID, message string) error {
	return s.Append(ctx, Event{
		Type:           t,
		CallSID:        callSID,
		ConversationID: conversationID,
		Message:        message,
	})
}
