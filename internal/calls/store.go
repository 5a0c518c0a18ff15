package calls

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fleetvoice-platform/pkg/utils"
)

var (
	ErrNotFound         = errors.New("call not found")
	ErrInvalidArgument  = errors.New("invalid argument")
	ErrDuplicateCallSID = errors.New("call_sid already exists")
	// ErrStaleTransition means the row was no longer in a state the
	// requested transition is valid from (e.g. the webhook landed first).
	ErrStaleTransition = errors.New("stale status transition")
)

// Store persists call attempts in Postgres.
type Store struct {
	db *sql.DB
	// clock is injectable for deterministic tests.
	clock func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

// DB exposes the underlying pool for callers that compose multi-store
// transactions (the webhook receiver).
func (s *Store) DB() *sql.DB { return s.db }

// Create inserts a new call attempt. The call_sid must be set by the
// caller; a legacy-format placeholder is derived when it is not.
// A unique violation maps to ErrDuplicateCallSID so dispatchers can treat
// "already dispatched" as a no-op.
func (s *Store) Create(ctx context.Context, c Call) (Call, error) {
	if c.DriverID == "" || c.Phone == "" {
		return Call{}, ErrInvalidArgument
	}

	now := s.clock().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	if c.Status == "" {
		c.Status = CallStatusDispatching
	}
	if c.CallSID == "" {
		c.CallSID = BackfillCallSID(c.DriverID, c.CreatedAt)
	}

	if err := insertCall(ctx, s.db, c); err != nil {
		if utils.IsUniqueViolation(err, "") {
			return Call{}, ErrDuplicateCallSID
		}
		return Call{}, err
	}
	return c, nil
}

func (s *Store) GetBySID(ctx context.Context, callSID string) (Call, error) {
	if callSID == "" {
		return Call{}, ErrInvalidArgument
	}
	return getCallBySID(ctx, s.db, callSID)
}

func (s *Store) GetByConversationID(ctx context.Context, conversationID string) (Call, error) {
	if conversationID == "" {
		return Call{}, ErrInvalidArgument
	}
	return getCallByConversationID(ctx, s.db, conversationID)
}

// Resolve looks a call up by either identifier, call_sid first.
func (s *Store) Resolve(ctx context.Context, id string) (Call, error) {
	c, err := s.GetBySID(ctx, id)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return Call{}, err
	}
	return s.GetByConversationID(ctx, id)
}

// Known reports whether id matches any call by call_sid or conversation_id.
// The subscription hub uses it to validate subscribe keys.
func (s *Store) Known(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrInvalidArgument
	}
	return callExists(ctx, s.db, id)
}

// MarkInProgress records the provider's acceptance of a dispatched call.
func (s *Store) MarkInProgress(ctx context.Context, callSID, conversationID string, startedAt time.Time) error {
	if callSID == "" || conversationID == "" {
		return ErrInvalidArgument
	}
	sa := startedAt.UTC()
	return markDispatchOutcome(ctx, s.db, callSID, &conversationID, CallStatusInProgress, "", &sa, s.clock().UTC())
}

// MarkFailed records a dispatch failure (timeout, rejection, invalid phone).
func (s *Store) MarkFailed(ctx context.Context, callSID, reason string) error {
	if callSID == "" {
		return ErrInvalidArgument
	}
	return markDispatchOutcome(ctx, s.db, callSID, nil, CallStatusFailed, reason, nil, s.clock().UTC())
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]Call, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	return listRecentCalls(ctx, s.db, limit)
}
