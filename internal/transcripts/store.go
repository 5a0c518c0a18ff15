package transcripts

import (
	"context"
	"database/sql"
	"errors"
)

var ErrInvalidArgument = errors.New("invalid argument")

// Store serves read paths over transcription rows. Writes happen through
// InsertTurns inside the webhook receiver's transaction.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// ListByConversation returns all turns of a conversation in strictly
// increasing sequence order.
func (s *Store) ListByConversation(ctx context.Context, conversationID string) ([]Transcription, error) {
	if conversationID == "" {
		return nil, ErrInvalidArgument
	}
	return listByConversation(ctx, s.db, conversationID)
}
