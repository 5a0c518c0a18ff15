package transcripts

import (
	"context"
	"database/sql"
	"errors"
)

// InsertTurns bulk-inserts dialogue turns inside the caller's transaction
// and returns them with their row ids filled in. The unique
// (conversation_id, sequence_number) index plus ON CONFLICT DO NOTHING
// makes webhook redelivery conflict-safe: a replayed turn inserts nothing
// and the id of the existing row is looked up instead.
func InsertTurns(ctx context.Context, tx *sql.Tx, turns []Transcription) ([]Transcription, error) {
	const q = `
INSERT INTO transcriptions (conversation_id, speaker, message, event_at, sequence_number, created_at)
VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (conversation_id, sequence_number) DO NOTHING
RETURNING id
`
	const existing = `
SELECT id FROM transcriptions WHERE conversation_id = $1 AND sequence_number = $2
`
	out := make([]Transcription, len(turns))
	for i, t := range turns {
		err := tx.QueryRowContext(ctx, q,
			t.ConversationID,
			t.Speaker,
			t.Message,
			t.Timestamp,
			t.SequenceNumber,
			t.CreatedAt,
		).Scan(&t.ID)
		if errors.Is(err, sql.ErrNoRows) {
			// Conflict path: the turn was written by an earlier delivery.
			err = tx.QueryRowContext(ctx, existing, t.ConversationID, t.SequenceNumber).Scan(&t.ID)
		}
		if err != nil {
			return nil, err
		}
		out[i] = t
	}
	return out, nil
}

func listByConversation(ctx context.Context, db *sql.DB, conversationID string) ([]Transcription, error) {
	// Ordered by sequence so readers see turns in dialogue order no matter
	// how a concurrent insert interleaved.
	const q = `
SELECT id, conversation_id, speaker, message, event_at, sequence_number, created_at
FROM transcriptions
WHERE conversation_id = $1
ORDER BY sequence_number ASC
`
	rows, err := db.QueryContext(ctx, q, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transcription
	for rows.Next() {
		var t Transcription
		if err := rows.Scan(
			&t.ID,
			&t.ConversationID,
			&t.Speaker,
			&t.Message,
			&t.Timestamp,
			&t.SequenceNumber,
			&t.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}
