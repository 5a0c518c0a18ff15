package schedule

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"fleetvoice-platform/pkg/utils"

	"github.com/google/uuid"
)

var (
	ErrNotFound        = errors.New("schedule entry not found")
	ErrInvalidArgument = errors.New("invalid argument")
)

// Store persists call schedule entries in Postgres.
type Store struct {
	db    *sql.DB
	clock func() time.Time
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db, clock: time.Now}
}

// BulkCreate inserts a batch of entries under one group id and returns them.
// All-or-nothing: a bad row rejects the whole batch before any write.
func (s *Store) BulkCreate(ctx context.Context, reqs []NewEntry) ([]Entry, error) {
	if len(reqs) == 0 {
		return nil, ErrInvalidArgument
	}
	for _, r := range reqs {
		if r.DriverID == "" || r.Phone == "" || r.ScheduledAt.IsZero() {
			return nil, ErrInvalidArgument
		}
	}

	now := s.clock().UTC()
	groupID := uuid.NewString()

	entries := make([]Entry, 0, len(reqs))
	for _, r := range reqs {
		entries = append(entries, Entry{
			ID:          uuid.NewString(),
			GroupID:     groupID,
			DriverID:    r.DriverID,
			DriverName:  r.DriverName,
			Phone:       r.Phone,
			Details:     r.Details,
			ScheduledAt: r.ScheduledAt.UTC(),
			Active:      true,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}

	err := utils.WithTx(ctx, s.db, &sql.TxOptions{}, func(ctx context.Context, tx *sql.Tx) error {
		for _, e := range entries {
			if err := insertEntry(ctx, tx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Due returns active entries whose scheduled time has passed, oldest first.
func (s *Store) Due(ctx context.Context, now time.Time, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 100
	}
	return listDue(ctx, s.db, now.UTC(), limit)
}

// Deactivate flips Active to false and reports whether this call won the
// flip. A false return means another dispatcher got there first.
func (s *Store) Deactivate(ctx context.Context, id string) (bool, error) {
	if id == "" {
		return false, ErrInvalidArgument
	}
	return deactivateEntry(ctx, s.db, id, s.clock().UTC())
}

func (s *Store) GetByGroup(ctx context.Context, groupID string) ([]Entry, error) {
	if groupID == "" {
		return nil, ErrInvalidArgument
	}
	return listByGroup(ctx, s.db, groupID)
}
