package schedule

import (
	"context"
	"database/sql"
	"time"
)

const entryColumns = `
id, group_id, driver_id, driver_name, phone, details, scheduled_at, active,
created_at, updated_at`

func scanEntry(row interface{ Scan(...any) error }) (Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID,
		&e.GroupID,
		&e.DriverID,
		&e.DriverName,
		&e.Phone,
		&e.Details,
		&e.ScheduledAt,
		&e.Active,
		&e.CreatedAt,
		&e.UpdatedAt,
	)
	return e, err
}

func insertEntry(ctx context.Context, tx *sql.Tx, e Entry) error {
	const q = `
INSERT INTO call_schedules (
  id, group_id, driver_id, driver_name, phone, details, scheduled_at, active,
  created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
`
	_, err := tx.ExecContext(ctx, q,
		e.ID,
		e.GroupID,
		e.DriverID,
		e.DriverName,
		e.Phone,
		e.Details,
		e.ScheduledAt,
		e.Active,
		e.CreatedAt,
		e.UpdatedAt,
	)
	return err
}

func listDue(ctx context.Context, db *sql.DB, now time.Time, limit int) ([]Entry, error) {
	const q = `
SELECT ` + entryColumns + `
FROM call_schedules
WHERE active = TRUE AND scheduled_at <= $1
ORDER BY scheduled_at ASC
LIMIT $2
`
	rows, err := db.QueryContext(ctx, q, now, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func deactivateEntry(ctx context.Context, db *sql.DB, id string, now time.Time) (bool, error) {
	// Conditional on active so concurrent dispatchers race safely: exactly
	// one caller observes the flip.
	const q = `
UPDATE call_schedules
SET active = FALSE, updated_at = $2
WHERE id = $1 AND active = TRUE
`
	res, err := db.ExecContext(ctx, q, id, now)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func listByGroup(ctx context.Context, db *sql.DB, groupID string) ([]Entry, error) {
	const q = `SELECT ` + entryColumns + ` FROM call_schedules WHERE group_id = $1 ORDER BY scheduled_at ASC`
	rows, err := db.QueryContext(ctx, q, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
