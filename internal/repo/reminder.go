package repo

import (
	"context"
	"fmt"
	"time"
)

// DueReminder is one (event, participant) pair whose reminder moment
// has passed. Only committed participants are reminded.
type DueReminder struct {
	EventID   int64
	EventName string
	StartTime time.Time
	UserID    int64
}

func (r *repository) DueReminders(ctx context.Context, now time.Time) ([]DueReminder, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT e.id, e.name, e.start_time, res.user_id
		FROM reminders rem
		JOIN events e ON e.id = rem.event_id
		JOIN reservations res ON res.event_id = e.id AND NOT res.waiting_list
		WHERE rem.remind_at <= $1
		ORDER BY e.id, res.user_id
	`, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due reminders: %w", err)
	}
	defer rows.Close()

	var due []DueReminder
	for rows.Next() {
		var d DueReminder
		if err := rows.Scan(&d.EventID, &d.EventName, &d.StartTime, &d.UserID); err != nil {
			return nil, fmt.Errorf("failed to scan reminder: %w", err)
		}
		due = append(due, d)
	}

	return due, rows.Err()
}

func (r *repository) ClearFiredReminders(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM reminders WHERE remind_at <= $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to clear reminders: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count cleared reminders: %w", err)
	}
	return n, nil
}
