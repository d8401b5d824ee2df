package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"slotbot/internal/model"
)

// CreateEvent inserts the event and, when remindAt is set, its reminder
// row in the same transaction.
func (r *repository) CreateEvent(ctx context.Context, e *model.Event, remindAt *time.Time) (int64, error) {
	var id int64
	err := r.withRetry(func() error {
		tx, err := r.db.Master.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()

		err = tx.QueryRowContext(ctx, `
			INSERT INTO events (name, link, max_adults, max_children, max_adults_per_user, max_children_per_user,
			                    start_time, state, price_adult, price_child, currency)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
			RETURNING id
		`, e.Name, e.Link, e.MaxAdults, e.MaxChildren, e.MaxAdultsPerUser, e.MaxChildrenPerUser,
			e.StartTime, model.StateOpen, e.PriceAdult, e.PriceChild, e.Currency).Scan(&id)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to insert event: %w", err)
		}

		if remindAt != nil {
			rem := model.Reminder{EventID: id, RemindAt: *remindAt}
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO reminders (event_id, remind_at) VALUES ($1, $2)
			`, rem.EventID, rem.RemindAt); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("failed to insert reminder: %w", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func (r *repository) GetEventByID(ctx context.Context, id int64) (*model.Event, error) {
	var e model.Event
	var remindAt sql.NullTime
	err := r.db.QueryRowContext(ctx, `
		SELECT e.id, e.name, e.link, e.max_adults, e.max_children, e.max_adults_per_user, e.max_children_per_user,
		       e.start_time, e.state, e.price_adult, e.price_child, e.currency, rem.remind_at,
		       e.created_at, e.updated_at
		FROM events e
		LEFT JOIN reminders rem ON rem.event_id = e.id
		WHERE e.id = $1
	`, id).Scan(
		&e.ID, &e.Name, &e.Link, &e.MaxAdults, &e.MaxChildren, &e.MaxAdultsPerUser, &e.MaxChildrenPerUser,
		&e.StartTime, &e.State, &e.PriceAdult, &e.PriceChild, &e.Currency, &remindAt,
		&e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	if remindAt.Valid {
		e.RemindAt = &remindAt.Time
	}
	return &e, nil
}

func (r *repository) ListEvents(ctx context.Context, offset, limit int) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, link, max_adults, max_children, max_adults_per_user, max_children_per_user,
		       start_time, state, price_adult, price_child, currency, created_at, updated_at
		FROM events
		ORDER BY start_time, id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []model.Event
	for rows.Next() {
		var e model.Event
		if err := rows.Scan(
			&e.ID, &e.Name, &e.Link, &e.MaxAdults, &e.MaxChildren, &e.MaxAdultsPerUser, &e.MaxChildrenPerUser,
			&e.StartTime, &e.State, &e.PriceAdult, &e.PriceChild, &e.Currency, &e.CreatedAt, &e.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, e)
	}

	return events, rows.Err()
}

// SetEventState toggles open/closed. Closing blocks new admissions but
// never evicts existing reservations.
func (r *repository) SetEventState(ctx context.Context, id int64, state string) error {
	if state != model.StateOpen && state != model.StateClosed {
		return ErrInvalidState
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE events SET state = $1, updated_at = NOW() WHERE id = $2
	`, state, id)
	if err != nil {
		return fmt.Errorf("failed to update event state: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEventNotFound
	}
	return nil
}

func (r *repository) UpdateEventLimits(ctx context.Context, id int64, maxAdults, maxChildren, maxAdultsPerUser, maxChildrenPerUser int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE events
		SET max_adults = $1, max_children = $2, max_adults_per_user = $3, max_children_per_user = $4, updated_at = NOW()
		WHERE id = $5
	`, maxAdults, maxChildren, maxAdultsPerUser, maxChildrenPerUser, id)
	if err != nil {
		return fmt.Errorf("failed to update event limits: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrEventNotFound
	}
	return nil
}

// DeleteEventTx removes the event with its reservations, attachments
// and reminder in one transaction (foreign keys cascade). With
// banParticipants set, everyone holding a committed reservation at
// deletion time is blacklisted in the same transaction.
func (r *repository) DeleteEventTx(ctx context.Context, id int64, banParticipants bool, reason string) error {
	return r.withRetry(func() error {
		tx, err := r.db.Master.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to start transaction: %w", err)
		}

		defer func() {
			if p := recover(); p != nil {
				_ = tx.Rollback()
				panic(p)
			}
		}()

		if banParticipants {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO blacklist (user_id, first_name, last_name, reason, banned_at)
				SELECT DISTINCT ON (user_id) user_id, first_name, last_name, $2, NOW()
				FROM reservations
				WHERE event_id = $1 AND NOT waiting_list
				ON CONFLICT (user_id) DO NOTHING
			`, id, reason); err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("failed to blacklist participants: %w", err)
			}
		}

		res, err := tx.ExecContext(ctx, `DELETE FROM events WHERE id = $1`, id)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete event: %w", err)
		}
		if n, err := res.RowsAffected(); err == nil && n == 0 {
			_ = tx.Rollback()
			return ErrEventNotFound
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit deletion transaction: %w", err)
		}
		return nil
	})
}

// SweepStaleEvents deletes events that ended long enough ago: past the
// midnight that follows one full day after the start time.
func (r *repository) SweepStaleEvents(ctx context.Context, now time.Time) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id FROM events WHERE start_time < $1 ORDER BY id
	`, sweepCutoff(now))
	if err != nil {
		return nil, fmt.Errorf("failed to find stale events: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read stale events: %w", err)
	}

	var deleted []int64
	for _, id := range ids {
		if err := r.DeleteEventTx(ctx, id, false, ""); err != nil {
			return deleted, err
		}
		deleted = append(deleted, id)
	}
	return deleted, nil
}

// sweepCutoff returns the start-time threshold below which an event is
// stale at the given moment: events starting before "yesterday 00:00"
// have been over for more than one full day once the following midnight
// has passed.
func sweepCutoff(now time.Time) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, now.Location()).Add(-24 * time.Hour)
}
