package repo

import (
	"context"
	"fmt"
	"time"

	"slotbot/internal/model"
)

func (r *repository) IsBlacklisted(ctx context.Context, userID int64) (bool, error) {
	var banned bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS (SELECT 1 FROM blacklist WHERE user_id = $1)
	`, userID).Scan(&banned)
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist: %w", err)
	}
	return banned, nil
}

// Ban records the user on the blacklist. Re-banning keeps the original
// entry. With cancelFuture set, every reservation the user holds on a
// not-yet-started event is withdrawn and each event's waiting list
// promoted; this fan-out is one transaction per event, best effort, so a
// mid-way failure returns the promotions that already happened together
// with the error.
func (r *repository) Ban(ctx context.Context, entry model.BlacklistEntry, cancelFuture bool) (map[int64][]int64, error) {
	bannedAt := entry.BannedAt
	if bannedAt.IsZero() {
		bannedAt = time.Now()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO blacklist (user_id, first_name, last_name, reason, banned_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (user_id) DO NOTHING
	`, entry.UserID, entry.FirstName, entry.LastName, entry.Reason, bannedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert blacklist entry: %w", err)
	}

	if !cancelFuture {
		return nil, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT DISTINCT res.event_id
		FROM reservations res
		JOIN events e ON e.id = res.event_id
		WHERE res.user_id = $1 AND e.start_time > $2
	`, entry.UserID, bannedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to list future reservations: %w", err)
	}
	defer rows.Close()

	var eventIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan event id: %w", err)
		}
		eventIDs = append(eventIDs, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read future reservations: %w", err)
	}

	promotions := make(map[int64][]int64)
	for _, eventID := range eventIDs {
		promoted, err := r.WithdrawAllTx(ctx, eventID, entry.UserID)
		if err != nil {
			r.log.Error().Err(err).
				Int64("event_id", eventID).
				Int64("user_id", entry.UserID).
				Msg("ban fan-out stopped mid-way")
			return promotions, fmt.Errorf("failed to withdraw from event %d: %w", eventID, err)
		}
		if len(promoted) > 0 {
			promotions[eventID] = promoted
		}
	}

	return promotions, nil
}

func (r *repository) Unban(ctx context.Context, userID int64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM blacklist WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete blacklist entry: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotBlacklisted
	}
	return nil
}

func (r *repository) PurgeExpired(ctx context.Context, olderThanDays int) (int64, error) {
	res, err := r.db.ExecContext(ctx, `
		DELETE FROM blacklist WHERE banned_at < NOW() - make_interval(days => $1)
	`, olderThanDays)
	if err != nil {
		return 0, fmt.Errorf("failed to purge blacklist: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count purged rows: %w", err)
	}
	return n, nil
}

func (r *repository) ListBlacklist(ctx context.Context, offset, limit int) ([]model.BlacklistEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT user_id, first_name, last_name, reason, banned_at
		FROM blacklist
		ORDER BY banned_at DESC, user_id
		OFFSET $1 LIMIT $2
	`, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list blacklist: %w", err)
	}
	defer rows.Close()

	var entries []model.BlacklistEntry
	for rows.Next() {
		var e model.BlacklistEntry
		if err := rows.Scan(&e.UserID, &e.FirstName, &e.LastName, &e.Reason, &e.BannedAt); err != nil {
			return nil, fmt.Errorf("failed to scan blacklist entry: %w", err)
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
