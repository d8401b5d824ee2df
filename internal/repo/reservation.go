package repo

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"slotbot/internal/model"
)

// SignUpTx validates and inserts one reservation. The event row is
// locked for the whole check-then-insert sequence, so two concurrent
// sign-ups for the same event cannot both act on the same stale vacancy.
func (r *repository) SignUpTx(ctx context.Context, req SignUpRequest) (SignUpResult, error) {
	var res SignUpResult
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

		ev, err := lockEvent(ctx, tx, req.EventID)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		var mineAdults, mineChildren int
		err = tx.QueryRowContext(ctx, `
			SELECT COALESCE(SUM(adults), 0), COALESCE(SUM(children), 0)
			FROM reservations
			WHERE event_id = $1 AND user_id = $2
		`, req.EventID, req.UserID).Scan(&mineAdults, &mineChildren)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to sum user reservations: %w", err)
		}

		vacAdults, vacChildren, err := vacancy(ctx, tx, ev)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := checkAdmission(ev, req, mineAdults, mineChildren, vacAdults, vacChildren); err != nil {
			_ = tx.Rollback()
			return err
		}

		var banned bool
		err = tx.QueryRowContext(ctx, `
			SELECT EXISTS (SELECT 1 FROM blacklist WHERE user_id = $1)
		`, req.UserID).Scan(&banned)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to check blacklist: %w", err)
		}

		// A banned user never gets a committed slot, whatever was asked.
		waiting := req.WaitingList || banned

		var id int64
		err = tx.QueryRowContext(ctx, `
			INSERT INTO reservations (event_id, user_id, first_name, last_name, adults, children, waiting_list, amount, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id
		`, req.EventID, req.UserID, req.FirstName, req.LastName,
			req.Adults, req.Children, waiting, req.Amount, req.At).Scan(&id)
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to create reservation: %w", err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit transaction: %w", err)
		}

		res = SignUpResult{ReservationID: id, WaitingList: waiting, Blacklisted: banned}
		return nil
	})
	return res, err
}

// CancelTx removes exactly one reservation row matching the given
// counts, preferring a waitlisted row over a committed one, and promotes
// from the waiting list in the same transaction. Returns the user IDs
// promoted by the freed capacity.
func (r *repository) CancelTx(ctx context.Context, eventID, userID int64, adults, children int, at time.Time) ([]int64, error) {
	var promoted []int64
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

		ev, err := lockEvent(ctx, tx, eventID)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		var resID int64
		var wasWaiting bool
		err = tx.QueryRowContext(ctx, `
			SELECT id, waiting_list
			FROM reservations
			WHERE event_id = $1 AND user_id = $2 AND adults = $3 AND children = $4
			ORDER BY waiting_list DESC, id
			LIMIT 1
		`, eventID, userID, adults, children).Scan(&resID, &wasWaiting)
		if err == sql.ErrNoRows {
			_ = tx.Rollback()
			return ErrReservationNotFound
		}
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to select reservation for cancel: %w", err)
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM reservations WHERE id = $1`, resID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete reservation: %w", err)
		}

		if !wasWaiting && r.rules.LateCancelWindow > 0 &&
			at.Before(ev.StartTime) && at.After(ev.StartTime.Add(-r.rules.LateCancelWindow)) {
			_, err = tx.ExecContext(ctx, `
				INSERT INTO blacklist (user_id, reason, banned_at)
				VALUES ($1, 'late cancellation', $2)
				ON CONFLICT (user_id) DO NOTHING
			`, userID, at)
			if err != nil {
				_ = tx.Rollback()
				return fmt.Errorf("failed to ban late canceller: %w", err)
			}
		}

		promoted, err = promote(ctx, tx, ev, userID)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit cancellation transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// WithdrawAllTx deletes every reservation the user holds on the event
// and promotes from the waiting list in the same transaction.
func (r *repository) WithdrawAllTx(ctx context.Context, eventID, userID int64) ([]int64, error) {
	var promoted []int64
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

		ev, err := lockEvent(ctx, tx, eventID)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		if _, err := tx.ExecContext(ctx, `
			DELETE FROM reservations WHERE event_id = $1 AND user_id = $2
		`, eventID, userID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("failed to delete reservations: %w", err)
		}

		promoted, err = promote(ctx, tx, ev, userID)
		if err != nil {
			_ = tx.Rollback()
			return err
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit withdrawal transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return promoted, nil
}

// Vacancy reports the free units per category, floored at zero for
// display. Admission never uses this; it recomputes under the event lock.
func (r *repository) Vacancy(ctx context.Context, eventID int64) (int, int, error) {
	var maxAdults, maxChildren, busyAdults, busyChildren int
	err := r.db.QueryRowContext(ctx, `
		SELECT e.max_adults, e.max_children,
		       COALESCE(SUM(res.adults), 0), COALESCE(SUM(res.children), 0)
		FROM events e
		LEFT JOIN reservations res ON res.event_id = e.id AND NOT res.waiting_list
		WHERE e.id = $1
		GROUP BY e.id
	`, eventID).Scan(&maxAdults, &maxChildren, &busyAdults, &busyChildren)
	if err == sql.ErrNoRows {
		return 0, 0, ErrEventNotFound
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to compute vacancy: %w", err)
	}
	return max(maxAdults-busyAdults, 0), max(maxChildren-busyChildren, 0), nil
}

func (r *repository) ListReservations(ctx context.Context, eventID int64) ([]model.Reservation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, user_id, first_name, last_name, adults, children, waiting_list, amount, created_at
		FROM reservations
		WHERE event_id = $1
		ORDER BY created_at, id
	`, eventID)
	if err != nil {
		return nil, fmt.Errorf("failed to get reservations: %w", err)
	}
	defer rows.Close()

	var regs []model.Reservation
	for rows.Next() {
		var res model.Reservation
		if err := rows.Scan(
			&res.ID,
			&res.EventID,
			&res.UserID,
			&res.FirstName,
			&res.LastName,
			&res.Adults,
			&res.Children,
			&res.WaitingList,
			&res.Amount,
			&res.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		regs = append(regs, res)
	}

	return regs, rows.Err()
}

// lockEvent loads the event row under FOR UPDATE, serializing every
// capacity-affecting operation on the same event.
func lockEvent(ctx context.Context, tx *sql.Tx, id int64) (*model.Event, error) {
	var ev model.Event
	err := tx.QueryRowContext(ctx, `
		SELECT id, name, max_adults, max_children, max_adults_per_user, max_children_per_user, start_time, state
		FROM events
		WHERE id = $1
		FOR UPDATE
	`, id).Scan(&ev.ID, &ev.Name, &ev.MaxAdults, &ev.MaxChildren,
		&ev.MaxAdultsPerUser, &ev.MaxChildrenPerUser, &ev.StartTime, &ev.State)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to lock event: %w", err)
	}
	return &ev, nil
}

func vacancy(ctx context.Context, tx *sql.Tx, ev *model.Event) (int, int, error) {
	var busyAdults, busyChildren int
	err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(adults), 0), COALESCE(SUM(children), 0)
		FROM reservations
		WHERE event_id = $1 AND NOT waiting_list
	`, ev.ID).Scan(&busyAdults, &busyChildren)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to sum committed reservations: %w", err)
	}
	return ev.MaxAdults - busyAdults, ev.MaxChildren - busyChildren, nil
}

// promote flips waitlisted rows to committed, oldest first, one vacancy
// unit per row, skipping the user whose removal triggered the pass.
// Runs inside the caller's transaction so the vacancy it sees includes
// the rows just deleted.
func promote(ctx context.Context, tx *sql.Tx, ev *model.Event, excludeUser int64) ([]int64, error) {
	vacAdults, vacChildren, err := vacancy(ctx, tx, ev)
	if err != nil {
		return nil, err
	}
	if vacAdults <= 0 && vacChildren <= 0 {
		return nil, nil
	}

	rows, err := tx.QueryContext(ctx, `
		SELECT id, user_id, adults, children
		FROM reservations
		WHERE event_id = $1 AND waiting_list AND user_id <> $2
		ORDER BY created_at, id
	`, ev.ID, excludeUser)
	if err != nil {
		return nil, fmt.Errorf("failed to scan waiting list: %w", err)
	}
	defer rows.Close()

	var waiting []waitingRow
	for rows.Next() {
		var row waitingRow
		if err := rows.Scan(&row.ID, &row.UserID, &row.Adults, &row.Children); err != nil {
			return nil, fmt.Errorf("failed to scan waiting reservation: %w", err)
		}
		waiting = append(waiting, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read waiting list: %w", err)
	}

	ids, users := planPromotions(vacAdults, vacChildren, waiting)
	if len(ids) == 0 {
		return nil, nil
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE reservations SET waiting_list = FALSE WHERE id = ANY($1)
	`, pq.Array(ids)); err != nil {
		return nil, fmt.Errorf("failed to promote reservations: %w", err)
	}

	return users, nil
}
