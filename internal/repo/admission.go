package repo

import (
	"time"

	"slotbot/internal/model"
)

// SignUpRequest carries one sign-up attempt. Exactly one of Adults or
// Children is non-zero in the bot flow, but both are allowed.
type SignUpRequest struct {
	EventID     int64
	UserID      int64
	FirstName   string
	LastName    string
	Adults      int
	Children    int
	WaitingList bool
	At          time.Time
	Amount      *float64
}

type SignUpResult struct {
	ReservationID int64
	// WaitingList is the resolved flag, which may differ from the
	// requested one when the user is blacklisted.
	WaitingList bool
	// Blacklisted reports that the waiting list was forced by a ban, so
	// the caller can explain the placement instead of a plain denial.
	Blacklisted bool
}

// checkAdmission applies the sign-up preconditions in their fixed order.
// mine* are the user's already held units (committed and waitlisted),
// vac* the raw per-category vacancy of the event.
func checkAdmission(ev *model.Event, req SignUpRequest, mineAdults, mineChildren, vacAdults, vacChildren int) error {
	if req.At.After(ev.StartTime) {
		return ErrEventStarted
	}
	if ev.State != model.StateOpen {
		return ErrEventClosed
	}
	if mineAdults+req.Adults > ev.MaxAdultsPerUser || mineChildren+req.Children > ev.MaxChildrenPerUser {
		return ErrLimitExceeded
	}
	if !req.WaitingList && (req.Adults > vacAdults || req.Children > vacChildren) {
		return ErrEventFull
	}
	return nil
}

type waitingRow struct {
	ID       int64
	UserID   int64
	Adults   int
	Children int
}

// planPromotions picks which waitlisted rows to commit, scanning them in
// arrival order. Each flipped row consumes a single vacancy unit in the
// category that admitted it, regardless of the row's count; multi-unit
// rows therefore surface over repeated passes, mirroring per-unit
// admission. The adults category is tried first.
func planPromotions(vacAdults, vacChildren int, rows []waitingRow) (ids []int64, users []int64) {
	seen := make(map[int64]bool)
	for _, row := range rows {
		if vacAdults <= 0 && vacChildren <= 0 {
			break
		}
		switch {
		case row.Adults > 0 && vacAdults > 0:
			vacAdults--
		case row.Children > 0 && vacChildren > 0:
			vacChildren--
		default:
			continue
		}
		ids = append(ids, row.ID)
		if !seen[row.UserID] {
			seen[row.UserID] = true
			users = append(users, row.UserID)
		}
	}
	return ids, users
}
