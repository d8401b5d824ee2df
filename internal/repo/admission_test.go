package repo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbot/internal/model"
)

func openEvent(start time.Time) *model.Event {
	return &model.Event{
		ID:                 1,
		MaxAdults:          10,
		MaxChildren:        10,
		MaxAdultsPerUser:   3,
		MaxChildrenPerUser: 3,
		StartTime:          start,
		State:              model.StateOpen,
	}
}

func TestCheckAdmission_StartedBeatsClosed(t *testing.T) {
	ev := openEvent(time.Now().Add(-time.Hour))
	ev.State = model.StateClosed

	err := checkAdmission(ev, SignUpRequest{Adults: 1, At: time.Now()}, 0, 0, 10, 10)
	assert.ErrorIs(t, err, ErrEventStarted)
}

func TestCheckAdmission_Closed(t *testing.T) {
	ev := openEvent(time.Now().Add(time.Hour))
	ev.State = model.StateClosed

	err := checkAdmission(ev, SignUpRequest{Adults: 1, At: time.Now()}, 0, 0, 10, 10)
	assert.ErrorIs(t, err, ErrEventClosed)
}

func TestCheckAdmission_PerUserLimitCountsWaitlisted(t *testing.T) {
	ev := openEvent(time.Now().Add(time.Hour))

	// The user already holds 3 adult units (committed or waitlisted).
	err := checkAdmission(ev, SignUpRequest{Adults: 1, At: time.Now()}, 3, 0, 10, 10)
	assert.ErrorIs(t, err, ErrLimitExceeded)

	err = checkAdmission(ev, SignUpRequest{Children: 1, At: time.Now()}, 3, 2, 10, 10)
	assert.NoError(t, err)
}

func TestCheckAdmission_FullOnlyWithoutWaitlist(t *testing.T) {
	ev := openEvent(time.Now().Add(time.Hour))

	err := checkAdmission(ev, SignUpRequest{Adults: 2, At: time.Now()}, 0, 0, 1, 0)
	assert.ErrorIs(t, err, ErrEventFull)

	err = checkAdmission(ev, SignUpRequest{Adults: 2, WaitingList: true, At: time.Now()}, 0, 0, 1, 0)
	assert.NoError(t, err)
}

func TestCheckAdmission_ExactVacancyFits(t *testing.T) {
	ev := openEvent(time.Now().Add(time.Hour))

	err := checkAdmission(ev, SignUpRequest{Adults: 2, At: time.Now()}, 0, 0, 2, 0)
	assert.NoError(t, err)
}

func TestCheckAdmission_StartBoundaryInclusive(t *testing.T) {
	start := time.Now().Add(time.Hour)
	ev := openEvent(start)

	// Sign-up exactly at the start time is still allowed.
	err := checkAdmission(ev, SignUpRequest{Adults: 1, At: start}, 0, 0, 10, 10)
	assert.NoError(t, err)
}

func TestPlanPromotions_FIFO(t *testing.T) {
	waiting := []waitingRow{
		{ID: 1, UserID: 100, Children: 1},
		{ID: 2, UserID: 200, Children: 1},
		{ID: 3, UserID: 300, Children: 1},
	}

	ids, users := planPromotions(0, 1, waiting)
	assert.Equal(t, []int64{1}, ids)
	assert.Equal(t, []int64{100}, users)

	ids, users = planPromotions(0, 2, waiting)
	assert.Equal(t, []int64{1, 2}, ids)
	assert.Equal(t, []int64{100, 200}, users)
}

func TestPlanPromotions_SkipsNonMatchingCategory(t *testing.T) {
	waiting := []waitingRow{
		{ID: 1, UserID: 100, Adults: 1},
		{ID: 2, UserID: 200, Children: 1},
	}

	// Only child capacity freed: the older adult request stays waiting.
	ids, users := planPromotions(0, 1, waiting)
	assert.Equal(t, []int64{2}, ids)
	assert.Equal(t, []int64{200}, users)
}

func TestPlanPromotions_OneUnitPerRow(t *testing.T) {
	waiting := []waitingRow{
		{ID: 1, UserID: 100, Children: 3},
		{ID: 2, UserID: 200, Children: 1},
	}

	// A multi-unit row consumes a single vacancy unit when flipped.
	ids, _ := planPromotions(0, 2, waiting)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestPlanPromotions_AdultsRuleFirst(t *testing.T) {
	waiting := []waitingRow{
		{ID: 1, UserID: 100, Adults: 1, Children: 1},
	}

	ids, _ := planPromotions(1, 1, waiting)
	require.Equal(t, []int64{1}, ids)

	// Only the adults vacancy admitted the row; children capacity is
	// still free for the next candidate.
	waiting = append(waiting, waitingRow{ID: 2, UserID: 200, Children: 1})
	ids, _ = planPromotions(1, 1, waiting)
	assert.Equal(t, []int64{1, 2}, ids)
}

func TestPlanPromotions_DeduplicatesUsers(t *testing.T) {
	waiting := []waitingRow{
		{ID: 1, UserID: 100, Children: 1},
		{ID: 2, UserID: 100, Children: 1},
	}

	ids, users := planPromotions(0, 2, waiting)
	assert.Equal(t, []int64{1, 2}, ids)
	assert.Equal(t, []int64{100}, users)
}

func TestPlanPromotions_NoVacancy(t *testing.T) {
	waiting := []waitingRow{{ID: 1, UserID: 100, Children: 1}}

	ids, users := planPromotions(0, 0, waiting)
	assert.Empty(t, ids)
	assert.Empty(t, users)
}

// The worked booking example: two child slots, A holds both, B waits,
// A frees one, B gets promoted.
func TestPlanPromotions_CancelScenario(t *testing.T) {
	// After A cancelled one unit row, one child slot is free and only
	// B's request is still waiting.
	waiting := []waitingRow{{ID: 7, UserID: 2, Children: 1}}

	ids, users := planPromotions(0, 1, waiting)
	assert.Equal(t, []int64{7}, ids)
	assert.Equal(t, []int64{2}, users)
}
