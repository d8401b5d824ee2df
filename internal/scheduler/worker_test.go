package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"slotbot/internal/repo"
)

type stubRepo struct {
	repo.Repository

	due        []repo.DueReminder
	dueErr     error
	cleared    bool
	clearedCnt int64
}

func (s *stubRepo) DueReminders(ctx context.Context, now time.Time) ([]repo.DueReminder, error) {
	return s.due, s.dueErr
}

func (s *stubRepo) ClearFiredReminders(ctx context.Context, now time.Time) (int64, error) {
	s.cleared = true
	return s.clearedCnt, nil
}

type stubPublisher struct {
	published [][]byte
	err       error
}

func (p *stubPublisher) Publish(message []byte) error {
	if p.err != nil {
		return p.err
	}
	p.published = append(p.published, message)
	return nil
}

func TestFireReminders_ClearsWithoutRecipients(t *testing.T) {
	// A reminder for an event where everyone is waitlisted yields no due
	// rows, but the fired reminder row must still go away.
	r := &stubRepo{clearedCnt: 1}
	pub := &stubPublisher{}
	w := NewWorker(r, pub, Config{})

	w.fireReminders(context.Background(), time.Now())

	assert.True(t, r.cleared)
	assert.Empty(t, pub.published)
}

func TestFireReminders_PublishesThenClears(t *testing.T) {
	r := &stubRepo{
		due:        []repo.DueReminder{{EventID: 1, EventName: "concert", UserID: 10}},
		clearedCnt: 1,
	}
	pub := &stubPublisher{}
	w := NewWorker(r, pub, Config{})

	w.fireReminders(context.Background(), time.Now())

	assert.Len(t, pub.published, 1)
	assert.True(t, r.cleared)
}

func TestFireReminders_KeepsRowsOnPublishFailure(t *testing.T) {
	r := &stubRepo{
		due: []repo.DueReminder{{EventID: 1, EventName: "concert", UserID: 10}},
	}
	pub := &stubPublisher{err: errors.New("broker down")}
	w := NewWorker(r, pub, Config{})

	w.fireReminders(context.Background(), time.Now())

	assert.False(t, r.cleared, "undelivered reminders must stay for the next tick")
}

func TestGroupReminders(t *testing.T) {
	start := time.Date(2026, 9, 1, 19, 0, 0, 0, time.UTC)
	due := []repo.DueReminder{
		{EventID: 1, EventName: "concert", StartTime: start, UserID: 10},
		{EventID: 1, EventName: "concert", StartTime: start, UserID: 20},
		{EventID: 2, EventName: "lecture", StartTime: start.Add(time.Hour), UserID: 10},
		{EventID: 1, EventName: "concert", StartTime: start, UserID: 30},
	}

	notices := groupReminders(due)

	require.Len(t, notices, 2)

	assert.Equal(t, "reminder", notices[0].Kind)
	assert.EqualValues(t, 1, notices[0].EventID)
	assert.Equal(t, "concert", notices[0].EventName)
	assert.Equal(t, start, notices[0].StartTime)
	assert.Equal(t, []int64{10, 20, 30}, notices[0].UserIDs)

	assert.EqualValues(t, 2, notices[1].EventID)
	assert.Equal(t, []int64{10}, notices[1].UserIDs)
}

func TestGroupReminders_Empty(t *testing.T) {
	assert.Empty(t, groupReminders(nil))
}
