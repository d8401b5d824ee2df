//go:build integration

package repo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wb-go/wbf/dbpg"

	"slotbot/internal/model"
)

var (
	testDB   *dbpg.DB
	testRepo Repository
)

func TestMain(m *testing.M) {
	pool, err := dockertest.NewPool("")
	if err != nil {
		log.Fatalf("dockertest pool: %v", err)
	}
	pool.MaxWait = 2 * time.Minute

	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "postgres",
		Tag:        "16-alpine",
		Env: []string{
			"POSTGRES_USER=slotbot",
			"POSTGRES_PASSWORD=slotbot",
			"POSTGRES_DB=slotbot_test",
		},
	}, func(config *docker.HostConfig) {
		config.AutoRemove = true
		config.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		log.Fatalf("start postgres container: %v", err)
	}
	_ = resource.Expire(300)

	dsn := fmt.Sprintf("postgres://slotbot:slotbot@%s/slotbot_test?sslmode=disable",
		resource.GetHostPort("5432/tcp"))

	if err := pool.Retry(func() error {
		db, err := dbpg.New(dsn, nil, &dbpg.Options{
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: time.Minute,
		})
		if err != nil {
			return err
		}
		testDB = db
		return db.Master.Ping()
	}); err != nil {
		log.Fatalf("postgres not ready: %v", err)
	}

	zl := zerolog.Nop()
	rep, err := NewRepository(testDB, &zl, Rules{})
	if err != nil {
		log.Fatalf("init repository: %v", err)
	}
	if err := rep.MigrateUp("../../migrations/postgres"); err != nil {
		log.Fatalf("apply migrations: %v", err)
	}
	testRepo = rep

	code := m.Run()
	_ = pool.Purge(resource)
	os.Exit(code)
}

func createTestEvent(t *testing.T, maxAdults, maxChildren, perUserAdults, perUserChildren int, remindAt *time.Time) int64 {
	t.Helper()
	id, err := testRepo.CreateEvent(context.Background(), &model.Event{
		Name:               t.Name(),
		MaxAdults:          maxAdults,
		MaxChildren:        maxChildren,
		MaxAdultsPerUser:   perUserAdults,
		MaxChildrenPerUser: perUserChildren,
		StartTime:          time.Now().Add(24 * time.Hour),
	}, remindAt)
	require.NoError(t, err)
	return id
}

func signUp(t *testing.T, eventID, userID int64, adults, children int, waitlist bool) SignUpResult {
	t.Helper()
	res, err := testRepo.SignUpTx(context.Background(), SignUpRequest{
		EventID:     eventID,
		UserID:      userID,
		Adults:      adults,
		Children:    children,
		WaitingList: waitlist,
		At:          time.Now(),
	})
	require.NoError(t, err)
	return res
}

func queryInt(t *testing.T, query string, args ...any) int {
	t.Helper()
	var n int
	require.NoError(t, testDB.QueryRowContext(context.Background(), query, args...).Scan(&n))
	return n
}

// Twenty users race for five adult slots; the row lock must let exactly
// five through and turn everyone else away with the full error.
func TestSignUpTx_NoOverAdmissionUnderConcurrency(t *testing.T) {
	eventID := createTestEvent(t, 5, 0, 1, 0, nil)

	var admitted, full, other int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			_, err := testRepo.SignUpTx(context.Background(), SignUpRequest{
				EventID: eventID,
				UserID:  userID,
				Adults:  1,
				At:      time.Now(),
			})
			switch {
			case err == nil:
				atomic.AddInt64(&admitted, 1)
			case errors.Is(err, ErrEventFull):
				atomic.AddInt64(&full, 1)
			default:
				atomic.AddInt64(&other, 1)
			}
		}(int64(1000 + i))
	}
	wg.Wait()

	assert.EqualValues(t, 5, admitted)
	assert.EqualValues(t, 15, full)
	assert.EqualValues(t, 0, other)

	committed := queryInt(t, `
		SELECT COALESCE(SUM(adults), 0) FROM reservations
		WHERE event_id = $1 AND NOT waiting_list
	`, eventID)
	assert.Equal(t, 5, committed, "committed slots must never exceed capacity")

	vacAdults, _, err := testRepo.Vacancy(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 0, vacAdults)
}

func TestCancelTx_PromotesOldestWaiting(t *testing.T) {
	eventID := createTestEvent(t, 2, 0, 2, 0, nil)

	signUp(t, eventID, 1, 1, 0, false)
	signUp(t, eventID, 2, 1, 0, false)

	w3 := signUp(t, eventID, 3, 1, 0, true)
	assert.True(t, w3.WaitingList)
	w4 := signUp(t, eventID, 4, 1, 0, true)
	assert.True(t, w4.WaitingList)

	// No free slot and no waitlist flag: refused outright.
	_, err := testRepo.SignUpTx(context.Background(), SignUpRequest{
		EventID: eventID, UserID: 5, Adults: 1, At: time.Now(),
	})
	assert.ErrorIs(t, err, ErrEventFull)

	promoted, err := testRepo.CancelTx(context.Background(), eventID, 1, 1, 0, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, promoted, "oldest waitlisted user wins the freed slot")

	rows, err := testRepo.ListReservations(context.Background(), eventID)
	require.NoError(t, err)
	byUser := map[int64]bool{}
	for _, r := range rows {
		byUser[r.UserID] = r.WaitingList
	}
	assert.NotContains(t, byUser, int64(1))
	assert.False(t, byUser[2])
	assert.False(t, byUser[3], "promoted row must be committed")
	assert.True(t, byUser[4], "younger waitlisted row stays waiting")
}

func TestSignUpTx_BlacklistForcesWaitingList(t *testing.T) {
	eventID := createTestEvent(t, 3, 0, 3, 0, nil)

	_, err := testRepo.Ban(context.Background(), model.BlacklistEntry{UserID: 700, Reason: "no-show"}, false)
	require.NoError(t, err)
	defer func() { require.NoError(t, testRepo.Unban(context.Background(), 700)) }()

	res := signUp(t, eventID, 700, 1, 0, false)
	assert.True(t, res.WaitingList, "banned user never gets a committed slot")
	assert.True(t, res.Blacklisted)

	vacAdults, _, err := testRepo.Vacancy(context.Background(), eventID)
	require.NoError(t, err)
	assert.Equal(t, 3, vacAdults, "waitlisted row consumes no capacity")
}

func TestDeleteEventTx_CascadesChildren(t *testing.T) {
	remindAt := time.Now().Add(12 * time.Hour)
	eventID := createTestEvent(t, 2, 2, 2, 2, &remindAt)

	signUp(t, eventID, 10, 1, 1, false)
	signUp(t, eventID, 11, 1, 0, false)

	stored, err := testRepo.SetAttachment(context.Background(), eventID, 10, "row 3, seats 1-2")
	require.NoError(t, err)
	require.True(t, stored)

	require.NoError(t, testRepo.DeleteEventTx(context.Background(), eventID, false, ""))

	_, err = testRepo.GetEventByID(context.Background(), eventID)
	assert.ErrorIs(t, err, ErrEventNotFound)
	assert.Zero(t, queryInt(t, `SELECT COUNT(*) FROM reservations WHERE event_id = $1`, eventID))
	assert.Zero(t, queryInt(t, `SELECT COUNT(*) FROM attachments WHERE event_id = $1`, eventID))
	assert.Zero(t, queryInt(t, `SELECT COUNT(*) FROM reminders WHERE event_id = $1`, eventID))
}

func TestSetAttachment_RequiresLiveReservation(t *testing.T) {
	eventID := createTestEvent(t, 2, 0, 2, 0, nil)

	stored, err := testRepo.SetAttachment(context.Background(), eventID, 55, "hello")
	require.NoError(t, err)
	assert.False(t, stored, "no reservation, nothing persisted")
	assert.Zero(t, queryInt(t, `SELECT COUNT(*) FROM attachments WHERE event_id = $1`, eventID))

	signUp(t, eventID, 55, 1, 0, false)
	stored, err = testRepo.SetAttachment(context.Background(), eventID, 55, "hello")
	require.NoError(t, err)
	assert.True(t, stored)

	note, found, err := testRepo.GetAttachment(context.Background(), eventID, 55)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "hello", note)
}
