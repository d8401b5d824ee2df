package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"

	"slotbot/internal/model"
)

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrEventStarted        = errors.New("event already started")
	ErrEventClosed         = errors.New("event is closed")
	ErrEventFull           = errors.New("not enough free slots")
	ErrLimitExceeded       = errors.New("per-user reservation limit exceeded")
	ErrReservationNotFound = errors.New("reservation not found")
	ErrNotBlacklisted      = errors.New("user is not blacklisted")
	ErrNoteTooLong         = errors.New("attachment note too long")
	ErrInvalidState        = errors.New("invalid event state")
)

// Rules are the booking policies that are configuration, not schema.
type Rules struct {
	NoteMaxLen int
	// LateCancelWindow bans users that cancel a committed slot closer
	// than this to the event start. Zero disables the auto-ban.
	LateCancelWindow time.Duration
}

type Repository interface {
	SignUpTx(ctx context.Context, req SignUpRequest) (SignUpResult, error)
	CancelTx(ctx context.Context, eventID, userID int64, adults, children int, at time.Time) ([]int64, error)
	WithdrawAllTx(ctx context.Context, eventID, userID int64) ([]int64, error)
	Vacancy(ctx context.Context, eventID int64) (int, int, error)
	ListReservations(ctx context.Context, eventID int64) ([]model.Reservation, error)

	IsBlacklisted(ctx context.Context, userID int64) (bool, error)
	Ban(ctx context.Context, entry model.BlacklistEntry, cancelFuture bool) (map[int64][]int64, error)
	Unban(ctx context.Context, userID int64) error
	PurgeExpired(ctx context.Context, olderThanDays int) (int64, error)
	ListBlacklist(ctx context.Context, offset, limit int) ([]model.BlacklistEntry, error)

	SetAttachment(ctx context.Context, eventID, userID int64, rawNote string) (bool, error)
	GetAttachment(ctx context.Context, eventID, userID int64) (string, bool, error)

	CreateEvent(ctx context.Context, e *model.Event, remindAt *time.Time) (int64, error)
	GetEventByID(ctx context.Context, id int64) (*model.Event, error)
	ListEvents(ctx context.Context, offset, limit int) ([]model.Event, error)
	SetEventState(ctx context.Context, id int64, state string) error
	UpdateEventLimits(ctx context.Context, id int64, maxAdults, maxChildren, maxAdultsPerUser, maxChildrenPerUser int) error
	DeleteEventTx(ctx context.Context, id int64, banParticipants bool, reason string) error

	DueReminders(ctx context.Context, now time.Time) ([]DueReminder, error)
	ClearFiredReminders(ctx context.Context, now time.Time) (int64, error)
	SweepStaleEvents(ctx context.Context, now time.Time) ([]int64, error)

	MigrateUp(migrationsDir string) error
	MigrateDown(migrationsDir string) error
}

type repository struct {
	db    *dbpg.DB
	log   *zerolog.Logger
	rules Rules
	retry retry.Strategy
}

func NewRepository(db *dbpg.DB, log *zerolog.Logger, rules Rules) (Repository, error) {
	if db == nil {
		return nil, fmt.Errorf("db cannot be nil")
	}
	if err := db.Master.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping DB: %w", err)
	}
	if rules.NoteMaxLen <= 0 {
		rules.NoteMaxLen = 256
	}
	return &repository{
		db:    db,
		log:   log,
		rules: rules,
		retry: retry.Strategy{Attempts: 3, Delay: 10 * time.Millisecond, Backoff: 2},
	}, nil
}

func (r *repository) MigrateUp(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.up.sql"))
	if err != nil {
		return fmt.Errorf("failed to read migration files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read migration file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations applied successfully from %s", migrationsDir)
	return nil
}

func (r *repository) MigrateDown(migrationsDir string) error {
	files, err := filepath.Glob(filepath.Join(migrationsDir, "*.down.sql"))
	if err != nil {
		return fmt.Errorf("failed to read rollback files: %w", err)
	}

	for _, file := range files {
		sqlBytes, err := os.ReadFile(file)
		if err != nil {
			return fmt.Errorf("failed to read rollback file %s: %w", file, err)
		}

		if _, err := r.db.ExecContext(context.Background(), string(sqlBytes)); err != nil {
			return fmt.Errorf("failed to rollback migration %s: %w", file, err)
		}
	}

	r.log.Info().Msgf("Migrations rolled back successfully from %s", migrationsDir)
	return nil
}

// withRetry reruns op on serialization conflicts, bounded by the
// strategy. Business rejections pass through on the first attempt.
func (r *repository) withRetry(op func() error) error {
	var permanent error
	err := retry.Do(func() error {
		err := op()
		if err != nil && !isRetryable(err) {
			permanent = err
			return nil
		}
		return err
	}, r.retry)
	if permanent != nil {
		return permanent
	}
	return err
}

func isRetryable(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	// serialization_failure and deadlock_detected
	return pqErr.Code == "40001" || pqErr.Code == "40P01"
}
