package scheduler

import (
	"context"
	"encoding/json"
	"time"

	"github.com/wb-go/wbf/zlog"

	"slotbot/internal/dto"
	"slotbot/internal/repo"
	"slotbot/internal/service"
)

type Config struct {
	ReminderInterval       time.Duration
	SweepInterval          time.Duration
	PurgeInterval          time.Duration
	BlacklistRetentionDays int
}

// Worker drives the timed maintenance passes: reminder dispatch, stale
// event sweep and blacklist retention. All real work happens in the
// repository; this only decides when.
type Worker struct {
	repo   repo.Repository
	pub    service.Publisher
	cfg    Config
	done   chan struct{}
	cancel context.CancelFunc
}

func NewWorker(repo repo.Repository, pub service.Publisher, cfg Config) *Worker {
	if cfg.ReminderInterval <= 0 {
		cfg.ReminderInterval = time.Minute
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.PurgeInterval <= 0 {
		cfg.PurgeInterval = 24 * time.Hour
	}
	if cfg.BlacklistRetentionDays <= 0 {
		cfg.BlacklistRetentionDays = 365
	}
	return &Worker{
		repo: repo,
		pub:  pub,
		cfg:  cfg,
		done: make(chan struct{}),
	}
}

func (w *Worker) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	zlog.Logger.Info().Msg("scheduler started")

	go func() {
		defer close(w.done)

		remind := time.NewTicker(w.cfg.ReminderInterval)
		sweep := time.NewTicker(w.cfg.SweepInterval)
		purge := time.NewTicker(w.cfg.PurgeInterval)
		defer remind.Stop()
		defer sweep.Stop()
		defer purge.Stop()

		for {
			select {
			case <-cctx.Done():
				zlog.Logger.Info().Msg("scheduler stopped by context")
				return
			case <-remind.C:
				w.fireReminders(cctx, time.Now())
			case <-sweep.C:
				w.sweepStale(cctx, time.Now())
			case <-purge.C:
				w.purgeBlacklist(cctx)
			}
		}
	}()
}

func (w *Worker) Stop() {
	if w.cancel != nil {
		w.cancel()
		<-w.done
	}
}

func (w *Worker) fireReminders(ctx context.Context, now time.Time) {
	due, err := w.repo.DueReminders(ctx, now)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to query due reminders")
		return
	}
	for _, notice := range groupReminders(due) {
		payload, err := json.Marshal(notice)
		if err != nil {
			zlog.Logger.Error().Err(err).Msg("failed to marshal reminder notice")
			continue
		}
		if err := w.pub.Publish(payload); err != nil {
			// Leave the reminder rows in place so the next tick retries.
			zlog.Logger.Error().Err(err).Int64("event_id", notice.EventID).Msg("failed to publish reminder notice")
			return
		}
	}

	// Fired rows are cleared even when nobody was due: an event with no
	// committed participants still owns a reminder row that must not be
	// re-scanned every tick.
	cleared, err := w.repo.ClearFiredReminders(ctx, now)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to clear fired reminders")
		return
	}
	if cleared > 0 || len(due) > 0 {
		zlog.Logger.Info().Int64("cleared", cleared).Int("recipients", len(due)).Msg("reminders dispatched")
	}
}

func (w *Worker) sweepStale(ctx context.Context, now time.Time) {
	deleted, err := w.repo.SweepStaleEvents(ctx, now)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("stale event sweep failed")
	}
	if len(deleted) > 0 {
		zlog.Logger.Info().Ints64("event_ids", deleted).Msg("stale events deleted")
	}
}

func (w *Worker) purgeBlacklist(ctx context.Context) {
	purged, err := w.repo.PurgeExpired(ctx, w.cfg.BlacklistRetentionDays)
	if err != nil {
		zlog.Logger.Error().Err(err).Msg("blacklist purge failed")
		return
	}
	if purged > 0 {
		zlog.Logger.Info().Int64("purged", purged).Msg("expired blacklist entries removed")
	}
}

// groupReminders folds per-participant rows into one notice per event,
// keeping the row order within each event.
func groupReminders(due []repo.DueReminder) []dto.Notice {
	byEvent := make(map[int64]int)
	var notices []dto.Notice
	for _, d := range due {
		i, ok := byEvent[d.EventID]
		if !ok {
			byEvent[d.EventID] = len(notices)
			notices = append(notices, dto.Notice{
				Kind:      "reminder",
				EventID:   d.EventID,
				EventName: d.EventName,
				StartTime: d.StartTime,
			})
			i = len(notices) - 1
		}
		notices[i].UserIDs = append(notices[i].UserIDs, d.UserID)
	}
	return notices
}
