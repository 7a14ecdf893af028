package backup

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/agildata/fieldbase/internal/notify"
	"github.com/agildata/fieldbase/internal/store"
)

// settingsPollInterval bounds how long a disabled scheduler takes to
// notice an enable written by another process.
const settingsPollInterval = time.Minute

// Scheduler fires Create on a persisted interval while auto-backup is
// enabled, and notifies the sink after each successful run. Enabled
// flag and interval live in the settings table so they survive
// restarts; Configure rewrites them and restarts the timer.
type Scheduler struct {
	manager         *Manager
	store           *store.SQLiteStore
	sink            notify.Sink
	defaultInterval time.Duration
	reload          chan struct{}
}

// NewScheduler creates the auto-backup scheduler. A nil sink discards
// notifications.
func NewScheduler(manager *Manager, st *store.SQLiteStore, sink notify.Sink, defaultInterval time.Duration) *Scheduler {
	if sink == nil {
		sink = notify.NoopSink{}
	}
	if defaultInterval <= 0 {
		defaultInterval = 24 * time.Hour
	}
	return &Scheduler{
		manager:         manager,
		store:           st,
		sink:            sink,
		defaultInterval: defaultInterval,
		reload:          make(chan struct{}, 1),
	}
}

// Configure persists the auto-backup settings and restarts the timer.
// An interval of zero keeps the previously persisted one.
func (s *Scheduler) Configure(ctx context.Context, enabled bool, interval time.Duration) error {
	if err := s.store.SetSetting(ctx, store.SettingAutoBackupEnabled, strconv.FormatBool(enabled)); err != nil {
		return err
	}
	if interval > 0 {
		if err := s.store.SetSetting(ctx, store.SettingAutoBackupInterval, interval.String()); err != nil {
			return err
		}
	}

	select {
	case s.reload <- struct{}{}:
	default:
	}

	slog.Info("auto-backup configured",
		"component", "backup",
		"action", "auto_backup_configured",
		"enabled", enabled,
		"interval", interval.String(),
	)
	return nil
}

// Settings returns the persisted auto-backup state.
func (s *Scheduler) Settings(ctx context.Context) (enabled bool, interval time.Duration) {
	interval = s.defaultInterval

	if v, err := s.store.GetSetting(ctx, store.SettingAutoBackupEnabled); err == nil {
		enabled, _ = strconv.ParseBool(v)
	}
	if v, err := s.store.GetSetting(ctx, store.SettingAutoBackupInterval); err == nil {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			interval = d
		}
	}
	return enabled, interval
}

// Run starts the scheduler loop. Blocks until ctx is cancelled. While
// disabled the loop just waits for a Configure; while enabled it arms
// a timer for the persisted interval and backs up on each expiry.
func (s *Scheduler) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "backup",
		"worker", "auto-backup",
	)

	for {
		enabled, interval := s.Settings(ctx)

		if !enabled {
			// The poll catches settings written by another process
			// (CLI); in-process Configure calls signal reload directly.
			poll := time.NewTimer(settingsPollInterval)
			select {
			case <-ctx.Done():
				poll.Stop()
				s.logStopped()
				return
			case <-s.reload:
				poll.Stop()
				continue
			case <-poll.C:
				continue
			}
		}

		timer := time.NewTimer(interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logStopped()
			return
		case <-s.reload:
			timer.Stop()
			continue
		case <-timer.C:
			s.runBackup(ctx)
		}
	}
}

func (s *Scheduler) logStopped() {
	slog.Info("worker stopped",
		"component", "backup",
		"worker", "auto-backup",
		"reason", "context_cancelled",
	)
}

// runBackup performs one scheduled backup and notifies on success.
func (s *Scheduler) runBackup(ctx context.Context) {
	rec, err := s.manager.Create(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("scheduled backup failed",
			"component", "backup",
			"action", "auto_backup_failed",
			"error", err,
		)
		return
	}

	total := 0
	for _, n := range rec.Counts {
		total += n
	}
	if err := s.sink.Notify(ctx, "Backup completed",
		"Automatic backup saved "+strconv.Itoa(total)+" records.", nil); err != nil {
		slog.Warn("backup notification failed",
			"component", "backup",
			"error", err,
		)
	}
}
