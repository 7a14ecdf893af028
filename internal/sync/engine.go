// Package sync drains the durable outbox against the remote service.
// The engine tracks connectivity, schedules periodic and event-driven
// runs, and bounds retry behavior per entry.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/google/uuid"
)

// ErrRunInProgress is returned when a run is requested while another
// run holds the queue.
var ErrRunInProgress = errors.New("sync run already in progress")

// ErrOffline is returned when a forced run finds the remote unreachable.
var ErrOffline = errors.New("remote service unreachable")

// Queue is the store surface the engine drains. Implemented by
// store.SQLiteStore.
type Queue interface {
	ListQueue(ctx context.Context) ([]QueueEntry, error)
	DeleteQueueEntry(ctx context.Context, id string) error
	RecordQueueFailure(ctx context.Context, id, errText string) (int, error)
	SetLastSyncAt(ctx context.Context, t time.Time) error
}

// EngineConfig bounds the engine's scheduling and retry behavior.
// Zero values fall back to defaults.
type EngineConfig struct {
	ProbeInterval time.Duration // connectivity probe cadence
	SyncInterval  time.Duration // periodic run cadence while online
	OnlineDelay   time.Duration // delay before the run triggered by going online
	MaxAttempts   int           // attempts before an entry is dropped
}

func (c *EngineConfig) withDefaults() {
	if c.ProbeInterval <= 0 {
		c.ProbeInterval = 10 * time.Second
	}
	if c.SyncInterval <= 0 {
		c.SyncInterval = 5 * time.Minute
	}
	if c.OnlineDelay <= 0 {
		c.OnlineDelay = 2 * time.Second
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
}

// Engine owns the "dequeue batch, apply, acknowledge" cycle. A real
// mutex serializes runs: a forced run never interleaves with a
// scheduled one over the same queue.
type Engine struct {
	queue    Queue
	remote   RemoteApplier
	probe    Probe
	listener Listener
	cfg      EngineConfig

	runMu gosync.Mutex // serializes runs over the queue
	force chan struct{}

	mu          gosync.Mutex // guards the state below
	online      bool
	inProgress  bool
	lastSyncAt  *time.Time
	totalRuns   int
	successRuns int
	failedRuns  int
	lastError   string
}

// NewEngine creates an engine. A nil listener discards events.
func NewEngine(queue Queue, remote RemoteApplier, probe Probe, listener Listener, cfg EngineConfig) *Engine {
	cfg.withDefaults()
	if listener == nil {
		listener = NopListener{}
	}
	return &Engine{
		queue:    queue,
		remote:   remote,
		probe:    probe,
		listener: listener,
		cfg:      cfg,
		force:    make(chan struct{}, 1),
	}
}

// Run starts the engine loop: periodic connectivity probes, periodic
// sync runs while online, a delayed run on the offline-to-online
// transition, and immediate runs on RequestSync. Blocks until ctx is
// cancelled.
func (e *Engine) Run(ctx context.Context) {
	slog.Info("worker started",
		"component", "sync",
		"worker", "sync-engine",
		"probe_interval", e.cfg.ProbeInterval.String(),
		"sync_interval", e.cfg.SyncInterval.String(),
	)

	probeTicker := time.NewTicker(e.cfg.ProbeInterval)
	defer probeTicker.Stop()
	syncTicker := time.NewTicker(e.cfg.SyncInterval)
	defer syncTicker.Stop()

	// Probe once up front so the first scheduled run has a real state.
	e.refreshOnline(ctx)

	var onlineC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			slog.Info("worker stopped",
				"component", "sync",
				"worker", "sync-engine",
				"reason", "context_cancelled",
			)
			return

		case <-probeTicker.C:
			if e.refreshOnline(ctx) {
				// Just came online: run after a short settle delay.
				onlineC = time.After(e.cfg.OnlineDelay)
			}

		case <-onlineC:
			onlineC = nil
			e.runIfOnline(ctx)

		case <-syncTicker.C:
			e.runIfOnline(ctx)

		case <-e.force:
			if _, err := e.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
				slog.Warn("forced sync failed",
					"component", "sync",
					"error", err,
				)
			}
		}
	}
}

// RequestSync asks the engine loop for an immediate run. Non-blocking;
// a request while one is already queued is coalesced.
func (e *Engine) RequestSync() {
	select {
	case e.force <- struct{}{}:
	default:
	}
}

// ForceSync probes connectivity and, if online, performs a run
// synchronously. Used by the CLI and the control API.
func (e *Engine) ForceSync(ctx context.Context) (*RunResult, error) {
	e.refreshOnline(ctx)
	if !e.Online() {
		return nil, ErrOffline
	}
	return e.RunOnce(ctx)
}

// refreshOnline re-probes connectivity and returns true when the state
// transitioned from offline to online.
func (e *Engine) refreshOnline(ctx context.Context) bool {
	online := e.probe.Check(ctx)

	e.mu.Lock()
	wasOnline := e.online
	e.online = online
	e.mu.Unlock()

	if online != wasOnline {
		slog.Info("connectivity changed",
			"component", "sync",
			"action", "connectivity_change",
			"online", online,
		)
	}
	return online && !wasOnline
}

func (e *Engine) runIfOnline(ctx context.Context) {
	if !e.Online() {
		return
	}
	if _, err := e.RunOnce(ctx); err != nil && !errors.Is(err, ErrRunInProgress) {
		slog.Warn("scheduled sync failed",
			"component", "sync",
			"error", err,
		)
	}
}

// Online reports the last probed connectivity state.
func (e *Engine) Online() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online
}

// Status returns a snapshot of the engine state and counters.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Status{
		Online:      e.online,
		InProgress:  e.inProgress,
		LastSyncAt:  e.lastSyncAt,
		TotalRuns:   e.totalRuns,
		SuccessRuns: e.successRuns,
		FailedRuns:  e.failedRuns,
		LastError:   e.lastError,
	}
}

// RunOnce drains the queue once, strictly in enqueue order. Individual
// item failures are recovered locally: the entry's attempt counter is
// bumped and, once it reaches the threshold, the entry is dropped
// rather than retried forever. Engine-level failures (cannot read the
// queue, cannot acknowledge an applied entry) abort the run.
//
// Returns ErrRunInProgress when another run holds the queue.
func (e *Engine) RunOnce(ctx context.Context) (*RunResult, error) {
	if !e.runMu.TryLock() {
		return nil, ErrRunInProgress
	}
	defer e.runMu.Unlock()

	e.setInProgress(true)
	defer e.setInProgress(false)

	runID := uuid.NewString()
	start := time.Now()

	entries, err := e.queue.ListQueue(ctx)
	if err != nil {
		err = fmt.Errorf("read sync queue: %w", err)
		e.recordRunFailure(err)
		e.listener.OnError(runID, err)
		return nil, err
	}

	e.listener.OnStart(runID, len(entries))
	result := RunResult{RunID: runID, Total: len(entries)}

	for i, entry := range entries {
		if err := e.applyEntry(ctx, entry, &result); err != nil {
			result.Duration = time.Since(start)
			e.recordRunFailure(err)
			e.listener.OnError(runID, err)
			return nil, err
		}
		e.listener.OnProgress(runID, i+1, len(entries))
	}

	result.Duration = time.Since(start)
	if err := e.recordRunResult(ctx, &result); err != nil {
		e.listener.OnError(runID, err)
		return nil, err
	}
	e.listener.OnComplete(runID, result)
	return &result, nil
}

// applyEntry pushes one queue entry to the remote. Apply failures are
// absorbed into the result; only queue bookkeeping failures propagate.
func (e *Engine) applyEntry(ctx context.Context, entry QueueEntry, result *RunResult) error {
	applyErr := e.remote.Apply(ctx, entry)
	if applyErr == nil {
		if err := e.queue.DeleteQueueEntry(ctx, entry.ID); err != nil {
			return fmt.Errorf("acknowledge queue entry %s: %w", entry.ID, err)
		}
		result.Succeeded++
		return nil
	}

	attempts, err := e.queue.RecordQueueFailure(ctx, entry.ID, applyErr.Error())
	if err != nil {
		return fmt.Errorf("record failure for queue entry %s: %w", entry.ID, err)
	}
	if attempts == 0 {
		// Entry vanished between listing and recording; nothing to do.
		return nil
	}

	if attempts >= e.cfg.MaxAttempts {
		if err := e.queue.DeleteQueueEntry(ctx, entry.ID); err != nil {
			return fmt.Errorf("drop queue entry %s: %w", entry.ID, err)
		}
		result.Dropped++
		slog.Warn("queue entry dropped after exhausting retries",
			"component", "sync",
			"action", "entry_dropped",
			"entry_id", entry.ID,
			"table", entry.Table,
			"record_id", entry.RecordID,
			"attempts", attempts,
			"error", applyErr,
		)
	} else {
		result.Retried++
		slog.Debug("queue entry retained for retry",
			"component", "sync",
			"entry_id", entry.ID,
			"attempts", attempts,
			"error", applyErr,
		)
	}
	return nil
}

// recordRunResult updates counters after a completed batch. A run with
// no dropped entries is successful and moves the last-sync timestamp;
// dropped entries mark the run as failed without blocking later runs.
func (e *Engine) recordRunResult(ctx context.Context, result *RunResult) error {
	if result.Failed() {
		e.mu.Lock()
		e.totalRuns++
		e.failedRuns++
		e.lastError = fmt.Sprintf("%d of %d entries dropped", result.Dropped, result.Total)
		e.mu.Unlock()
		return nil
	}

	now := time.Now().UTC()
	if err := e.queue.SetLastSyncAt(ctx, now); err != nil {
		err = fmt.Errorf("persist last sync time: %w", err)
		e.recordRunFailure(err)
		return err
	}

	e.mu.Lock()
	e.totalRuns++
	e.successRuns++
	e.lastSyncAt = &now
	e.lastError = ""
	e.mu.Unlock()
	return nil
}

func (e *Engine) recordRunFailure(err error) {
	e.mu.Lock()
	e.totalRuns++
	e.failedRuns++
	e.lastError = err.Error()
	e.mu.Unlock()
}

func (e *Engine) setInProgress(v bool) {
	e.mu.Lock()
	e.inProgress = v
	e.mu.Unlock()
}
