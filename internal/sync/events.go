package sync

import "log/slog"

// Listener receives structured progress events from the engine. All
// callbacks run on the engine's goroutine and must not block.
type Listener interface {
	// OnStart fires when a run begins, with the batch size.
	OnStart(runID string, total int)
	// OnProgress fires after each processed entry.
	OnProgress(runID string, processed, total int)
	// OnComplete fires when a run finishes, successfully or not.
	OnComplete(runID string, result RunResult)
	// OnError fires for engine-level failures, such as being unable to
	// read the queue at all.
	OnError(runID string, err error)
}

// NopListener discards all events.
type NopListener struct{}

func (NopListener) OnStart(string, int)          {}
func (NopListener) OnProgress(string, int, int)  {}
func (NopListener) OnComplete(string, RunResult) {}
func (NopListener) OnError(string, error)        {}

// SlogListener logs events with the default structured logger.
type SlogListener struct{}

func (SlogListener) OnStart(runID string, total int) {
	slog.Info("sync run started",
		"component", "sync",
		"action", "run_start",
		"run_id", runID,
		"pending", total,
	)
}

func (SlogListener) OnProgress(runID string, processed, total int) {
	slog.Debug("sync progress",
		"component", "sync",
		"run_id", runID,
		"processed", processed,
		"total", total,
	)
}

func (SlogListener) OnComplete(runID string, result RunResult) {
	slog.Info("sync run completed",
		"component", "sync",
		"action", "run_complete",
		"run_id", runID,
		"total", result.Total,
		"succeeded", result.Succeeded,
		"retried", result.Retried,
		"dropped", result.Dropped,
		"duration_ms", result.Duration.Milliseconds(),
	)
}

func (SlogListener) OnError(runID string, err error) {
	slog.Error("sync run failed",
		"component", "sync",
		"action", "run_error",
		"run_id", runID,
		"error", err,
	)
}
