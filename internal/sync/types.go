package sync

import (
	"encoding/json"
	"time"
)

// Operation is the kind of local mutation a queue entry carries.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpDelete Operation = "delete"
)

// QueueEntry is one outbox row: a local mutation awaiting remote
// acknowledgment. Field names on the wire follow the persisted row
// format the remote apply endpoint consumes.
type QueueEntry struct {
	ID        string          `json:"id"`
	Table     string          `json:"tabela"`
	RecordID  string          `json:"recordId"`
	Operation Operation       `json:"operacao"`
	Payload   json.RawMessage `json:"dados,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Attempts  int             `json:"tentativas"`
	LastError string          `json:"erro,omitempty"`
}

// RunResult summarizes one sync run over the queue.
type RunResult struct {
	RunID     string        `json:"run_id"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Retried   int           `json:"retried"`
	Dropped   int           `json:"dropped"`
	Duration  time.Duration `json:"duration"`
}

// Failed reports whether the run must be counted as failed. Entries
// retained for a later retry do not fail the run; dropped entries do.
func (r *RunResult) Failed() bool {
	return r.Dropped > 0
}

// Status is a point-in-time snapshot of the engine state.
type Status struct {
	Online      bool       `json:"online"`
	InProgress  bool       `json:"in_progress"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
	TotalRuns   int        `json:"total_runs"`
	SuccessRuns int        `json:"success_runs"`
	FailedRuns  int        `json:"failed_runs"`
	LastError   string     `json:"last_error,omitempty"`
}
