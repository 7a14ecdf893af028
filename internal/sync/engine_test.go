package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"
	"testing"
	"time"
)

// fakeQueue is an in-memory Queue for engine tests.
type fakeQueue struct {
	mu         gosync.Mutex
	entries    []QueueEntry
	listErr    error
	setLastErr error
	lastSyncAt *time.Time
}

func (q *fakeQueue) add(id, table, recordID string, op Operation) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.entries = append(q.entries, QueueEntry{
		ID:        id,
		Table:     table,
		RecordID:  recordID,
		Operation: op,
		Payload:   json.RawMessage(`{}`),
		Timestamp: time.Now().UTC(),
	})
}

func (q *fakeQueue) ListQueue(context.Context) ([]QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.listErr != nil {
		return nil, q.listErr
	}
	out := make([]QueueEntry, len(q.entries))
	copy(out, q.entries)
	return out, nil
}

func (q *fakeQueue) DeleteQueueEntry(_ context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, e := range q.entries {
		if e.ID == id {
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			break
		}
	}
	return nil
}

func (q *fakeQueue) RecordQueueFailure(_ context.Context, id, errText string) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.entries {
		if q.entries[i].ID == id {
			q.entries[i].Attempts++
			q.entries[i].LastError = errText
			return q.entries[i].Attempts, nil
		}
	}
	return 0, nil
}

func (q *fakeQueue) SetLastSyncAt(_ context.Context, t time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.setLastErr != nil {
		return q.setLastErr
	}
	q.lastSyncAt = &t
	return nil
}

func (q *fakeQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.entries)
}

// scriptedRemote applies entries with a per-entry verdict function and
// records the order entries arrive in.
type scriptedRemote struct {
	mu      gosync.Mutex
	verdict func(entry QueueEntry) error
	applied []string
}

func (r *scriptedRemote) Apply(_ context.Context, entry QueueEntry) error {
	r.mu.Lock()
	r.applied = append(r.applied, entry.RecordID)
	r.mu.Unlock()
	if r.verdict != nil {
		return r.verdict(entry)
	}
	return nil
}

func (r *scriptedRemote) appliedOrder() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.applied))
	copy(out, r.applied)
	return out
}

func newTestEngine(queue Queue, remote RemoteApplier, probe Probe) *Engine {
	return NewEngine(queue, remote, probe, nil, EngineConfig{MaxAttempts: 3})
}

func TestEngine_RunOnceDrainsInOrder(t *testing.T) {
	queue := &fakeQueue{}
	queue.add("q1", "clients", "c1", OpInsert)
	queue.add("q2", "tasks", "t1", OpInsert)
	queue.add("q3", "tasks", "t1", OpUpdate)
	remote := &scriptedRemote{}

	engine := newTestEngine(queue, remote, StaticProbe(true))
	result, err := engine.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if result.Total != 3 || result.Succeeded != 3 || result.Retried != 0 || result.Dropped != 0 {
		t.Errorf("unexpected result: %+v", result)
	}
	if queue.size() != 0 {
		t.Errorf("expected drained queue, %d entries remain", queue.size())
	}

	order := remote.appliedOrder()
	want := []string{"c1", "t1", "t1"}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected apply order %v, got %v", want, order)
		}
	}

	if queue.lastSyncAt == nil {
		t.Error("expected last sync time persisted after successful run")
	}

	status := engine.Status()
	if status.TotalRuns != 1 || status.SuccessRuns != 1 || status.FailedRuns != 0 {
		t.Errorf("unexpected counters: %+v", status)
	}
}

func TestEngine_RetryBoundary(t *testing.T) {
	queue := &fakeQueue{}
	queue.add("q1", "tasks", "t1", OpInsert)
	remote := &scriptedRemote{
		verdict: func(QueueEntry) error { return errors.New("remote rejected") },
	}
	engine := newTestEngine(queue, remote, StaticProbe(true))
	ctx := context.Background()

	// First two runs retain the entry; neither fails the run
	for i := 1; i <= 2; i++ {
		result, err := engine.RunOnce(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if result.Retried != 1 || result.Dropped != 0 {
			t.Fatalf("run %d: expected retained entry, got %+v", i, result)
		}
		if queue.size() != 1 {
			t.Fatalf("run %d: entry must survive, queue has %d", i, queue.size())
		}
	}

	// Third failed attempt crosses the threshold: entry is dropped and
	// the run is counted as failed
	result, err := engine.RunOnce(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if result.Dropped != 1 || result.Retried != 0 {
		t.Fatalf("expected dropped entry, got %+v", result)
	}
	if queue.size() != 0 {
		t.Errorf("dropped entry must leave the queue, %d remain", queue.size())
	}

	status := engine.Status()
	if status.TotalRuns != 3 || status.SuccessRuns != 2 || status.FailedRuns != 1 {
		t.Errorf("unexpected counters: %+v", status)
	}
	if status.LastError == "" {
		t.Error("expected drop reason in last error")
	}
}

func TestEngine_QueueReadFailure(t *testing.T) {
	queue := &fakeQueue{listErr: errors.New("database locked")}
	engine := newTestEngine(queue, &scriptedRemote{}, StaticProbe(true))

	_, err := engine.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error when queue cannot be read")
	}

	status := engine.Status()
	if status.TotalRuns != 1 || status.FailedRuns != 1 {
		t.Errorf("unexpected counters: %+v", status)
	}
}

func TestEngine_PersistLastSyncFailureFailsRun(t *testing.T) {
	queue := &fakeQueue{setLastErr: errors.New("disk full")}
	queue.add("q1", "tasks", "t1", OpInsert)
	engine := newTestEngine(queue, &scriptedRemote{}, StaticProbe(true))

	_, err := engine.RunOnce(context.Background())
	if err == nil {
		t.Fatal("expected error when last sync time cannot be persisted")
	}

	status := engine.Status()
	if status.FailedRuns != 1 || status.LastSyncAt != nil {
		t.Errorf("unexpected status after persistence failure: %+v", status)
	}
}

func TestEngine_ForceSyncOffline(t *testing.T) {
	queue := &fakeQueue{}
	queue.add("q1", "tasks", "t1", OpInsert)
	engine := newTestEngine(queue, &scriptedRemote{}, StaticProbe(false))

	_, err := engine.ForceSync(context.Background())
	if !errors.Is(err, ErrOffline) {
		t.Fatalf("expected ErrOffline, got %v", err)
	}
	if queue.size() != 1 {
		t.Error("offline force must not touch the queue")
	}
	if engine.Status().TotalRuns != 0 {
		t.Error("offline force must not count as a run")
	}
}

func TestEngine_OverlappingRunsRejected(t *testing.T) {
	queue := &fakeQueue{}
	queue.add("q1", "tasks", "t1", OpInsert)

	entered := make(chan struct{})
	release := make(chan struct{})
	remote := &scriptedRemote{
		verdict: func(QueueEntry) error {
			close(entered)
			<-release
			return nil
		},
	}
	engine := newTestEngine(queue, remote, StaticProbe(true))
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := engine.RunOnce(ctx)
		done <- err
	}()

	<-entered
	if !engine.Status().InProgress {
		t.Error("expected in-progress flag while a run holds the queue")
	}
	if _, err := engine.RunOnce(ctx); !errors.Is(err, ErrRunInProgress) {
		t.Fatalf("expected ErrRunInProgress, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if engine.Status().InProgress {
		t.Error("in-progress flag must clear after the run")
	}
	if engine.Status().TotalRuns != 1 {
		t.Errorf("rejected run must not count, got %d runs", engine.Status().TotalRuns)
	}
}

func TestEngine_PartialBatch(t *testing.T) {
	queue := &fakeQueue{}
	queue.add("q1", "tasks", "t1", OpInsert)
	queue.add("q2", "tasks", "t2", OpInsert)
	queue.add("q3", "tasks", "t3", OpInsert)
	remote := &scriptedRemote{
		verdict: func(entry QueueEntry) error {
			if entry.RecordID == "t2" {
				return fmt.Errorf("validation failed for %s", entry.RecordID)
			}
			return nil
		},
	}
	engine := newTestEngine(queue, remote, StaticProbe(true))

	result, err := engine.RunOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if result.Succeeded != 2 || result.Retried != 1 {
		t.Errorf("unexpected result: %+v", result)
	}
	// The failing entry stays put without blocking the ones behind it
	if queue.size() != 1 {
		t.Errorf("expected 1 surviving entry, got %d", queue.size())
	}
}
