package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/agildata/fieldbase/internal/types"
)

func TestQueue_FIFOAcrossTables(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	client, err := db.CreateClient(ctx, &types.Client{Name: "Acme Farms"})
	if err != nil {
		t.Fatal(err)
	}
	task, err := db.CreateTask(ctx, &types.Task{Title: "Inspect irrigation", ClientID: client.ID})
	if err != nil {
		t.Fatal(err)
	}
	product := mustCreateProduct(t, db, "Sprinkler head", 20)

	entries, err := db.ListQueue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 queue entries, got %d", len(entries))
	}

	// Strict enqueue order regardless of table
	wantRecords := []string{client.ID, task.ID, product.ID}
	for i, want := range wantRecords {
		if entries[i].RecordID != want {
			t.Errorf("entry %d: expected record %q, got %q (table %s)",
				i, want, entries[i].RecordID, entries[i].Table)
		}
	}
}

func TestQueue_FIFOAcrossFractionalSeconds(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	// A half-second fraction must not sort after a longer fraction
	// string that represents an earlier instant.
	first := time.Date(2024, 1, 1, 0, 0, 0, 500_000_000, time.UTC)
	second := time.Date(2024, 1, 1, 0, 0, 0, 510_000_000, time.UTC)

	for i, ts := range []time.Time{first, second} {
		_, err := db.db.ExecContext(ctx, insertQueueSQL,
			fmt.Sprintf("entry-%d", i), "tasks", fmt.Sprintf("t%d", i),
			"update", nil, formatTime(ts))
		if err != nil {
			t.Fatal(err)
		}
	}

	entries, err := db.ListQueue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 queue entries, got %d", len(entries))
	}
	if entries[0].RecordID != "t0" || entries[1].RecordID != "t1" {
		t.Errorf("expected drain order t0, t1; got %q, %q",
			entries[0].RecordID, entries[1].RecordID)
	}
	if !entries[0].Timestamp.Equal(first) {
		t.Errorf("timestamp round-trip lost precision: %v", entries[0].Timestamp)
	}
}

func TestQueue_RecordFailure(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	if _, err := db.CreateTask(ctx, &types.Task{Title: "Flaky"}); err != nil {
		t.Fatal(err)
	}
	entries, err := db.ListQueue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	id := entries[0].ID

	attempts, err := db.RecordQueueFailure(ctx, id, "connection reset")
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 1 {
		t.Errorf("expected 1 attempt, got %d", attempts)
	}

	attempts, err = db.RecordQueueFailure(ctx, id, "timeout")
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}

	entries, err = db.ListQueue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if entries[0].Attempts != 2 || entries[0].LastError != "timeout" {
		t.Errorf("unexpected persisted failure state: %+v", entries[0])
	}
}

func TestQueue_RecordFailureVanishedEntry(t *testing.T) {
	db := newTestStore(t)

	attempts, err := db.RecordQueueFailure(context.Background(), "gone", "whatever")
	if err != nil {
		t.Fatal(err)
	}
	if attempts != 0 {
		t.Errorf("expected 0 attempts for missing entry, got %d", attempts)
	}
}

func TestQueue_DeleteIsIdempotent(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	if _, err := db.CreateTask(ctx, &types.Task{Title: "Once"}); err != nil {
		t.Fatal(err)
	}
	entries, err := db.ListQueue(ctx)
	if err != nil {
		t.Fatal(err)
	}

	if err := db.DeleteQueueEntry(ctx, entries[0].ID); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteQueueEntry(ctx, entries[0].ID); err != nil {
		t.Errorf("second delete should be a no-op, got %v", err)
	}

	size, err := db.QueueSize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if size != 0 {
		t.Errorf("expected empty queue, got %d", size)
	}
}
