package store

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRegistry_BackupPruning(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	const keep = 3
	for i := 0; i < 5; i++ {
		rec := &BackupRecord{
			ID:        fmt.Sprintf("bkp-%02d", i),
			FilePath:  fmt.Sprintf("/backups/bkp-%02d.json", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
			SizeBytes: 1024,
		}
		pruned, err := db.AddBackupRecord(ctx, rec, keep)
		if err != nil {
			t.Fatal(err)
		}
		if i < keep && len(pruned) != 0 {
			t.Errorf("insert %d: expected no pruning, got %d", i, len(pruned))
		}
		if i >= keep && len(pruned) != 1 {
			t.Errorf("insert %d: expected 1 pruned record, got %d", i, len(pruned))
		}
	}

	records, err := db.ListBackupRecords(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != keep {
		t.Fatalf("expected %d surviving records, got %d", keep, len(records))
	}
	// Newest first, oldest two pruned
	if records[0].ID != "bkp-04" || records[keep-1].ID != "bkp-02" {
		t.Errorf("unexpected survivors: %+v", records)
	}
}

func TestRegistry_GetAndDeleteBackupRecord(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	rec := &BackupRecord{
		ID:        "bkp-keep",
		FilePath:  "/backups/bkp-keep.json",
		CreatedAt: time.Now().UTC(),
		SizeBytes: 42,
		Counts:    map[string]int{"tasks": 2},
	}
	if _, err := db.AddBackupRecord(ctx, rec, 10); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetBackupRecord(ctx, "bkp-keep")
	if err != nil {
		t.Fatal(err)
	}
	if got.FilePath != rec.FilePath || got.Counts["tasks"] != 2 {
		t.Errorf("unexpected record: %+v", got)
	}

	if err := db.DeleteBackupRecord(ctx, "bkp-keep"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteBackupRecord(ctx, "bkp-keep"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := db.GetBackupRecord(ctx, "bkp-keep"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestRegistry_RestoreLogPruning(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	const keep = 2
	for i := 0; i < 4; i++ {
		entry := &RestoreLogEntry{
			ID:                fmt.Sprintf("rst-%02d", i),
			RestoredAt:        base.Add(time.Duration(i) * time.Minute),
			SnapshotVersion:   "1.0",
			SnapshotTimestamp: base,
		}
		if err := db.AddRestoreLog(ctx, entry, keep); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := db.ListRestoreLog(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != keep {
		t.Fatalf("expected %d log entries, got %d", keep, len(entries))
	}
	if entries[0].ID != "rst-03" || entries[1].ID != "rst-02" {
		t.Errorf("unexpected survivors: %+v", entries)
	}
}
