package store

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSettings_RoundTrip(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	if _, err := db.GetSetting(ctx, SettingAutoBackupEnabled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unset key, got %v", err)
	}

	if err := db.SetSetting(ctx, SettingAutoBackupEnabled, "true"); err != nil {
		t.Fatal(err)
	}
	if err := db.SetSetting(ctx, SettingAutoBackupEnabled, "false"); err != nil {
		t.Fatal(err)
	}

	value, err := db.GetSetting(ctx, SettingAutoBackupEnabled)
	if err != nil {
		t.Fatal(err)
	}
	if value != "false" {
		t.Errorf("expected latest value, got %q", value)
	}
}

func TestSettings_LastSyncAt(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	got, err := db.GetLastSyncAt(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("expected nil before first sync, got %v", got)
	}

	at := time.Date(2026, 4, 2, 14, 30, 0, 0, time.UTC)
	if err := db.SetLastSyncAt(ctx, at); err != nil {
		t.Fatal(err)
	}

	got, err = db.GetLastSyncAt(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got == nil || !got.Equal(at) {
		t.Errorf("expected %v, got %v", at, got)
	}
}
