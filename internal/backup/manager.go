// Package backup produces and consumes full-state snapshots of the
// local store, keeps a bounded registry of past snapshots, and runs the
// optional auto-backup timer.
package backup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agildata/fieldbase/internal/store"
)

const (
	// DefaultKeepBackups is how many backup records survive pruning.
	DefaultKeepBackups = 10
	// DefaultKeepRestoreLogs is how many restore log entries survive.
	DefaultKeepRestoreLogs = 5
)

// ManagerConfig bounds the manager's retention and labels snapshots.
type ManagerConfig struct {
	Dir             string // directory snapshot files are written to
	AppVersion      string // recorded in snapshot metadata
	KeepBackups     int
	KeepRestoreLogs int
}

func (c *ManagerConfig) withDefaults() {
	if c.KeepBackups <= 0 {
		c.KeepBackups = DefaultKeepBackups
	}
	if c.KeepRestoreLogs <= 0 {
		c.KeepRestoreLogs = DefaultKeepRestoreLogs
	}
}

// Manager creates, restores, lists, and deletes snapshot backups.
type Manager struct {
	store    *store.SQLiteStore
	uploader Uploader
	cfg      ManagerConfig
}

// NewManager creates a backup manager. A nil uploader disables
// off-device copies.
func NewManager(st *store.SQLiteStore, uploader Uploader, cfg ManagerConfig) *Manager {
	cfg.withDefaults()
	if uploader == nil {
		uploader = NoopUploader{}
	}
	return &Manager{store: st, uploader: uploader, cfg: cfg}
}

// Create reads every entity table fully, writes a versioned snapshot
// file, and appends a registry record. History beyond the configured
// retention is pruned, oldest first, along with the pruned files.
func (m *Manager) Create(ctx context.Context) (*store.BackupRecord, error) {
	ds, err := m.store.ExportAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("export store: %w", err)
	}

	now := time.Now().UTC()
	snap := Snapshot{
		Version:   SnapshotVersion,
		Timestamp: now,
		Data:      ds,
		Metadata: Metadata{
			Counts:     ds.Counts(),
			AppVersion: m.cfg.AppVersion,
		},
	}

	data, err := json.MarshalIndent(&snap, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal snapshot: %w", err)
	}

	if err := os.MkdirAll(m.cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}

	id := ulid.Make().String()
	name := fmt.Sprintf("backup_%s_%s.json", now.Format("20060102-150405"), id)
	path := filepath.Join(m.cfg.Dir, name)

	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("write snapshot file: %w", err)
	}

	rec := &store.BackupRecord{
		ID:        id,
		FilePath:  path,
		CreatedAt: now,
		SizeBytes: int64(len(data)),
		Counts:    ds.Counts(),
	}

	pruned, err := m.store.AddBackupRecord(ctx, rec, m.cfg.KeepBackups)
	if err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("register backup: %w", err)
	}
	for _, old := range pruned {
		if err := os.Remove(old.FilePath); err != nil && !os.IsNotExist(err) {
			slog.Warn("failed to remove pruned backup file",
				"component", "backup",
				"backup_id", old.ID,
				"path", old.FilePath,
				"error", err,
			)
		}
	}

	// Off-device copy is best effort; the local snapshot stays valid.
	if err := m.uploader.Upload(ctx, name, path); err != nil {
		slog.Warn("snapshot upload failed",
			"component", "backup",
			"action", "upload_failed",
			"backup_id", id,
			"error", err,
		)
	}

	slog.Info("backup created",
		"component", "backup",
		"action", "backup_created",
		"backup_id", id,
		"size_bytes", rec.SizeBytes,
		"records", ds.Total(),
	)
	return rec, nil
}

// Restore validates a serialized snapshot and imports its rows. With
// clearExisting (the default for full restores) every entity table is
// emptied first; otherwise snapshot rows merge in via upsert. The store
// is left untouched when validation fails. A restore log entry records
// per-table counts.
func (m *Manager) Restore(ctx context.Context, raw []byte, clearExisting bool) (*store.RestoreLogEntry, error) {
	snap, err := DecodeSnapshot(raw)
	if err != nil {
		return nil, err
	}

	counts, err := m.store.ImportAll(ctx, snap.Data, clearExisting)
	if err != nil {
		return nil, fmt.Errorf("import snapshot: %w", err)
	}

	entry := &store.RestoreLogEntry{
		ID:                ulid.Make().String(),
		RestoredAt:        time.Now().UTC(),
		SnapshotVersion:   snap.Version,
		SnapshotTimestamp: snap.Timestamp,
		Counts:            counts,
	}
	if err := m.store.AddRestoreLog(ctx, entry, m.cfg.KeepRestoreLogs); err != nil {
		return nil, fmt.Errorf("record restore: %w", err)
	}

	slog.Info("restore completed",
		"component", "backup",
		"action", "restore_completed",
		"snapshot_timestamp", snap.Timestamp.Format(time.RFC3339),
		"cleared", clearExisting,
	)
	return entry, nil
}

// RestoreFile restores from a snapshot file on disk.
func (m *Manager) RestoreFile(ctx context.Context, path string, clearExisting bool) (*store.RestoreLogEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read snapshot file: %w", err)
	}
	return m.Restore(ctx, raw, clearExisting)
}

// RestoreRecord restores from a registered backup.
func (m *Manager) RestoreRecord(ctx context.Context, backupID string, clearExisting bool) (*store.RestoreLogEntry, error) {
	rec, err := m.store.GetBackupRecord(ctx, backupID)
	if err != nil {
		return nil, err
	}
	return m.RestoreFile(ctx, rec.FilePath, clearExisting)
}

// Delete removes a backup's file and registry entry. When the file
// cannot be removed the registry entry is removed anyway: a dangling
// file is preferable to a registry row pointing at unknown state.
func (m *Manager) Delete(ctx context.Context, backupID string) error {
	rec, err := m.store.GetBackupRecord(ctx, backupID)
	if err != nil {
		return err
	}

	if err := os.Remove(rec.FilePath); err != nil && !os.IsNotExist(err) {
		slog.Warn("failed to remove backup file",
			"component", "backup",
			"backup_id", backupID,
			"path", rec.FilePath,
			"error", err,
		)
	}

	return m.store.DeleteBackupRecord(ctx, backupID)
}

// List returns registered backups, newest first.
func (m *Manager) List(ctx context.Context) ([]store.BackupRecord, error) {
	return m.store.ListBackupRecords(ctx)
}

// RestoreHistory returns the restore audit log, newest first.
func (m *Manager) RestoreHistory(ctx context.Context) ([]store.RestoreLogEntry, error) {
	return m.store.ListRestoreLog(ctx)
}
