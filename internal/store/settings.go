package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Setting keys for the simple key-value preferences external to the
// relational tables.
const (
	SettingAutoBackupEnabled  = "auto_backup_enabled"
	SettingAutoBackupInterval = "auto_backup_interval"
	SettingLastSyncAt         = "last_sync_at"
	SettingMigrationDone      = "migration_done"
)

// GetSetting retrieves a settings value by key. Returns ErrNotFound
// wrapped with the key when the setting has never been written.
func (s *SQLiteStore) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("setting %q: %w", key, ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("get setting: %w", err)
	}
	return value, nil
}

// SetSetting writes a settings value, replacing any previous one.
func (s *SQLiteStore) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO settings (key, value) VALUES (?, ?)
	`, key, value)
	if err != nil {
		return fmt.Errorf("set setting: %w", err)
	}
	return nil
}

// SetLastSyncAt persists the last successful sync timestamp.
func (s *SQLiteStore) SetLastSyncAt(ctx context.Context, t time.Time) error {
	return s.SetSetting(ctx, SettingLastSyncAt, formatTime(t))
}

// GetLastSyncAt returns the last successful sync timestamp, or nil if
// no sync has succeeded yet.
func (s *SQLiteStore) GetLastSyncAt(ctx context.Context) (*time.Time, error) {
	value, err := s.GetSetting(ctx, SettingLastSyncAt)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	t, err := parseTime(value)
	if err != nil {
		return nil, fmt.Errorf("parse last sync time: %w", err)
	}
	return &t, nil
}
