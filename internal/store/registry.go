package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// BackupRecord is registry metadata for one snapshot file. The file is
// the source of truth; the record only references it.
type BackupRecord struct {
	ID        string         `json:"id"`
	FilePath  string         `json:"file_path"`
	CreatedAt time.Time      `json:"created_at"`
	SizeBytes int64          `json:"size_bytes"`
	Counts    map[string]int `json:"counts"`
}

// RestoreLogEntry is one append-only audit row for a completed restore.
type RestoreLogEntry struct {
	ID                string         `json:"id"`
	RestoredAt        time.Time      `json:"restored_at"`
	SnapshotVersion   string         `json:"snapshot_version"`
	SnapshotTimestamp time.Time      `json:"snapshot_timestamp"`
	Counts            map[string]int `json:"counts"`
}

func marshalCounts(counts map[string]int) string {
	if counts == nil {
		return "{}"
	}
	b, err := json.Marshal(counts)
	if err != nil {
		return "{}"
	}
	return string(b)
}

// AddBackupRecord appends a registry entry and prunes the registry to
// the keep most recent records. Pruned records lose only their registry
// row, not the underlying file; file cleanup belongs to the caller.
func (s *SQLiteStore) AddBackupRecord(ctx context.Context, rec *BackupRecord, keep int) ([]BackupRecord, error) {
	var pruned []BackupRecord
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO backup_records (id, file_path, created_at, size_bytes, counts)
			VALUES (?, ?, ?, ?, ?)
		`, rec.ID, rec.FilePath, formatTime(rec.CreatedAt), rec.SizeBytes, marshalCounts(rec.Counts))
		if err != nil {
			return fmt.Errorf("insert backup record: %w", err)
		}

		rows, err := tx.QueryContext(ctx, `
			SELECT id, file_path, created_at, size_bytes, counts FROM backup_records
			ORDER BY created_at DESC, id DESC
			LIMIT -1 OFFSET ?
		`, keep)
		if err != nil {
			return fmt.Errorf("select pruned backups: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			r, err := scanBackupRecord(rows)
			if err != nil {
				return err
			}
			pruned = append(pruned, *r)
		}
		if err := rows.Err(); err != nil {
			return err
		}

		for _, r := range pruned {
			if _, err := tx.ExecContext(ctx, `DELETE FROM backup_records WHERE id = ?`, r.ID); err != nil {
				return fmt.Errorf("prune backup record: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pruned, nil
}

func scanBackupRecord(sc rowScanner) (*BackupRecord, error) {
	var r BackupRecord
	var createdAt, counts string
	if err := sc.Scan(&r.ID, &r.FilePath, &createdAt, &r.SizeBytes, &counts); err != nil {
		return nil, fmt.Errorf("scan backup record: %w", err)
	}
	r.CreatedAt, _ = parseTime(createdAt)
	if err := json.Unmarshal([]byte(counts), &r.Counts); err != nil {
		r.Counts = nil
	}
	return &r, nil
}

// ListBackupRecords returns registry entries, newest first.
func (s *SQLiteStore) ListBackupRecords(ctx context.Context) ([]BackupRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, file_path, created_at, size_bytes, counts FROM backup_records
		ORDER BY created_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query backup records: %w", err)
	}
	defer rows.Close()

	records := make([]BackupRecord, 0)
	for rows.Next() {
		r, err := scanBackupRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *r)
	}
	return records, rows.Err()
}

// GetBackupRecord retrieves one registry entry by id.
func (s *SQLiteStore) GetBackupRecord(ctx context.Context, id string) (*BackupRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, file_path, created_at, size_bytes, counts FROM backup_records WHERE id = ?
	`, id)
	r, err := scanBackupRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return r, nil
}

// DeleteBackupRecord removes a registry entry.
func (s *SQLiteStore) DeleteBackupRecord(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM backup_records WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete backup record: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// AddRestoreLog appends a restore audit entry and prunes the log to the
// keep most recent entries.
func (s *SQLiteStore) AddRestoreLog(ctx context.Context, entry *RestoreLogEntry, keep int) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO restore_log (id, restored_at, snapshot_version, snapshot_timestamp, counts)
			VALUES (?, ?, ?, ?, ?)
		`, entry.ID, formatTime(entry.RestoredAt), entry.SnapshotVersion,
			formatTime(entry.SnapshotTimestamp), marshalCounts(entry.Counts))
		if err != nil {
			return fmt.Errorf("insert restore log: %w", err)
		}

		_, err = tx.ExecContext(ctx, `
			DELETE FROM restore_log WHERE id NOT IN (
				SELECT id FROM restore_log ORDER BY restored_at DESC, id DESC LIMIT ?
			)
		`, keep)
		if err != nil {
			return fmt.Errorf("prune restore log: %w", err)
		}
		return nil
	})
}

// ListRestoreLog returns restore audit entries, newest first.
func (s *SQLiteStore) ListRestoreLog(ctx context.Context) ([]RestoreLogEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, restored_at, snapshot_version, snapshot_timestamp, counts FROM restore_log
		ORDER BY restored_at DESC, id DESC
	`)
	if err != nil {
		return nil, fmt.Errorf("query restore log: %w", err)
	}
	defer rows.Close()

	entries := make([]RestoreLogEntry, 0)
	for rows.Next() {
		var e RestoreLogEntry
		var restoredAt, snapshotTS, counts string
		if err := rows.Scan(&e.ID, &restoredAt, &e.SnapshotVersion, &snapshotTS, &counts); err != nil {
			return nil, fmt.Errorf("scan restore log: %w", err)
		}
		e.RestoredAt, _ = parseTime(restoredAt)
		e.SnapshotTimestamp, _ = parseTime(snapshotTS)
		if err := json.Unmarshal([]byte(counts), &e.Counts); err != nil {
			e.Counts = nil
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
