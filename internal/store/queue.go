package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agildata/fieldbase/internal/sync"
	"github.com/agildata/fieldbase/internal/types"
)

const insertQueueSQL = `
	INSERT INTO sync_queue (id, tabela, record_id, operacao, dados, timestamp, tentativas, erro)
	VALUES (?, ?, ?, ?, ?, ?, 0, '')`

// enqueueTx appends an outbox entry. Always called inside the same
// transaction as the entity write, so a failed write leaves no ghost
// queue entry behind.
func enqueueTx(ctx context.Context, ex execer, kind types.Kind, recordID string, op sync.Operation, payload []byte) error {
	_, err := ex.ExecContext(ctx, insertQueueSQL,
		ulid.Make().String(), string(kind), recordID, string(op),
		nullablePayload(payload), formatTime(time.Now()))
	if err != nil {
		return fmt.Errorf("enqueue %s %s: %w", op, kind, err)
	}
	return nil
}

// nullablePayload converts a payload to a sql-friendly value. Delete
// entries carry no payload.
func nullablePayload(p []byte) any {
	if len(p) == 0 {
		return nil
	}
	return string(p)
}

// ListQueue returns all pending outbox entries in enqueue order.
// A sync run processes them strictly in this order, oldest first,
// regardless of table.
func (s *SQLiteStore) ListQueue(ctx context.Context) ([]sync.QueueEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, tabela, record_id, operacao, dados, timestamp, tentativas, erro
		FROM sync_queue
		ORDER BY timestamp ASC, id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sync queue: %w", err)
	}
	defer rows.Close()

	entries := make([]sync.QueueEntry, 0)
	for rows.Next() {
		var e sync.QueueEntry
		var payload sql.NullString
		var operation, timestamp string

		if err := rows.Scan(&e.ID, &e.Table, &e.RecordID, &operation,
			&payload, &timestamp, &e.Attempts, &e.LastError); err != nil {
			return nil, fmt.Errorf("scan queue entry: %w", err)
		}

		e.Operation = sync.Operation(operation)
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		e.Timestamp, _ = parseTime(timestamp)

		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// QueueSize returns the number of pending outbox entries.
func (s *SQLiteStore) QueueSize(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sync_queue`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sync queue: %w", err)
	}
	return n, nil
}

// DeleteQueueEntry removes an acknowledged (or dropped) outbox entry.
// Removing an entry that is already gone is not an error.
func (s *SQLiteStore) DeleteQueueEntry(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM sync_queue WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete queue entry: %w", err)
	}
	return nil
}

// RecordQueueFailure increments an entry's attempt counter and records
// the error text. Returns the updated attempt count, or zero when the
// entry no longer exists.
func (s *SQLiteStore) RecordQueueFailure(ctx context.Context, id, errText string) (int, error) {
	if _, err := s.db.ExecContext(ctx, `
		UPDATE sync_queue SET tentativas = tentativas + 1, erro = ? WHERE id = ?
	`, errText, id); err != nil {
		return 0, fmt.Errorf("record queue failure: %w", err)
	}

	var attempts int
	err := s.db.QueryRowContext(ctx, `SELECT tentativas FROM sync_queue WHERE id = ?`, id).Scan(&attempts)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read queue attempts: %w", err)
	}
	return attempts, nil
}
