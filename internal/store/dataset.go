package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/agildata/fieldbase/internal/types"
)

// ExportAll reads every entity table fully into one dataset. Used by
// the backup manager to assemble snapshots.
func (s *SQLiteStore) ExportAll(ctx context.Context) (*types.Dataset, error) {
	ds := &types.Dataset{}
	var err error

	if ds.Tasks, err = listAll(ctx, s.db, taskSpec); err != nil {
		return nil, err
	}
	if ds.Clients, err = listAll(ctx, s.db, clientSpec); err != nil {
		return nil, err
	}
	if ds.Products, err = listAll(ctx, s.db, productSpec); err != nil {
		return nil, err
	}
	if ds.StockMovements, err = listAll(ctx, s.db, movementSpec); err != nil {
		return nil, err
	}
	if ds.Invoices, err = listAll(ctx, s.db, invoiceSpec); err != nil {
		return nil, err
	}

	return ds, nil
}

// ImportAll writes a full dataset in one transaction. With clear set,
// every entity table is emptied first; otherwise rows merge in via the
// usual upsert semantics. Nothing is enqueued for sync: imported data
// either came from a snapshot of already-synced state or predates sync.
// On any failure the transaction rolls back and the store is untouched.
func (s *SQLiteStore) ImportAll(ctx context.Context, ds *types.Dataset, clear bool) (map[string]int, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if clear {
			for _, kind := range types.Kinds() {
				if _, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", kind)); err != nil {
					return fmt.Errorf("clear %s: %w", kind, err)
				}
			}
		}

		for i := range ds.Tasks {
			if err := upsertTx(ctx, tx, taskSpec, &ds.Tasks[i]); err != nil {
				return err
			}
		}
		for i := range ds.Clients {
			if err := upsertTx(ctx, tx, clientSpec, &ds.Clients[i]); err != nil {
				return err
			}
		}
		for i := range ds.Products {
			if err := upsertTx(ctx, tx, productSpec, &ds.Products[i]); err != nil {
				return err
			}
		}
		for i := range ds.StockMovements {
			if err := upsertTx(ctx, tx, movementSpec, &ds.StockMovements[i]); err != nil {
				return err
			}
		}
		for i := range ds.Invoices {
			if err := upsertTx(ctx, tx, invoiceSpec, &ds.Invoices[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ds.Counts(), nil
}
