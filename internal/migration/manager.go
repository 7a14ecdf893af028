// Package migration moves data from the legacy flat key-value store
// into the relational store. It runs at most once per database: a
// completion flag in settings makes re-runs no-ops.
package migration

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/agildata/fieldbase/internal/store"
)

// errDiscard wraps parse and validation failures. A discarded
// collection is skipped but does not abort the migration; every other
// error class does.
var errDiscard = errors.New("collection discarded")

// Report summarizes one migration run.
type Report struct {
	// Imported maps collection name to records written.
	Imported map[string]int `json:"imported"`
	// Discarded maps collection name to the reason it was skipped.
	Discarded map[string]string `json:"discarded,omitempty"`
	// Completed is true when the run set the completion flag.
	Completed bool `json:"completed"`
	// AlreadyDone is true when a previous run already migrated.
	AlreadyDone bool `json:"already_done"`
}

// Manager performs the one-shot legacy migration.
type Manager struct {
	store    *store.SQLiteStore
	legacy   LegacyStore
	validate *validator.Validate
	logger   *slog.Logger
}

func NewManager(st *store.SQLiteStore, legacy LegacyStore) *Manager {
	return &Manager{
		store:    st,
		legacy:   legacy,
		validate: validator.New(),
		logger:   slog.Default().With(slog.String("component", "migration")),
	}
}

// Run migrates every legacy collection into the store. Collections
// that fail to parse or validate are discarded with a logged reason;
// storage failures abort the run and leave the completion flag unset
// so the next start retries. Migrated records are imported directly,
// without entering the sync queue.
func (m *Manager) Run(ctx context.Context) (*Report, error) {
	done, err := m.store.GetSetting(ctx, store.SettingMigrationDone)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("read migration flag: %w", err)
	}
	if done == "true" {
		m.logger.Debug("migration already completed, skipping")
		return &Report{AlreadyDone: true}, nil
	}

	report := &Report{
		Imported:  make(map[string]int),
		Discarded: make(map[string]string),
	}
	now := time.Now().UTC()

	steps := []struct {
		collection string
		run        func(context.Context, []byte, time.Time) (int, error)
	}{
		{colTasks, m.importTasks},
		{colClients, m.importClients},
		{colProducts, m.importProducts},
		{colMovements, m.importMovements},
		{colInvoices, m.importInvoices},
	}

	for _, step := range steps {
		raw, err := m.legacy.Read(ctx, step.collection)
		if errors.Is(err, ErrCollectionMissing) {
			continue
		}
		if err != nil {
			return nil, err
		}

		count, err := step.run(ctx, raw, now)
		if errors.Is(err, errDiscard) {
			report.Discarded[step.collection] = err.Error()
			m.logger.Warn("legacy collection discarded",
				slog.String("collection", step.collection),
				slog.String("reason", err.Error()))
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("migrate %q: %w", step.collection, err)
		}
		report.Imported[step.collection] = count
		m.logger.Info("legacy collection migrated",
			slog.String("collection", step.collection),
			slog.Int("records", count))
	}

	if err := m.store.SetSetting(ctx, store.SettingMigrationDone, "true"); err != nil {
		return nil, fmt.Errorf("set migration flag: %w", err)
	}
	report.Completed = true
	if len(report.Discarded) == 0 {
		report.Discarded = nil
	}
	return report, nil
}

func (m *Manager) importTasks(ctx context.Context, raw []byte, now time.Time) (int, error) {
	var records []legacyTask
	if err := decodeCollection(raw, &records); err != nil {
		return 0, err
	}
	for i := range records {
		if err := m.validate.Struct(&records[i]); err != nil {
			return 0, fmt.Errorf("%w: record %d invalid: %v", errDiscard, i, err)
		}
	}
	for i := range records {
		if err := m.store.UpsertTask(ctx, records[i].convert(now)); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func (m *Manager) importClients(ctx context.Context, raw []byte, now time.Time) (int, error) {
	var records []legacyClient
	if err := decodeCollection(raw, &records); err != nil {
		return 0, err
	}
	for i := range records {
		if err := m.validate.Struct(&records[i]); err != nil {
			return 0, fmt.Errorf("%w: record %d invalid: %v", errDiscard, i, err)
		}
	}
	for i := range records {
		if err := m.store.UpsertClient(ctx, records[i].convert(now)); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func (m *Manager) importProducts(ctx context.Context, raw []byte, now time.Time) (int, error) {
	var records []legacyProduct
	if err := decodeCollection(raw, &records); err != nil {
		return 0, err
	}
	for i := range records {
		if err := m.validate.Struct(&records[i]); err != nil {
			return 0, fmt.Errorf("%w: record %d invalid: %v", errDiscard, i, err)
		}
	}
	for i := range records {
		if err := m.store.UpsertProduct(ctx, records[i].convert(now)); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func (m *Manager) importMovements(ctx context.Context, raw []byte, now time.Time) (int, error) {
	var records []legacyMovement
	if err := decodeCollection(raw, &records); err != nil {
		return 0, err
	}
	for i := range records {
		if err := m.validate.Struct(&records[i]); err != nil {
			return 0, fmt.Errorf("%w: record %d invalid: %v", errDiscard, i, err)
		}
	}
	for i := range records {
		if err := m.store.UpsertStockMovement(ctx, records[i].convert(now)); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

func (m *Manager) importInvoices(ctx context.Context, raw []byte, now time.Time) (int, error) {
	var records []legacyInvoice
	if err := decodeCollection(raw, &records); err != nil {
		return 0, err
	}
	for i := range records {
		if err := m.validate.Struct(&records[i]); err != nil {
			return 0, fmt.Errorf("%w: record %d invalid: %v", errDiscard, i, err)
		}
	}
	for i := range records {
		if err := m.store.UpsertInvoice(ctx, records[i].convert(now)); err != nil {
			return 0, err
		}
	}
	return len(records), nil
}

// decodeCollection unmarshals a legacy collection blob. A blob that is
// not a JSON array of the expected shape discards the collection.
func decodeCollection(raw []byte, out any) error {
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%w: %v", errDiscard, err)
	}
	return nil
}
