package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agildata/fieldbase/internal/sync"
	"github.com/agildata/fieldbase/internal/types"
)

// tableSpec binds an entity type to its table layout. All CRUD goes
// through these specs so routing is by typed kind, not by table-name
// strings scattered across call sites.
type tableSpec[T any] struct {
	kind    types.Kind
	columns []string
	args    func(e *T) []any
	scan    func(sc rowScanner) (*T, error)
	getID   func(e *T) string
	setID   func(e *T, id string)
	touch   func(e *T, now time.Time)
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}

// upsertTx inserts a row, silently replacing any existing row with the
// same id. Replaying a previously-applied mutation is therefore safe:
// at-least-once delivery becomes effectively-once at the storage layer.
func upsertTx[T any](ctx context.Context, ex execer, spec *tableSpec[T], e *T) error {
	query := fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		spec.kind, strings.Join(spec.columns, ", "), placeholders(len(spec.columns)))
	if _, err := ex.ExecContext(ctx, query, spec.args(e)...); err != nil {
		return fmt.Errorf("upsert %s: %w", spec.kind, err)
	}
	return nil
}

func getByID[T any](ctx context.Context, q queryer, spec *tableSpec[T], id string) (*T, error) {
	row := q.QueryRowContext(ctx, fmt.Sprintf("SELECT %s FROM %s WHERE id = ?",
		strings.Join(spec.columns, ", "), spec.kind), id)
	e, err := spec.scan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s: %w", spec.kind, err)
	}
	return e, nil
}

func listAll[T any](ctx context.Context, q queryer, spec *tableSpec[T]) ([]T, error) {
	rows, err := q.QueryContext(ctx, fmt.Sprintf("SELECT %s FROM %s ORDER BY created_at ASC, id ASC",
		strings.Join(spec.columns, ", "), spec.kind))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", spec.kind, err)
	}
	defer rows.Close()

	out := make([]T, 0)
	for rows.Next() {
		e, err := spec.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan %s: %w", spec.kind, err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// createEntity assigns an id and timestamps, writes the row, and
// enqueues an insert outbox entry in the same transaction. If the write
// fails nothing is enqueued.
func createEntity[T any](ctx context.Context, s *SQLiteStore, spec *tableSpec[T], e *T) (*T, error) {
	now := time.Now().UTC()
	if spec.getID(e) == "" {
		spec.setID(e, ulid.Make().String())
	}
	spec.touch(e, now)

	payload, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", spec.kind, err)
	}

	err = s.withTx(ctx, func(tx *sql.Tx) error {
		if err := upsertTx(ctx, tx, spec, e); err != nil {
			return err
		}
		return enqueueTx(ctx, tx, spec.kind, spec.getID(e), sync.OpInsert, payload)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// updateEntity replaces an existing row and enqueues an update outbox
// entry in the same transaction. Returns ErrNotFound if no row with the
// entity's id exists.
func updateEntity[T any](ctx context.Context, s *SQLiteStore, spec *tableSpec[T], e *T) (*T, error) {
	id := spec.getID(e)
	if id == "" {
		return nil, ErrNotFound
	}
	now := time.Now().UTC()
	spec.touch(e, now)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := getByID(ctx, tx, spec, id); err != nil {
			return err
		}
		if err := upsertTx(ctx, tx, spec, e); err != nil {
			return err
		}
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", spec.kind, err)
		}
		return enqueueTx(ctx, tx, spec.kind, id, sync.OpUpdate, payload)
	})
	if err != nil {
		return nil, err
	}
	return e, nil
}

// deleteEntity removes a row and enqueues a delete outbox entry in the
// same transaction. Returns ErrNotFound if no row was deleted, in which
// case nothing is enqueued.
func deleteEntity[T any](ctx context.Context, s *SQLiteStore, spec *tableSpec[T], id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", spec.kind), id)
		if err != nil {
			return fmt.Errorf("delete %s: %w", spec.kind, err)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if affected == 0 {
			return ErrNotFound
		}
		return enqueueTx(ctx, tx, spec.kind, id, sync.OpDelete, nil)
	})
}

// --- Tasks ---

var taskSpec = &tableSpec[types.Task]{
	kind: types.KindTask,
	columns: []string{"id", "title", "description", "priority", "due_date", "due_time",
		"responsible", "completed", "client_id", "created_at", "updated_at", "sync_status"},
	args: func(t *types.Task) []any {
		return []any{t.ID, t.Title, t.Description, t.Priority, nullableTime(t.DueDate), t.DueTime,
			t.Responsible, t.Completed, t.ClientID, formatTime(t.CreatedAt), formatTime(t.UpdatedAt), string(t.SyncStatus)}
	},
	scan: func(sc rowScanner) (*types.Task, error) {
		var t types.Task
		var dueDate sql.NullString
		var createdAt, updatedAt, status string
		if err := sc.Scan(&t.ID, &t.Title, &t.Description, &t.Priority, &dueDate, &t.DueTime,
			&t.Responsible, &t.Completed, &t.ClientID, &createdAt, &updatedAt, &status); err != nil {
			return nil, err
		}
		t.DueDate = scanNullableTime(dueDate)
		t.CreatedAt, _ = parseTime(createdAt)
		t.UpdatedAt, _ = parseTime(updatedAt)
		t.SyncStatus = types.SyncStatus(status)
		return &t, nil
	},
	getID: func(t *types.Task) string     { return t.ID },
	setID: func(t *types.Task, id string) { t.ID = id },
	touch: func(t *types.Task, now time.Time) {
		if t.CreatedAt.IsZero() {
			t.CreatedAt = now
		}
		t.UpdatedAt = now
		t.SyncStatus = types.SyncPending
	},
}

func (s *SQLiteStore) CreateTask(ctx context.Context, t *types.Task) (*types.Task, error) {
	return createEntity(ctx, s, taskSpec, t)
}

func (s *SQLiteStore) UpdateTask(ctx context.Context, t *types.Task) (*types.Task, error) {
	return updateEntity(ctx, s, taskSpec, t)
}

func (s *SQLiteStore) DeleteTask(ctx context.Context, id string) error {
	return deleteEntity(ctx, s, taskSpec, id)
}

func (s *SQLiteStore) GetTask(ctx context.Context, id string) (*types.Task, error) {
	return getByID(ctx, s.db, taskSpec, id)
}

func (s *SQLiteStore) ListTasks(ctx context.Context) ([]types.Task, error) {
	return listAll(ctx, s.db, taskSpec)
}

// UpsertTask writes a task without touching the outbox. Used by restore
// and migration, where the data either came from the remote already or
// predates sync entirely.
func (s *SQLiteStore) UpsertTask(ctx context.Context, t *types.Task) error {
	return upsertTx(ctx, s.db, taskSpec, t)
}

// --- Clients ---

var clientSpec = &tableSpec[types.Client]{
	kind: types.KindClient,
	columns: []string{"id", "name", "contact", "address", "email", "kind", "status", "notes",
		"latitude", "longitude", "created_at", "updated_at", "sync_status"},
	args: func(c *types.Client) []any {
		return []any{c.ID, c.Name, c.Contact, c.Address, c.Email, c.Kind, c.Status, c.Notes,
			c.Latitude, c.Longitude, formatTime(c.CreatedAt), formatTime(c.UpdatedAt), string(c.SyncStatus)}
	},
	scan: func(sc rowScanner) (*types.Client, error) {
		var c types.Client
		var lat, lng sql.NullFloat64
		var createdAt, updatedAt, status string
		if err := sc.Scan(&c.ID, &c.Name, &c.Contact, &c.Address, &c.Email, &c.Kind, &c.Status, &c.Notes,
			&lat, &lng, &createdAt, &updatedAt, &status); err != nil {
			return nil, err
		}
		if lat.Valid {
			c.Latitude = &lat.Float64
		}
		if lng.Valid {
			c.Longitude = &lng.Float64
		}
		c.CreatedAt, _ = parseTime(createdAt)
		c.UpdatedAt, _ = parseTime(updatedAt)
		c.SyncStatus = types.SyncStatus(status)
		return &c, nil
	},
	getID: func(c *types.Client) string     { return c.ID },
	setID: func(c *types.Client, id string) { c.ID = id },
	touch: func(c *types.Client, now time.Time) {
		if c.CreatedAt.IsZero() {
			c.CreatedAt = now
		}
		c.UpdatedAt = now
		c.SyncStatus = types.SyncPending
	},
}

func (s *SQLiteStore) CreateClient(ctx context.Context, c *types.Client) (*types.Client, error) {
	return createEntity(ctx, s, clientSpec, c)
}

func (s *SQLiteStore) UpdateClient(ctx context.Context, c *types.Client) (*types.Client, error) {
	return updateEntity(ctx, s, clientSpec, c)
}

func (s *SQLiteStore) DeleteClient(ctx context.Context, id string) error {
	return deleteEntity(ctx, s, clientSpec, id)
}

func (s *SQLiteStore) GetClient(ctx context.Context, id string) (*types.Client, error) {
	return getByID(ctx, s.db, clientSpec, id)
}

func (s *SQLiteStore) ListClients(ctx context.Context) ([]types.Client, error) {
	return listAll(ctx, s.db, clientSpec)
}

func (s *SQLiteStore) UpsertClient(ctx context.Context, c *types.Client) error {
	return upsertTx(ctx, s.db, clientSpec, c)
}

// --- Products ---

var productSpec = &tableSpec[types.Product]{
	kind: types.KindProduct,
	columns: []string{"id", "name", "category", "unit", "quantity", "min_quantity", "price",
		"supplier", "purchased_at", "expires_at", "location", "created_at", "updated_at", "sync_status"},
	args: func(p *types.Product) []any {
		return []any{p.ID, p.Name, p.Category, p.Unit, p.Quantity, p.MinQuantity, p.Price,
			p.Supplier, nullableTime(p.PurchasedAt), nullableTime(p.ExpiresAt), p.Location,
			formatTime(p.CreatedAt), formatTime(p.UpdatedAt), string(p.SyncStatus)}
	},
	scan: func(sc rowScanner) (*types.Product, error) {
		var p types.Product
		var purchasedAt, expiresAt sql.NullString
		var createdAt, updatedAt, status string
		if err := sc.Scan(&p.ID, &p.Name, &p.Category, &p.Unit, &p.Quantity, &p.MinQuantity, &p.Price,
			&p.Supplier, &purchasedAt, &expiresAt, &p.Location, &createdAt, &updatedAt, &status); err != nil {
			return nil, err
		}
		p.PurchasedAt = scanNullableTime(purchasedAt)
		p.ExpiresAt = scanNullableTime(expiresAt)
		p.CreatedAt, _ = parseTime(createdAt)
		p.UpdatedAt, _ = parseTime(updatedAt)
		p.SyncStatus = types.SyncStatus(status)
		return &p, nil
	},
	getID: func(p *types.Product) string     { return p.ID },
	setID: func(p *types.Product, id string) { p.ID = id },
	touch: func(p *types.Product, now time.Time) {
		if p.CreatedAt.IsZero() {
			p.CreatedAt = now
		}
		p.UpdatedAt = now
		p.SyncStatus = types.SyncPending
	},
}

func (s *SQLiteStore) CreateProduct(ctx context.Context, p *types.Product) (*types.Product, error) {
	return createEntity(ctx, s, productSpec, p)
}

// UpdateProduct replaces a product's descriptive fields. Quantity is
// preserved from the stored row: it only moves via ApplyMovement.
func (s *SQLiteStore) UpdateProduct(ctx context.Context, p *types.Product) (*types.Product, error) {
	existing, err := s.GetProduct(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	p.Quantity = existing.Quantity
	return updateEntity(ctx, s, productSpec, p)
}

func (s *SQLiteStore) DeleteProduct(ctx context.Context, id string) error {
	return deleteEntity(ctx, s, productSpec, id)
}

func (s *SQLiteStore) GetProduct(ctx context.Context, id string) (*types.Product, error) {
	return getByID(ctx, s.db, productSpec, id)
}

func (s *SQLiteStore) ListProducts(ctx context.Context) ([]types.Product, error) {
	return listAll(ctx, s.db, productSpec)
}

func (s *SQLiteStore) UpsertProduct(ctx context.Context, p *types.Product) error {
	return upsertTx(ctx, s.db, productSpec, p)
}

// --- Stock movements ---

var movementSpec = &tableSpec[types.StockMovement]{
	kind: types.KindMovement,
	columns: []string{"id", "product_id", "direction", "quantity", "occurred_at",
		"responsible", "reason", "created_at", "updated_at", "sync_status"},
	args: func(m *types.StockMovement) []any {
		return []any{m.ID, m.ProductID, string(m.Direction), m.Quantity, formatTime(m.OccurredAt),
			m.Responsible, m.Reason, formatTime(m.CreatedAt), formatTime(m.UpdatedAt), string(m.SyncStatus)}
	},
	scan: func(sc rowScanner) (*types.StockMovement, error) {
		var m types.StockMovement
		var direction, occurredAt, createdAt, updatedAt, status string
		if err := sc.Scan(&m.ID, &m.ProductID, &direction, &m.Quantity, &occurredAt,
			&m.Responsible, &m.Reason, &createdAt, &updatedAt, &status); err != nil {
			return nil, err
		}
		m.Direction = types.MovementDirection(direction)
		m.OccurredAt, _ = parseTime(occurredAt)
		m.CreatedAt, _ = parseTime(createdAt)
		m.UpdatedAt, _ = parseTime(updatedAt)
		m.SyncStatus = types.SyncStatus(status)
		return &m, nil
	},
	getID: func(m *types.StockMovement) string     { return m.ID },
	setID: func(m *types.StockMovement, id string) { m.ID = id },
	touch: func(m *types.StockMovement, now time.Time) {
		if m.CreatedAt.IsZero() {
			m.CreatedAt = now
		}
		m.UpdatedAt = now
		m.SyncStatus = types.SyncPending
	},
}

// ApplyMovement appends a stock movement and reconciles the product's
// quantity in the same transaction. Movements are append-only; there is
// no update or delete path for them. Both the movement insert and the
// resulting product change are enqueued for sync.
func (s *SQLiteStore) ApplyMovement(ctx context.Context, m *types.StockMovement) (*types.StockMovement, error) {
	now := time.Now().UTC()
	if m.ID == "" {
		m.ID = ulid.Make().String()
	}
	if m.OccurredAt.IsZero() {
		m.OccurredAt = now
	}
	movementSpec.touch(m, now)

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		product, err := getByID(ctx, tx, productSpec, m.ProductID)
		if err != nil {
			return fmt.Errorf("load product %s: %w", m.ProductID, err)
		}

		if err := upsertTx(ctx, tx, movementSpec, m); err != nil {
			return err
		}

		product.Quantity += m.Delta()
		productSpec.touch(product, now)
		if err := upsertTx(ctx, tx, productSpec, product); err != nil {
			return err
		}

		movementPayload, err := json.Marshal(m)
		if err != nil {
			return fmt.Errorf("marshal movement payload: %w", err)
		}
		if err := enqueueTx(ctx, tx, types.KindMovement, m.ID, sync.OpInsert, movementPayload); err != nil {
			return err
		}

		productPayload, err := json.Marshal(product)
		if err != nil {
			return fmt.Errorf("marshal product payload: %w", err)
		}
		return enqueueTx(ctx, tx, types.KindProduct, product.ID, sync.OpUpdate, productPayload)
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *SQLiteStore) GetStockMovement(ctx context.Context, id string) (*types.StockMovement, error) {
	return getByID(ctx, s.db, movementSpec, id)
}

func (s *SQLiteStore) ListStockMovements(ctx context.Context) ([]types.StockMovement, error) {
	return listAll(ctx, s.db, movementSpec)
}

// ListMovementsForProduct returns a product's movements oldest first.
func (s *SQLiteStore) ListMovementsForProduct(ctx context.Context, productID string) ([]types.StockMovement, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(
		"SELECT %s FROM %s WHERE product_id = ? ORDER BY occurred_at ASC, id ASC",
		strings.Join(movementSpec.columns, ", "), movementSpec.kind), productID)
	if err != nil {
		return nil, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	out := make([]types.StockMovement, 0)
	for rows.Next() {
		m, err := movementSpec.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scan movement: %w", err)
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) UpsertStockMovement(ctx context.Context, m *types.StockMovement) error {
	return upsertTx(ctx, s.db, movementSpec, m)
}

// --- Invoices ---

var invoiceSpec = &tableSpec[types.Invoice]{
	kind: types.KindInvoice,
	columns: []string{"id", "client_id", "number", "issued_at", "due_at", "amount",
		"status", "description", "items", "created_at", "updated_at", "sync_status"},
	args: func(v *types.Invoice) []any {
		items, err := json.Marshal(v.Items)
		if err != nil || v.Items == nil {
			items = []byte("[]")
		}
		return []any{v.ID, v.ClientID, v.Number, formatTime(v.IssuedAt), nullableTime(v.DueAt), v.Amount,
			v.Status, v.Description, string(items), formatTime(v.CreatedAt), formatTime(v.UpdatedAt), string(v.SyncStatus)}
	},
	scan: func(sc rowScanner) (*types.Invoice, error) {
		var v types.Invoice
		var dueAt sql.NullString
		var issuedAt, items, createdAt, updatedAt, status string
		if err := sc.Scan(&v.ID, &v.ClientID, &v.Number, &issuedAt, &dueAt, &v.Amount,
			&v.Status, &v.Description, &items, &createdAt, &updatedAt, &status); err != nil {
			return nil, err
		}
		v.IssuedAt, _ = parseTime(issuedAt)
		v.DueAt = scanNullableTime(dueAt)
		if items != "" {
			if err := json.Unmarshal([]byte(items), &v.Items); err != nil {
				return nil, fmt.Errorf("parse invoice items: %w", err)
			}
		}
		v.CreatedAt, _ = parseTime(createdAt)
		v.UpdatedAt, _ = parseTime(updatedAt)
		v.SyncStatus = types.SyncStatus(status)
		return &v, nil
	},
	getID: func(v *types.Invoice) string     { return v.ID },
	setID: func(v *types.Invoice, id string) { v.ID = id },
	touch: func(v *types.Invoice, now time.Time) {
		if v.CreatedAt.IsZero() {
			v.CreatedAt = now
		}
		if v.IssuedAt.IsZero() {
			v.IssuedAt = now
		}
		v.UpdatedAt = now
		v.SyncStatus = types.SyncPending
	},
}

func (s *SQLiteStore) CreateInvoice(ctx context.Context, v *types.Invoice) (*types.Invoice, error) {
	return createEntity(ctx, s, invoiceSpec, v)
}

func (s *SQLiteStore) UpdateInvoice(ctx context.Context, v *types.Invoice) (*types.Invoice, error) {
	return updateEntity(ctx, s, invoiceSpec, v)
}

func (s *SQLiteStore) DeleteInvoice(ctx context.Context, id string) error {
	return deleteEntity(ctx, s, invoiceSpec, id)
}

func (s *SQLiteStore) GetInvoice(ctx context.Context, id string) (*types.Invoice, error) {
	return getByID(ctx, s.db, invoiceSpec, id)
}

func (s *SQLiteStore) ListInvoices(ctx context.Context) ([]types.Invoice, error) {
	return listAll(ctx, s.db, invoiceSpec)
}

func (s *SQLiteStore) UpsertInvoice(ctx context.Context, v *types.Invoice) error {
	return upsertTx(ctx, s.db, invoiceSpec, v)
}
