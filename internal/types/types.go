package types

import (
	"time"
)

// SyncStatus tags a row's relationship to the remote service.
type SyncStatus string

const (
	// SyncPending marks a row with local changes not yet acknowledged remotely.
	SyncPending SyncStatus = "pending"
	// SyncSynced marks a row whose last change has been acknowledged.
	SyncSynced SyncStatus = "synced"
)

// Kind identifies one of the five entity tables.
type Kind string

const (
	KindTask     Kind = "tasks"
	KindClient   Kind = "clients"
	KindProduct  Kind = "products"
	KindMovement Kind = "stock_movements"
	KindInvoice  Kind = "invoices"
)

// Kinds returns every entity kind in a stable order. Consumers that
// dispatch per table iterate this instead of hardcoding names.
func Kinds() []Kind {
	return []Kind{KindTask, KindClient, KindProduct, KindMovement, KindInvoice}
}

// TaskPriority values as stored. Free-form values are accepted from
// legacy data; these are the ones the application writes.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task is a scheduled piece of field work, optionally tied to a client.
// ClientID is a weak lookup key, not an ownership edge.
type Task struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Priority    string     `json:"priority,omitempty"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	DueTime     string     `json:"due_time,omitempty"`
	Responsible string     `json:"responsible,omitempty"`
	Completed   bool       `json:"completed"`
	ClientID    string     `json:"client_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SyncStatus  SyncStatus `json:"sync_status"`
}

// Client is the root business entity referenced by tasks and invoices.
type Client struct {
	ID         string     `json:"id"`
	Name       string     `json:"name"`
	Contact    string     `json:"contact,omitempty"`
	Address    string     `json:"address,omitempty"`
	Email      string     `json:"email,omitempty"`
	Kind       string     `json:"kind,omitempty"`
	Status     string     `json:"status,omitempty"`
	Notes      string     `json:"notes,omitempty"`
	Latitude   *float64   `json:"latitude,omitempty"`
	Longitude  *float64   `json:"longitude,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	SyncStatus SyncStatus `json:"sync_status"`
}

// Product is a stocked item. Quantity is mutated only through stock
// movement application, never written directly by callers.
type Product struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Category    string     `json:"category,omitempty"`
	Unit        string     `json:"unit,omitempty"`
	Quantity    float64    `json:"quantity"`
	MinQuantity float64    `json:"min_quantity"`
	Price       float64    `json:"price"`
	Supplier    string     `json:"supplier,omitempty"`
	PurchasedAt *time.Time `json:"purchased_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	Location    string     `json:"location,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SyncStatus  SyncStatus `json:"sync_status"`
}

// MovementDirection is the direction of a stock movement.
type MovementDirection string

const (
	MovementIn  MovementDirection = "in"
	MovementOut MovementDirection = "out"
)

// StockMovement records one stock change for a product. Movements are
// append-only: they are never updated or deleted after creation.
type StockMovement struct {
	ID          string            `json:"id"`
	ProductID   string            `json:"product_id"`
	Direction   MovementDirection `json:"direction"`
	Quantity    float64           `json:"quantity"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Responsible string            `json:"responsible,omitempty"`
	Reason      string            `json:"reason,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	SyncStatus  SyncStatus        `json:"sync_status"`
}

// Delta returns the signed quantity change this movement applies.
func (m *StockMovement) Delta() float64 {
	if m.Direction == MovementOut {
		return -m.Quantity
	}
	return m.Quantity
}

// InvoiceItem is one line of an invoice. Items are stored embedded in
// the invoice row as a JSON blob, not as their own table.
type InvoiceItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	UnitPrice   float64 `json:"unit_price"`
	Total       float64 `json:"total"`
}

// Invoice bills a client.
type Invoice struct {
	ID          string        `json:"id"`
	ClientID    string        `json:"client_id,omitempty"`
	Number      string        `json:"number"`
	IssuedAt    time.Time     `json:"issued_at"`
	DueAt       *time.Time    `json:"due_at,omitempty"`
	Amount      float64       `json:"amount"`
	Status      string        `json:"status,omitempty"`
	Description string        `json:"description,omitempty"`
	Items       []InvoiceItem `json:"items,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
	SyncStatus  SyncStatus    `json:"sync_status"`
}

// Dataset is the full entity state, keyed by table name when serialized.
// It is the payload of snapshot files and of whole-store export/import.
type Dataset struct {
	Tasks          []Task          `json:"tasks"`
	Clients        []Client        `json:"clients"`
	Products       []Product       `json:"products"`
	StockMovements []StockMovement `json:"stock_movements"`
	Invoices       []Invoice       `json:"invoices"`
}

// Counts returns per-table record counts keyed by table name.
func (d *Dataset) Counts() map[string]int {
	return map[string]int{
		string(KindTask):     len(d.Tasks),
		string(KindClient):   len(d.Clients),
		string(KindProduct):  len(d.Products),
		string(KindMovement): len(d.StockMovements),
		string(KindInvoice):  len(d.Invoices),
	}
}

// Total returns the number of records across all tables.
func (d *Dataset) Total() int {
	return len(d.Tasks) + len(d.Clients) + len(d.Products) +
		len(d.StockMovements) + len(d.Invoices)
}
