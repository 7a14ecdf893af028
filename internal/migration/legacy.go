package migration

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/agildata/fieldbase/internal/types"
)

// Legacy collection names as keyed in the flat store. The predecessor
// app persisted everything under Portuguese keys; they are preserved
// here verbatim so existing installs migrate cleanly.
const (
	colTasks     = "tarefas"
	colClients   = "clientes"
	colProducts  = "produtos"
	colMovements = "movimentacoes"
	colInvoices  = "faturas"
)

// ErrCollectionMissing indicates the legacy store never held the
// collection. Not an error condition for migration: there is simply
// nothing to move.
var ErrCollectionMissing = errors.New("legacy collection not present")

// LegacyStore is the read surface of the predecessor flat key-value
// store. Each collection is one opaque serialized blob.
type LegacyStore interface {
	Read(ctx context.Context, collection string) ([]byte, error)
}

// FileLegacyStore reads legacy collections from JSON files in a
// directory, one file per collection.
type FileLegacyStore struct {
	dir string
}

func NewFileLegacyStore(dir string) *FileLegacyStore {
	return &FileLegacyStore{dir: dir}
}

func (s *FileLegacyStore) Read(_ context.Context, collection string) ([]byte, error) {
	raw, err := os.ReadFile(filepath.Join(s.dir, collection+".json"))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("collection %q: %w", collection, ErrCollectionMissing)
		}
		return nil, fmt.Errorf("read legacy collection %q: %w", collection, err)
	}
	return raw, nil
}

// --- Legacy record shapes ---
//
// These mirror the flat store's serialized form, Portuguese keys and
// all. Converters normalize missing required fields to defaults:
// missing dates become the migration time, missing numbers zero.

type legacyTask struct {
	ID             string `json:"id"`
	Titulo         string `json:"titulo" validate:"required"`
	Descricao      string `json:"descricao"`
	Prioridade     string `json:"prioridade"`
	DataVencimento string `json:"dataVencimento"`
	Hora           string `json:"hora"`
	Responsavel    string `json:"responsavel"`
	Concluida      bool   `json:"concluida"`
	ClienteID      string `json:"clienteId"`
	CriadoEm       string `json:"criadoEm"`
}

func (l *legacyTask) convert(now time.Time) *types.Task {
	return &types.Task{
		ID:          orNewID(l.ID),
		Title:       l.Titulo,
		Description: l.Descricao,
		Priority:    convertPriority(l.Prioridade),
		DueDate:     parseLegacyDate(l.DataVencimento),
		DueTime:     l.Hora,
		Responsible: l.Responsavel,
		Completed:   l.Concluida,
		ClientID:    l.ClienteID,
		CreatedAt:   dateOr(l.CriadoEm, now),
		UpdatedAt:   now,
		SyncStatus:  types.SyncPending,
	}
}

type legacyClient struct {
	ID          string   `json:"id"`
	Nome        string   `json:"nome" validate:"required"`
	Contato     string   `json:"contato"`
	Endereco    string   `json:"endereco"`
	Email       string   `json:"email" validate:"omitempty,email"`
	Tipo        string   `json:"tipo"`
	Status      string   `json:"status"`
	Observacoes string   `json:"observacoes"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
	CriadoEm    string   `json:"criadoEm"`
}

func (l *legacyClient) convert(now time.Time) *types.Client {
	return &types.Client{
		ID:         orNewID(l.ID),
		Name:       l.Nome,
		Contact:    l.Contato,
		Address:    l.Endereco,
		Email:      l.Email,
		Kind:       l.Tipo,
		Status:     l.Status,
		Notes:      l.Observacoes,
		Latitude:   l.Latitude,
		Longitude:  l.Longitude,
		CreatedAt:  dateOr(l.CriadoEm, now),
		UpdatedAt:  now,
		SyncStatus: types.SyncPending,
	}
}

type legacyProduct struct {
	ID               string  `json:"id"`
	Nome             string  `json:"nome" validate:"required"`
	Categoria        string  `json:"categoria"`
	Unidade          string  `json:"unidade"`
	Quantidade       float64 `json:"quantidade"`
	QuantidadeMinima float64 `json:"quantidadeMinima"`
	Preco            float64 `json:"preco" validate:"gte=0"`
	Fornecedor       string  `json:"fornecedor"`
	DataCompra       string  `json:"dataCompra"`
	DataValidade     string  `json:"dataValidade"`
	Localizacao      string  `json:"localizacao"`
	CriadoEm         string  `json:"criadoEm"`
}

func (l *legacyProduct) convert(now time.Time) *types.Product {
	return &types.Product{
		ID:          orNewID(l.ID),
		Name:        l.Nome,
		Category:    l.Categoria,
		Unit:        l.Unidade,
		Quantity:    l.Quantidade,
		MinQuantity: l.QuantidadeMinima,
		Price:       l.Preco,
		Supplier:    l.Fornecedor,
		PurchasedAt: parseLegacyDate(l.DataCompra),
		ExpiresAt:   parseLegacyDate(l.DataValidade),
		Location:    l.Localizacao,
		CreatedAt:   dateOr(l.CriadoEm, now),
		UpdatedAt:   now,
		SyncStatus:  types.SyncPending,
	}
}

type legacyMovement struct {
	ID          string  `json:"id"`
	ProdutoID   string  `json:"produtoId" validate:"required"`
	Tipo        string  `json:"tipo" validate:"oneof=entrada saida"`
	Quantidade  float64 `json:"quantidade" validate:"gt=0"`
	Data        string  `json:"data"`
	Responsavel string  `json:"responsavel"`
	Motivo      string  `json:"motivo"`
}

func (l *legacyMovement) convert(now time.Time) *types.StockMovement {
	direction := types.MovementIn
	if l.Tipo == "saida" {
		direction = types.MovementOut
	}
	return &types.StockMovement{
		ID:          orNewID(l.ID),
		ProductID:   l.ProdutoID,
		Direction:   direction,
		Quantity:    l.Quantidade,
		OccurredAt:  dateOr(l.Data, now),
		Responsible: l.Responsavel,
		Reason:      l.Motivo,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncStatus:  types.SyncPending,
	}
}

type legacyInvoiceItem struct {
	Descricao     string  `json:"descricao"`
	Quantidade    float64 `json:"quantidade"`
	PrecoUnitario float64 `json:"precoUnitario"`
	Total         float64 `json:"total"`
}

type legacyInvoice struct {
	ID             string              `json:"id"`
	ClienteID      string              `json:"clienteId"`
	Numero         string              `json:"numero" validate:"required"`
	Data           string              `json:"data"`
	DataVencimento string              `json:"dataVencimento"`
	Valor          float64             `json:"valor"`
	Status         string              `json:"status"`
	Descricao      string              `json:"descricao"`
	Itens          []legacyInvoiceItem `json:"itens"`
}

func (l *legacyInvoice) convert(now time.Time) *types.Invoice {
	items := make([]types.InvoiceItem, 0, len(l.Itens))
	for _, it := range l.Itens {
		items = append(items, types.InvoiceItem{
			Description: it.Descricao,
			Quantity:    it.Quantidade,
			UnitPrice:   it.PrecoUnitario,
			Total:       it.Total,
		})
	}
	return &types.Invoice{
		ID:          orNewID(l.ID),
		ClientID:    l.ClienteID,
		Number:      l.Numero,
		IssuedAt:    dateOr(l.Data, now),
		DueAt:       parseLegacyDate(l.DataVencimento),
		Amount:      l.Valor,
		Status:      l.Status,
		Description: l.Descricao,
		Items:       items,
		CreatedAt:   now,
		UpdatedAt:   now,
		SyncStatus:  types.SyncPending,
	}
}

// convertPriority maps legacy Portuguese priority labels; unknown
// values pass through untouched.
func convertPriority(p string) string {
	switch p {
	case "baixa":
		return types.PriorityLow
	case "media", "média":
		return types.PriorityMedium
	case "alta":
		return types.PriorityHigh
	default:
		return p
	}
}

func orNewID(id string) string {
	if id == "" {
		return ulid.Make().String()
	}
	return id
}

// legacyDateLayouts covers the formats the predecessor app wrote over
// its lifetime.
var legacyDateLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02",
	"02/01/2006",
}

func parseLegacyDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range legacyDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

// dateOr applies the missing-date-becomes-current-date default.
func dateOr(s string, fallback time.Time) time.Time {
	if t := parseLegacyDate(s); t != nil {
		return *t
	}
	return fallback
}
