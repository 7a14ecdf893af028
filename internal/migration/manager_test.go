package migration

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/agildata/fieldbase/internal/store"
	"github.com/agildata/fieldbase/internal/types"
)

func newTestStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	db, err := store.NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func writeLegacyDir(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name+".json"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}

func TestManager_RunImportsAllCollections(t *testing.T) {
	db := newTestStore(t)
	dir := writeLegacyDir(t, map[string]string{
		"tarefas": `[
			{"id":"t1","titulo":"Visita técnica","prioridade":"alta","dataVencimento":"2025-11-20","concluida":false},
			{"id":"t2","titulo":"Orçamento","prioridade":"baixa"}
		]`,
		"clientes": `[
			{"id":"c1","nome":"Fazenda Boa Vista","email":"contato@boavista.br","tipo":"rural"}
		]`,
		"produtos": `[
			{"id":"p1","nome":"Bomba d'água","quantidade":3,"preco":1200.5}
		]`,
		"movimentacoes": `[
			{"id":"m1","produtoId":"p1","tipo":"saida","quantidade":1,"data":"2025-10-02"}
		]`,
		"faturas": `[
			{"id":"f1","clienteId":"c1","numero":"2025-001","valor":350,
			 "itens":[{"descricao":"Mão de obra","quantidade":1,"precoUnitario":350,"total":350}]}
		]`,
	})

	mgr := NewManager(db, NewFileLegacyStore(dir))
	report, err := mgr.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if !report.Completed || report.AlreadyDone {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Imported[colTasks] != 2 || report.Imported[colClients] != 1 ||
		report.Imported[colProducts] != 1 || report.Imported[colMovements] != 1 ||
		report.Imported[colInvoices] != 1 {
		t.Errorf("unexpected import counts: %+v", report.Imported)
	}

	ctx := context.Background()
	task, err := db.GetTask(ctx, "t1")
	if err != nil {
		t.Fatal(err)
	}
	if task.Title != "Visita técnica" || task.Priority != types.PriorityHigh {
		t.Errorf("unexpected converted task: %+v", task)
	}
	if task.DueDate == nil || task.DueDate.Format("2006-01-02") != "2025-11-20" {
		t.Errorf("unexpected due date: %v", task.DueDate)
	}

	movement, err := db.GetStockMovement(ctx, "m1")
	if err != nil {
		t.Fatal(err)
	}
	if movement.Direction != types.MovementOut {
		t.Errorf("expected saida mapped to out, got %q", movement.Direction)
	}

	invoice, err := db.GetInvoice(ctx, "f1")
	if err != nil {
		t.Fatal(err)
	}
	if len(invoice.Items) != 1 || invoice.Items[0].Total != 350 {
		t.Errorf("unexpected invoice items: %+v", invoice.Items)
	}
	if invoice.IssuedAt.IsZero() {
		t.Error("missing legacy issue date must default to migration time")
	}

	// Imports bypass the sync queue
	size, err := db.QueueSize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if size != 0 {
		t.Errorf("migration must not enqueue, got %d entries", size)
	}
}

func TestManager_DiscardedCollectionDoesNotAbort(t *testing.T) {
	db := newTestStore(t)
	dir := writeLegacyDir(t, map[string]string{
		"tarefas":  `{"this is": "not a collection"}`,
		"clientes": `[{"id":"c1","nome":"Sítio São José"}]`,
		// Missing required produtoId fails validation
		"movimentacoes": `[{"id":"m1","tipo":"entrada","quantidade":2}]`,
	})

	mgr := NewManager(db, NewFileLegacyStore(dir))
	report, err := mgr.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}

	if !report.Completed {
		t.Error("discards must not block completion")
	}
	if _, ok := report.Discarded[colTasks]; !ok {
		t.Errorf("expected tarefas discarded, got %+v", report.Discarded)
	}
	if _, ok := report.Discarded[colMovements]; !ok {
		t.Errorf("expected movimentacoes discarded, got %+v", report.Discarded)
	}
	if report.Imported[colClients] != 1 {
		t.Errorf("healthy collection must still import, got %+v", report.Imported)
	}

	ctx := context.Background()
	if _, err := db.GetClient(ctx, "c1"); err != nil {
		t.Errorf("expected migrated client: %v", err)
	}
	tasks, err := db.ListTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("discarded collection must import nothing, got %d", len(tasks))
	}
}

func TestManager_RunIsOneShot(t *testing.T) {
	db := newTestStore(t)
	dir := writeLegacyDir(t, map[string]string{
		"clientes": `[{"id":"c1","nome":"Primeira"}]`,
	})

	mgr := NewManager(db, NewFileLegacyStore(dir))
	if _, err := mgr.Run(context.Background()); err != nil {
		t.Fatal(err)
	}

	// Legacy data changes after the first run are never picked up
	if err := os.WriteFile(filepath.Join(dir, "clientes.json"),
		[]byte(`[{"id":"c2","nome":"Segunda"}]`), 0644); err != nil {
		t.Fatal(err)
	}

	report, err := mgr.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.AlreadyDone {
		t.Errorf("expected already-done report, got %+v", report)
	}

	clients, err := db.ListClients(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(clients) != 1 || clients[0].ID != "c1" {
		t.Errorf("second run must be a no-op, got %+v", clients)
	}
}

func TestManager_MissingCollectionsAreSkipped(t *testing.T) {
	db := newTestStore(t)
	mgr := NewManager(db, NewFileLegacyStore(t.TempDir()))

	report, err := mgr.Run(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if !report.Completed || len(report.Imported) != 0 {
		t.Errorf("empty legacy store must complete cleanly, got %+v", report)
	}

	done, err := db.GetSetting(context.Background(), store.SettingMigrationDone)
	if err != nil || done != "true" {
		t.Errorf("expected completion flag set, got %q, %v", done, err)
	}
}
