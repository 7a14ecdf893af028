package store

import (
	"context"
	"testing"

	"github.com/agildata/fieldbase/internal/types"
)

func TestDataset_ExportImportRoundTrip(t *testing.T) {
	source := newTestStore(t)
	target := newTestStore(t)
	ctx := context.Background()

	if _, err := source.CreateClient(ctx, &types.Client{Name: "Acme Farms"}); err != nil {
		t.Fatal(err)
	}
	p, err := source.CreateProduct(ctx, &types.Product{Name: "Valve", Quantity: 5})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := source.ApplyMovement(ctx, &types.StockMovement{
		ProductID: p.ID, Direction: types.MovementIn, Quantity: 2,
	}); err != nil {
		t.Fatal(err)
	}

	ds, err := source.ExportAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if ds.Total() != 3 {
		t.Fatalf("expected 3 exported records, got %d", ds.Total())
	}

	// Pre-existing data in the target is replaced
	if _, err := target.CreateTask(ctx, &types.Task{Title: "Stale"}); err != nil {
		t.Fatal(err)
	}
	drainQueue(t, target)

	counts, err := target.ImportAll(ctx, ds, true)
	if err != nil {
		t.Fatal(err)
	}
	if counts[string(types.KindProduct)] != 1 || counts[string(types.KindTask)] != 0 {
		t.Errorf("unexpected import counts: %+v", counts)
	}

	gotProduct, err := target.GetProduct(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if gotProduct.Quantity != 7 {
		t.Errorf("expected reconciled quantity 7, got %v", gotProduct.Quantity)
	}

	tasks, err := target.ListTasks(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(tasks) != 0 {
		t.Errorf("expected stale task cleared, got %+v", tasks)
	}

	// Imports bypass the outbox entirely
	size, err := target.QueueSize(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if size != 0 {
		t.Errorf("import must not enqueue, got %d entries", size)
	}
}

func TestDataset_ImportMerge(t *testing.T) {
	db := newTestStore(t)
	ctx := context.Background()

	existing, err := db.CreateClient(ctx, &types.Client{Name: "Keep Me"})
	if err != nil {
		t.Fatal(err)
	}

	ds := &types.Dataset{
		Clients: []types.Client{{ID: "imported", Name: "New Co"}},
	}
	if _, err := db.ImportAll(ctx, ds, false); err != nil {
		t.Fatal(err)
	}

	clients, err := db.ListClients(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(clients) != 2 {
		t.Fatalf("expected merge to keep both clients, got %d", len(clients))
	}
	if _, err := db.GetClient(ctx, existing.ID); err != nil {
		t.Errorf("existing client lost in merge: %v", err)
	}
}
