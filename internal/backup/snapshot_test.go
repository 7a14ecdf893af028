package backup

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/agildata/fieldbase/internal/types"
)

func validSnapshotJSON(t *testing.T) []byte {
	t.Helper()
	snap := Snapshot{
		Version:   SnapshotVersion,
		Timestamp: time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC),
		Data: &types.Dataset{
			Tasks:          []types.Task{{ID: "t1", Title: "Check valves"}},
			Clients:        []types.Client{},
			Products:       []types.Product{},
			StockMovements: []types.StockMovement{},
			Invoices:       []types.Invoice{},
		},
		Metadata: Metadata{Counts: map[string]int{"tasks": 1}, AppVersion: "test"},
	}
	raw, err := json.Marshal(&snap)
	if err != nil {
		t.Fatal(err)
	}
	return raw
}

func TestDecodeSnapshot_Valid(t *testing.T) {
	snap, err := DecodeSnapshot(validSnapshotJSON(t))
	if err != nil {
		t.Fatal(err)
	}
	if snap.Version != SnapshotVersion {
		t.Errorf("unexpected version %q", snap.Version)
	}
	if len(snap.Data.Tasks) != 1 || snap.Data.Tasks[0].Title != "Check valves" {
		t.Errorf("unexpected data: %+v", snap.Data)
	}
}

func TestDecodeSnapshot_Rejections(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"malformed document", `{not json`},
		{"wrong version", `{"version":"2.0","data":{"tasks":[],"clients":[],"products":[],"stock_movements":[],"invoices":[]}}`},
		{"missing version", `{"data":{"tasks":[],"clients":[],"products":[],"stock_movements":[],"invoices":[]}}`},
		{"missing data section", `{"version":"1.0"}`},
		{"missing table", `{"version":"1.0","data":{"tasks":[],"clients":[],"products":[],"invoices":[]}}`},
		{"table not a collection", `{"version":"1.0","data":{"tasks":{"oops":true},"clients":[],"products":[],"stock_movements":[],"invoices":[]}}`},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := DecodeSnapshot([]byte(tc.raw))
			if !errors.Is(err, ErrInvalidSnapshot) {
				t.Errorf("expected ErrInvalidSnapshot, got %v", err)
			}
		})
	}
}
