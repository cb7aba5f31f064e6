package memory

import (
	"context"
	"testing"

	"watchbook/internal/core"
	"watchbook/internal/sheets"
)

func TestUpsertListDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	c := core.Client{ID: "c1", Name: "Иван", Phone: "0888"}
	if err := s.Upsert(ctx, sheets.TableClients, sheets.ClientRow(c)); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	c.Phone = "0899"
	if err := s.Upsert(ctx, sheets.TableClients, sheets.ClientRow(c)); err != nil {
		t.Fatalf("Upsert again: %v", err)
	}

	rows, err := s.List(ctx, sheets.TableClients)
	if err != nil || len(rows) != 1 {
		t.Fatalf("List = %v, %v", rows, err)
	}
	if rows[0]["phone"] != "0899" {
		t.Errorf("phone = %v", rows[0]["phone"])
	}

	if err := s.Delete(ctx, sheets.TableClients, "c1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	rows, _ = s.List(ctx, sheets.TableClients)
	if len(rows) != 0 {
		t.Errorf("rows after delete: %v", rows)
	}
}

func TestUpsertRejectsBadInput(t *testing.T) {
	ctx := context.Background()
	s := New()
	if err := s.Upsert(ctx, "nope", sheets.Row{"id": "1"}); err == nil {
		t.Error("unknown table accepted")
	}
	if err := s.Upsert(ctx, sheets.TableOrders, sheets.Row{"model": "x"}); err == nil {
		t.Error("row without id accepted")
	}
}
