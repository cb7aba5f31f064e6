package sheets

import (
	"testing"

	"watchbook/internal/core"
	"watchbook/internal/currency"
)

func TestExpenseRowColumns(t *testing.T) {
	e := core.ExpenseLine{ID: 7, MonthKey: "2024-11", Name: "Наем", Amount: 195.58, Currency: currency.BGN, IsDefault: true}
	r := ExpenseRow(e, 0.88)
	if r["month_key"] != "2024-11" || r["is_default"] != true {
		t.Fatalf("unexpected row %v", r)
	}
	if r["amount_eur"] != 100.0 {
		t.Errorf("amount_eur = %v, want 100", r["amount_eur"])
	}
	if r.ID() != "7" {
		t.Errorf("ID = %q", r.ID())
	}
}

func TestValuesFollowColumnOrder(t *testing.T) {
	r := SettingsRow(core.Settings{USDRate: 0.9, Origins: []string{"OLX", "FB"}})
	vals := r.Values(TableSettings)
	if len(vals) != len(Columns[TableSettings]) || vals[0] != SettingsRowID || vals[3] != "OLX,FB" {
		t.Fatalf("unexpected values %v", vals)
	}

	back := RowFromValues(TableSettings, []string{"settings", "0.9"})
	if back["usd_rate"] != "0.9" || back["vendors"] != "" {
		t.Errorf("unexpected row %v", back)
	}
}
