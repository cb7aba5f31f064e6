package core

import (
	"errors"
	"fmt"
	"testing"
)

func TestOrderValidate(t *testing.T) {
	good := Order{Date: "2024-11-15", Status: StatusDelivered, CostUSD: 100, SellEUR: 200}
	if err := good.Validate(); err != nil {
		t.Fatalf("expected ok, got %v", err)
	}

	cases := []struct {
		name string
		o    Order
		want error
	}{
		{"bad date", Order{Date: "15.11.2024", Status: StatusDelivered}, ErrInvalidDate},
		{"bad status", Order{Date: "2024-11-15", Status: "Изгубен"}, ErrInvalidStatus},
		{"negative cost", Order{Date: "2024-11-15", Status: StatusFree, CostUSD: -1}, ErrInvalidAmount},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if err := tc.o.Validate(); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInventoryDerived(t *testing.T) {
	cases := []struct {
		stock  int
		status StockStatus
	}{
		{0, StockOut},
		{1, StockLow},
		{2, StockLow},
		{3, StockIn},
	}
	for _, tc := range cases {
		item := InventoryItem{Brand: "Seiko", Type: TypeStandard, PurchasePrice: 12.5, SellPrice: 30, Stock: tc.stock}
		if got := item.StockStatus(); got != tc.status {
			t.Errorf("stock %d: expected %s, got %s", tc.stock, tc.status, got)
		}
		if got, want := item.Value(), 12.5*float64(tc.stock); got != want {
			t.Errorf("stock %d: value %v, want %v", tc.stock, got, want)
		}
		if got, want := item.PotentialRevenue(), 30*float64(tc.stock); got != want {
			t.Errorf("stock %d: potential revenue %v, want %v", tc.stock, got, want)
		}
	}
}

func TestSettingsNormalize(t *testing.T) {
	s := Settings{Origins: []string{"OLX", " OLX ", "", "Facebook", "OLX"}, Vendors: []string{"B", "A", "B"}}.Normalize()
	if len(s.Origins) != 2 || s.Origins[0] != "OLX" || s.Origins[1] != "Facebook" {
		t.Fatalf("unexpected origins: %v", s.Origins)
	}
	if len(s.Vendors) != 2 || s.Vendors[0] != "B" || s.Vendors[1] != "A" {
		t.Fatalf("unexpected vendors: %v", s.Vendors)
	}
	if s.USDRate != DefaultUSDRate {
		t.Fatalf("expected default rate, got %v", s.USDRate)
	}
}

func TestNoticeMapsKinds(t *testing.T) {
	wrapped := errors.Join(errors.New("save monthlyData"), ErrQuotaExceeded)
	if got := Notice(wrapped); got != notices[0].msg {
		t.Fatalf("unexpected notice %q", got)
	}
	if Notice(nil) != "" {
		t.Fatal("nil error should have no notice")
	}
}

func TestKind(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, ""},
		{fmt.Errorf("create client: %w", ErrDuplicateClient), "DuplicateClient"},
		{ErrInvalidDate, "Validation"},
		{errors.New("boom"), "Internal"},
	}
	for _, tt := range tests {
		if got := Kind(tt.err); got != tt.want {
			t.Errorf("Kind(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}

func TestOrderWithTotals(t *testing.T) {
	o := Order{CostUSD: 100, ShippingUSD: 10, ExtrasEUR: 5, SellEUR: 200}.WithTotals(0.88)
	// 110 USD * 0.88 = 96.80 EUR, plus 5 extras
	if o.TotalEUR != 101.8 {
		t.Errorf("TotalEUR = %v, want 101.8", o.TotalEUR)
	}
	if o.BalanceEUR != 98.2 {
		t.Errorf("BalanceEUR = %v, want 98.2", o.BalanceEUR)
	}
}
