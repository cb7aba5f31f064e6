package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"

	"watchbook/internal/core"
	"watchbook/internal/currency"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/state"
)

// StockOp selects how UpdateStock applies its delta.
type StockOp string

const (
	StockAdd      StockOp = "add"
	StockSubtract StockOp = "subtract"
)

// InventoryStats are the totals over all items.
type InventoryStats struct {
	TotalItems       int                  `json:"totalItems"`
	TotalStock       int                  `json:"totalStock"`
	TotalOrdered     int                  `json:"totalOrdered"`
	TotalValue       float64              `json:"totalValue"`
	PotentialRevenue float64              `json:"potentialRevenue"`
	LowStockItems    []core.InventoryItem `json:"lowStockItems"`
	OutOfStockItems  []core.InventoryItem `json:"outOfStockItems"`
}

// InventoryPatch lists the fields to change; nil fields are kept.
type InventoryPatch struct {
	Brand         *string
	Type          *core.InventoryType
	PurchasePrice *float64
	SellPrice     *float64
	Stock         *int
	Ordered       *int
}

type InventoryModule struct {
	mutator
}

func NewInventoryModule(d Deps) *InventoryModule {
	return &InventoryModule{mutator: newMutator(d, log.ComponentInventory)}
}

// All returns every item sorted by brand.
func (m *InventoryModule) All() []core.InventoryItem {
	var out []core.InventoryItem
	m.Hub.Read(func(s *state.State) {
		out = make([]core.InventoryItem, 0, len(s.Inventory))
		for _, it := range s.Inventory {
			out = append(out, it)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if bi, bj := strings.ToLower(out[i].Brand), strings.ToLower(out[j].Brand); bi != bj {
			return bi < bj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *InventoryModule) Get(id string) (core.InventoryItem, error) {
	var (
		it core.InventoryItem
		ok bool
	)
	m.Hub.Read(func(s *state.State) { it, ok = s.Inventory[id] })
	if !ok {
		return core.InventoryItem{}, fmt.Errorf("inventory item %s: %w", id, core.ErrNotFound)
	}
	return it, nil
}

func (m *InventoryModule) Create(ctx context.Context, it core.InventoryItem) (core.InventoryItem, error) {
	it.Brand = strings.TrimSpace(it.Brand)
	if it.Type == "" {
		it.Type = core.TypeStandard
	}
	if err := it.Validate(); err != nil {
		return core.InventoryItem{}, m.reject(ctx, log.OpCreate, fmt.Errorf("create inventory item: %w", err))
	}
	err := m.mutate(ctx, events.InventoryCreated, "Нов артикул", func(s *state.State) ([]emission, error) {
		if _, taken := s.Inventory[it.ID]; it.ID == "" || taken {
			it.ID = uuid.NewString()
		}
		s.Inventory[it.ID] = it
		return []emission{{events.InventoryCreated, it}}, nil
	})
	if err != nil {
		return core.InventoryItem{}, err
	}
	return it, nil
}

func (m *InventoryModule) Update(ctx context.Context, id string, patch InventoryPatch) (core.InventoryItem, error) {
	return m.change(ctx, id, "Редакция на артикул", func(it *core.InventoryItem) error {
		if patch.Brand != nil {
			it.Brand = strings.TrimSpace(*patch.Brand)
		}
		if patch.Type != nil {
			it.Type = *patch.Type
		}
		if patch.PurchasePrice != nil {
			it.PurchasePrice = *patch.PurchasePrice
		}
		if patch.SellPrice != nil {
			it.SellPrice = *patch.SellPrice
		}
		if patch.Stock != nil {
			it.Stock = *patch.Stock
		}
		if patch.Ordered != nil {
			it.Ordered = *patch.Ordered
		}
		return nil
	})
}

// UpdateStock adds or subtracts delta. A result below zero is rejected with
// ErrNegativeStock.
func (m *InventoryModule) UpdateStock(ctx context.Context, id string, delta int, op StockOp) (core.InventoryItem, error) {
	if delta < 0 || (op != StockAdd && op != StockSubtract) {
		return core.InventoryItem{}, m.reject(ctx, log.OpUpdate, fmt.Errorf("update stock %s: %w", id, core.ErrInvalidQuantity))
	}
	return m.change(ctx, id, "Наличност", func(it *core.InventoryItem) error {
		d := delta
		if op == StockSubtract {
			d = -d
		}
		if it.Stock+d < 0 {
			return fmt.Errorf("update stock %s by %d: %w", id, d, core.ErrNegativeStock)
		}
		it.Stock += d
		return nil
	})
}

// UpdateOrdered sets the number of pieces on order.
func (m *InventoryModule) UpdateOrdered(ctx context.Context, id string, n int) (core.InventoryItem, error) {
	return m.change(ctx, id, "Поръчани бройки", func(it *core.InventoryItem) error {
		it.Ordered = n
		return nil
	})
}

func (m *InventoryModule) change(ctx context.Context, id, label string, fn func(it *core.InventoryItem) error) (core.InventoryItem, error) {
	var out core.InventoryItem
	err := m.mutate(ctx, events.InventoryUpdated, label, func(s *state.State) ([]emission, error) {
		it, ok := s.Inventory[id]
		if !ok {
			return nil, fmt.Errorf("inventory item %s: %w", id, core.ErrNotFound)
		}
		if err := fn(&it); err != nil {
			return nil, err
		}
		if err := it.Validate(); err != nil {
			return nil, fmt.Errorf("inventory item %s: %w", id, err)
		}
		s.Inventory[id] = it
		out = it
		return []emission{{events.InventoryUpdated, it}}, nil
	})
	return out, err
}

func (m *InventoryModule) Delete(ctx context.Context, id string) error {
	return m.mutate(ctx, events.InventoryDeleted, "Изтриване на артикул", func(s *state.State) ([]emission, error) {
		it, ok := s.Inventory[id]
		if !ok {
			return nil, fmt.Errorf("delete inventory item %s: %w", id, core.ErrNotFound)
		}
		delete(s.Inventory, id)
		return []emission{{events.InventoryDeleted, it}}, nil
	})
}

// Stats totals the inventory and lists low (1..2) and empty items.
func (m *InventoryModule) Stats() InventoryStats {
	items := m.All()
	st := InventoryStats{
		TotalItems:      len(items),
		LowStockItems:   []core.InventoryItem{},
		OutOfStockItems: []core.InventoryItem{},
	}
	values := make([]float64, 0, len(items))
	revenue := make([]float64, 0, len(items))
	for _, it := range items {
		st.TotalStock += it.Stock
		st.TotalOrdered += it.Ordered
		values = append(values, it.Value())
		revenue = append(revenue, it.PotentialRevenue())
		switch it.StockStatus() {
		case core.StockLow:
			st.LowStockItems = append(st.LowStockItems, it)
		case core.StockOut:
			st.OutOfStockItems = append(st.OutOfStockItems, it)
		}
	}
	st.TotalValue = currency.Sum(values...)
	st.PotentialRevenue = currency.Sum(revenue...)
	return st
}
