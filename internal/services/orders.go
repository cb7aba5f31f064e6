package services

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"

	"watchbook/internal/core"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/state"
)

// OrderRef is an order together with the month holding it.
type OrderRef struct {
	Order    core.Order
	MonthKey core.MonthKey
}

// OrderEvent is the payload of order events.
type OrderEvent struct {
	Order          core.Order    `json:"order"`
	MonthKey       core.MonthKey `json:"monthKey"`
	CreatedInMonth core.MonthKey `json:"createdInMonth,omitempty"`
	MovedToMonth   core.MonthKey `json:"movedToMonth,omitempty"`
	PreviousMonth  core.MonthKey `json:"previousMonth,omitempty"`
}

// AffectedMonths lists the months whose contents changed.
func (e OrderEvent) AffectedMonths() []core.MonthKey {
	if e.PreviousMonth != "" && e.PreviousMonth != e.MonthKey {
		return []core.MonthKey{e.PreviousMonth, e.MonthKey}
	}
	return []core.MonthKey{e.MonthKey}
}

// OrderPatch lists the fields to change; nil fields are kept.
type OrderPatch struct {
	Date        *string
	Client      *string
	Phone       *string
	Origin      *string
	Vendor      *string
	Model       *string
	ImageData   *string
	CostUSD     *float64
	ShippingUSD *float64
	ExtrasEUR   *float64
	SellEUR     *float64
	Status      *core.OrderStatus
	FullSet     *bool
	Notes       *string
}

func (p OrderPatch) apply(o core.Order) core.Order {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setFloat := func(dst *float64, src *float64) {
		if src != nil {
			*dst = *src
		}
	}
	setString(&o.Date, p.Date)
	setString(&o.Client, p.Client)
	setString(&o.Phone, p.Phone)
	setString(&o.Origin, p.Origin)
	setString(&o.Vendor, p.Vendor)
	setString(&o.Model, p.Model)
	setString(&o.ImageData, p.ImageData)
	setString(&o.Notes, p.Notes)
	setFloat(&o.CostUSD, p.CostUSD)
	setFloat(&o.ShippingUSD, p.ShippingUSD)
	setFloat(&o.ExtrasEUR, p.ExtrasEUR)
	setFloat(&o.SellEUR, p.SellEUR)
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.FullSet != nil {
		o.FullSet = *p.FullSet
	}
	return o
}

type OrdersModule struct {
	mutator

	mu    sync.Mutex
	cache map[core.MonthKey][]core.Order
}

func NewOrdersModule(d Deps) *OrdersModule {
	m := &OrdersModule{mutator: newMutator(d, log.ComponentOrders)}
	m.cache = make(map[core.MonthKey][]core.Order)
	invalidate := func(events.Event) { m.ClearCache() }
	m.Bus.Subscribe(events.StateChanged(state.KeyMonthlyData), invalidate)
	m.Bus.Subscribe(events.StateChanged(state.KeySettings), invalidate)
	m.Bus.Subscribe(events.StoreImported, invalidate)
	return m
}

// ClearCache drops the per-month views.
func (m *OrdersModule) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[core.MonthKey][]core.Order)
	m.mu.Unlock()
}

// Draft returns a blank order for date prefilled from the settings.
func (m *OrdersModule) Draft(date string) core.Order {
	var shipping float64
	m.Hub.Read(func(s *state.State) { shipping = s.Settings.FactoryShipping })
	return core.Order{Date: date, ShippingUSD: shipping, Status: core.StatusPending}
}

// ForMonth returns the orders of month (the current month when empty) with
// derived totals, oldest first.
func (m *OrdersModule) ForMonth(month core.MonthKey) []core.Order {
	var rate float64
	m.Hub.Read(func(s *state.State) {
		if month == "" {
			month = s.CurrentMonth
		}
		rate = s.Settings.USDRate
	})

	m.mu.Lock()
	if cached, ok := m.cache[month]; ok {
		m.mu.Unlock()
		return slices.Clone(cached)
	}
	m.mu.Unlock()

	var out []core.Order
	m.Hub.Read(func(s *state.State) {
		for _, o := range s.MonthlyData[month].Orders {
			out = append(out, o.WithTotals(rate))
		}
	})
	sortOrders(out)

	m.mu.Lock()
	m.cache[month] = out
	m.mu.Unlock()
	return slices.Clone(out)
}

func sortOrders(orders []core.Order) {
	sort.SliceStable(orders, func(i, j int) bool {
		if orders[i].Date != orders[j].Date {
			return orders[i].Date < orders[j].Date
		}
		return orders[i].ID < orders[j].ID
	})
}

// All returns every order across months, oldest first.
func (m *OrdersModule) All() []core.Order {
	var months []core.MonthKey
	m.Hub.Read(func(s *state.State) { months = s.MonthKeys() })
	var out []core.Order
	for _, mk := range months {
		out = append(out, m.ForMonth(mk)...)
	}
	return out
}

// Filter returns the orders across months matching pred.
func (m *OrdersModule) Filter(pred func(core.Order) bool) []core.Order {
	var out []core.Order
	for _, o := range m.All() {
		if pred(o) {
			out = append(out, o)
		}
	}
	return out
}

// FindByID locates an order in any month.
func (m *OrdersModule) FindByID(id int64) (OrderRef, error) {
	var (
		ref   OrderRef
		found bool
	)
	m.Hub.Read(func(s *state.State) {
		o, mk, ok := findOrder(s, id)
		if ok {
			ref, found = OrderRef{Order: o.WithTotals(s.Settings.USDRate), MonthKey: mk}, true
		}
	})
	if !found {
		return OrderRef{}, fmt.Errorf("order %d: %w", id, core.ErrNotFound)
	}
	return ref, nil
}

func findOrder(s *state.State, id int64) (core.Order, core.MonthKey, bool) {
	for mk, snap := range s.MonthlyData {
		for _, o := range snap.Orders {
			if o.ID == id {
				return o, mk, true
			}
		}
	}
	return core.Order{}, "", false
}

// nextOrderID advances the persisted order counter and returns the new id.
func nextOrderID(s *state.State) int64 {
	id := max(s.Settings.LastOrderID, s.MaxOrderID()) + 1
	s.Settings.LastOrderID = id
	return id
}

func normalizeOrder(o core.Order, rate float64) (core.Order, core.MonthKey, error) {
	o.Client = strings.TrimSpace(o.Client)
	if err := o.Validate(); err != nil {
		return o, "", err
	}
	mk, err := core.MonthKeyFromDate(o.Date)
	if err != nil {
		return o, "", err
	}
	o.MonthKey = mk
	return o.WithTotals(rate), mk, nil
}

// Create stores a new order in the month of its date and assigns the next id.
func (m *OrdersModule) Create(ctx context.Context, o core.Order) (core.Order, error) {
	var out core.Order
	err := m.mutate(ctx, events.OrderCreated, "Нова поръчка", func(s *state.State) ([]emission, error) {
		o, mk, err := normalizeOrder(o, s.Settings.USDRate)
		if err != nil {
			return nil, fmt.Errorf("create order: %w", err)
		}
		o.ID = nextOrderID(s)

		snap := s.MonthlyData[mk].Clone()
		snap.Orders = append(snap.Orders, o)
		s.MonthlyData[mk] = snap
		s.AvailableMonths, _ = core.InsertMonth(s.AvailableMonths, mk)

		out = o
		return []emission{{events.OrderCreated, OrderEvent{Order: o, MonthKey: mk, CreatedInMonth: mk}}}, nil
	})
	return out, err
}

// Update changes an order. When the new date falls in another month the
// order moves there; the move is one undoable step.
func (m *OrdersModule) Update(ctx context.Context, id int64, patch OrderPatch) (core.Order, error) {
	var out core.Order
	err := m.mutate(ctx, events.OrderUpdated, "Редакция на поръчка", func(s *state.State) ([]emission, error) {
		cur, from, ok := findOrder(s, id)
		if !ok {
			return nil, fmt.Errorf("update order %d: %w", id, core.ErrNotFound)
		}
		o, to, err := normalizeOrder(patch.apply(cur), s.Settings.USDRate)
		if err != nil {
			return nil, fmt.Errorf("update order %d: %w", id, err)
		}
		o.ID = id

		ev := OrderEvent{Order: o, MonthKey: to}
		if to == from {
			snap := s.MonthlyData[from].Clone()
			for i := range snap.Orders {
				if snap.Orders[i].ID == id {
					snap.Orders[i] = o
				}
			}
			s.MonthlyData[from] = snap
		} else {
			src := s.MonthlyData[from].Clone()
			src.Orders = slices.DeleteFunc(src.Orders, func(x core.Order) bool { return x.ID == id })
			s.MonthlyData[from] = src

			dst := s.MonthlyData[to].Clone()
			dst.Orders = append(dst.Orders, o)
			s.MonthlyData[to] = dst
			s.AvailableMonths, _ = core.InsertMonth(s.AvailableMonths, to)
			ev.MovedToMonth, ev.PreviousMonth = to, from
		}
		out = o
		return []emission{{events.OrderUpdated, ev}}, nil
	})
	return out, err
}

func (m *OrdersModule) Delete(ctx context.Context, id int64) error {
	return m.mutate(ctx, events.OrderDeleted, "Изтриване на поръчка", func(s *state.State) ([]emission, error) {
		cur, mk, ok := findOrder(s, id)
		if !ok {
			return nil, fmt.Errorf("delete order %d: %w", id, core.ErrNotFound)
		}
		snap := s.MonthlyData[mk].Clone()
		snap.Orders = slices.DeleteFunc(snap.Orders, func(x core.Order) bool { return x.ID == id })
		s.MonthlyData[mk] = snap
		return []emission{{events.OrderDeleted, OrderEvent{Order: cur, MonthKey: mk}}}, nil
	})
}

// StatusClass maps a status to the CSS class the views use.
func StatusClass(s core.OrderStatus) string {
	switch s {
	case core.StatusPending:
		return "status-pending"
	case core.StatusDelivered:
		return "status-delivered"
	case core.StatusFree:
		return "status-free"
	default:
		return "status-other"
	}
}

func (m *OrdersModule) StatusClass(s core.OrderStatus) string { return StatusClass(s) }
