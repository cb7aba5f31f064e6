package services

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"watchbook/internal/core"
	"watchbook/internal/currency"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/state"
)

// ClientStats summarises the orders of one client across all months.
type ClientStats struct {
	TotalOrders  int     `json:"totalOrders"`
	TotalRevenue float64 `json:"totalRevenue"`
	TotalProfit  float64 `json:"totalProfit"`
	LastOrder    string  `json:"lastOrder,omitempty"`
}

// ClientPatch lists the fields to change; nil fields are kept.
type ClientPatch struct {
	Name            *string
	Phone           *string
	Email           *string
	Address         *string
	PreferredSource *string
	Notes           *string
}

type ClientsModule struct {
	mutator
	orders *OrdersModule

	mu    sync.Mutex
	stats map[string]ClientStats
}

// NewClientsModule needs the orders module for the per-client views.
func NewClientsModule(d Deps, orders *OrdersModule) *ClientsModule {
	m := &ClientsModule{mutator: newMutator(d, log.ComponentClients), orders: orders}
	m.stats = make(map[string]ClientStats)
	invalidate := func(events.Event) { m.ClearCache() }
	for _, topic := range []string{"order:*", events.StateChanged(state.KeyMonthlyData), events.StateChanged(state.KeySettings), events.StoreImported} {
		m.Bus.Subscribe(topic, invalidate)
	}
	return m
}

func (m *ClientsModule) ClearCache() {
	m.mu.Lock()
	m.stats = make(map[string]ClientStats)
	m.mu.Unlock()
}

// All returns every client sorted by name.
func (m *ClientsModule) All() []core.Client {
	var out []core.Client
	m.Hub.Read(func(s *state.State) {
		out = make([]core.Client, 0, len(s.Clients))
		for _, c := range s.Clients {
			out = append(out, c)
		}
	})
	sort.Slice(out, func(i, j int) bool {
		if ki, kj := core.NameKey(out[i].Name), core.NameKey(out[j].Name); ki != kj {
			return ki < kj
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (m *ClientsModule) Get(id string) (core.Client, error) {
	var (
		c  core.Client
		ok bool
	)
	m.Hub.Read(func(s *state.State) { c, ok = s.Clients[id] })
	if !ok {
		return core.Client{}, fmt.Errorf("client %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

// ByName finds a client by case-insensitive trimmed name.
func (m *ClientsModule) ByName(name string) (core.Client, bool) {
	var (
		c  core.Client
		ok bool
	)
	m.Hub.Read(func(s *state.State) { c, ok = clientByName(s, name, "") })
	return c, ok
}

func clientByName(s *state.State, name, exceptID string) (core.Client, bool) {
	key := core.NameKey(name)
	for _, c := range s.Clients {
		if c.ID != exceptID && core.NameKey(c.Name) == key {
			return c, true
		}
	}
	return core.Client{}, false
}

// Create adds a client. Names are unique ignoring case and surrounding space.
func (m *ClientsModule) Create(ctx context.Context, c core.Client) (core.Client, error) {
	c.Name = strings.TrimSpace(c.Name)
	if err := c.Validate(); err != nil {
		return core.Client{}, m.reject(ctx, log.OpCreate, fmt.Errorf("create client: %w", err))
	}
	err := m.mutate(ctx, events.ClientCreated, "Нов клиент", func(s *state.State) ([]emission, error) {
		if _, dup := clientByName(s, c.Name, ""); dup {
			return nil, fmt.Errorf("create client %q: %w", c.Name, core.ErrDuplicateClient)
		}
		if _, taken := s.Clients[c.ID]; c.ID == "" || taken {
			c.ID = uuid.NewString()
		}
		if c.CreatedAt == "" {
			c.CreatedAt = m.Now().Format(time.RFC3339)
		}
		s.Clients[c.ID] = c
		return []emission{{events.ClientCreated, c}}, nil
	})
	if err != nil {
		return core.Client{}, err
	}
	return c, nil
}

// Update changes a client. A rename must stay unique; orders keep
// referencing the client by the name they were created with.
func (m *ClientsModule) Update(ctx context.Context, id string, patch ClientPatch) (core.Client, error) {
	var out core.Client
	err := m.mutate(ctx, events.ClientUpdated, "Редакция на клиент", func(s *state.State) ([]emission, error) {
		c, ok := s.Clients[id]
		if !ok {
			return nil, fmt.Errorf("update client %s: %w", id, core.ErrNotFound)
		}
		for dst, src := range map[*string]*string{
			&c.Name: patch.Name, &c.Phone: patch.Phone, &c.Email: patch.Email,
			&c.Address: patch.Address, &c.PreferredSource: patch.PreferredSource, &c.Notes: patch.Notes,
		} {
			if src != nil {
				*dst = *src
			}
		}
		c.Name = strings.TrimSpace(c.Name)
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("update client %s: %w", id, err)
		}
		if _, dup := clientByName(s, c.Name, id); dup {
			return nil, fmt.Errorf("rename client to %q: %w", c.Name, core.ErrDuplicateClient)
		}
		s.Clients[id] = c
		out = c
		return []emission{{events.ClientUpdated, c}}, nil
	})
	return out, err
}

func (m *ClientsModule) Delete(ctx context.Context, id string) error {
	return m.mutate(ctx, events.ClientDeleted, "Изтриване на клиент", func(s *state.State) ([]emission, error) {
		c, ok := s.Clients[id]
		if !ok {
			return nil, fmt.Errorf("delete client %s: %w", id, core.ErrNotFound)
		}
		delete(s.Clients, id)
		return []emission{{events.ClientDeleted, c}}, nil
	})
}

// Orders returns the orders placed under name, oldest first.
func (m *ClientsModule) Orders(name string) []core.Order {
	key := core.NameKey(name)
	return m.orders.Filter(func(o core.Order) bool { return core.NameKey(o.Client) == key })
}

// Stats returns memoized totals for name; the memo is dropped on any order
// change.
func (m *ClientsModule) Stats(name string) ClientStats {
	key := core.NameKey(name)
	m.mu.Lock()
	if st, ok := m.stats[key]; ok {
		m.mu.Unlock()
		return st
	}
	m.mu.Unlock()

	var st ClientStats
	var revenue, profit []float64
	for _, o := range m.Orders(name) {
		st.TotalOrders++
		revenue = append(revenue, o.SellEUR)
		profit = append(profit, o.BalanceEUR)
		if o.Date > st.LastOrder {
			st.LastOrder = o.Date
		}
	}
	st.TotalRevenue = currency.Sum(revenue...)
	st.TotalProfit = currency.Sum(profit...)

	m.mu.Lock()
	m.stats[key] = st
	m.mu.Unlock()
	return st
}
