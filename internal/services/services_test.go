package services

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"watchbook/internal/currency"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/state"
	"watchbook/internal/storage"
	"watchbook/internal/store"
	"watchbook/internal/undo"
)

type env struct {
	deps      Deps
	medium    *storage.MemoryMedium
	settings  *SettingsModule
	orders    *OrdersModule
	clients   *ClientsModule
	expenses  *ExpensesModule
	inventory *InventoryModule
	months    *MonthsModule
	history   *History

	mu     sync.Mutex
	events []events.Event
}

func newEnv(t *testing.T, now time.Time) *env {
	t.Helper()
	return newEnvWithMedium(t, now, storage.NewMemoryMedium(0))
}

func newEnvWithMedium(t *testing.T, now time.Time, m *storage.MemoryMedium) *env {
	t.Helper()
	clock := func() time.Time { return now }
	bus := events.NewBus(log.Nop())
	st := store.New(m, store.Options{Now: clock, Logger: log.Nop()})
	hub := state.NewHub(st, bus, log.Nop(), clock)
	require.NoError(t, hub.Load(context.Background()))

	d := Deps{
		Hub:      hub,
		Bus:      bus,
		History:  undo.NewStack(0),
		Currency: currency.NewEngine(time.UTC, clock),
		Logger:   log.Nop(),
		Now:      clock,
	}
	e := &env{deps: d, medium: m}
	bus.Subscribe("*", func(ev events.Event) {
		e.mu.Lock()
		e.events = append(e.events, ev)
		e.mu.Unlock()
	})
	e.settings = NewSettingsModule(d)
	e.orders = NewOrdersModule(d)
	e.clients = NewClientsModule(d, e.orders)
	e.expenses = NewExpensesModule(d, nil)
	e.inventory = NewInventoryModule(d)
	e.months = NewMonthsModule(d, e.orders, e.clients)
	e.history = NewHistory(d)
	return e
}

func (e *env) topics(topic string) []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Event
	for _, ev := range e.events {
		if ev.Topic == topic {
			out = append(out, ev)
		}
	}
	return out
}

func (e *env) reset() {
	e.mu.Lock()
	e.events = nil
	e.mu.Unlock()
}

var nov2024 = time.Date(2024, 11, 20, 10, 0, 0, 0, time.UTC)
