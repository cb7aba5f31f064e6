package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchbook/internal/core"
	"watchbook/internal/currency"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/services"
	"watchbook/internal/state"
	"watchbook/internal/storage"
	"watchbook/internal/store"
	"watchbook/internal/undo"
)

var now = time.Date(2024, 12, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	engine   *Engine
	bus      *events.Bus
	orders   *services.OrdersModule
	expenses *services.ExpensesModule
	settings *services.SettingsModule
	history  *services.History
	now      time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{now: now}
	clock := func() time.Time { return f.now }
	bus := events.NewBus(log.Nop())
	st := store.New(storage.NewMemoryMedium(0), store.Options{Now: clock, Logger: log.Nop()})
	hub := state.NewHub(st, bus, log.Nop(), clock)
	require.NoError(t, hub.Load(context.Background()))
	d := services.Deps{
		Hub:      hub,
		Bus:      bus,
		History:  undo.NewStack(0),
		Currency: currency.NewEngine(time.UTC, clock),
		Logger:   log.Nop(),
		Now:      clock,
	}
	f.engine = NewEngine(hub, bus, log.Nop(), clock, time.UTC)
	f.bus = bus
	f.orders = services.NewOrdersModule(d)
	f.expenses = services.NewExpensesModule(d, nil)
	f.settings = services.NewSettingsModule(d)
	f.history = services.NewHistory(d)
	return f
}

func order(date string, sell float64) core.Order {
	return core.Order{Date: date, Client: "Иван", CostUSD: 100, ShippingUSD: 10, ExtrasEUR: 5, SellEUR: sell, Status: core.StatusDelivered}
}

func TestMonthlyStats(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orders.Create(ctx, order("2024-11-15", 200))
	require.NoError(t, err)
	_, err = f.expenses.Create(ctx, core.ExpenseLine{MonthKey: "2024-11", Name: "Наем", Amount: 195.58, Currency: currency.BGN})
	require.NoError(t, err)

	ms := f.engine.MonthlyStats("2024-11")
	assert.Equal(t, MonthlyStats{
		MonthKey:   "2024-11",
		OrderCount: 1,
		Revenue:    200,
		Cost:       101.8,
		Expenses:   100,
		Profit:     -1.8,
	}, ms)
}

func TestMonthlyStatsCacheInvalidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	o, err := f.orders.Create(ctx, order("2024-11-15", 200))
	require.NoError(t, err)

	f.engine.MonthlyStats("2024-11")
	f.engine.MonthlyStats("2024-11")
	assert.Equal(t, uint64(1), f.engine.CacheStats().Hits)

	sell := 300.0
	_, err = f.orders.Update(ctx, o.ID, services.OrderPatch{SellEUR: &sell})
	require.NoError(t, err)
	assert.Equal(t, 300.0, f.engine.MonthlyStats("2024-11").Revenue)

	_, err = f.history.Undo(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200.0, f.engine.MonthlyStats("2024-11").Revenue)

	f.bus.Publish(events.StoreImported, nil)
	assert.True(t, f.engine.Invalidations().Pending())
	f.engine.MonthlyStats("2024-11")
	assert.False(t, f.engine.Invalidations().Pending())
}

func TestStateChangesInvalidateOnlyTouchedMonths(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orders.Create(ctx, order("2024-10-03", 200))
	require.NoError(t, err)
	o, err := f.orders.Create(ctx, order("2024-11-03", 300))
	require.NoError(t, err)

	f.engine.MonthlyStats("2024-10")
	f.engine.MonthlyStats("2024-11")
	hits := f.engine.CacheStats().Hits

	tests := []struct {
		name   string
		change func(t *testing.T)
		// whether the 2024-10 entry survives
		kept bool
	}{
		{"order in another month", func(t *testing.T) {
			sell := 350.0
			_, err := f.orders.Update(ctx, o.ID, services.OrderPatch{SellEUR: &sell})
			require.NoError(t, err)
		}, true},
		{"undo in another month", func(t *testing.T) {
			_, err := f.history.Undo(ctx)
			require.NoError(t, err)
		}, true},
		{"settings without rate", func(t *testing.T) {
			_, err := f.settings.AddOrigin(ctx, "Instagram")
			require.NoError(t, err)
		}, true},
		{"rate change", func(t *testing.T) {
			rate := 0.9
			_, err := f.settings.Update(ctx, services.SettingsPatch{USDRate: &rate})
			require.NoError(t, err)
		}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.change(t)
			f.engine.MonthlyStats("2024-10")
			got := f.engine.CacheStats().Hits
			if tt.kept {
				assert.Equal(t, hits+1, got)
			} else {
				assert.Equal(t, hits, got)
			}
			// refill for the next case
			f.engine.MonthlyStats("2024-10")
			hits = f.engine.CacheStats().Hits
		})
	}
	assert.Equal(t, 300.0, f.engine.MonthlyStats("2024-11").Revenue)
}

func TestAllTimeStatsFollowTheCalendar(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orders.Create(ctx, order("2024-11-03", 300))
	require.NoError(t, err)
	_, err = f.orders.Create(ctx, order("2024-12-01", 150))
	require.NoError(t, err)

	at := f.engine.AllTimeStatsWithTrends()
	assert.Equal(t, core.MonthKey("2024-11"), at.LastMonth)
	assert.Equal(t, TrendUp, at.Trend)

	f.now = time.Date(2025, 1, 2, 9, 0, 0, 0, time.UTC)
	at = f.engine.AllTimeStatsWithTrends()
	assert.Equal(t, core.MonthKey("2024-12"), at.LastMonth)
	assert.Equal(t, core.MonthKey("2024-11"), at.PrevMonth)
	// 48.2 against 198.2
	assert.Equal(t, -75.7, at.Velocity)
	assert.Equal(t, TrendDown, at.Trend)
	assert.Equal(t, 2, at.TotalOrders)
}

func TestAllTimeStatsWithTrends(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.orders.Create(ctx, order("2024-10-03", 200))
	require.NoError(t, err)
	_, err = f.orders.Create(ctx, order("2024-11-03", 300))
	require.NoError(t, err)
	_, err = f.orders.Create(ctx, order("2024-12-01", 150))
	require.NoError(t, err)

	at := f.engine.AllTimeStatsWithTrends()
	assert.Equal(t, 3, at.TotalOrders)
	assert.Equal(t, 650.0, at.TotalRevenue)
	assert.Equal(t, 344.6, at.NetProfit)
	assert.Equal(t, 114.87, at.AvgProfit)
	assert.Equal(t, core.MonthKey("2024-11"), at.LastMonth)
	assert.Equal(t, core.MonthKey("2024-10"), at.PrevMonth)
	// 198.2 against 98.2
	assert.Equal(t, 101.8, at.Velocity)
	assert.Equal(t, TrendUp, at.Trend)

	// cached until an order changes
	_, err = f.orders.Create(ctx, order("2024-11-20", 100))
	require.NoError(t, err)
	assert.Equal(t, 4, f.engine.AllTimeStatsWithTrends().TotalOrders)
}

func TestVelocityAndTrend(t *testing.T) {
	tests := []struct {
		last, prev float64
		velocity   float64
		trend      string
	}{
		{110, 100, 10, TrendUp},
		{90, 100, -10, TrendDown},
		{100.5, 100, 0.5, TrendFlat},
		{50, 0, 100, TrendUp},
		{0, 0, 0, TrendFlat},
		{-50, -100, 50, TrendUp},
	}
	for _, tt := range tests {
		v := Velocity(tt.last, tt.prev)
		assert.Equal(t, tt.velocity, v, "velocity(%v, %v)", tt.last, tt.prev)
		assert.Equal(t, tt.trend, TrendOf(v))
	}
}

func TestInvalidationSetDrain(t *testing.T) {
	s := NewInvalidationSet()
	s.Mark("2024-10", "", "2024-10")
	months, all := s.Drain()
	assert.Equal(t, []core.MonthKey{"2024-10"}, months)
	assert.False(t, all)

	s.MarkAll()
	_, all = s.Drain()
	assert.True(t, all)
	assert.False(t, s.Pending())
}

func TestMarkdown(t *testing.T) {
	md := Markdown(
		MonthlyStats{MonthKey: "2024-11", OrderCount: 1, Revenue: 200, Cost: 101.8, Profit: 98.2},
		AllTimeStats{TotalOrders: 1, Trend: TrendFlat, LastMonth: "2024-11", PrevMonth: "2024-10"},
	)
	assert.Contains(t, md, "Ноември 2024")
	assert.Contains(t, md, "98.20 €")
	assert.Contains(t, md, "без промяна")
}
