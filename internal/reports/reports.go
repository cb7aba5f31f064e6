// Package reports derives monthly and all-time statistics from the state
// and caches them until the underlying months change.
package reports

import (
	"encoding/hex"
	"encoding/json"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/shopspring/decimal"

	"watchbook/internal/cache"
	"watchbook/internal/core"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/services"
	"watchbook/internal/state"
)

// Trend directions.
const (
	TrendUp   = "up"
	TrendDown = "down"
	TrendFlat = "flat"
)

// FlatBand is the velocity, in percent, within which the trend is flat.
const FlatBand = 1.0

// DefaultCacheSize bounds the number of cached monthly results.
const DefaultCacheSize = 64

type MonthlyStats struct {
	MonthKey   core.MonthKey `json:"monthKey"`
	OrderCount int           `json:"orderCount"`
	Revenue    float64       `json:"revenue"`
	Cost       float64       `json:"cost"`
	Expenses   float64       `json:"expenses"`
	Profit     float64       `json:"profit"`
}

type AllTimeStats struct {
	TotalOrders  int     `json:"totalOrders"`
	TotalRevenue float64 `json:"totalRevenue"`
	NetProfit    float64 `json:"netProfit"`
	AvgProfit    float64 `json:"avgProfit"`
	Trend        string  `json:"trend"`
	// Velocity is the profit change of the last complete month against the
	// month before it, in percent.
	Velocity    float64       `json:"velocity"`
	LastMonth   core.MonthKey `json:"lastMonth"`
	PrevMonth   core.MonthKey `json:"prevMonth"`
	MonthsCount int           `json:"monthsCount"`
}

// monthScoped is implemented by domain event payloads.
type monthScoped interface {
	AffectedMonths() []core.MonthKey
}

type Engine struct {
	hub    *state.Hub
	inval  *InvalidationSet
	cache  *cache.LRU[string, MonthlyStats]
	logger *log.Logger
	now    func() time.Time
	loc    *time.Location

	mu      sync.Mutex
	allTime *AllTimeStats
	// allTimeAt is the current month allTime was computed in; trends
	// shift when it rolls over.
	allTimeAt core.MonthKey
	unsubs    []func()
}

// NewEngine subscribes to the events that change report inputs. loc is the
// location used to find the last complete month; nil means UTC.
func NewEngine(hub *state.Hub, bus *events.Bus, logger *log.Logger, now func() time.Time, loc *time.Location) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	if now == nil {
		now = time.Now
	}
	if loc == nil {
		loc = time.UTC
	}
	e := &Engine{
		hub:    hub,
		inval:  NewInvalidationSet(),
		cache:  cache.NewLRU[string, MonthlyStats](DefaultCacheSize, 0),
		logger: logger.WithComponent(log.ComponentReports),
		now:    now,
		loc:    loc,
	}
	if bus != nil {
		e.unsubs = append(e.unsubs,
			bus.Subscribe("order:*", e.onDomainEvent),
			bus.Subscribe("expense:*", e.onDomainEvent),
			bus.Subscribe(events.StoreImported, func(events.Event) { e.inval.MarkAll() }),
			// undo, redo and rate changes arrive only as state changes
			bus.Subscribe(events.StateChanged(state.KeyMonthlyData), e.onMonthlyData),
			bus.Subscribe(events.StateChanged(state.KeySettings), e.onSettings),
		)
	}
	return e
}

// Close removes the engine's subscriptions.
func (e *Engine) Close() {
	for _, u := range e.unsubs {
		u()
	}
	e.unsubs = nil
}

// Invalidations exposes the set so other producers can mark months.
func (e *Engine) Invalidations() *InvalidationSet { return e.inval }

// CacheStats returns the hit and miss counters of the monthly cache.
func (e *Engine) CacheStats() cache.Stats { return e.cache.Stats() }

func (e *Engine) onDomainEvent(ev events.Event) {
	if p, ok := ev.Payload.(monthScoped); ok {
		e.inval.Mark(p.AffectedMonths()...)
		return
	}
	e.inval.MarkAll()
}

func (e *Engine) onMonthlyData(ev events.Event) {
	c, ok := ev.Payload.(state.KeyChange)
	if !ok {
		e.inval.MarkAll()
		return
	}
	months, ok := c.ChangedMonths()
	if !ok {
		e.inval.MarkAll()
		return
	}
	e.inval.Mark(months...)
}

// onSettings purges everything only when the USD rate moved.
func (e *Engine) onSettings(ev events.Event) {
	if c, ok := ev.Payload.(state.KeyChange); ok && !c.RateChanged() {
		return
	}
	e.inval.MarkAll()
}

// drain applies pending invalidations to the caches.
func (e *Engine) drain() {
	months, all := e.inval.Drain()
	if !all && len(months) == 0 {
		return
	}
	e.mu.Lock()
	e.allTime = nil
	e.mu.Unlock()
	if all {
		e.cache.Purge()
		return
	}
	for _, m := range months {
		prefix := string(m) + ":"
		e.cache.DeleteFunc(func(k string) bool { return strings.HasPrefix(k, prefix) })
	}
}

// MonthlyStats returns the stats of month, the current month when empty.
func (e *Engine) MonthlyStats(month core.MonthKey) MonthlyStats {
	e.drain()

	var (
		snap core.MonthSnapshot
		rate float64
	)
	e.hub.Read(func(s *state.State) {
		if month == "" {
			month = s.CurrentMonth
		}
		snap = s.MonthlyData[month].Clone()
		rate = s.Settings.USDRate
	})

	key := string(month) + ":" + fingerprint(snap, rate)
	if st, ok := e.cache.Get(key); ok {
		return st
	}
	st := computeMonthly(month, snap, rate)
	e.cache.Set(key, st)
	e.logger.Debug("Monthly stats computed", log.FieldMonth, month, "orders", st.OrderCount)
	return st
}

// fingerprint hashes the inputs of one month's stats.
func fingerprint(snap core.MonthSnapshot, rate float64) string {
	h := xxhash.New()
	b, _ := json.Marshal(snap)
	_, _ = h.Write(b)
	_, _ = h.WriteString(decimal.NewFromFloat(rate).String())
	return hex.EncodeToString(h.Sum(nil))
}

func computeMonthly(month core.MonthKey, snap core.MonthSnapshot, rate float64) MonthlyStats {
	revenue, cost, expenses := decimal.Zero, decimal.Zero, decimal.Zero
	for _, o := range snap.Orders {
		o = o.WithTotals(rate)
		revenue = revenue.Add(decimal.NewFromFloat(o.SellEUR))
		cost = cost.Add(decimal.NewFromFloat(o.TotalEUR))
	}
	for _, x := range snap.Expenses {
		expenses = expenses.Add(decimal.NewFromFloat(services.ExpenseEUR(x, rate)))
	}
	return MonthlyStats{
		MonthKey:   month,
		OrderCount: len(snap.Orders),
		Revenue:    money(revenue),
		Cost:       money(cost),
		Expenses:   money(expenses),
		Profit:     money(revenue.Sub(cost).Sub(expenses)),
	}
}

func money(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// AllTimeStatsWithTrends aggregates every month and compares the last
// complete calendar month with the one before it.
func (e *Engine) AllTimeStatsWithTrends() AllTimeStats {
	e.drain()
	current := core.MonthKeyOf(e.now().In(e.loc))
	e.mu.Lock()
	if e.allTime != nil && e.allTimeAt == current {
		st := *e.allTime
		e.mu.Unlock()
		return st
	}
	e.mu.Unlock()

	var months []core.MonthKey
	e.hub.Read(func(s *state.State) { months = s.MonthKeys() })

	var st AllTimeStats
	revenue, profit := decimal.Zero, decimal.Zero
	for _, m := range months {
		ms := e.MonthlyStats(m)
		st.TotalOrders += ms.OrderCount
		revenue = revenue.Add(decimal.NewFromFloat(ms.Revenue))
		profit = profit.Add(decimal.NewFromFloat(ms.Profit))
	}
	st.MonthsCount = len(months)
	st.TotalRevenue = money(revenue)
	st.NetProfit = money(profit)
	st.AvgProfit = money(profit.Div(decimal.NewFromInt(int64(max(1, st.TotalOrders)))))

	st.LastMonth = current.Prev()
	st.PrevMonth = st.LastMonth.Prev()
	last := e.MonthlyStats(st.LastMonth).Profit
	prev := e.MonthlyStats(st.PrevMonth).Profit
	st.Velocity = Velocity(last, prev)
	st.Trend = TrendOf(st.Velocity)

	e.mu.Lock()
	e.allTime = &st
	e.allTimeAt = current
	e.mu.Unlock()
	return st
}

// Velocity is the percent change from prev to last, rounded to one decimal.
// From zero it is ±100 depending on the direction, or 0 when both are zero.
func Velocity(last, prev float64) float64 {
	if prev == 0 {
		switch {
		case last > 0:
			return 100
		case last < 0:
			return -100
		default:
			return 0
		}
	}
	v := (last - prev) / math.Abs(prev) * 100
	return math.Round(v*10) / 10
}

func TrendOf(velocity float64) string {
	switch {
	case velocity > FlatBand:
		return TrendUp
	case velocity < -FlatBand:
		return TrendDown
	default:
		return TrendFlat
	}
}
