package services

import (
	"context"
	"strconv"
	"sync"
	"time"

	"watchbook/internal/core"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/sheets"
	"watchbook/internal/state"
)

// DefaultMirrorTimeout bounds one remote call.
const DefaultMirrorTimeout = 30 * time.Second

// Mirror copies committed domain changes into a remote row store. Remote
// failures never roll back local state; they are logged and shown once.
type Mirror struct {
	rows    sheets.RowStore
	hub     *state.Hub
	bus     *events.Bus
	logger  *log.Logger
	timeout time.Duration

	mu     sync.Mutex
	unsubs []func()
	errs   int
}

func NewMirror(rows sheets.RowStore, hub *state.Hub, bus *events.Bus, logger *log.Logger) *Mirror {
	if logger == nil {
		logger = log.Default()
	}
	return &Mirror{
		rows:    rows,
		hub:     hub,
		bus:     bus,
		logger:  logger.WithComponent(log.ComponentRemote),
		timeout: DefaultMirrorTimeout,
	}
}

// Start subscribes to the domain topics. Calling Start twice is a no-op.
func (m *Mirror) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.unsubs) > 0 {
		return
	}
	for _, pattern := range []string{"order:*", "client:*", "expense:*", events.SettingsUpdated} {
		m.unsubs = append(m.unsubs, m.bus.Subscribe(pattern, m.handle))
	}
}

func (m *Mirror) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.unsubs {
		u()
	}
	m.unsubs = nil
}

// Failures returns how many remote calls failed since start.
func (m *Mirror) Failures() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.errs
}

func (m *Mirror) handle(ev events.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	var err error
	switch p := ev.Payload.(type) {
	case OrderEvent:
		if ev.Topic == events.OrderDeleted {
			err = m.rows.Delete(ctx, sheets.TableOrders, strconv.FormatInt(p.Order.ID, 10))
		} else {
			err = m.rows.Upsert(ctx, sheets.TableOrders, sheets.OrderRow(p.Order))
		}
	case core.Client:
		if ev.Topic == events.ClientDeleted {
			err = m.rows.Delete(ctx, sheets.TableClients, p.ID)
		} else {
			err = m.rows.Upsert(ctx, sheets.TableClients, sheets.ClientRow(p))
		}
	case ExpenseEvent:
		if ev.Topic == events.ExpenseDeleted {
			err = m.rows.Delete(ctx, sheets.TableExpenses, strconv.FormatInt(p.Expense.ID, 10))
		} else {
			err = m.rows.Upsert(ctx, sheets.TableExpenses, sheets.ExpenseRow(p.Expense, m.usdRate()))
		}
	case MonthInitialized:
		err = m.pushMonthExpenses(ctx, p.MonthKey)
	case core.Settings:
		err = m.rows.Upsert(ctx, sheets.TableSettings, sheets.SettingsRow(p))
	default:
		return
	}
	if err != nil {
		m.report(ctx, ev.Topic, err)
	}
}

func (m *Mirror) pushMonthExpenses(ctx context.Context, month core.MonthKey) error {
	snap := m.hub.Snapshot()
	rate := snap.Settings.USDRate
	for _, e := range snap.MonthlyData[month].Expenses {
		if err := m.rows.Upsert(ctx, sheets.TableExpenses, sheets.ExpenseRow(e, rate)); err != nil {
			return err
		}
	}
	return nil
}

// SyncAll pushes every order, expense, client and the settings row. Used
// after an import or when a remote is attached to existing data.
func (m *Mirror) SyncAll(ctx context.Context) error {
	snap := m.hub.Snapshot()
	rate := snap.Settings.USDRate
	for _, mk := range snap.MonthKeys() {
		month := snap.MonthlyData[mk]
		for _, o := range month.Orders {
			if err := m.rows.Upsert(ctx, sheets.TableOrders, sheets.OrderRow(o)); err != nil {
				return m.report(ctx, log.OpSync, err)
			}
		}
		for _, e := range month.Expenses {
			if err := m.rows.Upsert(ctx, sheets.TableExpenses, sheets.ExpenseRow(e, rate)); err != nil {
				return m.report(ctx, log.OpSync, err)
			}
		}
	}
	for _, c := range snap.Clients {
		if err := m.rows.Upsert(ctx, sheets.TableClients, sheets.ClientRow(c)); err != nil {
			return m.report(ctx, log.OpSync, err)
		}
	}
	if err := m.rows.Upsert(ctx, sheets.TableSettings, sheets.SettingsRow(snap.Settings)); err != nil {
		return m.report(ctx, log.OpSync, err)
	}
	m.logger.InfoContext(ctx, "Remote synced", "months", len(snap.MonthlyData), "clients", len(snap.Clients))
	return nil
}

func (m *Mirror) usdRate() float64 {
	var rate float64
	m.hub.Read(func(s *state.State) { rate = s.Settings.USDRate })
	return rate
}

// report surfaces the collaborator error unchanged.
func (m *Mirror) report(ctx context.Context, op string, err error) error {
	m.mu.Lock()
	m.errs++
	m.mu.Unlock()
	m.logger.ErrorContext(ctx, "Remote write failed", log.FieldOperation, op, log.FieldError, err)
	m.bus.Notify(events.LevelError, "Remote", err.Error())
	return err
}
