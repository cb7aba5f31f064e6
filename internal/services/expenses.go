package services

import (
	"context"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"

	"watchbook/internal/core"
	"watchbook/internal/currency"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/state"
)

// ExpenseEvent is the payload of expense events.
type ExpenseEvent struct {
	Expense  core.ExpenseLine `json:"expense"`
	MonthKey core.MonthKey    `json:"monthKey"`
}

// MonthInitialized is the payload of expense:initialized.
type MonthInitialized struct {
	MonthKey core.MonthKey `json:"monthKey"`
	Added    int           `json:"added"`
}

func (e ExpenseEvent) AffectedMonths() []core.MonthKey     { return []core.MonthKey{e.MonthKey} }
func (e MonthInitialized) AffectedMonths() []core.MonthKey { return []core.MonthKey{e.MonthKey} }

// ExpensePatch lists the fields to change; nil fields are kept. Amount is
// read in Currency, or in the month's currency when Currency is nil.
type ExpensePatch struct {
	Name     *string
	Amount   *float64
	Currency *currency.Code
	Note     *string
}

// BuiltinTemplate is installed when neither settings nor a template file
// define default expenses. Amounts are EUR.
func BuiltinTemplate() []core.DefaultExpense {
	return []core.DefaultExpense{
		{Name: "Наем", Amount: 300},
		{Name: "Ток", Amount: 60},
		{Name: "Вода", Amount: 15},
		{Name: "Интернет", Amount: 20},
		{Name: "Телефон", Amount: 15},
		{Name: "Счетоводство", Amount: 75},
		{Name: "Реклама", Amount: 50},
		{Name: "Куриери", Amount: 40},
	}
}

type templateFile struct {
	Expenses []core.DefaultExpense `yaml:"expenses"`
}

// LoadTemplate reads default expenses from a YAML file of the form
//
//	expenses:
//	  - name: Наем
//	    amount: 300
func LoadTemplate(path string) ([]core.DefaultExpense, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read expense template: %w", err)
	}
	var f templateFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse expense template %s: %w", path, err)
	}
	for i, e := range f.Expenses {
		if strings.TrimSpace(e.Name) == "" || e.Amount < 0 {
			return nil, fmt.Errorf("expense template %s entry %d: %w", path, i+1, core.ErrInvalidAmount)
		}
	}
	return f.Expenses, nil
}

type ExpensesModule struct {
	mutator
	template []core.DefaultExpense
}

// NewExpensesModule uses template when settings carry no default expenses;
// an empty template falls back to BuiltinTemplate.
func NewExpensesModule(d Deps, template []core.DefaultExpense) *ExpensesModule {
	if len(template) == 0 {
		template = BuiltinTemplate()
	}
	return &ExpensesModule{mutator: newMutator(d, log.ComponentExpenses), template: template}
}

// Template returns the default lines for fresh months.
func (m *ExpensesModule) Template() []core.DefaultExpense {
	var fromSettings []core.DefaultExpense
	m.Hub.Read(func(s *state.State) { fromSettings = slices.Clone(s.Settings.DefaultExpenses) })
	if len(fromSettings) > 0 {
		return fromSettings
	}
	return slices.Clone(m.template)
}

func (m *ExpensesModule) resolve(month core.MonthKey) core.MonthKey {
	if month == "" {
		m.Hub.Read(func(s *state.State) { month = s.CurrentMonth })
	}
	return month
}

// List returns the expense lines of month (the current month when empty).
func (m *ExpensesModule) List(month core.MonthKey) []core.ExpenseLine {
	month = m.resolve(month)
	var out []core.ExpenseLine
	m.Hub.Read(func(s *state.State) {
		out = slices.Clone(s.MonthlyData[month].Expenses)
	})
	for i := range out {
		out[i].MonthKey = month
	}
	return out
}

// Sorted returns List ordered by one of the registered sort keys.
func (m *ExpensesModule) Sorted(month core.MonthKey, by, dir string) ([]core.ExpenseLine, error) {
	lines := m.List(month)
	if err := SortExpenses(lines, by, dir); err != nil {
		return nil, err
	}
	return lines, nil
}

// Total sums the lines of month in EUR.
func (m *ExpensesModule) Total(month core.MonthKey) float64 {
	var rate float64
	m.Hub.Read(func(s *state.State) { rate = s.Settings.USDRate })
	lines := m.List(month)
	amounts := make([]float64, 0, len(lines))
	for _, e := range lines {
		amounts = append(amounts, ExpenseEUR(e, rate))
	}
	return currency.Sum(amounts...)
}

// ExpenseEUR returns the amount of e in EUR. Lines without a currency are EUR.
func ExpenseEUR(e core.ExpenseLine, usdRate float64) float64 {
	if e.Currency == "" {
		return currency.Round(e.Amount)
	}
	return currency.ToEUR(e.Amount, e.Currency, usdRate)
}

// monthCurrency is the currency amounts for month are entered in.
func (m *ExpensesModule) monthCurrency(month core.MonthKey) currency.Code {
	return m.Currency.CurrencyForDate(month.Start(m.Currency.Location()))
}

func nextExpenseID(s *state.State) int64 {
	var max int64
	for _, snap := range s.MonthlyData {
		for _, e := range snap.Expenses {
			if e.ID > max {
				max = e.ID
			}
		}
	}
	return max + 1
}

func findExpense(s *state.State, id int64) (core.ExpenseLine, core.MonthKey, bool) {
	for mk, snap := range s.MonthlyData {
		for _, e := range snap.Expenses {
			if e.ID == id {
				return e, mk, true
			}
		}
	}
	return core.ExpenseLine{}, "", false
}

// Create adds a user expense. The amount is read in e.Currency, or in the
// month's currency when unset, and stored in EUR.
func (m *ExpensesModule) Create(ctx context.Context, e core.ExpenseLine) (core.ExpenseLine, error) {
	e.MonthKey = m.resolve(e.MonthKey)
	e.Name = strings.TrimSpace(e.Name)
	if err := e.Validate(); err != nil {
		return core.ExpenseLine{}, m.reject(ctx, log.OpCreate, fmt.Errorf("create expense: %w", err))
	}
	if e.Currency == "" {
		e.Currency = m.monthCurrency(e.MonthKey)
	}
	err := m.mutate(ctx, events.ExpenseCreated, "Нов разход", func(s *state.State) ([]emission, error) {
		e.Amount = currency.ToEUR(e.Amount, e.Currency, s.Settings.USDRate)
		e.Currency = currency.EUR
		e.ID = nextExpenseID(s)
		e.IsDefault = false

		snap := s.MonthlyData[e.MonthKey].Clone()
		snap.Expenses = append(snap.Expenses, e)
		s.MonthlyData[e.MonthKey] = snap
		s.AvailableMonths, _ = core.InsertMonth(s.AvailableMonths, e.MonthKey)
		return []emission{{events.ExpenseCreated, ExpenseEvent{Expense: e, MonthKey: e.MonthKey}}}, nil
	})
	if err != nil {
		return core.ExpenseLine{}, err
	}
	return e, nil
}

// Update edits a line; an edited default line becomes a user line.
func (m *ExpensesModule) Update(ctx context.Context, id int64, patch ExpensePatch) (core.ExpenseLine, error) {
	var out core.ExpenseLine
	err := m.mutate(ctx, events.ExpenseUpdated, "Редакция на разход", func(s *state.State) ([]emission, error) {
		e, mk, ok := findExpense(s, id)
		if !ok {
			return nil, fmt.Errorf("update expense %d: %w", id, core.ErrNotFound)
		}
		if patch.Name != nil {
			e.Name = strings.TrimSpace(*patch.Name)
		}
		if patch.Note != nil {
			e.Note = *patch.Note
		}
		if patch.Amount != nil {
			cur := m.monthCurrency(mk)
			if patch.Currency != nil {
				cur = *patch.Currency
			}
			e.Amount = currency.ToEUR(*patch.Amount, cur, s.Settings.USDRate)
			e.Currency = currency.EUR
		}
		e.MonthKey = mk
		e.IsDefault = false
		if err := e.Validate(); err != nil {
			return nil, fmt.Errorf("update expense %d: %w", id, err)
		}

		snap := s.MonthlyData[mk].Clone()
		for i := range snap.Expenses {
			if snap.Expenses[i].ID == id {
				snap.Expenses[i] = e
			}
		}
		s.MonthlyData[mk] = snap
		out = e
		return []emission{{events.ExpenseUpdated, ExpenseEvent{Expense: e, MonthKey: mk}}}, nil
	})
	return out, err
}

func (m *ExpensesModule) Delete(ctx context.Context, id int64) error {
	return m.mutate(ctx, events.ExpenseDeleted, "Изтриване на разход", func(s *state.State) ([]emission, error) {
		e, mk, ok := findExpense(s, id)
		if !ok {
			return nil, fmt.Errorf("delete expense %d: %w", id, core.ErrNotFound)
		}
		snap := s.MonthlyData[mk].Clone()
		snap.Expenses = slices.DeleteFunc(snap.Expenses, func(x core.ExpenseLine) bool { return x.ID == id })
		s.MonthlyData[mk] = snap
		return []emission{{events.ExpenseDeleted, ExpenseEvent{Expense: e, MonthKey: mk}}}, nil
	})
}

// InitializeMonth installs the default lines into month when it has no
// expenses yet. It returns how many lines were added; a month that already
// has expenses is left alone.
func (m *ExpensesModule) InitializeMonth(ctx context.Context, month core.MonthKey) (int, error) {
	return m.installDefaults(ctx, month, true)
}

// AddDefaultExpenses appends the default lines whose names are missing from
// month without touching existing lines.
func (m *ExpensesModule) AddDefaultExpenses(ctx context.Context, month core.MonthKey) (int, error) {
	return m.installDefaults(ctx, month, false)
}

func (m *ExpensesModule) installDefaults(ctx context.Context, month core.MonthKey, onlyIfEmpty bool) (int, error) {
	month = m.resolve(month)
	if !month.Valid() {
		return 0, m.reject(ctx, "initialize", fmt.Errorf("initialize month %q: %w", month, core.ErrInvalidMonth))
	}
	template := m.Template()
	added := 0
	err := m.mutate(ctx, events.ExpenseInitialized, "Разходи по подразбиране", func(s *state.State) ([]emission, error) {
		snap := s.MonthlyData[month].Clone()
		if onlyIfEmpty && len(snap.Expenses) > 0 {
			return nil, nil
		}
		present := make(map[string]struct{}, len(snap.Expenses))
		for _, e := range snap.Expenses {
			present[core.NameKey(e.Name)] = struct{}{}
		}
		id := nextExpenseID(s)
		for _, d := range template {
			if _, ok := present[core.NameKey(d.Name)]; ok {
				continue
			}
			present[core.NameKey(d.Name)] = struct{}{}
			snap.Expenses = append(snap.Expenses, core.ExpenseLine{
				ID:        id,
				MonthKey:  month,
				Name:      d.Name,
				Amount:    currency.Round(d.Amount),
				Currency:  currency.EUR,
				Note:      d.Note,
				IsDefault: true,
			})
			id++
			added++
		}
		if added == 0 {
			return nil, nil
		}
		s.MonthlyData[month] = snap
		s.AvailableMonths, _ = core.InsertMonth(s.AvailableMonths, month)
		return []emission{{events.ExpenseInitialized, MonthInitialized{MonthKey: month, Added: added}}}, nil
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}
