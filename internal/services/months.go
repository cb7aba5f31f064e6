package services

import (
	"context"
	"fmt"

	"watchbook/internal/core"
	"watchbook/internal/log"
	"watchbook/internal/state"
)

// CacheClearer is a module holding per-month views.
type CacheClearer interface {
	ClearCache()
}

// MonthsModule owns the month registry and the selected month.
type MonthsModule struct {
	mutator
	caches []CacheClearer
}

// NewMonthsModule clears caches on every month switch.
func NewMonthsModule(d Deps, caches ...CacheClearer) *MonthsModule {
	return &MonthsModule{mutator: newMutator(d, log.ComponentState), caches: caches}
}

func (m *MonthsModule) Current() core.MonthKey {
	var mk core.MonthKey
	m.Hub.Read(func(s *state.State) { mk = s.CurrentMonth })
	return mk
}

// Available returns the registered months, oldest first.
func (m *MonthsModule) Available() []core.MonthEntry {
	var out []core.MonthEntry
	m.Hub.Read(func(s *state.State) { out = append(out, s.AvailableMonths...) })
	return out
}

// Select switches the current month and registers it. Module caches are
// cleared before the switch so views rebuilt from the change event never
// see the previous month. Navigation is not recorded for undo.
func (m *MonthsModule) Select(ctx context.Context, month core.MonthKey) error {
	if !month.Valid() {
		return m.reject(ctx, "select", fmt.Errorf("select month %q: %w", month, core.ErrInvalidMonth))
	}
	for _, c := range m.caches {
		c.ClearCache()
	}
	change, err := m.Hub.Update(ctx, func(s *state.State) error {
		s.CurrentMonth = month
		s.AvailableMonths, _ = core.InsertMonth(s.AvailableMonths, month)
		return nil
	})
	if err != nil {
		m.fail(ctx, "select", err)
		return err
	}
	m.Hub.Publish(change)
	return nil
}
