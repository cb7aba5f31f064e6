package services

import (
	"context"
	"fmt"

	"watchbook/internal/core"
	"watchbook/internal/events"
	"watchbook/internal/log"
	"watchbook/internal/state"
)

// SettingsPatch lists the fields to change; nil fields are kept.
type SettingsPatch struct {
	USDRate         *float64
	FactoryShipping *float64
	Origins         []string
	Vendors         []string
	DefaultExpenses []core.DefaultExpense
}

type SettingsModule struct {
	mutator
}

func NewSettingsModule(d Deps) *SettingsModule {
	return &SettingsModule{mutator: newMutator(d, log.ComponentSettings)}
}

func (m *SettingsModule) Get() core.Settings {
	var out core.Settings
	m.Hub.Read(func(s *state.State) { out = s.Settings.Clone() })
	return out
}

// Update merges patch into the settings. Origins and vendors keep their
// first occurrence when duplicated.
func (m *SettingsModule) Update(ctx context.Context, patch SettingsPatch) (core.Settings, error) {
	if (patch.USDRate != nil && *patch.USDRate <= 0) || (patch.FactoryShipping != nil && *patch.FactoryShipping < 0) {
		return core.Settings{}, m.reject(ctx, log.OpUpdate, fmt.Errorf("update settings: %w", core.ErrInvalidAmount))
	}
	var out core.Settings
	err := m.mutate(ctx, events.SettingsUpdated, "Настройки", func(s *state.State) ([]emission, error) {
		next := s.Settings.Clone()
		if patch.USDRate != nil {
			next.USDRate = *patch.USDRate
		}
		if patch.FactoryShipping != nil {
			next.FactoryShipping = *patch.FactoryShipping
		}
		if patch.Origins != nil {
			next.Origins = patch.Origins
		}
		if patch.Vendors != nil {
			next.Vendors = patch.Vendors
		}
		if patch.DefaultExpenses != nil {
			next.DefaultExpenses = patch.DefaultExpenses
		}
		s.Settings = next.Normalize()
		out = s.Settings.Clone()
		return []emission{{events.SettingsUpdated, out}}, nil
	})
	if err != nil {
		return core.Settings{}, err
	}
	return out, nil
}

// AddOrigin appends an origin unless already present.
func (m *SettingsModule) AddOrigin(ctx context.Context, origin string) (core.Settings, error) {
	cur := m.Get()
	return m.Update(ctx, SettingsPatch{Origins: append(cur.Origins, origin)})
}

// AddVendor appends a vendor unless already present.
func (m *SettingsModule) AddVendor(ctx context.Context, vendor string) (core.Settings, error) {
	cur := m.Get()
	return m.Update(ctx, SettingsPatch{Vendors: append(cur.Vendors, vendor)})
}
