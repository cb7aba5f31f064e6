// Package state holds the in-memory mirror of every persisted key.
package state

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	"watchbook/internal/core"
)

// Persisted keys, in the order they are written.
const (
	KeyMonthlyData      = "monthlyData"
	KeyClients          = "clientsData"
	KeySettings         = "settings"
	KeyInventory        = "inventory"
	KeyAvailableMonths  = "availableMonths"
	KeyCurrentMonth     = "currentMonth"
	KeyLastManualExport = "lastManualExport"
	KeyExtras           = "extras"
)

// Keys lists every key the hub persists.
var Keys = []string{
	KeyMonthlyData,
	KeyClients,
	KeySettings,
	KeyInventory,
	KeyAvailableMonths,
	KeyCurrentMonth,
	KeyLastManualExport,
	KeyExtras,
}

// State is the whole in-memory graph.
type State struct {
	MonthlyData      map[core.MonthKey]core.MonthSnapshot
	Clients          map[string]core.Client
	Settings         core.Settings
	Inventory        map[string]core.InventoryItem
	AvailableMonths  []core.MonthEntry
	CurrentMonth     core.MonthKey
	LastManualExport int64
	// Extras keeps unknown top-level envelope keys so they survive a
	// round trip.
	Extras map[string]json.RawMessage
}

// Empty returns the state of a fresh installation at now.
func Empty(now time.Time) State {
	return State{
		MonthlyData:  map[core.MonthKey]core.MonthSnapshot{},
		Clients:      map[string]core.Client{},
		Settings:     core.DefaultSettings(),
		Inventory:    map[string]core.InventoryItem{},
		CurrentMonth: core.MonthKeyOf(now),
		Extras:       map[string]json.RawMessage{},
	}
}

// Clone returns a deep copy.
func (s State) Clone() State {
	out := s
	out.MonthlyData = make(map[core.MonthKey]core.MonthSnapshot, len(s.MonthlyData))
	for k, v := range s.MonthlyData {
		out.MonthlyData[k] = v.Clone()
	}
	out.Clients = maps.Clone(s.Clients)
	if out.Clients == nil {
		out.Clients = map[string]core.Client{}
	}
	out.Inventory = maps.Clone(s.Inventory)
	if out.Inventory == nil {
		out.Inventory = map[string]core.InventoryItem{}
	}
	out.Settings = s.Settings.Clone()
	out.AvailableMonths = append([]core.MonthEntry{}, s.AvailableMonths...)
	out.Extras = make(map[string]json.RawMessage, len(s.Extras))
	for k, v := range s.Extras {
		out.Extras[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Normalize enforces the structural invariants: non-nil maps, settings
// defaults, and a sorted duplicate-free month list that covers every month
// holding data.
func (s *State) Normalize(now time.Time) {
	if s.MonthlyData == nil {
		s.MonthlyData = map[core.MonthKey]core.MonthSnapshot{}
	}
	if s.Clients == nil {
		s.Clients = map[string]core.Client{}
	}
	if s.Inventory == nil {
		s.Inventory = map[string]core.InventoryItem{}
	}
	if s.Extras == nil {
		s.Extras = map[string]json.RawMessage{}
	}
	s.Settings = s.Settings.Normalize()
	s.AvailableMonths = core.NormalizeMonths(s.AvailableMonths)
	for k := range s.MonthlyData {
		if k.Valid() {
			s.AvailableMonths, _ = core.InsertMonth(s.AvailableMonths, k)
		}
	}
	if !s.CurrentMonth.Valid() {
		s.CurrentMonth = core.MonthKeyOf(now)
	}
	if id := s.MaxOrderID(); s.Settings.LastOrderID < id {
		s.Settings.LastOrderID = id
	}
}

// MaxOrderID returns the highest id among the stored orders.
func (s *State) MaxOrderID() int64 {
	var max int64
	for _, snap := range s.MonthlyData {
		for _, o := range snap.Orders {
			if o.ID > max {
				max = o.ID
			}
		}
	}
	return max
}

// Value returns the persisted representation of key.
func (s *State) Value(key string) (any, error) {
	switch key {
	case KeyMonthlyData:
		return s.MonthlyData, nil
	case KeyClients:
		return s.Clients, nil
	case KeySettings:
		return s.Settings, nil
	case KeyInventory:
		return s.Inventory, nil
	case KeyAvailableMonths:
		return s.AvailableMonths, nil
	case KeyCurrentMonth:
		return s.CurrentMonth, nil
	case KeyLastManualExport:
		return s.LastManualExport, nil
	case KeyExtras:
		return s.Extras, nil
	}
	return nil, fmt.Errorf("state key %q: %w", key, core.ErrNotFound)
}

// target returns a pointer to the field behind key.
func (s *State) target(key string) (any, error) {
	switch key {
	case KeyMonthlyData:
		return &s.MonthlyData, nil
	case KeyClients:
		return &s.Clients, nil
	case KeySettings:
		return &s.Settings, nil
	case KeyInventory:
		return &s.Inventory, nil
	case KeyAvailableMonths:
		return &s.AvailableMonths, nil
	case KeyCurrentMonth:
		return &s.CurrentMonth, nil
	case KeyLastManualExport:
		return &s.LastManualExport, nil
	case KeyExtras:
		return &s.Extras, nil
	}
	return nil, fmt.Errorf("state key %q: %w", key, core.ErrNotFound)
}

// Encode serializes key.
func (s *State) Encode(key string) (json.RawMessage, error) {
	v, err := s.Value(key)
	if err != nil {
		return nil, err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w: %v", key, core.ErrSerialization, err)
	}
	return data, nil
}

// Decode replaces key with the decoded data.
func (s *State) Decode(key string, data json.RawMessage) error {
	dst, err := s.target(key)
	if err != nil {
		return err
	}
	// decode into a zeroed copy so stale map entries do not survive
	switch p := dst.(type) {
	case *map[core.MonthKey]core.MonthSnapshot:
		*p = nil
	case *map[string]core.Client:
		*p = nil
	case *map[string]core.InventoryItem:
		*p = nil
	case *[]core.MonthEntry:
		*p = nil
	case *map[string]json.RawMessage:
		*p = nil
	case *core.Settings:
		*p = core.Settings{}
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w: %v", key, core.ErrCorruptData, err)
	}
	return nil
}

// Patch holds the encoded values of some keys.
type Patch map[string]json.RawMessage

// Capture encodes the given keys.
func (s *State) Capture(keys ...string) (Patch, error) {
	p := make(Patch, len(keys))
	for _, k := range keys {
		data, err := s.Encode(k)
		if err != nil {
			return nil, err
		}
		p[k] = data
	}
	return p, nil
}

// Apply decodes every key of p into s.
func (s *State) Apply(p Patch) error {
	for _, k := range Keys {
		data, ok := p[k]
		if !ok {
			continue
		}
		if err := s.Decode(k, data); err != nil {
			return err
		}
	}
	return nil
}

// MonthKeys returns the months holding data in ascending order.
func (s *State) MonthKeys() []core.MonthKey {
	keys := make([]core.MonthKey, 0, len(s.MonthlyData))
	for _, e := range s.AvailableMonths {
		if _, ok := s.MonthlyData[e.Key]; ok {
			keys = append(keys, e.Key)
		}
	}
	return keys
}
