// Package envelope reads and writes the versioned export bundle and runs
// the atomic import.
package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"time"

	"watchbook/internal/core"
	"watchbook/internal/currency"
	"watchbook/internal/state"
)

// Bundle versions this package reads. Exports always use CurrentVersion.
const (
	Version10      = "1.0"
	Version11      = "1.1"
	Version12      = "1.2"
	CurrentVersion = Version12
)

var versions = map[string]int{Version10: 0, Version11: 1, Version12: 2}

// ExportDateLayout matches the ISO timestamps older exports carry.
const ExportDateLayout = "2006-01-02T15:04:05.000Z"

var knownKeys = map[string]bool{
	"version":         true,
	"exportDate":      true,
	"monthlyData":     true,
	"clientsData":     true,
	"settings":        true,
	"inventory":       true,
	"availableMonths": true,
	"currentMonth":    true,
}

type Bundle struct {
	Version         string                               `json:"version"`
	ExportDate      string                               `json:"exportDate"`
	MonthlyData     map[core.MonthKey]core.MonthSnapshot `json:"monthlyData"`
	ClientsData     map[string]core.Client               `json:"clientsData"`
	Settings        core.Settings                        `json:"settings"`
	Inventory       map[string]core.InventoryItem        `json:"inventory"`
	AvailableMonths []core.MonthEntry                    `json:"availableMonths"`
	CurrentMonth    core.MonthKey                        `json:"currentMonth"`
	// Extras holds top-level keys this version does not know. They are
	// written back unchanged.
	Extras map[string]json.RawMessage `json:"-"`
}

// MarshalJSON writes the known keys in declaration order followed by the
// extras sorted by name.
func (b Bundle) MarshalJSON() ([]byte, error) {
	type plain Bundle
	data, err := json.Marshal(plain(b))
	if err != nil {
		return nil, err
	}
	if len(b.Extras) == 0 {
		return data, nil
	}
	names := make([]string, 0, len(b.Extras))
	for k := range b.Extras {
		if !knownKeys[k] {
			names = append(names, k)
		}
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.Write(data[:len(data)-1])
	for _, k := range names {
		buf.WriteByte(',')
		buf.WriteString(strconv.Quote(k))
		buf.WriteByte(':')
		buf.Write(b.Extras[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Encode renders b as indented JSON.
func Encode(b Bundle) ([]byte, error) {
	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode bundle: %w: %v", core.ErrSerialization, err)
	}
	return data, nil
}

// FromState builds a current-version bundle.
func FromState(s state.State, exported time.Time) Bundle {
	s = s.Clone()
	return Bundle{
		Version:         CurrentVersion,
		ExportDate:      exported.UTC().Format(ExportDateLayout),
		MonthlyData:     s.MonthlyData,
		ClientsData:     s.Clients,
		Settings:        s.Settings,
		Inventory:       s.Inventory,
		AvailableMonths: s.AvailableMonths,
		CurrentMonth:    s.CurrentMonth,
		Extras:          s.Extras,
	}
}

// State converts the bundle into application state. Missing months,
// current month and inventory get their defaults.
func (b Bundle) State(now time.Time) state.State {
	s := state.State{
		MonthlyData:     b.MonthlyData,
		Clients:         b.ClientsData,
		Settings:        b.Settings,
		Inventory:       b.Inventory,
		AvailableMonths: b.AvailableMonths,
		CurrentMonth:    b.CurrentMonth,
		Extras:          b.Extras,
	}
	s = s.Clone()
	s.Normalize(now)
	return s
}

// Result summarises an import.
type Result struct {
	Version           string   `json:"version"`
	Months            int      `json:"months"`
	Orders            int      `json:"orders"`
	Clients           int      `json:"clients"`
	Inventory         int      `json:"inventory"`
	ConvertedOrders   int      `json:"convertedOrders"`
	ConvertedExpenses int      `json:"convertedExpenses"`
	ReassignedIDs     int      `json:"reassignedIds"`
	Extras            []string `json:"extras,omitempty"`
}

// compareVersion orders two supported versions.
func compareVersion(a, b string) int {
	return versions[a] - versions[b]
}

// currencyOf is the currency a stored expense amount is in.
func currencyOf(line core.ExpenseLine, version string, month core.MonthKey, eng *currency.Engine) (currency.Code, error) {
	if line.Currency != "" {
		return currency.ParseCode(string(line.Currency))
	}
	if compareVersion(version, Version12) < 0 {
		return eng.CurrencyForDate(month.Start(eng.Location())), nil
	}
	return currency.EUR, nil
}
