package services

// Sorting strategies for expense listings. Each key (name, amount, default,
// id) has its own comparator; the registry lets callers add more.

import (
	"fmt"
	"sort"
	"strings"

	"watchbook/internal/core"
)

// ExpenseSorter orders expense lines ascending.
type ExpenseSorter interface {
	Less(a, b core.ExpenseLine) bool
}

// ExpenseSorterFunc adapts a function to ExpenseSorter.
type ExpenseSorterFunc func(a, b core.ExpenseLine) bool

func (f ExpenseSorterFunc) Less(a, b core.ExpenseLine) bool { return f(a, b) }

// ByName compares names case-insensitively.
type ByName struct{}

func (ByName) Less(a, b core.ExpenseLine) bool {
	return strings.ToLower(a.Name) < strings.ToLower(b.Name)
}

// ByAmount compares amounts.
type ByAmount struct{}

func (ByAmount) Less(a, b core.ExpenseLine) bool { return a.Amount < b.Amount }

// ByDefault puts template lines before user lines.
type ByDefault struct{}

func (ByDefault) Less(a, b core.ExpenseLine) bool { return a.IsDefault && !b.IsDefault }

// ByID keeps creation order.
type ByID struct{}

func (ByID) Less(a, b core.ExpenseLine) bool { return a.ID < b.ID }

// Sort directions.
const (
	SortAsc  = "asc"
	SortDesc = "desc"
)

var expenseSorters = map[string]ExpenseSorter{
	"name":    ByName{},
	"amount":  ByAmount{},
	"default": ByDefault{},
	"id":      ByID{},
}

// GetExpenseSorter returns the sorter registered under by.
func GetExpenseSorter(by string) (ExpenseSorter, error) {
	s, ok := expenseSorters[by]
	if !ok {
		return nil, fmt.Errorf("unknown expense sort key: %s", by)
	}
	return s, nil
}

// RegisterExpenseSorter adds or replaces a sort key.
func RegisterExpenseSorter(by string, s ExpenseSorter) {
	expenseSorters[by] = s
}

// SortExpenses sorts lines in place. Ties keep id order.
func SortExpenses(lines []core.ExpenseLine, by, dir string) error {
	s, err := GetExpenseSorter(by)
	if err != nil {
		return err
	}
	if dir != SortAsc && dir != SortDesc {
		return fmt.Errorf("unknown sort direction: %s", dir)
	}
	sort.SliceStable(lines, func(i, j int) bool {
		a, b := lines[i], lines[j]
		if dir == SortDesc {
			a, b = b, a
		}
		if s.Less(a, b) {
			return true
		}
		if s.Less(b, a) {
			return false
		}
		return lines[i].ID < lines[j].ID
	})
	return nil
}
