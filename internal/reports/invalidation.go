package reports

import (
	"sync"

	"watchbook/internal/core"
)

// InvalidationSet records which months must be recomputed. Producers mark
// months from domain events; the engine drains the set before every read,
// so staleness never depends on subscriber order.
type InvalidationSet struct {
	mu     sync.Mutex
	months map[core.MonthKey]struct{}
	all    bool
}

func NewInvalidationSet() *InvalidationSet {
	return &InvalidationSet{months: make(map[core.MonthKey]struct{})}
}

func (s *InvalidationSet) Mark(months ...core.MonthKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, m := range months {
		if m != "" {
			s.months[m] = struct{}{}
		}
	}
}

// MarkAll invalidates every month, e.g. after an import.
func (s *InvalidationSet) MarkAll() {
	s.mu.Lock()
	s.all = true
	s.mu.Unlock()
}

// Drain returns the marked months and whether everything was marked, then
// empties the set.
func (s *InvalidationSet) Drain() (months []core.MonthKey, all bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for m := range s.months {
		months = append(months, m)
	}
	all = s.all
	s.months = make(map[core.MonthKey]struct{})
	s.all = false
	return months, all
}

// Pending reports whether anything is marked.
func (s *InvalidationSet) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.all || len(s.months) > 0
}
