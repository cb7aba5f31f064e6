// Package memory is an in-process row store, used for tests and as a
// dry-run remote.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sort"
	"sync"

	"watchbook/internal/sheets"
)

type Store struct {
	mu     sync.Mutex
	tables map[sheets.Table]map[string]sheets.Row
}

var _ sheets.RowStore = (*Store)(nil)

func New() *Store {
	return &Store{tables: make(map[sheets.Table]map[string]sheets.Row)}
}

func (s *Store) Upsert(_ context.Context, table sheets.Table, row sheets.Row) error {
	if !sheets.ValidTable(table) {
		return fmt.Errorf("unknown table %q", table)
	}
	id := row.ID()
	if id == "" {
		return fmt.Errorf("upsert %s: missing id", table)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tables[table] == nil {
		s.tables[table] = make(map[string]sheets.Row)
	}
	s.tables[table][id] = maps.Clone(row)
	return nil
}

func (s *Store) Delete(_ context.Context, table sheets.Table, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tables[table], id)
	return nil
}

// List returns the rows of table sorted by id.
func (s *Store) List(_ context.Context, table sheets.Table) ([]sheets.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := make([]sheets.Row, 0, len(s.tables[table]))
	for _, r := range s.tables[table] {
		rows = append(rows, maps.Clone(r))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].ID() < rows[j].ID() })
	return rows, nil
}
