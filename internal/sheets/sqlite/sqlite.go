// Package sqlite mirrors rows into the typed tables of a local SQLite
// database. It shares the database file with the key-value medium.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"watchbook/internal/sheets"
	"watchbook/internal/storage"
)

type Store struct {
	db *sql.DB
}

var _ sheets.RowStore = (*Store)(nil)

// Open opens the database at dbPath, running migrations first.
func Open(dbPath string) (*Store, error) {
	db, err := storage.OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

// New wraps an already migrated database.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Upsert(ctx context.Context, table sheets.Table, row sheets.Row) error {
	cols, ok := sheets.Columns[table]
	if !ok {
		return fmt.Errorf("unknown table %q", table)
	}
	if row.ID() == "" {
		return fmt.Errorf("upsert %s: missing id", table)
	}

	args := make([]any, len(cols))
	updates := make([]string, 0, len(cols)-1)
	for i, c := range cols {
		args[i] = cell(row[c])
		if c != "id" {
			updates = append(updates, fmt.Sprintf("%s = excluded.%s", c, c))
		}
	}
	args[0] = row.ID()

	q := fmt.Sprintf(`INSERT INTO %s (%s) VALUES (%s) ON CONFLICT(id) DO UPDATE SET %s`,
		table, strings.Join(cols, ", "), placeholders(len(cols)), strings.Join(updates, ", "))
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("upsert %s %s: %w", table, row.ID(), err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, table sheets.Table, id string) error {
	if !sheets.ValidTable(table) {
		return fmt.Errorf("unknown table %q", table)
	}
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DELETE FROM %s WHERE id = ?`, table), id); err != nil {
		return fmt.Errorf("delete %s %s: %w", table, id, err)
	}
	return nil
}

// List returns every row of table ordered by id. Boolean columns come back
// as integers.
func (s *Store) List(ctx context.Context, table sheets.Table) ([]sheets.Row, error) {
	cols, ok := sheets.Columns[table]
	if !ok {
		return nil, fmt.Errorf("unknown table %q", table)
	}
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s ORDER BY id`, strings.Join(cols, ", "), table))
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", table, err)
	}
	defer rows.Close()

	var out []sheets.Row
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan %s: %w", table, err)
		}
		r := make(sheets.Row, len(cols))
		for i, c := range cols {
			if b, ok := vals[i].([]byte); ok {
				r[c] = string(b)
				continue
			}
			r[c] = vals[i]
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func cell(v any) any {
	switch x := v.(type) {
	case nil:
		return ""
	case bool:
		if x {
			return 1
		}
		return 0
	default:
		return x
	}
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
