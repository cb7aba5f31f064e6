// Package sheets declares the remote row-store the application mirrors its
// data into, plus the row mapping shared by every adapter.
package sheets

import (
	"context"
	"fmt"
)

// Table names a remote table.
type Table string

const (
	TableOrders   Table = "orders"
	TableExpenses Table = "expenses"
	TableClients  Table = "clients"
	TableSettings Table = "settings"
)

// Tables lists every table in a stable order.
var Tables = []Table{TableOrders, TableExpenses, TableClients, TableSettings}

// Row is one record keyed by snake_case column name. Every row carries an
// "id" column.
type Row map[string]any

// ID returns the row's id column as a string.
func (r Row) ID() string {
	if v, ok := r["id"]; ok {
		return fmt.Sprint(v)
	}
	return ""
}

// Ports for outbound adapters.
type (
	RowWriter interface {
		// Upsert inserts the row or replaces the row with the same id.
		Upsert(ctx context.Context, table Table, row Row) error
		Delete(ctx context.Context, table Table, id string) error
	}

	RowLister interface {
		List(ctx context.Context, table Table) ([]Row, error)
	}

	RowStore interface {
		RowWriter
		RowLister
	}
)

// Columns are the columns of each table, id first.
var Columns = map[Table][]string{
	TableOrders: {
		"id", "month_key", "date", "client", "phone", "origin", "vendor", "model",
		"cost_usd", "shipping_usd", "extras_eur", "sell_eur", "status", "full_set", "notes",
	},
	TableExpenses: {
		"id", "month_key", "name", "amount", "amount_eur", "currency", "note", "is_default",
	},
	TableClients: {
		"id", "name", "phone", "email", "address", "preferred_source", "notes",
	},
	TableSettings: {
		"id", "usd_rate", "factory_shipping", "origins", "vendors",
	},
}

// ValidTable reports whether t is one of the known tables.
func ValidTable(t Table) bool {
	_, ok := Columns[t]
	return ok
}
