package sheets

import (
	"strconv"
	"strings"

	"watchbook/internal/core"
	"watchbook/internal/currency"
)

// SettingsRowID is the id of the single settings row.
const SettingsRowID = "settings"

func OrderRow(o core.Order) Row {
	return Row{
		"id":           strconv.FormatInt(o.ID, 10),
		"month_key":    string(o.MonthKey),
		"date":         o.Date,
		"client":       o.Client,
		"phone":        o.Phone,
		"origin":       o.Origin,
		"vendor":       o.Vendor,
		"model":        o.Model,
		"cost_usd":     o.CostUSD,
		"shipping_usd": o.ShippingUSD,
		"extras_eur":   o.ExtrasEUR,
		"sell_eur":     o.SellEUR,
		"status":       string(o.Status),
		"full_set":     o.FullSet,
		"notes":        o.Notes,
	}
}

// ExpenseRow keeps the stored amount and its EUR value side by side.
func ExpenseRow(e core.ExpenseLine, usdRate float64) Row {
	cur := e.Currency
	if cur == "" {
		cur = currency.EUR
	}
	return Row{
		"id":         strconv.FormatInt(e.ID, 10),
		"month_key":  string(e.MonthKey),
		"name":       e.Name,
		"amount":     e.Amount,
		"amount_eur": currency.ToEUR(e.Amount, cur, usdRate),
		"currency":   string(cur),
		"note":       e.Note,
		"is_default": e.IsDefault,
	}
}

func ClientRow(c core.Client) Row {
	return Row{
		"id":               c.ID,
		"name":             c.Name,
		"phone":            c.Phone,
		"email":            c.Email,
		"address":          c.Address,
		"preferred_source": c.PreferredSource,
		"notes":            c.Notes,
	}
}

// SettingsRow flattens the lists into comma separated cells.
func SettingsRow(s core.Settings) Row {
	return Row{
		"id":               SettingsRowID,
		"usd_rate":         s.USDRate,
		"factory_shipping": s.FactoryShipping,
		"origins":          strings.Join(s.Origins, ","),
		"vendors":          strings.Join(s.Vendors, ","),
	}
}

// Values returns the row's cells in column order; missing cells are empty.
func (r Row) Values(table Table) []any {
	cols := Columns[table]
	out := make([]any, len(cols))
	for i, c := range cols {
		v, ok := r[c]
		if !ok {
			out[i] = ""
			continue
		}
		out[i] = v
	}
	return out
}

// RowFromValues is the inverse of Values for cells read back as strings.
func RowFromValues(table Table, cells []string) Row {
	cols := Columns[table]
	r := make(Row, len(cols))
	for i, c := range cols {
		if i < len(cells) {
			r[c] = cells[i]
		} else {
			r[c] = ""
		}
	}
	return r
}
