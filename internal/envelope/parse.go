package envelope

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"watchbook/internal/core"
	"watchbook/internal/currency"
)

// orderIn accepts ids written as numbers or strings and the legacy BGN
// money fields.
type orderIn struct {
	core.Order
	ID        json.RawMessage `json:"id"`
	SellEUR   *float64        `json:"sellEUR"`
	ExtrasEUR *float64        `json:"extrasEUR"`
	SellBGN   *float64        `json:"sellBGN"`
	ExtrasBGN *float64        `json:"extrasBGN"`
}

type expenseIn struct {
	core.ExpenseLine
	ID json.RawMessage `json:"id"`
}

type monthIn struct {
	Orders   []json.RawMessage `json:"orders"`
	Expenses []json.RawMessage `json:"expenses"`
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", core.ErrInvalidEnvelope, fmt.Sprintf(format, args...))
}

// Parse validates data and upgrades it to the current model. Legacy BGN
// amounts are converted to EUR here, once.
func Parse(data []byte, eng *currency.Engine) (Bundle, Result, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil || top == nil {
		return Bundle{}, Result{}, invalid("bundle is not a JSON object")
	}

	b := Bundle{Version: Version10, Extras: map[string]json.RawMessage{}}
	if raw, ok := top["version"]; ok {
		if err := json.Unmarshal(raw, &b.Version); err != nil {
			return Bundle{}, Result{}, invalid("version is not a string")
		}
	}
	if _, ok := versions[b.Version]; !ok {
		return Bundle{}, Result{}, fmt.Errorf("%w: %q", core.ErrIncompatibleVersion, b.Version)
	}
	res := Result{Version: b.Version}

	for _, k := range []string{"monthlyData", "clientsData", "settings"} {
		if !isObject(top[k]) {
			return Bundle{}, res, invalid("%s must be an object", k)
		}
	}
	if raw, ok := top["inventory"]; ok && !isNull(raw) && !isObject(raw) {
		return Bundle{}, res, invalid("inventory must be an object")
	}

	if raw, ok := top["exportDate"]; ok {
		_ = json.Unmarshal(raw, &b.ExportDate)
	}
	if err := json.Unmarshal(top["settings"], &b.Settings); err != nil {
		return Bundle{}, res, invalid("settings: %v", err)
	}
	b.Settings = b.Settings.Normalize()

	if err := json.Unmarshal(top["clientsData"], &b.ClientsData); err != nil {
		return Bundle{}, res, invalid("clientsData: %v", err)
	}
	for id, c := range b.ClientsData {
		if c.ID == "" {
			c.ID = id
			b.ClientsData[id] = c
		}
	}

	if raw, ok := top["inventory"]; ok && isObject(raw) {
		if err := json.Unmarshal(raw, &b.Inventory); err != nil {
			return Bundle{}, res, invalid("inventory: %v", err)
		}
		for id, it := range b.Inventory {
			if it.ID == "" {
				it.ID = id
				b.Inventory[id] = it
			}
		}
	}

	if raw, ok := top["availableMonths"]; ok && !isNull(raw) {
		months, err := parseMonths(raw)
		if err != nil {
			return Bundle{}, res, err
		}
		b.AvailableMonths = months
	}
	if raw, ok := top["currentMonth"]; ok && !isNull(raw) {
		if err := json.Unmarshal(raw, &b.CurrentMonth); err != nil {
			return Bundle{}, res, invalid("currentMonth is not a string")
		}
	}

	if err := parseMonthly(top["monthlyData"], &b, &res, eng); err != nil {
		return Bundle{}, res, err
	}

	for k, raw := range top {
		if !knownKeys[k] {
			b.Extras[k] = raw
			res.Extras = append(res.Extras, k)
		}
	}
	sort.Strings(res.Extras)

	res.Months = len(b.MonthlyData)
	res.Clients = len(b.ClientsData)
	res.Inventory = len(b.Inventory)
	return b, res, nil
}

func isObject(raw json.RawMessage) bool {
	t := bytes.TrimSpace(raw)
	return len(t) > 0 && t[0] == '{'
}

func isNull(raw json.RawMessage) bool {
	return string(bytes.TrimSpace(raw)) == "null"
}

func parseMonths(raw json.RawMessage) ([]core.MonthEntry, error) {
	var months []core.MonthEntry
	if err := json.Unmarshal(raw, &months); err != nil {
		return nil, invalid("availableMonths must be a list of {key, name}")
	}
	seen := make(map[core.MonthKey]bool, len(months))
	for _, m := range months {
		if seen[m.Key] {
			return nil, invalid("availableMonths repeats %s", m.Key)
		}
		seen[m.Key] = true
	}
	return months, nil
}

func parseMonthly(raw json.RawMessage, b *Bundle, res *Result, eng *currency.Engine) error {
	var months map[string]monthIn
	if err := json.Unmarshal(raw, &months); err != nil {
		return invalid("monthlyData: %v", err)
	}

	keys := make([]string, 0, len(months))
	for k := range months {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.MonthlyData = make(map[core.MonthKey]core.MonthSnapshot, len(months))
	var (
		orderIDs   = map[int64]bool{}
		expenseIDs = map[int64]bool{}
		needOrder  []orderRef
		needExp    []orderRef
	)
	rate := b.Settings.USDRate

	for _, k := range keys {
		mk, err := core.ParseMonthKey(k)
		if err != nil {
			return invalid("monthlyData key %q", k)
		}
		in := months[k]
		snap := core.MonthSnapshot{Orders: []core.Order{}, Expenses: []core.ExpenseLine{}}

		for i, rawOrder := range in.Orders {
			var o orderIn
			if err := json.Unmarshal(rawOrder, &o); err != nil {
				return invalid("order %d of %s: %v", i+1, k, err)
			}
			order := o.Order
			switch {
			case o.SellEUR != nil:
				order.SellEUR = *o.SellEUR
			case o.SellBGN != nil:
				order.SellEUR = currency.BGNToEUR(*o.SellBGN)
			}
			switch {
			case o.ExtrasEUR != nil:
				order.ExtrasEUR = *o.ExtrasEUR
			case o.ExtrasBGN != nil:
				order.ExtrasEUR = currency.BGNToEUR(*o.ExtrasBGN)
			}
			if (o.SellEUR == nil && o.SellBGN != nil) || (o.ExtrasEUR == nil && o.ExtrasBGN != nil) {
				res.ConvertedOrders++
			}
			if order.MonthKey == "" {
				order.MonthKey = mk
			}
			if order.Status == "" {
				order.Status = core.StatusPending
			}
			id, ok := parseID(o.ID)
			if !ok || orderIDs[id] {
				needOrder = append(needOrder, orderRef{mk, len(snap.Orders)})
			} else {
				order.ID = id
				orderIDs[id] = true
			}
			snap.Orders = append(snap.Orders, order.WithTotals(rate))
		}

		for i, rawExp := range in.Expenses {
			var e expenseIn
			if err := json.Unmarshal(rawExp, &e); err != nil {
				return invalid("expense %d of %s: %v", i+1, k, err)
			}
			line := e.ExpenseLine
			line.MonthKey = mk
			cur, err := currencyOf(line, b.Version, mk, eng)
			if err != nil {
				return invalid("expense %d of %s: %v", i+1, k, err)
			}
			if cur != currency.EUR {
				line.Amount = currency.ToEUR(line.Amount, cur, rate)
				res.ConvertedExpenses++
			}
			line.Currency = currency.EUR
			id, ok := parseID(e.ID)
			if !ok || expenseIDs[id] {
				needExp = append(needExp, orderRef{mk, len(snap.Expenses)})
			} else {
				line.ID = id
				expenseIDs[id] = true
			}
			snap.Expenses = append(snap.Expenses, line)
		}
		b.MonthlyData[mk] = snap
		res.Orders += len(snap.Orders)
	}

	// missing or clashing ids continue after the highest one in the bundle,
	// or after the bundle's order counter when that is higher
	next := max(maxID(orderIDs), b.Settings.LastOrderID)
	for _, r := range needOrder {
		next++
		b.MonthlyData[r.month].Orders[r.index].ID = next
		res.ReassignedIDs++
	}
	next = maxID(expenseIDs)
	for _, r := range needExp {
		next++
		b.MonthlyData[r.month].Expenses[r.index].ID = next
		res.ReassignedIDs++
	}
	return nil
}

type orderRef struct {
	month core.MonthKey
	index int
}

// parseID reads a positive integer id written as a number or a string.
func parseID(raw json.RawMessage) (int64, bool) {
	t := strings.Trim(string(bytes.TrimSpace(raw)), `"`)
	if t == "" || t == "null" {
		return 0, false
	}
	if id, err := strconv.ParseInt(t, 10, 64); err == nil && id > 0 {
		return id, true
	}
	if f, err := strconv.ParseFloat(t, 64); err == nil && f > 0 && f == float64(int64(f)) {
		return int64(f), true
	}
	return 0, false
}

func maxID(ids map[int64]bool) int64 {
	var max int64
	for id := range ids {
		if id > max {
			max = id
		}
	}
	return max
}
