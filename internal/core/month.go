package core

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// MonthKey is a YYYY-MM partition key. Lexicographic order equals
// chronological order.
type MonthKey string

// MonthEntry is one element of the available months registry.
type MonthEntry struct {
	Key  MonthKey `json:"key"`
	Name string   `json:"name"`
}

var monthNames = [12]string{
	"Януари", "Февруари", "Март", "Април", "Май", "Юни",
	"Юли", "Август", "Септември", "Октомври", "Ноември", "Декември",
}

// MonthKeyOf returns the month key of t in t's location.
func MonthKeyOf(t time.Time) MonthKey {
	return MonthKey(t.Format("2006-01"))
}

// ParseMonthKey validates s as a YYYY-MM key.
func ParseMonthKey(s string) (MonthKey, error) {
	s = strings.TrimSpace(s)
	if _, err := time.Parse("2006-01", s); err != nil || len(s) != 7 {
		return "", fmt.Errorf("%w: %q", ErrInvalidMonth, s)
	}
	return MonthKey(s), nil
}

// MonthKeyFromDate derives the month key from an ISO date (YYYY-MM-DD).
func MonthKeyFromDate(date string) (MonthKey, error) {
	t, err := ParseDate(date)
	if err != nil {
		return "", err
	}
	return MonthKeyOf(t), nil
}

// ParseDate parses an ISO date. A full RFC 3339 timestamp is accepted and
// truncated to its calendar date.
func ParseDate(date string) (time.Time, error) {
	date = strings.TrimSpace(date)
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, date)
}

// Valid reports whether m is a well formed key.
func (m MonthKey) Valid() bool {
	_, err := ParseMonthKey(string(m))
	return err == nil
}

// Start returns the first instant of the month in loc.
func (m MonthKey) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01", string(m), loc)
	if err != nil {
		return time.Time{}
	}
	return t
}

// Prev returns the month before m.
func (m MonthKey) Prev() MonthKey {
	return MonthKeyOf(m.Start(time.UTC).AddDate(0, -1, 0))
}

// Next returns the month after m.
func (m MonthKey) Next() MonthKey {
	return MonthKeyOf(m.Start(time.UTC).AddDate(0, 1, 0))
}

// Name returns the localized month label, e.g. "Ноември 2024".
func (m MonthKey) Name() string {
	t := m.Start(time.UTC)
	if t.IsZero() {
		return string(m)
	}
	return fmt.Sprintf("%s %d", monthNames[t.Month()-1], t.Year())
}

func (m MonthKey) String() string { return string(m) }

// InsertMonth adds key to months keeping the list sorted and duplicate free.
// It reports whether the list changed.
func InsertMonth(months []MonthEntry, key MonthKey) ([]MonthEntry, bool) {
	i := sort.Search(len(months), func(i int) bool { return months[i].Key >= key })
	if i < len(months) && months[i].Key == key {
		return months, false
	}
	months = append(months, MonthEntry{})
	copy(months[i+1:], months[i:])
	months[i] = MonthEntry{Key: key, Name: key.Name()}
	return months, true
}

// NormalizeMonths sorts entries, drops duplicates and invalid keys, and fills
// missing names.
func NormalizeMonths(in []MonthEntry) []MonthEntry {
	out := make([]MonthEntry, 0, len(in))
	for _, e := range in {
		if !e.Key.Valid() {
			continue
		}
		var added bool
		out, added = InsertMonth(out, e.Key)
		if added && e.Name != "" {
			for i := range out {
				if out[i].Key == e.Key {
					out[i].Name = e.Name
				}
			}
		}
	}
	return out
}
