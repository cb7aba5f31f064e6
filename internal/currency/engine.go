package currency

import "time"

// Engine carries the cutover instant in the configured location and a clock.
// All of its methods are pure given those two inputs.
type Engine struct {
	loc     *time.Location
	cutover time.Time
	now     func() time.Time
}

// NewEngine builds an engine whose cutover is 2026-01-01T00:00:00 in loc.
// A nil loc means time.Local; a nil clock means time.Now.
func NewEngine(loc *time.Location, now func() time.Time) *Engine {
	if loc == nil {
		loc = time.Local
	}
	if now == nil {
		now = time.Now
	}
	return &Engine{
		loc:     loc,
		cutover: time.Date(2026, time.January, 1, 0, 0, 0, 0, loc),
		now:     now,
	}
}

func (e *Engine) Location() *time.Location { return e.loc }

// Cutover returns the euro adoption instant.
func (e *Engine) Cutover() time.Time { return e.cutover }

// CurrencyForDate returns EUR from the cutover on, BGN before it.
func (e *Engine) CurrencyForDate(t time.Time) Code {
	if t.Before(e.cutover) {
		return BGN
	}
	return EUR
}

// CurrencyForDay interprets an ISO date as local midnight in the engine
// location.
func (e *Engine) CurrencyForDay(date string) Code {
	t, err := time.ParseInLocation("2006-01-02", date, e.loc)
	if err != nil {
		return e.Active()
	}
	return e.CurrencyForDate(t)
}

// Active is the currency for new writes right now.
func (e *Engine) Active() Code {
	return e.CurrencyForDate(e.now())
}

// FormatWithDate renders x (expressed in source) the way money dated d is
// shown: BGN with an optional EUR parenthetical before the cutover, EUR with
// an optional BGN parenthetical after it. Other currencies have no fixed
// rate and are rendered as they are.
func (e *Engine) FormatWithDate(x float64, d time.Time, source Code, showConversion bool) string {
	var bgn, eur float64
	switch source {
	case BGN:
		bgn, eur = Round(x), BGNToEUR(x)
	case EUR:
		eur, bgn = Round(x), EURToBGN(x)
	default:
		return FormatAmount(x, source, false)
	}
	primary := e.CurrencyForDate(d)
	if !showConversion {
		if primary == BGN {
			return FormatAmount(bgn, BGN, false)
		}
		return FormatAmount(eur, EUR, false)
	}
	return FormatDualCurrency(bgn, eur, primary)
}
