// Package currency implements the BGN to EUR transition rules: date-gated
// currency selection, fixed-rate conversion, cent rounding and display
// formatting. Nothing outside this package formats money.
package currency

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// Code is an ISO 4217 currency code.
type Code string

const (
	BGN Code = "BGN"
	EUR Code = "EUR"
	USD Code = "USD"
)

// BGNPerEUR is the fixed legal conversion rate.
const BGNPerEUR = 1.95583

var (
	bgnPerEUR = decimal.RequireFromString("1.95583")

	symbols = map[Code]string{
		BGN: "лв",
		EUR: "€",
		USD: "$",
	}

	ErrUnsupportedCurrency = errors.New("unsupported currency")
)

// ParseCode validates s against the ISO registry and the set of currencies
// this package can format.
func ParseCode(s string) (Code, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if money.GetCurrency(s) == nil {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, s)
	}
	c := Code(s)
	if _, ok := symbols[c]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedCurrency, s)
	}
	return c, nil
}

// Symbol returns the display symbol, falling back to the code itself.
func (c Code) Symbol() string {
	if s, ok := symbols[c]; ok {
		return s
	}
	return string(c)
}

// Fraction returns the number of minor unit digits of c.
func (c Code) Fraction() int {
	if cur := money.GetCurrency(string(c)); cur != nil {
		return cur.Fraction
	}
	return 2
}

func invalid(x float64) bool {
	return math.IsNaN(x) || math.IsInf(x, 0)
}

func dec(x float64) decimal.Decimal {
	if invalid(x) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(x)
}

func cents(d decimal.Decimal) float64 {
	f, _ := d.Round(2).Float64()
	return f
}

// Round rounds x to the nearest cent, ties away from zero. NaN and
// infinities become 0.
func Round(x float64) float64 {
	return cents(dec(x))
}

// Sum adds values exactly and rounds the result once.
func Sum(values ...float64) float64 {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(dec(v))
	}
	return cents(total)
}

// BGNToEUR converts at the fixed legal rate.
func BGNToEUR(x float64) float64 {
	return cents(dec(x).Div(bgnPerEUR))
}

// EURToBGN converts at the fixed legal rate.
func EURToBGN(x float64) float64 {
	return cents(dec(x).Mul(bgnPerEUR))
}

// USDToEUR multiplies by the given EUR-per-USD rate.
func USDToEUR(x, rate float64) float64 {
	return cents(dec(x).Mul(dec(rate)))
}

// USDToBGN multiplies by the given BGN-per-USD rate.
func USDToBGN(x, rate float64) float64 {
	return cents(dec(x).Mul(dec(rate)))
}

// ToEUR converts x expressed in from into EUR. usdRate is EUR per USD.
func ToEUR(x float64, from Code, usdRate float64) float64 {
	switch from {
	case BGN:
		return BGNToEUR(x)
	case USD:
		return USDToEUR(x, usdRate)
	default:
		return Round(x)
	}
}

// FromEUR converts a EUR amount into to. usdRate is EUR per USD.
func FromEUR(x float64, to Code, usdRate float64) float64 {
	switch to {
	case BGN:
		return EURToBGN(x)
	case USD:
		if usdRate == 0 {
			return 0
		}
		return cents(dec(x).Div(dec(usdRate)))
	default:
		return Round(x)
	}
}

// FormatAmount renders "12.34 €", or "12.34 EUR" when showCode is set.
func FormatAmount(x float64, c Code, showCode bool) string {
	label := c.Symbol()
	if showCode {
		label = string(c)
	}
	return dec(Round(x)).StringFixed(2) + " " + label
}

// FormatBGNWithConversion renders a BGN amount with its EUR equivalent,
// e.g. "1000.00 лв (511.29 €)".
func FormatBGNWithConversion(x float64) string {
	return FormatDualCurrency(x, BGNToEUR(x), BGN)
}

// FormatDualCurrency renders the primary amount followed by the other one in
// parentheses.
func FormatDualCurrency(bgn, eur float64, primary Code) string {
	if primary == EUR {
		return FormatAmount(eur, EUR, false) + " (" + FormatAmount(bgn, BGN, false) + ")"
	}
	return FormatAmount(bgn, BGN, false) + " (" + FormatAmount(eur, EUR, false) + ")"
}
