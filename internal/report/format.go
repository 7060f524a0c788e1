package report

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Style selects between the full and the abbreviated rendering of numbers.
// A view picks one style per call site; the table uses StyleFull, the export
// totals strip uses StyleCompact for counts.
type Style int

const (
	StyleFull Style = iota
	StyleCompact
)

const placeholder = "-"

var printer = message.NewPrinter(language.English)

var errEmptyAmount = errors.New("empty amount")

// Abbreviate renders v with a B/M/K suffix at two decimals, or plain two
// decimals below one thousand.
func Abbreviate(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "0.00"
	}
	abs := math.Abs(v)
	switch {
	case abs >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case abs >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case abs >= 1e3:
		return fmt.Sprintf("%.2fK", v/1e3)
	default:
		return fmt.Sprintf("%.2f", v)
	}
}

// MicrosToDecimal converts micro-units to currency units exactly.
func MicrosToDecimal(micros int64) decimal.Decimal {
	return decimal.New(micros, -6)
}

// FormatMoney renders micros as dollars with two decimals: 20000000 → "$20.00".
func FormatMoney(micros int64) string {
	d := MicrosToDecimal(micros)
	if d.IsNegative() {
		return "-$" + d.Neg().StringFixed(2)
	}
	return "$" + d.StringFixed(2)
}

// FormatMoneyCompact renders micros as abbreviated dollars: "$1.25M".
func FormatMoneyCompact(micros int64) string {
	return "$" + Abbreviate(MicrosToDecimal(micros).InexactFloat64())
}

// FormatPercent renders v with two decimals and a trailing "%".
func FormatPercent(v float64) string {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		v = 0
	}
	return fmt.Sprintf("%.2f%%", v)
}

// FormatCount renders n with thousands separators.
func FormatCount(n int64) string {
	return printer.Sprintf("%d", n)
}

// ParseMicros reads a money value in the given unit and returns micros.
// A leading "$" and thousands separators are accepted. Sub-micro precision
// is rounded half away from zero.
func ParseMicros(s string, unit Unit) (int64, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, ",", "")
	if s == "" {
		return 0, errEmptyAmount
	}
	if unit == UnitMicros {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n, nil
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse amount %q: %w", s, err)
	}
	if unit == UnitCurrency {
		d = d.Shift(6)
	}
	return d.Round(0).IntPart(), nil
}

// FormatCell renders a normalized cell value for display.
func FormatCell(c Column, v string, style Style) string {
	v = strings.TrimSpace(v)
	if v == "" {
		return placeholder
	}
	switch c.Kind {
	case KindDate:
		if d, ok := ParseDay(v); ok {
			return DisplayDate(d)
		}
		return v
	case KindCount:
		f, ok := parseNumber(v)
		if !ok {
			return "0"
		}
		if style == StyleCompact {
			return Abbreviate(f)
		}
		return FormatCount(int64(math.Round(f)))
	case KindMoney:
		m := parseCount(v)
		if style == StyleCompact {
			return FormatMoneyCompact(m)
		}
		return FormatMoney(m)
	case KindPercent:
		f, _ := parseNumber(v)
		return FormatPercent(f)
	case KindNumber:
		f, ok := parseNumber(v)
		if !ok {
			return v
		}
		if style == StyleCompact {
			return Abbreviate(f)
		}
		return strconv.FormatFloat(f, 'f', 2, 64)
	default:
		return v
	}
}
